package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus enumerates the processing states of an upload job.
type JobStatus string

const (
	JobStatusPending      JobStatus = "pending"
	JobStatusExtracting   JobStatus = "extracting"
	JobStatusSynthesizing JobStatus = "synthesizing"
	JobStatusCompleted    JobStatus = "completed"
	JobStatusError        JobStatus = "error"
)

// Terminal reports whether no further transition is allowed out of s.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusError
}

// CanTransition reports whether the job state machine allows from -> to.
// Forward moves follow pending -> extracting -> synthesizing -> completed,
// and any non-terminal state may fail into error.
func CanTransition(from, to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	if to == JobStatusError {
		return true
	}
	switch from {
	case JobStatusPending:
		return to == JobStatusExtracting
	case JobStatusExtracting:
		return to == JobStatusSynthesizing
	case JobStatusSynthesizing:
		return to == JobStatusCompleted
	}
	return false
}

// UploadJob represents one PDF submission and its processing record.
type UploadJob struct {
	ID               uuid.UUID  `json:"id"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	StorageKey       string     `json:"-"`
	OriginalFilename string     `json:"original_filename"`
	ByteSize         int64      `json:"byte_size"`
	Checksum         string     `json:"-"`
	Status           JobStatus  `json:"status"`
	ExtractedText    *string    `json:"-"`
	ErrorReason      *string    `json:"error_reason,omitempty"`
	ExamID           *uuid.UUID `json:"exam_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// UploadFile is a submitted file as received from the client.
type UploadFile struct {
	Name     string
	MimeType string
	Bytes    []byte
	Size     int64
}

// JobTransition carries the optional columns written alongside a status change.
type JobTransition struct {
	ExtractedText *string
	ErrorReason   *string
	ExamID        *uuid.UUID
}
