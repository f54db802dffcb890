package service

import (
	"errors"
	"fmt"
)

// Sentinel errors surfaced to callers.
var (
	ErrInvalidFile    = errors.New("invalid file")
	ErrNotFound       = errors.New("not found")
	ErrInvalidState   = errors.New("invalid state")
	ErrInvalidRequest = errors.New("invalid request")
	ErrJobNotPending  = errors.New("job is not pending")
	ErrNotOwner       = errors.New("not the owner of this resource")
	ErrMarksMismatch  = errors.New("question marks do not sum to total marks")
)

// Upload rejections. Each matches ErrInvalidFile under errors.Is.
var (
	ErrUnsupportedType = fmt.Errorf("%w: unsupported type", ErrInvalidFile)
	ErrFileTooLarge    = fmt.Errorf("%w: too large", ErrInvalidFile)
	ErrEmptyFile       = fmt.Errorf("%w: empty", ErrInvalidFile)
)

// ExtractionKind classifies text extraction failures.
type ExtractionKind string

const (
	ExtractionNotFound   ExtractionKind = "not_found"
	ExtractionTooShort   ExtractionKind = "too_short"
	ExtractionCorrupt    ExtractionKind = "corrupt"
	ExtractionUnreadable ExtractionKind = "unreadable"
)

// ExtractionError is returned by the extractor.
type ExtractionError struct {
	Kind ExtractionKind
	Err  error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("extraction %s", e.Kind)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// SynthesisKind classifies question synthesis failures.
type SynthesisKind string

const (
	SynthesisProviderUnavailable SynthesisKind = "provider_unavailable"
	SynthesisMalformedOutput     SynthesisKind = "malformed_output"
	SynthesisInvalidQuestion     SynthesisKind = "invalid_question"
)

// SynthesisError is returned by the synthesizer. Index and Field are set for
// InvalidQuestion.
type SynthesisError struct {
	Kind   SynthesisKind
	Index  int
	Field  string
	Detail string
	Err    error
}

func (e *SynthesisError) Error() string {
	msg := fmt.Sprintf("synthesis %s", e.Kind)
	if e.Kind == SynthesisInvalidQuestion {
		msg += fmt.Sprintf(" at index %d field %q", e.Index, e.Field)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is plausibly transient.
func (e *SynthesisError) Retryable() bool {
	return e.Kind == SynthesisProviderUnavailable
}

// FailureReason renders the human-readable errorReason stored on a failed job.
// The first sentence tells the owner what to do next; the rest is diagnostic.
func FailureReason(err error) string {
	var extErr *ExtractionError
	var synErr *SynthesisError
	switch {
	case errors.As(err, &extErr):
		switch extErr.Kind {
		case ExtractionTooShort:
			return "Your PDF had too little readable text to generate questions. Please upload a document with more text."
		case ExtractionNotFound:
			return "The uploaded file could not be found. Please upload it again."
		default:
			return "Your PDF could not be read. Please upload it again. (" + extErr.Error() + ")"
		}
	case errors.As(err, &synErr):
		if synErr.Retryable() {
			return "The question generator is temporarily unavailable. Please wait a few minutes and try again."
		}
		return "The question generator returned something we couldn't use. Please contact support. (" + synErr.Error() + ")"
	case errors.Is(err, ErrInvalidRequest):
		return "The generation settings were invalid. Please adjust them and upload again. (" + err.Error() + ")"
	case errors.Is(err, ErrMarksMismatch):
		return "The question generator returned something we couldn't use. Please contact support. (" + err.Error() + ")"
	default:
		return "Exam generation failed unexpectedly. Please try again later."
	}
}
