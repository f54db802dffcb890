package service

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
	"github.com/SMITGHORI/examgenius-platform/internal/storage"
)

const pdfMimeType = "application/pdf"

// JobCreator persists new upload jobs.
type JobCreator interface {
	Create(ctx context.Context, j *model.UploadJob) error
}

// IngestService validates and stores submitted files.
type IngestService struct {
	store    storage.System
	jobs     JobCreator
	maxBytes int64
	now      func() time.Time
	log      zerolog.Logger
}

// NewIngestService creates a new IngestService.
func NewIngestService(store storage.System, jobs JobCreator, maxBytes int64, log zerolog.Logger) *IngestService {
	return &IngestService{
		store:    store,
		jobs:     jobs,
		maxBytes: maxBytes,
		now:      time.Now,
		log:      log.With().Str("component", "ingest_service").Logger(),
	}
}

// Submit validates the file, writes it to storage and creates a pending job.
// Validation happens before any storage write.
func (s *IngestService) Submit(ctx context.Context, file model.UploadFile, ownerID uuid.UUID) (*model.UploadJob, error) {
	if err := s.validate(file); err != nil {
		return nil, err
	}

	key := StorageKey(ownerID, s.now(), file.Name)
	if err := s.store.Put(ctx, key, file.Bytes); err != nil {
		return nil, fmt.Errorf("store upload: %w", err)
	}

	sum := blake2b.Sum256(file.Bytes)
	job := &model.UploadJob{
		OwnerID:          ownerID,
		StorageKey:       key,
		OriginalFilename: file.Name,
		ByteSize:         int64(len(file.Bytes)),
		Checksum:         hex.EncodeToString(sum[:]),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		// The stored object is left orphaned.
		s.log.Warn().Err(err).Str("storage_key", key).Msg("Job insert failed after storage write")
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.log.Info().
		Str("job_id", job.ID.String()).
		Str("owner_id", ownerID.String()).
		Int64("bytes", job.ByteSize).
		Msg("Upload accepted")
	return job, nil
}

func (s *IngestService) validate(file model.UploadFile) error {
	mime := strings.ToLower(strings.TrimSpace(strings.SplitN(file.MimeType, ";", 2)[0]))
	if mime != pdfMimeType {
		return fmt.Errorf("%w %q, only %s is accepted", ErrUnsupportedType, file.MimeType, pdfMimeType)
	}

	size := file.Size
	if n := int64(len(file.Bytes)); n > size {
		size = n
	}
	if size > s.maxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrFileTooLarge, size, s.maxBytes)
	}
	if len(file.Bytes) == 0 {
		return ErrEmptyFile
	}
	return nil
}

// StorageKey namespaces an upload by owner and submission time.
func StorageKey(ownerID uuid.UUID, at time.Time, filename string) string {
	return fmt.Sprintf("%s/%d-%s", ownerID, at.UnixNano(), sanitizeFilename(filename))
}

func sanitizeFilename(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var sb strings.Builder
	for _, r := range base {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			sb.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteRune('_')
		}
	}
	out := strings.TrimLeft(sb.String(), ".")
	if out == "" {
		return "upload.pdf"
	}
	return out
}

// SourceTitle is the filename without directory or extension.
func SourceTitle(filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	return strings.TrimSuffix(base, filepath.Ext(base))
}
