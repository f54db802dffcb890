package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/blake2b"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
	"github.com/SMITGHORI/examgenius-platform/internal/storage"
)

// ExtractService fetches a job's stored bytes and decodes them to text.
type ExtractService struct {
	store    storage.System
	decoder  TextDecoder
	minChars int
}

// NewExtractService creates a new ExtractService. minChars is the shortest
// decoded text, in characters, that is worth synthesizing from.
func NewExtractService(store storage.System, decoder TextDecoder, minChars int) *ExtractService {
	return &ExtractService{store: store, decoder: decoder, minChars: minChars}
}

// Extract returns the plain text of the job's document or an *ExtractionError.
func (s *ExtractService) Extract(ctx context.Context, job *model.UploadJob) (string, error) {
	data, err := s.store.Get(ctx, job.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "", &ExtractionError{Kind: ExtractionNotFound, Err: err}
		}
		return "", fmt.Errorf("fetch %s: %w", job.StorageKey, err)
	}

	if job.Checksum != "" {
		sum := blake2b.Sum256(data)
		if hex.EncodeToString(sum[:]) != job.Checksum {
			return "", &ExtractionError{Kind: ExtractionCorrupt, Err: fmt.Errorf("checksum mismatch for %s", job.StorageKey)}
		}
	}

	text, err := s.decoder.Decode(data)
	if err != nil {
		return "", &ExtractionError{Kind: ExtractionUnreadable, Err: err}
	}

	if n := utf8.RuneCountInString(text); n < s.minChars {
		return "", &ExtractionError{
			Kind: ExtractionTooShort,
			Err:  fmt.Errorf("decoded %d characters, need at least %d", n, s.minChars),
		}
	}
	return text, nil
}
