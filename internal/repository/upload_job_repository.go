package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
)

// UploadJobRepository handles upload job data access.
type UploadJobRepository struct {
	pool *pgxpool.Pool
}

// NewUploadJobRepository creates a new UploadJobRepository.
func NewUploadJobRepository(pool *pgxpool.Pool) *UploadJobRepository {
	return &UploadJobRepository{pool: pool}
}

const jobColumns = `id, owner_id, storage_key, original_filename, byte_size, checksum,
		        status, extracted_text, error_reason, exam_id, created_at, updated_at`

func scanJob(row pgx.Row) (*model.UploadJob, error) {
	j := &model.UploadJob{}
	err := row.Scan(&j.ID, &j.OwnerID, &j.StorageKey, &j.OriginalFilename, &j.ByteSize, &j.Checksum,
		&j.Status, &j.ExtractedText, &j.ErrorReason, &j.ExamID, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return j, nil
}

// Create inserts a new job in pending status.
func (r *UploadJobRepository) Create(ctx context.Context, j *model.UploadJob) error {
	j.Status = model.JobStatusPending
	return r.pool.QueryRow(ctx,
		`INSERT INTO upload_jobs (owner_id, storage_key, original_filename, byte_size, checksum, status)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING id, created_at, updated_at`,
		j.OwnerID, j.StorageKey, j.OriginalFilename, j.ByteSize, j.Checksum, j.Status,
	).Scan(&j.ID, &j.CreatedAt, &j.UpdatedAt)
}

// GetByID retrieves a job by its UUID.
func (r *UploadJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.UploadJob, error) {
	return scanJob(r.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM upload_jobs WHERE id = $1`, id))
}

// Transition moves a job from one status to another only if its current
// status still equals from. Optional columns in t are written alongside.
func (r *UploadJobRepository) Transition(ctx context.Context, id uuid.UUID, from, to model.JobStatus, t model.JobTransition) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("transition %s -> %s: %w", from, to, ErrStaleTransition)
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE upload_jobs
		 SET status = $1,
		     extracted_text = COALESCE($2, extracted_text),
		     error_reason = COALESCE($3, error_reason),
		     exam_id = COALESCE($4, exam_id),
		     updated_at = NOW()
		 WHERE id = $5 AND status = $6`,
		to, t.ExtractedText, t.ErrorReason, t.ExamID, id, from)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transition %s -> %s: %w", from, to, ErrStaleTransition)
	}
	return nil
}

// ListByOwner returns the owner's most recent jobs, newest first. Extracted
// text is not loaded.
func (r *UploadJobRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]model.UploadJob, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, storage_key, original_filename, byte_size, checksum,
		        status, NULL::text, error_reason, exam_id, created_at, updated_at
		 FROM upload_jobs WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	jobs := []model.UploadJob{}
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}
