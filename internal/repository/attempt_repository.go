package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
)

// AttemptRepository handles exam attempt data access.
type AttemptRepository struct {
	pool *pgxpool.Pool
}

// NewAttemptRepository creates a new AttemptRepository.
func NewAttemptRepository(pool *pgxpool.Pool) *AttemptRepository {
	return &AttemptRepository{pool: pool}
}

// Create inserts a new attempt. StartedAt and DeadlineAt are set by the caller.
func (r *AttemptRepository) Create(ctx context.Context, a *model.ExamAttempt) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (exam_id, user_id, started_at, deadline_at)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		a.ExamID, a.UserID, a.StartedAt, a.DeadlineAt,
	).Scan(&a.ID)
}

// GetByID retrieves an attempt with its durably persisted responses.
func (r *AttemptRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	a := &model.ExamAttempt{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, user_id, started_at, deadline_at, submitted_at, score
		 FROM exam_attempts WHERE id = $1`, id,
	).Scan(&a.ID, &a.ExamID, &a.UserID, &a.StartedAt, &a.DeadlineAt, &a.SubmittedAt, &a.Score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	a.Responses, err = r.ListResponses(ctx, id)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListResponses returns questionID -> option index for an attempt.
func (r *AttemptRepository) ListResponses(ctx context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id, option_index FROM attempt_responses WHERE attempt_id = $1`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	responses := make(map[uuid.UUID]int)
	for rows.Next() {
		var qID uuid.UUID
		var idx int
		if err := rows.Scan(&qID, &idx); err != nil {
			return nil, err
		}
		responses[qID] = idx
	}
	return responses, rows.Err()
}

const upsertResponseSQL = `INSERT INTO attempt_responses (attempt_id, question_id, option_index, answered_at)
	 VALUES ($1, $2, $3, $4)
	 ON CONFLICT (attempt_id, question_id) DO UPDATE
	 SET option_index = EXCLUDED.option_index, answered_at = EXCLUDED.answered_at
	 WHERE attempt_responses.answered_at <= EXCLUDED.answered_at`

// upsertOpenResponseSQL is upsertResponseSQL restricted to attempts that are
// still open. Answers that arrive after finalization are dropped.
const upsertOpenResponseSQL = `INSERT INTO attempt_responses (attempt_id, question_id, option_index, answered_at)
	 SELECT $1::uuid, $2::uuid, $3::smallint, $4::timestamptz
	 WHERE EXISTS (SELECT 1 FROM exam_attempts WHERE id = $1::uuid AND submitted_at IS NULL)
	 ON CONFLICT (attempt_id, question_id) DO UPDATE
	 SET option_index = EXCLUDED.option_index, answered_at = EXCLUDED.answered_at
	 WHERE attempt_responses.answered_at <= EXCLUDED.answered_at`

// UpsertResponses writes a batch of answers for open attempts. Older writes
// never replace newer ones.
func (r *AttemptRepository) UpsertResponses(ctx context.Context, entries []model.AnswerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(upsertOpenResponseSQL, e.AttemptID, e.QuestionID, e.OptionIndex, e.AnsweredAt)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// Finalize sets score and submitted_at and stores the final responses, but
// only if the attempt has not been submitted yet. It reports whether this
// call performed the finalization.
func (r *AttemptRepository) Finalize(ctx context.Context, id uuid.UUID, score int, submittedAt time.Time, responses map[uuid.UUID]int) (bool, error) {
	finalized := false
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE exam_attempts SET submitted_at = $1, score = $2
			 WHERE id = $3 AND submitted_at IS NULL`,
			submittedAt, score, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		finalized = true

		for qID, idx := range responses {
			if _, err := tx.Exec(ctx, upsertResponseSQL, id, qID, idx, submittedAt); err != nil {
				return err
			}
		}
		return nil
	})
	return finalized, err
}

// ListExpiredOpen returns ids of attempts past their deadline that were never submitted.
func (r *AttemptRepository) ListExpiredOpen(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM exam_attempts
		 WHERE submitted_at IS NULL AND deadline_at < $1
		 ORDER BY deadline_at
		 LIMIT $2`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// IsOpen reports whether the attempt has not been finalized.
func (r *AttemptRepository) IsOpen(ctx context.Context, id uuid.UUID) (bool, error) {
	var open bool
	err := r.pool.QueryRow(ctx,
		`SELECT submitted_at IS NULL FROM exam_attempts WHERE id = $1`, id,
	).Scan(&open)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrNotFound
		}
		return false, err
	}
	return open, nil
}

// ListSubmittedByUser returns the user's finalized attempts with their
// scores, most recently submitted first.
func (r *AttemptRepository) ListSubmittedByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.AttemptSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.id, a.exam_id, e.title, a.score, e.total_marks, a.started_at, a.submitted_at
		 FROM exam_attempts a
		 JOIN exams e ON e.id = a.exam_id
		 WHERE a.user_id = $1 AND a.submitted_at IS NOT NULL
		 ORDER BY a.submitted_at DESC
		 LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []model.AttemptSummary{}
	for rows.Next() {
		var s model.AttemptSummary
		if err := rows.Scan(&s.AttemptID, &s.ExamID, &s.ExamTitle, &s.Score, &s.TotalMarks,
			&s.StartedAt, &s.SubmittedAt); err != nil {
			return nil, err
		}
		results = append(results, s)
	}
	return results, rows.Err()
}
