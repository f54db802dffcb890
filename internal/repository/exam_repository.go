package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/SMITGHORI/examgenius-platform/internal/model"
)

// ExamRepository handles exam and question data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	e := &model.Exam{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, owner_id, title, description, duration_minutes, total_marks,
		        source_job_id, status, created_at, updated_at
		 FROM exams WHERE id = $1`, id,
	).Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.DurationMinutes, &e.TotalMarks,
		&e.SourceJobID, &e.Status, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return e, nil
}

// ListByOwner returns the owner's exams, newest first, without questions.
func (r *ExamRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit int) ([]model.Exam, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, owner_id, title, description, duration_minutes, total_marks,
		        source_job_id, status, created_at, updated_at
		 FROM exams WHERE owner_id = $1
		 ORDER BY created_at DESC
		 LIMIT $2`, ownerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	exams := []model.Exam{}
	for rows.Next() {
		var e model.Exam
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Title, &e.Description, &e.DurationMinutes, &e.TotalMarks,
			&e.SourceJobID, &e.Status, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		exams = append(exams, e)
	}
	return exams, rows.Err()
}

// GetDetail retrieves an exam with its questions ordered by position.
func (r *ExamRepository) GetDetail(ctx context.Context, id uuid.UUID) (*model.ExamDetail, error) {
	e, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	questions, err := r.ListQuestions(ctx, id)
	if err != nil {
		return nil, err
	}
	return &model.ExamDetail{Exam: *e, Questions: questions}, nil
}

// ListQuestions retrieves all questions for an exam.
func (r *ExamRepository) ListQuestions(ctx context.Context, examID uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, position, question_text, options, correct_option_index,
		        explanation, marks, source_page
		 FROM questions WHERE exam_id = $1
		 ORDER BY position`, examID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		var options []byte
		if err := rows.Scan(&q.ID, &q.ExamID, &q.Position, &q.Text, &options, &q.CorrectOptionIndex,
			&q.Explanation, &q.Marks, &q.SourcePage); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(options, &q.Options); err != nil {
			return nil, fmt.Errorf("decode options of question %s: %w", q.ID, err)
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// CreateForJob inserts the exam, all of its questions and moves the source
// job from synthesizing to completed in one transaction. Either everything
// becomes visible or nothing does.
func (r *ExamRepository) CreateForJob(ctx context.Context, e *model.Exam, questions []model.Question) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx,
			`INSERT INTO exams (owner_id, title, description, duration_minutes, total_marks, source_job_id, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 RETURNING id, created_at, updated_at`,
			e.OwnerID, e.Title, e.Description, e.DurationMinutes, e.TotalMarks, e.SourceJobID, e.Status,
		).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert exam: %w", err)
		}

		batch := &pgx.Batch{}
		for i := range questions {
			q := &questions[i]
			q.ExamID = e.ID
			q.Position = i + 1
			options, err := json.Marshal(q.Options)
			if err != nil {
				return fmt.Errorf("encode options of question %d: %w", i, err)
			}
			batch.Queue(
				`INSERT INTO questions (exam_id, position, question_text, options, correct_option_index,
				                        explanation, marks, source_page)
				 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				 RETURNING id`,
				q.ExamID, q.Position, q.Text, options, q.CorrectOptionIndex, q.Explanation, q.Marks, q.SourcePage,
			).QueryRow(func(row pgx.Row) error {
				if err := row.Scan(&q.ID); err != nil {
					return fmt.Errorf("insert question %d: %w", i, err)
				}
				return nil
			})
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx,
			`UPDATE upload_jobs
			 SET status = $1, exam_id = $2, updated_at = NOW()
			 WHERE id = $3 AND status = $4`,
			model.JobStatusCompleted, e.ID, e.SourceJobID, model.JobStatusSynthesizing)
		if err != nil {
			return fmt.Errorf("complete job: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("complete job %s: %w", e.SourceJobID, ErrStaleTransition)
		}
		return nil
	})
}

// Publish moves a draft exam owned by ownerID to published.
func (r *ExamRepository) Publish(ctx context.Context, id, ownerID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $1, updated_at = NOW()
		 WHERE id = $2 AND owner_id = $3 AND status = $4`,
		model.ExamStatusPublished, id, ownerID, model.ExamStatusDraft)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleTransition
	}
	return nil
}
