package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/llm"
	"github.com/SMITGHORI/examgenius-platform/internal/model"
	"github.com/SMITGHORI/examgenius-platform/internal/repository"
	"github.com/SMITGHORI/examgenius-platform/internal/storage"
)

var testLog = zerolog.New(io.Discard)

// memStorage is an in-memory storage.System.
type memStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func newMemStorage() *memStorage {
	return &memStorage{objects: map[string][]byte{}}
}

func (m *memStorage) Put(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[key]; ok {
		return storage.ErrExists
	}
	m.objects[key] = append([]byte(nil), data...)
	m.puts++
	return nil
}

func (m *memStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
	}
	return data, nil
}

// memJobs is an in-memory job table with conditional transitions.
type memJobs struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*model.UploadJob
}

func newMemJobs() *memJobs {
	return &memJobs{jobs: map[uuid.UUID]*model.UploadJob{}}
}

func (m *memJobs) Create(_ context.Context, j *model.UploadJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j.ID = uuid.New()
	j.Status = model.JobStatusPending
	j.CreatedAt = time.Now()
	j.UpdatedAt = j.CreatedAt
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memJobs) GetByID(_ context.Context, id uuid.UUID) (*model.UploadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobs) Transition(_ context.Context, id uuid.UUID, from, to model.JobStatus, t model.JobTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.transitionLocked(id, from, to, t)
}

func (m *memJobs) transitionLocked(id uuid.UUID, from, to model.JobStatus, t model.JobTransition) error {
	j, ok := m.jobs[id]
	if !ok || j.Status != from || !model.CanTransition(from, to) {
		return repository.ErrStaleTransition
	}
	j.Status = to
	if t.ExtractedText != nil {
		j.ExtractedText = t.ExtractedText
	}
	if t.ErrorReason != nil {
		j.ErrorReason = t.ErrorReason
	}
	if t.ExamID != nil {
		j.ExamID = t.ExamID
	}
	return nil
}

func (m *memJobs) ListByOwner(_ context.Context, ownerID uuid.UUID, limit int) ([]model.UploadJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	jobs := []model.UploadJob{}
	for _, j := range m.jobs {
		if j.OwnerID == ownerID {
			jobs = append(jobs, *j)
		}
	}
	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.After(jobs[b].CreatedAt) })
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (m *memJobs) setCreatedAt(id uuid.UUID, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[id].CreatedAt = at
}

func (m *memJobs) status(id uuid.UUID) model.JobStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id].Status
}

// memExams stages every row of CreateForJob and commits only if all of them
// succeed, mirroring the transaction of the Postgres repository.
type memExams struct {
	mu         sync.Mutex
	jobs       *memJobs
	exams      map[uuid.UUID]*model.Exam
	questions  map[uuid.UUID][]model.Question
	failOnNthQ int // 1-based; 0 disables
}

func newMemExams(jobs *memJobs) *memExams {
	return &memExams{
		jobs:      jobs,
		exams:     map[uuid.UUID]*model.Exam{},
		questions: map[uuid.UUID][]model.Question{},
	}
}

var errInjected = errors.New("injected insert failure")

func (m *memExams) CreateForJob(_ context.Context, e *model.Exam, questions []model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.exams {
		if existing.SourceJobID == e.SourceJobID {
			return errors.New("duplicate source job")
		}
	}

	examID := uuid.New()
	staged := make([]model.Question, 0, len(questions))
	for i, q := range questions {
		if m.failOnNthQ == i+1 {
			return fmt.Errorf("insert question %d: %w", i, errInjected)
		}
		q.ID = uuid.New()
		q.ExamID = examID
		q.Position = i + 1
		staged = append(staged, q)
	}

	m.jobs.mu.Lock()
	err := m.jobs.transitionLocked(e.SourceJobID, model.JobStatusSynthesizing, model.JobStatusCompleted, model.JobTransition{ExamID: &examID})
	m.jobs.mu.Unlock()
	if err != nil {
		return err
	}

	e.ID = examID
	e.CreatedAt = time.Now()
	cp := *e
	m.exams[examID] = &cp
	m.questions[examID] = staged
	copy(questions, staged)
	return nil
}

func (m *memExams) GetDetail(_ context.Context, id uuid.UUID) (*model.ExamDetail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	qs := append([]model.Question(nil), m.questions[id]...)
	return &model.ExamDetail{Exam: *e, Questions: qs}, nil
}

func (m *memExams) Publish(_ context.Context, id, ownerID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok || e.OwnerID != ownerID || e.Status != model.ExamStatusDraft {
		return repository.ErrStaleTransition
	}
	e.Status = model.ExamStatusPublished
	return nil
}

func (m *memExams) ListByOwner(_ context.Context, ownerID uuid.UUID, limit int) ([]model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	exams := []model.Exam{}
	for _, e := range m.exams {
		if e.OwnerID == ownerID {
			exams = append(exams, *e)
		}
	}
	sort.Slice(exams, func(a, b int) bool { return exams[a].CreatedAt.After(exams[b].CreatedAt) })
	if len(exams) > limit {
		exams = exams[:limit]
	}
	return exams, nil
}

// assign moves a seeded exam to ownerID with the given creation time.
func (m *memExams) assign(id, ownerID uuid.UUID, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exams[id].OwnerID = ownerID
	m.exams[id].CreatedAt = createdAt
}

func (m *memExams) byJob(jobID uuid.UUID) (*model.Exam, []model.Question) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.exams {
		if e.SourceJobID == jobID {
			return e, m.questions[id]
		}
	}
	return nil, nil
}

func (m *memExams) questionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, qs := range m.questions {
		n += len(qs)
	}
	return n
}

// seedExam inserts a ready exam directly.
func (m *memExams) seedExam(status model.ExamStatus, duration int, questions []model.Question) *model.ExamDetail {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := &model.Exam{
		ID:              uuid.New(),
		OwnerID:         uuid.New(),
		Title:           "Seeded",
		DurationMinutes: duration,
		SourceJobID:     uuid.New(),
		Status:          status,
	}
	for i := range questions {
		questions[i].ID = uuid.New()
		questions[i].ExamID = e.ID
		questions[i].Position = i + 1
		e.TotalMarks += questions[i].Marks
	}
	m.exams[e.ID] = e
	m.questions[e.ID] = questions
	return &model.ExamDetail{Exam: *e, Questions: append([]model.Question(nil), questions...)}
}

// memQueue records enqueued generation requests.
type memQueue struct {
	mu   sync.Mutex
	reqs []model.GenerationRequest
}

func (q *memQueue) Enqueue(_ context.Context, req model.GenerationRequest) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reqs = append(q.reqs, req)
	return nil
}

// scriptedProvider returns the next scripted reply per call.
type scriptedProvider struct {
	mu      sync.Mutex
	replies []providerReply
	calls   int
	prompts []string
}

type providerReply struct {
	text string
	err  error
}

func (p *scriptedProvider) Complete(_ context.Context, _, userPrompt string, _ llm.Params) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.prompts = append(p.prompts, userPrompt)
	i := p.calls
	p.calls++
	if i >= len(p.replies) {
		i = len(p.replies) - 1
	}
	return p.replies[i].text, p.replies[i].err
}

// memAttempts is an in-memory attempt table. exams supplies titles and
// totals for result listings.
type memAttempts struct {
	mu       sync.Mutex
	attempts map[uuid.UUID]*model.ExamAttempt
	exams    *memExams
}

func newMemAttempts(exams *memExams) *memAttempts {
	return &memAttempts{attempts: map[uuid.UUID]*model.ExamAttempt{}, exams: exams}
}

func (m *memAttempts) Create(_ context.Context, a *model.ExamAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = uuid.New()
	cp := *a
	cp.Responses = map[uuid.UUID]int{}
	m.attempts[a.ID] = &cp
	return nil
}

func (m *memAttempts) GetByID(_ context.Context, id uuid.UUID) (*model.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	cp.Responses = make(map[uuid.UUID]int, len(a.Responses))
	for k, v := range a.Responses {
		cp.Responses[k] = v
	}
	return &cp, nil
}

func (m *memAttempts) Finalize(_ context.Context, id uuid.UUID, score int, submittedAt time.Time, responses map[uuid.UUID]int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok || a.SubmittedAt != nil {
		return false, nil
	}
	a.SubmittedAt = &submittedAt
	a.Score = &score
	for k, v := range responses {
		a.Responses[k] = v
	}
	return true, nil
}

func (m *memAttempts) ListExpiredOpen(_ context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, a := range m.attempts {
		if a.SubmittedAt == nil && a.DeadlineAt.Before(now) && len(ids) < limit {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *memAttempts) IsOpen(_ context.Context, id uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attempts[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	return a.SubmittedAt == nil, nil
}

func (m *memAttempts) ListSubmittedByUser(ctx context.Context, userID uuid.UUID, limit int) ([]model.AttemptSummary, error) {
	m.mu.Lock()
	var submitted []model.ExamAttempt
	for _, a := range m.attempts {
		if a.UserID == userID && a.SubmittedAt != nil {
			submitted = append(submitted, *a)
		}
	}
	m.mu.Unlock()

	results := []model.AttemptSummary{}
	for _, a := range submitted {
		detail, err := m.exams.GetDetail(ctx, a.ExamID)
		if err != nil {
			return nil, err
		}
		results = append(results, model.AttemptSummary{
			AttemptID:   a.ID,
			ExamID:      a.ExamID,
			ExamTitle:   detail.Title,
			Score:       *a.Score,
			TotalMarks:  detail.TotalMarks,
			StartedAt:   a.StartedAt,
			SubmittedAt: *a.SubmittedAt,
		})
	}
	sort.Slice(results, func(a, b int) bool { return results[a].SubmittedAt.After(results[b].SubmittedAt) })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *memAttempts) setDeadline(id uuid.UUID, deadline time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[id].DeadlineAt = deadline
}

// memResponses is an in-memory ResponseStore.
type memResponses struct {
	mu      sync.Mutex
	answers map[uuid.UUID]map[uuid.UUID]int
}

func newMemResponses() *memResponses {
	return &memResponses{answers: map[uuid.UUID]map[uuid.UUID]int{}}
}

func (m *memResponses) Record(_ context.Context, e model.AnswerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.answers[e.AttemptID] == nil {
		m.answers[e.AttemptID] = map[uuid.UUID]int{}
	}
	m.answers[e.AttemptID][e.QuestionID] = e.OptionIndex
	return nil
}

func (m *memResponses) Load(_ context.Context, attemptID uuid.UUID) (map[uuid.UUID]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[uuid.UUID]int{}
	for k, v := range m.answers[attemptID] {
		out[k] = v
	}
	return out, nil
}

func (m *memResponses) Clear(_ context.Context, attemptID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.answers, attemptID)
	return nil
}

// put writes directly into the cache, bypassing deadline checks.
func (m *memResponses) put(attemptID, questionID uuid.UUID, idx int) {
	_ = m.Record(context.Background(), model.AnswerEntry{AttemptID: attemptID, QuestionID: questionID, OptionIndex: idx})
}
