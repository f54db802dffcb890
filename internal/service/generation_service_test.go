package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/SMITGHORI/examgenius-platform/internal/llm"
	"github.com/SMITGHORI/examgenius-platform/internal/model"
)

// stubSynthesizer fails with the scripted errors before succeeding.
type stubSynthesizer struct {
	mu        sync.Mutex
	failures  []error
	questions int
	calls     int
}

func (s *stubSynthesizer) Synthesize(_ context.Context, _, _ string, req model.GenerationRequest) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.calls <= len(s.failures) {
		return nil, s.failures[s.calls-1]
	}
	n := s.questions
	if n == 0 {
		n = req.DesiredQuestionCount
	}
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{
			Text:               "Which gas do plants absorb?",
			Options:            []string{"Oxygen", "Carbon dioxide", "Nitrogen", "Helium"},
			CorrectOptionIndex: 1,
		}
	}
	assignMarks(qs, req.TotalMarks)
	return qs, nil
}

func (s *stubSynthesizer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

var errUnavailable = &SynthesisError{Kind: SynthesisProviderUnavailable, Err: &llm.Error{Kind: llm.KindRateLimited, Err: errors.New("429")}}

type pipeline struct {
	store    *memStorage
	jobs     *memJobs
	exams    *memExams
	queue    *memQueue
	ingest   *IngestService
	gen      *GenerationService
	sleeps   []time.Duration
	ownerID  uuid.UUID
	mu       sync.Mutex
}

func newPipeline(t *testing.T, synth Synthesizer) *pipeline {
	t.Helper()
	p := &pipeline{
		store:   newMemStorage(),
		jobs:    newMemJobs(),
		queue:   &memQueue{},
		ownerID: uuid.New(),
	}
	p.exams = newMemExams(p.jobs)
	p.ingest = NewIngestService(p.store, p.jobs, 10<<20, testLog)
	extractor := NewExtractService(p.store, NewDocumentDecoder(), 100)
	p.gen = NewGenerationService(p.jobs, p.exams, extractor, synth, p.queue,
		RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}, 30, testLog)
	p.gen.sleep = func(_ context.Context, d time.Duration) error {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.sleeps = append(p.sleeps, d)
		return nil
	}
	return p
}

// upload stores a text-bearing stand-in for a PDF of roughly size bytes.
func (p *pipeline) upload(t *testing.T, name string, size int) *model.UploadJob {
	t.Helper()
	sentence := "Photosynthesis converts light energy into chemical energy stored in glucose. "
	body := strings.Repeat(sentence, size/len(sentence)+1)[:size]
	job, err := p.ingest.Submit(context.Background(), model.UploadFile{
		Name:     name,
		MimeType: "application/pdf",
		Bytes:    []byte(body),
		Size:     int64(size),
	}, p.ownerID)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return job
}

func TestProcessRetriesProviderUnavailableThenCompletes(t *testing.T) {
	synth := &stubSynthesizer{failures: []error{errUnavailable, errUnavailable}}
	p := newPipeline(t, synth)
	job := p.upload(t, "notes.pdf", 2048)

	if err := p.gen.Process(context.Background(), biologyRequestFor(job.ID, 4, 20)); err != nil {
		t.Fatalf("Process: %v", err)
	}

	if synth.callCount() != 3 {
		t.Errorf("synthesis calls = %d, want 3", synth.callCount())
	}
	if got := p.jobs.status(job.ID); got != model.JobStatusCompleted {
		t.Errorf("status = %s, want completed", got)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(p.sleeps) != len(want) || p.sleeps[0] != want[0] || p.sleeps[1] != want[1] {
		t.Errorf("backoff = %v, want %v", p.sleeps, want)
	}
}

func TestProcessGivesUpAfterThreeAttempts(t *testing.T) {
	synth := &stubSynthesizer{failures: []error{errUnavailable, errUnavailable, errUnavailable, errUnavailable}}
	p := newPipeline(t, synth)
	job := p.upload(t, "notes.pdf", 2048)

	err := p.gen.Process(context.Background(), biologyRequestFor(job.ID, 4, 20))
	if err == nil {
		t.Fatal("Process succeeded, want error")
	}

	if synth.callCount() != 3 {
		t.Errorf("synthesis calls = %d, want 3", synth.callCount())
	}
	got, _ := p.jobs.GetByID(context.Background(), job.ID)
	if got.Status != model.JobStatusError {
		t.Fatalf("status = %s, want error", got.Status)
	}
	if got.ErrorReason == nil || !strings.Contains(*got.ErrorReason, "temporarily unavailable") {
		t.Errorf("reason = %v", got.ErrorReason)
	}
}

func TestProcessDoesNotRetryDataIntegrityErrors(t *testing.T) {
	cases := []*SynthesisError{
		{Kind: SynthesisMalformedOutput, Detail: "output is not valid JSON"},
		{Kind: SynthesisInvalidQuestion, Index: 2, Field: "options"},
	}

	for _, synErr := range cases {
		t.Run(string(synErr.Kind), func(t *testing.T) {
			synth := &stubSynthesizer{failures: []error{synErr}}
			p := newPipeline(t, synth)
			job := p.upload(t, "notes.pdf", 2048)

			_ = p.gen.Process(context.Background(), biologyRequestFor(job.ID, 4, 20))

			if synth.callCount() != 1 {
				t.Errorf("synthesis calls = %d, want 1", synth.callCount())
			}
			got, _ := p.jobs.GetByID(context.Background(), job.ID)
			if got.Status != model.JobStatusError {
				t.Fatalf("status = %s, want error", got.Status)
			}
			if !strings.Contains(*got.ErrorReason, "couldn't use") {
				t.Errorf("reason = %q", *got.ErrorReason)
			}
			if len(p.sleeps) != 0 {
				t.Errorf("slept %v before failing", p.sleeps)
			}
		})
	}
}

func TestProcessInvalidQuestionReasonNamesIndexAndField(t *testing.T) {
	synth := &stubSynthesizer{failures: []error{&SynthesisError{Kind: SynthesisInvalidQuestion, Index: 2, Field: "options"}}}
	p := newPipeline(t, synth)
	job := p.upload(t, "notes.pdf", 2048)

	_ = p.gen.Process(context.Background(), biologyRequestFor(job.ID, 4, 20))

	got, _ := p.jobs.GetByID(context.Background(), job.ID)
	if !strings.Contains(*got.ErrorReason, "index 2") || !strings.Contains(*got.ErrorReason, `"options"`) {
		t.Errorf("reason = %q", *got.ErrorReason)
	}
}

func TestProcessFailsOnTooLittleText(t *testing.T) {
	synth := &stubSynthesizer{}
	p := newPipeline(t, synth)
	job := p.upload(t, "tiny.pdf", 60)

	err := p.gen.Process(context.Background(), biologyRequestFor(job.ID, 4, 20))
	var extErr *ExtractionError
	if !errors.As(err, &extErr) || extErr.Kind != ExtractionTooShort {
		t.Fatalf("err = %v, want TooShort", err)
	}

	got, _ := p.jobs.GetByID(context.Background(), job.ID)
	if got.Status != model.JobStatusError || !strings.Contains(*got.ErrorReason, "too little") {
		t.Errorf("job = %s %v", got.Status, got.ErrorReason)
	}
	if synth.callCount() != 0 {
		t.Errorf("synthesizer called %d times", synth.callCount())
	}
}

func TestProcessRejectsJobThatIsNotPending(t *testing.T) {
	synth := &stubSynthesizer{}
	p := newPipeline(t, synth)
	job := p.upload(t, "notes.pdf", 2048)
	req := biologyRequestFor(job.ID, 4, 20)

	if err := p.gen.Process(context.Background(), req); err != nil {
		t.Fatalf("first Process: %v", err)
	}
	if err := p.gen.Process(context.Background(), req); !errors.Is(err, ErrJobNotPending) {
		t.Fatalf("second Process err = %v, want ErrJobNotPending", err)
	}

	if synth.callCount() != 1 {
		t.Errorf("synthesis calls = %d, want 1", synth.callCount())
	}
	if p.exams.questionCount() != 4 {
		t.Errorf("questions = %d, want 4 from a single exam", p.exams.questionCount())
	}
}

func TestProcessConcurrentInvocationsCreateOneExam(t *testing.T) {
	synth := &stubSynthesizer{}
	p := newPipeline(t, synth)
	job := p.upload(t, "notes.pdf", 2048)
	req := biologyRequestFor(job.ID, 4, 20)

	var wg sync.WaitGroup
	errs := make([]error, 8)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = p.gen.Process(context.Background(), req)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else if !errors.Is(err, ErrJobNotPending) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 {
		t.Errorf("successful runs = %d, want 1", succeeded)
	}
	if p.exams.questionCount() != 4 {
		t.Errorf("questions = %d, want 4", p.exams.questionCount())
	}
}

func TestProcessPartialQuestionInsertLeavesNothing(t *testing.T) {
	synth := &stubSynthesizer{}
	p := newPipeline(t, synth)
	p.exams.failOnNthQ = 3
	job := p.upload(t, "notes.pdf", 2048)

	err := p.gen.Process(context.Background(), biologyRequestFor(job.ID, 5, 25))
	if !errors.Is(err, errInjected) {
		t.Fatalf("err = %v, want injected failure", err)
	}

	exam, questions := p.exams.byJob(job.ID)
	if exam != nil || len(questions) != 0 || p.exams.questionCount() != 0 {
		t.Errorf("exam=%v questions=%d after failed insert", exam, p.exams.questionCount())
	}
	if got := p.jobs.status(job.ID); got != model.JobStatusError {
		t.Errorf("status = %s, want error", got)
	}
}

func TestEndToEndBiologyScenario(t *testing.T) {
	provider := &scriptedProvider{replies: []providerReply{{text: wellFormedOutput(t, 4)}}}
	synth := NewSynthesisService(provider, 8000, 0.2, testLog)
	p := newPipeline(t, synth)
	job := p.upload(t, "Cell Biology.pdf", 5*1024)

	jobID, err := p.gen.Trigger(context.Background(), p.ownerID, biologyRequestFor(job.ID, 4, 20))
	if err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if jobID != job.ID || len(p.queue.reqs) != 1 {
		t.Fatalf("Trigger returned %s with %d queued", jobID, len(p.queue.reqs))
	}

	if err := p.gen.Process(context.Background(), p.queue.reqs[0]); err != nil {
		t.Fatalf("Process: %v", err)
	}

	got, _ := p.jobs.GetByID(context.Background(), job.ID)
	if got.Status != model.JobStatusCompleted || got.ExamID == nil {
		t.Fatalf("job = %s exam=%v, want completed", got.Status, got.ExamID)
	}

	exam, questions := p.exams.byJob(job.ID)
	if exam.TotalMarks != 20 {
		t.Errorf("TotalMarks = %d, want 20", exam.TotalMarks)
	}
	if exam.Title != "Cell Biology - Generated Exam" || exam.Status != model.ExamStatusDraft || exam.DurationMinutes != 30 {
		t.Errorf("exam = %+v", exam)
	}
	if len(questions) != 4 {
		t.Fatalf("questions = %d, want 4", len(questions))
	}
	for _, q := range questions {
		if q.Marks != 5 {
			t.Errorf("question marks = %d, want 5", q.Marks)
		}
	}
}

func TestTriggerValidation(t *testing.T) {
	p := newPipeline(t, &stubSynthesizer{})
	job := p.upload(t, "notes.pdf", 2048)

	tests := []struct {
		name    string
		ownerID uuid.UUID
		req     model.GenerationRequest
		want    error
	}{
		{"more questions than marks", p.ownerID, biologyRequestFor(job.ID, 5, 4), ErrInvalidRequest},
		{"zero questions", p.ownerID, biologyRequestFor(job.ID, 0, 4), ErrInvalidRequest},
		{"unknown job", p.ownerID, biologyRequestFor(uuid.New(), 2, 4), ErrNotFound},
		{"other owner", uuid.New(), biologyRequestFor(job.ID, 2, 4), ErrNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.gen.Trigger(context.Background(), tt.ownerID, tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if len(p.queue.reqs) != 0 {
		t.Errorf("queued %d invalid requests", len(p.queue.reqs))
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second}
	for attempt, want := range map[int]time.Duration{1: time.Second, 2: 2 * time.Second, 3: 4 * time.Second} {
		if got := p.Delay(attempt); got != want {
			t.Errorf("Delay(%d) = %v, want %v", attempt, got, want)
		}
	}
}

func biologyRequestFor(jobID uuid.UUID, count, marks int) model.GenerationRequest {
	req := biologyRequest(count, marks)
	req.JobID = jobID
	return req
}

// flakyJobs fails the first transition into failOn with a connection error.
type flakyJobs struct {
	*memJobs
	failOn model.JobStatus
	failed bool
}

func (f *flakyJobs) Transition(ctx context.Context, id uuid.UUID, from, to model.JobStatus, t model.JobTransition) error {
	if to == f.failOn && !f.failed {
		f.failed = true
		return errors.New("connection reset by peer")
	}
	return f.memJobs.Transition(ctx, id, from, to, t)
}

func TestProcessRecordsFailureWhenTransitionErrors(t *testing.T) {
	tests := []struct {
		name   string
		failOn model.JobStatus
	}{
		{"entering extracting", model.JobStatusExtracting},
		{"entering synthesizing", model.JobStatusSynthesizing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			synth := &stubSynthesizer{}
			p := newPipeline(t, synth)
			p.gen.jobs = &flakyJobs{memJobs: p.jobs, failOn: tt.failOn}
			job := p.upload(t, "notes.pdf", 2048)

			err := p.gen.Process(context.Background(), biologyRequestFor(job.ID, 4, 20))
			if err == nil || !strings.Contains(err.Error(), "connection reset") {
				t.Fatalf("Process err = %v, want the transition error", err)
			}

			got, _ := p.jobs.GetByID(context.Background(), job.ID)
			if got.Status != model.JobStatusError {
				t.Fatalf("status = %s, want error", got.Status)
			}
			if got.ErrorReason == nil || !strings.Contains(*got.ErrorReason, "unexpectedly") {
				t.Errorf("reason = %v", got.ErrorReason)
			}
			if synth.callCount() != 0 {
				t.Errorf("synthesizer called %d times", synth.callCount())
			}
			if p.exams.questionCount() != 0 {
				t.Errorf("questions = %d, want 0", p.exams.questionCount())
			}
		})
	}
}

func TestListJobsReturnsOwnersJobsNewestFirst(t *testing.T) {
	p := newPipeline(t, &stubSynthesizer{})
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	older := p.upload(t, "cells.pdf", 2000)
	newer := p.upload(t, "plants.pdf", 2000)
	p.jobs.setCreatedAt(older.ID, base)
	p.jobs.setCreatedAt(newer.ID, base.Add(time.Minute))

	got, err := p.gen.ListJobs(context.Background(), p.ownerID, 0)
	if err != nil {
		t.Fatalf("ListJobs: %v", err)
	}
	if len(got) != 2 || got[0].ID != newer.ID || got[1].ID != older.ID {
		t.Fatalf("jobs = %+v, want [plants cells]", got)
	}

	none, err := p.gen.ListJobs(context.Background(), uuid.New(), 0)
	if err != nil {
		t.Fatalf("ListJobs other owner: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("other owner sees %d jobs", len(none))
	}
}
