package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/SMITGHORI/examgenius-platform/internal/llm"
	"github.com/SMITGHORI/examgenius-platform/internal/model"
)

// SynthesisService turns source text into a validated question set with a
// single model call.
type SynthesisService struct {
	provider       llm.Provider
	maxSourceChars int
	params         llm.Params
	log            zerolog.Logger
}

// NewSynthesisService creates a new SynthesisService. Source text longer than
// maxSourceChars is truncated, not summarized.
func NewSynthesisService(provider llm.Provider, maxSourceChars int, temperature float32, log zerolog.Logger) *SynthesisService {
	return &SynthesisService{
		provider:       provider,
		maxSourceChars: maxSourceChars,
		params:         llm.Params{Temperature: temperature, JSON: true},
		log:            log.With().Str("component", "synthesis_service").Logger(),
	}
}

// Synthesize returns exactly the validated questions, marks assigned so they
// sum to req.TotalMarks, or a *SynthesisError. Ids are left unset.
func (s *SynthesisService) Synthesize(ctx context.Context, title, text string, req model.GenerationRequest) ([]model.Question, error) {
	prompt := buildSynthesisPrompt(title, truncateRunes(text, s.maxSourceChars), req)

	raw, err := s.provider.Complete(ctx, synthesisSystemPrompt, prompt, s.params)
	if err != nil {
		var provErr *llm.Error
		if errors.As(err, &provErr) {
			return nil, &SynthesisError{Kind: SynthesisProviderUnavailable, Detail: string(provErr.Kind), Err: err}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &SynthesisError{Kind: SynthesisProviderUnavailable, Err: err}
	}

	questions, err := parseQuestions(raw)
	if err != nil {
		s.log.Debug().Str("job_id", req.JobID.String()).Str("raw", raw).Msg("Rejected model output")
		return nil, err
	}

	if len(questions) > req.DesiredQuestionCount {
		s.log.Info().
			Int("returned", len(questions)).
			Int("requested", req.DesiredQuestionCount).
			Msg("Truncating surplus questions")
		questions = questions[:req.DesiredQuestionCount]
	}

	assignMarks(questions, req.TotalMarks)
	return questions, nil
}
