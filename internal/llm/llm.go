// Package llm talks to the external generative model that writes exam questions.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/SMITGHORI/examgenius-platform/internal/config"
)

// Params tunes a single completion call.
type Params struct {
	Temperature float32
	MaxTokens   int
	// JSON asks Vertex for an application/json response. OpenAI ignores it:
	// its json_object mode requires a top-level object, and question sets
	// are a top-level array.
	JSON bool
}

// Provider is a single-shot text completion endpoint.
type Provider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string, params Params) (string, error)
}

// ErrorKind classifies provider failures.
type ErrorKind string

const (
	KindUnauthorized ErrorKind = "unauthorized"
	KindRateLimited  ErrorKind = "rate_limited"
	KindNetwork      ErrorKind = "network"
	KindTimeout      ErrorKind = "timeout"
)

// Error is the only error type a Provider returns.
type Error struct {
	Kind     ErrorKind
	Provider string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s provider %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds the provider selected in configuration.
func New(ctx context.Context, cfg config.LLMConfig) (Provider, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", "openai":
		return NewOpenAI(cfg), nil
	case "vertex":
		return NewVertex(ctx, cfg)
	default:
		return nil, fmt.Errorf("llm: unknown provider %q", cfg.Provider)
	}
}

// kindFromStatus maps an HTTP status to a failure class.
func kindFromStatus(code int) ErrorKind {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return KindUnauthorized
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout || code == http.StatusGatewayTimeout:
		return KindTimeout
	default:
		return KindNetwork
	}
}

// isTimeout reports deadline expiry from either the context or the transport.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
