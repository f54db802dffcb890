package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SMITGHORI/examgenius-platform/internal/config"
)

// Vertex calls a Gemini model on Vertex AI.
type Vertex struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewVertex connects with application default credentials.
func NewVertex(ctx context.Context, cfg config.LLMConfig) (*Vertex, error) {
	if cfg.VertexProject == "" || cfg.VertexLocation == "" {
		return nil, fmt.Errorf("llm: VERTEX_PROJECT_ID and VERTEX_REGION are required")
	}
	client, err := genai.NewClient(ctx, cfg.VertexProject, cfg.VertexLocation)
	if err != nil {
		return nil, fmt.Errorf("genai.NewClient: %w", err)
	}
	return &Vertex{client: client, model: cfg.VertexModel, timeout: cfg.Timeout}, nil
}

// Complete runs one GenerateContent call and concatenates the text parts of
// the first candidate.
func (v *Vertex) Complete(ctx context.Context, systemPrompt, userPrompt string, params Params) (string, error) {
	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	model := v.client.GenerativeModel(v.model)
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}
	model.GenerationConfig = genai.GenerationConfig{
		Temperature: genai.Ptr(params.Temperature),
	}
	if params.JSON {
		model.GenerationConfig.ResponseMIMEType = "application/json"
	}
	if params.MaxTokens > 0 {
		model.GenerationConfig.MaxOutputTokens = genai.Ptr(int32(params.MaxTokens))
	}

	resp, err := model.GenerateContent(ctx, genai.Text(userPrompt))
	if err != nil {
		return "", classifyVertex(err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", nil
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	return sb.String(), nil
}

// Close releases the underlying client.
func (v *Vertex) Close() error {
	return v.client.Close()
}

func classifyVertex(err error) *Error {
	out := &Error{Kind: KindNetwork, Provider: "vertex", Err: err}

	if isTimeout(err) {
		out.Kind = KindTimeout
		return out
	}

	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		out.Kind = kindFromStatus(gerr.Code)
		return out
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			out.Kind = KindUnauthorized
		case codes.ResourceExhausted:
			out.Kind = KindRateLimited
		case codes.DeadlineExceeded:
			out.Kind = KindTimeout
		}
	}
	return out
}
