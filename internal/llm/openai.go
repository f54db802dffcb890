package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/SMITGHORI/examgenius-platform/internal/config"
)

// OpenAI wraps an OpenAI-compatible chat completion API.
type OpenAI struct {
	api   *openai.Client
	model string
	cfg   config.LLMConfig
}

// NewOpenAI creates a client; BaseURL may point at any compatible gateway.
func NewOpenAI(cfg config.LLMConfig) *OpenAI {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &OpenAI{
		api:   openai.NewClientWithConfig(clientCfg),
		model: cfg.Model,
		cfg:   cfg,
	}
}

// Complete sends one system + user exchange and returns the first choice.
// params.JSON is not forwarded as a response format.
func (c *OpenAI) Complete(ctx context.Context, systemPrompt, userPrompt string, params Params) (string, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}

	resp, err := c.api.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", classifyOpenAI(err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyOpenAI(err error) *Error {
	out := &Error{Kind: KindNetwork, Provider: "openai", Err: err}

	var apiErr *openai.APIError
	var reqErr *openai.RequestError
	switch {
	case isTimeout(err):
		out.Kind = KindTimeout
	case errors.As(err, &apiErr):
		out.Kind = kindFromStatus(apiErr.HTTPStatusCode)
	case errors.As(err, &reqErr):
		out.Kind = kindFromStatus(reqErr.HTTPStatusCode)
	}
	return out
}
