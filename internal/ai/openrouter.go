package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const openRouterSystemPrompt = "You are HealthyAI, a careful health assistant. Give general lifestyle and exercise guidance only; never diagnose or recommend medication."

// OpenRouterProvider is an OpenAI-compatible fallback. It yields the reply
// text only; intent, risk and sources are left empty.
type OpenRouterProvider struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

func NewOpenRouterProvider(baseURL, apiKey, model string, timeout time.Duration) *OpenRouterProvider {
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{}
	return &OpenRouterProvider{
		client:  openai.NewClientWithConfig(cfg),
		model:   strings.TrimSpace(model),
		timeout: timeout,
	}
}

func (p *OpenRouterProvider) SendMessage(ctx context.Context, text, sessionID string) (*Reply, error) {
	if p.model == "" {
		return nil, errors.New("openrouter: model is required")
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: p.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: openRouterSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusServiceUnavailable {
			return nil, fmt.Errorf("%w: %s", ErrNotReady, apiErr.Message)
		}
		return nil, fmt.Errorf("openrouter: %w", err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, errors.New("openrouter: empty response")
	}
	return &Reply{
		SessionID: sessionID,
		Reply:     resp.Choices[0].Message.Content,
		Stage:     "answer",
	}, nil
}

// CheckReady reports ready whenever the provider is configured; the hosted
// API has no warm-up phase.
func (p *OpenRouterProvider) CheckReady(ctx context.Context) (*Readiness, error) {
	_ = ctx
	if p.model == "" {
		return &Readiness{Ready: false, Status: "model not configured"}, nil
	}
	return &Readiness{Ready: true, Status: "ready"}, nil
}
