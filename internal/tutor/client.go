// Package tutor answers a student's doubt about a practice question with a
// language model.
package tutor

import (
	"context"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/param"
	"github.com/golang/glog"
	"github.com/pkg/errors"
)

// LLMClient is the interface every tutor backend satisfies.
type LLMClient interface {
	Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error)
}

// LLMResponse holds the raw response content and token usage.
type LLMResponse struct {
	Content      string
	PromptTokens int
	OutputTokens int
}

// NewClient picks a backend by mode: "api", "cli" or "mock".
func NewClient(mode, model, apiKey, cliPath string) (LLMClient, error) {
	switch mode {
	case "api":
		if apiKey == "" {
			return nil, errors.New("tutor mode api needs an Anthropic API key")
		}
		glog.Infof("[tutor] using Anthropic API: %s", model)
		return NewAPIClient(model, apiKey), nil
	case "cli":
		glog.Infof("[tutor] using CLI at %s", cliPath)
		return NewCLIClient(cliPath), nil
	case "mock", "":
		glog.Info("[tutor] using mock answers")
		return NewMockClient(), nil
	}
	return nil, errors.Errorf("unknown tutor mode %q", mode)
}

// ── APIClient (Anthropic SDK) ───────────────────────────

type APIClient struct {
	client *anthropic.Client
	model  string
	// backoff is the wait before the second attempt.
	backoff time.Duration
}

func NewAPIClient(model, apiKey string, opts ...option.RequestOption) *APIClient {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &APIClient{client: &client, model: model, backoff: 2 * time.Second}
}

func (c *APIClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   1024,
		Temperature: param.NewOpt(0.3),
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
		},
	}

	message, err := c.callWithRetry(ctx, params)
	if err != nil {
		return nil, err
	}

	var responseText string
	for _, block := range message.Content {
		if block.Type == "text" {
			responseText = block.Text
			break
		}
	}
	if responseText == "" {
		return nil, errors.New("no text content in API response")
	}

	return &LLMResponse{
		Content:      responseText,
		PromptTokens: int(message.Usage.InputTokens),
		OutputTokens: int(message.Usage.OutputTokens),
	}, nil
}

func (c *APIClient) callWithRetry(ctx context.Context, params anthropic.MessageNewParams) (*anthropic.Message, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			glog.Warningf("[tutor] retrying Anthropic API call in %v (attempt %d)", c.backoff, attempt+1)
			select {
			case <-time.After(c.backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err == nil {
			return message, nil
		}
		lastErr = err
		glog.Warningf("[tutor] Anthropic API attempt %d failed: %v", attempt+1, err)
	}
	return nil, errors.Wrap(lastErr, "anthropic API failed after retries")
}

// ── MockClient (local development) ──────────────────────

type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

// Generate echoes the doubt back with a canned walkthrough so the page can
// be exercised without a model.
func (m *MockClient) Generate(ctx context.Context, systemPrompt string, userPrompt string) (*LLMResponse, error) {
	doubt := userPrompt
	if i := strings.LastIndex(userPrompt, doubtHeader); i >= 0 {
		doubt = strings.TrimSpace(userPrompt[i+len(doubtHeader):])
	}
	return &LLMResponse{
		Content: "[Mock] You asked: " + doubt + "\n\n" +
			"Start by restating what the question asks, then eliminate choices that contradict the passage. " +
			"Compare the remaining choices against the rationale.",
		PromptTokens: len(systemPrompt+userPrompt) / 4,
		OutputTokens: 60,
	}, nil
}
