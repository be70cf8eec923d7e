package providers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

var anthropicModels = []string{
	"claude-opus-4-5-20251101",
	"claude-sonnet-4-5-20250929",
	"claude-haiku-4-5-20251001",
	"claude-3-5-haiku-20241022",
}

// AnthropicAdapter handles Anthropic Claude requests through the official SDK
type AnthropicAdapter struct {
	base
	client   anthropic.Client
	settings Settings
}

// NewAnthropicAdapter creates a new Anthropic adapter. baseURL is optional.
func NewAnthropicAdapter(name, displayName, apiKey, baseURL string, s Settings, supported []string, httpClient *http.Client) (*AnthropicAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic provider %s: API key not configured", name)
	}

	// The failover chain is the retry policy
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &AnthropicAdapter{
		base:     newBase(name, displayName, models.KindLLM, supported),
		client:   anthropic.NewClient(opts...),
		settings: s,
	}, nil
}

// Invoke sends a Messages API request
func (a *AnthropicAdapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = a.settings.DefaultModel
	}

	maxTokens := a.settings.MaxTokens
	if req.MaxTokens != nil && *req.MaxTokens > 0 {
		maxTokens = *req.MaxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	messages, system := convertAnthropicMessages(chatMessages(req))
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}
	if req.TopP != nil {
		params.TopP = anthropic.Float(float64(*req.TopP))
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("Anthropic API error: %w", err)
	}

	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	input := int(msg.Usage.InputTokens)
	output := int(msg.Usage.OutputTokens)
	return &Result{
		Content:          content.String(),
		Model:            string(msg.Model),
		PromptTokens:     input,
		CompletionTokens: output,
		TotalTokens:      input + output,
		Metadata: map[string]any{
			"stop_reason": string(msg.StopReason),
		},
	}, nil
}

// HealthCheck lists a single model
func (a *AnthropicAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.client.Models.List(ctx, anthropic.ModelListParams{Limit: anthropic.Int(1)})
	return err
}

// convertAnthropicMessages splits out system messages, which Anthropic takes separately
func convertAnthropicMessages(msgs []openai.ChatCompletionMessage) ([]anthropic.MessageParam, string) {
	var system []string
	result := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case openai.ChatMessageRoleSystem:
			system = append(system, m.Content)
		case openai.ChatMessageRoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	return result, strings.Join(system, "\n\n")
}
