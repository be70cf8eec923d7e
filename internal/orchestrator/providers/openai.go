package providers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/sashabaranov/go-openai"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
	"github.com/steelburn/candidacy-sub001/internal/shared/tokens"
)

var openAIModels = []string{
	"gpt-4",
	"gpt-4-turbo",
	"gpt-4o",
	"gpt-4o-mini",
	"gpt-4.1",
	"gpt-4.1-mini",
	"gpt-3.5-turbo",
}

// OpenAIAdapter talks to OpenAI or any OpenAI-compatible endpoint
type OpenAIAdapter struct {
	base
	client   *openai.Client
	settings Settings
}

// NewOpenAIAdapter creates a new OpenAI adapter. baseURL is optional.
func NewOpenAIAdapter(name, displayName, apiKey, baseURL string, s Settings, supported []string, httpClient *http.Client) (*OpenAIAdapter, error) {
	if apiKey == "" && baseURL == "" {
		return nil, fmt.Errorf("openai provider %s: API key not configured", name)
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if httpClient != nil {
		cfg.HTTPClient = httpClient
	}

	return &OpenAIAdapter{
		base:     newBase(name, displayName, models.KindLLM, supported),
		client:   openai.NewClientWithConfig(cfg),
		settings: s,
	}, nil
}

// Invoke makes a chat completion request
func (a *OpenAIAdapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = a.settings.DefaultModel
	}

	messages := chatMessages(req)
	openaiReq := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	}

	if req.Temperature != nil {
		openaiReq.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		openaiReq.MaxTokens = *req.MaxTokens
	} else if a.settings.MaxTokens > 0 {
		openaiReq.MaxTokens = a.settings.MaxTokens
	}
	if req.TopP != nil {
		openaiReq.TopP = *req.TopP
	}

	resp, err := a.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("OpenAI API returned no choices")
	}

	result := &Result{
		Content:          resp.Choices[0].Message.Content,
		Model:            resp.Model,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Metadata: map[string]any{
			"finish_reason": string(resp.Choices[0].FinishReason),
		},
	}
	if result.Model == "" {
		result.Model = model
	}
	estimateUsage(result, messages)
	return result, nil
}

// HealthCheck lists models, which needs a valid key and a reachable endpoint
func (a *OpenAIAdapter) HealthCheck(ctx context.Context) error {
	_, err := a.client.ListModels(ctx)
	return err
}

// estimateUsage fills token counts for providers that did not report them
func estimateUsage(r *Result, prompt []openai.ChatCompletionMessage) {
	if r.TotalTokens > 0 {
		return
	}
	if r.PromptTokens == 0 {
		r.PromptTokens = tokens.Estimate(promptText(prompt))
	}
	if r.CompletionTokens == 0 {
		r.CompletionTokens = tokens.Estimate(r.Content)
	}
	r.TotalTokens = r.PromptTokens + r.CompletionTokens
}
