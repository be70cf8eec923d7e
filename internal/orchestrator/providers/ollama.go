package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// OllamaAdapter talks to a local or self-hosted Ollama server
type OllamaAdapter struct {
	base
	baseURL    string
	httpClient *http.Client
	settings   Settings
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  map[string]any  `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model           string        `json:"model"`
	Message         ollamaMessage `json:"message"`
	DoneReason      string        `json:"done_reason"`
	PromptEvalCount int           `json:"prompt_eval_count"`
	EvalCount       int           `json:"eval_count"`
}

// NewOllamaAdapter creates an Ollama adapter. With no configured models it
// accepts any model name and lets the server reject unknown ones.
func NewOllamaAdapter(name, displayName, baseURL string, s Settings, supported []string, httpClient *http.Client) *OllamaAdapter {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &OllamaAdapter{
		base:       newBase(name, displayName, models.KindLLM, supported),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		settings:   s,
	}
}

// Supports also matches "name:tag" when the bare name is configured
func (a *OllamaAdapter) Supports(capability string) bool {
	if a.base.Supports(capability) {
		return true
	}
	bare, _, ok := strings.Cut(capability, ":")
	return ok && a.base.Supports(bare)
}

// Invoke sends a non-streaming /api/chat request
func (a *OllamaAdapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = a.settings.DefaultModel
	}

	messages := chatMessages(req)
	cr := ollamaChatRequest{
		Model:    model,
		Messages: make([]ollamaMessage, 0, len(messages)),
		Stream:   false,
		Options:  map[string]any{},
	}
	for _, m := range messages {
		cr.Messages = append(cr.Messages, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	if req.Temperature != nil {
		cr.Options["temperature"] = *req.Temperature
	}
	if req.TopP != nil {
		cr.Options["top_p"] = *req.TopP
	}
	if req.MaxTokens != nil {
		cr.Options["num_predict"] = *req.MaxTokens
	}

	body, err := json.Marshal(cr)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("chat with %s: %w", model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("chat with %s: %w", model, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	var chat ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return nil, fmt.Errorf("decoding chat response: %w", err)
	}

	result := &Result{
		Content:          chat.Message.Content,
		Model:            model,
		PromptTokens:     chat.PromptEvalCount,
		CompletionTokens: chat.EvalCount,
		TotalTokens:      chat.PromptEvalCount + chat.EvalCount,
		Metadata: map[string]any{
			"done_reason": chat.DoneReason,
		},
	}
	estimateUsage(result, messages)
	return result, nil
}

// HealthCheck returns nil if GET /api/tags answers 200
func (a *OllamaAdapter) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
