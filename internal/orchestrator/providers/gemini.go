package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiKeyHeader carries the API key. Keys in the query string end up in
// *url.Error text on transport failures.
const geminiKeyHeader = "x-goog-api-key"

var geminiModels = []string{
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-2.0-flash",
	"gemini-2.0-flash-exp",
}

// GeminiAdapter handles Google Gemini REST requests
type GeminiAdapter struct {
	base
	apiKey     string
	baseURL    string
	httpClient *http.Client
	settings   Settings
}

type geminiRequest struct {
	Contents          []geminiContent         `json:"contents"`
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	Temperature     *float32 `json:"temperature,omitempty"`
	TopP            *float32 `json:"topP,omitempty"`
	MaxOutputTokens *int     `json:"maxOutputTokens,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
		TotalTokenCount      int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// NewGeminiAdapter creates a new Gemini adapter. baseURL is optional.
func NewGeminiAdapter(name, displayName, apiKey, baseURL string, s Settings, supported []string, httpClient *http.Client) (*GeminiAdapter, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini provider %s: API key not configured", name)
	}
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &GeminiAdapter{
		base:       newBase(name, displayName, models.KindLLM, supported),
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		settings:   s,
	}, nil
}

// Invoke calls generateContent
func (a *GeminiAdapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	model := req.Model
	if model == "" {
		model = a.settings.DefaultModel
	}

	messages := chatMessages(req)
	body, err := json.Marshal(a.convertRequest(req, messages))
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent", a.baseURL, url.PathEscape(model))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(geminiKeyHeader, a.apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("Gemini API error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Gemini API error: %w", &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)})
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(geminiResp.Candidates) == 0 {
		return nil, fmt.Errorf("Gemini API returned no candidates")
	}

	var content strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		content.WriteString(part.Text)
	}

	result := &Result{
		Content:          content.String(),
		Model:            model,
		PromptTokens:     geminiResp.UsageMetadata.PromptTokenCount,
		CompletionTokens: geminiResp.UsageMetadata.CandidatesTokenCount,
		TotalTokens:      geminiResp.UsageMetadata.TotalTokenCount,
		Metadata: map[string]any{
			"finish_reason": geminiResp.Candidates[0].FinishReason,
		},
	}
	estimateUsage(result, messages)
	return result, nil
}

// HealthCheck lists one model
func (a *GeminiAdapter) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/models?pageSize=1", nil)
	if err != nil {
		return err
	}
	req.Header.Set(geminiKeyHeader, a.apiKey)
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

// convertRequest converts to Gemini format
func (a *GeminiAdapter) convertRequest(req Request, messages []openai.ChatCompletionMessage) geminiRequest {
	geminiReq := geminiRequest{
		Contents: make([]geminiContent, 0, len(messages)),
	}

	var system []string
	for _, msg := range messages {
		role := msg.Role
		switch role {
		case openai.ChatMessageRoleSystem:
			system = append(system, msg.Content)
			continue
		case openai.ChatMessageRoleAssistant:
			role = "model"
		default:
			role = "user"
		}
		geminiReq.Contents = append(geminiReq.Contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Content}},
		})
	}
	if len(system) > 0 {
		geminiReq.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}

	maxTokens := req.MaxTokens
	if maxTokens == nil && a.settings.MaxTokens > 0 {
		mt := a.settings.MaxTokens
		maxTokens = &mt
	}
	if req.Temperature != nil || maxTokens != nil || req.TopP != nil {
		geminiReq.GenerationConfig = &geminiGenerationConfig{
			Temperature:     req.Temperature,
			TopP:            req.TopP,
			MaxOutputTokens: maxTokens,
		}
	}

	return geminiReq
}
