package providers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"dario.cat/mergo"

	"github.com/steelburn/candidacy-sub001/internal/shared/config"
	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// Settings is the typed view of a provider's free-form Config column
type Settings struct {
	APIKey         string            `json:"api_key,omitempty"`
	APIKeyEnv      string            `json:"api_key_env,omitempty"`
	DefaultModel   string            `json:"default_model,omitempty"`
	TimeoutSeconds int               `json:"timeout_seconds,omitempty"`
	MaxTokens      int               `json:"max_tokens,omitempty"`
	Extensions     []string          `json:"extensions,omitempty"`
	MaxFileSizeMB  int               `json:"max_file_size_mb,omitempty"`
	ResultPath     string            `json:"result_path,omitempty"`
	Headers        map[string]string `json:"headers,omitempty"`
}

var typeDefaults = map[string]Settings{
	models.TypeOpenAI:     {DefaultModel: "gpt-4o-mini", MaxTokens: 4096},
	models.TypeAnthropic:  {DefaultModel: "claude-haiku-4-5-20251001", MaxTokens: 4096},
	models.TypeGemini:     {DefaultModel: "gemini-2.5-flash", MaxTokens: 4096},
	models.TypeOllama:     {DefaultModel: "llama3.2", MaxTokens: 4096},
	models.TypePDF:        {Extensions: []string{".pdf"}, MaxFileSizeMB: 50},
	models.TypeDOCX:       {Extensions: []string{".docx"}, MaxFileSizeMB: 50},
	models.TypeHTML:       {Extensions: []string{".html", ".htm"}, MaxFileSizeMB: 20},
	models.TypeMarkdown:   {Extensions: []string{".md", ".markdown"}, MaxFileSizeMB: 20},
	models.TypeText:       {Extensions: []string{".txt", ".text", ".csv", ".log"}, MaxFileSizeMB: 20},
	models.TypeHTTPParser: {Extensions: []string{".pdf", ".docx", ".doc", ".rtf", ".odt", ".html", ".txt"}, MaxFileSizeMB: 50, ResultPath: ".text"},
}

// DecodeSettings converts a provider's Config map into Settings and fills
// unset fields from the defaults for its type
func DecodeSettings(p models.Provider) (Settings, error) {
	var s Settings
	if len(p.Config) > 0 {
		raw, err := json.Marshal(p.Config)
		if err != nil {
			return s, fmt.Errorf("encoding config for %s: %w", p.Name, err)
		}
		if err := json.Unmarshal(raw, &s); err != nil {
			return s, fmt.Errorf("decoding config for %s: %w", p.Name, err)
		}
	}

	if defaults, ok := typeDefaults[p.Type]; ok {
		if err := mergo.Merge(&s, defaults); err != nil {
			return s, fmt.Errorf("applying defaults for %s: %w", p.Name, err)
		}
	}
	return s, nil
}

// Timeout returns the configured invocation timeout, or fallback when unset
func (s Settings) Timeout(fallback time.Duration) time.Duration {
	if s.TimeoutSeconds > 0 {
		return time.Duration(s.TimeoutSeconds) * time.Second
	}
	return fallback
}

// Factory builds adapters from stored provider records
type Factory struct {
	cfg        *config.Config
	httpClient *http.Client
}

// NewFactory creates a factory that resolves credentials and endpoints from cfg
func NewFactory(cfg *config.Config) *Factory {
	return &Factory{
		cfg:        cfg,
		httpClient: &http.Client{},
	}
}

// Build constructs the adapter for p. Enabled rows in providerModels
// become the adapter's supported model set.
func (f *Factory) Build(p models.Provider, providerModels []models.Model) (Adapter, error) {
	s, err := DecodeSettings(p)
	if err != nil {
		return nil, err
	}

	var modelNames []string
	for _, m := range providerModels {
		if m.Enabled && m.ProviderID == p.ID {
			modelNames = append(modelNames, m.Name)
		}
	}

	display := p.Name
	if d, ok := p.Config["display_name"].(string); ok && d != "" {
		display = d
	}

	switch p.Type {
	case models.TypeOpenAI:
		return NewOpenAIAdapter(p.Name, display, f.apiKey(p, s), p.BaseURL, s, modelsOr(modelNames, openAIModels), f.httpClient)
	case models.TypeAnthropic:
		return NewAnthropicAdapter(p.Name, display, f.apiKey(p, s), p.BaseURL, s, modelsOr(modelNames, anthropicModels), f.httpClient)
	case models.TypeGemini:
		return NewGeminiAdapter(p.Name, display, f.apiKey(p, s), p.BaseURL, s, modelsOr(modelNames, geminiModels), f.httpClient)
	case models.TypeOllama:
		baseURL := p.BaseURL
		if baseURL == "" && f.cfg != nil {
			baseURL = f.cfg.OllamaBaseURL
		}
		return NewOllamaAdapter(p.Name, display, baseURL, s, modelNames, f.httpClient), nil
	case models.TypePDF:
		return NewPDFAdapter(p.Name, display, s), nil
	case models.TypeDOCX:
		return NewDOCXAdapter(p.Name, display, s), nil
	case models.TypeHTML:
		return NewHTMLAdapter(p.Name, display, s), nil
	case models.TypeMarkdown:
		return NewMarkdownAdapter(p.Name, display, s), nil
	case models.TypeText:
		return NewTextAdapter(p.Name, display, s), nil
	case models.TypeHTTPParser:
		baseURL := p.BaseURL
		if baseURL == "" && f.cfg != nil {
			baseURL = f.cfg.DocParserURL
		}
		return NewHTTPParserAdapter(p.Name, display, baseURL, s, f.httpClient)
	}

	return nil, fmt.Errorf("unknown provider type %q for %s", p.Type, p.Name)
}

// apiKey resolves a credential: explicit config, then api_key_env, then service config
func (f *Factory) apiKey(p models.Provider, s Settings) string {
	if s.APIKey != "" {
		return s.APIKey
	}
	if s.APIKeyEnv != "" {
		if v := os.Getenv(s.APIKeyEnv); v != "" {
			return v
		}
	}
	if f.cfg == nil {
		return ""
	}
	return f.cfg.APIKey(p.Type)
}

func modelsOr(configured, builtin []string) []string {
	if len(configured) > 0 {
		return configured
	}
	return builtin
}
