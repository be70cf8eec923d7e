package models

import "time"

// Provider kinds
const (
	KindLLM      = "llm"
	KindDocument = "document"
)

// Provider implementation types
const (
	TypeOpenAI     = "openai"
	TypeAnthropic  = "anthropic"
	TypeGemini     = "gemini"
	TypeOllama     = "ollama"
	TypePDF        = "pdf"
	TypeDOCX       = "docx"
	TypeHTML       = "html"
	TypeMarkdown   = "markdown"
	TypeText       = "text"
	TypeHTTPParser = "http-parser"
)

// Provider represents a configured AI or document-parsing backend
type Provider struct {
	ID        int64
	Name      string
	Type      string
	BaseURL   string
	Enabled   bool
	Config    map[string]any
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Kind reports whether the provider generates text or parses documents
func (p Provider) Kind() string {
	return KindForType(p.Type)
}

// KindForType maps a provider implementation type to its kind
func KindForType(providerType string) string {
	switch providerType {
	case TypeOpenAI, TypeAnthropic, TypeGemini, TypeOllama:
		return KindLLM
	case TypePDF, TypeDOCX, TypeHTML, TypeMarkdown, TypeText, TypeHTTPParser:
		return KindDocument
	}
	return ""
}

// Model represents an LLM model offered by a provider
type Model struct {
	ID            int64
	ProviderID    int64
	Name          string
	DisplayName   string
	Enabled       bool
	Capabilities  []string
	ContextLength int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ServiceMapping places a provider (and optionally a model) in the failover
// chain of a service type. Lower priority runs first.
type ServiceMapping struct {
	ID           int64
	ServiceType  string
	ProviderID   int64
	ProviderName string
	Model        string
	Priority     int
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AttemptLog is the per-entry detail stored with a request log
type AttemptLog struct {
	Provider   string `json:"provider"`
	Model      string `json:"model,omitempty"`
	Skipped    bool   `json:"skipped,omitempty"`
	Reason     string `json:"reason,omitempty"`
	DurationMs int64  `json:"duration_ms,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RequestLog represents one failover execution. Rows are append-only.
type RequestLog struct {
	ID               string
	RequestID        string
	ServiceType      string
	Kind             string
	Provider         string
	Model            string
	Success          bool
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	DurationMs       int64
	FailoverAttempt  int
	TotalAttempts    int
	SkippedCount     int
	ErrorType        *string
	ErrorMessage     *string
	Attempts         []AttemptLog
	CreatedAt        time.Time
}

// ProviderStats aggregates request logs per serving provider
type ProviderStats struct {
	Provider      string  `json:"provider"`
	Requests      int64   `json:"requests"`
	Successes     int64   `json:"successes"`
	Failures      int64   `json:"failures"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
}
