package failover

import (
	"context"

	"github.com/google/uuid"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// Error types carried by envelopes and attempt records
const (
	ErrorTypeTimeout    = "timeout"
	ErrorTypeInvocation = "invocation"
	ErrorTypeNoProvider = "no_provider"
	ErrorTypeCancelled  = "cancelled"
)

// Skip reasons recorded on skipped attempts
const (
	ReasonNotFound           = "not_found"
	ReasonUnavailable        = "unavailable"
	ReasonCapabilityMismatch = "capability_mismatch"
)

// NoProvider is the provider name reported when nothing served the request
const NoProvider = "none"

// Usage is the token usage of the serving provider
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Envelope is the uniform result of one chain execution
type Envelope struct {
	RequestID       string              `json:"request_id"`
	ServiceType     string              `json:"service_type"`
	Kind            string              `json:"kind"`
	Success         bool                `json:"success"`
	Content         string              `json:"content,omitempty"`
	Error           string              `json:"error,omitempty"`
	ErrorType       string              `json:"error_type,omitempty"`
	Provider        string              `json:"provider"`
	Model           string              `json:"model,omitempty"`
	DurationMs      int64               `json:"duration_ms"`
	FailoverAttempt int                 `json:"failover_attempt"`
	TotalAttempts   int                 `json:"total_attempts"`
	SkippedCount    int                 `json:"skipped_count"`
	Usage           Usage               `json:"usage"`
	Metadata        map[string]any      `json:"metadata,omitempty"`
	Attempts        []models.AttemptLog `json:"attempts"`
}

// RequestLog converts the envelope into its persisted form
func (e *Envelope) RequestLog() *models.RequestLog {
	l := &models.RequestLog{
		ID:               uuid.NewString(),
		RequestID:        e.RequestID,
		ServiceType:      e.ServiceType,
		Kind:             e.Kind,
		Provider:         e.Provider,
		Model:            e.Model,
		Success:          e.Success,
		PromptTokens:     e.Usage.PromptTokens,
		CompletionTokens: e.Usage.CompletionTokens,
		TotalTokens:      e.Usage.TotalTokens,
		DurationMs:       e.DurationMs,
		FailoverAttempt:  e.FailoverAttempt,
		TotalAttempts:    e.TotalAttempts,
		SkippedCount:     e.SkippedCount,
		Attempts:         e.Attempts,
	}
	if e.ErrorType != "" {
		errType := e.ErrorType
		l.ErrorType = &errType
	}
	if e.Error != "" {
		msg := e.Error
		l.ErrorMessage = &msg
	}
	return l
}

type requestIDKey struct{}

// WithRequestID attaches a caller-supplied request id to ctx
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFrom returns the request id attached to ctx, if any
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
