// Package handlers exposes the orchestrator over HTTP.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sashabaranov/go-openai"
	log "github.com/sirupsen/logrus"

	"github.com/steelburn/candidacy-sub001/internal/orchestrator"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/chain"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/failover"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/providers"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/registry"
	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// Service is the orchestrator surface the handlers call
type Service interface {
	Generate(ctx context.Context, serviceType string, req providers.Request) (*failover.Envelope, error)
	Parse(ctx context.Context, serviceType, path string) (*failover.Envelope, error)
	Chain(ctx context.Context, serviceType string) ([]chain.Entry, error)
	Providers() []registry.ProviderInfo
	Reload(ctx context.Context) (*registry.Snapshot, error)
}

// LogReader serves the request log views
type LogReader interface {
	Recent(ctx context.Context, serviceType string, limit int) ([]models.RequestLog, error)
	Stats(ctx context.Context, window time.Duration) ([]models.ProviderStats, error)
}

// Broadcaster asks every instance to reload. Without one, reload is local.
type Broadcaster func(ctx context.Context, reason string) error

type Handler struct {
	svc       Service
	logs      LogReader
	broadcast Broadcaster
}

func NewHandler(svc Service, logs LogReader, broadcast Broadcaster) *Handler {
	return &Handler{svc: svc, logs: logs, broadcast: broadcast}
}

// GenerateRequest is the body of POST /v1/generate/{serviceType}
type GenerateRequest struct {
	Prompt       string                         `json:"prompt"`
	SystemPrompt string                         `json:"system_prompt,omitempty"`
	Messages     []openai.ChatCompletionMessage `json:"messages,omitempty"`
	Temperature  *float32                       `json:"temperature,omitempty"`
	MaxTokens    *int                           `json:"max_tokens,omitempty"`
	TopP         *float32                       `json:"top_p,omitempty"`
}

// ParseRequest is the body of POST /v1/parse
type ParseRequest struct {
	FilePath    string `json:"file_path"`
	ServiceType string `json:"service_type,omitempty"`
}

// HandleGenerate handles POST /v1/generate/{serviceType}
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	env, err := h.svc.Generate(r.Context(), chi.URLParam(r, "serviceType"), providers.Request{
		Prompt:       body.Prompt,
		SystemPrompt: body.SystemPrompt,
		Messages:     body.Messages,
		Temperature:  body.Temperature,
		MaxTokens:    body.MaxTokens,
		TopP:         body.TopP,
	})
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeEnvelope(w, env)
}

// HandleParse handles POST /v1/parse
func (h *Handler) HandleParse(w http.ResponseWriter, r *http.Request) {
	var body ParseRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	env, err := h.svc.Parse(r.Context(), body.ServiceType, body.FilePath)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeEnvelope(w, env)
}

// HandleChain handles GET /v1/chains/{serviceType}
func (h *Handler) HandleChain(w http.ResponseWriter, r *http.Request) {
	serviceType := chi.URLParam(r, "serviceType")
	entries, err := h.svc.Chain(r.Context(), serviceType)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"service_type": serviceType,
		"chain":        entries,
	})
}

// HandleProviders handles GET /v1/providers
func (h *Handler) HandleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"providers": h.svc.Providers()})
}

// HandleReload handles POST /v1/admin/reload
func (h *Handler) HandleReload(w http.ResponseWriter, r *http.Request) {
	if h.broadcast != nil {
		err := h.broadcast(r.Context(), "admin endpoint")
		if err == nil {
			writeJSON(w, http.StatusAccepted, map[string]any{"status": "broadcast"})
			return
		}
		log.WithField("event", "reload_broadcast_failed").WithError(err).Warn("Broadcast failed, reloading locally")
	}

	snap, err := h.svc.Reload(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "reloaded",
		"generation": snap.Generation(),
		"providers":  snap.Len(),
	})
}

// HandleLogs handles GET /v1/logs
func (h *Handler) HandleLogs(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	logs, err := h.logs.Recent(r.Context(), r.URL.Query().Get("service_type"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if logs == nil {
		logs = []models.RequestLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// HandleMetrics handles GET /v1/metrics
func (h *Handler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	window := 24 * time.Hour
	if v := r.URL.Query().Get("since"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "since must be a positive duration such as 24h")
			return
		}
		window = d
	}

	stats, err := h.logs.Stats(r.Context(), window)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if stats == nil {
		stats = []models.ProviderStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"since": window.String(), "providers": stats})
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"providers": len(h.svc.Providers()),
	})
}

func writeEnvelope(w http.ResponseWriter, env *failover.Envelope) {
	w.Header().Set("X-Provider", env.Provider)
	w.Header().Set("X-Failover-Attempt", strconv.Itoa(env.FailoverAttempt))
	w.Header().Set("X-Total-Attempts", strconv.Itoa(env.TotalAttempts))
	w.Header().Set("X-Latency-Ms", strconv.FormatInt(env.DurationMs, 10))

	status := http.StatusOK
	if !env.Success {
		status = http.StatusBadGateway
		if env.ErrorType == failover.ErrorTypeCancelled {
			status = http.StatusRequestTimeout
		}
	}
	writeJSON(w, status, env)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyPrompt),
		errors.Is(err, orchestrator.ErrEmptyFilePath),
		errors.Is(err, orchestrator.ErrPathOutsideRoot),
		errors.Is(err, chain.ErrEmptyServiceType):
		return http.StatusBadRequest
	case errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	}
	return http.StatusUnprocessableEntity
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
