// Package requestlog persists one record per failover execution.
package requestlog

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/steelburn/candidacy-sub001/internal/orchestrator/failover"
	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// DefaultWriteTimeout bounds a single log write
const DefaultWriteTimeout = 5 * time.Second

// Store is the persistence side of the request log
type Store interface {
	LogRequest(ctx context.Context, l *models.RequestLog) error
	RecentRequestLogs(ctx context.Context, serviceType string, limit int) ([]models.RequestLog, error)
	ProviderStats(ctx context.Context, since time.Time) ([]models.ProviderStats, error)
}

// Sink writes envelopes to the store. Write failures are logged and never
// reach the caller.
type Sink struct {
	store   Store
	timeout time.Duration
}

// NewSink creates a sink. A zero timeout means DefaultWriteTimeout.
func NewSink(store Store, timeout time.Duration) *Sink {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Sink{store: store, timeout: timeout}
}

// Record persists env. The write runs on a context detached from ctx so a
// request cancelled by its caller is still logged.
func (s *Sink) Record(ctx context.Context, env *failover.Envelope) {
	if env == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.WithFields(log.Fields{
				"event":      "request_log_panic",
				"request_id": env.RequestID,
				"panic":      rec,
			}).Error("Request log write panicked")
		}
	}()

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	if err := s.store.LogRequest(writeCtx, env.RequestLog()); err != nil {
		log.WithFields(log.Fields{
			"event":        "request_log_failed",
			"request_id":   env.RequestID,
			"service_type": env.ServiceType,
			"provider":     env.Provider,
		}).WithError(err).Warn("Failed to write request log")
	}
}

// Recent returns the newest request logs, optionally for one service type
func (s *Sink) Recent(ctx context.Context, serviceType string, limit int) ([]models.RequestLog, error) {
	return s.store.RecentRequestLogs(ctx, serviceType, limit)
}

// Stats aggregates per-provider outcomes over the trailing window
func (s *Sink) Stats(ctx context.Context, window time.Duration) ([]models.ProviderStats, error) {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return s.store.ProviderStats(ctx, time.Now().Add(-window))
}
