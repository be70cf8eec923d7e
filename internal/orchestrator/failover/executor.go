// Package failover runs a resolved chain against a request, one provider at
// a time, until one succeeds.
package failover

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/steelburn/candidacy-sub001/internal/orchestrator/chain"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/providers"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/registry"
	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// SnapshotSource hands out the registry snapshot an execution runs against
type SnapshotSource interface {
	Snapshot() *registry.Snapshot
}

// Recorder persists one record per execution. Implementations must not fail
// the caller.
type Recorder interface {
	Record(ctx context.Context, env *Envelope)
}

// Executor runs chains sequentially
type Executor struct {
	registry SnapshotSource
	recorder Recorder
}

// NewExecutor creates an executor. recorder may be nil.
func NewExecutor(reg SnapshotSource, recorder Recorder) *Executor {
	return &Executor{registry: reg, recorder: recorder}
}

// Execute tries each entry in order and returns on the first success.
// Missing, unavailable or incapable providers are skipped without counting as
// attempts. Failed and timed-out invocations count and the chain continues.
// The registry snapshot is captured once, so a concurrent reload does not
// affect this execution.
func (e *Executor) Execute(ctx context.Context, serviceType string, entries []chain.Entry, req providers.Request) *Envelope {
	snap := e.registry.Snapshot()
	start := time.Now()

	requestID := RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	env := &Envelope{
		RequestID:   requestID,
		ServiceType: serviceType,
		Kind:        requestKind(req),
		Attempts:    make([]models.AttemptLog, 0, len(entries)),
	}
	logger := log.WithFields(log.Fields{
		"request_id":   requestID,
		"service_type": serviceType,
		"generation":   snap.Generation(),
	})

	var lastErr error
	cancelled := false

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			cancelled, lastErr = true, err
			break
		}

		r := req
		if entry.Model != "" {
			r.Model = entry.Model
		}

		if err := e.check(ctx, snap, entry.Provider, r); err != nil {
			if ctx.Err() != nil {
				cancelled, lastErr = true, ctx.Err()
				break
			}
			env.skip(entry, err)
			logger.WithFields(log.Fields{
				"event":    "skipped",
				"provider": entry.Provider,
				"model":    r.Model,
			}).WithError(err).Info("Skipping provider")
			continue
		}

		adapter, _ := snap.GetAdapter(entry.Provider)
		env.TotalAttempts++

		result, dur, err := invoke(ctx, snap.Timeout(entry.Provider), adapter, r)
		if err == nil {
			env.succeed(entry, r, result, dur)
			env.DurationMs = time.Since(start).Milliseconds()
			logger.WithFields(log.Fields{
				"event":            "succeeded",
				"provider":         entry.Provider,
				"model":            env.Model,
				"failover_attempt": env.FailoverAttempt,
				"duration_ms":      env.DurationMs,
			}).Info("Chain succeeded")
			e.record(ctx, env)
			return env
		}

		if ctx.Err() != nil {
			env.attempt(entry, r, ErrorTypeCancelled, dur, err)
			cancelled, lastErr = true, ctx.Err()
			break
		}

		invErr := &providers.InvocationError{
			Provider: entry.Provider,
			Timeout:  errors.Is(err, context.DeadlineExceeded),
			Err:      err,
		}
		reason := ErrorTypeInvocation
		if invErr.Timeout {
			reason = ErrorTypeTimeout
		}
		env.attempt(entry, r, reason, dur, invErr)
		lastErr = invErr

		logger.WithFields(log.Fields{
			"event":       "attempt_failed",
			"provider":    entry.Provider,
			"model":       r.Model,
			"attempt":     env.TotalAttempts,
			"error_type":  reason,
			"duration_ms": dur.Milliseconds(),
		}).WithError(err).Warn("Provider failed, trying next")
	}

	env.Provider = NoProvider
	env.DurationMs = time.Since(start).Milliseconds()

	switch {
	case cancelled:
		env.ErrorType = ErrorTypeCancelled
		env.Error = fmt.Sprintf("request cancelled after %d attempts: %v", env.TotalAttempts, lastErr)
		logger.WithFields(log.Fields{"event": "cancelled", "attempts": env.TotalAttempts}).Warn("Chain cancelled by caller")
	default:
		exhausted := &providers.ChainExhaustedError{
			ServiceType: serviceType,
			Attempts:    env.TotalAttempts,
			Skipped:     env.SkippedCount,
			Last:        lastErr,
		}
		env.Error = exhausted.Error()
		env.ErrorType = ErrorTypeNoProvider
		var invErr *providers.InvocationError
		if errors.As(lastErr, &invErr) {
			env.ErrorType = ErrorTypeInvocation
			if invErr.Timeout {
				env.ErrorType = ErrorTypeTimeout
			}
		}
		logger.WithFields(log.Fields{
			"event":    "exhausted",
			"attempts": env.TotalAttempts,
			"skipped":  env.SkippedCount,
		}).Error(env.Error)
	}

	e.record(ctx, env)
	return env
}

// check returns the skip error for a chain entry, or nil if it should be invoked
func (e *Executor) check(ctx context.Context, snap *registry.Snapshot, name string, req providers.Request) error {
	adapter, err := snap.GetAdapter(name)
	if err != nil {
		return err
	}

	kind := requestKind(req)
	if adapter.Kind() != kind {
		return &providers.CapabilityMismatchError{Provider: name, Capability: kind}
	}
	if capability := providers.Capability(kind, req); !adapter.Supports(capability) {
		return &providers.CapabilityMismatchError{Provider: name, Capability: capability}
	}

	return snap.Probe(ctx, name)
}

// invoke calls the adapter under the provider timeout. The call is abandoned
// when the timeout or the caller's context fires, even if the adapter ignores ctx.
func invoke(ctx context.Context, timeout time.Duration, adapter providers.Adapter, req providers.Request) (*providers.Result, time.Duration, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type outcome struct {
		result *providers.Result
		err    error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("provider panicked: %v", rec)}
			}
		}()
		res, err := adapter.Invoke(callCtx, req)
		if err == nil && res == nil {
			err = errors.New("provider returned no result")
		}
		done <- outcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return out.result, time.Since(start), out.err
	case <-callCtx.Done():
		return nil, time.Since(start), callCtx.Err()
	}
}

func (e *Executor) record(ctx context.Context, env *Envelope) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(ctx, env)
}

func requestKind(req providers.Request) string {
	if req.FilePath != "" {
		return models.KindDocument
	}
	return models.KindLLM
}

func (env *Envelope) skip(entry chain.Entry, err error) {
	reason := ReasonUnavailable
	var nf *providers.ProviderNotFoundError
	var cm *providers.CapabilityMismatchError
	switch {
	case errors.As(err, &nf):
		reason = ReasonNotFound
	case errors.As(err, &cm):
		reason = ReasonCapabilityMismatch
	}

	env.SkippedCount++
	env.Attempts = append(env.Attempts, models.AttemptLog{
		Provider: entry.Provider,
		Model:    entry.Model,
		Skipped:  true,
		Reason:   reason,
		Error:    err.Error(),
	})
}

func (env *Envelope) attempt(entry chain.Entry, req providers.Request, reason string, dur time.Duration, err error) {
	env.Attempts = append(env.Attempts, models.AttemptLog{
		Provider:   entry.Provider,
		Model:      req.Model,
		Reason:     reason,
		DurationMs: dur.Milliseconds(),
		Error:      err.Error(),
	})
}

func (env *Envelope) succeed(entry chain.Entry, req providers.Request, res *providers.Result, dur time.Duration) {
	model := res.Model
	if model == "" {
		model = req.Model
	}

	env.Success = true
	env.Content = res.Content
	env.Provider = entry.Provider
	env.Model = model
	env.FailoverAttempt = env.TotalAttempts
	env.Usage = Usage{
		PromptTokens:     res.PromptTokens,
		CompletionTokens: res.CompletionTokens,
		TotalTokens:      res.TotalTokens,
	}
	env.Metadata = res.Metadata
	env.Attempts = append(env.Attempts, models.AttemptLog{
		Provider:   entry.Provider,
		Model:      model,
		DurationMs: dur.Milliseconds(),
	})
}
