// Package registry holds the provider adapters as an immutable snapshot that
// is swapped atomically on reload.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/steelburn/candidacy-sub001/internal/orchestrator/providers"
	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// Store is the read side of the configuration store the registry is built from
type Store interface {
	ListProviders(ctx context.Context) ([]models.Provider, error)
	ListModels(ctx context.Context) ([]models.Model, error)
}

// Builder turns a provider record into an adapter
type Builder interface {
	Build(p models.Provider, providerModels []models.Model) (providers.Adapter, error)
}

// Options controls probe and invocation timeouts
type Options struct {
	ProbeTimeout    time.Duration
	LLMTimeout      time.Duration
	DocumentTimeout time.Duration
}

// Entry is one registered provider
type Entry struct {
	Provider models.Provider
	Adapter  providers.Adapter
	Timeout  time.Duration
}

// Snapshot is an immutable view of the registered adapters
type Snapshot struct {
	generation   uint64
	builtAt      time.Time
	entries      map[string]Entry
	probeTimeout time.Duration
}

// Registry serves the current snapshot to readers without locking
type Registry struct {
	current atomic.Pointer[Snapshot]
	store   Store
	builder Builder
	opts    Options

	mu         sync.Mutex // serializes Reload
	generation uint64
}

// New creates a registry with an empty snapshot. Call Reload to populate it.
func New(store Store, builder Builder, opts Options) *Registry {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 3 * time.Second
	}
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = 60 * time.Second
	}
	if opts.DocumentTimeout <= 0 {
		opts.DocumentTimeout = 5 * time.Minute
	}

	r := &Registry{store: store, builder: builder, opts: opts}
	r.current.Store(&Snapshot{entries: map[string]Entry{}, probeTimeout: opts.ProbeTimeout, builtAt: time.Now()})
	return r
}

// Snapshot returns the current snapshot. Callers keep using it for the whole
// execution even if a reload happens meanwhile.
func (r *Registry) Snapshot() *Snapshot {
	return r.current.Load()
}

// Reload rebuilds every enabled provider and swaps the snapshot. On a store
// error the previous snapshot stays in place. A provider that fails to build
// is logged and left out.
func (r *Registry) Reload(ctx context.Context) (*Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	provs, err := r.store.ListProviders(ctx)
	if err != nil {
		return r.current.Load(), fmt.Errorf("loading providers: %w", err)
	}
	allModels, err := r.store.ListModels(ctx)
	if err != nil {
		return r.current.Load(), fmt.Errorf("loading models: %w", err)
	}

	entries := make(map[string]Entry, len(provs))
	for _, p := range provs {
		if !p.Enabled {
			continue
		}

		adapter, err := r.builder.Build(p, allModels)
		if err != nil {
			log.WithFields(log.Fields{
				"event":    "provider_build_failed",
				"provider": p.Name,
				"type":     p.Type,
			}).WithError(err).Warn("Skipping provider")
			continue
		}

		entries[p.Name] = Entry{
			Provider: p,
			Adapter:  adapter,
			Timeout:  r.timeoutFor(p),
		}
	}

	r.generation++
	snap := &Snapshot{
		generation:   r.generation,
		builtAt:      time.Now(),
		entries:      entries,
		probeTimeout: r.opts.ProbeTimeout,
	}
	r.current.Store(snap)

	log.WithFields(log.Fields{
		"event":      "registry_reloaded",
		"generation": snap.generation,
		"providers":  len(entries),
	}).Info("Provider registry reloaded")

	return snap, nil
}

// Swap installs a snapshot built from adapters directly, bypassing the store
func (r *Registry) Swap(entries []Entry) *Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	m := make(map[string]Entry, len(entries))
	for _, e := range entries {
		if e.Timeout <= 0 {
			e.Timeout = r.defaultTimeout(e.Adapter.Kind())
		}
		m[e.Adapter.Name()] = e
	}

	r.generation++
	snap := &Snapshot{generation: r.generation, builtAt: time.Now(), entries: m, probeTimeout: r.opts.ProbeTimeout}
	r.current.Store(snap)
	return snap
}

func (r *Registry) timeoutFor(p models.Provider) time.Duration {
	fallback := r.defaultTimeout(p.Kind())
	s, err := providers.DecodeSettings(p)
	if err != nil {
		return fallback
	}
	return s.Timeout(fallback)
}

func (r *Registry) defaultTimeout(kind string) time.Duration {
	if kind == models.KindDocument {
		return r.opts.DocumentTimeout
	}
	return r.opts.LLMTimeout
}

// Generation increases by one on every reload
func (s *Snapshot) Generation() uint64 { return s.generation }

// BuiltAt is when the snapshot was created
func (s *Snapshot) BuiltAt() time.Time { return s.builtAt }

// GetAdapter looks up a provider by name
func (s *Snapshot) GetAdapter(name string) (providers.Adapter, error) {
	e, ok := s.entries[name]
	if !ok {
		return nil, &providers.ProviderNotFoundError{Provider: name}
	}
	return e.Adapter, nil
}

// IsAvailable runs the adapter's health probe bounded by the probe timeout.
// Probe errors, timeouts and panics all report false.
func (s *Snapshot) IsAvailable(ctx context.Context, name string) bool {
	return s.Probe(ctx, name) == nil
}

// Probe is IsAvailable with the reason kept
func (s *Snapshot) Probe(ctx context.Context, name string) error {
	e, ok := s.entries[name]
	if !ok {
		return &providers.ProviderNotFoundError{Provider: name}
	}

	ctx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	// Buffered: the probe may finish after the timeout fired
	done := make(chan error, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- fmt.Errorf("probe panicked: %v", rec)
			}
		}()
		done <- e.Adapter.HealthCheck(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			return &providers.ProviderUnavailableError{Provider: name, Err: err}
		}
		return nil
	case <-ctx.Done():
		return &providers.ProviderUnavailableError{Provider: name, Err: ctx.Err()}
	}
}

// Supports reports whether the named provider handles capability.
// Unknown providers support nothing.
func (s *Snapshot) Supports(name, capability string) bool {
	e, ok := s.entries[name]
	if !ok {
		return false
	}
	return e.Adapter.Supports(capability)
}

// Timeout returns the invocation timeout for the named provider
func (s *Snapshot) Timeout(name string) time.Duration {
	if e, ok := s.entries[name]; ok {
		return e.Timeout
	}
	return 0
}

// ProviderInfo describes a registered provider for listings
type ProviderInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Type        string `json:"type"`
	Kind        string `json:"kind"`
	TimeoutMs   int64  `json:"timeout_ms"`
}

// List returns the registered providers sorted by name
func (s *Snapshot) List() []ProviderInfo {
	out := make([]ProviderInfo, 0, len(s.entries))
	for name, e := range s.entries {
		out = append(out, ProviderInfo{
			Name:        name,
			DisplayName: e.Adapter.DisplayName(),
			Type:        e.Provider.Type,
			Kind:        e.Adapter.Kind(),
			TimeoutMs:   e.Timeout.Milliseconds(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len is the number of registered providers
func (s *Snapshot) Len() int { return len(s.entries) }
