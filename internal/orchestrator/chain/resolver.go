// Package chain resolves the ordered provider chain for a service type.
package chain

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// ErrEmptyServiceType is returned when Resolve is called without a service type
var ErrEmptyServiceType = errors.New("service type is required")

// loadTimeout bounds a shared store read. It is detached from the caller
// that started it, since concurrent callers wait on the same result.
const loadTimeout = 10 * time.Second

// Entry is one link of a failover chain
type Entry struct {
	ProviderID int64  `json:"provider_id,omitempty"`
	Provider   string `json:"provider"`
	Model      string `json:"model,omitempty"`
	Priority   int    `json:"priority"`
}

// Store is the source of configured service mappings
type Store interface {
	ActiveMappings(ctx context.Context, serviceType string) ([]models.ServiceMapping, error)
}

// Resolver turns a service type into an ordered chain
type Resolver struct {
	store Store
	cache *Cache
	group singleflight.Group
}

// NewResolver creates a resolver. cache may be nil.
func NewResolver(store Store, cache *Cache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// Resolve returns the active mappings for serviceType ordered by priority,
// then provider id. With no active mappings the built-in default chain is
// returned, so the result is never empty. Store failures are logged and
// treated as "no mappings".
func (r *Resolver) Resolve(ctx context.Context, serviceType string) ([]Entry, error) {
	serviceType = strings.TrimSpace(serviceType)
	if serviceType == "" {
		return nil, ErrEmptyServiceType
	}

	if r.cache != nil {
		if entries, err := r.cache.Get(ctx, serviceType); err == nil && len(entries) > 0 {
			return entries, nil
		}
	}

	v, err, _ := r.group.Do(serviceType, func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return r.load(loadCtx, serviceType), nil
	})
	if err != nil {
		return nil, err
	}
	return clone(v.([]Entry)), nil
}

func (r *Resolver) load(ctx context.Context, serviceType string) []Entry {
	mappings, err := r.store.ActiveMappings(ctx, serviceType)
	if err != nil {
		log.WithFields(log.Fields{
			"event":        "mappings_unavailable",
			"service_type": serviceType,
		}).WithError(err).Warn("Falling back to default chain")
		return DefaultChain(serviceType)
	}

	entries := make([]Entry, 0, len(mappings))
	for _, m := range mappings {
		if !m.Active {
			continue
		}
		entries = append(entries, Entry{
			ProviderID: m.ProviderID,
			Provider:   m.ProviderName,
			Model:      m.Model,
			Priority:   m.Priority,
		})
	}
	Sort(entries)

	if len(entries) == 0 {
		log.WithFields(log.Fields{
			"event":        "default_chain",
			"service_type": serviceType,
		}).Debug("No active mappings, using default chain")
		entries = DefaultChain(serviceType)
	}

	if r.cache != nil {
		if err := r.cache.Set(ctx, serviceType, entries); err != nil {
			log.WithField("service_type", serviceType).WithError(err).Warn("Failed to cache chain")
		}
	}

	return entries
}

// Invalidate drops cached chains so the next Resolve reads the store
func (r *Resolver) Invalidate(ctx context.Context) error {
	if r.cache == nil {
		return nil
	}
	n, err := r.cache.Invalidate(ctx)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"event": "chain_cache_invalidated", "keys": n}).Debug("Chain cache cleared")
	return nil
}

// Sort orders entries by ascending priority, breaking ties by provider id
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Priority != entries[j].Priority {
			return entries[i].Priority < entries[j].Priority
		}
		return entries[i].ProviderID < entries[j].ProviderID
	})
}
