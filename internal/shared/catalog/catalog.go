// Package catalog loads provider and chain configuration from YAML or TOML
// files and writes it to the store.
package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// Catalog is the administrative configuration file
type Catalog struct {
	Providers []Provider           `yaml:"providers" toml:"providers"`
	Services  map[string][]Mapping `yaml:"services" toml:"services"`
}

// Provider is one provider with its models
type Provider struct {
	Name    string         `yaml:"name" toml:"name"`
	Type    string         `yaml:"type" toml:"type"`
	BaseURL string         `yaml:"base_url" toml:"base_url"`
	Enabled *bool          `yaml:"enabled" toml:"enabled"`
	Config  map[string]any `yaml:"config" toml:"config"`
	Models  []Model        `yaml:"models" toml:"models"`
}

// Model is a model offered by a provider
type Model struct {
	Name          string   `yaml:"name" toml:"name"`
	DisplayName   string   `yaml:"display_name" toml:"display_name"`
	Enabled       *bool    `yaml:"enabled" toml:"enabled"`
	Capabilities  []string `yaml:"capabilities" toml:"capabilities"`
	ContextLength int      `yaml:"context_length" toml:"context_length"`
}

// Mapping is one chain entry of a service
type Mapping struct {
	Provider string `yaml:"provider" toml:"provider"`
	Model    string `yaml:"model" toml:"model"`
	Priority int    `yaml:"priority" toml:"priority"`
	Active   *bool  `yaml:"active" toml:"active"`
}

// Store is what Apply writes to
type Store interface {
	UpsertProvider(ctx context.Context, p *models.Provider) (int64, error)
	UpsertModel(ctx context.Context, m *models.Model) (int64, error)
	ReplaceMappings(ctx context.Context, serviceType string, mappings []models.ServiceMapping) error
}

// Summary counts what Apply wrote
type Summary struct {
	Providers int
	Models    int
	Services  int
}

// Load reads a catalog, choosing the format from the file extension
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}

	var c Catalog
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &c); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), &c); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", ext)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks provider names and types, and that every chain references
// a listed provider with a unique priority
func (c *Catalog) Validate() error {
	names := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if p.Name == "" {
			return fmt.Errorf("provider #%d has no name", i+1)
		}
		if names[p.Name] {
			return fmt.Errorf("provider %q listed twice", p.Name)
		}
		names[p.Name] = true

		if models.KindForType(p.Type) == "" {
			return fmt.Errorf("provider %q has unknown type %q", p.Name, p.Type)
		}
		for j, m := range p.Models {
			if m.Name == "" {
				return fmt.Errorf("provider %q model #%d has no name", p.Name, j+1)
			}
		}
	}

	for serviceType, mappings := range c.Services {
		if strings.TrimSpace(serviceType) == "" {
			return fmt.Errorf("service with empty name")
		}
		priorities := make(map[int]string, len(mappings))
		for _, m := range mappings {
			if !names[m.Provider] {
				return fmt.Errorf("service %s references unknown provider %q", serviceType, m.Provider)
			}
			if other, dup := priorities[m.Priority]; dup {
				return fmt.Errorf("service %s: duplicate priority %d (%s, %s)", serviceType, m.Priority, other, m.Provider)
			}
			priorities[m.Priority] = m.Provider
		}
	}
	return nil
}

// Apply upserts providers and models, then replaces the chain of every
// listed service. Services not in the catalog are left alone.
func (c *Catalog) Apply(ctx context.Context, store Store) (Summary, error) {
	var sum Summary
	if err := c.Validate(); err != nil {
		return sum, err
	}

	for _, p := range c.Providers {
		rec := &models.Provider{
			Name:    p.Name,
			Type:    p.Type,
			BaseURL: p.BaseURL,
			Enabled: boolOr(p.Enabled, true),
			Config:  p.Config,
		}
		id, err := store.UpsertProvider(ctx, rec)
		if err != nil {
			return sum, fmt.Errorf("saving provider %s: %w", p.Name, err)
		}
		sum.Providers++

		for _, m := range p.Models {
			_, err := store.UpsertModel(ctx, &models.Model{
				ProviderID:    id,
				Name:          m.Name,
				DisplayName:   m.DisplayName,
				Enabled:       boolOr(m.Enabled, true),
				Capabilities:  m.Capabilities,
				ContextLength: m.ContextLength,
			})
			if err != nil {
				return sum, fmt.Errorf("saving model %s/%s: %w", p.Name, m.Name, err)
			}
			sum.Models++
		}
	}

	serviceTypes := make([]string, 0, len(c.Services))
	for st := range c.Services {
		serviceTypes = append(serviceTypes, st)
	}
	sort.Strings(serviceTypes)

	for _, st := range serviceTypes {
		mappings := make([]models.ServiceMapping, 0, len(c.Services[st]))
		for _, m := range c.Services[st] {
			mappings = append(mappings, models.ServiceMapping{
				ServiceType:  st,
				ProviderName: m.Provider,
				Model:        m.Model,
				Priority:     m.Priority,
				Active:       boolOr(m.Active, true),
			})
		}
		if err := store.ReplaceMappings(ctx, st, mappings); err != nil {
			return sum, fmt.Errorf("saving %s chain: %w", st, err)
		}
		sum.Services++
	}

	log.WithFields(log.Fields{
		"event":     "catalog_applied",
		"providers": sum.Providers,
		"models":    sum.Models,
		"services":  sum.Services,
	}).Info("Catalog applied")

	return sum, nil
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}
