// Package orchestrator ties the registry, chain resolver and failover
// executor into the operations the transports expose.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/steelburn/candidacy-sub001/internal/orchestrator/chain"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/failover"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/providers"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/registry"
)

var (
	// ErrEmptyPrompt is returned by Generate when neither a prompt nor messages were given
	ErrEmptyPrompt = errors.New("prompt or messages required")
	// ErrEmptyFilePath is returned by Parse without a file
	ErrEmptyFilePath = errors.New("file path is required")
	// ErrPathOutsideRoot is returned by Parse for files outside the parse root
	ErrPathOutsideRoot = errors.New("file path is outside the parse root")
)

// Service is the entry point for generation and parsing requests
type Service struct {
	registry  *registry.Registry
	resolver  *chain.Resolver
	executor  *failover.Executor
	parseRoot string
}

// New creates a service
func New(reg *registry.Registry, resolver *chain.Resolver, executor *failover.Executor) *Service {
	return &Service{registry: reg, resolver: resolver, executor: executor}
}

// SetParseRoot confines Parse to files below dir. Relative file paths are
// taken relative to dir. An empty dir removes the restriction.
func (s *Service) SetParseRoot(dir string) error {
	if dir == "" {
		s.parseRoot = ""
		return nil
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("parse root %s: %w", dir, err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return fmt.Errorf("parse root %s: %w", dir, err)
	}
	s.parseRoot = resolved
	return nil
}

// confine resolves path against the parse root and follows symlinks, so a
// link inside the root cannot point outside it
func (s *Service) confine(path string) (string, error) {
	if s.parseRoot == "" {
		return path, nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.parseRoot, path)
	}
	path = filepath.Clean(path)
	if !within(s.parseRoot, path) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, path)
	}

	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", path, err)
	}
	if !within(s.parseRoot, resolved) {
		return "", fmt.Errorf("%w: %s", ErrPathOutsideRoot, path)
	}
	return resolved, nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Generate runs an LLM request through the chain of serviceType
func (s *Service) Generate(ctx context.Context, serviceType string, req providers.Request) (*failover.Envelope, error) {
	if strings.TrimSpace(req.Prompt) == "" && len(req.Messages) == 0 {
		return nil, ErrEmptyPrompt
	}
	req.FilePath = ""

	entries, err := s.resolver.Resolve(ctx, serviceType)
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, strings.TrimSpace(serviceType), entries, req), nil
}

// Parse extracts text from a local file. Without a service type the file's
// extension, or its sniffed content type, selects the chain. With a parse
// root set, files outside it are rejected with ErrPathOutsideRoot.
func (s *Service) Parse(ctx context.Context, serviceType, path string) (*failover.Envelope, error) {
	if path == "" {
		return nil, ErrEmptyFilePath
	}
	path, err := s.confine(path)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	serviceType = strings.TrimSpace(serviceType)
	if serviceType == "" {
		kind, err := providers.DetectKind(path)
		if err != nil {
			return nil, err
		}
		serviceType = kind
	}

	entries, err := s.resolver.Resolve(ctx, serviceType)
	if err != nil {
		return nil, err
	}
	return s.executor.Execute(ctx, serviceType, entries, providers.Request{FilePath: path}), nil
}

// Chain returns the resolved chain for serviceType
func (s *Service) Chain(ctx context.Context, serviceType string) ([]chain.Entry, error) {
	return s.resolver.Resolve(ctx, serviceType)
}

// Providers lists the adapters in the current registry snapshot
func (s *Service) Providers() []registry.ProviderInfo {
	return s.registry.Snapshot().List()
}

// Reload rebuilds the registry from the store and drops cached chains.
// In-flight executions keep the snapshot they started with.
func (s *Service) Reload(ctx context.Context) (*registry.Snapshot, error) {
	snap, err := s.registry.Reload(ctx)
	if err != nil {
		return snap, err
	}

	if err := s.resolver.Invalidate(ctx); err != nil {
		log.WithField("event", "chain_cache_invalidate_failed").WithError(err).Warn("Chain cache not cleared")
	}
	return snap, nil
}
