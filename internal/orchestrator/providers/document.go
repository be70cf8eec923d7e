package providers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// Capability is the value checked with Adapter.Supports for a request:
// the model for LLM adapters, the lowercased file extension for document adapters
func Capability(kind string, req Request) string {
	if kind == models.KindDocument {
		return strings.ToLower(filepath.Ext(req.FilePath))
	}
	return req.Model
}

// localParser is embedded by the in-process document adapters
type localParser struct {
	base
	settings Settings
}

func newLocalParser(name, displayName string, s Settings) localParser {
	return localParser{
		base:     newBase(name, displayName, models.KindDocument, s.Extensions),
		settings: s,
	}
}

// HealthCheck always succeeds; local parsers have no remote dependency
func (p *localParser) HealthCheck(ctx context.Context) error {
	return ctx.Err()
}

// checkFile enforces the size limit and verifies the file's bytes match one of
// the allowed content types (parents included, so docx also matches zip)
func (p *localParser) checkFile(path string, allowed ...string) (*mimetype.MIME, error) {
	if path == "" {
		return nil, fmt.Errorf("no file path given")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if limit := int64(p.settings.MaxFileSizeMB) << 20; limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%s is %d bytes, limit is %d MB", path, info.Size(), p.settings.MaxFileSizeMB)
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("detecting content type of %s: %w", path, err)
	}
	if !mimeMatches(mime, allowed) {
		return nil, fmt.Errorf("%s has content type %s, expected %s", path, mime.String(), strings.Join(allowed, " or "))
	}
	return mime, nil
}

func mimeMatches(mime *mimetype.MIME, allowed []string) bool {
	for m := mime; m != nil; m = m.Parent() {
		for _, a := range allowed {
			if m.Is(a) {
				return true
			}
		}
	}
	return false
}

// DetectKind sniffs a file and returns a service type for it: the extension
// without the dot when known, otherwise one derived from the content type
func DetectKind(path string) (string, error) {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), "."); ext != "" {
		return ext, nil
	}

	mime, err := mimetype.DetectFile(path)
	if err != nil {
		return "", fmt.Errorf("detecting content type of %s: %w", path, err)
	}
	if ext := strings.TrimPrefix(mime.Extension(), "."); ext != "" {
		return ext, nil
	}
	return "", fmt.Errorf("cannot determine document type of %s (%s)", path, mime.String())
}

func documentResult(content string, mime *mimetype.MIME, extra map[string]any) *Result {
	meta := map[string]any{
		"mime_type":  mime.String(),
		"characters": len(content),
	}
	for k, v := range extra {
		meta[k] = v
	}
	return &Result{Content: content, Metadata: meta}
}
