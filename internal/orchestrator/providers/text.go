package providers

import (
	"context"
	"fmt"
	"os"
	"strings"
)

// TextAdapter returns plain text files as-is
type TextAdapter struct {
	localParser
}

func NewTextAdapter(name, displayName string, s Settings) *TextAdapter {
	return &TextAdapter{localParser: newLocalParser(name, displayName, s)}
}

func (a *TextAdapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	mime, err := a.checkFile(req.FilePath, "text/plain")
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading text: %w", err)
	}

	content := strings.TrimSpace(strings.TrimPrefix(string(raw), "\uFEFF"))
	if content == "" {
		return nil, fmt.Errorf("file is empty")
	}
	return documentResult(content, mime, nil), nil
}
