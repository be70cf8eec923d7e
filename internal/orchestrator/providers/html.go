package providers

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	htmltomd "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/go-shiori/go-readability"
	log "github.com/sirupsen/logrus"
)

// HTMLAdapter extracts the main content of an HTML page as markdown
type HTMLAdapter struct {
	localParser
}

// NewHTMLAdapter creates an HTML parser
func NewHTMLAdapter(name, displayName string, s Settings) *HTMLAdapter {
	return &HTMLAdapter{localParser: newLocalParser(name, displayName, s)}
}

// Invoke runs readability first, then converts the article to markdown.
// When readability finds nothing the whole document is converted.
func (a *HTMLAdapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	mime, err := a.checkFile(req.FilePath, "text/html", "application/xhtml+xml")
	if err != nil {
		return nil, err
	}

	raw, err := os.ReadFile(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading html: %w", err)
	}

	abs, _ := filepath.Abs(req.FilePath)
	pageURL := &url.URL{Scheme: "file", Path: abs}

	source := string(raw)
	title := ""
	article, err := readability.FromReader(bytes.NewReader(raw), pageURL)
	if err != nil {
		log.WithFields(log.Fields{
			"provider": a.Name(),
			"file":     req.FilePath,
		}).WithError(err).Warn("readability failed, converting full document")
	} else {
		title = article.Title
		if strings.TrimSpace(article.Content) != "" {
			source = article.Content
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	markdown, err := htmltomd.ConvertString(source)
	if err != nil {
		if article.TextContent == "" {
			return nil, fmt.Errorf("converting html: %w", err)
		}
		markdown = article.TextContent
	}

	content := strings.TrimSpace(markdown)
	if content == "" {
		return nil, fmt.Errorf("html contains no text")
	}

	return documentResult(content, mime, map[string]any{"title": title}), nil
}
