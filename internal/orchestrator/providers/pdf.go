package providers

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDFAdapter extracts plain text from PDF files in process
type PDFAdapter struct {
	localParser
}

// NewPDFAdapter creates a PDF parser
func NewPDFAdapter(name, displayName string, s Settings) *PDFAdapter {
	return &PDFAdapter{localParser: newLocalParser(name, displayName, s)}
}

// Invoke extracts the text of every page
func (a *PDFAdapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	mime, err := a.checkFile(req.FilePath, "application/pdf")
	if err != nil {
		return nil, err
	}

	f, r, err := pdf.Open(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	text, err := r.GetPlainText()
	if err != nil {
		return nil, fmt.Errorf("extracting pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(text); err != nil {
		return nil, fmt.Errorf("reading pdf text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	content := strings.TrimSpace(buf.String())
	if content == "" {
		return nil, fmt.Errorf("pdf contains no extractable text")
	}

	return documentResult(content, mime, map[string]any{"pages": r.NumPage()}), nil
}
