package providers

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownAdapter strips markdown syntax and returns the plain text
type MarkdownAdapter struct {
	localParser
	md goldmark.Markdown
}

// NewMarkdownAdapter creates a markdown parser
func NewMarkdownAdapter(name, displayName string, s Settings) *MarkdownAdapter {
	return &MarkdownAdapter{
		localParser: newLocalParser(name, displayName, s),
		md:          goldmark.New(),
	}
}

func (a *MarkdownAdapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	mime, err := a.checkFile(req.FilePath, "text/plain")
	if err != nil {
		return nil, err
	}

	src, err := os.ReadFile(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("reading markdown: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	doc := a.md.Parser().Parse(text.NewReader(src))
	content, headings := markdownText(doc, src)
	if content == "" {
		return nil, fmt.Errorf("markdown contains no text")
	}

	return documentResult(content, mime, map[string]any{"headings": headings}), nil
}

// markdownText renders the AST as plain text, one line per block
func markdownText(doc ast.Node, src []byte) (string, int) {
	var buf bytes.Buffer
	headings := 0

	newline := func() {
		if buf.Len() > 0 && buf.Bytes()[buf.Len()-1] != '\n' {
			buf.WriteByte('\n')
		}
	}

	ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			if n.Type() == ast.TypeBlock {
				newline()
			}
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Heading:
			headings++
		case *ast.Text:
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			buf.Write(node.Value)
		case *ast.CodeSpan:
			for c := node.FirstChild(); c != nil; c = c.NextSibling() {
				if t, ok := c.(*ast.Text); ok {
					buf.Write(t.Segment.Value(src))
				}
			}
			return ast.WalkSkipChildren, nil
		case *ast.FencedCodeBlock, *ast.CodeBlock, *ast.HTMLBlock:
			lines := n.Lines()
			for i := 0; i < lines.Len(); i++ {
				seg := lines.At(i)
				buf.Write(seg.Value(src))
			}
			return ast.WalkSkipChildren, nil
		case *ast.AutoLink:
			buf.Write(node.URL(src))
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(buf.String()), headings
}
