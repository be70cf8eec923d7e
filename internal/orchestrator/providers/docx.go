package providers

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// DOCXAdapter extracts paragraph text from WordprocessingML documents
type DOCXAdapter struct {
	localParser
}

// NewDOCXAdapter creates a DOCX parser
func NewDOCXAdapter(name, displayName string, s Settings) *DOCXAdapter {
	return &DOCXAdapter{localParser: newLocalParser(name, displayName, s)}
}

// Invoke reads word/document.xml and joins its text runs, one line per paragraph
func (a *DOCXAdapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	mime, err := a.checkFile(req.FilePath, "application/vnd.openxmlformats-officedocument.wordprocessingml.document", "application/zip")
	if err != nil {
		return nil, err
	}

	zr, err := zip.OpenReader(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("opening docx: %w", err)
	}
	defer zr.Close()

	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return nil, fmt.Errorf("docx has no word/document.xml")
	}

	rc, err := doc.Open()
	if err != nil {
		return nil, fmt.Errorf("reading document.xml: %w", err)
	}
	defer rc.Close()

	content, paragraphs, err := extractWordText(rc)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	return documentResult(content, mime, map[string]any{"paragraphs": paragraphs}), nil
}

// extractWordText walks document.xml tokens. w:t holds text, w:tab and w:br
// are whitespace, and w:p ends a line.
func extractWordText(r io.Reader) (string, int, error) {
	dec := xml.NewDecoder(r)
	var sb strings.Builder
	inText := false
	paragraphs := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", 0, fmt.Errorf("parsing document.xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				sb.WriteByte('\t')
			case "br":
				sb.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				sb.WriteByte('\n')
				paragraphs++
			}
		case xml.CharData:
			if inText {
				sb.Write(t)
			}
		}
	}

	return strings.TrimSpace(sb.String()), paragraphs, nil
}
