package providers

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func writeDOCX(t *testing.T, paragraphs ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cv.docx")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	ct, _ := zw.Create("[Content_Types].xml")
	io.WriteString(ct, `<?xml version="1.0" encoding="UTF-8"?><Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"></Types>`)

	var body strings.Builder
	for _, p := range paragraphs {
		body.WriteString(`<w:p><w:r><w:t>` + p + `</w:t></w:r></w:p>`)
	}
	doc, _ := zw.Create("word/document.xml")
	io.WriteString(doc, `<?xml version="1.0" encoding="UTF-8"?>`+
		`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>`+
		body.String()+`</w:body></w:document>`)
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func docSettings(ext ...string) Settings {
	return Settings{Extensions: ext, MaxFileSizeMB: 1}
}

func TestTextAdapter(t *testing.T) {
	a := NewTextAdapter("text", "", docSettings(".txt"))
	path := writeFile(t, "notes.txt", "\uFEFF  Jane Doe\nGo, Kubernetes  \n")

	res, err := a.Invoke(context.Background(), Request{FilePath: path})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Content != "Jane Doe\nGo, Kubernetes" {
		t.Errorf("content = %q", res.Content)
	}
	if !strings.HasPrefix(res.Metadata["mime_type"].(string), "text/plain") {
		t.Errorf("mime = %v", res.Metadata["mime_type"])
	}

	if err := a.HealthCheck(context.Background()); err != nil {
		t.Errorf("local HealthCheck: %v", err)
	}
}

func TestTextAdapter_Errors(t *testing.T) {
	a := NewTextAdapter("text", "", docSettings(".txt"))

	if _, err := a.Invoke(context.Background(), Request{}); err == nil {
		t.Error("expected error for missing path")
	}
	if _, err := a.Invoke(context.Background(), Request{FilePath: filepath.Join(t.TempDir(), "missing.txt")}); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := a.Invoke(context.Background(), Request{FilePath: writeFile(t, "empty.txt", "   ")}); err == nil {
		t.Error("expected error for empty file")
	}

	big := writeFile(t, "big.txt", strings.Repeat("a", 2<<20))
	if _, err := a.Invoke(context.Background(), Request{FilePath: big}); err == nil || !strings.Contains(err.Error(), "limit") {
		t.Errorf("expected size limit error, got %v", err)
	}
}

func TestPDFAdapter_RejectsMismatchedContent(t *testing.T) {
	a := NewPDFAdapter("pdf", "", docSettings(".pdf"))
	path := writeFile(t, "fake.pdf", "this is plain text pretending to be a pdf")

	_, err := a.Invoke(context.Background(), Request{FilePath: path})
	if err == nil || !strings.Contains(err.Error(), "content type") {
		t.Errorf("expected content type error, got %v", err)
	}
}

func TestDOCXAdapter(t *testing.T) {
	a := NewDOCXAdapter("docx", "", docSettings(".docx"))
	path := writeDOCX(t, "Jane Doe", "Senior Go Engineer")

	res, err := a.Invoke(context.Background(), Request{FilePath: path})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Content != "Jane Doe\nSenior Go Engineer" {
		t.Errorf("content = %q", res.Content)
	}
	if res.Metadata["paragraphs"] != 2 {
		t.Errorf("paragraphs = %v", res.Metadata["paragraphs"])
	}
}

func TestDOCXAdapter_MissingDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.docx")
	f, _ := os.Create(path)
	zw := zip.NewWriter(f)
	w, _ := zw.Create("other.xml")
	io.WriteString(w, "<x/>")
	zw.Close()
	f.Close()

	a := NewDOCXAdapter("docx", "", docSettings(".docx"))
	if _, err := a.Invoke(context.Background(), Request{FilePath: path}); err == nil {
		t.Error("expected error for zip without word/document.xml")
	}
}

func TestMarkdownAdapter(t *testing.T) {
	a := NewMarkdownAdapter("md", "", docSettings(".md"))
	path := writeFile(t, "job.md", "# Backend Engineer\n\nWe need *strong* Go skills.\n\n- Postgres\n- Redis\n\n```\ngo test ./...\n```\n")

	res, err := a.Invoke(context.Background(), Request{FilePath: path})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	for _, want := range []string{"Backend Engineer", "We need strong Go skills.", "Postgres", "Redis", "go test ./..."} {
		if !strings.Contains(res.Content, want) {
			t.Errorf("content missing %q:\n%s", want, res.Content)
		}
	}
	if strings.Contains(res.Content, "#") || strings.Contains(res.Content, "*") {
		t.Errorf("markdown syntax not stripped:\n%s", res.Content)
	}
	if res.Metadata["headings"] != 1 {
		t.Errorf("headings = %v", res.Metadata["headings"])
	}
}

func TestHTMLAdapter(t *testing.T) {
	a := NewHTMLAdapter("html", "", docSettings(".html"))
	paragraph := "Jane has spent eight years building distributed systems in Go, leading teams that ship payment platforms and recruiting tools. "
	page := `<!DOCTYPE html><html><head><title>Jane Doe - Resume</title></head><body>
		<nav><a href="/">Home</a></nav>
		<article><h1>Jane Doe</h1><p>` + strings.Repeat(paragraph, 4) + `</p>
		<p>Skills: <strong>Go</strong>, Postgres, Redis.</p></article>
		<footer>Copyright</footer></body></html>`
	path := writeFile(t, "cv.html", page)

	res, err := a.Invoke(context.Background(), Request{FilePath: path})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !strings.Contains(res.Content, "distributed systems in Go") {
		t.Errorf("content missing body text:\n%s", res.Content)
	}
	if strings.Contains(res.Content, "<p>") {
		t.Errorf("html tags not converted:\n%s", res.Content)
	}
}

func TestDetectKind(t *testing.T) {
	if got, err := DetectKind("/uploads/cv.PDF"); err != nil || got != "pdf" {
		t.Errorf("DetectKind(ext) = %q, %v", got, err)
	}

	path := writeDOCX(t, "x")
	noExt := strings.TrimSuffix(path, ".docx")
	if err := os.Rename(path, noExt); err != nil {
		t.Fatal(err)
	}
	got, err := DetectKind(noExt)
	if err != nil {
		t.Fatalf("DetectKind(sniffed): %v", err)
	}
	if got != "docx" && got != "zip" {
		t.Errorf("DetectKind(sniffed) = %q, want docx or zip", got)
	}
}

func TestHTTPParserAdapter(t *testing.T) {
	var gotName string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/parse":
			if r.Header.Get("X-Parser-Token") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, hdr, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			gotName = hdr.Filename
			json.NewEncoder(w).Encode(map[string]any{
				"data": map[string]any{"pages": []any{
					map[string]any{"text": "page one"},
					map[string]any{"text": "page two"},
				}},
			})
		case "/health":
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	s := Settings{
		Extensions: []string{".doc"},
		ResultPath: ".data.pages[].text",
		Headers:    map[string]string{"X-Parser-Token": "secret"},
	}
	a, err := NewHTTPParserAdapter("remote", "Remote parser", srv.URL, s, srv.Client())
	if err != nil {
		t.Fatalf("NewHTTPParserAdapter: %v", err)
	}

	res, err := a.Invoke(context.Background(), Request{FilePath: writeFile(t, "legacy.doc", "binary-ish")})
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if res.Content != "page one\npage two" {
		t.Errorf("content = %q", res.Content)
	}
	if gotName != "legacy.doc" {
		t.Errorf("uploaded filename = %q", gotName)
	}
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck: %v", err)
	}
}

func TestHTTPParserAdapter_OversizedFileNotUploaded(t *testing.T) {
	var uploads atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uploads.Add(1)
		w.Write([]byte(`{"text":"should not be reached"}`))
	}))
	defer srv.Close()

	a, err := NewHTTPParserAdapter("remote", "", srv.URL, Settings{ResultPath: ".text", MaxFileSizeMB: 1}, srv.Client())
	if err != nil {
		t.Fatalf("NewHTTPParserAdapter: %v", err)
	}

	path := writeFile(t, "scan.doc", strings.Repeat("x", 1<<20+1))
	if _, err := a.Invoke(context.Background(), Request{FilePath: path}); err == nil || !strings.Contains(err.Error(), "limit is 1 MB") {
		t.Errorf("expected size limit error, got %v", err)
	}
	if n := uploads.Load(); n != 0 {
		t.Errorf("oversized file uploaded %d times", n)
	}
}

func TestHTTPParserAdapter_Config(t *testing.T) {
	if _, err := NewHTTPParserAdapter("remote", "", "", Settings{ResultPath: ".text"}, nil); err == nil {
		t.Error("expected error without base URL")
	}
	if _, err := NewHTTPParserAdapter("remote", "", "http://x", Settings{ResultPath: ".text["}, nil); err == nil {
		t.Error("expected error for invalid jq expression")
	}
}
