package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/itchyny/gojq"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// maxParseResponse caps the parser reply read into memory
const maxParseResponse = 32 << 20

// HTTPParserAdapter uploads documents to a remote parsing service and
// extracts the text from its JSON reply with a jq expression
type HTTPParserAdapter struct {
	base
	baseURL    string
	httpClient *http.Client
	settings   Settings
	query      *gojq.Code
}

// NewHTTPParserAdapter creates a remote parser adapter. The result_path
// setting is a jq expression such as ".text" or ".data.pages[].text".
func NewHTTPParserAdapter(name, displayName, baseURL string, s Settings, httpClient *http.Client) (*HTTPParserAdapter, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("http-parser provider %s: base URL not configured", name)
	}

	parsed, err := gojq.Parse(s.ResultPath)
	if err != nil {
		return nil, fmt.Errorf("http-parser provider %s: invalid result_path %q: %w", name, s.ResultPath, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("http-parser provider %s: compiling result_path: %w", name, err)
	}

	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &HTTPParserAdapter{
		base:       newBase(name, displayName, models.KindDocument, s.Extensions),
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		settings:   s,
		query:      code,
	}, nil
}

// Invoke posts the file as multipart form field "file" to /parse
func (a *HTTPParserAdapter) Invoke(ctx context.Context, req Request) (*Result, error) {
	if req.FilePath == "" {
		return nil, fmt.Errorf("no file path given")
	}

	info, err := os.Stat(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", req.FilePath, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", req.FilePath)
	}
	if limit := int64(a.settings.MaxFileSizeMB) << 20; limit > 0 && info.Size() > limit {
		return nil, fmt.Errorf("%s is %d bytes, limit is %d MB", req.FilePath, info.Size(), a.settings.MaxFileSizeMB)
	}

	data, err := os.ReadFile(req.FilePath)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", req.FilePath, err)
	}
	mime := mimetype.Detect(data)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(req.FilePath))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(data); err != nil {
		return nil, err
	}
	if err := mw.WriteField("mime_type", mime.String()); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/parse", &body)
	if err != nil {
		return nil, fmt.Errorf("creating parse request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())
	for k, v := range a.settings.Headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("parse request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxParseResponse+1))
	if err != nil {
		return nil, fmt.Errorf("reading parse response: %w", err)
	}
	if len(respBody) > maxParseResponse {
		return nil, fmt.Errorf("parse response exceeds %d bytes", maxParseResponse)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var payload any
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return nil, fmt.Errorf("invalid JSON from parser: %w", err)
	}

	content, err := a.extract(ctx, payload)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("parser returned no text at %s", a.settings.ResultPath)
	}

	return documentResult(content, mime, map[string]any{"remote": a.baseURL}), nil
}

// extract runs the compiled jq expression and joins string results with newlines
func (a *HTTPParserAdapter) extract(ctx context.Context, payload any) (string, error) {
	var parts []string
	iter := a.query.RunWithContext(ctx, payload)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		switch val := v.(type) {
		case error:
			return "", fmt.Errorf("jq error: %w", val)
		case nil:
		case string:
			parts = append(parts, val)
		default:
			b, err := json.Marshal(val)
			if err != nil {
				return "", fmt.Errorf("failed to encode result: %w", err)
			}
			parts = append(parts, string(b))
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

// HealthCheck returns nil if GET /health answers 2xx
func (a *HTTPParserAdapter) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{StatusCode: resp.StatusCode}
	}
	return nil
}
