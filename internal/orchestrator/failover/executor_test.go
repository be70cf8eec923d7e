package failover

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/steelburn/candidacy-sub001/internal/orchestrator/chain"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/providers"
	"github.com/steelburn/candidacy-sub001/internal/orchestrator/registry"
	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

type fakeAdapter struct {
	name   string
	kind   string
	models []string
	health error
	invoke func(ctx context.Context, req providers.Request) (*providers.Result, error)

	mu    sync.Mutex
	calls int
}

func (f *fakeAdapter) Name() string        { return f.name }
func (f *fakeAdapter) DisplayName() string { return f.name }
func (f *fakeAdapter) Kind() string {
	if f.kind == "" {
		return models.KindLLM
	}
	return f.kind
}
func (f *fakeAdapter) Supports(c string) bool {
	if c == "" || len(f.models) == 0 {
		return true
	}
	for _, m := range f.models {
		if m == c {
			return true
		}
	}
	return false
}
func (f *fakeAdapter) HealthCheck(ctx context.Context) error { return f.health }
func (f *fakeAdapter) Invoke(ctx context.Context, req providers.Request) (*providers.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.invoke == nil {
		return &providers.Result{Content: "from " + f.name, Model: req.Model, PromptTokens: 3, CompletionTokens: 4, TotalTokens: 7}, nil
	}
	return f.invoke(ctx, req)
}
func (f *fakeAdapter) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memRecorder struct {
	mu   sync.Mutex
	envs []*Envelope
}

func (m *memRecorder) Record(ctx context.Context, env *Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.envs = append(m.envs, env)
}

func (m *memRecorder) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.envs)
}

func failing(msg string) func(context.Context, providers.Request) (*providers.Result, error) {
	return func(context.Context, providers.Request) (*providers.Result, error) {
		return nil, errors.New(msg)
	}
}

func hanging(ctx context.Context, _ providers.Request) (*providers.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func setup(t *testing.T, adapters ...*fakeAdapter) (*Executor, *registry.Registry, *memRecorder) {
	t.Helper()
	reg := registry.New(nil, nil, registry.Options{ProbeTimeout: 200 * time.Millisecond, LLMTimeout: time.Second})
	entries := make([]registry.Entry, 0, len(adapters))
	for _, a := range adapters {
		entries = append(entries, registry.Entry{Adapter: a})
	}
	reg.Swap(entries)
	rec := &memRecorder{}
	return NewExecutor(reg, rec), reg, rec
}

func entries(names ...string) []chain.Entry {
	out := make([]chain.Entry, len(names))
	for i, n := range names {
		out[i] = chain.Entry{Provider: n, Priority: i + 1}
	}
	return out
}

func TestExecute_FirstProviderSucceeds(t *testing.T) {
	a := &fakeAdapter{name: "a"}
	b := &fakeAdapter{name: "b"}
	exec, _, rec := setup(t, a, b)

	env := exec.Execute(context.Background(), "matching", entries("a", "b"), providers.Request{Prompt: "hi"})

	if !env.Success || env.Provider != "a" || env.Content != "from a" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.FailoverAttempt != 1 || env.TotalAttempts != 1 {
		t.Errorf("attempts = %d/%d, want 1/1", env.FailoverAttempt, env.TotalAttempts)
	}
	if env.Usage.TotalTokens != 7 {
		t.Errorf("usage = %+v", env.Usage)
	}
	if b.Calls() != 0 {
		t.Error("second provider should not be invoked")
	}
	if rec.count() != 1 {
		t.Errorf("recorded %d envelopes, want 1", rec.count())
	}
	if env.RequestID == "" {
		t.Error("request id not generated")
	}
}

func TestExecute_UnavailableSkippedTimeoutCounted(t *testing.T) {
	a := &fakeAdapter{name: "a", health: errors.New("connection refused")}
	b := &fakeAdapter{name: "b", invoke: failing("timeout")}
	c := &fakeAdapter{name: "c"}
	exec, _, rec := setup(t, a, b, c)

	env := exec.Execute(context.Background(), "cv-parsing", entries("a", "b", "c"), providers.Request{Prompt: "x"})

	if !env.Success || env.Provider != "c" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.FailoverAttempt != 2 || env.TotalAttempts != 2 {
		t.Errorf("attempts = %d/%d, want 2/2", env.FailoverAttempt, env.TotalAttempts)
	}
	if env.SkippedCount != 1 {
		t.Errorf("skipped = %d, want 1", env.SkippedCount)
	}
	if a.Calls() != 0 {
		t.Error("unavailable provider was invoked")
	}
	if len(env.Attempts) != 3 || !env.Attempts[0].Skipped || env.Attempts[0].Reason != ReasonUnavailable {
		t.Errorf("attempt log = %+v", env.Attempts)
	}
	if env.Attempts[1].Reason != ErrorTypeInvocation {
		t.Errorf("b attempt reason = %q", env.Attempts[1].Reason)
	}
	if rec.count() != 1 {
		t.Errorf("recorded %d envelopes, want 1", rec.count())
	}
}

func TestExecute_AllFail(t *testing.T) {
	a := &fakeAdapter{name: "a", invoke: failing("rate limited")}
	b := &fakeAdapter{name: "b", invoke: failing("bad gateway")}
	exec, _, rec := setup(t, a, b)

	env := exec.Execute(context.Background(), "matching", entries("a", "b"), providers.Request{Prompt: "x"})

	if env.Success {
		t.Fatal("expected failure")
	}
	if env.Provider != NoProvider {
		t.Errorf("provider = %q, want %q", env.Provider, NoProvider)
	}
	if env.TotalAttempts != 2 || env.FailoverAttempt != 0 {
		t.Errorf("attempts = %d/%d", env.FailoverAttempt, env.TotalAttempts)
	}
	if !strings.Contains(env.Error, "chain exhausted") || !strings.Contains(env.Error, "bad gateway") {
		t.Errorf("error = %q", env.Error)
	}
	if env.ErrorType != ErrorTypeInvocation {
		t.Errorf("error type = %q", env.ErrorType)
	}
	if rec.count() != 1 {
		t.Errorf("recorded %d envelopes, want 1", rec.count())
	}
}

func TestExecute_TimeoutTagged(t *testing.T) {
	a := &fakeAdapter{name: "a", invoke: hanging}
	reg := registry.New(nil, nil, registry.Options{ProbeTimeout: 200 * time.Millisecond})
	reg.Swap([]registry.Entry{{Adapter: a, Timeout: 50 * time.Millisecond}})
	exec := NewExecutor(reg, nil)

	start := time.Now()
	env := exec.Execute(context.Background(), "matching", entries("a"), providers.Request{Prompt: "x"})

	if time.Since(start) > 2*time.Second {
		t.Fatal("timeout not enforced")
	}
	if env.Success || env.ErrorType != ErrorTypeTimeout {
		t.Fatalf("envelope = %+v", env)
	}
	if env.TotalAttempts != 1 || env.Attempts[0].Reason != ErrorTypeTimeout {
		t.Errorf("timeout should count as an attempt: %+v", env.Attempts)
	}
}

func TestExecute_AdapterIgnoringContextIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	a := &fakeAdapter{name: "a", invoke: func(context.Context, providers.Request) (*providers.Result, error) {
		<-release
		return &providers.Result{Content: "late"}, nil
	}}
	b := &fakeAdapter{name: "b"}
	reg := registry.New(nil, nil, registry.Options{})
	reg.Swap([]registry.Entry{{Adapter: a, Timeout: 50 * time.Millisecond}, {Adapter: b}})

	env := NewExecutor(reg, nil).Execute(context.Background(), "matching", entries("a", "b"), providers.Request{Prompt: "x"})
	if !env.Success || env.Provider != "b" {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestExecute_EmptyChain(t *testing.T) {
	exec, _, rec := setup(t)

	env := exec.Execute(context.Background(), "matching", nil, providers.Request{Prompt: "x"})

	if env.Success || env.TotalAttempts != 0 {
		t.Fatalf("envelope = %+v", env)
	}
	if !strings.Contains(env.Error, "no provider available") {
		t.Errorf("error = %q", env.Error)
	}
	if env.ErrorType != ErrorTypeNoProvider {
		t.Errorf("error type = %q", env.ErrorType)
	}
	if rec.count() != 1 {
		t.Errorf("recorded %d envelopes, want 1", rec.count())
	}
}

func TestExecute_MissingProviderSkipped(t *testing.T) {
	b := &fakeAdapter{name: "b"}
	exec, _, _ := setup(t, b)

	env := exec.Execute(context.Background(), "matching", entries("disabled", "b"), providers.Request{Prompt: "x"})

	if !env.Success || env.Provider != "b" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.FailoverAttempt != 1 || env.SkippedCount != 1 {
		t.Errorf("attempt = %d skipped = %d, want 1/1", env.FailoverAttempt, env.SkippedCount)
	}
	if env.Attempts[0].Reason != ReasonNotFound {
		t.Errorf("reason = %q", env.Attempts[0].Reason)
	}
}

func TestExecute_OnlyMissingProvider(t *testing.T) {
	exec, _, _ := setup(t)

	env := exec.Execute(context.Background(), "matching", entries("disabled"), providers.Request{Prompt: "x"})

	if env.Success || env.Provider != NoProvider {
		t.Fatalf("envelope = %+v", env)
	}
	if !strings.Contains(env.Error, "chain exhausted") {
		t.Errorf("error = %q", env.Error)
	}
}

func TestExecute_CapabilityAndKindMismatchSkipped(t *testing.T) {
	llm := &fakeAdapter{name: "llm", models: []string{"gpt-4o"}}
	pdf := &fakeAdapter{name: "pdf", kind: models.KindDocument, models: []string{".pdf"}}
	fallback := &fakeAdapter{name: "fallback"}
	exec, _, _ := setup(t, llm, pdf, fallback)

	chainEntries := []chain.Entry{
		{Provider: "llm", Model: "llama3.2", Priority: 1},
		{Provider: "pdf", Priority: 2},
		{Provider: "fallback", Model: "llama3.2", Priority: 3},
	}
	env := exec.Execute(context.Background(), "matching", chainEntries, providers.Request{Prompt: "x"})

	if !env.Success || env.Provider != "fallback" || env.Model != "llama3.2" {
		t.Fatalf("envelope = %+v", env)
	}
	if env.SkippedCount != 2 || env.FailoverAttempt != 1 {
		t.Errorf("skipped = %d attempt = %d", env.SkippedCount, env.FailoverAttempt)
	}
	for _, a := range env.Attempts[:2] {
		if a.Reason != ReasonCapabilityMismatch {
			t.Errorf("attempt %s reason = %q", a.Provider, a.Reason)
		}
	}
	if llm.Calls() != 0 || pdf.Calls() != 0 {
		t.Error("mismatched providers were invoked")
	}
}

func TestExecute_DocumentRequest(t *testing.T) {
	pdf := &fakeAdapter{name: "pdf", kind: models.KindDocument, models: []string{".pdf"}}
	docx := &fakeAdapter{name: "docx", kind: models.KindDocument, models: []string{".docx"}}
	exec, _, _ := setup(t, docx, pdf)

	env := exec.Execute(context.Background(), "pdf", entries("docx", "pdf"), providers.Request{FilePath: "/tmp/cv.PDF"})

	if !env.Success || env.Provider != "pdf" || env.Kind != models.KindDocument {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestExecute_CallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	a := &fakeAdapter{name: "a", invoke: func(ctx context.Context, req providers.Request) (*providers.Result, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	b := &fakeAdapter{name: "b"}
	exec, _, rec := setup(t, a, b)

	env := exec.Execute(ctx, "matching", entries("a", "b"), providers.Request{Prompt: "x"})

	if env.Success || env.ErrorType != ErrorTypeCancelled {
		t.Fatalf("envelope = %+v", env)
	}
	if b.Calls() != 0 {
		t.Error("chain continued after cancellation")
	}
	if rec.count() != 1 {
		t.Errorf("recorded %d envelopes, want 1", rec.count())
	}
}

func TestExecute_PanickingAdapterIsAFailedAttempt(t *testing.T) {
	a := &fakeAdapter{name: "a", invoke: func(context.Context, providers.Request) (*providers.Result, error) {
		panic("boom")
	}}
	b := &fakeAdapter{name: "b"}
	exec, _, _ := setup(t, a, b)

	env := exec.Execute(context.Background(), "matching", entries("a", "b"), providers.Request{Prompt: "x"})
	if !env.Success || env.FailoverAttempt != 2 {
		t.Fatalf("envelope = %+v", env)
	}
}

func TestExecute_SnapshotHeldAcrossReload(t *testing.T) {
	started := make(chan struct{})
	proceed := make(chan struct{})
	a := &fakeAdapter{name: "a", invoke: func(context.Context, providers.Request) (*providers.Result, error) {
		close(started)
		<-proceed
		return nil, errors.New("failed")
	}}
	b := &fakeAdapter{name: "b"}
	exec, reg, _ := setup(t, a, b)

	done := make(chan *Envelope, 1)
	go func() {
		done <- exec.Execute(context.Background(), "matching", entries("a", "b"), providers.Request{Prompt: "x"})
	}()

	<-started
	// b disappears from the live registry mid-execution
	reg.Swap([]registry.Entry{{Adapter: a}})
	close(proceed)

	env := <-done
	if !env.Success || env.Provider != "b" {
		t.Fatalf("execution should finish on its original snapshot: %+v", env)
	}
	if _, err := reg.Snapshot().GetAdapter("b"); err == nil {
		t.Error("new snapshot should not contain b")
	}
}

func TestExecute_ModelFromChainEntry(t *testing.T) {
	var got string
	a := &fakeAdapter{name: "a", invoke: func(_ context.Context, req providers.Request) (*providers.Result, error) {
		got = req.Model
		return &providers.Result{Content: "ok"}, nil
	}}
	exec, _, _ := setup(t, a)

	chainEntries := []chain.Entry{{Provider: "a", Model: "gpt-4o-mini", Priority: 1}}
	env := exec.Execute(context.Background(), "matching", chainEntries, providers.Request{Prompt: "x", Model: "ignored"})

	if got != "gpt-4o-mini" || env.Model != "gpt-4o-mini" {
		t.Errorf("model = %q / %q, want gpt-4o-mini", got, env.Model)
	}
}

func TestExecute_RequestIDFromContext(t *testing.T) {
	exec, _, _ := setup(t, &fakeAdapter{name: "a"})

	ctx := WithRequestID(context.Background(), "req-123")
	env := exec.Execute(ctx, "matching", entries("a"), providers.Request{Prompt: "x"})
	if env.RequestID != "req-123" {
		t.Errorf("request id = %q", env.RequestID)
	}

	l := env.RequestLog()
	if l.RequestID != "req-123" || l.ID == "" || l.ErrorType != nil {
		t.Errorf("request log = %+v", l)
	}
}
