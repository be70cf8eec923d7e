package database

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestParseURL(t *testing.T) {
	tests := []struct {
		url     string
		dialect string
		dsn     string
		wantErr bool
	}{
		{"postgres://u:p@localhost/db", dialectPostgres, "postgres://u:p@localhost/db", false},
		{"postgresql://localhost/db", dialectPostgres, "postgresql://localhost/db", false},
		{":memory:", dialectSQLite, ":memory:", false},
		{"sqlite:/tmp/ai.db", dialectSQLite, "/tmp/ai.db", false},
		{"sqlite:///tmp/ai.db", dialectSQLite, "/tmp/ai.db", false},
		{"file:ai.db?cache=shared", dialectSQLite, "file:ai.db?cache=shared", false},
		{"mysql://localhost/db", "", "", true},
	}

	for _, tt := range tests {
		dialect, dsn, err := parseURL(tt.url)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseURL(%q) error = %v, wantErr %v", tt.url, err, tt.wantErr)
			continue
		}
		if dialect != tt.dialect || dsn != tt.dsn {
			t.Errorf("parseURL(%q) = (%q, %q), want (%q, %q)", tt.url, dialect, dsn, tt.dialect, tt.dsn)
		}
	}
}

func TestRebind(t *testing.T) {
	pg := &DB{dialect: dialectPostgres}
	if got := pg.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Errorf("postgres rebind = %q", got)
	}

	lite := &DB{dialect: dialectSQLite}
	if got := lite.rebind("a = ?"); got != "a = ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
}

func TestMigrationsApplied(t *testing.T) {
	db := newTestDB(t)

	versions, err := db.AppliedMigrations(context.Background())
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(versions) == 0 || versions[0] != 1 {
		t.Fatalf("versions = %v, want [1 ...]", versions)
	}

	// Re-running is a no-op
	if err := db.migrate(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestUpsertProvider_UpdatesByName(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	p := &models.Provider{Name: "openai-primary", Type: models.TypeOpenAI, Enabled: true,
		Config: map[string]any{"timeout_seconds": float64(30)}}
	id, err := db.UpsertProvider(ctx, p)
	if err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}

	p2 := &models.Provider{Name: "openai-primary", Type: models.TypeOpenAI, BaseURL: "http://proxy", Enabled: false}
	id2, err := db.UpsertProvider(ctx, p2)
	if err != nil {
		t.Fatalf("UpsertProvider update: %v", err)
	}
	if id != id2 {
		t.Errorf("upsert changed id: %d -> %d", id, id2)
	}

	providers, err := db.ListProviders(ctx)
	if err != nil {
		t.Fatalf("ListProviders: %v", err)
	}
	if len(providers) != 1 {
		t.Fatalf("got %d providers, want 1", len(providers))
	}
	got := providers[0]
	if got.Enabled || got.BaseURL != "http://proxy" {
		t.Errorf("provider not updated: %+v", got)
	}
	if len(got.Config) != 0 {
		t.Errorf("config = %v, want empty", got.Config)
	}
}

func TestUpsertModel_Capabilities(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	pid, err := db.UpsertProvider(ctx, &models.Provider{Name: "ollama", Type: models.TypeOllama, Enabled: true})
	if err != nil {
		t.Fatalf("UpsertProvider: %v", err)
	}

	m := &models.Model{ProviderID: pid, Name: "llama3.2", Enabled: true, Capabilities: []string{"chat", "json"}, ContextLength: 8192}
	if _, err := db.UpsertModel(ctx, m); err != nil {
		t.Fatalf("UpsertModel: %v", err)
	}

	list, err := db.ListModels(ctx)
	if err != nil {
		t.Fatalf("ListModels: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d models, want 1", len(list))
	}
	if strings.Join(list[0].Capabilities, ",") != "chat,json" {
		t.Errorf("capabilities = %v", list[0].Capabilities)
	}
	if list[0].ContextLength != 8192 {
		t.Errorf("context length = %d", list[0].ContextLength)
	}
}

func seedChain(t *testing.T, db *DB) {
	t.Helper()
	ctx := context.Background()
	for _, name := range []string{"openai", "anthropic", "ollama"} {
		if _, err := db.UpsertProvider(ctx, &models.Provider{Name: name, Type: name, Enabled: true}); err != nil {
			t.Fatalf("UpsertProvider(%s): %v", name, err)
		}
	}

	err := db.ReplaceMappings(ctx, "cv_parsing", []models.ServiceMapping{
		{ProviderName: "ollama", Model: "llama3.2", Priority: 3, Active: true},
		{ProviderName: "openai", Model: "gpt-4o-mini", Priority: 1, Active: true},
		{ProviderName: "anthropic", Model: "claude-3-5-haiku-latest", Priority: 2, Active: false},
	})
	if err != nil {
		t.Fatalf("ReplaceMappings: %v", err)
	}
}

func TestActiveMappings_OrderedAndFiltered(t *testing.T) {
	db := newTestDB(t)
	seedChain(t, db)

	mappings, err := db.ActiveMappings(context.Background(), "cv_parsing")
	if err != nil {
		t.Fatalf("ActiveMappings: %v", err)
	}
	if len(mappings) != 2 {
		t.Fatalf("got %d mappings, want 2", len(mappings))
	}
	if mappings[0].ProviderName != "openai" || mappings[1].ProviderName != "ollama" {
		t.Errorf("order = [%s %s], want [openai ollama]", mappings[0].ProviderName, mappings[1].ProviderName)
	}

	none, err := db.ActiveMappings(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("ActiveMappings(unknown): %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unknown service type returned %d mappings", len(none))
	}
}

func TestReplaceMappings_Validation(t *testing.T) {
	db := newTestDB(t)
	seedChain(t, db)
	ctx := context.Background()

	err := db.ReplaceMappings(ctx, "cv_parsing", []models.ServiceMapping{
		{ProviderName: "openai", Priority: 1, Active: true},
		{ProviderName: "ollama", Priority: 1, Active: true},
	})
	if err == nil || !strings.Contains(err.Error(), "duplicate priority") {
		t.Errorf("duplicate priority error = %v", err)
	}

	err = db.ReplaceMappings(ctx, "cv_parsing", []models.ServiceMapping{
		{ProviderName: "missing", Priority: 1, Active: true},
	})
	if err == nil || !strings.Contains(err.Error(), "unknown provider") {
		t.Errorf("unknown provider error = %v", err)
	}

	// Failed replacements leave the existing chain intact
	mappings, err := db.ActiveMappings(ctx, "cv_parsing")
	if err != nil {
		t.Fatalf("ActiveMappings: %v", err)
	}
	if len(mappings) != 2 {
		t.Errorf("chain changed after failed replace: %d mappings", len(mappings))
	}

	types, err := db.ServiceTypes(ctx)
	if err != nil {
		t.Fatalf("ServiceTypes: %v", err)
	}
	if len(types) != 1 || types[0] != "cv_parsing" {
		t.Errorf("service types = %v", types)
	}
}

func TestRequestLogs_RoundTripStatsAndPrune(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	errType := "invocation"
	errMsg := "all providers failed"
	old := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Microsecond)

	entries := []*models.RequestLog{
		{ID: "a", ServiceType: "cv_parsing", Kind: models.KindLLM, Provider: "openai", Success: true, DurationMs: 100,
			FailoverAttempt: 1, TotalAttempts: 1,
			Attempts: []models.AttemptLog{{Provider: "openai", DurationMs: 100}}},
		{ID: "b", ServiceType: "cv_parsing", Kind: models.KindLLM, Provider: "ollama", Success: true, DurationMs: 300,
			FailoverAttempt: 2, TotalAttempts: 2},
		{ID: "c", ServiceType: "matching", Kind: models.KindLLM, Provider: "none", Success: false, DurationMs: 50,
			TotalAttempts: 2, ErrorType: &errType, ErrorMessage: &errMsg},
		{ID: "old", ServiceType: "cv_parsing", Kind: models.KindLLM, Provider: "openai", Success: true, DurationMs: 10,
			CreatedAt: old},
	}
	for _, e := range entries {
		if err := db.LogRequest(ctx, e); err != nil {
			t.Fatalf("LogRequest(%s): %v", e.ID, err)
		}
	}

	logs, err := db.RecentRequestLogs(ctx, "cv_parsing", 10)
	if err != nil {
		t.Fatalf("RecentRequestLogs: %v", err)
	}
	if len(logs) != 3 {
		t.Fatalf("got %d cv_parsing logs, want 3", len(logs))
	}
	if logs[len(logs)-1].ID != "old" {
		t.Errorf("oldest log last: got %s", logs[len(logs)-1].ID)
	}

	all, err := db.RecentRequestLogs(ctx, "", 0)
	if err != nil {
		t.Fatalf("RecentRequestLogs(all): %v", err)
	}
	var failed *models.RequestLog
	for i := range all {
		if all[i].ID == "c" {
			failed = &all[i]
		}
		if all[i].ID == "a" && len(all[i].Attempts) != 1 {
			t.Errorf("attempts not round-tripped: %+v", all[i].Attempts)
		}
	}
	if failed == nil || failed.ErrorType == nil || *failed.ErrorType != "invocation" {
		t.Errorf("failed log error type not persisted: %+v", failed)
	}

	stats, err := db.ProviderStats(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("ProviderStats: %v", err)
	}
	byProvider := map[string]models.ProviderStats{}
	for _, s := range stats {
		byProvider[s.Provider] = s
	}
	if byProvider["openai"].Requests != 1 {
		t.Errorf("openai requests = %d, want 1 (old row excluded)", byProvider["openai"].Requests)
	}
	if byProvider["none"].Failures != 1 {
		t.Errorf("none failures = %d, want 1", byProvider["none"].Failures)
	}

	removed, err := db.PruneRequestLogs(ctx, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PruneRequestLogs: %v", err)
	}
	if removed != 1 {
		t.Errorf("pruned %d rows, want 1", removed)
	}
}
