package chain

import (
	"sort"

	"github.com/steelburn/candidacy-sub001/internal/shared/models"
)

// CatchAll is the service type whose chain applies to unknown service types
const CatchAll = "default"

var llmChain = []Entry{
	{Provider: models.TypeOpenAI, Model: "gpt-4o-mini", Priority: 1},
	{Provider: models.TypeAnthropic, Model: "claude-haiku-4-5-20251001", Priority: 2},
	{Provider: models.TypeGemini, Model: "gemini-2.5-flash", Priority: 3},
	{Provider: models.TypeOllama, Model: "llama3.2", Priority: 4},
}

var reasoningChain = []Entry{
	{Provider: models.TypeOpenAI, Model: "gpt-4o", Priority: 1},
	{Provider: models.TypeAnthropic, Model: "claude-sonnet-4-5-20250929", Priority: 2},
	{Provider: models.TypeGemini, Model: "gemini-2.5-pro", Priority: 3},
	{Provider: models.TypeOllama, Model: "llama3.2", Priority: 4},
}

func documentChain(local string) []Entry {
	return []Entry{
		{Provider: local, Priority: 1},
		{Provider: models.TypeHTTPParser, Priority: 2},
	}
}

// defaultChains apply when a service type has no active mappings. Provider
// names here are the conventional names catalogs give each provider type.
var defaultChains = map[string][]Entry{
	CatchAll:              llmChain,
	"matching":            reasoningChain,
	"cv-parsing":          llmChain,
	"questionnaire":       llmChain,
	"job-description":     llmChain,
	"interview-questions": reasoningChain,
	"pdf":                 documentChain(models.TypePDF),
	"docx":                documentChain(models.TypeDOCX),
	"doc":                 {{Provider: models.TypeHTTPParser, Priority: 1}},
	"rtf":                 {{Provider: models.TypeHTTPParser, Priority: 1}},
	"odt":                 {{Provider: models.TypeHTTPParser, Priority: 1}},
	"html":                documentChain(models.TypeHTML),
	"htm":                 documentChain(models.TypeHTML),
	"md":                  {{Provider: models.TypeMarkdown, Priority: 1}, {Provider: models.TypeText, Priority: 2}},
	"markdown":            {{Provider: models.TypeMarkdown, Priority: 1}, {Provider: models.TypeText, Priority: 2}},
	"txt":                 {{Provider: models.TypeText, Priority: 1}},
}

// DefaultChain returns a copy of the built-in chain for serviceType, or the
// catch-all chain. It is never empty.
func DefaultChain(serviceType string) []Entry {
	entries, ok := defaultChains[serviceType]
	if !ok {
		entries = defaultChains[CatchAll]
	}
	return clone(entries)
}

// Defaults returns every built-in chain keyed by service type
func Defaults() map[string][]Entry {
	out := make(map[string][]Entry, len(defaultChains))
	for k, v := range defaultChains {
		out[k] = clone(v)
	}
	return out
}

// DefaultServiceTypes lists the service types with a built-in chain, sorted
func DefaultServiceTypes() []string {
	types := make([]string, 0, len(defaultChains))
	for k := range defaultChains {
		types = append(types, k)
	}
	sort.Strings(types)
	return types
}

func clone(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	return out
}
