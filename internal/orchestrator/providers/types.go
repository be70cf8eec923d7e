package providers

import (
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Request is the payload handed to an adapter. LLM adapters read the prompt
// fields, document adapters read FilePath.
type Request struct {
	Prompt       string                         `json:"prompt,omitempty"`
	SystemPrompt string                         `json:"system_prompt,omitempty"`
	Messages     []openai.ChatCompletionMessage `json:"messages,omitempty"`
	Model        string                         `json:"model,omitempty"`
	Temperature  *float32                       `json:"temperature,omitempty"`
	MaxTokens    *int                           `json:"max_tokens,omitempty"`
	TopP         *float32                       `json:"top_p,omitempty"`
	FilePath     string                         `json:"file_path,omitempty"`
}

// Result is what a successful invocation produced
type Result struct {
	Content          string         `json:"content"`
	Model            string         `json:"model,omitempty"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	TotalTokens      int            `json:"total_tokens"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Adapter is the interface every provider variant implements
type Adapter interface {
	// Name is the registry key (the configured provider name)
	Name() string
	DisplayName() string
	// Kind is models.KindLLM or models.KindDocument
	Kind() string
	Invoke(ctx context.Context, req Request) (*Result, error)
	// HealthCheck is a lightweight reachability probe; callers bound it with a timeout
	HealthCheck(ctx context.Context) error
	// Supports reports whether the adapter handles a model name (LLM) or a
	// file extension such as ".pdf" (document)
	Supports(capability string) bool
}

// base carries the identity and capability set shared by all adapters
type base struct {
	name         string
	displayName  string
	kind         string
	capabilities map[string]bool
}

func newBase(name, displayName, kind string, capabilities []string) base {
	b := base{
		name:         name,
		displayName:  displayName,
		kind:         kind,
		capabilities: make(map[string]bool, len(capabilities)),
	}
	if b.displayName == "" {
		b.displayName = name
	}
	for _, c := range capabilities {
		b.capabilities[strings.ToLower(c)] = true
	}
	return b
}

func (b *base) Name() string        { return b.name }
func (b *base) DisplayName() string { return b.displayName }
func (b *base) Kind() string        { return b.kind }

// Supports matches case-insensitively. An empty capability set accepts
// everything, and so does an empty capability.
func (b *base) Supports(capability string) bool {
	if capability == "" || len(b.capabilities) == 0 {
		return true
	}
	return b.capabilities[strings.ToLower(capability)]
}

// chatMessages flattens the request into an ordered message list
func chatMessages(req Request) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	msgs = append(msgs, req.Messages...)
	if req.Prompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Prompt})
	}
	return msgs
}

// promptText concatenates message contents for token estimation
func promptText(msgs []openai.ChatCompletionMessage) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}
