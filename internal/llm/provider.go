// Package llm wraps the language-model backends behind one capability
// interface.
//
// Two backends exist: a self-hosted Ollama daemon (local) and a hosted
// OpenAI-compatible API (remote). Both speak the chat-completions wire format,
// so a single codec serves both. Streaming and tool calling are optional
// extensions discovered through type assertion on StreamingProvider and
// ToolCaller.
package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/BioTRaX/Growen-sub001/internal/task"
	"github.com/BioTRaX/Growen-sub001/pkg/models"
)

// ProviderName identifies a backend.
type ProviderName string

const (
	Local  ProviderName = "local"
	Remote ProviderName = "remote"
)

// Other returns the opposite backend of the local/remote pair.
func (n ProviderName) Other() ProviderName {
	if n == Local {
		return Remote
	}
	return Local
}

func (n ProviderName) String() string { return string(n) }

// Descriptor reports one backend's capabilities at a point in time.
type Descriptor struct {
	Name           ProviderName `json:"name"`
	Model          string       `json:"model"`
	Tasks          []task.Task  `json:"tasks"`
	HasCredentials bool         `json:"has_credentials"`
}

// Supports reports whether t is in the descriptor's task set.
func (d Descriptor) Supports(t task.Task) bool {
	for _, k := range d.Tasks {
		if k == t {
			return true
		}
	}
	return false
}

// Prompt is one generation request. Messages carries history and, during the
// follow-up round, the tool-call exchange. User is appended last when set,
// together with Images as image parts.
type Prompt struct {
	System      string
	Messages    []models.ChatMessage
	User        string
	Images      []string
	Temperature *float64
	MaxTokens   int
}

// Result is the tagged output of every adapter call.
type Result struct {
	Provider ProviderName      `json:"provider"`
	Model    string            `json:"model"`
	Text     string            `json:"text"`
	Usage    models.TokenUsage `json:"usage"`
}

// StreamChunk is one fragment of a streamed generation. The final chunk has
// Done set; a chunk with Err set is also final.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// ToolRequest is a generation with tool use enabled.
type ToolRequest struct {
	Prompt     Prompt
	Tools      []models.ToolDefinition
	ToolChoice string // "auto" when empty
}

// ToolResponse carries either text or requested tool calls. AssistantMessage
// is the message to echo back in the follow-up round.
type ToolResponse struct {
	Result
	ToolCalls        []models.ToolCallResult
	AssistantMessage models.ChatMessage
}

// ── Capability interfaces ───────────────────────────────────

// Provider is implemented by every backend.
type Provider interface {
	Name() ProviderName
	Descriptor() Descriptor
	Supports(t task.Task) bool
	Generate(ctx context.Context, p Prompt) (*Result, error)
}

// StreamingProvider is implemented by backends able to stream text.
type StreamingProvider interface {
	Provider
	GenerateStream(ctx context.Context, p Prompt) (<-chan StreamChunk, error)
}

// ToolCaller is implemented by backends supporting structured tool calls.
type ToolCaller interface {
	Provider
	GenerateWithTools(ctx context.Context, req ToolRequest) (*ToolResponse, error)
}

// ── Errors ──────────────────────────────────────────────────

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	KindUnavailable ErrorKind = "unavailable"
	KindTimeout     ErrorKind = "timeout"
	KindNetwork     ErrorKind = "network"
	KindBadStatus   ErrorKind = "bad_status"
	KindMalformed   ErrorKind = "malformed"
)

// ProviderError is returned by every adapter call that fails.
type ProviderError struct {
	Provider ProviderName
	Kind     ErrorKind
	Status   int
	Err      error
}

func (e *ProviderError) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s: %s (status %d)", e.Provider, e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Provider, e.Kind)
	}
}

func (e *ProviderError) Unwrap() error { return e.Err }

// IsKind reports whether err is a *ProviderError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Kind == kind
}
