// Package models holds the wire and data types shared across the Growen
// orchestration core: chat messages exchanged with model providers, tool
// definitions and tool calls, and the outbound session envelope.
package models

import "time"

// ── Chat Messages ───────────────────────────────────────────

// Message roles understood by the OpenAI-compatible providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ContentPart represents one piece of a multi-part message (text or image).
type ContentPart struct {
	Type     string    `json:"type"` // "text", "image_url"
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL describes an image for vision-capable models.
type ImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"` // "auto", "low", "high"
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`

	// When ContentParts is set, Content may be empty. Providers use it for
	// text + image turns.
	ContentParts []ContentPart    `json:"content_parts,omitempty"`
	ToolCalls    []ToolCallResult `json:"tool_calls,omitempty"`   // assistant messages with tool calls
	ToolCallID   string           `json:"tool_call_id,omitempty"` // tool result messages
	Name         string           `json:"name,omitempty"`         // function name for tool messages
}

// ── Tool Calling ────────────────────────────────────────────

// ToolDefinition describes a tool the LLM can call.
type ToolDefinition struct {
	Type     string       `json:"type"` // "function"
	Function ToolFunction `json:"function"`
}

// ToolFunction describes a callable function for tool-use.
type ToolFunction struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"` // JSON Schema
}

// ToolCallResult is a structured tool call returned by the LLM.
type ToolCallResult struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its raw JSON arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string
}

type TokenUsage struct {
	InputTokens  int64 `json:"input_tokens"`
	OutputTokens int64 `json:"output_tokens"`
	TotalTokens  int64 `json:"total_tokens"`
}

// ── Session Envelope ────────────────────────────────────────

// Envelope roles.
const (
	EnvelopeAssistant = "assistant"
	EnvelopeSystem    = "system"
	EnvelopePing      = "ping"
)

// Envelope stream markers.
const (
	StreamStart = "start"
	StreamChunk = "chunk"
	StreamEnd   = "end"
	StreamError = "error"
)

// Envelope is the outbound message written to a chat session.
type Envelope struct {
	Role   string                 `json:"role"`
	Text   string                 `json:"text,omitempty"`
	Type   string                 `json:"type,omitempty"`
	Intent string                 `json:"intent,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
	Stream string                 `json:"stream,omitempty"`
	ID     string                 `json:"id,omitempty"`
}

// InboundMessage is the optional structured form of an inbound turn.
// Plain text turns are wrapped into this shape by the session layer.
type InboundMessage struct {
	Text     string `json:"text"`
	ImageURL string `json:"image_url,omitempty"`
	Stream   *bool  `json:"stream,omitempty"`
}

// ── History ─────────────────────────────────────────────────

// HistoryMessage is one persisted side of a chat exchange.
type HistoryMessage struct {
	ID            int64     `json:"id" db:"id"`
	SessionKey    string    `json:"session_key" db:"session_key"`
	UserID        string    `json:"user_id,omitempty" db:"user_id"`
	Role          string    `json:"role" db:"role"`
	Text          string    `json:"text" db:"text"`
	Intent        string    `json:"intent,omitempty" db:"intent"`
	CorrelationID string    `json:"correlation_id,omitempty" db:"correlation_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// AuditEvent records one tool invocation for later review.
type AuditEvent struct {
	ID            int64                  `json:"id" db:"id"`
	SessionKey    string                 `json:"session_key" db:"session_key"`
	CorrelationID string                 `json:"correlation_id,omitempty" db:"correlation_id"`
	Action        string                 `json:"action" db:"action"`
	Role          string                 `json:"role" db:"role"`
	Details       map[string]interface{} `json:"details,omitempty" db:"details"`
	CreatedAt     time.Time              `json:"created_at" db:"created_at"`
}
