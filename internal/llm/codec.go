package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/BioTRaX/Growen-sub001/internal/metrics"
	"github.com/BioTRaX/Growen-sub001/pkg/models"
)

// ── Chat-completions wire format ────────────────────────────

type wireMessage struct {
	Role       string                  `json:"role"`
	Content    interface{}             `json:"content"` // string, []models.ContentPart or nil
	ToolCalls  []models.ToolCallResult `json:"tool_calls,omitempty"`
	ToolCallID string                  `json:"tool_call_id,omitempty"`
	Name       string                  `json:"name,omitempty"`
}

type chatRequest struct {
	Model       string                  `json:"model"`
	Messages    []wireMessage           `json:"messages"`
	Temperature *float64                `json:"temperature,omitempty"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
	Stream      bool                    `json:"stream,omitempty"`
	Tools       []models.ToolDefinition `json:"tools,omitempty"`
	ToolChoice  string                  `json:"tool_choice,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message struct {
			Content   string                  `json:"content"`
			ToolCalls []models.ToolCallResult `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
}

type streamDelta struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

// toWire converts a Prompt into chat-completions messages.
func toWire(p Prompt) []wireMessage {
	out := make([]wireMessage, 0, len(p.Messages)+2)
	if p.System != "" {
		out = append(out, wireMessage{Role: models.RoleSystem, Content: p.System})
	}
	for _, m := range p.Messages {
		out = append(out, messageToWire(m))
	}
	if p.User != "" || len(p.Images) > 0 {
		out = append(out, messageToWire(UserMessage(p.User, p.Images)))
	}
	return out
}

// UserMessage builds a user turn, switching to content parts when images are attached.
func UserMessage(text string, images []string) models.ChatMessage {
	if len(images) == 0 {
		return models.ChatMessage{Role: models.RoleUser, Content: text}
	}
	parts := make([]models.ContentPart, 0, len(images)+1)
	if text != "" {
		parts = append(parts, models.ContentPart{Type: "text", Text: text})
	}
	for _, img := range images {
		parts = append(parts, models.ContentPart{
			Type:     "image_url",
			ImageURL: &models.ImageURL{URL: img, Detail: "auto"},
		})
	}
	return models.ChatMessage{Role: models.RoleUser, ContentParts: parts}
}

func messageToWire(m models.ChatMessage) wireMessage {
	w := wireMessage{
		Role:       m.Role,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		Name:       m.Name,
	}
	switch {
	case len(m.ContentParts) > 0:
		w.Content = m.ContentParts
	case m.Content == "" && len(m.ToolCalls) > 0:
		w.Content = nil
	default:
		w.Content = m.Content
	}
	return w
}

// ── Shared HTTP client ──────────────────────────────────────

// chatClient is the transport both adapters share. It owns the endpoint,
// credentials and per-call timeout of one backend.
type chatClient struct {
	name        ProviderName
	endpoint    string // full URL of the chat-completions route
	apiKey      string
	model       string
	timeout     time.Duration
	temperature *float64
	maxTokens   int
	http        *http.Client
	metrics     *metrics.Metrics
}

func (c *chatClient) newRequest(p Prompt) chatRequest {
	req := chatRequest{
		Model:       c.model,
		Messages:    toWire(p),
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if p.Temperature != nil {
		req.Temperature = p.Temperature
	}
	if p.MaxTokens > 0 {
		req.MaxTokens = p.MaxTokens
	}
	return req
}

func (c *chatClient) post(ctx context.Context, body chatRequest) (*http.Response, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Kind: KindMalformed, Err: err}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(raw))
	if err != nil {
		return nil, &ProviderError{Provider: c.name, Kind: KindNetwork, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	if body.Stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, c.transportError(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		// Bodies can carry prompt echoes; log a bounded prefix, never return it.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		log.Warn().
			Str("provider", string(c.name)).
			Int("status", resp.StatusCode).
			Str("body", string(snippet)).
			Msg("Provider returned non-200")
		return nil, &ProviderError{Provider: c.name, Kind: KindBadStatus, Status: resp.StatusCode}
	}
	return resp, nil
}

func (c *chatClient) transportError(ctx context.Context, err error) error {
	var ne net.Error
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) ||
		(errors.As(err, &ne) && ne.Timeout()) {
		return &ProviderError{Provider: c.name, Kind: KindTimeout, Err: err}
	}
	return &ProviderError{Provider: c.name, Kind: KindNetwork, Err: err}
}

// complete runs one non-streaming call under the backend's timeout.
func (c *chatClient) complete(ctx context.Context, body chatRequest) (*chatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	out, err := c.doComplete(ctx, body)
	c.metrics.RecordProviderCall(string(c.name), outcome(err), time.Since(start))
	return out, err
}

func (c *chatClient) doComplete(ctx context.Context, body chatRequest) (*chatResponse, error) {
	resp, err := c.post(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		if ctx.Err() != nil {
			return nil, c.transportError(ctx, err)
		}
		return nil, &ProviderError{Provider: c.name, Kind: KindMalformed, Err: fmt.Errorf("decode response: %w", err)}
	}
	if len(cr.Choices) == 0 {
		return nil, &ProviderError{Provider: c.name, Kind: KindMalformed, Err: errors.New("no choices in response")}
	}
	return &cr, nil
}

func (c *chatClient) result(cr *chatResponse) Result {
	return Result{
		Provider: c.name,
		Model:    c.model,
		Text:     strings.TrimSpace(cr.Choices[0].Message.Content),
		Usage: models.TokenUsage{
			InputTokens:  cr.Usage.PromptTokens,
			OutputTokens: cr.Usage.CompletionTokens,
			TotalTokens:  cr.Usage.TotalTokens,
		},
	}
}

func (c *chatClient) generate(ctx context.Context, p Prompt) (*Result, error) {
	cr, err := c.complete(ctx, c.newRequest(p))
	if err != nil {
		return nil, err
	}
	res := c.result(cr)
	return &res, nil
}

func (c *chatClient) generateWithTools(ctx context.Context, req ToolRequest) (*ToolResponse, error) {
	body := c.newRequest(req.Prompt)
	if len(req.Tools) > 0 {
		body.Tools = req.Tools
		body.ToolChoice = req.ToolChoice
		if body.ToolChoice == "" {
			body.ToolChoice = "auto"
		}
	}

	cr, err := c.complete(ctx, body)
	if err != nil {
		return nil, err
	}

	msg := cr.Choices[0].Message
	calls := make([]models.ToolCallResult, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		if tc.Type == "" {
			tc.Type = "function"
		}
		calls = append(calls, tc)
	}
	return &ToolResponse{
		Result:    c.result(cr),
		ToolCalls: calls,
		AssistantMessage: models.ChatMessage{
			Role:      models.RoleAssistant,
			Content:   msg.Content,
			ToolCalls: calls,
		},
	}, nil
}

// stream starts a server-sent-events call. The returned channel is closed
// after a Done or Err chunk; the timeout context lives until then.
func (c *chatClient) stream(ctx context.Context, p Prompt) (<-chan StreamChunk, error) {
	body := c.newRequest(p)
	body.Stream = true

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	start := time.Now()
	resp, err := c.post(ctx, body)
	if err != nil {
		cancel()
		c.metrics.RecordProviderCall(string(c.name), outcome(err), time.Since(start))
		return nil, err
	}

	ch := make(chan StreamChunk, 16)
	go func() {
		defer close(ch)
		defer cancel()
		defer resp.Body.Close()

		err := c.readSSE(ctx, resp.Body, ch)
		c.metrics.RecordProviderCall(string(c.name), outcome(err), time.Since(start))
		if err != nil {
			send(ctx, ch, StreamChunk{Err: err})
			return
		}
		send(ctx, ch, StreamChunk{Done: true})
	}()
	return ch, nil
}

func (c *chatClient) readSSE(ctx context.Context, r io.Reader, ch chan<- StreamChunk) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return nil
		}
		var d streamDelta
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return &ProviderError{Provider: c.name, Kind: KindMalformed, Err: fmt.Errorf("decode chunk: %w", err)}
		}
		for _, choice := range d.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			if !send(ctx, ch, StreamChunk{Text: choice.Delta.Content}) {
				return c.transportError(ctx, ctx.Err())
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return c.transportError(ctx, err)
	}
	return nil
}

func send(ctx context.Context, ch chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return string(pe.Kind)
	}
	return "error"
}
