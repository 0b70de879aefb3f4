package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioTRaX/Growen-sub001/internal/task"
	"github.com/BioTRaX/Growen-sub001/pkg/models"
)

func newRemote(t *testing.T, url, key string, timeout time.Duration) *OpenAIProvider {
	t.Helper()
	p, err := NewOpenAIProvider(OpenAIConfig{BaseURL: url, APIKey: key, Model: "gpt-test", Timeout: timeout})
	require.NoError(t, err)
	return p
}

func TestNewOpenAIProvider_Validation(t *testing.T) {
	_, err := NewOpenAIProvider(OpenAIConfig{Timeout: time.Second})
	assert.Error(t, err, "missing model must fail")

	_, err = NewOpenAIProvider(OpenAIConfig{Model: "m"})
	assert.Error(t, err, "non-positive timeout must fail")

	p, err := NewOpenAIProvider(OpenAIConfig{Model: "m", Timeout: time.Second})
	require.NoError(t, err)
	assert.False(t, p.Descriptor().HasCredentials)
	assert.Equal(t, defaultOpenAIBaseURL+"/chat/completions", p.client.endpoint)
}

func TestOpenAI_Generate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req.Model)
		assert.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)
		assert.Empty(t, req.Tools)

		fmt.Fprint(w, `{"id":"x","choices":[{"message":{"content":"  hola  "}}],"usage":{"prompt_tokens":3,"completion_tokens":1,"total_tokens":4}}`)
	}))
	defer srv.Close()

	p := newRemote(t, srv.URL+"/v1", "sk-test", time.Second)
	res, err := p.Generate(context.Background(), Prompt{System: "sys", User: "hi"})
	require.NoError(t, err)
	assert.Equal(t, Remote, res.Provider)
	assert.Equal(t, "hola", res.Text)
	assert.Equal(t, int64(4), res.Usage.TotalTokens)
}

func TestOpenAI_MissingKeyIsUnavailable(t *testing.T) {
	p := newRemote(t, "http://127.0.0.1:1", "", time.Second)
	_, err := p.Generate(context.Background(), Prompt{User: "hi"})
	assert.True(t, IsKind(err, KindUnavailable), "got %v", err)
}

func TestOpenAI_GenerateWithTools(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Len(t, req.Tools, 1)
		assert.Equal(t, "auto", req.ToolChoice)

		fmt.Fprint(w, `{"choices":[{"message":{"content":"","tool_calls":[{"id":"call_1","function":{"name":"search_products","arguments":"{\"q\":\"perlita\"}"}}]}}]}`)
	}))
	defer srv.Close()

	p := newRemote(t, srv.URL, "k", time.Second)
	resp, err := p.GenerateWithTools(context.Background(), ToolRequest{
		Prompt: Prompt{User: "tenés perlita?"},
		Tools: []models.ToolDefinition{{
			Type:     "function",
			Function: models.ToolFunction{Name: "search_products"},
		}},
	})
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 1)
	assert.Equal(t, "function", resp.ToolCalls[0].Type)
	assert.Equal(t, "search_products", resp.ToolCalls[0].Function.Name)
	assert.Equal(t, models.RoleAssistant, resp.AssistantMessage.Role)
	assert.Len(t, resp.AssistantMessage.ToolCalls, 1)
}

func TestOpenAI_BadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "secret internal detail", http.StatusBadGateway)
	}))
	defer srv.Close()

	p := newRemote(t, srv.URL, "k", time.Second)
	_, err := p.Generate(context.Background(), Prompt{User: "hi"})

	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, KindBadStatus, pe.Kind)
	assert.Equal(t, http.StatusBadGateway, pe.Status)
	assert.NotContains(t, err.Error(), "secret internal detail")
}

func TestOpenAI_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	p := newRemote(t, srv.URL, "k", 50*time.Millisecond)
	_, err := p.Generate(context.Background(), Prompt{User: "hi"})
	assert.True(t, IsKind(err, KindTimeout), "got %v", err)
}

func TestOpenAI_Malformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	p := newRemote(t, srv.URL, "k", time.Second)
	_, err := p.Generate(context.Background(), Prompt{User: "hi"})
	assert.True(t, IsKind(err, KindMalformed), "got %v", err)
}

func TestOpenAI_Stream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.True(t, req.Stream)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{"Hola", ", ", "mundo"} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := newRemote(t, srv.URL, "k", time.Second)
	ch, err := p.GenerateStream(context.Background(), Prompt{User: "hi"})
	require.NoError(t, err)

	var text string
	var done bool
	for c := range ch {
		require.NoError(t, c.Err)
		text += c.Text
		done = done || c.Done
	}
	assert.True(t, done)
	assert.Equal(t, "Hola, mundo", text)
}

func TestToWire_ImagesBecomeParts(t *testing.T) {
	msgs := toWire(Prompt{System: "s", User: "qué tiene mi planta?", Images: []string{"https://img/1.jpg"}})
	require.Len(t, msgs, 2)

	parts, ok := msgs[1].Content.([]models.ContentPart)
	require.True(t, ok)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Equal(t, "https://img/1.jpg", parts[1].ImageURL.URL)
}

func TestToWire_ToolCallMessageHasNullContent(t *testing.T) {
	msgs := toWire(Prompt{Messages: []models.ChatMessage{{
		Role:      models.RoleAssistant,
		ToolCalls: []models.ToolCallResult{{ID: "a", Type: "function"}},
	}}})
	require.Len(t, msgs, 1)
	assert.Nil(t, msgs[0].Content)
}

func TestOllama_TasksAndCredentials(t *testing.T) {
	avail := NewAvailability("", time.Minute)
	p, err := NewOllamaProvider(OllamaConfig{BaseURL: "http://ollama:11434", Model: "llama3", Timeout: time.Second}, avail)
	require.NoError(t, err)

	assert.True(t, p.Supports(task.Parse))
	assert.True(t, p.Supports(task.Chat))
	assert.False(t, p.Supports(task.VisionDiagnosis))
	assert.False(t, p.Supports(task.SEO))

	assert.False(t, p.Descriptor().HasCredentials)
	avail.Set(true)
	assert.True(t, p.Descriptor().HasCredentials)

	noURL, err := NewOllamaProvider(OllamaConfig{Model: "llama3", Timeout: time.Second}, nil)
	require.NoError(t, err)
	assert.False(t, noURL.Descriptor().HasCredentials)
}

func TestAvailability_ProbeAndTTL(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/api/tags", r.URL.Path)
		fmt.Fprint(w, `{"models":[]}`)
	}))
	defer srv.Close()

	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	a := NewAvailability(srv.URL, 30*time.Second)
	a.now = func() time.Time { return now }

	a.Refresh(context.Background())
	assert.True(t, a.LocalOnline())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	now = now.Add(10 * time.Second)
	a.Refresh(context.Background())
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits), "fresh cache must not probe")

	now = now.Add(30 * time.Second)
	a.Refresh(context.Background())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestAvailability_Unreachable(t *testing.T) {
	a := NewAvailability("http://127.0.0.1:1", time.Second)
	a.Refresh(context.Background())
	assert.False(t, a.LocalOnline())
}

func TestRegistry(t *testing.T) {
	remote := newRemote(t, "", "k", time.Second)
	local, err := NewOllamaProvider(OllamaConfig{BaseURL: "http://x", Model: "m", Timeout: time.Second}, nil)
	require.NoError(t, err)

	r := NewRegistry(remote, local)
	assert.Equal(t, []ProviderName{Local, Remote}, r.Names())

	other, ok := r.Other(Local)
	require.True(t, ok)
	assert.Equal(t, Remote, other.Name())

	d := r.Descriptors()
	assert.True(t, d[Remote].HasCredentials)
	assert.True(t, d[Local].HasCredentials)
}
