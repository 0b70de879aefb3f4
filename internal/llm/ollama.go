package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/BioTRaX/Growen-sub001/internal/metrics"
	"github.com/BioTRaX/Growen-sub001/internal/task"
)

// OllamaConfig configures the self-hosted backend.
type OllamaConfig struct {
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature *float64
	MaxTokens   int
	HTTPClient  *http.Client
	Metrics     *metrics.Metrics
}

// ollamaTasks are the tasks small local models handle acceptably.
var ollamaTasks = []task.Task{
	task.Parse,
	task.Intent,
	task.ShortAnswer,
	task.Chat,
	task.ContentGeneration,
	task.Reasoning,
}

// OllamaProvider is the local backend, reached through Ollama's
// OpenAI-compatible route.
type OllamaProvider struct {
	client  chatClient
	baseURL string
	avail   *Availability
}

var (
	_ StreamingProvider = (*OllamaProvider)(nil)
	_ ToolCaller        = (*OllamaProvider)(nil)
)

// NewOllamaProvider validates cfg and builds the adapter. avail may be nil, in
// which case the daemon is assumed reachable whenever a base URL is set.
func NewOllamaProvider(cfg OllamaConfig, avail *Availability) (*OllamaProvider, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("ollama: model is required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("ollama: timeout must be positive")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &OllamaProvider{
		baseURL: base,
		avail:   avail,
		client: chatClient{
			name:        Local,
			endpoint:    base + "/v1/chat/completions",
			model:       cfg.Model,
			timeout:     cfg.Timeout,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
			http:        hc,
			metrics:     cfg.Metrics,
		},
	}, nil
}

func (p *OllamaProvider) Name() ProviderName { return Local }

// Descriptor reads the cached availability; it never probes.
func (p *OllamaProvider) Descriptor() Descriptor {
	tasks := make([]task.Task, len(ollamaTasks))
	copy(tasks, ollamaTasks)
	return Descriptor{
		Name:           Local,
		Model:          p.client.model,
		Tasks:          tasks,
		HasCredentials: p.reachable(),
	}
}

func (p *OllamaProvider) Supports(t task.Task) bool {
	for _, k := range ollamaTasks {
		if k == t {
			return true
		}
	}
	return false
}

func (p *OllamaProvider) Generate(ctx context.Context, pr Prompt) (*Result, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	return p.client.generate(ctx, pr)
}

func (p *OllamaProvider) GenerateStream(ctx context.Context, pr Prompt) (<-chan StreamChunk, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	return p.client.stream(ctx, pr)
}

func (p *OllamaProvider) GenerateWithTools(ctx context.Context, req ToolRequest) (*ToolResponse, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	return p.client.generateWithTools(ctx, req)
}

func (p *OllamaProvider) reachable() bool {
	if p.baseURL == "" {
		return false
	}
	if p.avail == nil {
		return true
	}
	return p.avail.LocalOnline()
}

func (p *OllamaProvider) ready() error {
	if p.baseURL == "" {
		return &ProviderError{Provider: Local, Kind: KindUnavailable, Err: errors.New("base url not configured")}
	}
	return nil
}
