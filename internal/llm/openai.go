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

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAIConfig configures the hosted backend.
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Timeout     time.Duration
	Temperature *float64
	MaxTokens   int
	HTTPClient  *http.Client
	Metrics     *metrics.Metrics
}

// OpenAIProvider is the remote backend. It supports every task.
type OpenAIProvider struct {
	client chatClient
}

var (
	_ StreamingProvider = (*OpenAIProvider)(nil)
	_ ToolCaller        = (*OpenAIProvider)(nil)
)

// NewOpenAIProvider validates cfg and builds the adapter. A missing API key is
// accepted and only reported through Descriptor().HasCredentials.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("openai: model is required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("openai: timeout must be positive")
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultOpenAIBaseURL
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &OpenAIProvider{client: chatClient{
		name:        Remote,
		endpoint:    base + "/chat/completions",
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		http:        hc,
		metrics:     cfg.Metrics,
	}}, nil
}

func (p *OpenAIProvider) Name() ProviderName { return Remote }

func (p *OpenAIProvider) Descriptor() Descriptor {
	return Descriptor{
		Name:           Remote,
		Model:          p.client.model,
		Tasks:          task.All(),
		HasCredentials: p.client.apiKey != "",
	}
}

func (p *OpenAIProvider) Supports(t task.Task) bool { return t.Valid() }

func (p *OpenAIProvider) Generate(ctx context.Context, pr Prompt) (*Result, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	return p.client.generate(ctx, pr)
}

func (p *OpenAIProvider) GenerateStream(ctx context.Context, pr Prompt) (<-chan StreamChunk, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	return p.client.stream(ctx, pr)
}

func (p *OpenAIProvider) GenerateWithTools(ctx context.Context, req ToolRequest) (*ToolResponse, error) {
	if err := p.ready(); err != nil {
		return nil, err
	}
	return p.client.generateWithTools(ctx, req)
}

func (p *OpenAIProvider) ready() error {
	if p.client.apiKey == "" {
		return &ProviderError{Provider: Remote, Kind: KindUnavailable, Err: errors.New("api key not configured")}
	}
	return nil
}
