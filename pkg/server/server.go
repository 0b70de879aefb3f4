// Package server provides the public entry point for initializing the Growen
// AI orchestration core: it builds every component from configuration and
// returns the HTTP handler.
//
// Usage:
//
//	srv, err := server.New(ctx)
//	defer srv.Close(ctx)
//	http.ListenAndServe(fmt.Sprintf(":%d", srv.Port), srv.Handler)
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/BioTRaX/Growen-sub001/internal/api"
	"github.com/BioTRaX/Growen-sub001/internal/api/handlers"
	"github.com/BioTRaX/Growen-sub001/internal/auth"
	"github.com/BioTRaX/Growen-sub001/internal/catalog"
	"github.com/BioTRaX/Growen-sub001/internal/chat"
	"github.com/BioTRaX/Growen-sub001/internal/config"
	"github.com/BioTRaX/Growen-sub001/internal/disambig"
	"github.com/BioTRaX/Growen-sub001/internal/executor"
	"github.com/BioTRaX/Growen-sub001/internal/guardrails"
	"github.com/BioTRaX/Growen-sub001/internal/history"
	"github.com/BioTRaX/Growen-sub001/internal/llm"
	"github.com/BioTRaX/Growen-sub001/internal/metrics"
	"github.com/BioTRaX/Growen-sub001/internal/persona"
	"github.com/BioTRaX/Growen-sub001/internal/resolver"
	"github.com/BioTRaX/Growen-sub001/internal/retention"
	"github.com/BioTRaX/Growen-sub001/internal/router"
	"github.com/BioTRaX/Growen-sub001/internal/telemetry"
	"github.com/BioTRaX/Growen-sub001/internal/toolrpc"
)

// Server holds the initialized orchestration core.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Config is the configuration the server was built from.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// Router is the routing policy, exposed for diagnostics.
	Router *router.Router

	closers  []func() error
	shutdown telemetry.Shutdown
}

// New loads configuration from the environment and builds the server.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig builds every component from cfg. Stores opened before a
// failure are closed again.
func NewWithConfig(ctx context.Context, cfg *config.Config) (*Server, error) {
	s := &Server{Config: cfg, Port: cfg.Port}
	if err := s.build(ctx, cfg); err != nil {
		s.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context, cfg *config.Config) error {
	var err error

	// ── Telemetry ──────────────────────────────────────
	s.shutdown, err = telemetry.Init(ctx, cfg.Telemetry, cfg.Version)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	m := metrics.Default()

	// ── Providers & routing ────────────────────────────
	rt, err := buildRouter(cfg.AI, m)
	if err != nil {
		return err
	}
	s.Router = rt

	// ── Catalog & resolver ─────────────────────────────
	cat, err := s.openCatalog(ctx, cfg.Catalog)
	if err != nil {
		return err
	}
	res := resolver.New(cat, resolver.WithMetrics(m))

	// ── Tool protocol ──────────────────────────────────
	rpc, err := toolrpc.New(toolrpc.Config{
		BaseURL: cfg.Tools.BaseURL,
		Secret:  cfg.Tools.Secret,
		Timeout: cfg.Tools.Timeout,
	})
	if err != nil {
		return fmt.Errorf("init tool rpc: %w", err)
	}
	var tools executor.ToolDispatcher = rpc
	if !rpc.Enabled() {
		tools = resolver.NewLocalTools(res)
		log.Info().Msg("🧰 Tool RPC not configured, serving tools from the local resolver")
	} else {
		log.Info().Str("base_url", cfg.Tools.BaseURL).Msg("🧰 Tool RPC client initialized")
	}
	exec := executor.New(rt, tools, executor.Options{
		MaxCallsPerRound: cfg.Tools.MaxCallsPerRound,
		Metrics:          m,
	})

	// ── Session state ──────────────────────────────────
	dis, err := s.openDisambig(ctx, cfg.Disambig)
	if err != nil {
		return err
	}
	hist, err := s.openHistory(cfg.History)
	if err != nil {
		return err
	}
	s.startJanitor(ctx, hist, cfg.History)

	// ── Chat front end ─────────────────────────────────
	engine, err := chat.NewEngine(chat.Deps{
		Router:   rt,
		Executor: exec,
		Resolver: res,
		Disambig: dis,
		History:  hist,
		Guard: guardrails.New(guardrails.Config{
			MaxChars:     cfg.Chat.MaxMessageChars,
			BlockedWords: cfg.Guard.BlockedWords,
			Sensitivity:  cfg.Guard.Sensitivity,
		}),
		Templates:    persona.DefaultTemplates,
		HistoryTurns: cfg.Chat.HistoryTurns,
		Metrics:      m,
	})
	if err != nil {
		return fmt.Errorf("init chat engine: %w", err)
	}
	chatHandler := chat.NewHandler(engine, chat.HandlerConfig{
		ReadTimeout:    cfg.Chat.ReadTimeout,
		Keepalive:      cfg.Chat.Keepalive,
		MaxChars:       cfg.Chat.MaxMessageChars,
		StreamDefault:  cfg.Chat.StreamDefault,
		AllowedOrigins: cfg.Chat.AllowedOrigins,
		Classifier:     persona.DefaultClassifier,
		Metrics:        m,
	})
	log.Info().Msg("✅ Chat engine initialized")

	// ── HTTP ───────────────────────────────────────────
	chain := auth.NewProviderChain(
		auth.NewTrustedHeaderProvider(cfg.Auth.TrustHeaders, cfg.Auth.ProxySecret),
		auth.NewSessionTokenProvider(cfg.Auth.SessionSecret),
	)
	s.Handler = api.NewRouter(api.Deps{
		Handlers:       handlers.New(rt, res, hist, cfg.Version),
		Chat:           chatHandler,
		Auth:           chain,
		Metrics:        m,
		AllowedOrigins: cfg.Chat.AllowedOrigins,
	})
	return nil
}

// Close releases stores and flushes telemetry.
func (s *Server) Close(ctx context.Context) error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	if s.shutdown != nil {
		if err := s.shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		s.shutdown = nil
	}
	return errors.Join(errs...)
}

func buildRouter(cfg config.AIConfig, m *metrics.Metrics) (*router.Router, error) {
	mode, err := router.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	temp := cfg.Temperature

	avail := llm.NewAvailability(cfg.OllamaURL, cfg.AvailabilityTTL)
	registry := llm.NewRegistry()

	local, err := llm.NewOllamaProvider(llm.OllamaConfig{
		BaseURL:     cfg.OllamaURL,
		Model:       cfg.OllamaModel,
		Timeout:     cfg.OllamaTimeout,
		Temperature: &temp,
		MaxTokens:   cfg.MaxTokens,
		Metrics:     m,
	}, avail)
	if err != nil {
		return nil, fmt.Errorf("init local provider: %w", err)
	}
	registry.Register(local)

	remote, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
		BaseURL:     cfg.OpenAIBaseURL,
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.OpenAIModel,
		Timeout:     cfg.OpenAITimeout,
		Temperature: &temp,
		MaxTokens:   cfg.MaxTokens,
		Metrics:     m,
	})
	if err != nil {
		return nil, fmt.Errorf("init remote provider: %w", err)
	}
	registry.Register(remote)

	policy := router.Policy{Mode: mode, AllowExternal: cfg.AllowExternal, Table: router.DefaultTable()}
	log.Info().
		Str("mode", string(mode)).
		Bool("allow_external", cfg.AllowExternal).
		Bool("remote_credentials", cfg.OpenAIAPIKey != "").
		Msg("✅ Model router initialized")
	return router.New(registry, avail, policy, m), nil
}

func (s *Server) openCatalog(ctx context.Context, cfg config.CatalogConfig) (catalog.Catalog, error) {
	switch {
	case cfg.PostgresDSN != "":
		pg, err := catalog.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { pg.Close(); return nil })
		log.Info().Msg("✅ Postgres catalog connected")
		return pg, nil
	case cfg.SeedFile != "":
		mem, err := catalog.LoadSeedFile(cfg.SeedFile)
		if err != nil {
			return nil, err
		}
		log.Info().Int("entries", mem.Len()).Str("file", cfg.SeedFile).Msg("✅ Catalog seed loaded")
		return mem, nil
	}
	log.Warn().Msg("⚠️ No catalog configured, product lookups will find nothing")
	return catalog.NewMemoryCatalog(), nil
}

func (s *Server) openDisambig(ctx context.Context, cfg config.DisambigConfig) (disambig.Store, error) {
	if cfg.RedisURL == "" {
		log.Info().Dur("ttl", cfg.TTL).Msg("✅ In-memory disambiguation store initialized")
		return disambig.NewMemoryStore(cfg.TTL), nil
	}
	rs, err := disambig.NewRedisStore(ctx, cfg.RedisURL, cfg.TTL)
	if err != nil {
		return nil, fmt.Errorf("open disambiguation store: %w", err)
	}
	s.closers = append(s.closers, rs.Close)
	log.Info().Dur("ttl", cfg.TTL).Msg("✅ Redis disambiguation store connected")
	return rs, nil
}

// startJanitor prunes expired history in the background until Close.
func (s *Server) startJanitor(ctx context.Context, hist history.Store, cfg config.HistoryConfig) {
	if cfg.Retention <= 0 {
		log.Info().Msg("History retention disabled")
		return
	}
	jctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go func() {
		defer close(done)
		retention.NewJanitor(hist, cfg.PruneInterval, cfg.Retention).Start(jctx)
	}()
	s.closers = append(s.closers, func() error {
		cancel()
		<-done
		return nil
	})
}

func (s *Server) openHistory(cfg config.HistoryConfig) (history.Store, error) {
	if cfg.SQLitePath == "" {
		log.Info().Msg("✅ In-memory history store initialized")
		return history.NewMemoryStore(), nil
	}
	st, err := history.OpenSQLite(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	s.closers = append(s.closers, st.Close)
	log.Info().Str("path", cfg.SQLitePath).Msg("✅ SQLite history store initialized")
	return st, nil
}
