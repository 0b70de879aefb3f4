// Package router decides which model backend answers a task.
//
// Route is a pure function of (task, policy, descriptors). Router wraps it
// with the process-wide provider registry and availability cache. A decision
// is made once per top-level request; callers keep it for every round of that
// request. Generate and Stream retry once on the other backend when the
// decided one fails and the policy allows it.
package router

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/BioTRaX/Growen-sub001/internal/llm"
	"github.com/BioTRaX/Growen-sub001/internal/metrics"
	"github.com/BioTRaX/Growen-sub001/internal/task"
)

var tracer = otel.Tracer("growen-router")

// ErrProviderUnavailable is returned when no backend can serve a task.
var ErrProviderUnavailable = errors.New("provider_unavailable")

// Mode is the global routing override.
type Mode string

const (
	ModeAuto        Mode = "auto"
	ModeForceLocal  Mode = "force_local"
	ModeForceRemote Mode = "force_remote"
)

// ParseMode accepts the configuration spellings of a mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "auto":
		return ModeAuto, nil
	case "force_local", "forceLocal", "local":
		return ModeForceLocal, nil
	case "force_remote", "forceRemote", "remote":
		return ModeForceRemote, nil
	}
	return "", fmt.Errorf("unknown routing mode %q", s)
}

// Reason explains a routing decision.
type Reason string

const (
	ReasonPrimary   Reason = "primary"
	ReasonFallback  Reason = "fallback"
	ReasonForced    Reason = "forced"
	ReasonLocalOnly Reason = "local_only"
)

// Decision is the outcome of policy evaluation.
type Decision struct {
	Task     task.Task        `json:"task"`
	Provider llm.ProviderName `json:"provider"`
	Reason   Reason           `json:"reason"`
}

// Policy is the routing configuration.
type Policy struct {
	Mode          Mode
	AllowExternal bool
	Table         map[task.Task]llm.ProviderName
}

// DefaultTable sends cheap structured tasks to the local model and
// open-ended generation to the hosted one.
func DefaultTable() map[task.Task]llm.ProviderName {
	return map[task.Task]llm.ProviderName{
		task.Parse:             llm.Local,
		task.Intent:            llm.Local,
		task.ShortAnswer:       llm.Local,
		task.Chat:              llm.Remote,
		task.ContentGeneration: llm.Remote,
		task.SEO:               llm.Remote,
		task.Reasoning:         llm.Remote,
		task.VisionDiagnosis:   llm.Remote,
	}
}

// Route evaluates the policy. It has no side effects.
func Route(t task.Task, policy Policy, descriptors map[llm.ProviderName]llm.Descriptor) (Decision, error) {
	if !t.Valid() {
		return Decision{}, fmt.Errorf("route: %w", task.ErrUnknownTask)
	}

	viable := func(name llm.ProviderName) bool {
		d, ok := descriptors[name]
		return ok && d.HasCredentials && d.Supports(t)
	}
	pick := func(primary llm.ProviderName, reason Reason) (Decision, error) {
		if viable(primary) {
			return Decision{Task: t, Provider: primary, Reason: reason}, nil
		}
		if viable(primary.Other()) {
			return Decision{Task: t, Provider: primary.Other(), Reason: ReasonFallback}, nil
		}
		return Decision{}, fmt.Errorf("route %s: %w", t, ErrProviderUnavailable)
	}

	switch policy.Mode {
	case ModeForceRemote:
		return pick(llm.Remote, ReasonForced)
	case ModeForceLocal:
		return pick(llm.Local, ReasonForced)
	}

	if !policy.AllowExternal {
		if viable(llm.Local) {
			return Decision{Task: t, Provider: llm.Local, Reason: ReasonLocalOnly}, nil
		}
		return Decision{}, fmt.Errorf("route %s: external providers disabled: %w", t, ErrProviderUnavailable)
	}

	table := policy.Table
	if table == nil {
		table = DefaultTable()
	}
	primary, ok := table[t]
	if !ok {
		primary = llm.Remote
	}
	return pick(primary, ReasonPrimary)
}

// ── Router ──────────────────────────────────────────────────

// Router binds the policy to live providers.
type Router struct {
	registry *llm.Registry
	avail    *llm.Availability
	policy   Policy
	metrics  *metrics.Metrics
}

// New creates a router. avail and m may be nil.
func New(registry *llm.Registry, avail *llm.Availability, policy Policy, m *metrics.Metrics) *Router {
	if policy.Mode == "" {
		policy.Mode = ModeAuto
	}
	if policy.Table == nil {
		policy.Table = DefaultTable()
	}
	return &Router{registry: registry, avail: avail, policy: policy, metrics: m}
}

// Policy returns the active policy.
func (r *Router) Policy() Policy { return r.policy }

// Registry returns the provider registry.
func (r *Router) Registry() *llm.Registry { return r.registry }

// Decide refreshes availability when stale, snapshots descriptors and routes.
func (r *Router) Decide(ctx context.Context, t task.Task) (Decision, error) {
	r.avail.Refresh(ctx)

	d, err := Route(t, r.policy, r.registry.Descriptors())
	if err != nil {
		log.Warn().Str("task", string(t)).Err(err).Msg("No provider available for task")
		r.metrics.RecordRouting(string(t), "none", "unavailable")
		return Decision{}, err
	}
	r.metrics.RecordRouting(string(t), string(d.Provider), string(d.Reason))
	log.Debug().
		Str("task", string(t)).
		Str("provider", string(d.Provider)).
		Str("reason", string(d.Reason)).
		Msg("Routing decision")
	return d, nil
}

// Provider returns the backend for a decision.
func (r *Router) Provider(d Decision) (llm.Provider, error) {
	p, ok := r.registry.Get(d.Provider)
	if !ok {
		return nil, fmt.Errorf("provider %s not registered: %w", d.Provider, ErrProviderUnavailable)
	}
	return p, nil
}

// Generate decides and runs one synchronous generation.
func (r *Router) Generate(ctx context.Context, t task.Task, p llm.Prompt) (*llm.Result, Decision, error) {
	ctx, span := tracer.Start(ctx, "router.generate")
	defer span.End()
	span.SetAttributes(attribute.String("task", string(t)))

	d, err := r.Decide(ctx, t)
	if err != nil {
		span.RecordError(err)
		return nil, Decision{}, err
	}

	res, err := r.generate(ctx, d, p)
	if err != nil {
		if alt, ok := r.alternate(ctx, d, err); ok {
			span.AddEvent("fallback")
			d = alt
			res, err = r.generate(ctx, d, p)
		}
	}
	span.SetAttributes(attribute.String("provider", string(d.Provider)), attribute.String("reason", string(d.Reason)))
	if err != nil {
		span.RecordError(err)
		return nil, d, err
	}
	return res, d, nil
}

func (r *Router) generate(ctx context.Context, d Decision, p llm.Prompt) (*llm.Result, error) {
	prov, err := r.Provider(d)
	if err != nil {
		return nil, err
	}
	return prov.Generate(ctx, p)
}

// Stream decides and starts a streamed generation. Backends without
// streaming support produce a single chunk followed by Done. Only a failure
// to start is retried; errors after the first chunk end the stream.
func (r *Router) Stream(ctx context.Context, t task.Task, p llm.Prompt) (<-chan llm.StreamChunk, Decision, error) {
	d, err := r.Decide(ctx, t)
	if err != nil {
		return nil, Decision{}, err
	}
	ch, err := r.stream(ctx, d, p)
	if err != nil {
		if alt, ok := r.alternate(ctx, d, err); ok {
			d = alt
			ch, err = r.stream(ctx, d, p)
		}
	}
	return ch, d, err
}

func (r *Router) stream(ctx context.Context, d Decision, p llm.Prompt) (<-chan llm.StreamChunk, error) {
	prov, err := r.Provider(d)
	if err != nil {
		return nil, err
	}
	if sp, ok := prov.(llm.StreamingProvider); ok {
		return sp.GenerateStream(ctx, p)
	}

	res, err := prov.Generate(ctx, p)
	if err != nil {
		return nil, err
	}
	ch := make(chan llm.StreamChunk, 2)
	ch <- llm.StreamChunk{Text: res.Text}
	ch <- llm.StreamChunk{Done: true}
	close(ch)
	return ch, nil
}

// alternate returns the other backend for a failed call when it is viable
// for the task and the policy lets the request leave the local model.
func (r *Router) alternate(ctx context.Context, d Decision, cause error) (Decision, bool) {
	if ctx.Err() != nil {
		return Decision{}, false
	}
	other := d.Provider.Other()
	if other == llm.Remote && !r.policy.AllowExternal {
		return Decision{}, false
	}
	desc, ok := r.registry.Descriptors()[other]
	if !ok || !desc.HasCredentials || !desc.Supports(d.Task) {
		return Decision{}, false
	}

	log.Warn().
		Err(cause).
		Str("task", string(d.Task)).
		Str("failed", string(d.Provider)).
		Str("provider", string(other)).
		Msg("Provider failed, falling back")
	r.metrics.RecordRouting(string(d.Task), string(other), string(ReasonFallback))
	return Decision{Task: d.Task, Provider: other, Reason: ReasonFallback}, true
}
