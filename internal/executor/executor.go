// Package executor runs the bounded tool-calling protocol.
//
// One request makes at most two model round-trips against a single provider
// chosen once up front:
//
//	FIRST_CALL (tools enabled) → no tool calls → DIRECT_ANSWER → DONE
//	                           → tool calls → TOOL_DISPATCH → FOLLOWUP_CALL (tools disabled) → DONE
//
// Any provider or routing failure ends in ERROR with the raw user text as the
// answer. Tool failures never end the protocol; they are fed back to the model
// as {"error": code} payloads.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/BioTRaX/Growen-sub001/internal/llm"
	"github.com/BioTRaX/Growen-sub001/internal/metrics"
	"github.com/BioTRaX/Growen-sub001/internal/router"
	"github.com/BioTRaX/Growen-sub001/internal/task"
	"github.com/BioTRaX/Growen-sub001/internal/toolrpc"
	"github.com/BioTRaX/Growen-sub001/pkg/contracts"
	"github.com/BioTRaX/Growen-sub001/pkg/models"
)

var tracer = otel.Tracer("growen-executor")

// DefaultMaxCallsPerRound bounds tool dispatches per round.
const DefaultMaxCallsPerRound = 3

// ErrToolsUnsupported is returned when the decided provider cannot call tools.
var ErrToolsUnsupported = errors.New("provider does not support tool calling")

// State is a protocol state.
type State string

const (
	StateInit         State = "INIT"
	StateFirstCall    State = "FIRST_CALL"
	StateDirectAnswer State = "DIRECT_ANSWER"
	StateToolDispatch State = "TOOL_DISPATCH"
	StateFollowupCall State = "FOLLOWUP_CALL"
	StateDone         State = "DONE"
	StateError        State = "ERROR"
)

// ToolDispatcher executes one tool call. *toolrpc.Client implements it.
type ToolDispatcher interface {
	Call(ctx context.Context, tool string, params map[string]interface{}, caller toolrpc.Caller) (map[string]interface{}, error)
}

// Request is one top-level protocol run.
type Request struct {
	Role    string
	UserID  string
	System  string
	User    string
	Images  []string
	History []models.ChatMessage
}

// CallRecord is the observable trace of one tool call.
type CallRecord struct {
	ID              string                 `json:"id"`
	Tool            string                 `json:"tool"`
	Args            map[string]interface{} `json:"args"`
	OK              bool                   `json:"ok"`
	Synthetic       bool                   `json:"synthetic,omitempty"`
	ErrorCode       ErrorCode              `json:"error_code,omitempty"`
	MissingRequired bool                   `json:"missing_required,omitempty"`
	Payload         map[string]interface{} `json:"payload,omitempty"`
	LatencyMs       int64                  `json:"latency_ms"`
}

// Outcome is the result of Run. It is never nil.
type Outcome struct {
	TraceID  string            `json:"trace_id"`
	Answer   string            `json:"answer"`
	State    State             `json:"state"`
	Provider llm.ProviderName  `json:"provider,omitempty"`
	Decision router.Decision   `json:"decision"`
	Records  []CallRecord      `json:"records,omitempty"`
	Ignored  []CallRecord      `json:"ignored,omitempty"`
	Usage    models.TokenUsage `json:"usage"`
	TotalMs  int64             `json:"total_ms"`
	Err      error             `json:"-"`
}

// Options tunes the executor.
type Options struct {
	MaxCallsPerRound int
	Metrics          *metrics.Metrics
}

// Executor runs the protocol. It holds no per-request state.
type Executor struct {
	router   *router.Router
	tools    ToolDispatcher
	maxCalls int
	metrics  *metrics.Metrics
}

// New creates an executor. tools may be nil, in which case every call fails
// with network_failure.
func New(r *router.Router, tools ToolDispatcher, opts Options) *Executor {
	n := opts.MaxCallsPerRound
	if n <= 0 {
		n = DefaultMaxCallsPerRound
	}
	return &Executor{router: r, tools: tools, maxCalls: n, metrics: opts.Metrics}
}

// MaxCallsPerRound returns the per-round dispatch cap.
func (e *Executor) MaxCallsPerRound() int { return e.maxCalls }

// Run executes the protocol for one request.
func (e *Executor) Run(ctx context.Context, req Request) *Outcome {
	start := time.Now()
	out := &Outcome{TraceID: uuid.New().String(), State: StateInit}
	defer func() {
		out.TotalMs = time.Since(start).Milliseconds()
		e.metrics.RecordProtocolOutcome(string(out.State))
	}()

	ctx, span := tracer.Start(ctx, "executor.run")
	defer span.End()
	span.SetAttributes(attribute.String("trace_id", out.TraceID), attribute.String("role", req.Role))

	t := task.Chat
	if len(req.Images) > 0 {
		t = task.VisionDiagnosis
	}

	// ── Decide once ────────────────────────────────────
	decision, err := e.router.Decide(ctx, t)
	if err != nil {
		return e.fail(out, req, err)
	}
	out.Decision = decision
	out.Provider = decision.Provider

	prov, err := e.router.Provider(decision)
	if err != nil {
		return e.fail(out, req, err)
	}
	caller, ok := prov.(llm.ToolCaller)
	if !ok {
		return e.fail(out, req, fmt.Errorf("%s: %w", decision.Provider, ErrToolsUnsupported))
	}

	// ── FIRST_CALL ─────────────────────────────────────
	out.State = StateFirstCall
	first, err := e.firstCall(ctx, caller, req)
	if err != nil {
		return e.fail(out, req, err)
	}
	addUsage(&out.Usage, first.Usage)

	if len(first.ToolCalls) == 0 {
		out.State = StateDirectAnswer
		out.Answer = first.Text
		out.State = StateDone
		return out
	}

	// ── TOOL_DISPATCH ──────────────────────────────────
	out.State = StateToolDispatch
	calls := first.ToolCalls
	if len(calls) > e.maxCalls {
		for _, c := range calls[e.maxCalls:] {
			out.Ignored = append(out.Ignored, CallRecord{
				ID:   c.ID,
				Tool: c.Function.Name,
				Args: decodeArgs(c.Function.Arguments),
			})
		}
		calls = calls[:e.maxCalls]
		e.metrics.RecordIgnoredToolCalls(len(out.Ignored))
		log.Warn().
			Str("trace_id", out.TraceID).
			Int("requested", len(first.ToolCalls)).
			Int("dispatched", e.maxCalls).
			Msg("Tool calls over per-round cap ignored")
	}

	assistant := first.AssistantMessage
	assistant.ToolCalls = append([]models.ToolCallResult(nil), calls...)

	out.Records = e.dispatchRound(ctx, calls, req, out.TraceID)

	if syn, ok := autoChain(out.Records, len(out.Records)+1); ok {
		rec := e.dispatch(ctx, syn, req)
		rec.Synthetic = true
		out.Records = append(out.Records, rec)
		assistant.ToolCalls = append(assistant.ToolCalls, syn)
		log.Debug().Str("trace_id", out.TraceID).Str("call_id", syn.ID).Msg("Auto-chained product detail")
	}

	// ── FOLLOWUP_CALL ──────────────────────────────────
	out.State = StateFollowupCall
	final, err := e.followupCall(ctx, prov, req, assistant, out.Records)
	if err != nil {
		return e.fail(out, req, err)
	}
	addUsage(&out.Usage, final.Usage)
	out.Answer = final.Text
	out.State = StateDone
	return out
}

func (e *Executor) firstCall(ctx context.Context, caller llm.ToolCaller, req Request) (*llm.ToolResponse, error) {
	ctx, span := tracer.Start(ctx, "executor.first_call")
	defer span.End()

	resp, err := caller.GenerateWithTools(ctx, llm.ToolRequest{
		Prompt: llm.Prompt{
			System:   req.System,
			Messages: req.History,
			User:     req.User,
			Images:   req.Images,
		},
		Tools: SchemaFor(req.Role),
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("tool_calls", len(resp.ToolCalls)))
	return resp, nil
}

func (e *Executor) followupCall(ctx context.Context, prov llm.Provider, req Request, assistant models.ChatMessage, records []CallRecord) (*llm.Result, error) {
	ctx, span := tracer.Start(ctx, "executor.followup_call")
	defer span.End()

	messages := make([]models.ChatMessage, 0, len(req.History)+len(records)+2)
	messages = append(messages, req.History...)
	messages = append(messages, llm.UserMessage(req.User, req.Images))
	messages = append(messages, assistant)
	for _, rec := range records {
		messages = append(messages, toolMessage(rec))
	}

	res, err := prov.Generate(ctx, llm.Prompt{System: req.System, Messages: messages})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return res, nil
}

// dispatchRound runs calls concurrently, bounded by the cap, keeping request order.
func (e *Executor) dispatchRound(ctx context.Context, calls []models.ToolCallResult, req Request, traceID string) []CallRecord {
	ctx, span := tracer.Start(ctx, "executor.tool_dispatch")
	defer span.End()
	span.SetAttributes(attribute.Int("calls", len(calls)))

	records := make([]CallRecord, len(calls))
	var g errgroup.Group
	g.SetLimit(e.maxCalls)
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			records[i] = e.dispatch(ctx, c, req)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range records {
		log.Info().
			Str("trace_id", traceID).
			Str("tool", r.Tool).
			Bool("ok", r.OK).
			Str("error", string(r.ErrorCode)).
			Int64("latency_ms", r.LatencyMs).
			Msg("Tool call")
	}
	return records
}

// dispatch validates, gates and executes one call. It never fails; errors
// land in the record.
func (e *Executor) dispatch(ctx context.Context, call models.ToolCallResult, req Request) (rec CallRecord) {
	start := time.Now()
	rec = CallRecord{
		ID:   call.ID,
		Tool: call.Function.Name,
		Args: decodeArgs(call.Function.Arguments),
	}
	if rec.ID == "" {
		rec.ID = "call_" + uuid.New().String()[:8]
	}
	defer func() {
		rec.LatencyMs = time.Since(start).Milliseconds()
		result := "ok"
		if !rec.OK {
			result = string(rec.ErrorCode)
		}
		e.metrics.RecordToolCall(rec.Tool, result)
	}()

	params, code := prepare(rec.Tool, rec.Args, req.Role)
	if code != "" {
		rec.ErrorCode = code
		rec.MissingRequired = code == CodeMissingQuery || code == CodeMissingIdentifier
		rec.Payload = errorPayload(code)
		return rec
	}

	if e.tools == nil {
		rec.ErrorCode = CodeNetworkFailure
		rec.Payload = errorPayload(CodeNetworkFailure)
		return rec
	}

	res, err := e.tools.Call(ctx, rec.Tool, params, toolrpc.Caller{Role: req.Role, UserID: req.UserID})
	if err != nil {
		rec.ErrorCode = rpcCode(err)
		rec.Payload = errorPayload(rec.ErrorCode)
		log.Warn().Str("tool", rec.Tool).Err(err).Msg("Tool dispatch failed")
		return rec
	}
	rec.OK = true
	rec.Payload = res
	return rec
}

// prepare normalizes arguments and applies the role gate.
func prepare(tool string, args map[string]interface{}, role string) (map[string]interface{}, ErrorCode) {
	if !knownTool(tool) {
		return nil, CodeUnknownTool
	}
	if tool == ToolSearchProducts {
		a, code := NormalizeSearch(args)
		if code != "" {
			return nil, code
		}
		return a.params(), ""
	}

	a, code := NormalizeDetail(args)
	if code != "" {
		return nil, code
	}
	if tool == ToolProductFullInfo && !contracts.IsElevated(role) {
		return nil, CodePermissionDenied
	}
	return a.params(), ""
}

func rpcCode(err error) ErrorCode {
	var re *toolrpc.Error
	if errors.As(err, &re) && re.Code == toolrpc.CodeNetworkFailure {
		return CodeNetworkFailure
	}
	return CodeCallFailed
}

// autoChain returns a synthetic detail call when a successful search produced
// exactly one item and no detail call was issued in the round.
func autoChain(records []CallRecord, seq int) (models.ToolCallResult, bool) {
	for _, r := range records {
		if isDetailTool(r.Tool) {
			return models.ToolCallResult{}, false
		}
	}
	for _, r := range records {
		if r.Tool != ToolSearchProducts || !r.OK {
			continue
		}
		items := SearchItems(r.Payload)
		if len(items) != 1 {
			continue
		}
		args, ok := itemIdentity(items[0])
		if !ok {
			continue
		}
		raw, _ := json.Marshal(args.params())
		return models.ToolCallResult{
			ID:   fmt.Sprintf("auto_%d", seq),
			Type: "function",
			Function: models.FunctionCall{
				Name:      ToolProductInfo,
				Arguments: string(raw),
			},
		}, true
	}
	return models.ToolCallResult{}, false
}

func toolMessage(rec CallRecord) models.ChatMessage {
	payload := rec.Payload
	if !rec.OK {
		payload = map[string]interface{}{"error": string(rec.ErrorCode)}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(`{"error":"call_failed"}`)
	}
	return models.ChatMessage{
		Role:       models.RoleTool,
		Content:    string(raw),
		ToolCallID: rec.ID,
		Name:       rec.Tool,
	}
}

func (e *Executor) fail(out *Outcome, req Request, err error) *Outcome {
	log.Warn().
		Str("trace_id", out.TraceID).
		Str("state", string(out.State)).
		Err(err).
		Msg("Tool-calling protocol failed")
	out.State = StateError
	out.Err = err
	out.Answer = req.User
	return out
}

func addUsage(dst *models.TokenUsage, u models.TokenUsage) {
	dst.InputTokens += u.InputTokens
	dst.OutputTokens += u.OutputTokens
	dst.TotalTokens += u.TotalTokens
}
