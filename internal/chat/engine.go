// Package chat is the session front end: it turns inbound chat messages into
// outbound envelopes. Engine holds the transport-independent turn logic and
// is shared by the WebSocket handler and the one-shot HTTP endpoint.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/BioTRaX/Growen-sub001/internal/disambig"
	"github.com/BioTRaX/Growen-sub001/internal/executor"
	"github.com/BioTRaX/Growen-sub001/internal/guardrails"
	"github.com/BioTRaX/Growen-sub001/internal/history"
	"github.com/BioTRaX/Growen-sub001/internal/intent"
	"github.com/BioTRaX/Growen-sub001/internal/llm"
	"github.com/BioTRaX/Growen-sub001/internal/metrics"
	"github.com/BioTRaX/Growen-sub001/internal/persona"
	"github.com/BioTRaX/Growen-sub001/internal/resolver"
	"github.com/BioTRaX/Growen-sub001/internal/router"
	"github.com/BioTRaX/Growen-sub001/internal/task"
	"github.com/BioTRaX/Growen-sub001/internal/textutil"
	"github.com/BioTRaX/Growen-sub001/pkg/contracts"
	"github.com/BioTRaX/Growen-sub001/pkg/models"
)

var tracer = otel.Tracer("growen-chat")

// Envelope types.
const (
	TypeNotice    = "notice"
	TypeClarify   = "clarify"
	TypeAmbiguous = "ambiguous"
	TypeProduct   = "product"
	TypeNoMatch   = "no_match"
	TypeAck       = "ack"
	TypeChat      = "chat"
	TypeError     = "error"
)

// User-visible texts.
const (
	MsgFailure       = "No pude completar la consulta, probá de nuevo en unos minutos."
	msgClarify       = "¿Cuál de las opciones te interesa? Respondé con el número o el nombre, o contame un poco más."
	msgCancelled     = "Listo, dejamos esa búsqueda. ¿Te ayudo con otra cosa?"
	maxOptions       = 5
	maxRefineWords   = 4
	defaultHistTurns = 6
)

// Emit writes one outbound envelope. An error ends the turn.
type Emit func(models.Envelope) error

// Session is the per-connection state a turn runs against.
type Session struct {
	Key      string
	Identity *contracts.Identity
	Persona  *persona.Tracker
}

// NewSession creates a session with a fresh persona tracker.
func NewSession(key string, id *contracts.Identity, c persona.Classifier) *Session {
	if id == nil {
		id = contracts.Anonymous()
	}
	return &Session{Key: key, Identity: id, Persona: persona.NewTracker(c)}
}

// Inbound is one user turn.
type Inbound struct {
	Text          string
	ImageURL      string
	Stream        bool
	CorrelationID string
}

// Deps are the Engine's collaborators. Router and Disambig are required;
// a nil Executor sends product turns straight to the Resolver.
type Deps struct {
	Router       *router.Router
	Executor     *executor.Executor
	Resolver     *resolver.Resolver
	Disambig     disambig.Store
	History      history.Store
	Guard        *guardrails.Checker
	Templates    persona.Templates
	HistoryTurns int
	Metrics      *metrics.Metrics
}

// Engine runs chat turns. It is safe for concurrent use by many sessions;
// a single session must not run two turns at once.
type Engine struct {
	router    *router.Router
	exec      *executor.Executor
	resolver  *resolver.Resolver
	disambig  disambig.Store
	history   history.Store
	guard     *guardrails.Checker
	templates persona.Templates
	turns     int
	metrics   *metrics.Metrics
}

// NewEngine validates deps and fills in defaults.
func NewEngine(d Deps) (*Engine, error) {
	if d.Router == nil {
		return nil, errors.New("chat: router is required")
	}
	if d.Disambig == nil {
		return nil, errors.New("chat: disambiguation store is required")
	}
	if d.Executor == nil && d.Resolver == nil {
		return nil, errors.New("chat: an executor or a resolver is required")
	}
	e := &Engine{
		router:    d.Router,
		exec:      d.Executor,
		resolver:  d.Resolver,
		disambig:  d.Disambig,
		history:   d.History,
		guard:     d.Guard,
		templates: d.Templates,
		turns:     d.HistoryTurns,
		metrics:   d.Metrics,
	}
	if e.history == nil {
		e.history = history.NewMemoryStore()
	}
	if e.guard == nil {
		e.guard = guardrails.New(guardrails.Config{})
	}
	if e.templates == nil {
		e.templates = persona.DefaultTemplates
	}
	if e.turns <= 0 {
		e.turns = defaultHistTurns
	}
	return e, nil
}

// turn carries one HandleTurn invocation.
type turn struct {
	s     *Session
	in    Inbound
	label intent.Label
	emit  Emit
	// reply is the assistant text persisted at the end of the turn.
	reply string
}

func (t *turn) elevated() bool { return t.s.Identity.Elevated() }

func (t *turn) send(env models.Envelope) error {
	env.ID = t.in.CorrelationID
	if env.Role == "" {
		env.Role = models.EnvelopeAssistant
	}
	if env.Role == models.EnvelopeAssistant && env.Stream != models.StreamChunk {
		t.reply += env.Text
	}
	return t.emit(env)
}

// HandleTurn processes one inbound message and emits its replies in order.
// Only emit failures are returned; every other failure becomes a
// natural-language reply.
func (e *Engine) HandleTurn(ctx context.Context, s *Session, in Inbound, emit Emit) error {
	ctx, span := tracer.Start(ctx, "chat.turn")
	defer span.End()
	span.SetAttributes(attribute.String("correlation_id", in.CorrelationID), attribute.String("role", s.Identity.Role))

	in.Text = strings.TrimSpace(in.Text)
	t := &turn{s: s, in: in, emit: emit}

	if in.ImageURL == "" || in.Text != "" {
		if r := e.guard.CheckInput(in.Text); !r.Passed {
			log.Info().
				Str("session", s.Key).
				Str("correlation_id", in.CorrelationID).
				Str("guardrail", string(r.Kind)).
				Msg("Inbound message rejected")
			return t.send(models.Envelope{Role: models.EnvelopeSystem, Type: TypeNotice, Text: r.Message})
		}
	}

	// History is read before this turn's message is stored.
	prior := e.recentHistory(ctx, s.Key)
	e.saveMessage(ctx, s, models.RoleUser, in.Text, "", in.CorrelationID)

	t.label = intent.Classify(in.Text)
	span.SetAttributes(attribute.String("intent", string(t.label)))

	err := e.route(ctx, t, prior)
	if t.reply != "" {
		e.saveMessage(ctx, s, models.RoleAssistant, t.reply, string(t.label), in.CorrelationID)
	}
	return err
}

func (e *Engine) route(ctx context.Context, t *turn, prior []models.ChatMessage) error {
	if handled, err := e.pending(ctx, t); handled || err != nil {
		return err
	}
	if t.label.ProductPath() {
		return e.productTurn(ctx, t, t.in.Text)
	}
	return e.chatTurn(ctx, t, prior)
}

// ── Pending disambiguation ──────────────────────────────────

// pending interprets the turn against an open clarification. It reports
// whether the turn was fully handled.
func (e *Engine) pending(ctx context.Context, t *turn) (bool, error) {
	key := t.s.Key
	entry, ok := e.disambig.Get(ctx, key)
	if !ok || !entry.Pending {
		return false, nil
	}
	text := t.in.Text
	choice := selectOption(text, entry.Candidates)

	switch {
	case intent.IsNegation(text):
		e.disambig.Clear(ctx, key)
		e.metrics.RecordDisambiguation("cancelled")
		return true, t.send(models.Envelope{Type: TypeAck, Text: msgCancelled, Intent: entry.LastIntent})

	case choice >= 0:
		opt := entry.Candidates[choice]
		if !e.disambig.MarkResolved(ctx, key) {
			// Another turn resolved it first.
			return false, nil
		}
		e.metrics.RecordDisambiguation("selected")
		t.label = intent.Label(entry.LastIntent)
		return true, e.selected(ctx, t, opt)

	case intent.IsConfirmation(text):
		if e.disambig.MarkPrompted(ctx, key) {
			e.metrics.RecordDisambiguation("prompted")
			return true, t.send(models.Envelope{
				Type:   TypeClarify,
				Text:   msgClarify,
				Intent: entry.LastIntent,
				Data:   map[string]interface{}{"options": optionNames(entry.Candidates)},
			})
		}
		e.disambig.Clear(ctx, key)
		e.metrics.RecordDisambiguation("abandoned")
		return false, nil

	case t.label != intent.Greeting && refines(text):
		e.disambig.Clear(ctx, key)
		e.metrics.RecordDisambiguation("refined")
		refined := strings.TrimSpace(entry.Query + " " + intent.ExtractQuery(text))
		if entry.LastIntent != "" {
			t.label = intent.Label(entry.LastIntent)
		}
		return true, e.productTurn(ctx, t, refined)
	}

	e.disambig.Clear(ctx, key)
	e.metrics.RecordDisambiguation("abandoned")
	return false, nil
}

// refines reports whether a short reply narrows the pending query. Thanks,
// assent and filler-only replies do not.
func refines(text string) bool {
	if len(strings.Fields(text)) > maxRefineWords || intent.IsAcknowledgement(text) {
		return false
	}
	return intent.ExtractQuery(text) != ""
}

// selectOption returns the index chosen by number or by a name fragment
// that matches exactly one option, else -1.
func selectOption(text string, opts []disambig.Option) int {
	if len(opts) == 0 {
		return -1
	}
	if i := intent.SelectionIndex(text, len(opts)); i >= 0 {
		return i
	}
	words := intent.ExtractQuery(text)
	if words == "" || intent.IsConfirmation(text) || intent.IsNegation(text) {
		return -1
	}
	match := -1
	for i, o := range opts {
		if containsAllWords(o.Name, words) {
			if match >= 0 {
				return -1
			}
			match = i
		}
	}
	return match
}

func (e *Engine) selected(ctx context.Context, t *turn, opt disambig.Option) error {
	if e.resolver == nil {
		return e.productTurn(ctx, t, opt.Name)
	}
	res, err := e.resolver.Resolve(ctx, opt.Name)
	if err != nil {
		log.Error().Err(err).Str("session", t.s.Key).Msg("Resolver failed on selection")
		return t.send(models.Envelope{Type: TypeError, Text: MsgFailure, Intent: string(t.label)})
	}
	for _, c := range res.Candidates {
		if sameProduct(c, opt) {
			return t.send(e.productEnvelope(t, c))
		}
	}
	for _, c := range res.MissingPrice {
		if sameProduct(c, opt) {
			return e.noMatch(t, opt.Name, []resolver.Candidate{c})
		}
	}
	// The chosen product is gone; never answer for a neighbour.
	if len(res.Candidates) >= 2 {
		opts := make([]disambig.Option, 0, len(res.Candidates))
		for _, c := range res.Candidates {
			opts = append(opts, disambig.Option{Identity: c.Identity, Name: c.Name})
		}
		return e.ambiguous(ctx, t, opt.Name, opts)
	}
	return e.noMatch(t, opt.Name, nil)
}

// sameProduct reports whether c is the product an option was offered for.
// Options built from tool results without a product id carry a name identity.
func sameProduct(c resolver.Candidate, opt disambig.Option) bool {
	if c.Identity == opt.Identity {
		return true
	}
	return strings.HasPrefix(opt.Identity, "name:") && c.Name == opt.Name
}

// ── Product path ────────────────────────────────────────────

// productTurn answers a price or product question: the tool protocol first,
// the local resolver when the protocol fails or is not configured.
func (e *Engine) productTurn(ctx context.Context, t *turn, text string) error {
	if e.exec != nil {
		out := e.exec.Run(ctx, executor.Request{
			Role:   t.s.Identity.Role,
			UserID: t.s.Identity.Subject,
			System: e.systemPrompt(t, persona.Salesman),
			User:   text,
			Images: images(t.in.ImageURL),
		})
		e.audit(ctx, t, out)
		if out.State == executor.StateDone {
			if opts := ambiguousItems(out.Records); len(opts) >= 2 {
				return e.ambiguous(ctx, t, intent.ExtractQuery(text), opts)
			}
			answer := out.Answer
			if !t.elevated() {
				answer = intent.RedactSKUs(answer)
			}
			if strings.TrimSpace(answer) != "" {
				return t.send(models.Envelope{
					Type:   TypeProduct,
					Text:   answer,
					Intent: string(t.label),
					Data:   map[string]interface{}{"provider": string(out.Provider), "tool_calls": len(out.Records)},
				})
			}
		}
		log.Warn().
			Err(out.Err).
			Str("session", t.s.Key).
			Str("state", string(out.State)).
			Msg("Tool protocol did not answer, using local resolver")
	}

	if e.resolver == nil {
		return t.send(models.Envelope{Type: TypeError, Text: MsgFailure, Intent: string(t.label)})
	}

	query := intent.ExtractQuery(text)
	res, err := e.resolver.Resolve(ctx, query)
	if err != nil {
		log.Error().Err(err).Str("session", t.s.Key).Str("query", query).Msg("Resolver failed")
		return t.send(models.Envelope{Type: TypeError, Text: MsgFailure, Intent: string(t.label)})
	}

	switch res.Status {
	case resolver.StatusOK:
		return t.send(e.productEnvelope(t, res.Candidates[0]))
	case resolver.StatusAmbiguous:
		opts := make([]disambig.Option, 0, len(res.Candidates))
		for _, c := range res.Candidates {
			opts = append(opts, disambig.Option{Identity: c.Identity, Name: c.Name})
		}
		return e.ambiguous(ctx, t, query, opts)
	}
	return e.noMatch(t, query, res.MissingPrice)
}

func (e *Engine) productEnvelope(t *turn, c resolver.Candidate) models.Envelope {
	var b strings.Builder
	b.WriteString(c.Name)
	if t.elevated() && c.SKU != "" {
		fmt.Fprintf(&b, " (SKU %s)", c.SKU)
	}
	fmt.Fprintf(&b, ": %s, %s.", resolver.FormatPrice(c.Price), resolver.StockPhrase(c.Stock))

	data := map[string]interface{}{
		"name":     c.Name,
		"price":    resolver.FormatPrice(c.Price),
		"in_stock": c.InStock,
	}
	if t.elevated() {
		data["sku"] = c.SKU
		data["stock"] = c.Stock
		data["identity"] = c.Identity
	}
	return models.Envelope{Type: TypeProduct, Text: b.String(), Intent: string(t.label), Data: data}
}

func (e *Engine) noMatch(t *turn, query string, unpriced []resolver.Candidate) error {
	text := fmt.Sprintf("No encontré productos para «%s». ¿Me das otro nombre o más detalles?", query)
	if len(unpriced) > 0 {
		text = fmt.Sprintf("Encontré «%s», pero todavía no tiene precio cargado. Consultanos y te confirmamos.", unpriced[0].Name)
	}
	return t.send(models.Envelope{Type: TypeNoMatch, Text: text, Intent: string(t.label)})
}

// ambiguous lists up to five distinct options and opens a clarification.
func (e *Engine) ambiguous(ctx context.Context, t *turn, query string, opts []disambig.Option) error {
	opts = distinctOptions(opts, maxOptions)
	e.disambig.Set(ctx, t.s.Key, disambig.Entry{
		Query:      query,
		Candidates: opts,
		Pending:    true,
		LastIntent: string(t.label),
	})
	e.metrics.RecordDisambiguation("created")

	var b strings.Builder
	b.WriteString("Encontré varias opciones:")
	for i, o := range opts {
		fmt.Fprintf(&b, "\n%d) %s", i+1, o.Name)
	}
	b.WriteString("\n¿Cuál te interesa?")

	data := map[string]interface{}{"options": optionNames(opts)}
	if t.elevated() {
		ids := make([]string, len(opts))
		for i, o := range opts {
			ids[i] = o.Identity
		}
		data["identities"] = ids
	}
	return t.send(models.Envelope{Type: TypeAmbiguous, Text: b.String(), Intent: string(t.label), Data: data})
}

// ambiguousItems returns the options of a search that found several items
// when no detail call succeeded in the same round.
func ambiguousItems(records []executor.CallRecord) []disambig.Option {
	var opts []disambig.Option
	for _, r := range records {
		if !r.OK {
			continue
		}
		if r.Tool != executor.ToolSearchProducts {
			return nil
		}
		for _, item := range executor.SearchItems(r.Payload) {
			name, _ := item["name"].(string)
			if name == "" {
				continue
			}
			id := "name:" + name
			if pid := fmt.Sprint(item["product_id"]); item["product_id"] != nil && pid != "" {
				id = "canonical:" + pid
			}
			opts = append(opts, disambig.Option{Identity: id, Name: name})
		}
	}
	return distinctOptions(opts, maxOptions)
}

// ── General chat ────────────────────────────────────────────

func (e *Engine) chatTurn(ctx context.Context, t *turn, prior []models.ChatMessage) error {
	hasImage := t.in.ImageURL != ""
	mode := t.s.Persona.Next(t.s.Identity.Role, t.label, t.in.Text, hasImage)

	tk := task.Chat
	if hasImage {
		tk = task.VisionDiagnosis
	}
	prompt := llm.Prompt{
		System:   e.systemPrompt(t, mode),
		Messages: prior,
		User:     t.in.Text,
		Images:   images(t.in.ImageURL),
	}
	data := map[string]interface{}{"persona": string(mode)}

	var err error
	if t.in.Stream {
		err = e.stream(ctx, t, tk, prompt, data)
	} else {
		err = e.generate(ctx, t, tk, prompt, data)
	}
	if err == nil && (mode == persona.Cultivator || mode == persona.CultivatorVision) {
		t.s.Persona.Complete()
	}
	return err
}

func (e *Engine) generate(ctx context.Context, t *turn, tk task.Task, p llm.Prompt, data map[string]interface{}) error {
	res, d, err := e.router.Generate(ctx, tk, p)
	if err != nil {
		e.logFailure(t, tk, d, err)
		return t.send(models.Envelope{Type: TypeError, Text: MsgFailure, Intent: string(t.label)})
	}
	data["provider"] = string(d.Provider)
	return t.send(models.Envelope{Type: TypeChat, Text: e.visible(t, res.Text), Intent: string(t.label), Data: data})
}

func (e *Engine) stream(ctx context.Context, t *turn, tk task.Task, p llm.Prompt, data map[string]interface{}) error {
	ch, d, err := e.router.Stream(ctx, tk, p)
	if err != nil {
		e.logFailure(t, tk, d, err)
		return t.send(models.Envelope{Type: TypeError, Text: MsgFailure, Intent: string(t.label), Stream: models.StreamError})
	}
	data["provider"] = string(d.Provider)
	if err := t.send(models.Envelope{Type: TypeChat, Intent: string(t.label), Stream: models.StreamStart, Data: data}); err != nil {
		return err
	}

	var full strings.Builder
	for chunk := range ch {
		if chunk.Err != nil {
			e.logFailure(t, tk, d, chunk.Err)
			return t.send(models.Envelope{Type: TypeError, Text: MsgFailure, Intent: string(t.label), Stream: models.StreamError})
		}
		if chunk.Text != "" {
			full.WriteString(chunk.Text)
			if err := t.send(models.Envelope{Type: TypeChat, Text: chunk.Text, Stream: models.StreamChunk}); err != nil {
				return err
			}
		}
		if chunk.Done {
			break
		}
	}
	return t.send(models.Envelope{Type: TypeChat, Text: e.visible(t, full.String()), Intent: string(t.label), Stream: models.StreamEnd})
}

func (e *Engine) logFailure(t *turn, tk task.Task, d router.Decision, err error) {
	log.Error().
		Err(err).
		Str("session", t.s.Key).
		Str("correlation_id", t.in.CorrelationID).
		Str("task", string(tk)).
		Str("provider", string(d.Provider)).
		Msg("Chat generation failed")
}

// visible strips internal codes from text shown to customers.
func (e *Engine) visible(t *turn, text string) string {
	if t.elevated() {
		return text
	}
	return intent.RedactSKUs(text)
}

func (e *Engine) systemPrompt(t *turn, mode persona.Mode) string {
	if t.elevated() {
		mode = persona.Assistant
	}
	return e.templates.Template(mode)
}

// ── Persistence ─────────────────────────────────────────────

func (e *Engine) recentHistory(ctx context.Context, key string) []models.ChatMessage {
	msgs, err := e.history.Recent(ctx, key, e.turns*2)
	if err != nil {
		log.Warn().Err(err).Str("session", key).Msg("Failed to load history")
		return nil
	}
	out := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != models.RoleUser && m.Role != models.RoleAssistant {
			continue
		}
		out = append(out, models.ChatMessage{Role: m.Role, Content: m.Text})
	}
	return out
}

func (e *Engine) saveMessage(ctx context.Context, s *Session, role, text, label, corr string) {
	msg := &models.HistoryMessage{
		SessionKey:    s.Key,
		UserID:        s.Identity.Subject,
		Role:          role,
		Text:          guardrails.Redact(text),
		Intent:        label,
		CorrelationID: corr,
	}
	if err := e.history.SaveMessage(ctx, msg); err != nil {
		log.Warn().Err(err).Str("session", s.Key).Msg("Failed to persist chat message")
	}
}

func (e *Engine) audit(ctx context.Context, t *turn, out *executor.Outcome) {
	save := func(action string, r executor.CallRecord) {
		ev := &models.AuditEvent{
			SessionKey:    t.s.Key,
			CorrelationID: t.in.CorrelationID,
			Action:        action,
			Role:          t.s.Identity.Role,
			Details: map[string]interface{}{
				"trace_id":   out.TraceID,
				"call_id":    r.ID,
				"tool":       r.Tool,
				"args":       r.Args,
				"ok":         r.OK,
				"synthetic":  r.Synthetic,
				"error_code": string(r.ErrorCode),
				"latency_ms": r.LatencyMs,
			},
		}
		if err := e.history.SaveAudit(ctx, ev); err != nil {
			log.Warn().Err(err).Str("session", t.s.Key).Msg("Failed to persist audit event")
		}
	}
	for _, r := range out.Records {
		save("tool_call", r)
	}
	for _, r := range out.Ignored {
		save("tool_call_ignored", r)
	}
}

// ── Helpers ─────────────────────────────────────────────────

func images(url string) []string {
	if url == "" {
		return nil
	}
	return []string{url}
}

func distinctOptions(opts []disambig.Option, limit int) []disambig.Option {
	seen := make(map[string]bool, len(opts))
	out := make([]disambig.Option, 0, len(opts))
	for _, o := range opts {
		k := strings.ToLower(o.Name)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, o)
		if len(out) == limit {
			break
		}
	}
	return out
}

// containsAllWords reports whether every word of query occurs in name,
// ignoring case and accents.
func containsAllWords(name, query string) bool {
	n := textutil.Normalize(name)
	words := textutil.Tokens(query)
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !strings.Contains(n, w) {
			return false
		}
	}
	return true
}

func optionNames(opts []disambig.Option) []string {
	names := make([]string, len(opts))
	for i, o := range opts {
		names[i] = o.Name
	}
	return names
}
