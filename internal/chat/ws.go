package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/BioTRaX/Growen-sub001/internal/disambig"
	"github.com/BioTRaX/Growen-sub001/internal/guardrails"
	"github.com/BioTRaX/Growen-sub001/internal/metrics"
	"github.com/BioTRaX/Growen-sub001/internal/persona"
	pkgmw "github.com/BioTRaX/Growen-sub001/pkg/middleware"
	"github.com/BioTRaX/Growen-sub001/pkg/models"
)

const (
	defaultReadTimeout = 120 * time.Second
	defaultKeepalive   = 25 * time.Second
	writeTimeout       = 10 * time.Second

	// frameLimit bounds any single frame; past it the connection is closed
	// with a protocol error. Frames between the message limit and frameLimit
	// are drained and answered with a max_length notice.
	frameLimit = 1 << 20
)

// HandlerConfig tunes the session transport.
type HandlerConfig struct {
	ReadTimeout    time.Duration
	Keepalive      time.Duration
	MaxChars       int
	StreamDefault  bool
	SessionIdle    time.Duration
	AllowedOrigins []string
	Classifier     persona.Classifier
	Metrics        *metrics.Metrics
}

// Handler serves chat sessions over WebSocket and one-shot turns over HTTP.
// Identity and session key are read from the request context, so it must
// be mounted behind the auth and session middleware.
type Handler struct {
	engine   *Engine
	cfg      HandlerConfig
	upgrader websocket.Upgrader
	sessions *httpSessions
}

// NewHandler creates the transport around engine.
func NewHandler(engine *Engine, cfg HandlerConfig) *Handler {
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.Keepalive <= 0 {
		cfg.Keepalive = defaultKeepalive
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = engine.guard.MaxChars()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = persona.DefaultClassifier
	}
	h := &Handler{
		engine:   engine,
		cfg:      cfg,
		sessions: newHTTPSessions(cfg.SessionIdle, cfg.Classifier),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// messageLimit is the largest frame that can hold MaxChars runes of text
// in a JSON envelope.
func (h *Handler) messageLimit() int64 {
	return int64(h.cfg.MaxChars*4 + 1024)
}

func sessionKey(r *http.Request) string {
	if k := pkgmw.GetSessionKey(r.Context()); k != "" {
		return k
	}
	return disambig.DeriveKey("", r.RemoteAddr, r.UserAgent())
}

// ── WebSocket ───────────────────────────────────────────────

// wsConn serializes writes; gorilla connections allow one concurrent writer.
type wsConn struct {
	ws      *websocket.Conn
	mu      sync.Mutex
	metrics *metrics.Metrics
}

func (c *wsConn) write(env models.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteJSON(env); err != nil {
		return err
	}
	if env.Role != models.EnvelopePing {
		c.metrics.RecordWSMessage("out")
	}
	return nil
}

// ServeWS upgrades the request and runs the session until the client
// disconnects, goes silent past the read timeout, or a write fails.
//
// Inbound frames are either plain text or a JSON object
// {"text": "...", "image_url": "...", "stream": true}. Each turn is answered
// with one or more envelopes whose id is "<conn>-<n>"; keepalive pings use
// "<conn>-ping-<n>".
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	identity := pkgmw.GetIdentity(r.Context())
	key := sessionKey(r)

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Str("session", key).Msg("WebSocket upgrade failed")
		return
	}
	defer ws.Close()

	connID := uuid.NewString()[:8]
	c := &wsConn{ws: ws, metrics: h.cfg.Metrics}
	sess := NewSession(key, identity, h.cfg.Classifier)

	h.cfg.Metrics.WSConnected(1)
	defer h.cfg.Metrics.WSConnected(-1)

	log.Info().
		Str("conn", connID).
		Str("session", key).
		Str("role", identity.Role).
		Msg("Chat session opened")

	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()

	go h.keepalive(ctx, cancel, c, connID)

	ws.SetReadLimit(frameLimit)
	for n := 1; ; n++ {
		ws.SetReadDeadline(time.Now().Add(h.cfg.ReadTimeout))
		data, tooLong, err := h.readFrame(ws)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn", connID).Msg("Chat session read error")
			}
			break
		}
		h.cfg.Metrics.RecordWSMessage("in")
		id := fmt.Sprintf("%s-%d", connID, n)

		if tooLong {
			rej := guardrails.TooLong()
			log.Info().
				Str("conn", connID).
				Str("correlation_id", id).
				Str("guardrail", string(rej.Kind)).
				Msg("Inbound frame rejected")
			if err := c.write(models.Envelope{ID: id, Role: models.EnvelopeSystem, Type: TypeNotice, Text: rej.Message}); err != nil {
				break
			}
			continue
		}

		in := h.decode(data)
		in.CorrelationID = id
		if err := h.engine.HandleTurn(ctx, sess, in, c.write); err != nil {
			log.Warn().Err(err).Str("conn", connID).Msg("Chat session write failed")
			break
		}
	}

	log.Info().Str("conn", connID).Str("session", key).Msg("Chat session closed")
}

// readFrame reads the next data frame. A frame over the message limit is
// drained without buffering and reported as tooLong.
func (h *Handler) readFrame(ws *websocket.Conn) (data []byte, tooLong bool, err error) {
	_, r, err := ws.NextReader()
	if err != nil {
		return nil, false, err
	}
	limit := h.messageLimit()
	data, err = io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) <= limit {
		return data, false, nil
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return nil, false, err
	}
	return nil, true, nil
}

func (h *Handler) keepalive(ctx context.Context, cancel context.CancelFunc, c *wsConn, connID string) {
	ticker := time.NewTicker(h.cfg.Keepalive)
	defer ticker.Stop()
	for n := 1; ; n++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ping := models.Envelope{ID: fmt.Sprintf("%s-ping-%d", connID, n), Role: models.EnvelopePing}
			if err := c.write(ping); err != nil {
				log.Debug().Err(err).Str("conn", connID).Msg("Keepalive failed, closing session")
				cancel()
				c.ws.Close()
				return
			}
		}
	}
}

// decode accepts a JSON object or plain text.
func (h *Handler) decode(data []byte) Inbound {
	in := Inbound{Stream: h.cfg.StreamDefault}
	raw := strings.TrimSpace(string(data))
	if strings.HasPrefix(raw, "{") {
		var msg models.InboundMessage
		if err := json.Unmarshal([]byte(raw), &msg); err == nil {
			in.Text = msg.Text
			in.ImageURL = msg.ImageURL
			if msg.Stream != nil {
				in.Stream = *msg.Stream
			}
			return in
		}
	}
	in.Text = raw
	return in
}

// ── One-shot HTTP ───────────────────────────────────────────

// TurnResponse is the body of a one-shot turn.
type TurnResponse struct {
	SessionKey string            `json:"session_key"`
	Replies    []models.Envelope `json:"replies"`
}

// ServeTurn runs one non-streamed turn from a JSON body and returns every
// envelope it produced. Pending clarifications and the persona carry over
// between calls that share a session key; persona state is kept in process
// and dropped after SessionIdle without a turn.
func (h *Handler) ServeTurn(w http.ResponseWriter, r *http.Request) {
	var msg models.InboundMessage
	body := http.MaxBytesReader(w, r.Body, h.messageLimit())
	if err := json.NewDecoder(body).Decode(&msg); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	key := sessionKey(r)
	identity := pkgmw.GetIdentity(r.Context())
	hs := h.sessions.acquire(key, identity.Role)
	defer hs.mu.Unlock()
	sess := &Session{Key: key, Identity: identity, Persona: hs.tracker}
	in := Inbound{Text: msg.Text, ImageURL: msg.ImageURL, CorrelationID: uuid.NewString()}

	resp := TurnResponse{SessionKey: key}
	err := h.engine.HandleTurn(r.Context(), sess, in, func(env models.Envelope) error {
		resp.Replies = append(resp.Replies, env)
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("session", key).Msg("One-shot turn failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": MsgFailure})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
