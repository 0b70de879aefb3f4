package chat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BioTRaX/Growen-sub001/internal/guardrails"
	"github.com/BioTRaX/Growen-sub001/internal/intent"
	"github.com/BioTRaX/Growen-sub001/internal/persona"
	"github.com/BioTRaX/Growen-sub001/pkg/models"
)

func dial(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var env models.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestWS_PriceQuestion(t *testing.T) {
	f := newFixture(t, false, nil)
	conn := dial(t, NewHandler(f.engine, HandlerConfig{}))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("cuánto cuesta FERT_0028_MIN?")))
	env := readEnvelope(t, conn)

	assert.Equal(t, TypeProduct, env.Type)
	assert.Contains(t, env.Text, "Fertilizante Mineral Crecimiento 1L")
	assert.Contains(t, env.Text, "$5.500")
	assert.Contains(t, env.Text, "quedan 4 unidades")
	assert.NotContains(t, env.Text, "FERT_0028_MIN")
	assert.True(t, strings.HasSuffix(env.ID, "-1"), env.ID)
}

func TestWS_AmbiguousThenConfirmation(t *testing.T) {
	f := newFixture(t, false, nil)
	conn := dial(t, NewHandler(f.engine, HandlerConfig{}))

	require.NoError(t, conn.WriteJSON(models.InboundMessage{Text: "tenés fertilizante?"}))
	env := readEnvelope(t, conn)
	require.Equal(t, TypeAmbiguous, env.Type)
	first := env.ID

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("sí")))
	env = readEnvelope(t, conn)
	assert.Equal(t, TypeClarify, env.Type)
	assert.Equal(t, msgClarify, env.Text)
	assert.True(t, strings.HasSuffix(env.ID, "-2"), env.ID)
	assert.Equal(t, strings.TrimSuffix(first, "-1"), strings.TrimSuffix(env.ID, "-2"))
}

func TestWS_StreamFlag(t *testing.T) {
	f := newFixture(t, false, nil)
	conn := dial(t, NewHandler(f.engine, HandlerConfig{}))

	stream := true
	require.NoError(t, conn.WriteJSON(models.InboundMessage{Text: "hola", Stream: &stream}))
	assert.Equal(t, models.StreamStart, readEnvelope(t, conn).Stream)
	assert.Equal(t, models.StreamChunk, readEnvelope(t, conn).Stream)
	assert.Equal(t, models.StreamEnd, readEnvelope(t, conn).Stream)
}

func TestWS_Keepalive(t *testing.T) {
	f := newFixture(t, false, nil)
	conn := dial(t, NewHandler(f.engine, HandlerConfig{Keepalive: 20 * time.Millisecond}))

	env := readEnvelope(t, conn)
	assert.Equal(t, models.EnvelopePing, env.Role)
	assert.True(t, strings.HasSuffix(env.ID, "-ping-1"), env.ID)

	next := readEnvelope(t, conn)
	assert.True(t, strings.HasSuffix(next.ID, "-ping-2"), next.ID)
	assert.Equal(t, strings.TrimSuffix(env.ID, "-1"), strings.TrimSuffix(next.ID, "-2"))
}

func TestWS_OversizedFrameGetsNotice(t *testing.T) {
	f := newFixture(t, false, nil)
	conn := dial(t, NewHandler(f.engine, HandlerConfig{MaxChars: 10}))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, bytes.Repeat([]byte("a"), 5000)))
	env := readEnvelope(t, conn)
	assert.Equal(t, TypeNotice, env.Type)
	assert.Equal(t, models.EnvelopeSystem, env.Role)
	assert.Equal(t, guardrails.TooLong().Message, env.Text)
	assert.True(t, strings.HasSuffix(env.ID, "-1"), env.ID)

	// The session stays usable.
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("precio FERT_0028_MIN")))
	env = readEnvelope(t, conn)
	assert.Equal(t, TypeProduct, env.Type)
	assert.True(t, strings.HasSuffix(env.ID, "-2"), env.ID)
}

func TestWS_ReadTimeoutClosesSession(t *testing.T) {
	f := newFixture(t, false, nil)
	conn := dial(t, NewHandler(f.engine, HandlerConfig{ReadTimeout: 50 * time.Millisecond}))

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestCheckOrigin(t *testing.T) {
	f := newFixture(t, false, nil)
	h := NewHandler(f.engine, HandlerConfig{AllowedOrigins: []string{"https://growen.com.ar"}})

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	assert.True(t, h.checkOrigin(req))
	req.Header.Set("Origin", "https://growen.com.ar")
	assert.True(t, h.checkOrigin(req))
	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, h.checkOrigin(req))
}

func TestDecode(t *testing.T) {
	f := newFixture(t, false, nil)
	h := NewHandler(f.engine, HandlerConfig{StreamDefault: true})

	in := h.decode([]byte("  hola  "))
	assert.Equal(t, "hola", in.Text)
	assert.True(t, in.Stream)

	in = h.decode([]byte(`{"text":"qué le pasa","image_url":"https://img/1.jpg","stream":false}`))
	assert.Equal(t, "qué le pasa", in.Text)
	assert.Equal(t, "https://img/1.jpg", in.ImageURL)
	assert.False(t, in.Stream)

	in = h.decode([]byte(`{no es json`))
	assert.Equal(t, "{no es json", in.Text)
}

func postTurn(t *testing.T, h *Handler, text string) TurnResponse {
	t.Helper()
	return postTurnFrom(t, h, "192.0.2.1:1234", text)
}

func postTurnFrom(t *testing.T, h *Handler, remote, text string) TurnResponse {
	t.Helper()
	body, _ := json.Marshal(models.InboundMessage{Text: text})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/chat", bytes.NewReader(body))
	req.RemoteAddr = remote
	rec := httptest.NewRecorder()
	h.ServeTurn(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TurnResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestServeTurn_ClarificationSpansRequests(t *testing.T) {
	f := newFixture(t, false, nil)
	h := NewHandler(f.engine, HandlerConfig{})

	resp := postTurn(t, h, "tenés fertilizante?")
	require.Len(t, resp.Replies, 1)
	assert.Equal(t, TypeAmbiguous, resp.Replies[0].Type)
	assert.NotEmpty(t, resp.SessionKey)

	resp = postTurn(t, h, "sí")
	require.Len(t, resp.Replies, 1)
	assert.Equal(t, TypeClarify, resp.Replies[0].Type)
}

func TestServeTurn_PersonaSpansRequests(t *testing.T) {
	f := newFixture(t, false, nil)
	h := NewHandler(f.engine, HandlerConfig{})

	resp := postTurn(t, h, "se me muere la planta, hojas amarillas")
	require.Len(t, resp.Replies, 1)
	assert.Equal(t, string(persona.Cultivator), resp.Replies[0].Data["persona"])

	resp = postTurn(t, h, "buenas tardes")
	require.Len(t, resp.Replies, 1)
	assert.Equal(t, string(persona.Cultivator), resp.Replies[0].Data["persona"], "the diagnosis persona sticks")

	resp = postTurnFrom(t, h, "198.51.100.7:4321", "buenas tardes")
	assert.Equal(t, string(persona.Observer), resp.Replies[0].Data["persona"], "other sessions start fresh")
	assert.Equal(t, 2, h.sessions.len())
}

func TestHTTPSessions_IdleEntriesExpire(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newHTTPSessions(time.Minute, nil)
	s.now = func() time.Time { return now }

	a := s.acquire("k", "cliente")
	a.tracker.Next("cliente", intent.Diagnosis, "hojas amarillas", false)
	a.mu.Unlock()

	now = now.Add(30 * time.Second)
	b := s.acquire("k", "cliente")
	assert.Same(t, a, b)
	b.mu.Unlock()

	other := s.acquire("k", "admin")
	assert.NotSame(t, a, other, "role is part of the key")
	other.mu.Unlock()

	now = now.Add(2 * time.Minute)
	c := s.acquire("k", "cliente")
	assert.NotSame(t, a, c)
	assert.Nil(t, c.tracker.State())
	c.mu.Unlock()
	assert.Equal(t, 1, s.len(), "stale entries are swept")
}

func TestServeTurn_BadBody(t *testing.T) {
	f := newFixture(t, false, nil)
	h := NewHandler(f.engine, HandlerConfig{})

	rec := httptest.NewRecorder()
	h.ServeTurn(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chat", strings.NewReader("{oops")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
