// Package handlers implements the diagnostic HTTP API of the orchestration
// core. The chat surface itself lives in internal/chat.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/BioTRaX/Growen-sub001/internal/history"
	"github.com/BioTRaX/Growen-sub001/internal/llm"
	"github.com/BioTRaX/Growen-sub001/internal/resolver"
	"github.com/BioTRaX/Growen-sub001/internal/router"
	"github.com/BioTRaX/Growen-sub001/internal/task"
	pkgmw "github.com/BioTRaX/Growen-sub001/pkg/middleware"
)

// Handlers holds the services the API reads from.
type Handlers struct {
	Router   *router.Router
	Resolver *resolver.Resolver
	History  history.Store

	version string
}

// New creates the handler set.
func New(r *router.Router, res *resolver.Resolver, hist history.Store, version string) *Handlers {
	return &Handlers{Router: r, Resolver: res, History: hist, version: version}
}

// ── Health & info ───────────────────────────────────────────

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "growen-ai-core",
	})
}

func (h *Handlers) Version(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"version": h.version,
		"service": "growen-ai-core",
	})
}

// ── Providers ───────────────────────────────────────────────

type taskRoute struct {
	Task     task.Task        `json:"task"`
	Provider llm.ProviderName `json:"provider,omitempty"`
	Reason   router.Reason    `json:"reason,omitempty"`
	Error    string           `json:"error,omitempty"`
}

type providersResponse struct {
	Mode          router.Mode      `json:"mode"`
	AllowExternal bool             `json:"allow_external"`
	Providers     []llm.Descriptor `json:"providers"`
	Routes        []taskRoute      `json:"routes"`
}

// ListProviders reports every registered backend and the decision the
// router would take for each task right now.
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	reg := h.Router.Registry()
	policy := h.Router.Policy()

	resp := providersResponse{
		Mode:          policy.Mode,
		AllowExternal: policy.AllowExternal,
		Providers:     []llm.Descriptor{},
	}
	descriptors := reg.Descriptors()
	for _, name := range reg.Names() {
		resp.Providers = append(resp.Providers, descriptors[name])
	}
	for _, t := range task.All() {
		route := taskRoute{Task: t}
		d, err := h.Router.Decide(r.Context(), t)
		if err != nil {
			route.Error = err.Error()
		} else {
			route.Provider = d.Provider
			route.Reason = d.Reason
		}
		resp.Routes = append(resp.Routes, route)
	}
	respondJSON(w, http.StatusOK, resp)
}

// ── Resolver ────────────────────────────────────────────────

type resolveRequest struct {
	Query string `json:"query"`
}

// Resolve runs the product resolver for staff. Raw SKUs and identities are
// only exposed to elevated roles, so the whole endpoint is restricted.
func (h *Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	if !requireElevated(w, r) {
		return
	}
	if h.Resolver == nil {
		respondError(w, http.StatusServiceUnavailable, "resolver not configured")
		return
	}
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	res, err := h.Resolver.Resolve(r.Context(), req.Query)
	if err != nil {
		log.Error().Err(err).Str("query", req.Query).Msg("Resolver failed")
		respondError(w, http.StatusBadGateway, "catalog lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// ── History ─────────────────────────────────────────────────

// SessionHistory returns the recent messages and audit trail of a session.
func (h *Handlers) SessionHistory(w http.ResponseWriter, r *http.Request) {
	if !requireElevated(w, r) {
		return
	}
	key := chi.URLParam(r, "sessionKey")
	limit := history.DefaultRecentLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	msgs, err := h.History.Recent(r.Context(), key, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	audit, err := h.History.Audit(r.Context(), key, limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_key": key,
		"messages":    msgs,
		"audit":       audit,
	})
}

// ── Helpers ─────────────────────────────────────────────────

func requireElevated(w http.ResponseWriter, r *http.Request) bool {
	if pkgmw.IsElevated(r.Context()) {
		return true
	}
	respondError(w, http.StatusForbidden, "forbidden")
	return false
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
