package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/BioTRaX/Growen-sub001/internal/disambig"
	pkgmw "github.com/BioTRaX/Growen-sub001/pkg/middleware"
)

// SessionCookie carries the host application's chat session id.
const SessionCookie = "growen_session"

// Session resolves the chat session key and stores it in context. It must
// run after Auth so the identity's session id is visible.
func Session(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := pkgmw.SetSessionKey(r.Context(), SessionKey(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionKey picks the session key of r. Priority: the session cookie, the
// session_id query parameter, the identity's session id, and finally a key
// derived from the client host and user agent.
func SessionKey(r *http.Request) string {
	sid := ""
	if c, err := r.Cookie(SessionCookie); err == nil {
		sid = strings.TrimSpace(c.Value)
	}
	if sid == "" {
		sid = strings.TrimSpace(r.URL.Query().Get("session_id"))
	}
	if sid == "" {
		sid = pkgmw.GetIdentity(r.Context()).SessionID
	}
	return disambig.DeriveKey(sid, clientHost(r), r.UserAgent())
}

func clientHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
