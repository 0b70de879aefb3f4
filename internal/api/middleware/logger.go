package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// quietPaths are probed constantly and only logged at debug level.
var quietPaths = map[string]bool{"/health": true, "/metrics": true}

// Logger logs one line per request. For WebSocket upgrades the line is
// written when the connection ends, so the duration is the session length.
func Logger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := newResponseWriter(w)

		next.ServeHTTP(rw, r)

		level := levelFor(r, rw.statusCode)
		if rw.upgraded {
			level = zerolog.InfoLevel
		}
		log.WithLevel(level).
			Str("method", r.Method).
			Str("route", routeLabel(r)).
			Str("path", r.URL.Path).
			Int("status", rw.statusCode).
			Int("bytes", rw.bytes).
			Bool("websocket", rw.upgraded).
			Dur("duration", time.Since(start)).
			Str("remote", r.RemoteAddr).
			Str("request_id", chimw.GetReqID(r.Context())).
			Msg("request")
	})
}

func levelFor(r *http.Request, status int) zerolog.Level {
	switch {
	case status >= 500:
		return zerolog.ErrorLevel
	case status >= 400:
		return zerolog.WarnLevel
	case quietPaths[r.URL.Path]:
		return zerolog.DebugLevel
	}
	return zerolog.InfoLevel
}
