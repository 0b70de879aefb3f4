package middleware

import (
	"net/http"
	"time"

	"github.com/BioTRaX/Growen-sub001/internal/metrics"
)

// Metrics records request counts and latencies labelled by route pattern,
// so path parameters do not explode label cardinality.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newResponseWriter(w)

			next.ServeHTTP(rw, r)

			m.RecordHTTPRequest(r.Method, routeLabel(r), rw.statusCode, time.Since(start))
		})
	}
}
