package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordRouting("chat", "remote", "primary")
		m.RecordToolCall("search_products", "ok")
		m.RecordIgnoredToolCalls(2)
		m.WSConnected(1)
		m.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
	})
}

func TestCountersAndHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, reg)

	m.RecordRouting("chat", "remote", "primary")
	m.RecordRouting("chat", "remote", "primary")
	m.RecordIgnoredToolCalls(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RoutingDecisions.WithLabelValues("chat", "remote", "primary")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.ToolCallsIgnored))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "growen_routing_decisions_total"))
}
