package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func get(t *testing.T, h http.Handler, path, accept string) (int, string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return rec.Code, string(body)
}

func TestMetricsEndpointServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWithRegistry(reg)
	m.BreakerState.WithLabelValues("ingest-publish").Set(1)
	m.BreakerTransitions.WithLabelValues("ingest-publish", "open").Inc()
	mux := newMux(reg)

	code, body := get(t, mux, "/metrics", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, `circuit_breaker_state{name="ingest-publish"} 1`)
	assert.Contains(t, body, `circuit_breaker_transitions_total{name="ingest-publish",to="open"} 1`)

	code, body = get(t, mux, "/metrics", "application/openmetrics-text; version=1.0.0")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, body, "# EOF")
}

func TestMetricsServerUnknownPath(t *testing.T) {
	mux := newMux(prometheus.NewRegistry())
	code, _ := get(t, mux, "/", "")
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = get(t, mux, "/metricz", "")
	assert.Equal(t, http.StatusNotFound, code)
}
