package observability

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestMetrics(t *testing.T) {
	m := NewMetrics()
	m.Observe("AtomicSave", nil, 10*time.Millisecond)
	m.Observe("AtomicSave", errors.New("boom"), time.Millisecond)
	m.ObserveRequest(http.MethodGet, "/api/dataset/:id", http.StatusOK, time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)
	m.Observe("journal.Append", errors.New("offline"), 0)

	body := scrape(t, m)
	assert.Contains(t, body, `taskvault_history_operations_total{op="AtomicSave",outcome="ok"} 1`)
	assert.Contains(t, body, `taskvault_history_operations_total{op="AtomicSave",outcome="error"} 1`)
	assert.Contains(t, body, `taskvault_http_requests_total{method="GET",route="/api/dataset/:id",status="200"} 1`)
	assert.Contains(t, body, `route="unmatched"`)
	assert.Contains(t, body, `taskvault_history_operations_total{op="journal.Append",outcome="error"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestMetricsRegistriesAreIndependent(t *testing.T) {
	a, b := NewMetrics(), NewMetrics()
	a.Observe("CreateTask", nil, time.Millisecond)
	assert.NotContains(t, scrape(t, b), `op="CreateTask"`)
}

func TestInitTracer(t *testing.T) {
	ctx := context.Background()

	shutdown, err := InitTracer(ctx, TracerConfig{Exporter: "none"})
	require.NoError(t, err)
	assert.NoError(t, shutdown(ctx))

	shutdown, err = InitTracer(ctx, TracerConfig{Exporter: "otlp", Endpoint: "localhost:4317", ServiceName: "taskvault-test"})
	require.NoError(t, err, "the collector is dialed lazily")
	sctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_ = shutdown(sctx)

	_, err = InitTracer(ctx, TracerConfig{Exporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}
