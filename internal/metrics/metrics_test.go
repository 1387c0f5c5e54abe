package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordOrderFallback("error")
	m.RecordOrderFallback("error")
	m.RecordOrderFallback("missing")
	m.RecordOrderSaveFailure()
	m.RecordSamplerRegeneration()
	m.RecordRequest("GET", 200, 0.01)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrderFetchFallbacks.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrderFetchFallbacks.WithLabelValues("missing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrderSaveFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SamplerRegenerations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequests.WithLabelValues("GET", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordOrderFallback("error")
		m.RecordOrderSaveFailure()
		m.RecordSamplerRegeneration()
		m.RecordRequest("GET", 500, 1)
	})
}

func TestHandlerExposesCounters(t *testing.T) {
	m := New()
	m.RecordOrderSaveFailure()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "altavoz_order_save_failures_total 1")
}
