package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLLMRequest(t *testing.T) {
	c := NewCollector("test")

	c.RecordLLMRequest("tongyi", "generate_exercise", StatusSuccess, 2*time.Second, 100, 40)
	c.RecordLLMRequest("tongyi", "generate_exercise", StatusFailure, time.Second, 0, 0)
	c.RecordLLMRequest("tongyi", "generate_exercise", StatusSuccess, time.Second, 10, 5)

	assert.InDelta(t, 2, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("tongyi", "generate_exercise", StatusSuccess)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("tongyi", "generate_exercise", StatusFailure)), 0)
	assert.InDelta(t, 110, testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("tongyi", "prompt")), 0)
	assert.InDelta(t, 45, testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("tongyi", "completion")), 0)
}

func TestLLMDurationHistogram(t *testing.T) {
	c := NewCollector("test")
	c.RecordLLMRequest("deepseek", "photo_correction", StatusSuccess, 3*time.Second, 1, 1)

	families, err := c.Registry().Gather()
	require.NoError(t, err)

	var hist *dto.Histogram
	for _, mf := range families {
		if mf.GetName() == "test_llm_request_duration_seconds" {
			require.Len(t, mf.GetMetric(), 1)
			hist = mf.GetMetric()[0].GetHistogram()
		}
	}
	require.NotNil(t, hist)
	assert.Equal(t, uint64(1), hist.GetSampleCount())
	assert.InDelta(t, 3.0, hist.GetSampleSum(), 0.0001)
}

func TestRecordHTTPRequestAndCounters(t *testing.T) {
	c := NewCollector("test")

	c.RecordHTTPRequest("POST", "/api/ai/generate-exercise", 200, 50*time.Millisecond)
	c.RecordConfigurationError("test_connection")
	c.RecordRateLimited()
	c.RecordRateLimited()

	assert.InDelta(t, 1, testutil.ToFloat64(c.httpRequestsTotal.WithLabelValues("POST", "/api/ai/generate-exercise", "200")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(c.configErrors.WithLabelValues("test_connection")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(c.rateLimited), 0)
}

func TestHandlerExposesMetrics(t *testing.T) {
	c := NewCollector("edu")
	c.RecordLLMRequest("tongyi", "test_connection", StatusSuccess, time.Second, 1, 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `edu_llm_requests_total{function="test_connection",provider="tongyi",status="success"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCollectorsAreIsolated(t *testing.T) {
	a := NewCollector("same")
	b := NewCollector("same")

	a.RecordRateLimited()

	assert.InDelta(t, 1, testutil.ToFloat64(a.rateLimited), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(b.rateLimited), 0)
}
