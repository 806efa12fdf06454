package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// TestMetricsRegistered verifies that all metrics are registered in the
// default registry.
func TestMetricsRegistered(t *testing.T) {
	expected := map[string]bool{
		"toolgate_requests_total":           false,
		"toolgate_request_duration_seconds": false,
		"toolgate_requests_in_flight":       false,
		"toolgate_tool_calls_total":         false,
		"toolgate_tool_duration_seconds":    false,
		"toolgate_verifications_total":      false,
		"toolgate_provider_requests_total":  false,
		"toolgate_discovery_refresh_total":  false,
		"toolgate_discovery_functions":      false,
		"toolgate_ratelimit_rejected_total": false,
	}

	// Vectors only appear after their first observation.
	RequestsTotal.WithLabelValues("GET", "2xx", "test").Inc()
	RequestDuration.WithLabelValues("GET", "test").Observe(0.1)
	ToolCallsTotal.WithLabelValues("test", "tool", "success").Inc()
	ToolDuration.WithLabelValues("test", "tool").Observe(0.1)
	VerificationsTotal.WithLabelValues("none", "denied").Inc()
	ProviderRequestsTotal.WithLabelValues("auto", "local", "ok").Inc()
	DiscoveryRefreshTotal.WithLabelValues("ok").Inc()
	RateLimitRejectedTotal.WithLabelValues("default").Inc()

	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("unexpected gather error: %v", err)
	}

	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not found in default registry", name)
		}
	}
}

func newMux(status int, delay time.Duration) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/tools/{name}", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(delay)
		w.WriteHeader(status)
	})
	return MetricsMiddleware(mux)
}

// TestMiddlewareRecordsRequestCount verifies that the middleware increments
// the request counter with the matched route pattern.
func TestMiddlewareRecordsRequestCount(t *testing.T) {
	before := counterValue(t, RequestsTotal, "GET", "2xx", "/v1/tools/{name}")

	req := httptest.NewRequest("GET", "/v1/tools/payments.create", nil)
	rec := httptest.NewRecorder()
	newMux(http.StatusOK, 0).ServeHTTP(rec, req)

	after := counterValue(t, RequestsTotal, "GET", "2xx", "/v1/tools/{name}")
	if after-before != 1 {
		t.Errorf("expected request count to increase by 1, got delta=%f", after-before)
	}
}

// TestMiddlewareRecordsDuration verifies that the middleware records
// a request duration observation.
func TestMiddlewareRecordsDuration(t *testing.T) {
	before := histogramCount(t, RequestDuration, "POST", "/v1/tools/{name}")

	req := httptest.NewRequest("POST", "/v1/tools/x", nil)
	rec := httptest.NewRecorder()
	newMux(http.StatusOK, 5*time.Millisecond).ServeHTTP(rec, req)

	after := histogramCount(t, RequestDuration, "POST", "/v1/tools/{name}")
	if after-before != 1 {
		t.Errorf("expected histogram sample count to increase by 1, got delta=%d", after-before)
	}
}

// TestMiddlewareCapturesStatusCode verifies that non-200 status codes are
// captured correctly in the status label.
func TestMiddlewareCapturesStatusCode(t *testing.T) {
	before := counterValue(t, RequestsTotal, "POST", "4xx", "/v1/tools/{name}")

	req := httptest.NewRequest("POST", "/v1/tools/x", nil)
	rec := httptest.NewRecorder()
	newMux(http.StatusBadRequest, 0).ServeHTTP(rec, req)

	after := counterValue(t, RequestsTotal, "POST", "4xx", "/v1/tools/{name}")
	if after-before != 1 {
		t.Errorf("expected 4xx count to increase by 1, got delta=%f", after-before)
	}
}

// TestMiddlewareUnmatchedRoute verifies that requests not matched by a mux
// pattern share a single label value.
func TestMiddlewareUnmatchedRoute(t *testing.T) {
	before := counterValue(t, RequestsTotal, "GET", "4xx", "unmatched")

	req := httptest.NewRequest("GET", "/nope", nil)
	rec := httptest.NewRecorder()
	newMux(http.StatusOK, 0).ServeHTTP(rec, req)

	after := counterValue(t, RequestsTotal, "GET", "4xx", "unmatched")
	if after-before != 1 {
		t.Errorf("expected unmatched count to increase by 1, got delta=%f", after-before)
	}
}

// TestMiddlewareTracksInFlight verifies that the gauge counts a request
// while it is being served and releases it afterwards.
func TestMiddlewareTracksInFlight(t *testing.T) {
	base := gaugeValue(t, RequestsInFlight)
	var during float64
	h := MetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		during = gaugeValue(t, RequestsInFlight)
	}))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))

	if during-base != 1 {
		t.Errorf("in-flight during request = %f, want %f", during, base+1)
	}
	if after := gaugeValue(t, RequestsInFlight); after != base {
		t.Errorf("in-flight after request = %f, want %f", after, base)
	}
}

// TestStatusWriterDefaultsToOK verifies that a handler writing a body
// without an explicit status is recorded as 200.
func TestStatusWriterDefaultsToOK(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}
	_, _ = sw.Write([]byte("ok"))
	sw.WriteHeader(http.StatusTeapot)

	if sw.code() != http.StatusOK {
		t.Errorf("code() = %d, want 200", sw.code())
	}
}

// TestStatusWriterFlush verifies that Flush delegates to the underlying writer.
func TestStatusWriterFlush(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec, status: http.StatusOK}

	sw.Flush()

	if !rec.Flushed {
		t.Error("expected underlying writer to be flushed")
	}
}

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting counter metric: %v", err)
	}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing counter metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := g.Write(m); err != nil {
		t.Fatalf("writing gauge metric: %v", err)
	}
	return m.GetGauge().GetValue()
}

// histogramCount reads the observation count from a HistogramVec.
func histogramCount(t *testing.T, hv *prometheus.HistogramVec, labels ...string) uint64 {
	t.Helper()
	m := &dto.Metric{}
	obs, err := hv.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("getting histogram metric: %v", err)
	}
	if err := obs.(prometheus.Metric).Write(m); err != nil {
		t.Fatalf("writing histogram metric: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}
