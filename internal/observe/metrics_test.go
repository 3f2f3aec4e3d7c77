package observe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance wired to a manual reader so
// tests can collect recorded data points synchronously.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

// collect gathers all currently recorded metrics.
func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	return rm
}

// findMetric looks up a metric by name across all scopes.
func findMetric(rm metricdata.ResourceMetrics, name string) (metricdata.Metrics, bool) {
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name == name {
				return m, true
			}
		}
	}
	return metricdata.Metrics{}, false
}

func TestRecordStageHistogramAndErrors(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordStage(ctx, "vision", 3.2, nil)
	m.RecordStage(ctx, "solution", 8.5, errors.New("boom"))
	m.RecordStage(ctx, "unknown", 1.0, errors.New("boom"))

	rm := collect(t, reader)

	vision, ok := findMetric(rm, "sparkbox.vision.duration")
	if !ok {
		t.Fatal("vision histogram not recorded")
	}
	hist, ok := vision.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 {
		t.Fatalf("unexpected vision data: %+v", vision.Data)
	}
	if got := hist.DataPoints[0].Sum; got != 3.2 {
		t.Errorf("vision sum = %f, want 3.2", got)
	}

	stageErrs, ok := findMetric(rm, "sparkbox.stage.errors")
	if !ok {
		t.Fatal("stage error counter not recorded")
	}
	sum, ok := stageErrs.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("unexpected error data: %+v", stageErrs.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 2 {
		t.Errorf("stage errors = %d, want 2", total)
	}
}

func TestRecordCountersByAttribute(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordCapture(ctx, "ok")
	m.RecordCapture(ctx, "ok")
	m.RecordCapture(ctx, "error")
	m.RecordEvent(ctx, "complete")
	m.RecordButtonPress(ctx, "capture")

	rm := collect(t, reader)

	captures, ok := findMetric(rm, "sparkbox.captures")
	if !ok {
		t.Fatal("capture counter not recorded")
	}
	sum := captures.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 2 {
		t.Fatalf("capture attribute sets = %d, want 2", len(sum.DataPoints))
	}

	if _, ok := findMetric(rm, "sparkbox.events"); !ok {
		t.Error("event counter not recorded")
	}
	if _, ok := findMetric(rm, "sparkbox.button.presses"); !ok {
		t.Error("button counter not recorded")
	}
}

func TestMiddlewareRecordsDuration(t *testing.T) {
	t.Parallel()

	m, reader := newTestMetrics(t)

	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}

	rm := collect(t, reader)
	httpHist, ok := findMetric(rm, "sparkbox.http.request.duration")
	if !ok {
		t.Fatal("http histogram not recorded")
	}
	hist := httpHist.Data.(metricdata.Histogram[float64])
	if len(hist.DataPoints) != 1 {
		t.Fatalf("data points = %d, want 1", len(hist.DataPoints))
	}
}

func TestMiddlewarePreservesFlusher(t *testing.T) {
	t.Parallel()

	m, _ := newTestMetrics(t)
	handler := Middleware(m)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := w.(http.Flusher); !ok {
			t.Error("wrapped writer lost http.Flusher")
		}
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/stream", nil))
}
