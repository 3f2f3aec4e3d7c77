// Package observe provides application-wide observability primitives:
// OpenTelemetry metrics with a Prometheus exporter bridge and HTTP
// middleware that records request latency.
//
// A package-level default [Metrics] instance ([DefaultMetrics]) is provided
// for convenience; tests should use [NewMetrics] with a custom
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all station metrics.
const meterName = "github.com/sparkbox-kiosk/sparkbox"

// Metrics holds all OpenTelemetry metric instruments for the station.
// All fields are safe for concurrent use.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// VisionDuration tracks sketch analysis latency.
	VisionDuration metric.Float64Histogram

	// SolutionDuration tracks solution generation latency.
	SolutionDuration metric.Float64Histogram

	// PreviewDuration tracks preview image generation latency.
	PreviewDuration metric.Float64Histogram

	// ChatDuration tracks voice dialogue round-trip latency.
	ChatDuration metric.Float64Histogram

	// TranscribeDuration tracks speech-to-text latency.
	TranscribeDuration metric.Float64Histogram

	// --- Counters ---

	// Captures counts capture jobs by status ("ok" or "error").
	Captures metric.Int64Counter

	// Events counts bus events by state.
	Events metric.Int64Counter

	// Frames counts decoded camera frames.
	Frames metric.Int64Counter

	// ButtonPresses counts physical button activations by line.
	ButtonPresses metric.Int64Counter

	// StageErrors counts remote stage failures by stage.
	StageErrors metric.Int64Counter

	// --- Gauges ---

	// StreamClients tracks the number of connected SSE subscribers.
	StreamClients metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks HTTP request processing time. Use with
	// attributes: attribute.String("method", ...), attribute.String("path", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// remote model calls, which routinely take several seconds.
var latencyBuckets = []float64{
	0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	stageHist := func(name, desc string) (metric.Float64Histogram, error) {
		return m.Float64Histogram(name,
			metric.WithDescription(desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
	}

	if met.VisionDuration, err = stageHist("sparkbox.vision.duration",
		"Latency of sketch vision analysis."); err != nil {
		return nil, err
	}
	if met.SolutionDuration, err = stageHist("sparkbox.solution.duration",
		"Latency of solution generation."); err != nil {
		return nil, err
	}
	if met.PreviewDuration, err = stageHist("sparkbox.preview.duration",
		"Latency of preview image generation."); err != nil {
		return nil, err
	}
	if met.ChatDuration, err = stageHist("sparkbox.chat.duration",
		"Latency of voice dialogue responses."); err != nil {
		return nil, err
	}
	if met.TranscribeDuration, err = stageHist("sparkbox.transcribe.duration",
		"Latency of speech-to-text transcription."); err != nil {
		return nil, err
	}

	if met.Captures, err = m.Int64Counter("sparkbox.captures",
		metric.WithDescription("Total capture jobs by status."),
	); err != nil {
		return nil, err
	}
	if met.Events, err = m.Int64Counter("sparkbox.events",
		metric.WithDescription("Total bus events by state."),
	); err != nil {
		return nil, err
	}
	if met.Frames, err = m.Int64Counter("sparkbox.frames",
		metric.WithDescription("Total decoded camera frames."),
	); err != nil {
		return nil, err
	}
	if met.ButtonPresses, err = m.Int64Counter("sparkbox.button.presses",
		metric.WithDescription("Total physical button activations by line."),
	); err != nil {
		return nil, err
	}
	if met.StageErrors, err = m.Int64Counter("sparkbox.stage.errors",
		metric.WithDescription("Total remote stage failures by stage."),
	); err != nil {
		return nil, err
	}

	if met.StreamClients, err = m.Int64UpDownCounter("sparkbox.stream.clients",
		metric.WithDescription("Number of connected event stream subscribers."),
	); err != nil {
		return nil, err
	}

	if met.HTTPRequestDuration, err = m.Float64Histogram("sparkbox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordStage records one remote stage call: its duration on the matching
// histogram and, on failure, an increment of the stage error counter.
func (m *Metrics) RecordStage(ctx context.Context, stage string, seconds float64, err error) {
	var hist metric.Float64Histogram
	switch stage {
	case "vision":
		hist = m.VisionDuration
	case "solution":
		hist = m.SolutionDuration
	case "preview":
		hist = m.PreviewDuration
	case "chat":
		hist = m.ChatDuration
	case "transcribe":
		hist = m.TranscribeDuration
	}
	if hist != nil {
		hist.Record(ctx, seconds)
	}
	if err != nil {
		m.StageErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	}
}

// RecordCapture records one finished capture job.
func (m *Metrics) RecordCapture(ctx context.Context, status string) {
	m.Captures.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}

// RecordEvent records one published bus event.
func (m *Metrics) RecordEvent(ctx context.Context, state string) {
	m.Events.Add(ctx, 1, metric.WithAttributes(attribute.String("state", state)))
}

// RecordButtonPress records one physical button activation.
func (m *Metrics) RecordButtonPress(ctx context.Context, line string) {
	m.ButtonPresses.Add(ctx, 1, metric.WithAttributes(attribute.String("line", line)))
}
