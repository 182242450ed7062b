// Package observe holds the observability primitives shared by the
// livescribe packages: OpenTelemetry metric instruments, tracing helpers,
// trace-aware slog loggers and HTTP middleware.
//
// Instruments are created through the OTel metrics API and scraped through
// the Prometheus bridge installed by [InitProvider]. Production code uses
// [DefaultMetrics]; tests build an isolated set with [NewMetrics].
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/livescribe"

// Utterance outcomes recorded on [Metrics.Utterances].
const (
	OutcomeAccepted  = "accepted"
	OutcomeDiscarded = "discarded"
)

// Metrics groups every instrument the application records. The OTel types
// synchronise internally.
type Metrics struct {
	// STTDuration is transcription latency per utterance.
	STTDuration metric.Float64Histogram
	// TranslateDuration is translation latency per utterance.
	TranslateDuration metric.Float64Histogram
	// UtteranceDuration is the audio length of accepted utterances.
	UtteranceDuration metric.Float64Histogram
	// HTTPRequestDuration is request latency by method and route.
	HTTPRequestDuration metric.Float64Histogram

	// Utterances counts segmenter output by outcome.
	Utterances metric.Int64Counter
	// SegmentWriteErrors counts utterances lost to a failed WAV write.
	SegmentWriteErrors metric.Int64Counter
	// ProviderRequests counts model calls by provider, kind and status.
	ProviderRequests metric.Int64Counter
	// ProviderErrors counts failed model calls by provider and kind.
	ProviderErrors metric.Int64Counter
	// AudioSamples counts canonical-rate samples ingested.
	AudioSamples metric.Int64Counter

	// TranscriptsPending is the number of records waiting to be polled.
	TranscriptsPending metric.Int64UpDownCounter
	// ActiveSessions is the number of started processors.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets covers model round trips from tens of milliseconds up to
// half a minute.
var latencyBuckets = []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

// utteranceBuckets covers speech lengths in seconds.
var utteranceBuckets = []float64{0.5, 1, 2, 3, 5, 8, 13, 20, 30, 60}

// NewMetrics creates all instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var err error

	histograms := []struct {
		dst     *metric.Float64Histogram
		name    string
		desc    string
		buckets []float64
	}{
		{&met.STTDuration, "livescribe.stt.duration", "Latency of speech-to-text transcription.", latencyBuckets},
		{&met.TranslateDuration, "livescribe.translate.duration", "Latency of text translation.", latencyBuckets},
		{&met.UtteranceDuration, "livescribe.utterance.duration", "Audio length of accepted utterances.", utteranceBuckets},
		{&met.HTTPRequestDuration, "livescribe.http.request.duration", "HTTP request latency by method and path.", nil},
	}
	for _, h := range histograms {
		opts := []metric.Float64HistogramOption{metric.WithDescription(h.desc), metric.WithUnit("s")}
		if h.buckets != nil {
			opts = append(opts, metric.WithExplicitBucketBoundaries(h.buckets...))
		}
		if *h.dst, err = m.Float64Histogram(h.name, opts...); err != nil {
			return nil, err
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.Utterances, "livescribe.utterances", "Segmented utterances by outcome."},
		{&met.SegmentWriteErrors, "livescribe.segment.write_errors", "Utterances lost to a failed segment write."},
		{&met.ProviderRequests, "livescribe.provider.requests", "Model requests by provider, kind and status."},
		{&met.ProviderErrors, "livescribe.provider.errors", "Model errors by provider and kind."},
		{&met.AudioSamples, "livescribe.audio.samples", "Canonical-rate samples ingested."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.TranscriptsPending, err = m.Int64UpDownCounter("livescribe.transcripts.pending",
		metric.WithDescription("Transcript records waiting to be polled."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("livescribe.active_sessions",
		metric.WithDescription("Number of started stream sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide instruments built on
// [otel.GetMeterProvider]. It panics if creation fails, which does not
// happen with the global provider.
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

// Attr is shorthand for [attribute.String].
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordUtterance counts one segmenter output with the given outcome.
func (m *Metrics) RecordUtterance(ctx context.Context, outcome string) {
	m.Utterances.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordProviderRequest counts one model call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one failed model call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}
