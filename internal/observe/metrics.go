// Package observe wires OpenTelemetry metrics for the daemon and exposes
// them on a Prometheus scrape endpoint.
//
// Tests should build [Metrics] with [NewMetrics] over their own
// [metric.MeterProvider]; [InitProvider] installs the global one.
package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu"

// Metrics holds the daemon's instruments. All fields are safe for
// concurrent use.
type Metrics struct {
	// Requests counts handled requests by kind and status.
	Requests metric.Int64Counter

	// TranscriptionDuration tracks model inference latency by device.
	TranscriptionDuration metric.Float64Histogram

	// CorrectionDuration tracks correction backend latency by path.
	CorrectionDuration metric.Float64Histogram

	// Routes counts routing decisions by path (fast, corrected, fallback).
	Routes metric.Int64Counter

	// Confidence records the confidence of each non-empty transcript.
	Confidence metric.Float64Histogram

	// ModelLoads counts model loads by device and outcome.
	ModelLoads metric.Int64Counter

	// ModelLoaded is 1 while a model is resident.
	ModelLoaded metric.Int64UpDownCounter

	// VADThreshold is the energy threshold in force.
	VADThreshold metric.Float64Gauge

	// SkippedSilence counts requests dropped by the content gate.
	SkippedSilence metric.Int64Counter
}

var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

var confidenceBuckets = []float64{
	0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.75, 0.8, 0.9, 1,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Requests, err = m.Int64Counter("speechd.requests",
		metric.WithDescription("Requests handled by kind and status."),
	); err != nil {
		return nil, err
	}
	if met.TranscriptionDuration, err = m.Float64Histogram("speechd.transcription.duration",
		metric.WithDescription("Latency of speech model inference."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.CorrectionDuration, err = m.Float64Histogram("speechd.correction.duration",
		metric.WithDescription("Latency of transcript correction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.Routes, err = m.Int64Counter("speechd.correction.routes",
		metric.WithDescription("Routing decisions by path."),
	); err != nil {
		return nil, err
	}
	if met.Confidence, err = m.Float64Histogram("speechd.transcription.confidence",
		metric.WithDescription("Confidence of produced transcripts."),
		metric.WithExplicitBucketBoundaries(confidenceBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ModelLoads, err = m.Int64Counter("speechd.model.loads",
		metric.WithDescription("Model load attempts by device and status."),
	); err != nil {
		return nil, err
	}
	if met.ModelLoaded, err = m.Int64UpDownCounter("speechd.model.loaded",
		metric.WithDescription("1 while a speech model is resident."),
	); err != nil {
		return nil, err
	}
	if met.VADThreshold, err = m.Float64Gauge("speechd.vad.threshold",
		metric.WithDescription("Voice activity energy threshold in force."),
	); err != nil {
		return nil, err
	}
	if met.SkippedSilence, err = m.Int64Counter("speechd.audio.skipped",
		metric.WithDescription("Requests skipped because the clip had no content."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// Noop returns instruments that record nothing.
func Noop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider())
	return m
}

// RecordRequest counts a finished request.
func (m *Metrics) RecordRequest(ctx context.Context, kind, status string) {
	m.Requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordTranscription records one inference.
func (m *Metrics) RecordTranscription(ctx context.Context, d time.Duration, device string, confidence float64, hasText bool) {
	m.TranscriptionDuration.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("device", device)))
	if hasText {
		m.Confidence.Record(ctx, confidence)
	}
}

// RecordRoute records a routing decision and, off the fast path, its
// latency.
func (m *Metrics) RecordRoute(ctx context.Context, path string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("path", path))
	m.Routes.Add(ctx, 1, attrs)
	if path != "fast" {
		m.CorrectionDuration.Record(ctx, d.Seconds(), attrs)
	}
}

// RecordModelLoad counts a load attempt.
func (m *Metrics) RecordModelLoad(ctx context.Context, device string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ModelLoads.Add(ctx, 1, metric.WithAttributes(
		attribute.String("device", device),
		attribute.String("status", status),
	))
}
