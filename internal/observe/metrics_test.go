package observe

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

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

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumFor(t *testing.T, rm metricdata.ResourceMetrics, name string, key, value string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("metric %q not found", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %q data type = %T, want Sum[int64]", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		if v, ok := dp.Attributes.Value(attribute.Key(key)); ok && v.AsString() == value {
			total += dp.Value
		}
	}
	return total
}

func TestRecordRequest(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRequest(ctx, "ping", "ok")
	m.RecordRequest(ctx, "transcribe", "ok")
	m.RecordRequest(ctx, "transcribe", "error")

	rm := collect(t, reader)
	if got := sumFor(t, rm, "speechd.requests", "kind", "transcribe"); got != 2 {
		t.Errorf("transcribe requests = %d, want 2", got)
	}
	if got := sumFor(t, rm, "speechd.requests", "status", "error"); got != 1 {
		t.Errorf("failed requests = %d, want 1", got)
	}
}

func TestRecordRoute(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordRoute(ctx, "fast", time.Millisecond)
	m.RecordRoute(ctx, "corrected", 2*time.Second)
	m.RecordRoute(ctx, "fallback", 15*time.Second)

	rm := collect(t, reader)
	if got := sumFor(t, rm, "speechd.correction.routes", "path", "fast"); got != 1 {
		t.Errorf("fast routes = %d, want 1", got)
	}

	hm := findMetric(rm, "speechd.correction.duration")
	if hm == nil {
		t.Fatal("correction duration not recorded")
	}
	hist := hm.Data.(metricdata.Histogram[float64])
	var count uint64
	for _, dp := range hist.DataPoints {
		count += dp.Count
	}
	if count != 2 {
		t.Errorf("correction duration observations = %d, want 2 (fast path excluded)", count)
	}
}

func TestRecordTranscriptionAndGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.RecordTranscription(ctx, 800*time.Millisecond, "cuda", 0.9, true)
	m.RecordTranscription(ctx, 100*time.Millisecond, "cuda", 0, false)
	m.VADThreshold.Record(ctx, 0.2)
	m.ModelLoaded.Add(ctx, 1)
	m.RecordModelLoad(ctx, "cuda", nil)
	m.RecordModelLoad(ctx, "cuda", errors.New("oom"))

	rm := collect(t, reader)

	conf := findMetric(rm, "speechd.transcription.confidence").Data.(metricdata.Histogram[float64])
	if len(conf.DataPoints) != 1 || conf.DataPoints[0].Count != 1 {
		t.Errorf("confidence observations = %+v, want exactly one", conf.DataPoints)
	}

	g := findMetric(rm, "speechd.vad.threshold").Data.(metricdata.Gauge[float64])
	if len(g.DataPoints) != 1 || g.DataPoints[0].Value != 0.2 {
		t.Errorf("vad threshold gauge = %+v", g.DataPoints)
	}

	if got := sumFor(t, rm, "speechd.model.loads", "status", "error"); got != 1 {
		t.Errorf("failed loads = %d, want 1", got)
	}
}

func TestNoop(t *testing.T) {
	m := Noop()
	m.RecordRequest(context.Background(), "ping", "ok")
	m.RecordRoute(context.Background(), "corrected", time.Second)
}

func TestHandlerHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200", rec.Code)
	}

	rec = httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200", rec.Code)
	}
}
