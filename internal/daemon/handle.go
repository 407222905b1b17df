package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/audio"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/correct"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/history"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/ipc"
	"github.com/sati-bodhi/gpu-accelerated-speech-to-text-for-ubuntu/internal/session"
)

// handlePing answers a liveness probe. It does not count as activity.
func (d *Daemon) handlePing(ctx context.Context, p *pending) {
	st := d.coord.Status()
	e := d.deps.Engine
	pong := ipc.Pong{
		ID:            p.req.ID,
		Type:          ipc.PongType,
		Timestamp:     session.Unix(d.now()),
		Device:        e.Device(),
		ModelLoaded:   e.Loaded(),
		Uptime:        st.Uptime.Seconds(),
		SessionActive: st.Active,
	}
	if err := d.queue.Respond(p.req.ID, pong); err != nil {
		slog.Warn("[daemon] pong not written", "id", p.req.ID, "error", err)
	}
	d.finish(p)
	d.deps.Metrics.RecordRequest(ctx, string(ipc.KindPing), "ok")
	slog.Debug("[daemon] ping answered", "id", p.req.ID)
}

// handleTranscribe runs one request through the pipeline. Any error becomes
// an error response; nothing here stops the loop except the failure
// circuit breaker.
func (d *Daemon) handleTranscribe(ctx context.Context, p *pending) {
	id := p.req.ID
	d.coord.RecordActivity()
	d.coord.SetProcessing(true)
	start := d.now()

	resp, err := d.transcribe(ctx, p)
	if err == nil {
		resp.ProcessingTime = d.now().Sub(start).Seconds()
		if werr := d.queue.Respond(id, resp); werr != nil {
			err = werr
		}
	}

	if err != nil {
		d.fail(ctx, p, err, start)
	} else {
		d.failures.Reset(id)
		d.finish(p)
		d.deps.Metrics.RecordRequest(ctx, string(ipc.KindTranscribe), "ok")
		slog.Info("[daemon] request done",
			"id", id,
			"text", resp.Text(),
			"took", d.now().Sub(start).Round(time.Millisecond),
		)
	}

	d.handled.Add(1)
	d.coord.SetProcessing(false)
	d.writeStatus()
}

func (d *Daemon) transcribe(ctx context.Context, p *pending) (ipc.Response, error) {
	if p.err != nil {
		return ipc.Response{}, p.err
	}
	req := p.req
	if req.Type != ipc.KindTranscribe {
		return ipc.Response{}, fmt.Errorf("%w: unsupported type %q", ipc.ErrInvalidRequest, req.Type)
	}
	if _, err := os.Stat(req.AudioFile); err != nil {
		return ipc.Response{}, fmt.Errorf("audio file: %w", err)
	}

	processed, err := d.deps.Preprocessor.Process(req.AudioFile)
	if err != nil {
		return ipc.Response{}, err
	}

	e := d.deps.Engine
	meta := &ipc.Metadata{
		Analysis:  toIPCAnalysis(processed.Analysis),
		Denoised:  processed.Denoised,
		DebugFile: processed.DebugFile,
	}
	resp := d.baseResponse(req.ID)
	resp.Success = true
	resp.Metadata = meta

	if !processed.Analysis.HasContent {
		meta.Reason = "no audio content"
		d.deps.Metrics.SkippedSilence.Add(ctx, 1)
		slog.Info("[daemon] skipped silent clip",
			"id", req.ID,
			"duration", processed.Analysis.Duration,
			"rms", processed.Analysis.RMS,
		)
		return resp, nil
	}

	wasLoaded := e.Loaded()
	res := e.Transcribe(processed.Clip)
	if !wasLoaded {
		d.recordLoad(ctx, res.Err)
	}
	if res.Err != nil {
		return ipc.Response{}, res.Err
	}
	raw := res.Text()
	d.deps.Metrics.RecordTranscription(ctx, res.ProcessingTime, res.Device, res.Confidence, raw != "")

	if d.deps.Calibrator != nil {
		th := d.deps.Calibrator.ObserveRMS(processed.Analysis.RMS)
		d.deps.Metrics.VADThreshold.Record(ctx, th)
	}

	resp.Device = res.Device
	meta.Model = res.Model
	meta.Confidence = res.Confidence
	meta.VADThreshold = e.VADParams().Threshold
	if raw == "" {
		meta.Reason = "no speech detected"
		return resp, nil
	}

	dec := d.deps.Router.Route(ctx, raw, res.Confidence)
	d.deps.Metrics.RecordRoute(ctx, string(dec.Path), dec.Duration)
	meta.Path = string(dec.Path)
	if dec.Err != nil {
		slog.Warn("[daemon] correction failed, using raw transcript", "id", req.ID, "error", dec.Err)
	}

	if dec.Path == correct.PathCorrected {
		resp.Results = []string{dec.Text}
		meta.Raw = raw
	} else {
		resp.Results = res.Segments
	}

	d.deliver(resp.Text())
	d.record(ctx, history.Entry{
		ID:             req.ID,
		CreatedAt:      d.now(),
		Raw:            raw,
		Text:           resp.Text(),
		Path:           string(dec.Path),
		Confidence:     res.Confidence,
		Device:         res.Device,
		Model:          res.Model,
		AudioSeconds:   processed.Analysis.Duration,
		ProcessingTime: res.ProcessingTime,
		CorrectionTime: dec.Duration,
		Edits:          dec.Edits.Edits(),
	})
	return resp, nil
}

// fail writes an error response, drops the request file and trips the
// circuit breaker when the same id keeps failing.
func (d *Daemon) fail(ctx context.Context, p *pending, err error, start time.Time) {
	id := p.req.ID
	n, tripped := d.failures.Fail(id)
	slog.Error("[daemon] request failed", "id", id, "attempt", n, "error", err)

	resp := d.baseResponse(id)
	resp.Error = err.Error()
	resp.ProcessingTime = d.now().Sub(start).Seconds()
	if werr := d.queue.Respond(id, resp); werr != nil {
		slog.Warn("[daemon] error response not written", "id", id, "error", werr)
	}
	d.finish(p)
	d.deps.Metrics.RecordRequest(ctx, string(ipc.KindTranscribe), "error")

	if tripped {
		slog.Error("[daemon] request keeps failing, shutting down", "id", id, "failures", n)
		d.coord.RequestShutdown(fmt.Sprintf("request %s failed %d times", id, n))
	}
}

func (d *Daemon) finish(p *pending) {
	if err := d.queue.Done(p.path); err != nil {
		slog.Warn("[daemon] request file not removed", "path", p.path, "error", err)
	}
}

func (d *Daemon) baseResponse(id string) ipc.Response {
	return ipc.Response{
		ID:            id,
		Results:       []string{},
		Device:        d.deps.Engine.Device(),
		SessionActive: d.coord.IsActive(),
		Timestamp:     session.Unix(d.now()),
	}
}

func (d *Daemon) deliver(text string) {
	if d.deps.Output == nil || text == "" {
		return
	}
	if err := d.deps.Output.Inject(text); err != nil {
		slog.Warn("[daemon] text output failed", "error", err)
	}
}

func (d *Daemon) record(ctx context.Context, e history.Entry) {
	if d.deps.History == nil {
		return
	}
	if err := d.deps.History.Record(ctx, e); err != nil {
		slog.Warn("[daemon] history not recorded", "id", e.ID, "error", err)
	}
}

func (d *Daemon) recordLoad(ctx context.Context, err error) {
	e := d.deps.Engine
	if e.Loaded() {
		d.deps.Metrics.RecordModelLoad(ctx, e.Device(), nil)
		d.deps.Metrics.ModelLoaded.Add(ctx, 1)
		return
	}
	d.deps.Metrics.RecordModelLoad(ctx, e.Device(), err)
}

func toIPCAnalysis(a audio.Analysis) *ipc.Analysis {
	return &ipc.Analysis{
		Duration:   a.Duration,
		RMS:        a.RMS,
		Peak:       a.Peak,
		HasContent: a.HasContent,
		SampleRate: a.SampleRate,
	}
}
