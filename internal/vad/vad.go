// Package vad finds the speech regions of a clip before it is handed to the
// speech model.
//
// Frames are scored by their energy relative to the loudest frame of the
// clip; a frame scoring at or above [Params.Threshold] is voiced. An optional
// [Classifier] (for example [WebRTC]) must also accept a frame for it to
// count as speech. Voiced runs are then joined across short pauses, filtered
// by minimum length and padded.
package vad

import (
	"log/slog"
	"math"
	"time"
)

// FrameDuration is the analysis frame length.
const FrameDuration = 30 * time.Millisecond

// Params are the tunable segmentation parameters.
type Params struct {
	Threshold  float64       // relative frame energy in [0, 1]
	MinSilence time.Duration // pause length that ends a region
	MinSpeech  time.Duration // regions shorter than this are dropped
	SpeechPad  time.Duration // added before and after each region
}

// DefaultParams returns the default segmentation parameters.
func DefaultParams() Params {
	return Params{
		Threshold:  0.16,
		MinSilence: 500 * time.Millisecond,
		MinSpeech:  100 * time.Millisecond,
		SpeechPad:  200 * time.Millisecond,
	}
}

// Region is a half-open sample range [Start, End).
type Region struct {
	Start int
	End   int
}

// Len returns the number of samples in the region.
func (r Region) Len() int { return r.End - r.Start }

// Classifier is a second opinion on whether a frame holds speech.
type Classifier interface {
	IsSpeech(frame []float32, sampleRate int) (bool, error)
}

// Detector segments clips into speech regions.
type Detector struct {
	classifier Classifier
}

// NewDetector returns a Detector. classifier may be nil.
func NewDetector(classifier Classifier) *Detector {
	return &Detector{classifier: classifier}
}

// Detect returns the speech regions of samples in order.
func (d *Detector) Detect(samples []float32, sampleRate int, p Params) []Region {
	if sampleRate <= 0 || len(samples) == 0 {
		return nil
	}
	frameLen := samplesFor(FrameDuration, sampleRate)
	if frameLen == 0 {
		return nil
	}

	voiced := d.voicedFrames(samples, sampleRate, frameLen, p.Threshold)

	minSilence := int(math.Ceil(float64(p.MinSilence) / float64(FrameDuration)))
	minSpeech := samplesFor(p.MinSpeech, sampleRate)
	pad := samplesFor(p.SpeechPad, sampleRate)

	var regions []Region
	start, silent := -1, 0
	flush := func(endFrame int) {
		r := Region{Start: start * frameLen, End: min(endFrame*frameLen, len(samples))}
		if r.Len() >= minSpeech {
			regions = append(regions, r)
		}
		start, silent = -1, 0
	}

	for i, v := range voiced {
		switch {
		case v && start < 0:
			start, silent = i, 0
		case v:
			silent = 0
		case start >= 0:
			silent++
			if silent >= minSilence {
				flush(i - silent + 1)
			}
		}
	}
	if start >= 0 {
		flush(len(voiced) - silent)
	}

	return padAndMerge(regions, pad, len(samples))
}

func (d *Detector) voicedFrames(samples []float32, sampleRate, frameLen int, threshold float64) []bool {
	n := (len(samples) + frameLen - 1) / frameLen
	energy := make([]float64, n)
	var peak float64
	for i := range energy {
		frame := samples[i*frameLen : min((i+1)*frameLen, len(samples))]
		energy[i] = rms(frame)
		peak = math.Max(peak, energy[i])
	}

	voiced := make([]bool, n)
	if peak == 0 {
		return voiced
	}

	classifierOK := d.classifier != nil
	for i, e := range energy {
		if e/peak < threshold {
			continue
		}
		voiced[i] = true
		if !classifierOK {
			continue
		}
		frame := samples[i*frameLen : min((i+1)*frameLen, len(samples))]
		speech, err := d.classifier.IsSpeech(frame, sampleRate)
		if err != nil {
			// Energy alone decides for the rest of this clip.
			slog.Warn("[vad] classifier failed, using energy only", "error", err)
			classifierOK = false
			continue
		}
		voiced[i] = speech
	}
	return voiced
}

func padAndMerge(regions []Region, pad, total int) []Region {
	if len(regions) == 0 {
		return nil
	}
	out := make([]Region, 0, len(regions))
	for _, r := range regions {
		r.Start = max(0, r.Start-pad)
		r.End = min(total, r.End+pad)
		if n := len(out); n > 0 && r.Start <= out[n-1].End {
			out[n-1].End = max(out[n-1].End, r.End)
			continue
		}
		out = append(out, r)
	}
	return out
}

// Collect concatenates the samples covered by regions.
func Collect(samples []float32, regions []Region) []float32 {
	total := 0
	for _, r := range regions {
		total += r.Len()
	}
	out := make([]float32, 0, total)
	for _, r := range regions {
		out = append(out, samples[r.Start:r.End]...)
	}
	return out
}

func samplesFor(d time.Duration, sampleRate int) int {
	return int(d.Seconds() * float64(sampleRate))
}

func rms(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, s := range frame {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(frame)))
}
