package vad

import (
	"encoding/binary"
	"fmt"

	webrtcvad "github.com/maxhawkins/go-webrtcvad"
)

// WebRTC classifies frames with the WebRTC voice activity detector.
type WebRTC struct {
	vad *webrtcvad.VAD
}

// NewWebRTC creates a WebRTC classifier. mode is the aggressiveness, 0-3.
func NewWebRTC(mode int) (*WebRTC, error) {
	v, err := webrtcvad.New()
	if err != nil {
		return nil, fmt.Errorf("vad: create webrtc vad: %w", err)
	}
	mode = max(0, min(3, mode))
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("vad: set webrtc mode %d: %w", mode, err)
	}
	return &WebRTC{vad: v}, nil
}

// IsSpeech reports whether the frame holds speech. Frames shorter than
// FrameDuration are zero padded.
func (w *WebRTC) IsSpeech(frame []float32, sampleRate int) (bool, error) {
	switch sampleRate {
	case 8000, 16000, 32000, 48000:
	default:
		return false, fmt.Errorf("vad: webrtc does not support %d Hz", sampleRate)
	}

	n := samplesFor(FrameDuration, sampleRate)
	buf := make([]byte, n*2)
	for i := 0; i < n && i < len(frame); i++ {
		s := max(-1, min(1, frame[i]))
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(int16(s*32767)))
	}

	active, err := w.vad.Process(sampleRate, buf)
	if err != nil {
		return false, fmt.Errorf("vad: webrtc process: %w", err)
	}
	return active, nil
}
