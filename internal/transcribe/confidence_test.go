package transcribe

import (
	"math"
	"testing"
)

func TestHeuristicConfidence(t *testing.T) {
	tests := []struct {
		name string
		text string
		want float64
	}{
		{"clean sentence", "please open the settings file", 1.0},
		{"short utterance", "hello there", 0.9},
		{"filler words", "so um I think uh we should go", 0.8},
		{"vowel-less word", "check the pwrsht script now", 0.8},
		{"garbled pattern", "this is a test thing for you", 0.7},
		{"two garbled patterns", "dock her and the coup da ok", 0.4},
		{"floor", "brrr hmmm tsst pfft grrr um", 0.1},
		{"case insensitive", "UM Sting Sparrow LOW again", 0.3},
		{"deterministic on empty", "", 0.9},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := HeuristicConfidence(tt.text)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("HeuristicConfidence(%q) = %v, want %v", tt.text, got, tt.want)
			}
			if again := HeuristicConfidence(tt.text); again != got {
				t.Errorf("HeuristicConfidence(%q) not deterministic: %v then %v", tt.text, got, again)
			}
		})
	}
}

func TestMeanProbability(t *testing.T) {
	if _, ok := meanProbability(nil); ok {
		t.Error("meanProbability(nil) should report unavailable")
	}
	got, ok := meanProbability([]float32{0.5, 1})
	if !ok || got != 0.75 {
		t.Errorf("meanProbability() = %v, %v; want 0.75, true", got, ok)
	}
	if mean(nil) != 0 {
		t.Error("mean(nil) should be 0")
	}
}
