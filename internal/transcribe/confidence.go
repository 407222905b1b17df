package transcribe

import "strings"

var fillerWords = map[string]bool{"uh": true, "um": true, "er": true, "ah": true}

// garbledPatterns are phrases the model is known to hallucinate from noise.
var garbledPatterns = []string{"test thing", "sting", "dock her", "coup da", "sparrow low"}

// HeuristicConfidence scores text when token probabilities are unavailable.
// The score starts at 1.0 and is floored at 0.1.
func HeuristicConfidence(text string) float64 {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)

	score := 1.0
	if len(words) < 3 {
		score -= 0.1
	}
	for _, w := range words {
		if len(w) > 3 && !strings.ContainsAny(w, "aeiou") {
			score -= 0.2
		}
		if fillerWords[w] {
			score -= 0.1
		}
	}
	for _, p := range garbledPatterns {
		if strings.Contains(lower, p) {
			score -= 0.3
		}
	}
	return max(0.1, score)
}

func meanProbability(ps []float32) (float64, bool) {
	if len(ps) == 0 {
		return 0, false
	}
	var sum float64
	for _, p := range ps {
		sum += float64(p)
	}
	return sum / float64(len(ps)), true
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
