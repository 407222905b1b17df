package audio

import "math"

// biquad is a direct form I second-order section.
type biquad struct {
	b0, b1, b2, a1, a2 float64
}

// highPassSection returns a second-order high-pass section at cutoff Hz with
// quality factor q.
func highPassSection(cutoff, q float64, rate int) biquad {
	w0 := 2 * math.Pi * cutoff / float64(rate)
	cos := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)
	a0 := 1 + alpha
	return biquad{
		b0: (1 + cos) / 2 / a0,
		b1: -(1 + cos) / a0,
		b2: (1 + cos) / 2 / a0,
		a1: -2 * cos / a0,
		a2: (1 - alpha) / a0,
	}
}

func (f biquad) apply(x []float64) {
	var x1, x2, y1, y2 float64
	for i, in := range x {
		out := f.b0*in + f.b1*x1 + f.b2*x2 - f.a1*y1 - f.a2*y2
		x2, x1 = x1, in
		y2, y1 = y1, out
		x[i] = out
	}
}

// butterworthQ are the section Q factors of a 4th-order Butterworth response.
var butterworthQ = [2]float64{0.54119610, 1.30656296}

// highPass applies a zero-phase 4th-order Butterworth high-pass filter in
// place: the cascade runs forward and then backward over the signal.
func highPass(x []float64, cutoff float64, rate int) {
	if cutoff <= 0 || rate <= 0 || cutoff >= float64(rate)/2 || len(x) < 3 {
		return
	}
	sections := make([]biquad, len(butterworthQ))
	for i, q := range butterworthQ {
		sections[i] = highPassSection(cutoff, q, rate)
	}

	for _, s := range sections {
		s.apply(x)
	}
	reverse(x)
	for _, s := range sections {
		s.apply(x)
	}
	reverse(x)
}

func reverse(x []float64) {
	for i, j := 0, len(x)-1; i < j; i, j = i+1, j-1 {
		x[i], x[j] = x[j], x[i]
	}
}
