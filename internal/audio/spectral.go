package audio

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// minNoiseSamples is the smallest noise window worth estimating from.
const minNoiseSamples = 100

// spectralSubtract removes a stationary noise estimate taken from the first
// noiseLen samples of x. Each bin's magnitude is reduced by factor times the
// mean noise magnitude and floored at floor times its original magnitude.
// The original phase is kept.
func spectralSubtract(x []float64, noiseLen int, factor, floor float64) []float64 {
	if noiseLen <= minNoiseSamples || noiseLen > len(x) {
		return x
	}

	noiseFFT := fourier.NewFFT(noiseLen)
	var noiseMean float64
	noiseCoeff := noiseFFT.Coefficients(nil, x[:noiseLen])
	for _, c := range noiseCoeff {
		noiseMean += cmplx.Abs(c)
	}
	noiseMean /= float64(len(noiseCoeff))
	// DFT magnitudes of stationary noise grow with sqrt(n).
	noiseMean *= math.Sqrt(float64(len(x)) / float64(noiseLen))

	n := len(x)
	fft := fourier.NewFFT(n)
	coeff := fft.Coefficients(nil, x)
	for i, c := range coeff {
		mag := cmplx.Abs(c)
		cleaned := math.Max(mag-factor*noiseMean, floor*mag)
		coeff[i] = cmplx.Rect(cleaned, cmplx.Phase(c))
	}

	out := fft.Sequence(nil, coeff)
	scale := 1 / float64(n)
	for i := range out {
		out[i] *= scale
	}
	return out
}
