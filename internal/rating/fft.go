package rating

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Ratings are discretized to hundredths so that the expected-rank function
// of the whole field becomes a single convolution of the win-probability
// kernel with the rating histogram.
const (
	expandSize = 100
	maxScaled  = 4000 * expandSize
)

// PredictFFTDeltas computes the same deltas as PredictEloDeltas in
// O(M log M) of the discretized rating range, which is what makes 30k-entry
// fields tractable.
func PredictFFTDeltas(ps []Participant) []float64 {
	conv := expectedRankTable(ps)

	deltas := make([]float64, len(ps))
	for i, p := range ps {
		scaled := scaleRating(p.Rating)
		expectedRank := conv[scaled+maxScaled] + 0.5
		meanRank := math.Sqrt(expectedRank * float64(p.Rank))
		expected := fftExpectedRating(conv, meanRank)
		deltas[i] = (expected - p.Rating) * adjustmentFactor(p.Attended)
	}
	return deltas
}

// expectedRankTable builds conv such that conv[x+maxScaled] is the expected
// number of participants placing above a player with scaled rating x.
func expectedRankTable(ps []Participant) []float64 {
	kernel := make([]float64, 2*maxScaled+1)
	for i := range kernel {
		kernel[i] = 1.0 / (1.0 + math.Pow(10, float64(i-maxScaled)/(400.0*expandSize)))
	}

	hist := make([]float64, maxScaled+1)
	for _, p := range ps {
		hist[scaleRating(p.Rating)]++
	}

	conv := convolve(kernel, hist)
	return conv[:2*maxScaled+1]
}

// fftExpectedRating bisects the discretized rating range for the rating
// whose expected rank equals meanRank.
func fftExpectedRating(conv []float64, meanRank float64) float64 {
	lo, hi := 0, maxScaled
	var mid int
	for lo < hi {
		mid = (lo + hi) / 2
		if conv[mid+maxScaled]+1 < meanRank {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return float64(mid) / expandSize
}

func scaleRating(r float64) int {
	scaled := int(math.Round(r * expandSize))
	if scaled < 0 {
		scaled = 0
	}
	if scaled > maxScaled {
		scaled = maxScaled
	}
	return scaled
}

// convolve returns the full linear convolution of a and b via real FFTs
// over the next power-of-two size.
func convolve(a, b []float64) []float64 {
	n := len(a) + len(b) - 1
	size := 1
	for size < n {
		size <<= 1
	}

	fa := make([]float64, size)
	copy(fa, a)
	fb := make([]float64, size)
	copy(fb, b)

	fft := fourier.NewFFT(size)
	ca := fft.Coefficients(nil, fa)
	cb := fft.Coefficients(nil, fb)
	for i := range ca {
		ca[i] *= cb[i]
	}

	out := fft.Sequence(nil, ca)
	res := make([]float64, n)
	scale := 1.0 / float64(size)
	for i := range res {
		res[i] = out[i] * scale
	}
	return res
}
