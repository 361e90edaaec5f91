// Package rating computes contest rating deltas with an Elo-style model.
// Two solvers share the model: a direct O(N^2) solver and an FFT solver
// that discretizes ratings and answers expected ranks from one convolution.
package rating

import "math"

// Participant is one ranked contestant entering the delta computation.
// Rank is the tie rank after dense ranking.
type Participant struct {
	Rating   float64
	Rank     int
	Attended int
}

// winProb is the probability that a player rated r places above a player
// rated s.
func winProb(r, s float64) float64 {
	return 1.0 / (1.0 + math.Pow(10, (s-r)/400.0))
}

// PredictEloDeltas computes a delta per participant by evaluating expected
// ranks directly against the whole field. Quadratic in the field size; kept
// as the reference solver and for small fields.
func PredictEloDeltas(ps []Participant) []float64 {
	deltas := make([]float64, len(ps))
	for i, p := range ps {
		expectedRank := 0.5
		for _, q := range ps {
			expectedRank += winProb(q.Rating, p.Rating)
		}
		meanRank := math.Sqrt(expectedRank * float64(p.Rank))
		expected := eloExpectedRating(meanRank, ps)
		deltas[i] = (expected - p.Rating) * adjustmentFactor(p.Attended)
	}
	return deltas
}

// eloExpectedRating bisects for the rating whose expected rank over the
// field equals meanRank.
func eloExpectedRating(meanRank float64, ps []Participant) float64 {
	lo, hi := 0.0, 4000.0
	target := meanRank - 1
	var mid float64
	for iter := 0; iter < 25 && hi-lo > 0.01; iter++ {
		mid = lo + (hi-lo)/2
		var beatingMid float64
		for _, q := range ps {
			beatingMid += winProb(q.Rating, mid)
		}
		if beatingMid < target {
			hi = mid
		} else {
			lo = mid
		}
	}
	return mid
}
