package rating

import "sync"

// Rating deltas are damped for newer players. The factor for a player's
// k-th attended contest is 1/(1+sum_{j=0..k}(5/7)^j); the geometric series
// converges, so past 100 contests the factor is pinned at 2/9.
const (
	coeffCutoff = 100
	coeffFloor  = 2.0 / 9.0
)

var (
	coeffOnce sync.Once
	coeffTab  [coeffCutoff + 1]float64
)

func adjustmentFactor(attended int) float64 {
	if attended > coeffCutoff {
		return coeffFloor
	}
	coeffOnce.Do(func() {
		sum, term := 0.0, 1.0
		for k := 0; k <= coeffCutoff; k++ {
			sum += term
			coeffTab[k] = 1.0 / (1.0 + sum)
			term *= 5.0 / 7.0
		}
	})
	if attended < 0 {
		attended = 0
	}
	return coeffTab[attended]
}
