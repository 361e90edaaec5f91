package repo

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForEachLimitedBoundsConcurrency(t *testing.T) {
	var inFlight, peak, done atomic.Int32

	items := make([]int, 40)
	err := forEachLimited(context.Background(), items, 5, func(ctx context.Context, _ int) error {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		done.Add(1)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, int32(40), done.Load())
	assert.LessOrEqual(t, peak.Load(), int32(5))
}

func TestForEachLimitedStopsOnError(t *testing.T) {
	var started atomic.Int32
	items := make([]int, 100)
	err := forEachLimited(context.Background(), items, 1, func(ctx context.Context, _ int) error {
		if started.Add(1) == 3 {
			return fmt.Errorf("wave failed")
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		return nil
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "wave failed")
}
