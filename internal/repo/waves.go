package repo

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// forEachLimited runs fn over items with at most limit calls in flight.
// The first error cancels the remaining work.
func forEachLimited[T any](ctx context.Context, items []T, limit int, fn func(ctx context.Context, item T) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, item := range items {
		item := item
		g.Go(func() error {
			return fn(gctx, item)
		})
	}
	return g.Wait()
}
