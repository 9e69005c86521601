// Package batch runs a mapper over a slice with a bounded number of workers.
package batch

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// MapWithConcurrency applies mapper to every item using at most concurrency
// workers and returns the results in input order.
//
// Each worker claims the next unclaimed index until the input is drained, so a
// slow item never holds back the others. concurrency below 1 is treated as 1.
// Once ctx is done, workers stop claiming new indices and unclaimed slots keep the
// zero value of U. mapper is expected to turn failures into fallback values.
func MapWithConcurrency[T, U any](ctx context.Context, items []T, concurrency int, mapper func(ctx context.Context, item T, index int) U) []U {
	results := make([]U, len(items))
	if len(items) == 0 {
		return results
	}
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > len(items) {
		concurrency = len(items)
	}

	var next atomic.Int64
	var g errgroup.Group
	for w := 0; w < concurrency; w++ {
		g.Go(func() error {
			for {
				if ctx.Err() != nil {
					return nil
				}
				i := int(next.Add(1) - 1)
				if i >= len(items) {
					return nil
				}
				results[i] = mapper(ctx, items[i], i)
			}
		})
	}
	_ = g.Wait()

	return results
}
