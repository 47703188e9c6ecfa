package service

import (
	"context"
	"sync"
)

// forEachChunk invokes fn for every index in [0, n), at most chunkSize
// indices in flight at a time: indices within a chunk run concurrently,
// chunks run one after another. Cancellation is only observed between
// chunks; a started chunk always drains.
func forEachChunk(ctx context.Context, n, chunkSize int, fn func(i int)) error {
	if chunkSize <= 0 {
		chunkSize = 1
	}

	for start := 0; start < n; start += chunkSize {
		if err := ctx.Err(); err != nil {
			return err
		}

		end := start + chunkSize
		if end > n {
			end = n
		}

		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				fn(i)
			}(i)
		}
		wg.Wait()
	}
	return nil
}
