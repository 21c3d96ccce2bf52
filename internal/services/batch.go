package services

import (
  "context"

  "golang.org/x/sync/errgroup"
)

// defaultBatchSize is how many documents are evaluated concurrently before
// the runner moves to the next chunk.
const defaultBatchSize = 3

// BatchOutcome holds the result slot for one input item. Err is set instead
// of aborting the run when that item fails.
type BatchOutcome[R any] struct {
  Index int
  Value R
  Err   error
}

// RunBatched processes items in sequential chunks of size, items within a
// chunk concurrently. The returned slice is index-aligned with items.
func RunBatched[T any, R any](ctx context.Context, items []T, size int, fn func(ctx context.Context, item T) (R, error)) []BatchOutcome[R] {
  if size <= 0 {
    size = defaultBatchSize
  }
  outcomes := make([]BatchOutcome[R], len(items))

  for start := 0; start < len(items); start += size {
    end := start + size
    if end > len(items) {
      end = len(items)
    }

    g, gctx := errgroup.WithContext(ctx)
    for i := start; i < end; i++ {
      i := i
      g.Go(func() error {
        val, err := fn(gctx, items[i])
        outcomes[i] = BatchOutcome[R]{Index: i, Value: val, Err: err}
        // item failures stay in their slot
        return nil
      })
    }
    _ = g.Wait()

    if ctx.Err() != nil {
      for i := end; i < len(items); i++ {
        outcomes[i] = BatchOutcome[R]{Index: i, Err: ctx.Err()}
      }
      break
    }
  }
  return outcomes
}
