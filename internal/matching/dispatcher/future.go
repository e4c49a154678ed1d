package dispatcher

import (
	"context"
	"sync"

	"advisor-match-engine/internal/models"
)

// Future is the completion handle of one submitted request. It resolves
// exactly once; later resolutions are ignored.
type Future struct {
	once   sync.Once
	done   chan struct{}
	result models.ScoreResult
	err    error
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that already holds result.
func Resolved(result models.ScoreResult) *Future {
	f := newFuture()
	f.resolve(result, nil)
	return f
}

// Rejected returns a future that already failed with err.
func Rejected(err error) *Future {
	f := newFuture()
	f.resolve(models.ScoreResult{}, err)
	return f
}

func (f *Future) resolve(result models.ScoreResult, err error) bool {
	resolved := false
	f.once.Do(func() {
		f.result = result
		f.err = err
		resolved = true
		close(f.done)
	})
	return resolved
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is done. Giving up on ctx
// does not cancel the underlying computation.
func (f *Future) Wait(ctx context.Context) (models.ScoreResult, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return models.ScoreResult{}, ctx.Err()
	}
}
