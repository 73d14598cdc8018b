package lifecycle

import (
	"context"
	"sync"
)

// Future resolves when a request's teardown has completed.
type Future struct {
	once sync.Once
	done chan struct{}
}

func newFuture() *Future {
	return &Future{done: make(chan struct{})}
}

func (f *Future) resolve() {
	f.once.Do(func() { close(f.done) })
}

// Done is closed once teardown has finished.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Resolved reports whether teardown has finished.
func (f *Future) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until teardown has finished or ctx is done.
func (f *Future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
