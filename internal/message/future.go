package message

import (
	"context"
	"sync"
)

// Future is the pending result of one dispatched envelope. It resolves
// exactly once; later Resolve calls are ignored.
type Future struct {
	once sync.Once
	done chan struct{}
	resp Response
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolved returns a future that already holds r.
func Resolved(r Response) *Future {
	f := NewFuture()
	f.Resolve(r)
	return f
}

// Resolve stores r and wakes waiters. It reports whether this call won.
func (f *Future) Resolve(r Response) bool {
	won := false
	f.once.Do(func() {
		f.resp = r
		close(f.done)
		won = true
	})
	return won
}

// Done is closed once the future is resolved.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx ends.
func (f *Future) Wait(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		return f.resp, nil
	case <-ctx.Done():
		return Response{}, ctx.Err()
	}
}
