package invocation

import (
	"context"
	"sync"
	"time"
)

// Future is a one-shot rendezvous for a single Response. It can be resolved
// once; later resolutions return ErrAlreadyResolved and change nothing.
type Future struct {
	done chan struct{}

	mu        sync.Mutex
	resolved  bool
	resp      Response
	err       error
	observers []func(Response, error)
}

// NewFuture returns an unresolved future.
func NewFuture() *Future {
	return &Future{done: make(chan struct{})}
}

// Resolve stores the outcome, wakes waiters and runs observers.
func (f *Future) Resolve(resp Response, err error) error {
	f.mu.Lock()
	if f.resolved {
		f.mu.Unlock()
		return ErrAlreadyResolved
	}
	f.resolved = true
	f.resp = resp
	f.err = err
	observers := f.observers
	f.observers = nil
	close(f.done)
	f.mu.Unlock()

	for _, fn := range observers {
		fn(resp, err)
	}
	return nil
}

// OnResolve registers fn to run once the future resolves. If it already has,
// fn runs immediately on the caller's goroutine.
func (f *Future) OnResolve(fn func(Response, error)) {
	f.mu.Lock()
	if !f.resolved {
		f.observers = append(f.observers, fn)
		f.mu.Unlock()
		return
	}
	resp, err := f.resp, f.err
	f.mu.Unlock()
	fn(resp, err)
}

// Done is closed on resolution.
func (f *Future) Done() <-chan struct{} { return f.done }

// Resolved reports whether Resolve has been called.
func (f *Future) Resolved() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Wait blocks until resolution or ctx is done. On ctx expiry it returns
// ErrTimedOut; the future stays unresolved.
func (f *Future) Wait(ctx context.Context) (Response, error) {
	select {
	case <-f.done:
		f.mu.Lock()
		defer f.mu.Unlock()
		return f.resp, f.err
	case <-ctx.Done():
		return Response{}, ErrTimedOut
	}
}

// Get waits at most timeout. A non-positive timeout waits forever.
func (f *Future) Get(timeout time.Duration) (Response, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return f.Wait(ctx)
}
