package syncx

import (
	"context"
	"sync"
	"time"
)

// Future is a result that is resolved asynchronously at a later time.
// Only the first resolution is kept, and once resolved the outcome is cached for every consumer.
//
// Consumers may either block with [Future.Await] or [Future.AwaitContext], or register a callback with [Future.OnComplete].
type Future[T any] struct {
	mux       sync.Mutex
	done      chan struct{}
	resolved  bool
	val       T
	err       error
	callbacks []func(T, error)
}

// NewFuture creates an unresolved [Future].
func NewFuture[T any]() *Future[T] {
	return &Future[T]{
		done: make(chan struct{}),
	}
}

// Resolved creates a [Future] that has already been resolved with val.
func Resolved[T any](val T) *Future[T] {
	f := NewFuture[T]()
	f.Resolve(val)
	return f
}

// Rejected creates a [Future] that has already been resolved with err.
func Rejected[T any](err error) *Future[T] {
	f := NewFuture[T]()
	var zero T
	f.ResolveErr(zero, err)
	return f
}

// Resolve sets a successful result.
func (f *Future[T]) Resolve(val T) {
	f.ResolveErr(val, nil)
}

// Reject sets a failed result.
func (f *Future[T]) Reject(err error) {
	var zero T
	f.ResolveErr(zero, err)
}

// ResolveErr sets the value and error of the [Future].
// Subsequent calls do nothing and report false.
// Callbacks registered with [Future.OnComplete] are run in the calling goroutine.
func (f *Future[T]) ResolveErr(val T, err error) bool {
	f.mux.Lock()
	if f.resolved {
		f.mux.Unlock()
		return false
	}
	f.resolved = true
	f.val = val
	f.err = err
	callbacks := f.callbacks
	f.callbacks = nil
	close(f.done)
	f.mux.Unlock()

	for _, cb := range callbacks {
		cb(val, err)
	}
	return true
}

// OnComplete registers fn to be called with the outcome of the [Future].
// If the [Future] is already resolved, then fn is called immediately in the calling goroutine.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	if fn == nil {
		return
	}
	f.mux.Lock()
	if !f.resolved {
		f.callbacks = append(f.callbacks, fn)
		f.mux.Unlock()
		return
	}
	val, err := f.val, f.err
	f.mux.Unlock()
	fn(val, err)
}

// Done returns a channel that is closed when the [Future] is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// IsResolved reports whether a result has been set.
func (f *Future[T]) IsResolved() bool {
	return LockFuncT(&f.mux, func() bool {
		return f.resolved
	})
}

// Await blocks until the [Future] is resolved, or until the timeout elapses if specified.
// If the timeout is reached, then the zero value is returned along with [context.DeadlineExceeded].
func (f *Future[T]) Await(timeout ...time.Duration) (T, error) {
	var (
		ctx    = context.Background()
		cancel = func() {}
	)
	if len(timeout) > 0 {
		ctx, cancel = context.WithTimeout(ctx, timeout[0])
	}
	defer cancel()
	return f.AwaitContext(ctx)
}

// AwaitContext blocks until the [Future] is resolved or ctx is done.
func (f *Future[T]) AwaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		f.mux.Lock()
		defer f.mux.Unlock()
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
