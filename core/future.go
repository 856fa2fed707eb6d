package core

import (
	"context"
	"sync"
	"time"
)

// Future is a single-assignment value with any number of observers.
// Observers registered before assignment run in registration order while the
// assignment lock is held; observers registered afterwards run synchronously
// on the registering goroutine. The value is immutable once done is closed,
// so readers past done never take the lock.
type Future[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	value     T
	err       error
	observers []func(T, error)
}

func NewFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Complete assigns v. It returns false when the future was already assigned.
func (f *Future[T]) Complete(v T) bool {
	return f.assign(v, nil)
}

// Fail assigns err. It returns false when the future was already assigned.
func (f *Future[T]) Fail(err error) bool {
	var zero T
	return f.assign(zero, err)
}

func (f *Future[T]) assign(v T, err error) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.completed {
		return false
	}
	f.completed = true
	f.value = v
	f.err = err
	close(f.done)
	observers := f.observers
	f.observers = nil
	for _, observer := range observers {
		observer(v, err)
	}
	return true
}

// OnComplete registers fn to receive the assigned value exactly once.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	if fn == nil {
		return
	}
	if f.IsDone() {
		fn(f.value, f.err)
		return
	}
	f.mu.Lock()
	if !f.completed {
		f.observers = append(f.observers, fn)
		f.mu.Unlock()
		return
	}
	f.mu.Unlock()
	fn(f.value, f.err)
}

func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Future[T]) IsDone() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Get blocks until the future is assigned or ctx ends. A ctx error does not
// affect the future or any other waiter.
func (f *Future[T]) Get(ctx context.Context) (T, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// GetTimeout waits at most timeout and fails with a timeout fault when the
// value is still pending.
func (f *Future[T]) GetTimeout(timeout time.Duration) (T, error) {
	if timeout <= 0 {
		return f.Get(context.Background())
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-f.done:
		return f.value, f.err
	case <-timer.C:
		var zero T
		return zero, NewTimeout(timeout)
	}
}

// ResultFuture is the future handed to command submitters.
type ResultFuture = Future[CommandResult]
