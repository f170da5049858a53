package streamcore

import (
	"context"
	"sync"
)

// StreamHandle controls a background stream-consuming goroutine started by
// one of the *WithCallback constructors. T is whatever that goroutine
// returns when it finishes; every *WithCallback constructor in this package
// instantiates StreamHandle[error], so Join's terminal value is the
// construction error (nil on a clean end or an Abort), matching this
// package's Result<(), ClientError>-shaped join contract.
type StreamHandle[T any] struct {
	cancel    context.CancelFunc
	ready     chan struct{}
	readyOnce sync.Once
	result    chan T
}

func newStreamHandle[T any](cancel context.CancelFunc) *StreamHandle[T] {
	return &StreamHandle[T]{
		cancel: cancel,
		ready:  make(chan struct{}),
		result: make(chan T, 1),
	}
}

// markReady signals that the attempt to open the underlying stream has
// returned (successfully or not), not merely that the goroutine has started.
func (h *StreamHandle[T]) markReady() {
	h.readyOnce.Do(func() { close(h.ready) })
}

func (h *StreamHandle[T]) finish(v T) {
	h.result <- v
}

// WaitForReady blocks until the attempt to open the stream has returned or
// ctx is done. It also returns nil when opening failed; that construction
// error is reported by Join.
func (h *StreamHandle[T]) WaitForReady(ctx context.Context) error {
	select {
	case <-h.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Abort stops the stream without waiting for it to drain.
func (h *StreamHandle[T]) Abort() {
	h.cancel()
}

// End is an alias for Abort, for callers that find it reads better at a
// graceful-shutdown call site.
func (h *StreamHandle[T]) End() {
	h.cancel()
}

// Join blocks until the stream goroutine has fully returned, yielding
// whatever it finished with.
func (h *StreamHandle[T]) Join(ctx context.Context) (T, error) {
	select {
	case v := <-h.result:
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
