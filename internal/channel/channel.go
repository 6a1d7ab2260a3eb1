package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrClosed is returned by Send and WriteWith when the consuming end has been
// closed, or when the Sink itself was already closed.
var ErrClosed = errors.New("channel closed")

type queue[T any] struct {
	items chan T
	free  chan T

	// done is closed when the Source is dropped.
	done       chan struct{}
	sourceOnce sync.Once
	sinkOnce   sync.Once
}

// New creates a queue holding at most capacity values.
func New[T any](capacity int) (*Sink[T], *Source[T], error) {
	if capacity < 1 {
		return nil, nil, fmt.Errorf("channel capacity must be at least 1, got %d", capacity)
	}

	q := &queue[T]{
		items: make(chan T, capacity),
		free:  make(chan T, capacity+1),
		done:  make(chan struct{}),
	}
	return &Sink[T]{q: q}, &Source[T]{q: q}, nil
}

// Sink is the producing end of a queue. It must be used by a single goroutine.
type Sink[T any] struct {
	q      *queue[T]
	closed bool
}

// Send enqueues v, blocking while the queue is full.
func (s *Sink[T]) Send(ctx context.Context, v T) error {
	if s.closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// Prefer reporting a dropped consumer over enqueueing into free space.
	select {
	case <-s.q.done:
		return ErrClosed
	default:
	}

	select {
	case s.q.items <- v:
		return nil
	case <-s.q.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// WriteWith reserves the next value, lets fill populate it in place and sends
// it. The value handed to fill is either one the consumer recycled or the zero
// value. If fill returns an error nothing is sent and the error is returned.
func (s *Sink[T]) WriteWith(ctx context.Context, fill func(*T) error) error {
	if s.closed {
		return ErrClosed
	}

	var v T
	select {
	case v = <-s.q.free:
	default:
	}

	if err := fill(&v); err != nil {
		s.q.recycle(v)
		return err
	}
	return s.Send(ctx, v)
}

// Close marks the end of the stream. It is safe to call more than once.
func (s *Sink[T]) Close() {
	s.q.sinkOnce.Do(func() {
		s.closed = true
		close(s.q.items)
	})
}

func (s *Sink[T]) Len() int { return len(s.q.items) }

func (s *Sink[T]) Cap() int { return cap(s.q.items) }

// Source is the consuming end of a queue. It must be used by a single goroutine.
type Source[T any] struct {
	q *queue[T]
}

// Recv returns the next value in the order it was sent. It blocks while the
// queue is empty and returns io.EOF once the Sink is closed and every value
// has been received.
func (s *Source[T]) Recv(ctx context.Context) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	select {
	case v, ok := <-s.q.items:
		if !ok {
			var zero T
			return zero, io.EOF
		}
		return v, nil
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Recycle hands a received value back to the producer for reuse. The caller
// must not touch v afterwards.
func (s *Source[T]) Recycle(v T) {
	s.q.recycle(v)
}

// Close drops the consuming end. Blocked and future sends fail with ErrClosed.
// It is safe to call more than once.
func (s *Source[T]) Close() {
	s.q.sourceOnce.Do(func() {
		close(s.q.done)
	})
}

func (s *Source[T]) Len() int { return len(s.q.items) }

func (s *Source[T]) Cap() int { return cap(s.q.items) }

func (q *queue[T]) recycle(v T) {
	select {
	case q.free <- v:
	default:
	}
}
