// Package queue provides the fixed-capacity blocking queue between
// the accepting goroutine and the worker pool. Capacity equals the
// pool size, so accepted-but-unserved connections are bounded — no
// unbounded queuing on memory-constrained hardware.
package queue

import (
	"errors"
	"sync"
)

// ErrClosed reports a Put on a closed queue.
var ErrClosed = errors.New("queue: closed")

// Queue is a bounded buffer: Put blocks while full, Take blocks while
// empty. Closed queues reject Put immediately; Take keeps draining
// buffered items and then reports done.
type Queue[T any] struct {
	ch   chan T
	done chan struct{}
	once sync.Once
}

func New[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		ch:   make(chan T, capacity),
		done: make(chan struct{}),
	}
}

// Put enqueues v, blocking while the queue is full.
func (q *Queue[T]) Put(v T) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- v:
		return nil
	case <-q.done:
		return ErrClosed
	}
}

// Take dequeues the next item, blocking while the queue is empty.
// ok is false once the queue is closed and drained.
func (q *Queue[T]) Take() (v T, ok bool) {
	// Prefer buffered items over shutdown so nothing is dropped.
	select {
	case v = <-q.ch:
		return v, true
	default:
	}
	select {
	case v = <-q.ch:
		return v, true
	case <-q.done:
		select {
		case v = <-q.ch:
			return v, true
		default:
			return v, false
		}
	}
}

// Close rejects further Puts and lets blocked Takes finish draining.
// Close is idempotent.
func (q *Queue[T]) Close() {
	q.once.Do(func() { close(q.done) })
}
