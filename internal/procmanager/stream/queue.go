// Package stream moves bytes between process pipes and the rest of the
// system: an unbounded Queue for input and Pump for chunked output reads.
package stream

import (
	"errors"
	"io"
	"sync"
)

var ErrClosed = errors.New("queue closed")

// Queue is an unbounded FIFO of byte chunks with a single consumer. Send never
// blocks. Receive blocks until a chunk arrives or the Queue is closed.
type Queue struct {
	// NOTE: the queue grows without bound. Input is typed by a human, so in
	// practice it stays tiny, but a misbehaving caller could still fill memory.
	chunks [][]byte
	closed bool

	mu   sync.Mutex
	cond sync.Cond
}

// NewQueue creates an empty, open Queue.
func NewQueue() *Queue {
	q := &Queue{}
	q.cond.L = &q.mu

	return q
}

// Send enqueues a copy of p. It returns ErrClosed if the Queue is closed.
func (q *Queue) Send(p []byte) error {
	chunk := make([]byte, len(p))
	copy(chunk, p)

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}

	q.chunks = append(q.chunks, chunk)
	q.cond.Signal()

	return nil
}

// Receive returns the next chunk, blocking while the Queue is empty. It
// returns false once the Queue is closed; chunks still pending at that point
// are discarded.
func (q *Queue) Receive() ([]byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.chunks) == 0 && !q.closed {
		q.cond.Wait()
	}

	if q.closed {
		return nil, false
	}

	chunk := q.chunks[0]
	q.chunks[0] = nil
	q.chunks = q.chunks[1:]

	return chunk, true
}

// WriteTo drains the Queue into w until the Queue is closed or a write fails.
// It implements io.WriterTo.
func (q *Queue) WriteTo(w io.Writer) (int64, error) {
	var total int64

	for {
		chunk, ok := q.Receive()
		if !ok {
			return total, nil
		}

		n, err := w.Write(chunk)
		total += int64(n)

		if err != nil {
			return total, err
		}
	}
}

// Close closes the Queue and wakes any waiting Receive. Closing an already
// closed Queue is a no-op.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	q.chunks = nil
	q.cond.Broadcast()
}

// Len returns the number of pending chunks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.chunks)
}
