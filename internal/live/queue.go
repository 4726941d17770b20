package live

import "sync"

// Queue is a Viewer backed by a bounded buffer. A transport goroutine drains
// C and writes each message to the wire; while the buffer is full, Offer
// reports the viewer as not writable.
type Queue struct {
	mu     sync.Mutex
	c      chan []byte
	closed bool
}

// NewQueue returns a Queue holding at most size pending messages.
func NewQueue(size int) *Queue {
	if size <= 0 {
		size = 1
	}
	return &Queue{c: make(chan []byte, size)}
}

// Offer enqueues msg without blocking.
func (q *Queue) Offer(msg []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.c <- msg:
		return true
	default:
		return false
	}
}

// C yields queued messages until Close.
func (q *Queue) C() <-chan []byte {
	return q.c
}

// Close stops further offers and closes C. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.c)
}
