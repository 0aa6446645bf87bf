// Package realtime provides change feeds: an in-process broker for a single
// server and Redis or AMQP backed feeds for several servers sharing one
// database.
package realtime

import (
	"errors"
	"sync"
	"time"

	"minix/internal/drive"
)

// DefaultBufferSize is the number of events a subscriber may fall behind
// before it is sent a resync.
const DefaultBufferSize = 64

// ErrClosed is returned when publishing to or subscribing on a closed feed.
var ErrClosed = errors.New("feed closed")

// queue is the per-subscriber buffer. It never blocks the sender: when the
// buffer is full, events are dropped and a single resync event is queued in
// a slot kept free for it. Delivery resumes once the subscriber drains the
// buffer, which it can only do by reading the resync.
type queue struct {
	ownerID string
	size    int
	ch      chan drive.ChangeEvent

	mu         sync.Mutex
	overflowed bool
	closed     bool
}

func newQueue(ownerID string, size int) *queue {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &queue{ownerID: ownerID, size: size, ch: make(chan drive.ChangeEvent, size+1)}
}

// offer queues ev and reports whether it was delivered.
func (q *queue) offer(ev drive.ChangeEvent) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	if len(q.ch) < q.size {
		q.overflowed = false
		q.ch <- ev
		return true
	}
	if !q.overflowed {
		q.overflowed = true
		q.ch <- resyncEvent(q.ownerID)
	}
	return false
}

// resync queues a resync event regardless of the buffer's state.
func (q *queue) resync() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed || q.overflowed {
		return
	}
	q.overflowed = len(q.ch) >= q.size
	select {
	case q.ch <- resyncEvent(q.ownerID):
	default:
	}
}

func (q *queue) close() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.closed = true
	close(q.ch)
	return true
}

func resyncEvent(ownerID string) drive.ChangeEvent {
	return drive.ChangeEvent{Type: drive.EventResync, OwnerID: ownerID, At: time.Now()}
}
