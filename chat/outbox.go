package chat

import (
	"sync"
	"sync/atomic"
)

// Sink accepts one line of outbound text for a single connection. Deliver must
// not block on network I/O.
type Sink interface {
	Deliver(line string) error
}

// Outbox is the Sink of one session: a bounded FIFO drained by the session's
// writer goroutine. Lines queued from one goroutine are written in the order
// they were queued.
//
// The first line that finds the queue full marks the outbox overflowed: that
// line and every later one is refused, so the peer never receives a stream
// with a gap in it, and the overflow handler is started once.
type Outbox struct {
	mu         sync.RWMutex
	closed     bool
	queue      chan string
	overflowed atomic.Bool
	onOverflow func()
}

// NewOutbox creates an Outbox holding up to size undelivered lines.
func NewOutbox(size int) *Outbox {
	if size < 2 {
		size = 2
	}

	return &Outbox{queue: make(chan string, size)}
}

// OnOverflow sets the function started, in its own goroutine, the first time
// a line is refused for lack of room. Sessions use it to drop the connection.
// Call it before the outbox is shared.
func (o *Outbox) OnOverflow(fn func()) {
	o.onOverflow = fn
}

// Deliver queues line without blocking.
//
// Returns:
//   - ErrOutboxClosed after Close
//   - ErrOutboxFull when the writer has fallen behind by a full queue, and for
//     every line after that
func (o *Outbox) Deliver(line string) error {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.closed {
		return ErrOutboxClosed
	}

	if o.overflowed.Load() {
		return ErrOutboxFull
	}

	select {
	case o.queue <- line:
		return nil
	default:
		o.overflow()
		return ErrOutboxFull
	}
}

// Overflowed reports whether a line was ever refused for lack of room.
func (o *Outbox) Overflowed() bool {
	return o.overflowed.Load()
}

func (o *Outbox) overflow() {
	if o.overflowed.CompareAndSwap(false, true) && o.onOverflow != nil {
		go o.onOverflow()
	}
}

// admit runs register while deliveries from other goroutines are held back.
// When register succeeds, first is queued ahead of anything routed to this
// outbox in the meantime.
func (o *Outbox) admit(register func() bool, first string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed || !register() {
		return false
	}

	select {
	case o.queue <- first:
	default:
	}

	return true
}

// Close stops accepting lines. Lines already queued are still handed to the
// writer. Safe to call more than once.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return
	}

	o.closed = true
	close(o.queue)
}

// Lines is drained by the session writer; it is closed by Close.
func (o *Outbox) Lines() <-chan string {
	return o.queue
}

// Pending returns the number of queued, unwritten lines.
func (o *Outbox) Pending() int {
	return len(o.queue)
}
