package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Pop once the queue has been closed and drained.
var ErrClosed = errors.New("queue: closed")

// CommandQueue is an unbounded FIFO of raw command strings. Any number of
// goroutines may Push; a single consumer is expected to Pop. Push never blocks.
type CommandQueue struct {
	mu     sync.Mutex
	items  []string
	notify chan struct{}
	closed bool
}

// NewCommandQueue creates an empty queue ready for use.
func NewCommandQueue() *CommandQueue {
	return &CommandQueue{
		notify: make(chan struct{}, 1),
	}
}

// Push appends cmd to the tail of the queue. Pushing to a closed queue is a no-op
// and reports false.
func (q *CommandQueue) Push(cmd string) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, cmd)
	q.mu.Unlock()

	// Wake a waiting consumer; a pending token is enough.
	select {
	case q.notify <- struct{}{}:
	default:
	}
	return true
}

// TryPop removes and returns the head of the queue without waiting.
func (q *CommandQueue) TryPop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	cmd := q.items[0]
	q.items[0] = ""
	q.items = q.items[1:]
	return cmd, true
}

// Pop waits up to timeout for a command. It returns false when the timeout
// expires with the queue still empty.
func (q *CommandQueue) Pop(timeout time.Duration) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	cmd, err := q.PopContext(ctx)
	return cmd, err == nil
}

// PopContext waits until a command is available, the queue is closed and
// empty (ErrClosed), or ctx is done (ctx.Err()).
func (q *CommandQueue) PopContext(ctx context.Context) (string, error) {
	for {
		if cmd, ok := q.TryPop(); ok {
			return cmd, nil
		}
		q.mu.Lock()
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return "", ErrClosed
		}
		select {
		case <-q.notify:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Len returns the number of queued commands.
func (q *CommandQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops accepting new commands and wakes the consumer. Commands already
// queued can still be popped.
func (q *CommandQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
