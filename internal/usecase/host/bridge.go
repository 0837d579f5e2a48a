package host

import (
	"sync"

	"github.com/whchoi98/netaiops/internal/domain"
)

// Bridge hands events from one producing goroutine to one consuming
// goroutine. The queue is unbounded so the producer never blocks; the
// consumer sees events in push order and only observes the end of the
// stream after every pushed event has been drained. Completion is always
// explicit: the producer must call Finish or Fail exactly once.
type Bridge struct {
	mu    sync.Mutex
	cond  *sync.Cond
	queue []domain.StreamEvent
	done  bool
	err   error
}

// NewBridge creates an open Bridge.
func NewBridge() *Bridge {
	b := &Bridge{}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Push appends one event. Pushing after Finish or Fail is a no-op; the
// stream's end has already been promised to the consumer.
func (b *Bridge) Push(ev domain.StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.queue = append(b.queue, ev)
	b.cond.Signal()
}

// Finish marks the stream complete. Events pushed before Finish remain
// readable.
func (b *Bridge) Finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	b.cond.Broadcast()
}

// Fail marks the stream complete with a terminal error. The first call
// wins; later calls are no-ops.
func (b *Bridge) Fail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	b.err = err
	b.cond.Broadcast()
}

// Next blocks until an event is available or the stream has finished and
// drained. The second return is false only when no further events will
// ever arrive.
func (b *Bridge) Next() (domain.StreamEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for len(b.queue) == 0 && !b.done {
		b.cond.Wait()
	}
	if len(b.queue) > 0 {
		ev := b.queue[0]
		b.queue = b.queue[1:]
		return ev, true
	}
	return domain.StreamEvent{}, false
}

// Err returns the terminal error, if any. Meaningful once Next has
// returned false.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}
