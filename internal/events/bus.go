package events

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultBuffer is the subscription buffer used when Subscribe is given a
// non-positive size.
const DefaultBuffer = 64

// Bus is an in-process fan-out [Publisher]. Publish never blocks: when a
// subscriber's buffer is full the event is dropped for that subscriber only.
//
// All methods are safe for concurrent use.
type Bus struct {
	now func() time.Time

	mu     sync.Mutex
	subs   map[uint64]*subscription
	nextID uint64

	dropped atomic.Int64
}

type subscription struct {
	ch     chan Envelope
	warned bool
}

// BusOption configures a [Bus].
type BusOption func(*Bus)

// WithNow overrides the clock used to stamp envelopes.
func WithNow(now func() time.Time) BusOption {
	return func(b *Bus) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBus creates an empty Bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		now:  time.Now,
		subs: make(map[uint64]*subscription),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

var _ Publisher = (*Bus)(nil)

// Subscribe registers a new subscriber with the given buffer size and returns
// its receive channel together with a cancel function. Cancel closes the
// channel; it is idempotent.
func (b *Bus) Subscribe(buffer int) (<-chan Envelope, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	sub := &subscription{ch: make(chan Envelope, buffer)}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return sub.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			close(sub.ch)
			b.mu.Unlock()
		})
	}
}

// Publish stamps ev and offers it to every subscriber.
func (b *Bus) Publish(ev Event) {
	if ev == nil {
		return
	}
	env := Envelope{At: b.now(), Event: ev}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- env:
		default:
			b.dropped.Add(1)
			if !sub.warned {
				sub.warned = true
				slog.Warn("events: subscriber too slow, dropping events", "kind", ev.Kind())
			}
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Dropped returns the total number of events dropped across all subscribers.
func (b *Bus) Dropped() int64 {
	return b.dropped.Load()
}

// Multi publishes every event to each of the given publishers in order.
type Multi []Publisher

// Publish implements [Publisher].
func (m Multi) Publish(ev Event) {
	for _, p := range m {
		if p != nil {
			p.Publish(ev)
		}
	}
}
