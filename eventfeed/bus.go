package eventfeed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Publish after the bus has been closed.
var ErrClosed = errors.New("event bus closed")

const defaultQueueSize = 256

// Handler receives one event.
type Handler func(Event)

// Feed is the subscribe side of an event source, keyed by event name.
// The returned function removes the subscription.
type Feed interface {
	Subscribe(eventType string, h Handler) (unsubscribe func())
}

// Publisher is the publish side of an event source.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type subscriber struct {
	h  Handler
	id int
	// since is the last sequence published before the subscription.
	since uint64
}

type queued struct {
	ev  Event
	seq uint64
}

// Bus is an in-process Feed. Published events are queued and delivered by
// a single dispatcher (Run), strictly in publish order; handlers for one
// event run one after another in subscription order. A subscription only
// receives events published after it was made, so events still queued
// from before a reconnect are not replayed to it. A full queue blocks
// publishers rather than dropping events.
type Bus struct {
	logger   *slog.Logger
	handlers map[string][]subscriber
	queue    chan queued
	done     chan struct{}
	seq      atomic.Uint64
	mu       sync.RWMutex
	nextID   int
	once     sync.Once
}

// NewBus creates a bus with the given queue size (<= 0 uses a default).
func NewBus(queueSize int, logger *slog.Logger) *Bus {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		logger:   logger.With("component", "eventfeed"),
		handlers: make(map[string][]subscriber),
		queue:    make(chan queued, queueSize),
		done:     make(chan struct{}),
	}
}

// Subscribe registers h for events named eventType.
func (b *Bus) Subscribe(eventType string, h Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	b.handlers[eventType] = append(b.handlers[eventType], subscriber{id: id, h: h, since: b.seq.Load()})

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(eventType, id) })
	}
}

func (b *Bus) unsubscribe(eventType string, id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.handlers[eventType]
	for i, s := range subs {
		if s.id == id {
			next := make([]subscriber, 0, len(subs)-1)
			next = append(next, subs[:i]...)
			next = append(next, subs[i+1:]...)
			b.handlers[eventType] = next
			break
		}
	}
	if len(b.handlers[eventType]) == 0 {
		delete(b.handlers, eventType)
	}
}

// Publish queues ev for dispatch. It blocks while the queue is full.
func (b *Bus) Publish(ctx context.Context, ev Event) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	item := queued{ev: ev, seq: b.next()}
	select {
	case b.queue <- item:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run dispatches queued events until ctx is cancelled or Close is called.
// Events still queued at that point are discarded.
func (b *Bus) Run(ctx context.Context) {
	for {
		select {
		case <-b.done:
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		case item := <-b.queue:
			select {
			case <-b.done:
				return
			default:
			}
			if ctx.Err() != nil {
				return
			}
			b.dispatch(item.ev, item.seq)
		}
	}
}

// Dispatch delivers ev to its current subscribers on the calling
// goroutine, bypassing the queue.
func (b *Bus) Dispatch(ev Event) {
	b.dispatch(ev, b.next())
}

// next takes a publish sequence number under the read lock so that a
// concurrent Subscribe sees either all or none of it.
func (b *Bus) next() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.seq.Add(1)
}

func (b *Bus) dispatch(ev Event, seq uint64) {
	b.mu.RLock()
	subs := b.handlers[ev.Type]
	b.mu.RUnlock()

	delivered := 0
	for _, s := range subs {
		if s.since >= seq {
			continue
		}
		s.h(ev)
		delivered++
	}
	if delivered == 0 {
		b.logger.Debug("no subscribers for event", "type", ev.Type, "seq", seq)
	}
}

// Pending returns the number of queued, undelivered events.
func (b *Bus) Pending() int {
	return len(b.queue)
}

// Close stops dispatch and rejects further publishes.
func (b *Bus) Close() {
	b.once.Do(func() { close(b.done) })
}
