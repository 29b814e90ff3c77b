package eventbus

import (
	"context"
	"errors"
	"sync"
	"time"

	evbus "github.com/asaskevich/EventBus"
)

// DefaultWaitTimeout bounds WaitFor when the caller passes no timeout.
const DefaultWaitTimeout = 5 * time.Second

var (
	// ErrWaitTimeout is returned by WaitFor when no matching event arrives in time.
	ErrWaitTimeout = errors.New("eventbus: timed out waiting for event")
	// ErrClosed is returned by WaitFor when the bus is closed while waiting.
	ErrClosed = errors.New("eventbus: closed")
)

// Publisher is satisfied by Bus and AsyncPublisher.
type Publisher interface {
	Publish(topic string, payload any)
}

// Handler receives the payload passed to Publish.
type Handler func(payload any)

// Bus is a synchronous topic bus. Handlers run on the publishing goroutine in
// subscription order, so a publisher observes every handler's effects once
// Publish returns. A handler must not Publish on the same bus; it may
// Subscribe or unsubscribe freely.
//
// The underlying EventBus matches unsubscriptions by function identity, which
// is unreliable for closures, so Bus registers a single fan-out callback per
// topic and keeps its own subscriber table.
type Bus struct {
	bus evbus.Bus

	mu       sync.Mutex
	nextID   uint64
	handlers map[string][]subscription
	wired    map[string]bool
	closed   bool
	done     chan struct{}
}

type subscription struct {
	id uint64
	fn Handler
}

// New creates a bus with the given topics wired up front. Topics not listed
// are wired on first Subscribe, which must then not happen inside a handler.
func New(topics ...string) *Bus {
	b := &Bus{
		bus:      evbus.New(),
		handlers: make(map[string][]subscription),
		wired:    make(map[string]bool),
		done:     make(chan struct{}),
	}
	for _, topic := range topics {
		b.wire(topic)
	}
	return b
}

// NewSessionBus creates the bus a stream session publishes on.
func NewSessionBus() *Bus {
	return New(sessionTopics...)
}

// NewAppBus creates the process-wide bus for account and automation events.
func NewAppBus() *Bus {
	return New(appTopics...)
}

func (b *Bus) wire(topic string) {
	b.mu.Lock()
	if b.wired[topic] {
		b.mu.Unlock()
		return
	}
	b.wired[topic] = true
	b.mu.Unlock()
	_ = b.bus.Subscribe(topic, func(payload any) { b.dispatch(topic, payload) })
}

// Subscribe registers fn for topic and returns an idempotent unsubscribe func.
func (b *Bus) Subscribe(topic string, fn Handler) func() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return func() {}
	}
	b.nextID++
	id := b.nextID
	b.handlers[topic] = append(b.handlers[topic], subscription{id: id, fn: fn})
	b.mu.Unlock()

	b.wire(topic)

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(topic, id) })
	}
}

func (b *Bus) remove(topic string, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.handlers[topic]
	for i, s := range subs {
		if s.id == id {
			b.handlers[topic] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

func (b *Bus) dispatch(topic string, payload any) {
	b.mu.Lock()
	subs := append([]subscription(nil), b.handlers[topic]...)
	b.mu.Unlock()

	for _, s := range subs {
		s.fn(payload)
	}
}

// Publish delivers payload to every current subscriber of topic.
func (b *Bus) Publish(topic string, payload any) {
	b.mu.Lock()
	closed := b.closed
	wired := b.wired[topic]
	b.mu.Unlock()
	if closed || !wired {
		return
	}
	b.bus.Publish(topic, payload)
}

// HasSubscribers reports whether topic has at least one live subscriber.
func (b *Bus) HasSubscribers(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic]) > 0
}

// Close drops every subscriber and wakes pending WaitFor calls. Publishing on
// a closed bus is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.handlers = make(map[string][]subscription)
	close(b.done)
}

// On subscribes a typed handler. Payloads of another type are ignored.
func On[T any](b *Bus, topic string, fn func(T)) func() {
	return b.Subscribe(topic, func(payload any) {
		if v, ok := payload.(T); ok {
			fn(v)
		}
	})
}

// WaitFor blocks until an event of type T on topic satisfies match (nil
// matches anything), the timeout elapses or ctx ends. A zero timeout means
// DefaultWaitTimeout.
func WaitFor[T any](ctx context.Context, b *Bus, topic string, match func(T) bool, timeout time.Duration) (T, error) {
	if timeout <= 0 {
		timeout = DefaultWaitTimeout
	}

	found := make(chan T, 1)
	unsubscribe := On(b, topic, func(v T) {
		if match != nil && !match(v) {
			return
		}
		select {
		case found <- v:
		default:
		}
	})
	defer unsubscribe()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	var zero T
	select {
	case v := <-found:
		return v, nil
	case <-timer.C:
		return zero, ErrWaitTimeout
	case <-b.done:
		return zero, ErrClosed
	case <-ctx.Done():
		return zero, context.Cause(ctx)
	}
}
