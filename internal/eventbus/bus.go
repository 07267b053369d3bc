// Package eventbus provides an in-process pub/sub bus used to fan out
// session and workflow lifecycle notifications to telemetry and any future
// SSE listeners.
package eventbus

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// EventType identifies the kind of lifecycle notification.
type EventType string

const (
	SessionCreated EventType = "session.created"
	SessionUpdated EventType = "session.updated"
	SessionDeleted EventType = "session.deleted"
	RunStarted     EventType = "run.started"
	RunCompleted   EventType = "run.completed"
	RunFailed      EventType = "run.failed"
	BackupTaken    EventType = "backup.completed"
)

// Event is a single notification published on the bus.
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// Subscriber receives published events.
type Subscriber func(event Event)

type subscriberEntry struct {
	id uint64
	fn Subscriber
}

// Bus is a pub/sub bus that delivers through a direct-call subscriber map,
// so published values retain their concrete Go type (no marshal round-trip
// for in-process listeners). It also holds a watermill in-memory gochannel,
// which Publish and PublishSync do not write to.
type Bus struct {
	mu sync.RWMutex

	pubsub *gochannel.GoChannel

	subscribers map[EventType][]subscriberEntry
	global      []subscriberEntry

	nextID       uint64
	closed       bool
	closedCancel context.CancelFunc
	closedCtx    context.Context
}

var globalBus = newBus()

func newBus() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{
				OutputChannelBuffer: 100,
				Persistent:          false,
			},
			watermill.NopLogger{},
		),
		subscribers:  make(map[EventType][]subscriberEntry),
		closedCtx:    ctx,
		closedCancel: cancel,
	}
}

func (b *Bus) newID() uint64 {
	return atomic.AddUint64(&b.nextID, 1)
}

// Subscribe registers fn for events of the given type and returns an
// unsubscribe function.
func Subscribe(eventType EventType, fn Subscriber) func() { return globalBus.Subscribe(eventType, fn) }

func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.subscribers[eventType] = append(b.subscribers[eventType], subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribe(eventType, id) }
}

// SubscribeAll registers fn for every event type.
func SubscribeAll(fn Subscriber) func() { return globalBus.SubscribeAll(fn) }

func (b *Bus) SubscribeAll(fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return func() {}
	}
	id := b.newID()
	b.global = append(b.global, subscriberEntry{id: id, fn: fn})
	return func() { b.unsubscribeGlobal(id) }
}

func (b *Bus) unsubscribe(eventType EventType, id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.subscribers[eventType]
	for i, entry := range subs {
		if entry.id == id {
			b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

func (b *Bus) unsubscribeGlobal(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, entry := range b.global {
		if entry.id == id {
			b.global = append(b.global[:i], b.global[i+1:]...)
			break
		}
	}
}

// Publish delivers event to every matching subscriber, each on its own
// goroutine, and returns without waiting for them.
func Publish(event Event) { globalBus.Publish(event) }

func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.collect(event.Type)
	b.mu.RUnlock()
	for _, sub := range subs {
		go sub(event)
	}
}

// PublishSync delivers event to every matching subscriber synchronously,
// in the calling goroutine, so every subscriber has run before it returns.
func PublishSync(event Event) { globalBus.PublishSync(event) }

func (b *Bus) PublishSync(event Event) {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	subs := b.collect(event.Type)
	b.mu.RUnlock()
	for _, sub := range subs {
		sub(event)
	}
}

func (b *Bus) collect(t EventType) []Subscriber {
	subs := make([]Subscriber, 0, len(b.subscribers[t])+len(b.global))
	for _, entry := range b.subscribers[t] {
		subs = append(subs, entry.fn)
	}
	for _, entry := range b.global {
		subs = append(subs, entry.fn)
	}
	return subs
}

// NewBus creates an independent bus instance, for tests that must not share
// the package-level default.
func NewBus() *Bus { return newBus() }

// Reset tears down and replaces the global bus. Test helper only.
func Reset() {
	globalBus.mu.Lock()
	globalBus.closed = true
	globalBus.closedCancel()
	globalBus.mu.Unlock()
	_ = globalBus.pubsub.Close()
	time.Sleep(10 * time.Millisecond)
	globalBus = newBus()
}

// Close shuts the bus down; further Publish calls are no-ops.
func (b *Bus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.closedCancel()
	b.subscribers = make(map[EventType][]subscriberEntry)
	b.global = nil
	b.mu.Unlock()
	return b.pubsub.Close()
}

// PubSub exposes the underlying watermill GoChannel for advanced wiring.
func (b *Bus) PubSub() *gochannel.GoChannel { return b.pubsub }

// PubSub exposes the global bus's underlying watermill GoChannel.
func PubSub() *gochannel.GoChannel { return globalBus.PubSub() }
