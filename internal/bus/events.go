// Package bus is an in-process publish/subscribe hub for change events.
package bus

import (
	"sync"
	"sync/atomic"
	"time"

	. "github.com/roelfdiedericks/voxnote/internal/logging"
)

// TopicOperationChanged carries an operations.Snapshot after every state
// or progress change.
const TopicOperationChanged = "operation.changed"

// Event is one published notification.
type Event struct {
	Seq       uint64    `json:"seq"`
	Topic     string    `json:"topic"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source,omitempty"` // "operations", "http", "cli"
}

// EventHandler processes an event.
type EventHandler func(Event)

// SubscriptionID identifies a subscription.
type SubscriptionID uint64

const queueSize = 256

// subscription delivers events to its handler in publish order from its
// own goroutine; a full queue drops the event.
type subscription struct {
	id      SubscriptionID
	topic   string
	handler EventHandler
	queue   chan Event
	done    chan struct{}
	dropped atomic.Int64
}

func (s *subscription) loop() {
	defer close(s.done)
	for ev := range s.queue {
		s.call(ev)
	}
}

func (s *subscription) call(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			L_error("bus: event handler panic", "topic", ev.Topic, "subscriptionID", s.id, "panic", r)
		}
	}()
	s.handler(ev)
}

// Bus routes events by topic. The zero value is not usable; use New.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string][]*subscription
	nextID atomic.Uint64
	seq    atomic.Uint64
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{subs: make(map[string][]*subscription)}
}

// Subscribe registers handler for topic.
func (b *Bus) Subscribe(topic string, handler EventHandler) SubscriptionID {
	sub := &subscription{
		id:      SubscriptionID(b.nextID.Add(1)),
		topic:   topic,
		handler: handler,
		queue:   make(chan Event, queueSize),
		done:    make(chan struct{}),
	}
	go sub.loop()

	b.mu.Lock()
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	L_debug("bus: event subscribed", "topic", topic, "subscriptionID", sub.id)
	return sub.id
}

// Unsubscribe removes a subscription after its queued events are handled.
// It returns false for an unknown id.
func (b *Bus) Unsubscribe(id SubscriptionID) bool {
	b.mu.Lock()
	var found *subscription
	for topic, subs := range b.subs {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}
			found = sub
			b.subs[topic] = append(subs[:i:i], subs[i+1:]...)
			if len(b.subs[topic]) == 0 {
				delete(b.subs, topic)
			}
			break
		}
		if found != nil {
			break
		}
	}
	b.mu.Unlock()

	if found == nil {
		return false
	}
	close(found.queue)
	<-found.done
	L_debug("bus: event unsubscribed", "topic", found.topic, "subscriptionID", id, "dropped", found.dropped.Load())
	return true
}

// Publish sends data to every subscriber of topic without blocking.
func (b *Bus) Publish(topic string, data any, source string) Event {
	ev := Event{
		Seq:       b.seq.Add(1),
		Topic:     topic,
		Data:      data,
		Timestamp: time.Now(),
		Source:    source,
	}

	// queue sends happen under the read lock so Unsubscribe cannot close a
	// queue mid-send
	b.mu.RLock()
	defer b.mu.RUnlock()
	subs := b.subs[topic]
	if len(subs) == 0 {
		L_trace("bus: event published (no subscribers)", "topic", topic)
		return ev
	}
	for _, sub := range subs {
		select {
		case sub.queue <- ev:
		default:
			if sub.dropped.Add(1) == 1 {
				L_warn("bus: subscriber queue full, dropping events", "topic", topic, "subscriptionID", sub.id)
			}
		}
	}
	return ev
}

// Topics lists topics with at least one subscriber.
func (b *Bus) Topics() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	topics := make([]string, 0, len(b.subs))
	for t := range b.subs {
		topics = append(topics, t)
	}
	return topics
}

// Count returns the number of subscribers for topic.
func (b *Bus) Count(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}

var defaultBus = New()

// Default returns the process-wide bus.
func Default() *Bus {
	return defaultBus
}

// SubscribeEvent registers handler on the default bus.
func SubscribeEvent(topic string, handler EventHandler) SubscriptionID {
	return defaultBus.Subscribe(topic, handler)
}

// UnsubscribeEvent removes a subscription from the default bus.
func UnsubscribeEvent(id SubscriptionID) bool {
	return defaultBus.Unsubscribe(id)
}

// PublishEvent publishes on the default bus with source "system".
func PublishEvent(topic string, data any) {
	defaultBus.Publish(topic, data, "system")
}
