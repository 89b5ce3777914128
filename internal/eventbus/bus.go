// Package eventbus provides an in-process pub-sub bus for session events.
//
// Handlers are called synchronously on the publishing goroutine, so a
// subscriber sees the events of one topic in publish order. Subscribers that
// need to consume events at their own pace use a [Watcher], which buffers
// without bound and never blocks the publisher.
package eventbus

import (
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
)

// Wildcard subscribes a handler to every topic.
const Wildcard = "*"

// Event is a single published message.
type Event struct {
	Topic   string
	Payload []byte
}

// Handler handles an event.
type Handler func(Event)

type subscription struct {
	id      string
	topic   string
	handler Handler
}

// Bus is a synchronous pub-sub event bus keyed by topic.
type Bus struct {
	logger *slog.Logger

	subscriptions map[string][]subscription
	mu            sync.RWMutex
}

// New creates an empty Bus.
func New(logger *slog.Logger) *Bus {
	return &Bus{
		logger:        logger,
		subscriptions: make(map[string][]subscription),
	}
}

// Subscribe registers handler for topic and returns a subscription id that
// can be passed to Unsubscribe.
func (b *Bus) Subscribe(topic string, handler Handler) string {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := uuid.NewString()

	b.subscriptions[topic] = append(b.subscriptions[topic], subscription{
		id:      id,
		topic:   topic,
		handler: handler,
	})

	return id
}

// SubscribeAll registers handler for every topic.
func (b *Bus) SubscribeAll(handler Handler) string {
	return b.Subscribe(Wildcard, handler)
}

// Unsubscribe removes the subscription with the given id and reports whether
// it existed.
func (b *Bus) Unsubscribe(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	for topic, subs := range b.subscriptions {
		for i, sub := range subs {
			if sub.id != id {
				continue
			}

			// Copy rather than re-slice in place: Publish may be iterating a
			// snapshot that shares the backing array.
			remaining := make([]subscription, 0, len(subs)-1)
			remaining = append(remaining, subs[:i]...)
			remaining = append(remaining, subs[i+1:]...)

			if len(remaining) == 0 {
				delete(b.subscriptions, topic)
			} else {
				b.subscriptions[topic] = remaining
			}

			return true
		}
	}

	return false
}

// Publish delivers payload to the handlers of topic, then to wildcard
// handlers, each group in subscription order. A panicking handler is logged
// and does not stop delivery to the rest.
func (b *Bus) Publish(topic string, payload []byte) {
	b.mu.RLock()
	specific := b.subscriptions[topic]
	wildcard := b.subscriptions[Wildcard]
	b.mu.RUnlock()

	event := Event{Topic: topic, Payload: payload}

	for _, sub := range specific {
		b.safeCall(sub, event)
	}

	for _, sub := range wildcard {
		b.safeCall(sub, event)
	}
}

func (b *Bus) safeCall(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error(
				"event handler panicked",
				"topic", event.Topic,
				"subscription", sub.id,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	sub.handler(event)
}

// SubscriptionCount returns the number of active subscriptions.
func (b *Bus) SubscriptionCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var count int
	for _, subs := range b.subscriptions {
		count += len(subs)
	}

	return count
}

// Clear removes every subscription.
func (b *Bus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	clear(b.subscriptions)
}
