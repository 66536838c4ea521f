// Package eventbus implements the synchronous, in-process, topic-keyed
// fan-out dispatcher the core uses to stitch systems together. Delivery is
// depth-first: a handler that publishes to another topic sees that nested
// dispatch complete before control returns to it. There is no buffering and
// no backpressure beyond the fact that handlers run inline on the
// publisher's goroutine.
package eventbus

import (
	"fmt"

	"github.com/google/uuid"
)

// Event is the payload carried on a topic. entity_id and current_tick are
// conventional keys every core-published event includes; topic-specific
// fields are added on top.
type Event map[string]any

// Handler reacts to a published event. A handler that returns an error
// aborts the current dispatch chain; the error propagates back through
// Publish to the caller.
type Handler func(topic string, payload Event) error

// Subscription identifies one handler's registration on a topic, so it can
// later be cancelled.
type Subscription struct {
	id    string
	topic string
}

// ID returns the subscription's unique identifier.
func (s Subscription) ID() string { return s.id }

// HandlerError wraps an error raised by a subscribed handler, naming the
// topic and subscription that failed so the scheduler can attribute a
// fatal tick error to its source.
type HandlerError struct {
	Topic          string
	SubscriptionID string
	Err            error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("eventbus: handler %s for topic %q: %v", e.SubscriptionID, e.Topic, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

type subscription struct {
	id      string
	handler Handler
}

// Bus is a synchronous, topic-keyed dispatcher. The zero value is not
// usable; construct with New.
type Bus struct {
	subscribers map[string][]subscription
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{subscribers: make(map[string][]subscription)}
}

// Subscribe appends handler to topic's subscriber list. Duplicate
// subscriptions to the same topic are allowed and are invoked in the order
// they were subscribed.
func (b *Bus) Subscribe(topic string, handler Handler) Subscription {
	id := uuid.NewString()
	b.subscribers[topic] = append(b.subscribers[topic], subscription{id: id, handler: handler})
	return Subscription{id: id, topic: topic}
}

// Unsubscribe removes a single subscription. It is a no-op if the
// subscription is unknown or was already removed, letting a system retract
// a handler mid-run without restructuring the subscriber list by hand.
func (b *Bus) Unsubscribe(sub Subscription) {
	subs := b.subscribers[sub.topic]
	for i, s := range subs {
		if s.id == sub.id {
			b.subscribers[sub.topic] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

// Publish invokes every handler subscribed to topic, in subscription
// order, synchronously, on the caller's stack. An unhandled topic is a
// no-op. If a handler returns an error, dispatch stops immediately and the
// error is returned wrapped as *HandlerError.
func (b *Bus) Publish(topic string, payload Event) error {
	for _, sub := range b.subscribers[topic] {
		if err := sub.handler(topic, payload); err != nil {
			return &HandlerError{Topic: topic, SubscriptionID: sub.id, Err: err}
		}
	}
	return nil
}

// SubscriberCount returns the number of handlers currently subscribed to
// topic. Exposed for tests and diagnostics.
func (b *Bus) SubscriberCount(topic string) int {
	return len(b.subscribers[topic])
}
