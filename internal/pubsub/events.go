// Package pubsub provides a generic publish/subscribe event broker used to
// fan orchestration events out to daemon subscribers.
package pubsub

import (
	"context"
	"time"
)

// Event wraps a published payload with its publication time.
// The payload type carries its own event classification; the broker does
// not interpret it.
type Event[T any] struct {
	Payload   T
	Timestamp time.Time
}

// Subscriber provides a subscription channel for events.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) <-chan Event[T]
}

// Publisher allows publishing events with a typed payload.
type Publisher[T any] interface {
	Publish(payload T)
}
