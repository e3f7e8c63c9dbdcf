// Package events is the in-process bus the pipeline modules talk over:
// the webhook service publishes, the Telegram notifier and anything else
// that cares subscribes. Event payload types live with the modules that
// emit them; this package only carries the plumbing.
package events

import (
	"context"
	"time"
)

// Event is what travels on the bus. EventName is the subscription key.
type Event interface {
	EventName() string
	OccurredAt() time.Time
}

// BaseEvent carries the timestamp every event shares. Embed it.
type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// NewBaseEvent stamps a fresh event with the current time.
func NewBaseEvent() BaseEvent {
	return BaseEvent{Timestamp: time.Now()}
}

// Handler consumes events of one type.
type Handler interface {
	Handle(ctx context.Context, event Event) error
}

// HandlerFunc adapts a plain function into a Handler.
type HandlerFunc func(ctx context.Context, event Event) error

func (f HandlerFunc) Handle(ctx context.Context, event Event) error {
	return f(ctx, event)
}

// Bus publishes events to subscribed handlers. Publish runs handlers
// asynchronously and never blocks the caller; PublishSync waits for all
// handlers and surfaces the first error. Subscribe keys on the value the
// event returns from EventName.
type Bus interface {
	Publish(ctx context.Context, event Event)
	PublishSync(ctx context.Context, event Event) error
	Subscribe(eventName string, handler Handler)
}
