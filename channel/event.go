package channel

import (
	"github.com/saylorsolutions/patternbus/pattern"
)

// EventChannel delivers each event to every matching observer.
// Observer results are ignored and failures are emitted on the error stream.
type EventChannel struct {
	variant
}

// NewEventChannel creates an [EventChannel].
func NewEventChannel(opts ...Option) *EventChannel {
	return &EventChannel{variant{New(KindEvent, opts...)}}
}

// Observe registers observer for events that p covers.
// The same observer may be registered more than once, and will be called once per registration.
// See [AsHandler] for accepted observer shapes.
// The returned [HandlerID] removes this registration with Remove.
func (e *EventChannel) Observe(p pattern.Pattern, observer any) (HandlerID, error) {
	return e.ch.register(p, observer)
}

// Broadcast sends an event to every transport that p matches.
func (e *EventChannel) Broadcast(p pattern.Pattern, payload any) error {
	return e.ch.Broadcast(p, payload)
}
