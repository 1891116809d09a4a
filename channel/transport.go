package channel

import (
	"github.com/saylorsolutions/patternbus/pattern"
	"github.com/saylorsolutions/patternbus/syncx"
)

// Message is the unit of transfer between a channel and its transports.
type Message struct {
	Pattern pattern.Pattern
	Payload any
}

// Transport carries messages written by a channel.
// Write may return nil when there is nothing to report.
type Transport interface {
	Write(msg Message) *syncx.Future[any]
}

// MessageHandler is installed on a [HandlerSetter] by single handler channels.
// The returned future resolves with the handler's result.
type MessageHandler func(msg Message) *syncx.Future[any]

// HandlerSetter is implemented by transports that deliver messages to a single handler and report a result.
// The handler is set to nil when the transport is unmounted.
type HandlerSetter interface {
	Transport
	SetHandler(handler MessageHandler)
}

// Streamer is implemented by transports that produce a stream of incoming messages, used by event channels.
type Streamer interface {
	Transport
	OnData(fn func(msg Message)) (cancel func())
}

// ErrorNotifier is implemented by transports that report their own failures.
// Reported errors are forwarded to the channel's error stream.
type ErrorNotifier interface {
	Transport
	OnError(fn func(err error)) (cancel func())
}

// Resumer is implemented by transports that need to be started once their subscriptions are in place.
type Resumer interface {
	Transport
	Resume()
}

// TransportFactory builds a transport bound to a channel's [Registry].
type TransportFactory func(reg *Registry) Transport
