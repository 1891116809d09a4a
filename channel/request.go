package channel

import (
	"github.com/saylorsolutions/patternbus/pattern"
	"github.com/saylorsolutions/patternbus/syncx"
)

// RequestChannel delivers each request to exactly one handler, and returns its result to the requester.
type RequestChannel struct {
	variant
}

// NewRequestChannel creates a [RequestChannel].
func NewRequestChannel(opts ...Option) *RequestChannel {
	return &RequestChannel{variant{New(KindRequest, opts...)}}
}

// Respond registers handler for requests that p covers.
// Returns [ErrHandlerExists] if a handler is already registered with an equal pattern.
// The returned [HandlerID] removes this registration with Remove.
func (r *RequestChannel) Respond(p pattern.Pattern, handler any) (HandlerID, error) {
	return r.ch.register(p, handler)
}

// Request writes a request to the most specific transport that p matches.
// The returned future resolves with the handler's result, or is rejected with the failure.
// Failures are also emitted on the error stream.
func (r *RequestChannel) Request(p pattern.Pattern, payload any) (*syncx.Future[any], error) {
	return r.ch.Request(p, payload)
}
