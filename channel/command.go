package channel

import (
	"github.com/saylorsolutions/patternbus/pattern"
)

// CommandChannel delivers each command to exactly one handler, without returning a result to the sender.
// Failures, including a command that no handler matched, are emitted on the error stream.
type CommandChannel struct {
	variant
}

// NewCommandChannel creates a [CommandChannel].
func NewCommandChannel(opts ...Option) *CommandChannel {
	return &CommandChannel{variant{New(KindCommand, opts...)}}
}

// Receive registers handler for commands that p covers.
// Returns [ErrHandlerExists] if a handler is already registered with an equal pattern.
// The returned [HandlerID] removes this registration with Remove.
func (c *CommandChannel) Receive(p pattern.Pattern, handler any) (HandlerID, error) {
	return c.ch.register(p, handler)
}

// Send writes a command to every transport that p matches.
func (c *CommandChannel) Send(p pattern.Pattern, payload any) error {
	return c.ch.Broadcast(p, payload)
}
