package channel

import (
	"github.com/saylorsolutions/patternbus/pattern"
)

// variant holds the operations shared by every channel variant.
type variant struct {
	ch *Channel
}

// Channel returns the underlying [Channel].
func (v variant) Channel() *Channel {
	return v.ch
}

// Use mounts t on p. See [Channel.Use].
func (v variant) Use(p pattern.Pattern, t Transport) error {
	return v.ch.Use(p, t)
}

// UseFactory builds and mounts a transport on p. See [Channel.UseFactory].
func (v variant) UseFactory(p pattern.Pattern, factory TransportFactory) error {
	return v.ch.UseFactory(p, factory)
}

// Unuse unmounts the transport on p. See [Channel.Unuse].
func (v variant) Unuse(p pattern.Pattern) bool {
	return v.ch.Unuse(p)
}

// Remove removes handlers registered on p. See [Channel.Remove].
func (v variant) Remove(p pattern.Pattern, handler ...any) bool {
	return v.ch.Remove(p, handler...)
}

// OnError observes the error stream. See [Channel.OnError].
func (v variant) OnError(fn func(err error)) (cancel func()) {
	return v.ch.OnError(fn)
}

// ClearErrorObservers removes every error stream observer.
func (v variant) ClearErrorObservers() {
	v.ch.ClearErrorObservers()
}
