package inprocess

import (
	"fmt"

	"github.com/saylorsolutions/patternbus/channel"
	"github.com/saylorsolutions/patternbus/pattern"
	"github.com/saylorsolutions/patternbus/syncx"
)

// Broadcast runs every observer registered with [Transport.Observe] that p matches.
// Returns false if there were none.
// Observer failures are emitted on the channel's error stream.
func (t *Transport) Broadcast(p pattern.Pattern, payload any) (bool, error) {
	return t.fanOut(nsEmitter, p, payload)
}

// Observe registers observer for [Transport.Broadcast].
func (t *Transport) Observe(p pattern.Pattern, observer any) (channel.HandlerID, error) {
	return t.addMulti(nsEmitter, p, observer)
}

// RemoveObserver removes observers registered on p, or just the one given by its [channel.HandlerID].
func (t *Transport) RemoveObserver(p pattern.Pattern, observer ...any) bool {
	return t.removeMulti(nsEmitter, p, observer...)
}

// Send runs every handler registered with [Transport.AddHandler] that p matches.
// Returns false if there were none.
func (t *Transport) Send(p pattern.Pattern, payload any) (bool, error) {
	return t.fanOut(nsQueue, p, payload)
}

// AddHandler registers handler for [Transport.Send].
func (t *Transport) AddHandler(p pattern.Pattern, handler any) (channel.HandlerID, error) {
	return t.addMulti(nsQueue, p, handler)
}

// RemoveHandler removes handlers registered on p, or just the one given by its [channel.HandlerID].
func (t *Transport) RemoveHandler(p pattern.Pattern, handler ...any) bool {
	return t.removeMulti(nsQueue, p, handler...)
}

// Trigger runs every listener registered with [Transport.Listen] that p matches.
// Returns false if there were none.
func (t *Transport) Trigger(p pattern.Pattern, payload any) (bool, error) {
	return t.fanOut(nsEvents, p, payload)
}

// Listen registers listener for [Transport.Trigger].
func (t *Transport) Listen(p pattern.Pattern, listener any) (channel.HandlerID, error) {
	return t.addMulti(nsEvents, p, listener)
}

// StopListening removes listeners registered on p, or just the one given by its [channel.HandlerID].
func (t *Transport) StopListening(p pattern.Pattern, listener ...any) bool {
	return t.removeMulti(nsEvents, p, listener...)
}

// Request runs the most specific responder registered with [Transport.RegisterHandler] that p matches.
// The future is rejected with a [channel.NotFoundError] if there is none, or with the responder's error.
// Responder failures are also emitted on the channel's error stream.
func (t *Transport) Request(p pattern.Pattern, payload any) *syncx.Future[any] {
	reg, err := t.bound()
	if err != nil {
		return syncx.Rejected[any](err)
	}
	if err := p.Validate(); err != nil {
		return syncx.Rejected[any](err)
	}
	handler, ok := reg.FindSingle(nsRequests, p)
	if !ok {
		return syncx.Rejected[any](&channel.NotFoundError{
			Message: fmt.Sprintf("no responder for pattern {%s}", p),
		})
	}
	payload, err = t.copyPayload(payload)
	if err != nil {
		return syncx.Rejected[any](err)
	}
	out := syncx.NewFuture[any]()
	reg.Execute(handler, payload).OnComplete(func(val any, err error) {
		if err != nil {
			reg.NotifyError(err)
		}
		out.ResolveErr(val, err)
	})
	return out
}

// RegisterHandler registers responder for [Transport.Request].
// Returns [channel.ErrHandlerExists] if a responder is already registered with an equal pattern.
func (t *Transport) RegisterHandler(p pattern.Pattern, responder any) (channel.HandlerID, error) {
	reg, err := t.bound()
	if err != nil {
		return 0, err
	}
	return reg.AddSingle(nsRequests, p, responder)
}

// UnregisterHandler removes the responder registered on p.
func (t *Transport) UnregisterHandler(p pattern.Pattern) bool {
	reg, err := t.bound()
	if err != nil {
		return false
	}
	return reg.RemoveSingle(nsRequests, p)
}

func (t *Transport) fanOut(ns string, p pattern.Pattern, payload any) (bool, error) {
	reg, err := t.bound()
	if err != nil {
		return false, err
	}
	if err := p.Validate(); err != nil {
		return false, err
	}
	handlers := reg.FindMulti(ns, p)
	if len(handlers) == 0 {
		return false, nil
	}
	payload, err = t.copyPayload(payload)
	if err != nil {
		return false, err
	}
	for _, h := range handlers {
		reg.Execute(h, payload).OnComplete(func(_ any, err error) {
			if err != nil {
				reg.NotifyError(err)
			}
		})
	}
	return true, nil
}

func (t *Transport) addMulti(ns string, p pattern.Pattern, handler any) (channel.HandlerID, error) {
	reg, err := t.bound()
	if err != nil {
		return 0, err
	}
	return reg.AddMulti(ns, p, handler)
}

func (t *Transport) removeMulti(ns string, p pattern.Pattern, handler ...any) bool {
	reg, err := t.bound()
	if err != nil {
		return false
	}
	return reg.RemoveMulti(ns, p, handler...)
}
