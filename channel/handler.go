package channel

import (
	"fmt"
	"reflect"
)

// Done completes a handler invocation.
// Only the first call has any effect.
type Done func(result any, err error)

// Handler processes the payload of a message and reports the outcome with done.
type Handler interface {
	Invoke(payload any, done Done)
}

// HandlerFunc is a [Handler] whose return values are the outcome.
type HandlerFunc func(payload any) (any, error)

func (f HandlerFunc) Invoke(payload any, done Done) {
	done(f(payload))
}

// CallbackFunc is a [Handler] that reports its outcome by calling done, possibly from another goroutine.
// Whatever the function returns is ignored, the call to done is the only outcome.
type CallbackFunc func(payload any, done Done)

func (f CallbackFunc) Invoke(payload any, done Done) {
	f(payload, done)
}

// Awaitable is an asynchronous result that a handler may return, like a [syncx.Future].
// The handler's outcome is the outcome of the Awaitable.
//
// [syncx.Future]: github.com/saylorsolutions/patternbus/syncx
type Awaitable interface {
	OnComplete(fn func(any, error))
}

// AsHandler validates that h is something that can handle messages, and adapts it to a [Handler].
//
// Supported shapes are:
//   - [Handler] implementations, including [HandlerFunc] and [CallbackFunc]
//   - func(any)
//   - func(any) error
//   - func(any) any
//   - func(any) (any, error)
//   - func(any, Done) and func(any, func(any, error))
//
// Anything else, including nil values, results in [ErrInvalidHandler].
func AsHandler(h any) (Handler, error) {
	if isNil(h) {
		return nil, fmt.Errorf("%w: expected a function, but got nil", ErrInvalidHandler)
	}
	switch fn := h.(type) {
	case Handler:
		return fn, nil
	case func(any) (any, error):
		return HandlerFunc(fn), nil
	case func(any, Done):
		return CallbackFunc(fn), nil
	case func(any, func(any, error)):
		return CallbackFunc(func(payload any, done Done) {
			fn(payload, done)
		}), nil
	case func(any):
		return HandlerFunc(func(payload any) (any, error) {
			fn(payload)
			return nil, nil
		}), nil
	case func(any) error:
		return HandlerFunc(func(payload any) (any, error) {
			return nil, fn(payload)
		}), nil
	case func(any) any:
		return HandlerFunc(func(payload any) (any, error) {
			return fn(payload), nil
		}), nil
	}
	return nil, fmt.Errorf("%w: unsupported handler type %T", ErrInvalidHandler, h)
}

func isNil(val any) bool {
	if val == nil {
		return true
	}
	rv := reflect.ValueOf(val)
	switch rv.Kind() {
	case reflect.Func, reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan:
		return rv.IsNil()
	}
	return false
}

// HandlerID identifies a single handler registration.
// Every registration gets a new ID, even when the same handler is registered twice.
// The zero value is never assigned.
type HandlerID uint64

// sameIdentity reports whether a and b refer to the same handler or transport.
// Values are compared with == if they're comparable. Functions never are, so two function values are never the same.
func sameIdentity(a, b any) bool {
	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	if !va.IsValid() || !vb.IsValid() {
		return !va.IsValid() && !vb.IsValid()
	}
	if va.Type() != vb.Type() || !va.Comparable() {
		return false
	}
	return va.Equal(vb)
}

// registration keeps the value a handler was registered with, so it can be identified for removal after being adapted.
type registration struct {
	id      HandlerID
	raw     any
	handler Handler
}

// sameRegistration matches a registration by ID, or by registered value if the target has no ID.
func sameRegistration(a, b registration) bool {
	if b.id != 0 {
		return a.id == b.id
	}
	return sameIdentity(a.raw, b.raw)
}

// removalTarget builds the registration that [Channel.Remove] and [Registry.RemoveMulti] look for.
func removalTarget(handler any) registration {
	if id, ok := handler.(HandlerID); ok {
		return registration{id: id}
	}
	return registration{raw: handler}
}
