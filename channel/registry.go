package channel

import (
	"fmt"

	"github.com/saylorsolutions/patternbus/pattern"
	"github.com/saylorsolutions/patternbus/syncx"
)

// Registry is the handle a [TransportFactory] receives to keep handlers of its own, separate from the channel's handlers.
// Handlers are kept in namespaces, so several transports can share one channel without colliding.
type Registry struct {
	ch *Channel
}

// Kind returns the [Kind] of the owning channel.
func (r *Registry) Kind() Kind {
	return r.ch.kind
}

func (r *Registry) namespace(ns string, create bool) *pattern.Matcher[registration] {
	if !create {
		return syncx.RLockFuncT(&r.ch.mux, func() *pattern.Matcher[registration] {
			return r.ch.namespaces[ns]
		})
	}
	return syncx.LockFuncT(&r.ch.mux, func() *pattern.Matcher[registration] {
		m, ok := r.ch.namespaces[ns]
		if !ok {
			m = pattern.NewMatcher(sameRegistration)
			r.ch.namespaces[ns] = m
		}
		return m
	})
}

func (r *Registry) validate(p pattern.Pattern, h any) (registration, error) {
	if err := p.Validate(); err != nil {
		return registration{}, err
	}
	handler, err := AsHandler(h)
	if err != nil {
		return registration{}, err
	}
	return r.ch.newRegistration(h, handler), nil
}

// AddSingle registers h in namespace ns, unless a handler is already registered with an equal pattern.
// Returns [ErrHandlerExists] if one exists.
func (r *Registry) AddSingle(ns string, p pattern.Pattern, h any) (HandlerID, error) {
	reg, err := r.validate(p, h)
	if err != nil {
		return 0, err
	}
	if !r.ch.addSingle(r.namespace(ns, true), p, reg) {
		return 0, fmt.Errorf("%w for pattern {%s} in '%s'", ErrHandlerExists, p, ns)
	}
	return reg.id, nil
}

// AddMulti registers h in namespace ns alongside any other handlers with an equal pattern.
func (r *Registry) AddMulti(ns string, p pattern.Pattern, h any) (HandlerID, error) {
	reg, err := r.validate(p, h)
	if err != nil {
		return 0, err
	}
	r.ch.addMulti(r.namespace(ns, true), p, reg)
	return reg.id, nil
}

// FindSingle returns the most specific handler in namespace ns that p matches.
func (r *Registry) FindSingle(ns string, p pattern.Pattern) (Handler, bool) {
	found := r.FindMulti(ns, p)
	if len(found) == 0 {
		return nil, false
	}
	return found[0], true
}

// FindMulti returns every handler in namespace ns that p matches, most specific first.
func (r *Registry) FindMulti(ns string, p pattern.Pattern) []Handler {
	m := r.namespace(ns, false)
	if m == nil {
		return []Handler{}
	}
	regs := r.ch.findRegistrations(m, p)
	handlers := make([]Handler, len(regs))
	for i, reg := range regs {
		handlers[i] = reg.handler
	}
	return handlers
}

// RemoveSingle removes the handler in namespace ns registered with a pattern equal to p.
func (r *Registry) RemoveSingle(ns string, p pattern.Pattern) bool {
	return r.remove(ns, p)
}

// RemoveMulti removes handlers in namespace ns registered with a pattern equal to p.
// If a handler is given, only its first registration is removed, see [Channel.Remove].
func (r *Registry) RemoveMulti(ns string, p pattern.Pattern, handler ...any) bool {
	return r.remove(ns, p, handler...)
}

func (r *Registry) remove(ns string, p pattern.Pattern, handler ...any) bool {
	m := r.namespace(ns, false)
	if m == nil {
		return false
	}
	return r.ch.remove(m, p, handler...)
}

// Execute runs h with the channel's scheduler, the same way the channel runs its own handlers.
// The returned future resolves with the handler's outcome.
func (r *Registry) Execute(h Handler, payload any) *syncx.Future[any] {
	return r.ch.execute(h, payload)
}

// NotifyError emits err on the owning channel's error stream.
func (r *Registry) NotifyError(err error) {
	r.ch.emitError(err)
}
