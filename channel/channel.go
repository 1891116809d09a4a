package channel

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saylorsolutions/patternbus/dispatch"
	"github.com/saylorsolutions/patternbus/observer"
	"github.com/saylorsolutions/patternbus/pattern"
	"github.com/saylorsolutions/patternbus/syncx"
)

type mount struct {
	transport Transport
	cancels   []func()
}

// Channel routes messages to transports and handlers by pattern.
// A Channel is safe for concurrent use.
type Channel struct {
	kind      Kind
	scheduler dispatch.Scheduler
	logger    *slog.Logger
	instr     Instrumentation
	registry  *Registry
	errs      observer.Stream[error]
	lastID    atomic.Uint64

	mux        sync.RWMutex
	transports *pattern.Matcher[Transport]
	mounts     map[string]*mount
	handlers   *pattern.Matcher[registration]
	namespaces map[string]*pattern.Matcher[registration]
}

// New creates a [Channel] of the given [Kind].
// Panics if kind is unknown or an [Option] is invalid, since this is a programming error.
func New(kind Kind, opts ...Option) *Channel {
	if kind.Arity() == UnknownArity {
		panic(fmt.Sprintf("unknown channel kind '%s'", kind))
	}
	conf := &config{
		scheduler: dispatch.Async(),
		logger:    slog.Default(),
		instr:     noInstrumentation{},
	}
	for _, opt := range opts {
		if err := opt(conf); err != nil {
			panic(fmt.Sprintf("invalid channel configuration: %v", err))
		}
	}
	c := &Channel{
		kind:      kind,
		scheduler: conf.scheduler,
		logger:    conf.logger.With("channel", kind.String()),
		instr:     conf.instr,
		transports: pattern.NewMatcher(func(a, b Transport) bool {
			return sameIdentity(a, b)
		}),
		mounts:     map[string]*mount{},
		handlers:   pattern.NewMatcher(sameRegistration),
		namespaces: map[string]*pattern.Matcher[registration]{},
	}
	c.registry = &Registry{ch: c}
	return c
}

// Kind returns the [Kind] the channel was created with.
func (c *Channel) Kind() Kind {
	return c.kind
}

// Registry returns the handle given to transport factories.
func (c *Channel) Registry() *Registry {
	return c.registry
}

// Use mounts t on p.
// Messages with patterns that p covers will be written to t.
// Only one transport may be mounted on a given pattern.
func (c *Channel) Use(p pattern.Pattern, t Transport) error {
	if isNil(t) {
		return fmt.Errorf("%w: nil transport", ErrUnsupportedTransport)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	p = p.Clone()
	key := p.String()
	m := &mount{transport: t}
	err := syncx.LockFuncT(&c.mux, func() error {
		if _, ok := c.mounts[key]; ok {
			return &DuplicateTransportError{Pattern: p}
		}
		c.mounts[key] = m
		return nil
	})
	if err != nil {
		return err
	}

	// The transport isn't findable until it's wired, so nothing is written to it before it can deliver.
	var cancels []func()
	switch c.kind.Arity() {
	case MultiHandler:
		if s, ok := t.(Streamer); ok {
			cancels = append(cancels, s.OnData(c.onData(t)))
		}
	case SingleHandler:
		if hs, ok := t.(HandlerSetter); ok {
			hs.SetHandler(c.onMessage(t))
			cancels = append(cancels, func() {
				hs.SetHandler(nil)
			})
		}
	}
	if en, ok := t.(ErrorNotifier); ok {
		cancels = append(cancels, en.OnError(c.emitError))
	}
	published := syncx.LockFuncT(&c.mux, func() bool {
		if c.mounts[key] != m {
			return false
		}
		m.cancels = cancels
		c.transports.Add(p, t)
		return true
	})
	if !published {
		// Unmounted while it was being wired.
		runCancels(cancels)
		return nil
	}
	if r, ok := t.(Resumer); ok {
		r.Resume()
	}
	c.logger.Debug("Mounted transport", "pattern", p.String(), "transport", fmt.Sprintf("%T", t))
	return nil
}

// UseFactory builds a transport with factory and mounts it on p.
// The factory isn't called if p already has a transport.
func (c *Channel) UseFactory(p pattern.Pattern, factory TransportFactory) error {
	if factory == nil {
		return fmt.Errorf("%w: nil transport factory", ErrUnsupportedTransport)
	}
	if err := p.Validate(); err != nil {
		return err
	}
	exists := syncx.RLockFuncT(&c.mux, func() bool {
		_, ok := c.mounts[p.String()]
		return ok
	})
	if exists {
		return &DuplicateTransportError{Pattern: p.Clone()}
	}
	return c.Use(p, factory(c.registry))
}

// Unuse unmounts the transport mounted on p, and reports whether there was one.
func (c *Channel) Unuse(p pattern.Pattern) bool {
	m := syncx.LockFuncT(&c.mux, func() *mount {
		key := p.String()
		m, ok := c.mounts[key]
		if !ok {
			return nil
		}
		delete(c.mounts, key)
		c.transports.Remove(p)
		return m
	})
	if m == nil {
		return false
	}
	runCancels(m.cancels)
	c.logger.Debug("Unmounted transport", "pattern", p.String())
	return true
}

func runCancels(cancels []func()) {
	for _, cancel := range cancels {
		if cancel != nil {
			cancel()
		}
	}
}

// FindTransports returns every mounted transport whose pattern covers p, most specific first.
func (c *Channel) FindTransports(p pattern.Pattern) []Transport {
	return syncx.RLockFuncT(&c.mux, func() []Transport {
		return c.transports.Find(p)
	})
}

// FindHandlers returns every handler whose pattern covers p, most specific first.
func (c *Channel) FindHandlers(p pattern.Pattern) []Handler {
	regs := c.findRegistrations(c.handlers, p)
	handlers := make([]Handler, len(regs))
	for i, reg := range regs {
		handlers[i] = reg.handler
	}
	return handlers
}

// AddSingleHandler registers h on p if no handler is registered with an equal pattern.
// Returns false if one already exists.
func (c *Channel) AddSingleHandler(p pattern.Pattern, h Handler) (HandlerID, bool) {
	if isNil(h) {
		return 0, false
	}
	reg := c.newRegistration(h, h)
	if !c.addSingle(c.handlers, p, reg) {
		return 0, false
	}
	return reg.id, true
}

// AddMultiHandler registers h on p alongside any other handlers with an equal pattern.
func (c *Channel) AddMultiHandler(p pattern.Pattern, h Handler) (HandlerID, bool) {
	if isNil(h) {
		return 0, false
	}
	reg := c.newRegistration(h, h)
	return reg.id, c.addMulti(c.handlers, p, reg)
}

// Remove removes handlers registered with a pattern equal to p.
// If a handler is given, only its first registration is removed.
// The handler may be the [HandlerID] returned when it was registered, which always identifies exactly one registration.
// Comparable values like pointers may also be given directly. Functions can't be compared, so they must be removed by ID.
func (c *Channel) Remove(p pattern.Pattern, handler ...any) bool {
	return c.remove(c.handlers, p, handler...)
}

func (c *Channel) newRegistration(raw any, h Handler) registration {
	return registration{
		id:      HandlerID(c.lastID.Add(1)),
		raw:     raw,
		handler: h,
	}
}

func (c *Channel) addSingle(m *pattern.Matcher[registration], p pattern.Pattern, reg registration) bool {
	return syncx.LockFuncT(&c.mux, func() bool {
		if m.Exists(p) {
			return false
		}
		m.Add(p.Clone(), reg)
		return true
	})
}

func (c *Channel) addMulti(m *pattern.Matcher[registration], p pattern.Pattern, reg registration) bool {
	syncx.LockFunc(&c.mux, func() {
		m.Add(p.Clone(), reg)
	})
	return true
}

func (c *Channel) remove(m *pattern.Matcher[registration], p pattern.Pattern, handler ...any) bool {
	return syncx.LockFuncT(&c.mux, func() bool {
		if len(handler) == 0 {
			return m.Remove(p)
		}
		return m.RemoveValue(p, removalTarget(handler[0]))
	})
}

func (c *Channel) findRegistrations(m *pattern.Matcher[registration], p pattern.Pattern) []registration {
	return syncx.RLockFuncT(&c.mux, func() []registration {
		return m.Find(p)
	})
}

// register validates and adapts h, then adds it to the channel's handlers according to its arity.
func (c *Channel) register(p pattern.Pattern, h any) (HandlerID, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	handler, err := AsHandler(h)
	if err != nil {
		return 0, err
	}
	reg := c.newRegistration(h, handler)
	if c.kind.Arity() == MultiHandler {
		c.addMulti(c.handlers, p, reg)
		return reg.id, nil
	}
	if !c.addSingle(c.handlers, p, reg) {
		return 0, fmt.Errorf("%w for pattern {%s}", ErrHandlerExists, p)
	}
	return reg.id, nil
}

// Broadcast writes a message to every transport whose pattern covers p.
// Failures reported by transports after this returns are emitted on the error stream.
func (c *Channel) Broadcast(p pattern.Pattern, payload any) error {
	if err := p.Validate(); err != nil {
		return err
	}
	transports := c.FindTransports(p)
	if len(transports) == 0 {
		return &NoTransportError{Pattern: p.Clone()}
	}
	c.instr.MessageWritten(c.kind, len(transports))
	for _, t := range transports {
		c.write(t, Message{Pattern: p.Clone(), Payload: payload}).OnComplete(func(_ any, err error) {
			if err != nil && !isReported(err) {
				c.emitError(err)
			}
		})
	}
	return nil
}

// Request writes a message to the most specific transport whose pattern covers p.
// The returned future resolves with the outcome reported by the transport.
func (c *Channel) Request(p pattern.Pattern, payload any) (*syncx.Future[any], error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	var (
		t  Transport
		ok bool
	)
	syncx.LockFunc(c.mux.RLocker(), func() {
		t, ok = c.transports.First(p)
	})
	if !ok {
		return nil, &NoTransportError{Pattern: p.Clone()}
	}
	c.instr.MessageWritten(c.kind, 1)
	f := c.write(t, Message{Pattern: p.Clone(), Payload: payload})
	f.OnComplete(func(_ any, err error) {
		if err != nil && !isReported(err) {
			c.emitError(err)
		}
	})
	return f, nil
}

func (c *Channel) write(t Transport, msg Message) (f *syncx.Future[any]) {
	defer func() {
		if r := recover(); r != nil {
			f = syncx.Rejected[any](fmt.Errorf("transport %T panicked on write: %v", t, r))
		}
	}()
	f = t.Write(msg)
	if f == nil {
		f = syncx.Resolved[any](nil)
	}
	return f
}

// OnError adds an observer of the channel's error stream.
// The returned function removes the observer.
func (c *Channel) OnError(fn func(err error)) (cancel func()) {
	return c.errs.Observe(fn)
}

// ClearErrorObservers removes every error stream observer.
func (c *Channel) ClearErrorObservers() {
	c.errs.Clear()
}

func (c *Channel) emitError(err error) {
	if err == nil {
		return
	}
	c.instr.ErrorEmitted(c.kind, err)
	if c.errs.Emit(err) == 0 {
		c.logger.Warn("Unobserved channel error", "error", err)
	}
}

func (c *Channel) mounted(t Transport, p pattern.Pattern) bool {
	return slices.ContainsFunc(c.FindTransports(p), func(other Transport) bool {
		return sameIdentity(t, other)
	})
}

// onMessage is installed on single handler transports.
func (c *Channel) onMessage(t Transport) MessageHandler {
	return func(msg Message) *syncx.Future[any] {
		if !c.mounted(t, msg.Pattern) {
			return c.reject(&NoTransportError{Pattern: msg.Pattern})
		}
		var (
			reg registration
			ok  bool
		)
		syncx.LockFunc(c.mux.RLocker(), func() {
			reg, ok = c.handlers.First(msg.Pattern)
		})
		if !ok {
			return c.reject(&NoHandlerError{Pattern: msg.Pattern})
		}
		out := syncx.NewFuture[any]()
		c.execute(reg.handler, msg.Payload).OnComplete(func(val any, err error) {
			if err != nil {
				c.emitError(err)
				out.Reject(markReported(err))
				return
			}
			out.Resolve(val)
		})
		return out
	}
}

// onData is subscribed to streaming transports of multi handler channels.
func (c *Channel) onData(t Transport) func(msg Message) {
	return func(msg Message) {
		if !c.mounted(t, msg.Pattern) {
			c.emitError(&NoTransportError{Pattern: msg.Pattern})
			return
		}
		for _, reg := range c.findRegistrations(c.handlers, msg.Pattern) {
			c.execute(reg.handler, msg.Payload).OnComplete(func(_ any, err error) {
				if err != nil {
					c.emitError(err)
				}
			})
		}
	}
}

func (c *Channel) reject(err error) *syncx.Future[any] {
	c.emitError(err)
	return syncx.Rejected[any](markReported(err))
}

// execute schedules h to run with payload, and returns a future for its outcome.
// Panics in the handler reject the future with [ErrHandlerPanic].
func (c *Channel) execute(h Handler, payload any) *syncx.Future[any] {
	f := syncx.NewFuture[any]()
	c.scheduler.Schedule(func() {
		start := time.Now()
		f.OnComplete(func(_ any, err error) {
			c.instr.HandlerCompleted(c.kind, time.Since(start), err)
		})
		defer func() {
			if r := recover(); r != nil {
				f.Reject(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
			}
		}()
		h.Invoke(payload, func(result any, err error) {
			if err != nil {
				f.Reject(err)
				return
			}
			if aw, ok := result.(Awaitable); ok && !isNil(aw) {
				aw.OnComplete(func(val any, err error) {
					f.ResolveErr(val, err)
				})
				return
			}
			f.Resolve(result)
		})
	})
	return f
}
