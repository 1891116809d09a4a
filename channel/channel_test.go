package channel

import (
	"bytes"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saylorsolutions/patternbus/observer"
	"github.com/saylorsolutions/patternbus/pattern"
	"github.com/saylorsolutions/patternbus/syncx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = time.Second

// manualScheduler holds tasks until the test runs them.
type manualScheduler struct {
	mux   sync.Mutex
	tasks []func()
}

func (s *manualScheduler) Schedule(task func()) {
	syncx.LockFunc(&s.mux, func() {
		s.tasks = append(s.tasks, task)
	})
}

func (s *manualScheduler) Len() int {
	return syncx.LockFuncT(&s.mux, func() int {
		return len(s.tasks)
	})
}

// RunAll runs pending tasks, including tasks they schedule, and returns how many ran.
func (s *manualScheduler) RunAll() int {
	var ran int
	for {
		task := syncx.LockFuncT(&s.mux, func() func() {
			if len(s.tasks) == 0 {
				return nil
			}
			task := s.tasks[0]
			s.tasks = s.tasks[1:]
			return task
		})
		if task == nil {
			return ran
		}
		task()
		ran++
	}
}

// loopback delivers written messages straight back to the channel it's mounted on.
type loopback struct {
	mux     sync.Mutex
	handler MessageHandler
	data    observer.Stream[Message]
	errs    observer.Stream[error]
	resumed atomic.Int32
}

var (
	_ HandlerSetter = (*loopback)(nil)
	_ Streamer      = (*loopback)(nil)
	_ ErrorNotifier = (*loopback)(nil)
	_ Resumer       = (*loopback)(nil)
)

func (l *loopback) Write(msg Message) *syncx.Future[any] {
	h := syncx.LockFuncT(&l.mux, func() MessageHandler {
		return l.handler
	})
	if h != nil {
		return h(msg)
	}
	l.data.Emit(msg)
	return nil
}

func (l *loopback) SetHandler(handler MessageHandler) {
	syncx.LockFunc(&l.mux, func() {
		l.handler = handler
	})
}

func (l *loopback) hasHandler() bool {
	return syncx.LockFuncT(&l.mux, func() bool {
		return l.handler != nil
	})
}

func (l *loopback) OnData(fn func(msg Message)) (cancel func()) {
	return l.data.Observe(fn)
}

func (l *loopback) OnError(fn func(err error)) (cancel func()) {
	return l.errs.Observe(fn)
}

func (l *loopback) Resume() {
	l.resumed.Add(1)
}

// namedHandler is a comparable handler, so it can be compared in assertions.
type namedHandler struct {
	name  string
	calls atomic.Int32
}

func (h *namedHandler) Invoke(_ any, done Done) {
	h.calls.Add(1)
	done(h.name, nil)
}

type errorCollector struct {
	mux  sync.Mutex
	errs []error
}

func (c *errorCollector) observe(err error) {
	syncx.LockFunc(&c.mux, func() {
		c.errs = append(c.errs, err)
	})
}

func (c *errorCollector) Errors() []error {
	return syncx.LockFuncT(&c.mux, func() []error {
		return append([]error(nil), c.errs...)
	})
}

// registered fails the test if a registration fails, and returns its ID.
func registered(t *testing.T) func(HandlerID, error) HandlerID {
	return func(id HandlerID, err error) HandlerID {
		t.Helper()
		require.NoError(t, err)
		return id
	}
}

// gatedSetter holds the first SetHandler call until gate is closed.
type gatedSetter struct {
	loopback
	once    sync.Once
	entered chan struct{}
	gate    chan struct{}
}

var _ HandlerSetter = (*gatedSetter)(nil)

func newGatedSetter() *gatedSetter {
	return &gatedSetter{
		entered: make(chan struct{}),
		gate:    make(chan struct{}),
	}
}

func (g *gatedSetter) SetHandler(handler MessageHandler) {
	if handler != nil {
		g.once.Do(func() {
			close(g.entered)
			<-g.gate
		})
	}
	g.loopback.SetHandler(handler)
}

func (g *gatedSetter) waitEntered(t *testing.T) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(testTimeout):
		t.Fatal("SetHandler was never called")
	}
}

func TestNew_Invalid(t *testing.T) {
	assert.Panics(t, func() {
		New("bogus")
	})
	assert.Panics(t, func() {
		New(KindEvent, WithScheduler(nil))
	})
	assert.Panics(t, func() {
		New(KindEvent, WithLogger(nil))
	})
	assert.Panics(t, func() {
		New(KindEvent, WithInstrumentation(nil))
	})
	assert.Equal(t, MultiHandler, KindEvent.Arity())
	assert.Equal(t, SingleHandler, KindCommand.Arity())
	assert.Equal(t, SingleHandler, KindRequest.Arity())
}

func TestChannel_Use(t *testing.T) {
	ch := New(KindCommand)
	tr := &loopback{}
	require.NoError(t, ch.Use(pattern.Pattern{"role": "x"}, tr))
	assert.True(t, tr.hasHandler(), "Single handler channels should install a message handler")
	assert.Equal(t, int32(1), tr.resumed.Load())

	err := ch.Use(pattern.Pattern{"role": "x"}, &loopback{})
	var dup *DuplicateTransportError
	assert.ErrorAs(t, err, &dup)
	assert.ErrorIs(t, err, ErrDuplicateTransport)

	assert.ErrorIs(t, ch.Use(pattern.Pattern{"role": "y"}, nil), ErrUnsupportedTransport)
	assert.ErrorIs(t, ch.Use(pattern.Pattern{"role": []string{"x"}}, &loopback{}), pattern.ErrNonScalar)

	assert.True(t, ch.Unuse(pattern.Pattern{"role": "x"}))
	assert.False(t, tr.hasHandler(), "Unmounting should remove the message handler")
	assert.False(t, ch.Unuse(pattern.Pattern{"role": "x"}))
	assert.ErrorIs(t, ch.Broadcast(pattern.Pattern{"role": "x"}, nil), ErrNoTransport)
}

func TestChannel_UseFactory(t *testing.T) {
	ch := New(KindRequest)
	var (
		calls int
		got   *Registry
	)
	factory := func(reg *Registry) Transport {
		calls++
		got = reg
		return &loopback{}
	}
	require.NoError(t, ch.UseFactory(pattern.Pattern{}, factory))
	assert.Equal(t, 1, calls)
	assert.Same(t, ch.Registry(), got)
	assert.Equal(t, KindRequest, got.Kind())

	assert.ErrorIs(t, ch.UseFactory(pattern.Pattern{}, factory), ErrDuplicateTransport)
	assert.Equal(t, 1, calls, "Factory should not be called for a duplicate pattern")
	assert.ErrorIs(t, ch.UseFactory(pattern.Pattern{"a": 1}, nil), ErrUnsupportedTransport)
}

func TestChannel_Use_WiredBeforeFindable(t *testing.T) {
	ch := NewRequestChannel()
	registered(t)(ch.Respond(pattern.Pattern{"role": "x"}, func(any) (any, error) {
		return "handled", nil
	}))
	tr := newGatedSetter()
	used := make(chan error, 1)
	go func() {
		used <- ch.Use(pattern.Pattern{"role": "x"}, tr)
	}()
	tr.waitEntered(t)

	_, err := ch.Request(pattern.Pattern{"role": "x"}, nil)
	assert.ErrorIs(t, err, ErrNoTransport, "A transport that's still being wired should not receive writes")
	assert.Empty(t, ch.Channel().FindTransports(pattern.Pattern{"role": "x"}))
	assert.ErrorIs(t, ch.Use(pattern.Pattern{"role": "x"}, &loopback{}), ErrDuplicateTransport, "The pattern should be reserved while wiring")

	close(tr.gate)
	require.NoError(t, <-used)
	f, err := ch.Request(pattern.Pattern{"role": "x"}, nil)
	require.NoError(t, err)
	result, err := f.Await(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, "handled", result)
	assert.Equal(t, int32(1), tr.resumed.Load())
}

func TestChannel_Unuse_WhileWiring(t *testing.T) {
	ch := NewCommandChannel()
	tr := newGatedSetter()
	used := make(chan error, 1)
	go func() {
		used <- ch.Use(pattern.Pattern{"role": "x"}, tr)
	}()
	tr.waitEntered(t)

	assert.True(t, ch.Unuse(pattern.Pattern{"role": "x"}))
	close(tr.gate)
	require.NoError(t, <-used)
	assert.False(t, tr.hasHandler(), "The subscriptions should be undone once wiring finishes")
	assert.Empty(t, ch.Channel().FindTransports(pattern.Pattern{"role": "x"}))
	assert.Equal(t, int32(0), tr.resumed.Load(), "An unmounted transport should not be resumed")
	assert.ErrorIs(t, ch.Send(pattern.Pattern{"role": "x"}, nil), ErrNoTransport)
}

func TestChannel_SingleSlotExclusivity(t *testing.T) {
	ch := New(KindCommand)
	h1, h2 := &namedHandler{name: "h1"}, &namedHandler{name: "h2"}
	p := pattern.Pattern{"role": "x", "op": "y"}
	id, added := ch.AddSingleHandler(p, h1)
	assert.True(t, added)
	assert.NotZero(t, id)
	_, added = ch.AddSingleHandler(pattern.Pattern{"op": "y", "role": "x"}, h2)
	assert.False(t, added)
	assert.Equal(t, []Handler{h1}, ch.FindHandlers(p))
	_, added = ch.AddSingleHandler(pattern.Pattern{"a": 1}, nil)
	assert.False(t, added)
}

func TestChannel_MultiSlotAccumulation(t *testing.T) {
	ch := New(KindEvent)
	h1, h2 := &namedHandler{name: "h1"}, &namedHandler{name: "h2"}
	p := pattern.Pattern{"role": "x"}
	id1, added := ch.AddMultiHandler(p, h1)
	assert.True(t, added)
	id2, added := ch.AddMultiHandler(p, h1)
	assert.True(t, added)
	assert.NotEqual(t, id1, id2, "Each registration should get its own ID")
	_, added = ch.AddMultiHandler(p, h2)
	assert.True(t, added)
	assert.Equal(t, []Handler{h1, h1, h2}, ch.FindHandlers(p))
}

func TestChannel_SpecificityAndUniversalMatch(t *testing.T) {
	ch := New(KindEvent)
	general, specific, other := &namedHandler{name: "general"}, &namedHandler{name: "specific"}, &namedHandler{name: "other"}
	ch.AddMultiHandler(pattern.Pattern{"foo": "bar"}, general)
	ch.AddMultiHandler(pattern.Pattern{"foo": "bar", "op": "y"}, specific)
	ch.AddMultiHandler(pattern.Pattern{"foo": "barbaz"}, other)

	assert.Equal(t, []Handler{specific, general}, ch.FindHandlers(pattern.Pattern{"foo": "bar", "op": "y", "extra": "x"}))
	assert.Equal(t, []Handler{general}, ch.FindHandlers(pattern.Pattern{"foo": "bar", "extra": "x"}))
	assert.Len(t, ch.FindHandlers(pattern.Pattern{}), 3)
}

func TestChannel_RemovalPrecision(t *testing.T) {
	ch := New(KindEvent)
	a, b := &namedHandler{name: "a"}, &namedHandler{name: "b"}
	p := pattern.Pattern{"role": "x"}
	ch.AddMultiHandler(p, a)
	ch.AddMultiHandler(p, b)
	assert.True(t, ch.Remove(p, a))
	assert.Equal(t, []Handler{b}, ch.FindHandlers(p))
	assert.False(t, ch.Remove(p, a))
	assert.True(t, ch.Remove(p))
	assert.Empty(t, ch.FindHandlers(p))
	assert.False(t, ch.Remove(p))
}

func counter(calls *atomic.Int32) func(any) {
	return func(any) {
		calls.Add(1)
	}
}

func TestChannel_RemovalPrecision_SameLiteral(t *testing.T) {
	sched := &manualScheduler{}
	ch := NewEventChannel(WithScheduler(sched))
	require.NoError(t, ch.Use(pattern.Pattern{}, &loopback{}))
	p := pattern.Pattern{"role": "x"}

	var callsA, callsB atomic.Int32
	idA := registered(t)(ch.Observe(p, counter(&callsA)))
	idB := registered(t)(ch.Observe(p, counter(&callsB)))
	require.NotEqual(t, idA, idB)

	hB := counter(&callsB)
	assert.False(t, ch.Remove(p, hB), "Functions can't be compared, so removing one by value should remove nothing")
	assert.Len(t, ch.Channel().FindHandlers(p), 2)

	assert.True(t, ch.Remove(p, idB))
	assert.False(t, ch.Remove(p, idB))
	require.NoError(t, ch.Broadcast(p, nil))
	sched.RunAll()
	assert.Equal(t, int32(1), callsA.Load(), "The other handler from the same literal should be kept")
	assert.Equal(t, int32(0), callsB.Load())

	var calls atomic.Int32
	ids := make([]HandlerID, 3)
	for i := range ids {
		ids[i] = registered(t)(ch.Observe(pattern.Pattern{"loop": true}, func(any) {
			calls.Add(int32(i + 1))
		}))
	}
	assert.True(t, ch.Remove(pattern.Pattern{"loop": true}, ids[1]))
	require.NoError(t, ch.Broadcast(pattern.Pattern{"loop": true}, nil))
	sched.RunAll()
	assert.Equal(t, int32(1+3), calls.Load(), "Only the second loop registration should be removed")
}

func TestChannel_NoTransport(t *testing.T) {
	sched := &manualScheduler{}
	ch := NewEventChannel(WithScheduler(sched))
	h := &namedHandler{name: "h"}
	registered(t)(ch.Observe(pattern.Pattern{}, h))

	err := ch.Broadcast(pattern.Pattern{"role": "x"}, nil)
	var noTransport *NoTransportError
	require.ErrorAs(t, err, &noTransport)
	assert.Equal(t, "x", noTransport.Pattern["role"])
	assert.Equal(t, 0, sched.RunAll())
	assert.Equal(t, int32(0), h.calls.Load())
}

func TestChannel_Deferred(t *testing.T) {
	sched := &manualScheduler{}
	ch := NewEventChannel(WithScheduler(sched))
	require.NoError(t, ch.Use(pattern.Pattern{}, &loopback{}))
	h := &namedHandler{name: "h"}
	registered(t)(ch.Observe(pattern.Pattern{"role": "x"}, h))

	require.NoError(t, ch.Broadcast(pattern.Pattern{"role": "x"}, nil))
	assert.Equal(t, int32(0), h.calls.Load(), "Handlers must not run inside Broadcast")
	assert.Equal(t, 1, sched.RunAll())
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestChannel_AsyncIsolation(t *testing.T) {
	sched := &manualScheduler{}
	ch := NewEventChannel(WithScheduler(sched))
	require.NoError(t, ch.Use(pattern.Pattern{}, &loopback{}))
	var collector errorCollector
	ch.OnError(collector.observe)

	var ran atomic.Int32
	registered(t)(ch.Observe(pattern.Pattern{"evt": "a"}, func(any) {
		panic("boom")
	}))
	registered(t)(ch.Observe(pattern.Pattern{"evt": "a"}, func(any) error {
		return errors.New("rejected")
	}))
	registered(t)(ch.Observe(pattern.Pattern{}, func(any) {
		ran.Add(1)
	}))
	registered(t)(ch.Observe(pattern.Pattern{"evt": "a", "n": 1}, func(any) (any, error) {
		ran.Add(1)
		return nil, nil
	}))

	require.NoError(t, ch.Broadcast(pattern.Pattern{"evt": "a", "n": 1}, "payload"))
	assert.Equal(t, 4, sched.RunAll())
	assert.Equal(t, int32(2), ran.Load(), "Sibling handlers should still run")
	errs := collector.Errors()
	require.Len(t, errs, 2, "Exactly one emission per failing handler")
	assert.ErrorIs(t, errors.Join(errs...), ErrHandlerPanic)
}

func TestChannel_Request(t *testing.T) {
	sched := &manualScheduler{}
	ch := NewRequestChannel(WithScheduler(sched))
	require.NoError(t, ch.Use(pattern.Pattern{"role": "x"}, &loopback{}))
	registered(t)(ch.Respond(pattern.Pattern{"role": "x", "op": "y"}, func(payload any) (any, error) {
		return map[string]any{"ok": true, "in": payload}, nil
	}))

	f, err := ch.Request(pattern.Pattern{"role": "x", "op": "y", "extra": 1}, 5)
	require.NoError(t, err)
	assert.False(t, f.IsResolved())
	sched.RunAll()
	result, err := f.Await(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true, "in": 5}, result)
}

func TestChannel_Request_NoHandler(t *testing.T) {
	ch := NewRequestChannel()
	require.NoError(t, ch.Use(pattern.Pattern{}, &loopback{}))
	var collector errorCollector
	ch.OnError(collector.observe)

	f, err := ch.Request(pattern.Pattern{"role": "x"}, nil)
	require.NoError(t, err)
	_, err = f.Await(testTimeout)
	var noHandler *NoHandlerError
	assert.ErrorAs(t, err, &noHandler)
	assert.Len(t, collector.Errors(), 1, "The failure should be emitted exactly once")

	_, err = NewRequestChannel().Request(pattern.Pattern{"role": "x"}, nil)
	assert.ErrorIs(t, err, ErrNoTransport)
}

func TestChannel_Request_HandlerError(t *testing.T) {
	ch := NewRequestChannel()
	require.NoError(t, ch.Use(pattern.Pattern{}, &loopback{}))
	var collector errorCollector
	ch.OnError(collector.observe)
	errFailed := errors.New("failed")
	registered(t)(ch.Respond(pattern.Pattern{"op": "fail"}, func(any) error {
		return errFailed
	}))

	f, err := ch.Request(pattern.Pattern{"op": "fail"}, nil)
	require.NoError(t, err)
	_, err = f.Await(testTimeout)
	assert.ErrorIs(t, err, errFailed)
	assert.Eventually(t, func() bool {
		return len(collector.Errors()) == 1
	}, testTimeout, 5*time.Millisecond)
	assert.ErrorIs(t, collector.Errors()[0], errFailed)
}

func TestChannel_CallbackAndAwaitable(t *testing.T) {
	ch := NewRequestChannel()
	require.NoError(t, ch.Use(pattern.Pattern{}, &loopback{}))
	registered(t)(ch.Respond(pattern.Pattern{"op": "callback"}, func(payload any, done Done) {
		go done(payload.(int)*2, nil)
	}))
	registered(t)(ch.Respond(pattern.Pattern{"op": "future"}, func(payload any) any {
		f := syncx.NewFuture[any]()
		go f.Resolve(payload.(int) + 1)
		return f
	}))

	f, err := ch.Request(pattern.Pattern{"op": "callback"}, 21)
	require.NoError(t, err)
	result, err := f.Await(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, 42, result)

	f, err = ch.Request(pattern.Pattern{"op": "future"}, 41)
	require.NoError(t, err)
	result, err = f.Await(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, 42, result)
}

func TestCommandChannel(t *testing.T) {
	sched := &manualScheduler{}
	ch := NewCommandChannel(WithScheduler(sched))
	require.NoError(t, ch.Use(pattern.Pattern{}, &loopback{}))
	var collector errorCollector
	ch.OnError(collector.observe)

	var received atomic.Value
	handler := func(payload any) {
		received.Store(payload)
	}
	id := registered(t)(ch.Receive(pattern.Pattern{"cmd": "save"}, handler))
	_, err := ch.Receive(pattern.Pattern{"cmd": "save"}, handler)
	assert.ErrorIs(t, err, ErrHandlerExists)

	require.NoError(t, ch.Send(pattern.Pattern{"cmd": "save", "id": 3}, "doc"))
	sched.RunAll()
	assert.Equal(t, "doc", received.Load())
	assert.Empty(t, collector.Errors())

	require.NoError(t, ch.Send(pattern.Pattern{"cmd": "load"}, nil))
	sched.RunAll()
	errs := collector.Errors()
	require.Len(t, errs, 1, "A missing handler should be reported once")
	assert.ErrorIs(t, errs[0], ErrNoHandler)

	assert.True(t, ch.Remove(pattern.Pattern{"cmd": "save"}, id))
	assert.Empty(t, ch.Channel().FindHandlers(pattern.Pattern{"cmd": "save"}))
}

func TestChannel_CrossWiredDelivery(t *testing.T) {
	ch := NewEventChannel()
	tr := &loopback{}
	require.NoError(t, ch.Use(pattern.Pattern{"role": "x"}, tr))
	var collector errorCollector
	ch.OnError(collector.observe)

	tr.data.Emit(Message{Pattern: pattern.Pattern{"role": "y"}})
	errs := collector.Errors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrNoTransport)
}

func TestChannel_TransportErrors(t *testing.T) {
	ch := NewEventChannel()
	tr := &loopback{}
	require.NoError(t, ch.Use(pattern.Pattern{}, tr))
	var collector errorCollector
	cancel := ch.OnError(collector.observe)

	errTransport := errors.New("connection lost")
	tr.errs.Emit(errTransport)
	assert.Equal(t, []error{errTransport}, collector.Errors())

	cancel()
	tr.errs.Emit(errTransport)
	assert.Len(t, collector.Errors(), 1)

	assert.True(t, ch.Unuse(pattern.Pattern{}))
	assert.Equal(t, 0, tr.errs.Len(), "Unmounting should cancel error forwarding")
	assert.Equal(t, 0, tr.data.Len(), "Unmounting should cancel the data subscription")
}

type failingTransport struct {
	err error
}

func (f failingTransport) Write(Message) *syncx.Future[any] {
	return syncx.Rejected[any](f.err)
}

func TestChannel_BroadcastPartialFailure(t *testing.T) {
	ch := NewEventChannel()
	errWrite := errors.New("write failed")
	require.NoError(t, ch.Use(pattern.Pattern{"role": "x"}, failingTransport{err: errWrite}))
	require.NoError(t, ch.Use(pattern.Pattern{}, &loopback{}))
	var collector errorCollector
	ch.OnError(collector.observe)

	var ran atomic.Bool
	registered(t)(ch.Observe(pattern.Pattern{}, func(any) {
		ran.Store(true)
	}))
	require.NoError(t, ch.Broadcast(pattern.Pattern{"role": "x"}, nil))
	assert.Eventually(t, ran.Load, testTimeout, 5*time.Millisecond, "Other transports should still deliver")
	assert.Equal(t, []error{errWrite}, collector.Errors())
}

func TestChannel_UnobservedErrorsLogged(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	ch := NewRequestChannel(WithLogger(logger))
	require.NoError(t, ch.Use(pattern.Pattern{}, &loopback{}))

	_, err := ch.Request(pattern.Pattern{"op": "missing"}, nil)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Unobserved channel error")
	assert.Contains(t, buf.String(), "channel=request")
}

func TestVerbs_Validation(t *testing.T) {
	events := NewEventChannel()
	_, err := events.Observe(pattern.Pattern{}, nil)
	assert.ErrorIs(t, err, ErrInvalidHandler)
	_, err = events.Observe(pattern.Pattern{}, "not a function")
	assert.ErrorIs(t, err, ErrInvalidHandler)
	_, err = events.Observe(pattern.Pattern{"k": map[string]any{}}, func(any) {})
	assert.ErrorIs(t, err, pattern.ErrNonScalar)
	assert.ErrorIs(t, events.Broadcast(pattern.Pattern{"k": struct{}{}}, nil), pattern.ErrNonScalar)

	commands := NewCommandChannel()
	var nilFunc func(any)
	_, err = commands.Receive(pattern.Pattern{}, nilFunc)
	assert.ErrorIs(t, err, ErrInvalidHandler)

	requests := NewRequestChannel()
	_, err = requests.Respond(pattern.Pattern{}, func(int) {})
	assert.ErrorIs(t, err, ErrInvalidHandler)
	_, err = requests.Request(pattern.Pattern{"k": []int{1}}, nil)
	assert.ErrorIs(t, err, pattern.ErrNonScalar)
}

func TestRegistry_Namespaces(t *testing.T) {
	ch := New(KindCommand)
	reg := ch.Registry()
	h := func(any) {}
	p := pattern.Pattern{"op": "x"}

	_, err := reg.AddSingle("queue", p, h)
	require.NoError(t, err)
	_, err = reg.AddSingle("queue", p, h)
	assert.ErrorIs(t, err, ErrHandlerExists)
	_, err = reg.AddSingle("requests", p, h)
	assert.NoError(t, err, "Namespaces should not collide")
	assert.Empty(t, ch.FindHandlers(p), "Namespaced handlers are separate from channel handlers")

	_, err = reg.AddSingle("queue", p, 5)
	assert.ErrorIs(t, err, ErrInvalidHandler)

	id := registered(t)(reg.AddMulti("events", p, h))
	registered(t)(reg.AddMulti("events", pattern.Pattern{}, h))
	assert.Len(t, reg.FindMulti("events", pattern.Pattern{"op": "x", "more": true}), 2)
	assert.Empty(t, reg.FindMulti("unknown", p))

	_, ok := reg.FindSingle("queue", p)
	assert.True(t, ok)
	assert.True(t, reg.RemoveSingle("queue", p))
	_, ok = reg.FindSingle("queue", p)
	assert.False(t, ok)

	assert.False(t, reg.RemoveMulti("events", p, h), "Functions are removed by ID")
	assert.True(t, reg.RemoveMulti("events", p, id))
	assert.False(t, reg.RemoveMulti("events", p, id))
	assert.Len(t, reg.FindMulti("events", p), 1)
	assert.False(t, reg.RemoveMulti("unknown", p))
}

func TestRegistry_ExecuteAndNotify(t *testing.T) {
	ch := New(KindEvent)
	var collector errorCollector
	ch.OnError(collector.observe)
	reg := ch.Registry()

	result, err := reg.Execute(HandlerFunc(func(payload any) (any, error) {
		return payload, nil
	}), "value").Await(testTimeout)
	require.NoError(t, err)
	assert.Equal(t, "value", result)

	errNotified := errors.New("notified")
	reg.NotifyError(errNotified)
	assert.Equal(t, []error{errNotified}, collector.Errors())
}

type countingInstrumentation struct {
	written   atomic.Int32
	completed atomic.Int32
	failed    atomic.Int32
	errors    atomic.Int32
}

func (c *countingInstrumentation) MessageWritten(_ Kind, transports int) {
	c.written.Add(int32(transports))
}

func (c *countingInstrumentation) HandlerCompleted(_ Kind, _ time.Duration, err error) {
	c.completed.Add(1)
	if err != nil {
		c.failed.Add(1)
	}
}

func (c *countingInstrumentation) ErrorEmitted(Kind, error) {
	c.errors.Add(1)
}

func TestChannel_Instrumentation(t *testing.T) {
	sched := &manualScheduler{}
	instr := &countingInstrumentation{}
	ch := NewEventChannel(WithScheduler(sched), WithInstrumentation(instr))
	require.NoError(t, ch.Use(pattern.Pattern{}, &loopback{}))
	ch.OnError(func(error) {})
	registered(t)(ch.Observe(pattern.Pattern{}, func(any) {}))
	registered(t)(ch.Observe(pattern.Pattern{}, func(any) error {
		return errors.New("nope")
	}))

	require.NoError(t, ch.Broadcast(pattern.Pattern{"a": 1}, nil))
	sched.RunAll()
	assert.Equal(t, int32(1), instr.written.Load())
	assert.Equal(t, int32(2), instr.completed.Load())
	assert.Equal(t, int32(1), instr.failed.Load())
	assert.Equal(t, int32(1), instr.errors.Load())
}
