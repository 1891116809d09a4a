package inprocess

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/saylorsolutions/patternbus/channel"
	"github.com/saylorsolutions/patternbus/observer"
	"github.com/saylorsolutions/patternbus/syncx"
)

var (
	ErrUnbound     = errors.New("transport is not bound to a channel registry")
	ErrPayloadCopy = errors.New("failed to copy payload")
	ErrUndelivered = errors.New("message was not delivered")
)

const (
	nsEmitter  = "local-emitter"
	nsQueue    = "local-queue"
	nsRequests = "local-requests"
	nsEvents   = "local-events"
)

var (
	_ channel.HandlerSetter = (*Transport)(nil)
	_ channel.Streamer      = (*Transport)(nil)
	_ channel.ErrorNotifier = (*Transport)(nil)
	_ channel.Resumer       = (*Transport)(nil)
)

// Transport delivers messages within the process, without any I/O.
// It can be mounted on every kind of channel, but an instance should only be mounted on one channel.
type Transport struct {
	copyPayloads bool

	mux      sync.RWMutex
	handler  channel.MessageHandler
	registry *channel.Registry
	resumed  bool
	pending  []channel.Message
	data     observer.Stream[channel.Message]
	errs     observer.Stream[error]
}

// Option configures a [Transport].
type Option func(t *Transport) error

// CopyPayloads makes the transport deliver a deep copy of each payload, made with a JSON round trip.
// Handlers will see payloads as they would after decoding JSON, so structs become map[string]any and numbers become float64.
// A payload that can't be encoded fails the write.
func CopyPayloads() Option {
	return func(t *Transport) error {
		t.copyPayloads = true
		return nil
	}
}

// New creates a [Transport].
// Panics if an [Option] is invalid.
func New(opts ...Option) *Transport {
	t := &Transport{}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			panic(fmt.Sprintf("invalid in-process transport configuration: %v", err))
		}
	}
	return t
}

// Factory returns a [channel.TransportFactory] that creates a [Transport] bound to the channel's registry.
// A bound transport also supports the direct API: [Transport.Broadcast], [Transport.Send], [Transport.Request] and [Transport.Trigger].
func Factory(opts ...Option) channel.TransportFactory {
	return func(reg *channel.Registry) channel.Transport {
		t := New(opts...)
		t.Bind(reg)
		return t
	}
}

// Bind attaches reg to the transport for use with the direct API.
func (t *Transport) Bind(reg *channel.Registry) {
	syncx.LockFunc(&t.mux, func() {
		t.registry = reg
	})
}

// Write delivers msg to the channel the transport is mounted on.
// Single handler channels receive the message through the installed handler, and the result is returned.
// Channel level "no transport" and "no handler" failures are reported as [channel.NotFoundError].
// Otherwise the message is emitted to data subscribers.
// Data messages written before [Transport.Resume] with no subscriber are held until it's called,
// and data messages that reach no subscriber after that are reported with [Transport.OnError].
func (t *Transport) Write(msg channel.Message) *syncx.Future[any] {
	payload, err := t.copyPayload(msg.Payload)
	if err != nil {
		return syncx.Rejected[any](err)
	}
	msg = channel.Message{Pattern: msg.Pattern, Payload: payload}

	handler := syncx.RLockFuncT(&t.mux, func() channel.MessageHandler {
		return t.handler
	})
	if handler == nil {
		t.emitData(msg)
		return syncx.Resolved[any](nil)
	}
	result := handler(msg)
	if result == nil {
		return syncx.Resolved[any](nil)
	}
	out := syncx.NewFuture[any]()
	result.OnComplete(func(val any, err error) {
		out.ResolveErr(val, notFound(err))
	})
	return out
}

func notFound(err error) error {
	var (
		noTransport *channel.NoTransportError
		noHandler   *channel.NoHandlerError
	)
	if errors.As(err, &noTransport) || errors.As(err, &noHandler) {
		return channel.NewNotFoundError(err)
	}
	return err
}

func (t *Transport) copyPayload(payload any) (any, error) {
	if !t.copyPayloads || payload == nil {
		return payload, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayloadCopy, err)
	}
	var copied any
	if err := json.Unmarshal(data, &copied); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPayloadCopy, err)
	}
	return copied, nil
}

// SetHandler installs the channel's message handler.
func (t *Transport) SetHandler(handler channel.MessageHandler) {
	syncx.LockFunc(&t.mux, func() {
		t.handler = handler
	})
}

func (t *Transport) emitData(msg channel.Message) {
	if t.data.Emit(msg) > 0 {
		return
	}
	held := syncx.LockFuncT(&t.mux, func() bool {
		if t.resumed {
			return false
		}
		t.pending = append(t.pending, msg)
		return true
	})
	if !held {
		t.errs.Emit(fmt.Errorf("%w: no data subscriber for pattern {%s}", ErrUndelivered, msg.Pattern))
	}
}

// OnData subscribes fn to messages written while no handler is installed.
func (t *Transport) OnData(fn func(msg channel.Message)) (cancel func()) {
	return t.data.Observe(fn)
}

// OnError subscribes fn to delivery failures that can't be returned from [Transport.Write].
func (t *Transport) OnError(fn func(err error)) (cancel func()) {
	return t.errs.Observe(fn)
}

// Resume delivers any held data messages, in the order they were written.
// Channels call this once they've subscribed to the transport.
func (t *Transport) Resume() {
	pending := syncx.LockFuncT(&t.mux, func() []channel.Message {
		t.resumed = true
		pending := t.pending
		t.pending = nil
		return pending
	})
	for _, msg := range pending {
		t.emitData(msg)
	}
}

func (t *Transport) bound() (*channel.Registry, error) {
	reg := syncx.RLockFuncT(&t.mux, func() *channel.Registry {
		return t.registry
	})
	if reg == nil {
		return nil, ErrUnbound
	}
	return reg, nil
}
