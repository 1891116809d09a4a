package channel

import (
	"errors"
	"log/slog"
	"time"

	"github.com/saylorsolutions/patternbus/dispatch"
)

// Kind identifies the messaging semantics of a [Channel].
type Kind string

const (
	KindEvent   Kind = "event"
	KindCommand Kind = "command"
	KindRequest Kind = "request"
)

// Arity is the number of handlers that receive each message.
type Arity int

const (
	UnknownArity Arity = iota
	SingleHandler
	MultiHandler
)

// Arity returns the handler arity of the channel kind.
func (k Kind) Arity() Arity {
	switch k {
	case KindEvent:
		return MultiHandler
	case KindCommand, KindRequest:
		return SingleHandler
	default:
		return UnknownArity
	}
}

func (k Kind) String() string {
	return string(k)
}

// Instrumentation receives notifications about channel activity.
// Implementations must be safe for concurrent use, and must not block.
type Instrumentation interface {
	// MessageWritten is called when a message is written to transports.
	MessageWritten(kind Kind, transports int)
	// HandlerCompleted is called when a handler invocation finishes.
	HandlerCompleted(kind Kind, elapsed time.Duration, err error)
	// ErrorEmitted is called for each error emitted on the error stream.
	ErrorEmitted(kind Kind, err error)
}

type noInstrumentation struct{}

func (noInstrumentation) MessageWritten(Kind, int) {}
func (noInstrumentation) HandlerCompleted(Kind, time.Duration, error) {}
func (noInstrumentation) ErrorEmitted(Kind, error) {}

type config struct {
	scheduler dispatch.Scheduler
	logger    *slog.Logger
	instr     Instrumentation
}

// Option configures a [Channel].
type Option func(conf *config) error

// WithScheduler sets the [dispatch.Scheduler] used to run handlers.
// The default is [dispatch.Async].
func WithScheduler(sched dispatch.Scheduler) Option {
	return func(conf *config) error {
		if sched == nil {
			return errors.New("nil scheduler")
		}
		conf.scheduler = sched
		return nil
	}
}

// WithLogger sets the logger used for diagnostics, including errors that no observer received.
// The default is [slog.Default].
func WithLogger(logger *slog.Logger) Option {
	return func(conf *config) error {
		if logger == nil {
			return errors.New("nil logger")
		}
		conf.logger = logger
		return nil
	}
}

// WithInstrumentation sets the [Instrumentation] notified of channel activity.
func WithInstrumentation(instr Instrumentation) Option {
	return func(conf *config) error {
		if instr == nil {
			return errors.New("nil instrumentation")
		}
		conf.instr = instr
		return nil
	}
}
