package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	ErrStopTimeout = errors.New("timed out waiting for serial scheduler to stop")
)

var _ Scheduler = (*Serial)(nil)

// Serial is a [Scheduler] that runs tasks one at a time, in the order they were scheduled, on a single worker goroutine.
// This is the closest match to a single-threaded event loop: no two tasks run at the same time.
//
// The backlog is unbounded, so scheduling never blocks, even from within a running task.
// Because tasks run one at a time, a task must never block waiting for another task scheduled on the same [Serial].
type Serial struct {
	mux       sync.Mutex
	backlog   []func()
	accepting bool

	wake    chan struct{}
	ctx     context.Context
	stop    context.CancelFunc
	doStop  sync.Once
	stopped chan struct{}
	onPanic func(recovered any)
}

type serialConfig struct {
	initialBacklog int
	onPanic        func(recovered any)
}

// SerialOption configures a [Serial] scheduler.
type SerialOption func(conf *serialConfig) error

// InitialBacklog sets the initial capacity of the task backlog.
func InitialBacklog(size int) SerialOption {
	return func(conf *serialConfig) error {
		if size < 0 {
			return fmt.Errorf("invalid initial backlog size '%d'", size)
		}
		conf.initialBacklog = size
		return nil
	}
}

// OnPanic sets the function that receives the value recovered from a panicking task.
// By default, the panic is logged with [slog.Default] and the worker continues with the next task.
func OnPanic(fn func(recovered any)) SerialOption {
	return func(conf *serialConfig) error {
		if fn == nil {
			return errors.New("nil panic handler")
		}
		conf.onPanic = fn
		return nil
	}
}

// NewSerial creates a [Serial] scheduler and starts its worker goroutine.
// The worker stops when ctx is cancelled or [Serial.Stop] is called, after running every task that's already in the backlog.
func NewSerial(ctx context.Context, opts ...SerialOption) (*Serial, error) {
	conf := &serialConfig{
		onPanic: func(recovered any) {
			slog.Default().Error("Recovered panic in scheduled task", "panic", recovered)
		},
	}
	for _, opt := range opts {
		if err := opt(conf); err != nil {
			return nil, err
		}
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	s := &Serial{
		backlog:   make([]func(), 0, conf.initialBacklog),
		accepting: true,
		wake:      make(chan struct{}, 1),
		ctx:       ctx,
		stop:      cancel,
		stopped:   make(chan struct{}),
		onPanic:   conf.onPanic,
	}
	go s.worker()
	return s, nil
}

// Schedule adds task to the backlog.
// Once the [Serial] has stopped, tasks are run on their own goroutine instead so that they're never lost.
func (s *Serial) Schedule(task func()) {
	if task == nil {
		return
	}
	s.mux.Lock()
	if !s.accepting {
		s.mux.Unlock()
		go s.run(task)
		return
	}
	s.backlog = append(s.backlog, task)
	s.mux.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
		// Worker already has a pending wake up.
	}
}

// Len returns the number of tasks waiting to run.
func (s *Serial) Len() int {
	s.mux.Lock()
	defer s.mux.Unlock()
	return len(s.backlog)
}

func (s *Serial) pop() (func(), bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	if len(s.backlog) == 0 {
		return nil, false
	}
	task := s.backlog[0]
	s.backlog[0] = nil
	s.backlog = s.backlog[1:]
	return task, true
}

func (s *Serial) worker() {
	defer close(s.stopped)
	for {
		if task, ok := s.pop(); ok {
			s.run(task)
			continue
		}
		select {
		case <-s.wake:
		case <-s.ctx.Done():
			s.drain()
			return
		}
	}
}

// drain stops accepting new tasks and runs everything left in the backlog.
// Tasks scheduled by draining tasks run on their own goroutine.
func (s *Serial) drain() {
	s.mux.Lock()
	s.accepting = false
	s.mux.Unlock()
	for {
		task, ok := s.pop()
		if !ok {
			return
		}
		s.run(task)
	}
}

func (s *Serial) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.onPanic(r)
		}
	}()
	task()
}

// Stop signals the worker to finish the backlog and exit, without waiting.
// This is safe to call multiple times.
func (s *Serial) Stop() {
	s.doStop.Do(func() {
		s.stop()
	})
}

// AwaitStop calls [Serial.Stop] and waits for the worker to exit.
// A timeout may be given, in which case [ErrStopTimeout] is returned if it elapses first.
func (s *Serial) AwaitStop(timeout ...time.Duration) error {
	s.Stop()
	if len(timeout) == 0 {
		<-s.stopped
		return nil
	}
	timer := time.NewTimer(timeout[0])
	defer timer.Stop()
	select {
	case <-s.stopped:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}
