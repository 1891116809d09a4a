package observer

import (
	"sync"

	"github.com/saylorsolutions/patternbus/syncx"
)

// Observer receives each value emitted on a [Stream].
type Observer[T any] func(val T)

type subscription[T any] struct {
	id  uint64
	obs Observer[T]
}

// Stream is an observable sequence of values, like an error sink or a data feed.
// Observers are notified synchronously, in subscription order, in the goroutine that calls [Stream.Emit].
//
// The zero value is ready to use.
type Stream[T any] struct {
	mux       sync.RWMutex
	nextID    uint64
	observers []subscription[T]
}

// Observe adds obs to the [Stream].
// The returned function removes it again, and is safe to call more than once.
func (s *Stream[T]) Observe(obs Observer[T]) (cancel func()) {
	if obs == nil {
		panic("nil observer")
	}
	id := syncx.LockFuncT(&s.mux, func() uint64 {
		s.nextID++
		s.observers = append(s.observers, subscription[T]{id: s.nextID, obs: obs})
		return s.nextID
	})
	var once sync.Once
	return func() {
		once.Do(func() {
			s.remove(id)
		})
	}
}

func (s *Stream[T]) remove(id uint64) {
	syncx.LockFunc(&s.mux, func() {
		for i, sub := range s.observers {
			if sub.id == id {
				s.observers = append(s.observers[:i:i], s.observers[i+1:]...)
				return
			}
		}
	})
}

// Emit notifies every current observer of val, and returns how many were notified.
// Observers added or removed during emission take effect for the next call.
func (s *Stream[T]) Emit(val T) int {
	observers := syncx.RLockFuncT(&s.mux, func() []subscription[T] {
		return s.observers
	})
	for _, sub := range observers {
		sub.obs(val)
	}
	return len(observers)
}

// Len returns the number of current observers.
func (s *Stream[T]) Len() int {
	return syncx.RLockFuncT(&s.mux, func() int {
		return len(s.observers)
	})
}

// Clear removes all observers.
func (s *Stream[T]) Clear() {
	syncx.LockFunc(&s.mux, func() {
		s.observers = nil
	})
}
