// Package state provides Value, an observable current-value holder. Readers
// either poll Get or Subscribe to a conflated stream of updates: a slow
// subscriber only ever misses intermediate values, never the latest one.
package state

import (
	"maps"
	"sync"
)

// Value holds a T and notifies subscribers on every change. Stored values
// are treated as immutable: mutate through Update and return a copy.
type Value[T any] struct {
	mu   sync.Mutex
	v    T
	subs map[int]chan T
	next int
}

func NewValue[T any](initial T) *Value[T] {
	return &Value[T]{v: initial, subs: make(map[int]chan T)}
}

func (s *Value[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (s *Value[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = v
	s.notify()
}

// Update atomically replaces the value with fn(current) and returns it.
func (s *Value[T]) Update(fn func(T) T) T {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.v = fn(s.v)
	s.notify()
	return s.v
}

// Subscribe returns a channel that immediately yields the current value and
// then every later one (conflated), plus a func that ends the subscription
// and closes the channel.
func (s *Value[T]) Subscribe() (<-chan T, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch := make(chan T, 1)
	ch <- s.v
	id := s.next
	s.next++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(ch)
		})
	}
}

// notify must be called with mu held.
func (s *Value[T]) notify() {
	for _, ch := range s.subs {
		select {
		case <-ch:
		default:
		}
		ch <- s.v
	}
}

// PutKey stores k=v in a map-valued Value without mutating the previous map.
func PutKey[K comparable, V any](s *Value[map[K]V], k K, v V) {
	s.Update(func(m map[K]V) map[K]V {
		out := maps.Clone(m)
		if out == nil {
			out = make(map[K]V)
		}
		out[k] = v
		return out
	})
}

// DeleteKey removes k from a map-valued Value without mutating the previous map.
func DeleteKey[K comparable, V any](s *Value[map[K]V], k K) {
	s.Update(func(m map[K]V) map[K]V {
		if _, ok := m[k]; !ok {
			return m
		}
		out := maps.Clone(m)
		delete(out, k)
		return out
	})
}
