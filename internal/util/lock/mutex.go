// Package lock provides a FIFO mutex whose waiters can give up through their
// context.
package lock

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrCancelled is returned when the caller's context ends before the lock is
// granted.
var ErrCancelled = errors.New("lock: wait cancelled")

// Mutex grants ownership to at most one holder. Waiters are served strictly in
// arrival order. The zero value is an unlocked Mutex.
type Mutex struct {
	mu      sync.Mutex
	locked  bool
	waiters list.List // of chan struct{}
}

// Lock blocks until the caller owns the mutex or ctx ends. The returned
// release func is idempotent.
func (m *Mutex) Lock(ctx context.Context) (func(), error) {
	m.mu.Lock()
	if !m.locked && m.waiters.Len() == 0 {
		m.locked = true
		m.mu.Unlock()
		return m.releaser(), nil
	}
	ready := make(chan struct{})
	elem := m.waiters.PushBack(ready)
	m.mu.Unlock()

	select {
	case <-ready:
		return m.releaser(), nil
	case <-ctx.Done():
	}

	m.mu.Lock()
	select {
	case <-ready:
		// Ownership was handed over while we were giving up; pass it on.
		m.mu.Unlock()
		m.unlock()
	default:
		m.waiters.Remove(elem)
		m.mu.Unlock()
	}
	return nil, fmt.Errorf("%w: %w", ErrCancelled, context.Cause(ctx))
}

// Locked reports whether the mutex currently has an owner.
func (m *Mutex) Locked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.locked
}

// Waiting reports the number of queued waiters.
func (m *Mutex) Waiting() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.waiters.Len()
}

func (m *Mutex) releaser() func() {
	var once sync.Once
	return func() { once.Do(m.unlock) }
}

// unlock hands ownership directly to the oldest waiter, so the mutex never
// appears free while someone is queued.
func (m *Mutex) unlock() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if front := m.waiters.Front(); front != nil {
		m.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	m.locked = false
}

// WithLock runs fn while holding m. The lock is released on every exit path,
// including a panic in fn.
func WithLock[T any](ctx context.Context, m *Mutex, fn func(context.Context) (T, error)) (T, error) {
	release, err := m.Lock(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	defer release()
	return fn(ctx)
}

// KeyedMutex lazily creates one Mutex per key. Entries live for the process
// lifetime.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*Mutex
}

// Get returns the mutex for key, creating it on first use.
func (k *KeyedMutex) Get(key string) *Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.locks == nil {
		k.locks = make(map[string]*Mutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &Mutex{}
		k.locks[key] = m
	}
	return m
}
