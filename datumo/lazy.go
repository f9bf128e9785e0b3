package datumo

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Lazy is a deferred value: the loader runs at most once, on the first
// Resolve, and the outcome (value or error) is memoized on this Lazy only.
//
// Lazy is safe for concurrent use.
type Lazy[T any] struct {
	origin any
	key    string
	loader func() (T, error)

	once sync.Once
	done atomic.Bool
	val  T
	err  error
}

// NewLazy creates a deferred value. key names the backing source (for
// example, a store path) in errors.
func NewLazy[T any](key string, loader func() (T, error)) *Lazy[T] {
	return &Lazy[T]{key: key, loader: loader}
}

// NewLazyAt creates a deferred value read from key inside origin, usually
// the Store holding it. origin must be comparable. Two values with the same
// origin and key are the same source; see SameSource.
func NewLazyAt[T any](origin any, key string, loader func() (T, error)) *Lazy[T] {
	return &Lazy[T]{origin: origin, key: key, loader: loader}
}

// Resolved wraps an already available value.
func Resolved[T any](v T) *Lazy[T] {
	l := &Lazy[T]{val: v}
	l.once.Do(func() {})
	l.done.Store(true)
	return l
}

// Resolve returns the value, running the loader on first use. Loader errors
// are wrapped with ErrDecodeFailure.
func (l *Lazy[T]) Resolve() (T, error) {
	l.once.Do(func() {
		defer l.done.Store(true)
		if l.loader == nil {
			l.err = fmt.Errorf("%w: %s: no loader", ErrDecodeFailure, l.key)
			return
		}
		v, err := l.loader()
		if err != nil {
			l.err = fmt.Errorf("%w: %s: %w", ErrDecodeFailure, l.key, err)
			return
		}
		l.val = v
		l.loader = nil
	})
	return l.val, l.err
}

// IsResolved reports whether the loader has already run.
func (l *Lazy[T]) IsResolved() bool { return l.done.Load() }

// Key returns the source key, or "" for values created with Resolved.
func (l *Lazy[T]) Key() string { return l.key }

// SameSource reports whether l and o read the same key of the same origin.
// Values without an origin never share a source.
func (l *Lazy[T]) SameSource(o *Lazy[T]) bool {
	return l.origin != nil && l.key != "" && l.origin == o.origin && l.key == o.key
}
