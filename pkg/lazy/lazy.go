// Package lazy provides memoized, once-only construction of process wide
// clients such as the database pool and the identity provider client.
//
// Unlike sync.Once, a failed construction is not cached: the next caller
// retries. Concurrent first callers share a single in-flight construction.
package lazy

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Factory builds the value. It receives the context of the caller that
// triggered construction.
type Factory[T any] func(ctx context.Context) (T, error)

// Value is a lazily constructed T
type Value[T any] struct {
	name    string
	factory Factory[T]
	value   atomic.Pointer[T]
	group   singleflight.Group
}

// New returns a Value that calls factory on first use
func New[T any](name string, factory Factory[T]) *Value[T] {
	return &Value[T]{name: name, factory: factory}
}

// Of returns a Value that is already initialized with v
func Of[T any](name string, v T) *Value[T] {
	lv := &Value[T]{name: name}
	lv.value.Store(&v)
	return lv
}

// Get returns the memoized value, constructing it if needed
func (v *Value[T]) Get(ctx context.Context) (T, error) {
	if p := v.value.Load(); p != nil {
		return *p, nil
	}

	result, err, _ := v.group.Do(v.name, func() (interface{}, error) {
		// Another caller may have finished between Load and Do.
		if p := v.value.Load(); p != nil {
			return *p, nil
		}
		built, err := v.factory(ctx)
		if err != nil {
			return nil, err
		}
		v.value.Store(&built)
		return built, nil
	})
	if err != nil {
		var zero T
		return zero, fmt.Errorf("initialize %s: %w", v.name, err)
	}
	return result.(T), nil
}

// Peek returns the value if it has been constructed
func (v *Value[T]) Peek() (T, bool) {
	if p := v.value.Load(); p != nil {
		return *p, true
	}
	var zero T
	return zero, false
}
