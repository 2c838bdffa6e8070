// Package attribute implements named, typed cells owned by a component.
//
// Each attribute keeps two slots: the current value and the value captured at
// the start of the running step. Tasks that depend on the previous step read
// the second slot, which the scheduler refreshes with Snapshot before any
// task of the step runs.
package attribute

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"gonum.org/v1/gonum/mat"
)

var (
	ErrNotFound     = errors.New("attribute not found")
	ErrReadOnly     = errors.New("attribute is read-only")
	ErrKindMismatch = errors.New("attribute kind mismatch")
)

type Flags uint8

const (
	Read Flags = 1 << iota
	Write

	ReadWrite = Read | Write
)

type Type interface {
	float64 | complex128 | int | bool | string | []float64 | []complex128 | *mat.Dense
}

// Ref is the untyped view of an attribute used by the task graph and loggers.
type Ref interface {
	Name() string
	Owner() string
	Kind() Kind
	Flags() Flags
	Value() Value
	Snapshot()
	set(v Value) error
}

type Attribute[T Type] struct {
	name  string
	owner string
	flags Flags

	mu    sync.RWMutex
	cur   T
	start T
}

// New creates an attribute and registers it in store when store is non-nil.
func New[T Type](store *Store, name string, flags Flags, initial T) *Attribute[T] {
	a := &Attribute[T]{name: name, flags: flags, cur: initial, start: clone(initial)}
	if store != nil {
		a.owner = store.owner
		store.Register(a)
	}
	return a
}

func (a *Attribute[T]) Name() string  { return a.name }
func (a *Attribute[T]) Owner() string { return a.owner }
func (a *Attribute[T]) Flags() Flags  { return a.flags }

func (a *Attribute[T]) Kind() Kind {
	var zero T
	return kindOf(any(zero))
}

func (a *Attribute[T]) Get() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.cur
}

// Set is the owner's write path and ignores access flags.
func (a *Attribute[T]) Set(v T) {
	a.mu.Lock()
	a.cur = v
	a.mu.Unlock()
}

// Prev returns the value captured by the last Snapshot.
func (a *Attribute[T]) Prev() T {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.start
}

func (a *Attribute[T]) Snapshot() {
	a.mu.Lock()
	a.start = clone(a.cur)
	a.mu.Unlock()
}

func (a *Attribute[T]) Value() Value {
	return valueOf(any(a.Get()))
}

func (a *Attribute[T]) set(v Value) error {
	if a.flags&Write == 0 {
		return fmt.Errorf("%s.%s: %w", a.owner, a.name, ErrReadOnly)
	}
	if v.Kind != a.Kind() {
		return fmt.Errorf("%s.%s: want %s, got %s: %w", a.owner, a.name, a.Kind(), v.Kind, ErrKindMismatch)
	}
	a.Set(v.Interface().(T))
	return nil
}

func clone[T Type](v T) T {
	switch x := any(v).(type) {
	case []float64:
		return any(slices.Clone(x)).(T)
	case []complex128:
		return any(slices.Clone(x)).(T)
	case *mat.Dense:
		if x == nil {
			return v
		}
		return any(mat.DenseCopyOf(x)).(T)
	}
	return v
}
