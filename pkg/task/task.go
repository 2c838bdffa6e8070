// Package task describes units of per-step work and orders them by the
// attributes they read and write.
package task

import "github.com/edp1096/toy-gridsim/pkg/attribute"

type Task interface {
	Name() string
	// Dependencies are read in the same step and order the task after their writers.
	Dependencies() []attribute.Ref
	Modified() []attribute.Ref
	// PrevStepDependencies are read as they were at the start of the step.
	// They add no ordering edge.
	PrevStepDependencies() []attribute.Ref
	Execute(time float64, step int) error
}

type Base struct {
	name string
	deps []attribute.Ref
	mods []attribute.Ref
	prev []attribute.Ref
}

func NewBase(name string) Base {
	return Base{name: name}
}

func (b *Base) Name() string { return b.name }
func (b *Base) Dependencies() []attribute.Ref { return b.deps }
func (b *Base) Modified() []attribute.Ref { return b.mods }
func (b *Base) PrevStepDependencies() []attribute.Ref { return b.prev }

func (b *Base) AddDependency(refs ...attribute.Ref) { b.deps = append(b.deps, refs...) }
func (b *Base) AddModified(refs ...attribute.Ref) { b.mods = append(b.mods, refs...) }
func (b *Base) AddPrevStepDependency(refs ...attribute.Ref) { b.prev = append(b.prev, refs...) }

// Func adapts a closure to Task.
type Func struct {
	Base
	fn func(time float64, step int) error
}

func NewFunc(name string, fn func(time float64, step int) error) *Func {
	return &Func{Base: NewBase(name), fn: fn}
}

func (f *Func) Reads(refs ...attribute.Ref) *Func {
	f.AddDependency(refs...)
	return f
}

func (f *Func) Writes(refs ...attribute.Ref) *Func {
	f.AddModified(refs...)
	return f
}

func (f *Func) ReadsPrev(refs ...attribute.Ref) *Func {
	f.AddPrevStepDependency(refs...)
	return f
}

func (f *Func) Execute(time float64, step int) error {
	return f.fn(time, step)
}
