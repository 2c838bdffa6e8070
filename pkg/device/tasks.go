package device

import (
	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
	"github.com/edp1096/toy-gridsim/pkg/task"
)

// NewPreStep restamps the right vector of c from previous-step state. The
// interface quantities of c are read from their step-start slot.
func NewPreStep(c MNA, b *Base, prev ...attribute.Ref) task.Task {
	prev = append([]attribute.Ref{b.IntfVoltage, b.IntfCurrent}, prev...)
	return task.NewFunc(c.Name()+".MnaPreStep", func(float64, int) error {
		rv := matrix.Vector(c.RightVector().Get())
		rv.Clear()
		c.MnaApplyRightSideVectorStamp(rv)
		return nil
	}).ReadsPrev(prev...).Writes(c.RightVector())
}

// NewPostStep reads the solution and writes the interface quantities of c.
func NewPostStep(c MNA, b *Base, left *attribute.Attribute[[]complex128], modified ...attribute.Ref) task.Task {
	modified = append([]attribute.Ref{b.IntfVoltage, b.IntfCurrent}, modified...)
	return task.NewFunc(c.Name()+".MnaPostStep", func(float64, int) error {
		x := matrix.Vector(left.Get())
		c.MnaUpdateVoltage(x)
		c.MnaUpdateCurrent(x)
		return nil
	}).Reads(left).Writes(modified...)
}

// NewHarmPreStep is NewPreStep for components solved in harmonic mode.
func NewHarmPreStep(c Harmonic, b *Base, prev ...attribute.Ref) task.Task {
	prev = append([]attribute.Ref{b.IntfVoltage, b.IntfCurrent}, prev...)
	return task.NewFunc(c.Name()+".MnaPreStepHarm", func(float64, int) error {
		rv := matrix.Vector(c.RightVector().Get())
		rv.Clear()
		c.MnaApplyRightSideVectorStampHarm(rv)
		return nil
	}).ReadsPrev(prev...).Writes(c.RightVector())
}

// NewHarmPostStep reads one solution per frequency.
func NewHarmPostStep(c Harmonic, b *Base, lefts []*attribute.Attribute[[]complex128]) task.Task {
	refs := make([]attribute.Ref, len(lefts))
	for i, l := range lefts {
		refs[i] = l
	}
	return task.NewFunc(c.Name()+".MnaPostStepHarm", func(float64, int) error {
		for f, l := range lefts {
			c.MnaUpdateVoltageHarm(matrix.Vector(l.Get()), f)
		}
		c.MnaUpdateCurrentHarm()
		return nil
	}).Reads(refs...).Writes(b.IntfVoltage, b.IntfCurrent)
}
