// Package emt holds three-phase electromagnetic-transient components. Values
// are instantaneous phase quantities solved in a real system; node phasors
// from the steady-state solution are per-phase RMS values.
package emt

import (
	"fmt"
	"math"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
)

// instantaneous is the value at t = 0 of the sinusoid with RMS phasor v.
func instantaneous(v complex128) float64 {
	return math.Sqrt2 * real(v)
}

// phasorsAcross returns v(t1) - v(t0) per phase from the node initial
// voltages and sets the interface voltage to the matching instantaneous
// values.
func phasorsAcross(b *device.Base) []complex128 {
	out := make([]complex128, b.Phases())
	vs := b.IntfVoltage.Get()
	for p := range out {
		out[p] = b.InitialVoltage(1, p) - b.InitialVoltage(0, p)
		vs[p] = complex(instantaneous(out[p]), 0)
	}
	b.IntfVoltage.Set(vs)
	return out
}

func updateVoltageAcross(b *device.Base, left matrix.Vector) {
	vs := b.IntfVoltage.Get()
	for p := range vs {
		v := device.VoltageAcross(left, b.MatrixNodeIndex(0, p), b.MatrixNodeIndex(1, p))
		vs[p] = complex(real(v), 0)
	}
	b.IntfVoltage.Set(vs)
}

func stampConductance(b *device.Base, m matrix.DeviceMatrix, g float64) {
	for p := 0; p < b.Phases(); p++ {
		device.StampConductance(m, b.MatrixNodeIndex(0, p), b.MatrixNodeIndex(1, p), g)
	}
}

type Resistor struct {
	device.Base
	Resistance *attribute.Attribute[float64]

	conductance float64
}

var _ device.MNA = (*Resistor)(nil)

func NewResistor(name string, opts ...device.Option) *Resistor {
	r := &Resistor{Base: device.NewBase(name, "EMT.Resistor", 2, circuit.ABC, opts...)}
	r.Resistance = attribute.New(r.Attributes(), "R", attribute.ReadWrite, 0.0)
	return r
}

func (r *Resistor) SetParameters(resistance float64) {
	r.Resistance.Set(resistance)
	r.MarkParametersSet()
}

func (r *Resistor) Validate() error {
	if err := r.Base.Validate(); err != nil {
		return err
	}
	return device.CheckPositive(r.Name(), "R", r.Resistance.Get())
}

func (r *Resistor) InitializeFromNodesAndTerminals(float64) error {
	if err := device.CheckPositive(r.Name(), "R", r.Resistance.Get()); err != nil {
		return err
	}
	v := phasorsAcross(&r.Base)
	is := r.IntfCurrent.Get()
	for p := range is {
		is[p] = complex(instantaneous(v[p])/r.Resistance.Get(), 0)
	}
	r.IntfCurrent.Set(is)
	return nil
}

func (r *Resistor) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.conductance = 1 / r.Resistance.Get()
	r.ClearTasks()
	r.AddTask(device.NewPostStep(r, &r.Base, left))
	r.InitRightVector(0)
	return nil
}

func (r *Resistor) MnaApplySystemMatrixStamp(m matrix.DeviceMatrix) {
	stampConductance(&r.Base, m, r.conductance)
}

func (r *Resistor) MnaApplyRightSideVectorStamp(matrix.DeviceVector) {}

func (r *Resistor) MnaUpdateVoltage(left matrix.Vector) {
	updateVoltageAcross(&r.Base, left)
}

func (r *Resistor) MnaUpdateCurrent(matrix.Vector) {
	vs, is := r.IntfVoltage.Get(), r.IntfCurrent.Get()
	for p := range vs {
		is[p] = vs[p] * complex(r.conductance, 0)
	}
	r.IntfCurrent.Set(is)
}

func (r *Resistor) String() string {
	return fmt.Sprintf("%s R=%g", r.Name(), r.Resistance.Get())
}
