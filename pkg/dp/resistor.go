// Package dp holds single-phase dynamic-phasor components. Quantities are
// complex envelopes relative to the shift frequencies of the system.
package dp

import (
	"fmt"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
)

type Resistor struct {
	device.Base
	Resistance *attribute.Attribute[float64]

	conductance float64
	tearIdx     int
}

var (
	_ device.Harmonic    = (*Resistor)(nil)
	_ device.Tear        = (*Resistor)(nil)
	_ device.SteadyState = (*Resistor)(nil)
)

func NewResistor(name string, opts ...device.Option) *Resistor {
	r := &Resistor{Base: device.NewBase(name, "DP.Resistor", 2, circuit.Single, opts...), tearIdx: -1}
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

func (r *Resistor) InitializeFromNodesAndTerminals(frequency float64) error {
	if err := device.CheckPositive(r.Name(), "R", r.Resistance.Get()); err != nil {
		return err
	}
	v := r.InitializeTwoTerminal()
	r.SetIntf(0, v, v/complex(r.Resistance.Get(), 0))
	r.Logger().Debug("initialized from power flow", "v", v, "i", r.IntfCurrent.Get()[0])
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
	for f := 0; f < r.NumFreqs(); f++ {
		device.StampAdmittance(matrix.Stride(m, r.NumFreqs(), f), r.MatrixNodeIndex(0, 0), r.MatrixNodeIndex(1, 0), complex(r.conductance, 0))
	}
}

func (r *Resistor) MnaApplyRightSideVectorStamp(matrix.DeviceVector) {}

func (r *Resistor) MnaUpdateVoltage(left matrix.Vector) {
	r.UpdateVoltageAcross(left)
}

func (r *Resistor) MnaUpdateCurrent(matrix.Vector) {
	r.updateCurrent()
}

func (r *Resistor) updateCurrent() {
	vs, is := r.IntfVoltage.Get(), r.IntfCurrent.Get()
	for f := range vs {
		is[f] = vs[f] * complex(r.conductance, 0)
	}
	r.IntfCurrent.Set(is)
}

func (r *Resistor) MnaInitializeHarm(omega, dt float64, lefts []*attribute.Attribute[[]complex128]) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.conductance = 1 / r.Resistance.Get()
	r.ClearTasks()
	r.AddTask(device.NewHarmPostStep(r, &r.Base, lefts))
	r.InitRightVector(0)
	return nil
}

func (r *Resistor) MnaApplySystemMatrixStampHarm(m matrix.DeviceMatrix, freqIdx int) {
	device.StampAdmittance(m, r.MatrixNodeIndex(0, 0), r.MatrixNodeIndex(1, 0), complex(r.conductance, 0))
}

func (r *Resistor) MnaApplyRightSideVectorStampHarm(matrix.DeviceVector) {}

func (r *Resistor) MnaUpdateVoltageHarm(left matrix.Vector, freqIdx int) {
	r.UpdateVoltageAcrossHarm(left, freqIdx)
}

func (r *Resistor) MnaUpdateCurrentHarm() {
	r.updateCurrent()
}

func (r *Resistor) SteadyStateStamp(m matrix.DeviceMatrix, _ matrix.DeviceVector, _ float64) {
	device.StampAdmittance(m, r.MatrixNodeIndex(0, 0), r.MatrixNodeIndex(1, 0), complex(1/r.Resistance.Get(), 0))
}

func (r *Resistor) TearIndex() int { return r.tearIdx }
func (r *Resistor) SetTearIndex(idx int) { r.tearIdx = idx }

func (r *Resistor) MnaTearInitialize(omega, dt float64) error {
	if err := r.Validate(); err != nil {
		return err
	}
	r.conductance = 1 / r.Resistance.Get()
	return nil
}

func (r *Resistor) MnaTearApplyMatrixStamp(m matrix.DeviceMatrix) {
	m.AddComplexElement(r.tearIdx, r.tearIdx, r.Resistance.Get(), 0)
}

func (r *Resistor) MnaTearApplyVoltageStamp(matrix.DeviceVector) {}

func (r *Resistor) MnaTearPostStep(voltage, current complex128) {
	r.SetIntf(0, voltage, voltage*complex(r.conductance, 0))
}

func (r *Resistor) String() string {
	return fmt.Sprintf("%s R=%g", r.Name(), r.Resistance.Get())
}
