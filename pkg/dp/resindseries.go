package dp

import (
	"math"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
)

// ResIndSeries is a series R-L branch discretized with the trapezoidal rule
// per tracked frequency. Only the inductance enters the companion model; R is
// kept as a parameter.
type ResIndSeries struct {
	device.Base
	Resistance *attribute.Attribute[float64]
	Inductance *attribute.Attribute[float64]

	equivCond    []complex128
	prevCurrFac  []complex128
	equivCurrent []complex128
	tearIdx      int
}

var (
	_ device.Harmonic = (*ResIndSeries)(nil)
	_ device.Tear     = (*ResIndSeries)(nil)
)

func NewResIndSeries(name string, opts ...device.Option) *ResIndSeries {
	r := &ResIndSeries{Base: device.NewBase(name, "DP.ResIndSeries", 2, circuit.Single, opts...), tearIdx: -1}
	r.Inductance = attribute.New(r.Attributes(), "L", attribute.ReadWrite, 0.0)
	r.Resistance = attribute.New(r.Attributes(), "R", attribute.ReadWrite, 0.0)
	r.Initialize([]float64{0})
	return r
}

func (r *ResIndSeries) SetParameters(resistance, inductance float64) {
	r.Resistance.Set(resistance)
	r.Inductance.Set(inductance)
	r.MarkParametersSet()
}

func (r *ResIndSeries) Validate() error {
	if err := r.Base.Validate(); err != nil {
		return err
	}
	return device.CheckPositive(r.Name(), "L", r.Inductance.Get())
}

func (r *ResIndSeries) Initialize(frequencies []float64) {
	r.Base.Initialize(frequencies)
	r.equivCond = make([]complex128, len(frequencies))
	r.prevCurrFac = make([]complex128, len(frequencies))
	r.equivCurrent = make([]complex128, len(frequencies))
}

func (r *ResIndSeries) InitializeFromNodesAndTerminals(frequency float64) error {
	if err := device.CheckPositive(r.Name(), "L", r.Inductance.Get()); err != nil {
		return err
	}
	v := r.InitializeTwoTerminal()
	impedance := complex(0, 2*math.Pi*frequency*r.Inductance.Get())
	r.SetIntf(0, v, v/impedance)
	r.Logger().Debug("initialized from power flow", "v", v, "i", v/impedance)
	return nil
}

// discretize computes, per tracked frequency f_k with a = dt/(2L) and
// b = dt*2*pi*f_k/2,
//
//	Y = a/(1+b^2) - j*a*b/(1+b^2)
//	F = (1-b^2)/(1+b^2) - j*2b/(1+b^2)
func (r *ResIndSeries) discretize(dt float64) error {
	if err := device.CheckTimeStep(r.Name(), dt); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if r.Resistance.Get() != 0 {
		r.Logger().Warn("series resistance is not part of the companion model", "R", r.Resistance.Get())
	}
	l := r.Inductance.Get()
	for k, f := range r.Frequencies() {
		a := dt / (2 * l)
		b := dt * 2 * math.Pi * f / 2
		den := 1 + b*b
		r.equivCond[k] = complex(a/den, -a*b/den)
		r.prevCurrFac[k] = complex((1-b*b)/den, -2*b/den)
	}
	return nil
}

func (r *ResIndSeries) EquivCond(freqIdx int) complex128 { return r.equivCond[freqIdx] }
func (r *ResIndSeries) PrevCurrFac(freqIdx int) complex128 { return r.prevCurrFac[freqIdx] }
func (r *ResIndSeries) EquivCurrent(freqIdx int) complex128 { return r.equivCurrent[freqIdx] }

func (r *ResIndSeries) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	if err := r.discretize(dt); err != nil {
		return err
	}
	r.ClearTasks()
	r.AddTask(device.NewPreStep(r, &r.Base), device.NewPostStep(r, &r.Base, left))
	r.InitRightVector(len(left.Get()))
	r.Logger().Debug("mna initialized", "Y", r.equivCond, "F", r.prevCurrFac)
	return nil
}

func (r *ResIndSeries) MnaApplySystemMatrixStamp(m matrix.DeviceMatrix) {
	n0, n1 := r.MatrixNodeIndex(0, 0), r.MatrixNodeIndex(1, 0)
	for f := 0; f < r.NumFreqs(); f++ {
		device.StampAdmittance(matrix.Stride(m, r.NumFreqs(), f), n0, n1, r.equivCond[f])
	}
}

// updateEquivCurrent evaluates I_eq = Y*v + F*i from the step-start
// interface quantities.
func (r *ResIndSeries) updateEquivCurrent() {
	for f := range r.equivCurrent {
		r.equivCurrent[f] = r.equivCond[f]*r.PrevVoltage(f) + r.prevCurrFac[f]*r.PrevCurrent(f)
	}
}

func (r *ResIndSeries) MnaApplyRightSideVectorStamp(v matrix.DeviceVector) {
	r.updateEquivCurrent()
	n0, n1 := r.MatrixNodeIndex(0, 0), r.MatrixNodeIndex(1, 0)
	for f := 0; f < r.NumFreqs(); f++ {
		device.StampCurrentSource(matrix.StrideVector(v, r.NumFreqs(), f), n0, n1, r.equivCurrent[f])
	}
}

func (r *ResIndSeries) MnaUpdateVoltage(left matrix.Vector) {
	r.UpdateVoltageAcross(left)
}

func (r *ResIndSeries) MnaUpdateCurrent(matrix.Vector) {
	r.updateCurrent()
}

func (r *ResIndSeries) updateCurrent() {
	vs, is := r.IntfVoltage.Get(), r.IntfCurrent.Get()
	for f := range vs {
		is[f] = r.equivCond[f]*vs[f] + r.equivCurrent[f]
	}
	r.IntfCurrent.Set(is)
}

func (r *ResIndSeries) MnaInitializeHarm(omega, dt float64, lefts []*attribute.Attribute[[]complex128]) error {
	if err := r.discretize(dt); err != nil {
		return err
	}
	r.ClearTasks()
	r.AddTask(device.NewHarmPreStep(r, &r.Base), device.NewHarmPostStep(r, &r.Base, lefts))
	r.InitRightVector(len(lefts[0].Get()) * r.NumFreqs())
	return nil
}

func (r *ResIndSeries) MnaApplySystemMatrixStampHarm(m matrix.DeviceMatrix, freqIdx int) {
	device.StampAdmittance(m, r.MatrixNodeIndex(0, 0), r.MatrixNodeIndex(1, 0), r.equivCond[freqIdx])
}

func (r *ResIndSeries) MnaApplyRightSideVectorStampHarm(v matrix.DeviceVector) {
	r.MnaApplyRightSideVectorStamp(v)
}

func (r *ResIndSeries) MnaUpdateVoltageHarm(left matrix.Vector, freqIdx int) {
	r.UpdateVoltageAcrossHarm(left, freqIdx)
}

func (r *ResIndSeries) MnaUpdateCurrentHarm() {
	r.updateCurrent()
}

// SteadyStateStamp uses the inductive reactance only, as the transient
// stamp does.
func (r *ResIndSeries) SteadyStateStamp(m matrix.DeviceMatrix, _ matrix.DeviceVector, omega float64) {
	y := 1 / complex(0, omega*r.Inductance.Get())
	device.StampAdmittance(m, r.MatrixNodeIndex(0, 0), r.MatrixNodeIndex(1, 0), y)
}

func (r *ResIndSeries) TearIndex() int { return r.tearIdx }
func (r *ResIndSeries) SetTearIndex(idx int) { r.tearIdx = idx }

func (r *ResIndSeries) MnaTearInitialize(omega, dt float64) error {
	return r.discretize(dt)
}

func (r *ResIndSeries) MnaTearApplyMatrixStamp(m matrix.DeviceMatrix) {
	z := 1 / r.equivCond[0]
	m.AddComplexElement(r.tearIdx, r.tearIdx, real(z), imag(z))
}

func (r *ResIndSeries) MnaTearApplyVoltageStamp(v matrix.DeviceVector) {
	r.equivCurrent[0] = r.equivCond[0]*r.PrevVoltage(0) + r.prevCurrFac[0]*r.PrevCurrent(0)
	e := r.equivCurrent[0] / r.equivCond[0]
	v.AddComplexRHS(r.tearIdx, real(e), imag(e))
}

// MnaTearPostStep takes the branch voltage from the tear solution. The
// current follows from the companion model.
func (r *ResIndSeries) MnaTearPostStep(voltage, current complex128) {
	r.SetIntf(0, voltage, r.equivCond[0]*voltage+r.equivCurrent[0])
}
