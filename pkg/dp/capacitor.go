package dp

import (
	"math"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
)

type Capacitor struct {
	device.Base
	Capacitance *attribute.Attribute[float64]

	equivCond     []complex128
	prevVoltCoeff []complex128
	equivCurrent  []complex128
}

var _ device.Harmonic = (*Capacitor)(nil)

func NewCapacitor(name string, opts ...device.Option) *Capacitor {
	c := &Capacitor{Base: device.NewBase(name, "DP.Capacitor", 2, circuit.Single, opts...)}
	c.Capacitance = attribute.New(c.Attributes(), "C", attribute.ReadWrite, 0.0)
	c.Initialize([]float64{0})
	return c
}

func (c *Capacitor) SetParameters(capacitance float64) {
	c.Capacitance.Set(capacitance)
	c.MarkParametersSet()
}

func (c *Capacitor) Validate() error {
	if err := c.Base.Validate(); err != nil {
		return err
	}
	return device.CheckPositive(c.Name(), "C", c.Capacitance.Get())
}

func (c *Capacitor) Initialize(frequencies []float64) {
	c.Base.Initialize(frequencies)
	c.equivCond = make([]complex128, len(frequencies))
	c.prevVoltCoeff = make([]complex128, len(frequencies))
	c.equivCurrent = make([]complex128, len(frequencies))
}

func (c *Capacitor) InitializeFromNodesAndTerminals(frequency float64) error {
	v := c.InitializeTwoTerminal()
	i := v * complex(0, 2*math.Pi*frequency*c.Capacitance.Get())
	c.SetIntf(0, v, i)
	c.Logger().Debug("initialized from power flow", "v", v, "i", i)
	return nil
}

// discretize sets Y = 2C/dt + j*w*C and the history coefficient
// 2C/dt - j*w*C per tracked frequency.
func (c *Capacitor) discretize(dt float64) error {
	if err := device.CheckTimeStep(c.Name(), dt); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	cval := c.Capacitance.Get()
	for k, f := range c.Frequencies() {
		w := 2 * math.Pi * f
		c.equivCond[k] = complex(2*cval/dt, w*cval)
		c.prevVoltCoeff[k] = complex(2*cval/dt, -w*cval)
	}
	return nil
}

func (c *Capacitor) EquivCond(freqIdx int) complex128 { return c.equivCond[freqIdx] }

func (c *Capacitor) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	if err := c.discretize(dt); err != nil {
		return err
	}
	c.ClearTasks()
	c.AddTask(device.NewPreStep(c, &c.Base), device.NewPostStep(c, &c.Base, left))
	c.InitRightVector(len(left.Get()))
	return nil
}

func (c *Capacitor) MnaApplySystemMatrixStamp(m matrix.DeviceMatrix) {
	for f := 0; f < c.NumFreqs(); f++ {
		device.StampAdmittance(matrix.Stride(m, c.NumFreqs(), f), c.MatrixNodeIndex(0, 0), c.MatrixNodeIndex(1, 0), c.equivCond[f])
	}
}

func (c *Capacitor) MnaApplyRightSideVectorStamp(v matrix.DeviceVector) {
	n0, n1 := c.MatrixNodeIndex(0, 0), c.MatrixNodeIndex(1, 0)
	for f := 0; f < c.NumFreqs(); f++ {
		c.equivCurrent[f] = -c.PrevCurrent(f) - c.prevVoltCoeff[f]*c.PrevVoltage(f)
		device.StampCurrentSource(matrix.StrideVector(v, c.NumFreqs(), f), n0, n1, c.equivCurrent[f])
	}
}

func (c *Capacitor) MnaUpdateVoltage(left matrix.Vector) {
	c.UpdateVoltageAcross(left)
}

func (c *Capacitor) MnaUpdateCurrent(matrix.Vector) {
	vs, is := c.IntfVoltage.Get(), c.IntfCurrent.Get()
	for f := range vs {
		is[f] = c.equivCond[f]*vs[f] + c.equivCurrent[f]
	}
	c.IntfCurrent.Set(is)
}

func (c *Capacitor) MnaInitializeHarm(omega, dt float64, lefts []*attribute.Attribute[[]complex128]) error {
	if err := c.discretize(dt); err != nil {
		return err
	}
	c.ClearTasks()
	c.AddTask(device.NewHarmPreStep(c, &c.Base), device.NewHarmPostStep(c, &c.Base, lefts))
	c.InitRightVector(len(lefts[0].Get()) * c.NumFreqs())
	return nil
}

func (c *Capacitor) MnaApplySystemMatrixStampHarm(m matrix.DeviceMatrix, freqIdx int) {
	device.StampAdmittance(m, c.MatrixNodeIndex(0, 0), c.MatrixNodeIndex(1, 0), c.equivCond[freqIdx])
}

func (c *Capacitor) MnaApplyRightSideVectorStampHarm(v matrix.DeviceVector) {
	c.MnaApplyRightSideVectorStamp(v)
}

func (c *Capacitor) MnaUpdateVoltageHarm(left matrix.Vector, freqIdx int) {
	c.UpdateVoltageAcrossHarm(left, freqIdx)
}

func (c *Capacitor) MnaUpdateCurrentHarm() {
	c.MnaUpdateCurrent(nil)
}

func (c *Capacitor) SteadyStateStamp(m matrix.DeviceMatrix, _ matrix.DeviceVector, omega float64) {
	device.StampAdmittance(m, c.MatrixNodeIndex(0, 0), c.MatrixNodeIndex(1, 0), complex(0, omega*c.Capacitance.Get()))
}
