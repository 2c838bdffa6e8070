package emt

import (
	"math"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
)

// Capacitor uses the trapezoidal companion G = 2C/dt, I_eq = -G*v - i.
type Capacitor struct {
	device.Base
	Capacitance *attribute.Attribute[float64]

	equivCond    float64
	equivCurrent [3]float64
}

var _ device.MNA = (*Capacitor)(nil)

func NewCapacitor(name string, opts ...device.Option) *Capacitor {
	c := &Capacitor{Base: device.NewBase(name, "EMT.Capacitor", 2, circuit.ABC, opts...)}
	c.Capacitance = attribute.New(c.Attributes(), "C", attribute.ReadWrite, 0.0)
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

func (c *Capacitor) InitializeFromNodesAndTerminals(frequency float64) error {
	v := phasorsAcross(&c.Base)
	y := complex(0, 2*math.Pi*frequency*c.Capacitance.Get())
	is := c.IntfCurrent.Get()
	for p := range is {
		is[p] = complex(instantaneous(v[p]*y), 0)
	}
	c.IntfCurrent.Set(is)
	return nil
}

func (c *Capacitor) EquivCond() float64 { return c.equivCond }

func (c *Capacitor) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	if err := device.CheckTimeStep(c.Name(), dt); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	c.equivCond = 2 * c.Capacitance.Get() / dt
	c.ClearTasks()
	c.AddTask(device.NewPreStep(c, &c.Base), device.NewPostStep(c, &c.Base, left))
	c.InitRightVector(len(left.Get()))
	return nil
}

func (c *Capacitor) MnaApplySystemMatrixStamp(m matrix.DeviceMatrix) {
	stampConductance(&c.Base, m, c.equivCond)
}

func (c *Capacitor) MnaApplyRightSideVectorStamp(v matrix.DeviceVector) {
	for p := 0; p < c.Phases(); p++ {
		c.equivCurrent[p] = -c.equivCond*real(c.PrevVoltage(p)) - real(c.PrevCurrent(p))
		device.StampRealCurrentSource(v, c.MatrixNodeIndex(0, p), c.MatrixNodeIndex(1, p), c.equivCurrent[p])
	}
}

func (c *Capacitor) MnaUpdateVoltage(left matrix.Vector) {
	updateVoltageAcross(&c.Base, left)
}

func (c *Capacitor) MnaUpdateCurrent(matrix.Vector) {
	vs, is := c.IntfVoltage.Get(), c.IntfCurrent.Get()
	for p := range vs {
		is[p] = complex(c.equivCond*real(vs[p])+c.equivCurrent[p], 0)
	}
	c.IntfCurrent.Set(is)
}
