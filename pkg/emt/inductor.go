package emt

import (
	"math"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
)

// Inductor uses the trapezoidal companion G = dt/(2L), I_eq = G*v + i.
type Inductor struct {
	device.Base
	Inductance *attribute.Attribute[float64]

	equivCond    float64
	equivCurrent [3]float64
}

var _ device.MNA = (*Inductor)(nil)

func NewInductor(name string, opts ...device.Option) *Inductor {
	l := &Inductor{Base: device.NewBase(name, "EMT.Inductor", 2, circuit.ABC, opts...)}
	l.Inductance = attribute.New(l.Attributes(), "L", attribute.ReadWrite, 0.0)
	return l
}

func (l *Inductor) SetParameters(inductance float64) {
	l.Inductance.Set(inductance)
	l.MarkParametersSet()
}

func (l *Inductor) Validate() error {
	if err := l.Base.Validate(); err != nil {
		return err
	}
	return device.CheckPositive(l.Name(), "L", l.Inductance.Get())
}

func (l *Inductor) InitializeFromNodesAndTerminals(frequency float64) error {
	if err := device.CheckPositive(l.Name(), "L", l.Inductance.Get()); err != nil {
		return err
	}
	v := phasorsAcross(&l.Base)
	z := complex(0, 2*math.Pi*frequency*l.Inductance.Get())
	is := l.IntfCurrent.Get()
	for p := range is {
		is[p] = complex(instantaneous(v[p]/z), 0)
	}
	l.IntfCurrent.Set(is)
	l.Logger().Debug("initialized from power flow", "v", v[0], "i", v[0]/z)
	return nil
}

func (l *Inductor) EquivCond() float64 { return l.equivCond }

func (l *Inductor) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	if err := device.CheckTimeStep(l.Name(), dt); err != nil {
		return err
	}
	if err := l.Validate(); err != nil {
		return err
	}
	l.equivCond = dt / (2 * l.Inductance.Get())
	l.ClearTasks()
	l.AddTask(device.NewPreStep(l, &l.Base), device.NewPostStep(l, &l.Base, left))
	l.InitRightVector(len(left.Get()))
	return nil
}

func (l *Inductor) MnaApplySystemMatrixStamp(m matrix.DeviceMatrix) {
	stampConductance(&l.Base, m, l.equivCond)
}

func (l *Inductor) MnaApplyRightSideVectorStamp(v matrix.DeviceVector) {
	for p := 0; p < l.Phases(); p++ {
		l.equivCurrent[p] = l.equivCond*real(l.PrevVoltage(p)) + real(l.PrevCurrent(p))
		device.StampRealCurrentSource(v, l.MatrixNodeIndex(0, p), l.MatrixNodeIndex(1, p), l.equivCurrent[p])
	}
}

func (l *Inductor) MnaUpdateVoltage(left matrix.Vector) {
	updateVoltageAcross(&l.Base, left)
}

func (l *Inductor) MnaUpdateCurrent(matrix.Vector) {
	vs, is := l.IntfVoltage.Get(), l.IntfCurrent.Get()
	for p := range vs {
		is[p] = complex(l.equivCond*real(vs[p])+l.equivCurrent[p], 0)
	}
	l.IntfCurrent.Set(is)
}
