package dp

import (
	"fmt"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
)

// Switch is a resistor with two values selected by is_closed.
type Switch struct {
	device.Base
	OpenResistance   *attribute.Attribute[float64]
	ClosedResistance *attribute.Attribute[float64]
	Closed           *attribute.Attribute[bool]

	tearIdx int
}

var (
	_ device.MNA         = (*Switch)(nil)
	_ device.Tear        = (*Switch)(nil)
	_ device.Switchable  = (*Switch)(nil)
	_ device.SteadyState = (*Switch)(nil)
)

func NewSwitch(name string, opts ...device.Option) *Switch {
	s := &Switch{Base: device.NewBase(name, "DP.Switch", 2, circuit.Single, opts...), tearIdx: -1}
	s.OpenResistance = attribute.New(s.Attributes(), "R_open", attribute.ReadWrite, 1e9)
	s.ClosedResistance = attribute.New(s.Attributes(), "R_closed", attribute.ReadWrite, 1e-3)
	s.Closed = attribute.New(s.Attributes(), "is_closed", attribute.ReadWrite, false)
	return s
}

func (s *Switch) SetParameters(openResistance, closedResistance float64, closed bool) {
	s.OpenResistance.Set(openResistance)
	s.ClosedResistance.Set(closedResistance)
	s.Closed.Set(closed)
	s.MarkParametersSet()
}

func (s *Switch) Validate() error {
	if err := s.Base.Validate(); err != nil {
		return err
	}
	if err := device.CheckPositive(s.Name(), "R_open", s.OpenResistance.Get()); err != nil {
		return err
	}
	return device.CheckPositive(s.Name(), "R_closed", s.ClosedResistance.Get())
}

func (s *Switch) IsClosed() bool { return s.Closed.Get() }

func (s *Switch) Close(closed bool) {
	if s.Closed.Get() != closed {
		s.Logger().Info("switch state change", "closed", closed)
	}
	s.Closed.Set(closed)
}

func (s *Switch) resistance() float64 {
	if s.Closed.Get() {
		return s.ClosedResistance.Get()
	}
	return s.OpenResistance.Get()
}

func (s *Switch) InitializeFromNodesAndTerminals(float64) error {
	v := s.InitializeTwoTerminal()
	s.SetIntf(0, v, v/complex(s.resistance(), 0))
	return nil
}

func (s *Switch) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.ClearTasks()
	s.AddTask(device.NewPostStep(s, &s.Base, left))
	s.InitRightVector(0)
	return nil
}

func (s *Switch) MnaApplySystemMatrixStamp(m matrix.DeviceMatrix) {
	g := complex(1/s.resistance(), 0)
	for f := 0; f < s.NumFreqs(); f++ {
		device.StampAdmittance(matrix.Stride(m, s.NumFreqs(), f), s.MatrixNodeIndex(0, 0), s.MatrixNodeIndex(1, 0), g)
	}
}

func (s *Switch) MnaApplyRightSideVectorStamp(matrix.DeviceVector) {}

func (s *Switch) MnaUpdateVoltage(left matrix.Vector) {
	s.UpdateVoltageAcross(left)
}

func (s *Switch) MnaUpdateCurrent(matrix.Vector) {
	g := complex(1/s.resistance(), 0)
	vs, is := s.IntfVoltage.Get(), s.IntfCurrent.Get()
	for f := range vs {
		is[f] = g * vs[f]
	}
	s.IntfCurrent.Set(is)
}

func (s *Switch) TearIndex() int { return s.tearIdx }
func (s *Switch) SetTearIndex(idx int) { s.tearIdx = idx }

func (s *Switch) MnaTearInitialize(omega, dt float64) error {
	return s.Validate()
}

func (s *Switch) MnaTearApplyMatrixStamp(m matrix.DeviceMatrix) {
	m.AddComplexElement(s.tearIdx, s.tearIdx, s.resistance(), 0)
}

func (s *Switch) MnaTearApplyVoltageStamp(matrix.DeviceVector) {}

func (s *Switch) MnaTearPostStep(voltage, current complex128) {
	s.SetIntf(0, voltage, voltage/complex(s.resistance(), 0))
}

func (s *Switch) SteadyStateStamp(m matrix.DeviceMatrix, _ matrix.DeviceVector, _ float64) {
	device.StampAdmittance(m, s.MatrixNodeIndex(0, 0), s.MatrixNodeIndex(1, 0), complex(1/s.resistance(), 0))
}

func (s *Switch) String() string {
	state := "open"
	if s.IsClosed() {
		state = "closed"
	}
	return fmt.Sprintf("%s %s R=%g", s.Name(), state, s.resistance())
}
