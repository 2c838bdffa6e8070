package emt

import (
	"fmt"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
	"github.com/edp1096/toy-gridsim/pkg/task"
)

// ControlledVoltageSource imposes the instantaneous phase voltages V_ref
// between its terminals. It adds one branch row per phase.
type ControlledVoltageSource struct {
	device.Base
	VoltageRef *attribute.Attribute[[]float64]

	branch int
}

var (
	_ device.MNA            = (*ControlledVoltageSource)(nil)
	_ circuit.BranchElement = (*ControlledVoltageSource)(nil)
)

func NewControlledVoltageSource(name string, opts ...device.Option) *ControlledVoltageSource {
	s := &ControlledVoltageSource{Base: device.NewBase(name, "EMT.ControlledVoltageSource", 2, circuit.ABC, opts...), branch: -1}
	s.VoltageRef = attribute.New(s.Attributes(), "V_ref", attribute.ReadWrite, make([]float64, 3))
	return s
}

func (s *ControlledVoltageSource) SetParameters(voltageRef []float64) {
	s.VoltageRef.Set(append([]float64(nil), voltageRef...))
	s.MarkParametersSet()
}

func (s *ControlledVoltageSource) BranchCount() int { return s.Phases() }
func (s *ControlledVoltageSource) SetBranchIndex(first int) { s.branch = first }
func (s *ControlledVoltageSource) BranchIndex() int { return s.branch }

func (s *ControlledVoltageSource) Validate() error {
	if err := s.Base.Validate(); err != nil {
		return err
	}
	if n := len(s.VoltageRef.Get()); n != s.Phases() {
		return fmt.Errorf("%s: %d reference values for %d phases: %w", s.Name(), n, s.Phases(), device.ErrInvalidParameter)
	}
	return nil
}

// InitializeFromNodesAndTerminals takes the reference from the steady-state
// solution when no parameters were set.
func (s *ControlledVoltageSource) InitializeFromNodesAndTerminals(float64) error {
	v := phasorsAcross(&s.Base)
	if !s.ParametersSet() {
		ref := make([]float64, len(v))
		for p := range v {
			ref[p] = instantaneous(v[p])
		}
		s.SetParameters(ref)
	}
	return nil
}

func (s *ControlledVoltageSource) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.VoltageRef.Snapshot()
	s.ClearTasks()
	s.AddTask(
		task.NewFunc(s.Name()+".MnaPreStep", func(float64, int) error {
			rv := matrix.Vector(s.RightVector().Get())
			rv.Clear()
			s.MnaApplyRightSideVectorStamp(rv)
			return nil
		}).ReadsPrev(s.VoltageRef).Writes(s.RightVector()),
		device.NewPostStep(s, &s.Base, left),
	)
	s.InitRightVector(len(left.Get()))
	return nil
}

func (s *ControlledVoltageSource) MnaApplySystemMatrixStamp(m matrix.DeviceMatrix) {
	for p := 0; p < s.Phases(); p++ {
		device.StampVoltageSourceBranch(m, s.MatrixNodeIndex(0, p), s.MatrixNodeIndex(1, p), s.branch+p)
	}
}

// MnaApplyRightSideVectorStamp uses the reference as it was at the start of
// the step.
func (s *ControlledVoltageSource) MnaApplyRightSideVectorStamp(v matrix.DeviceVector) {
	for p, ref := range s.VoltageRef.Prev() {
		v.AddRHS(s.branch+p, ref)
	}
}

func (s *ControlledVoltageSource) MnaUpdateVoltage(matrix.Vector) {
	vs := s.IntfVoltage.Get()
	for p, ref := range s.VoltageRef.Prev() {
		vs[p] = complex(ref, 0)
	}
	s.IntfVoltage.Set(vs)
}

func (s *ControlledVoltageSource) MnaUpdateCurrent(left matrix.Vector) {
	is := s.IntfCurrent.Get()
	for p := range is {
		is[p] = complex(real(left.At(s.branch+p)), 0)
	}
	s.IntfCurrent.Set(is)
}
