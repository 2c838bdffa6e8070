package dp

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
	"github.com/edp1096/toy-gridsim/pkg/task"
)

// VoltageSource is an ideal source between its terminals. It adds one
// branch row whose unknown is the current entering terminal 1.
type VoltageSource struct {
	device.Base
	VoltageRef *attribute.Attribute[complex128]
	SrcFreq    *attribute.Attribute[float64]

	harmonics  []complex128
	systemFreq float64
	branch     int
	voltage    []complex128
}

var (
	_ device.Harmonic       = (*VoltageSource)(nil)
	_ circuit.BranchElement = (*VoltageSource)(nil)
)

func NewVoltageSource(name string, opts ...device.Option) *VoltageSource {
	s := &VoltageSource{Base: device.NewBase(name, "DP.VoltageSource", 2, circuit.Single, opts...), branch: -1}
	s.VoltageRef = attribute.New(s.Attributes(), "V_ref", attribute.ReadWrite, complex128(0))
	s.SrcFreq = attribute.New(s.Attributes(), "f_src", attribute.ReadWrite, -1.0)
	s.Initialize([]float64{0})
	return s
}

// SetParameters sets the phasor and its frequency. A negative srcFreq means
// the system frequency.
func (s *VoltageSource) SetParameters(voltageRef complex128, srcFreq float64) {
	s.VoltageRef.Set(voltageRef)
	s.SrcFreq.Set(srcFreq)
	s.MarkParametersSet()
}

// SetHarmonicParameters sets one phasor per tracked frequency.
func (s *VoltageSource) SetHarmonicParameters(phasors []complex128) {
	s.harmonics = append([]complex128(nil), phasors...)
	if len(phasors) > 0 {
		s.VoltageRef.Set(phasors[0])
	}
	s.MarkParametersSet()
}

func (s *VoltageSource) BranchCount() int { return 1 }
func (s *VoltageSource) SetBranchIndex(first int) { s.branch = first }
func (s *VoltageSource) BranchIndex() int { return s.branch }

func (s *VoltageSource) Initialize(frequencies []float64) {
	s.Base.Initialize(frequencies)
	s.voltage = make([]complex128, len(frequencies))
}

func (s *VoltageSource) Validate() error {
	if err := s.Base.Validate(); err != nil {
		return err
	}
	if s.harmonics != nil && len(s.harmonics) != s.NumFreqs() {
		return fmt.Errorf("%s: %d harmonic phasors for %d frequencies: %w", s.Name(), len(s.harmonics), s.NumFreqs(), device.ErrInvalidParameter)
	}
	return nil
}

// InitializeFromNodesAndTerminals takes the reference from the steady-state
// solution when no parameters were set.
func (s *VoltageSource) InitializeFromNodesAndTerminals(frequency float64) error {
	if !s.ParametersSet() {
		s.SetParameters(s.InitialSingleVoltage(1)-s.InitialSingleVoltage(0), -1)
		s.Logger().Info("voltage reference from power flow", "V_ref", s.VoltageRef.Get())
	}
	vs := s.IntfVoltage.Get()
	vs[0] = s.VoltageRef.Get()
	s.IntfVoltage.Set(vs)
	return nil
}

func (s *VoltageSource) phasor(freqIdx int, time float64) complex128 {
	if s.harmonics != nil {
		return s.harmonics[freqIdx]
	}
	if freqIdx != 0 {
		return 0
	}
	v := s.VoltageRef.Prev()
	if f := s.SrcFreq.Get(); f >= 0 && f != s.systemFreq {
		v *= cmplx.Rect(1, 2*math.Pi*(f-s.systemFreq)*time)
	}
	return v
}

func (s *VoltageSource) updateVoltage(time float64) {
	for f := range s.voltage {
		s.voltage[f] = s.phasor(f, time)
	}
}

func (s *VoltageSource) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.systemFreq = omega / (2 * math.Pi)
	s.VoltageRef.Snapshot()
	s.updateVoltage(0)
	s.ClearTasks()
	s.AddTask(
		task.NewFunc(s.Name()+".MnaPreStep", func(time float64, _ int) error {
			s.updateVoltage(time)
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

func (s *VoltageSource) MnaApplySystemMatrixStamp(m matrix.DeviceMatrix) {
	for f := 0; f < s.NumFreqs(); f++ {
		device.StampVoltageSourceBranch(matrix.Stride(m, s.NumFreqs(), f), s.MatrixNodeIndex(0, 0), s.MatrixNodeIndex(1, 0), s.branch)
	}
}

func (s *VoltageSource) MnaApplyRightSideVectorStamp(v matrix.DeviceVector) {
	for f := 0; f < s.NumFreqs(); f++ {
		matrix.StrideVector(v, s.NumFreqs(), f).AddComplexRHS(s.branch, real(s.voltage[f]), imag(s.voltage[f]))
	}
}

func (s *VoltageSource) MnaUpdateVoltage(matrix.Vector) {
	s.IntfVoltage.Set(append([]complex128(nil), s.voltage...))
}

func (s *VoltageSource) MnaUpdateCurrent(left matrix.Vector) {
	is := s.IntfCurrent.Get()
	for f := range is {
		is[f] = left.Frequency(s.NumFreqs(), f).At(s.branch)
	}
	s.IntfCurrent.Set(is)
}

func (s *VoltageSource) MnaInitializeHarm(omega, dt float64, lefts []*attribute.Attribute[[]complex128]) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.systemFreq = omega / (2 * math.Pi)
	s.VoltageRef.Snapshot()
	s.updateVoltage(0)
	s.ClearTasks()
	s.AddTask(
		task.NewFunc(s.Name()+".MnaPreStepHarm", func(time float64, _ int) error {
			s.updateVoltage(time)
			rv := matrix.Vector(s.RightVector().Get())
			rv.Clear()
			s.MnaApplyRightSideVectorStampHarm(rv)
			return nil
		}).ReadsPrev(s.VoltageRef).Writes(s.RightVector()),
		device.NewHarmPostStep(s, &s.Base, lefts),
	)
	s.InitRightVector(len(lefts[0].Get()) * s.NumFreqs())
	return nil
}

func (s *VoltageSource) MnaApplySystemMatrixStampHarm(m matrix.DeviceMatrix, freqIdx int) {
	device.StampVoltageSourceBranch(m, s.MatrixNodeIndex(0, 0), s.MatrixNodeIndex(1, 0), s.branch)
}

func (s *VoltageSource) MnaApplyRightSideVectorStampHarm(v matrix.DeviceVector) {
	s.MnaApplyRightSideVectorStamp(v)
}

func (s *VoltageSource) MnaUpdateVoltageHarm(left matrix.Vector, freqIdx int) {
	vs, is := s.IntfVoltage.Get(), s.IntfCurrent.Get()
	vs[freqIdx] = s.voltage[freqIdx]
	is[freqIdx] = left.At(s.branch)
	s.IntfVoltage.Set(vs)
	s.IntfCurrent.Set(is)
}

func (s *VoltageSource) MnaUpdateCurrentHarm() {}

func (s *VoltageSource) SteadyStateStamp(m matrix.DeviceMatrix, v matrix.DeviceVector, _ float64) {
	device.StampVoltageSourceBranch(m, s.MatrixNodeIndex(0, 0), s.MatrixNodeIndex(1, 0), s.branch)
	ref := s.VoltageRef.Get()
	v.AddComplexRHS(s.branch, real(ref), imag(ref))
}

type CurrentSource struct {
	device.Base
	CurrentRef *attribute.Attribute[complex128]
}

var _ device.MNA = (*CurrentSource)(nil)

func NewCurrentSource(name string, opts ...device.Option) *CurrentSource {
	s := &CurrentSource{Base: device.NewBase(name, "DP.CurrentSource", 2, circuit.Single, opts...)}
	s.CurrentRef = attribute.New(s.Attributes(), "I_ref", attribute.ReadWrite, complex128(0))
	return s
}

func (s *CurrentSource) SetParameters(currentRef complex128) {
	s.CurrentRef.Set(currentRef)
	s.MarkParametersSet()
}

func (s *CurrentSource) InitializeFromNodesAndTerminals(float64) error {
	v := s.InitializeTwoTerminal()
	s.SetIntf(0, v, s.CurrentRef.Get())
	return nil
}

func (s *CurrentSource) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.CurrentRef.Snapshot()
	s.ClearTasks()
	s.AddTask(device.NewPreStep(s, &s.Base, s.CurrentRef), device.NewPostStep(s, &s.Base, left))
	s.InitRightVector(len(left.Get()))
	return nil
}

func (s *CurrentSource) MnaApplySystemMatrixStamp(matrix.DeviceMatrix) {}

// MnaApplyRightSideVectorStamp drives I_ref from terminal 0 into terminal 1.
func (s *CurrentSource) MnaApplyRightSideVectorStamp(v matrix.DeviceVector) {
	device.StampCurrentSource(v, s.MatrixNodeIndex(1, 0), s.MatrixNodeIndex(0, 0), s.CurrentRef.Prev())
}

func (s *CurrentSource) MnaUpdateVoltage(left matrix.Vector) {
	s.UpdateVoltageAcross(left)
}

func (s *CurrentSource) MnaUpdateCurrent(matrix.Vector) {
	is := s.IntfCurrent.Get()
	is[0] = s.CurrentRef.Prev()
	s.IntfCurrent.Set(is)
}

func (s *CurrentSource) SteadyStateStamp(_ matrix.DeviceMatrix, v matrix.DeviceVector, _ float64) {
	device.StampCurrentSource(v, s.MatrixNodeIndex(1, 0), s.MatrixNodeIndex(0, 0), s.CurrentRef.Get())
}
