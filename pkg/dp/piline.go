package dp

import (
	"math"
	"strconv"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
	"github.com/edp1096/toy-gridsim/pkg/task"
)

// PiLine is a series R-L branch with half of the shunt capacitance and
// conductance at each end. The series resistor and inductor meet at one
// virtual node.
type PiLine struct {
	device.Base
	SeriesRes    *attribute.Attribute[float64]
	SeriesInd    *attribute.Attribute[float64]
	ParallelCap  *attribute.Attribute[float64]
	ParallelCond *attribute.Attribute[float64]

	seriesResistor *Resistor
	seriesInductor *ResIndSeries
	shunts         []device.MNA
}

var (
	_ device.Harmonic    = (*PiLine)(nil)
	_ device.SteadyState = (*PiLine)(nil)
)

func NewPiLine(name string, opts ...device.Option) *PiLine {
	p := &PiLine{Base: device.NewBase(name, "DP.PiLine", 2, circuit.Single, opts...)}
	p.SeriesRes = attribute.New(p.Attributes(), "R_series", attribute.ReadWrite, 0.0)
	p.SeriesInd = attribute.New(p.Attributes(), "L_series", attribute.ReadWrite, 0.0)
	p.ParallelCap = attribute.New(p.Attributes(), "C_parallel", attribute.ReadWrite, 0.0)
	p.ParallelCond = attribute.New(p.Attributes(), "G_parallel", attribute.ReadWrite, 0.0)
	p.AddVirtualNode(circuit.Single)
	return p
}

func (p *PiLine) SetParameters(seriesResistance, seriesInductance, parallelCapacitance, parallelConductance float64) {
	p.SeriesRes.Set(seriesResistance)
	p.SeriesInd.Set(seriesInductance)
	p.ParallelCap.Set(parallelCapacitance)
	p.ParallelCond.Set(parallelConductance)
	p.MarkParametersSet()
}

func (p *PiLine) Validate() error {
	if err := p.Base.Validate(); err != nil {
		return err
	}
	if err := device.CheckPositive(p.Name(), "R_series", p.SeriesRes.Get()); err != nil {
		return err
	}
	return device.CheckPositive(p.Name(), "L_series", p.SeriesInd.Get())
}

func (p *PiLine) SeriesInductor() *ResIndSeries { return p.seriesInductor }

func (p *PiLine) subComponents() []device.MNA {
	return append([]device.MNA{p.seriesResistor, p.seriesInductor}, p.shunts...)
}

func (p *PiLine) InitializeFromNodesAndTerminals(frequency float64) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r, l := p.SeriesRes.Get(), p.SeriesInd.Get()
	v := p.InitializeTwoTerminal()
	i := v / complex(r, 2*math.Pi*frequency*l)
	p.SetIntf(0, v, i)

	vn := p.VirtualNode(0)
	if err := vn.SetInitialVoltage(p.InitialSingleVoltage(0) + i*complex(r, 0)); err != nil {
		return err
	}

	n0, n1 := p.Terminal(0).Node(), p.Terminal(1).Node()
	gnd := circuit.NewGround(circuit.Single)
	opts := p.ChildOptions()

	p.ClearSubComponents()
	p.shunts = nil

	p.seriesResistor = NewResistor(p.Name()+"_res", opts...)
	p.seriesResistor.SetParameters(r)
	if err := p.seriesResistor.Connect(n0, vn); err != nil {
		return err
	}
	p.seriesInductor = NewResIndSeries(p.Name()+"_ind", opts...)
	p.seriesInductor.SetParameters(0, l)
	if err := p.seriesInductor.Connect(vn, n1); err != nil {
		return err
	}

	if c := p.ParallelCap.Get(); c > 0 {
		for k, n := range []*circuit.Node{n0, n1} {
			cp := NewCapacitor(p.Name()+"_cap"+strconv.Itoa(k), opts...)
			cp.SetParameters(c / 2)
			if err := cp.Connect(gnd, n); err != nil {
				return err
			}
			p.shunts = append(p.shunts, cp)
		}
	}
	if g := p.ParallelCond.Get(); g > 0 {
		for k, n := range []*circuit.Node{n0, n1} {
			rp := NewResistor(p.Name()+"_con"+strconv.Itoa(k), opts...)
			rp.SetParameters(2 / g)
			if err := rp.Connect(gnd, n); err != nil {
				return err
			}
			p.shunts = append(p.shunts, rp)
		}
	}

	for _, sub := range p.subComponents() {
		p.AddSubComponent(sub)
		sub.Initialize(p.Frequencies())
		if err := sub.InitializeFromNodesAndTerminals(frequency); err != nil {
			return err
		}
	}
	p.Logger().Debug("initialized from power flow", "v", v, "i", i, "v_virtual", vn.InitialSingleVoltage())
	return nil
}

func (p *PiLine) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	p.ClearTasks()
	for _, sub := range p.subComponents() {
		if err := sub.MnaInitialize(omega, dt, left); err != nil {
			return err
		}
		p.AddTask(sub.MnaTasks()...)
	}
	p.AddTask(p.postStep(left))
	p.InitRightVector(0)
	return nil
}

// postStep takes the line current from the series inductor once it is
// updated.
func (p *PiLine) postStep(lefts ...*attribute.Attribute[[]complex128]) task.Task {
	reads := []attribute.Ref{p.seriesInductor.IntfCurrent}
	for _, l := range lefts {
		reads = append(reads, l)
	}
	return task.NewFunc(p.Name()+".MnaPostStep", func(float64, int) error {
		if len(lefts) == 1 {
			p.MnaUpdateVoltage(lefts[0].Get())
		} else {
			for f, l := range lefts {
				p.MnaUpdateVoltageHarm(l.Get(), f)
			}
		}
		p.MnaUpdateCurrent(nil)
		return nil
	}).Reads(reads...).Writes(p.IntfVoltage, p.IntfCurrent)
}

func (p *PiLine) MnaApplySystemMatrixStamp(m matrix.DeviceMatrix) {
	for _, sub := range p.subComponents() {
		sub.MnaApplySystemMatrixStamp(m)
	}
}

func (p *PiLine) MnaApplyRightSideVectorStamp(v matrix.DeviceVector) {
	for _, sub := range p.subComponents() {
		sub.MnaApplyRightSideVectorStamp(v)
	}
}

func (p *PiLine) MnaUpdateVoltage(left matrix.Vector) {
	p.UpdateVoltageAcross(left)
}

func (p *PiLine) MnaUpdateCurrent(matrix.Vector) {
	p.IntfCurrent.Set(append([]complex128(nil), p.seriesInductor.IntfCurrent.Get()...))
}

func (p *PiLine) harmonicSubs() []device.Harmonic {
	var out []device.Harmonic
	for _, sub := range p.subComponents() {
		out = append(out, sub.(device.Harmonic))
	}
	return out
}

func (p *PiLine) MnaInitializeHarm(omega, dt float64, lefts []*attribute.Attribute[[]complex128]) error {
	p.ClearTasks()
	for _, sub := range p.harmonicSubs() {
		if err := sub.MnaInitializeHarm(omega, dt, lefts); err != nil {
			return err
		}
		p.AddTask(sub.MnaTasks()...)
	}
	p.AddTask(p.postStep(lefts...))
	p.InitRightVector(0)
	return nil
}

func (p *PiLine) MnaApplySystemMatrixStampHarm(m matrix.DeviceMatrix, freqIdx int) {
	for _, sub := range p.harmonicSubs() {
		sub.MnaApplySystemMatrixStampHarm(m, freqIdx)
	}
}

func (p *PiLine) MnaApplyRightSideVectorStampHarm(v matrix.DeviceVector) {
	for _, sub := range p.harmonicSubs() {
		sub.MnaApplyRightSideVectorStampHarm(v)
	}
}

func (p *PiLine) MnaUpdateVoltageHarm(left matrix.Vector, freqIdx int) {
	p.UpdateVoltageAcrossHarm(left, freqIdx)
}

func (p *PiLine) MnaUpdateCurrentHarm() {
	p.MnaUpdateCurrent(nil)
}

// SteadyStateStamp stamps the pi model directly, so it works before the
// sub-components exist.
func (p *PiLine) SteadyStateStamp(m matrix.DeviceMatrix, _ matrix.DeviceVector, omega float64) {
	n0, n1, vn := p.MatrixNodeIndex(0, 0), p.MatrixNodeIndex(1, 0), p.VirtualNode(0).MatrixIndex(0)
	device.StampAdmittance(m, n0, vn, complex(1/p.SeriesRes.Get(), 0))
	device.StampAdmittance(m, vn, n1, 1/complex(0, omega*p.SeriesInd.Get()))
	if shunt := complex(p.ParallelCond.Get()/2, omega*p.ParallelCap.Get()/2); shunt != 0 {
		device.StampAdmittance(m, n0, circuit.Ground, shunt)
		device.StampAdmittance(m, n1, circuit.Ground, shunt)
	}
}
