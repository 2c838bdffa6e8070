package emt

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/edp1096/toy-gridsim/internal/consts"
	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
	"github.com/edp1096/toy-gridsim/pkg/task"
	"github.com/edp1096/toy-gridsim/pkg/util"
	"gonum.org/v1/gonum/mat"
)

// ControllerParameters are the PLL, power loop and current loop gains. A zero
// OmegaCutoff uses the nominal angular frequency for the power filters.
type ControllerParameters struct {
	KpPLL, KiPLL float64
	KpPowerCtrl  float64
	KiPowerCtrl  float64
	KpCurrCtrl   float64
	KiCurrCtrl   float64
	OmegaCutoff  float64
}

type FilterParameters struct {
	Lf, Cf, Rf, Rc float64
}

// Controller state order.
const (
	stateThetaPLL = iota
	statePhiPLL
	stateP
	stateQ
	statePhiD
	statePhiQ
	stateGammaD
	stateGammaQ
	numStates
)

// Controller input order.
const (
	inOmegaN = iota
	inPref
	inQref
	inVcd
	inVcq
	inIrcd
	inIrcq
	numInputs
)

// AvVoltageSourceInverterDQ is an averaged inverter behind an LC filter and a
// coupling resistor. A dq controller with PLL, filtered power measurement,
// outer power loop and inner current loop sets the source voltage once per
// step. Powers are measured at the filter capacitor.
type AvVoltageSourceInverterDQ struct {
	device.Base
	PowerRef *attribute.Attribute[float64]
	QRef     *attribute.Attribute[float64]
	Vcdq     *attribute.Attribute[[]float64]
	Ircdq    *attribute.Attribute[[]float64]
	Vsdq     *attribute.Attribute[[]float64]
	Theta    *attribute.Attribute[float64]
	Power    *attribute.Attribute[float64]
	Reactive *attribute.Attribute[float64]
	Omega    *attribute.Attribute[float64]
	Freq     *attribute.Attribute[float64]
	CtrlOn   *attribute.Attribute[bool]

	omegaN  float64
	voltNom float64
	ctrl    ControllerParameters
	filter  FilterParameters
	ctrlSet bool
	filtSet bool
	profile []float64
	next    int
	perSec  int
	dt      float64
	vsInit  complex128
	c, d    *mat.Dense
	ss      *util.StateSpace
	uPrev   []float64
	vsabc   [3]float64

	source    *ControlledVoltageSource
	resistorF *Resistor
	inductorF *Inductor
	capF      *Capacitor
	resistorC *Resistor
}

var _ device.MNA = (*AvVoltageSourceInverterDQ)(nil)

func NewAvVoltageSourceInverterDQ(name string, opts ...device.Option) *AvVoltageSourceInverterDQ {
	inv := &AvVoltageSourceInverterDQ{Base: device.NewBase(name, "EMT.AvVoltageSourceInverterDQ", 1, circuit.ABC, opts...)}
	s := inv.Attributes()
	inv.PowerRef = attribute.New(s, "P_ref", attribute.ReadWrite, 0.0)
	inv.QRef = attribute.New(s, "Q_ref", attribute.ReadWrite, 0.0)
	inv.Vcdq = attribute.New(s, "Vcdq", attribute.Read, make([]float64, 2))
	inv.Ircdq = attribute.New(s, "Ircdq", attribute.Read, make([]float64, 2))
	inv.Vsdq = attribute.New(s, "Vsdq", attribute.Read, make([]float64, 2))
	inv.Theta = attribute.New(s, "theta", attribute.Read, 0.0)
	inv.Power = attribute.New(s, "p", attribute.Read, 0.0)
	inv.Reactive = attribute.New(s, "q", attribute.Read, 0.0)
	inv.Omega = attribute.New(s, "omega", attribute.Read, 0.0)
	inv.Freq = attribute.New(s, "freq", attribute.Read, 0.0)
	inv.CtrlOn = attribute.New(s, "ctrl_on", attribute.ReadWrite, true)
	for range 3 {
		inv.AddVirtualNode(circuit.ABC)
	}
	return inv
}

// SetParameters sets the nominal angular frequency, the nominal phase RMS
// voltage and the three-phase power references.
func (inv *AvVoltageSourceInverterDQ) SetParameters(omegaN, voltNom, pRef, qRef float64) {
	inv.omegaN = omegaN
	inv.voltNom = voltNom
	inv.PowerRef.Set(pRef)
	inv.QRef.Set(qRef)
	inv.MarkParametersSet()
}

func (inv *AvVoltageSourceInverterDQ) SetControllerParameters(p ControllerParameters) {
	inv.ctrl = p
	inv.ctrlSet = true
}

func (inv *AvVoltageSourceInverterDQ) SetFilterParameters(p FilterParameters) {
	inv.filter = p
	inv.filtSet = true
}

// SetGenerationProfile replaces P_ref once per simulated second with the
// next profile value scaled by customers. The last value is held when the
// profile runs out.
func (inv *AvVoltageSourceInverterDQ) SetGenerationProfile(profile []float64, customers float64) {
	inv.profile = make([]float64, len(profile))
	for i, p := range profile {
		inv.profile[i] = p * customers
	}
}

func (inv *AvVoltageSourceInverterDQ) Validate() error {
	if err := inv.Base.Validate(); err != nil {
		return err
	}
	if !inv.ctrlSet || !inv.filtSet {
		return fmt.Errorf("%s: controller and filter: %w", inv.Name(), device.ErrParameterNotSet)
	}
	for _, c := range []struct {
		name string
		v    float64
	}{
		{"omega_n", inv.omegaN}, {"V_nom", inv.voltNom}, {"Lf", inv.filter.Lf}, {"Cf", inv.filter.Cf},
		{"Rf", inv.filter.Rf}, {"Rc", inv.filter.Rc}, {"Ki_curr_ctrl", inv.ctrl.KiCurrCtrl},
		{"Ki_power_ctrl", inv.ctrl.KiPowerCtrl},
	} {
		if err := device.CheckPositive(inv.Name(), c.name, c.v); err != nil {
			return err
		}
	}
	return nil
}

func (inv *AvVoltageSourceInverterDQ) Source() *ControlledVoltageSource { return inv.source }
func (inv *AvVoltageSourceInverterDQ) CouplingResistor() *Resistor { return inv.resistorC }

// InitializeFromNodesAndTerminals places the operating point so that the
// power at the filter capacitor equals the references, then derives the
// filter node voltages and builds the sub-components.
func (inv *AvVoltageSourceInverterDQ) InitializeFromNodesAndTerminals(frequency float64) error {
	if err := inv.Validate(); err != nil {
		return err
	}
	f := inv.filter
	v := inv.InitialSingleVoltage(0)
	if v == 0 {
		return fmt.Errorf("%s: terminal has no initial voltage: %w", inv.Name(), device.ErrParameterNotSet)
	}
	s := complex(inv.PowerRef.Get(), inv.QRef.Get()) / 3

	vc, io := v, complex128(0)
	for k := 0; k < 50; k++ {
		io = cmplx.Conj(s / vc)
		next := v + io*complex(f.Rc, 0)
		done := cmplx.Abs(next-vc) < 1e-12*cmplx.Abs(v)
		vc = next
		if done {
			break
		}
	}
	io = cmplx.Conj(s / vc)
	w := 2 * math.Pi * frequency
	icf := vc * complex(0, w*f.Cf)
	vf := vc + (io+icf)*complex(0, w*f.Lf)
	vs := vf + (io+icf)*complex(f.Rf, 0)
	inv.vsInit = vs

	vnS, vnF, vnC := inv.VirtualNode(0), inv.VirtualNode(1), inv.VirtualNode(2)
	for _, init := range []struct {
		n *circuit.Node
		v complex128
	}{{vnS, vs}, {vnF, vf}, {vnC, vc}} {
		if err := init.n.SetInitialVoltage(init.v); err != nil {
			return err
		}
	}

	iv, ic := inv.IntfVoltage.Get(), inv.IntfCurrent.Get()
	for p := 0; p < 3; p++ {
		iv[p] = complex(instantaneous(inv.InitialVoltage(0, p)), 0)
		ic[p] = complex(-instantaneous(io*cmplx.Rect(1, phaseShift(p))), 0)
	}
	inv.IntfVoltage.Set(iv)
	inv.IntfCurrent.Set(ic)

	opts := inv.ChildOptions()
	gnd := circuit.NewGround(circuit.ABC)
	term := inv.Terminal(0).Node()
	inv.source = NewControlledVoltageSource(inv.Name()+"_src", opts...)
	inv.resistorF = NewResistor(inv.Name()+"_resF", opts...)
	inv.resistorF.SetParameters(f.Rf)
	inv.inductorF = NewInductor(inv.Name()+"_indF", opts...)
	inv.inductorF.SetParameters(f.Lf)
	inv.capF = NewCapacitor(inv.Name()+"_capF", opts...)
	inv.capF.SetParameters(f.Cf)
	inv.resistorC = NewResistor(inv.Name()+"_resC", opts...)
	inv.resistorC.SetParameters(f.Rc)

	wiring := []struct {
		c     connectable
		nodes []*circuit.Node
	}{
		{inv.source, []*circuit.Node{gnd, vnS}},
		{inv.resistorF, []*circuit.Node{vnS, vnF}},
		{inv.inductorF, []*circuit.Node{vnF, vnC}},
		{inv.capF, []*circuit.Node{vnC, gnd}},
		{inv.resistorC, []*circuit.Node{vnC, term}},
	}
	inv.ClearSubComponents()
	for _, w := range wiring {
		if err := w.c.Connect(w.nodes...); err != nil {
			return err
		}
		inv.AddSubComponent(w.c)
		w.c.Initialize(inv.Frequencies())
		if err := w.c.InitializeFromNodesAndTerminals(frequency); err != nil {
			return err
		}
	}
	inv.Logger().Info("initialized from power flow", "v", v, "i_out", io, "v_c", vc, "v_s", vs)
	return nil
}

type connectable interface {
	device.MNA
	Connect(nodes ...*circuit.Node) error
}

func phaseShift(p int) float64 {
	return [3]float64{0, consts.SHIFT_TO_PHASE_B, consts.SHIFT_TO_PHASE_C}[p]
}

func (inv *AvVoltageSourceInverterDQ) subComponents() []device.MNA {
	return []device.MNA{inv.source, inv.resistorF, inv.inductorF, inv.capF, inv.resistorC}
}

// controllerMatrices builds A, B, C and D. B carries the bilinear power
// terms and is refreshed from the measured current every step.
func (inv *AvVoltageSourceInverterDQ) controllerMatrices() (a, b, c, d *mat.Dense) {
	p := inv.ctrl
	wc := p.OmegaCutoff
	if wc == 0 {
		wc = inv.omegaN
	}
	inv.ctrl.OmegaCutoff = wc

	a = mat.NewDense(numStates, numStates, nil)
	a.Set(stateThetaPLL, statePhiPLL, p.KiPLL)
	a.Set(stateP, stateP, -wc)
	a.Set(stateQ, stateQ, -wc)
	a.Set(statePhiD, stateP, -1)
	a.Set(statePhiQ, stateQ, 1)
	a.Set(stateGammaD, stateP, -p.KpPowerCtrl)
	a.Set(stateGammaD, statePhiD, p.KiPowerCtrl)
	a.Set(stateGammaQ, stateQ, p.KpPowerCtrl)
	a.Set(stateGammaQ, statePhiQ, p.KiPowerCtrl)

	b = mat.NewDense(numStates, numInputs, nil)
	b.Set(stateThetaPLL, inOmegaN, 1)
	b.Set(stateThetaPLL, inVcq, p.KpPLL)
	b.Set(statePhiPLL, inVcq, 1)
	b.Set(statePhiD, inPref, 1)
	b.Set(statePhiQ, inQref, -1)
	b.Set(stateGammaD, inPref, p.KpPowerCtrl)
	b.Set(stateGammaD, inIrcd, -1)
	b.Set(stateGammaQ, inQref, -p.KpPowerCtrl)
	b.Set(stateGammaQ, inIrcq, -1)

	kpc := p.KpCurrCtrl
	c = mat.NewDense(2, numStates, nil)
	c.Set(0, stateP, -p.KpPowerCtrl*kpc)
	c.Set(0, statePhiD, kpc*p.KiPowerCtrl)
	c.Set(0, stateGammaD, p.KiCurrCtrl)
	c.Set(1, stateQ, p.KpPowerCtrl*kpc)
	c.Set(1, statePhiQ, kpc*p.KiPowerCtrl)
	c.Set(1, stateGammaQ, p.KiCurrCtrl)

	d = mat.NewDense(2, numInputs, nil)
	d.Set(0, inPref, kpc*p.KpPowerCtrl)
	d.Set(0, inVcd, 1)
	d.Set(0, inIrcd, -kpc)
	d.Set(1, inQref, -kpc*p.KpPowerCtrl)
	d.Set(1, inVcq, 1)
	d.Set(1, inIrcq, -kpc)
	return a, b, c, d
}

func (inv *AvVoltageSourceInverterDQ) updateBilinearTerms(ircdq []float64) {
	wc := inv.ctrl.OmegaCutoff
	inv.ss.B.Set(stateP, inVcd, wc*ircdq[0])
	inv.ss.B.Set(stateP, inVcq, wc*ircdq[1])
	inv.ss.B.Set(stateQ, inVcd, -wc*ircdq[1])
	inv.ss.B.Set(stateQ, inVcq, wc*ircdq[0])
}

// measure takes the capacitor voltage from the solution and the output
// current from the coupling resistor, both in the PLL frame.
func (inv *AvVoltageSourceInverterDQ) measure(left matrix.Vector, theta float64) (vcdq, ircdq []float64) {
	var vc, irc [3]float64
	ic := inv.resistorC.IntfCurrent.Get()
	for p := 0; p < 3; p++ {
		vc[p] = real(device.NodeVoltage(left, inv.capF.MatrixNodeIndex(0, p)))
		irc[p] = -real(ic[p])
	}
	v := util.ParkTransformPowerInvariant(theta, vc)
	i := util.ParkTransformPowerInvariant(theta, irc)
	return v[:2], i[:2]
}

func (inv *AvVoltageSourceInverterDQ) inputs(vcdq, ircdq []float64) []float64 {
	return []float64{inv.omegaN, inv.PowerRef.Get(), inv.QRef.Get(), vcdq[0], vcdq[1], ircdq[0], ircdq[1]}
}

func (inv *AvVoltageSourceInverterDQ) output(u []float64) []float64 {
	var y mat.VecDense
	y.MulVec(inv.c, inv.ss.State())
	var du mat.VecDense
	du.MulVec(inv.d, mat.NewVecDense(numInputs, u))
	y.AddVec(&y, &du)
	return []float64{y.AtVec(0), y.AtVec(1)}
}

// initializeController sets the states so that the controller output equals
// the steady-state source voltage. The dq quantities come from the t = 0
// values; the PLL angle starts at the time of the first solution.
func (inv *AvVoltageSourceInverterDQ) initializeController(dt float64) error {
	a, b, c, d := inv.controllerMatrices()
	ss, err := util.NewStateSpace(a, b, dt)
	if err != nil {
		return fmt.Errorf("%s: %w", inv.Name(), err)
	}
	inv.ss, inv.c, inv.d = ss, c, d

	theta0 := cmplx.Phase(inv.VirtualNode(2).InitialSingleVoltage())
	var vcabc, irabc [3]float64
	for p := 0; p < 3; p++ {
		vcabc[p] = instantaneous(inv.VirtualNode(2).InitialVoltage(p))
		irabc[p] = -real(inv.resistorC.IntfCurrent.Get()[p])
	}
	v := util.ParkTransformPowerInvariant(theta0, vcabc)
	i := util.ParkTransformPowerInvariant(theta0, irabc)
	vcdq, ircdq := v[:2], i[:2]
	vsdq := inv.vsInit * cmplx.Rect(consts.SQRT3, -theta0)

	p := inv.ctrl
	theta := theta0 + inv.omegaN*dt
	pm := vcdq[0]*ircdq[0] + vcdq[1]*ircdq[1]
	qm := vcdq[1]*ircdq[0] - vcdq[0]*ircdq[1]
	inv.ss.SetState([]float64{
		theta, 0, pm, qm,
		ircdq[0] / p.KiPowerCtrl, ircdq[1] / p.KiPowerCtrl,
		(real(vsdq) - vcdq[0]) / p.KiCurrCtrl, (imag(vsdq) - vcdq[1]) / p.KiCurrCtrl,
	})
	inv.updateBilinearTerms(ircdq)
	inv.uPrev = inv.inputs(vcdq, ircdq)
	vsOut := inv.output(inv.uPrev)

	inv.Vcdq.Set(vcdq)
	inv.Ircdq.Set(ircdq)
	inv.Vsdq.Set(vsOut)
	inv.Theta.Set(theta)
	inv.Power.Set(pm)
	inv.Reactive.Set(qm)
	inv.Omega.Set(inv.omegaN)
	inv.Freq.Set(inv.omegaN / (2 * math.Pi))
	inv.vsabc = util.InverseParkTransformPowerInvariant(theta, [3]float64{vsOut[0], vsOut[1], 0})
	inv.Logger().Debug("controller initialized", "theta", theta, "Vcdq", vcdq, "Ircdq", ircdq, "Vsdq", vsOut)
	return nil
}

func (inv *AvVoltageSourceInverterDQ) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	if err := device.CheckTimeStep(inv.Name(), dt); err != nil {
		return err
	}
	if inv.source == nil {
		return fmt.Errorf("%s: not initialized from power flow: %w", inv.Name(), device.ErrParameterNotSet)
	}
	inv.dt = dt
	inv.perSec = max(1, int(math.Round(1/dt)))
	inv.next = 0

	inv.ClearTasks()
	for _, sub := range inv.subComponents() {
		if err := sub.MnaInitialize(omega, dt, left); err != nil {
			return err
		}
		inv.AddTask(sub.MnaTasks()...)
	}
	if err := inv.initializeController(dt); err != nil {
		return err
	}
	inv.source.SetParameters(inv.vsabc[:])
	inv.source.VoltageRef.Snapshot()

	inv.AddTask(
		task.NewFunc(inv.Name()+".CtrlStep", func(time float64, step int) error {
			inv.controlStep(matrix.Vector(left.Get()), time, step)
			return nil
		}).Reads(left, inv.resistorC.IntfCurrent).
			Writes(inv.source.VoltageRef, inv.PowerRef, inv.Vcdq, inv.Ircdq, inv.Vsdq, inv.Theta, inv.Power, inv.Reactive, inv.Omega, inv.Freq),
		task.NewFunc(inv.Name()+".MnaPostStep", func(float64, int) error {
			x := matrix.Vector(left.Get())
			inv.MnaUpdateVoltage(x)
			inv.MnaUpdateCurrent(x)
			return nil
		}).Reads(left, inv.resistorC.IntfCurrent).Writes(inv.IntfVoltage, inv.IntfCurrent),
	)
	inv.InitRightVector(0)
	return nil
}

func (inv *AvVoltageSourceInverterDQ) updatePowerReference(step int) {
	if len(inv.profile) == 0 || step%inv.perSec != 0 {
		return
	}
	if inv.next < len(inv.profile) {
		inv.PowerRef.Set(inv.profile[inv.next])
		inv.next++
	}
}

// controlStep measures the solution at time, advances the controller by one
// step and writes the source reference for time + dt.
func (inv *AvVoltageSourceInverterDQ) controlStep(left matrix.Vector, time float64, step int) {
	inv.updatePowerReference(step)
	theta := inv.Theta.Get()
	vcdq, ircdq := inv.measure(left, theta)
	inv.updateBilinearTerms(ircdq)
	u := inv.inputs(vcdq, ircdq)

	if inv.CtrlOn.Get() {
		x := inv.ss.Step(inv.uPrev, u)
		vsdq := inv.output(u)
		inv.Theta.Set(x.AtVec(stateThetaPLL))
		inv.Power.Set(x.AtVec(stateP))
		inv.Reactive.Set(x.AtVec(stateQ))
		inv.Vsdq.Set(vsdq)
		inv.vsabc = util.InverseParkTransformPowerInvariant(x.AtVec(stateThetaPLL), [3]float64{vsdq[0], vsdq[1], 0})
	} else {
		held := mat.VecDenseCopyOf(inv.ss.State())
		x := inv.ss.Step(inv.uPrev, u)
		for k := statePhiD; k < numStates; k++ {
			x.SetVec(k, held.AtVec(k))
		}
		inv.Theta.Set(x.AtVec(stateThetaPLL))
		inv.Power.Set(x.AtVec(stateP))
		inv.Reactive.Set(x.AtVec(stateQ))
		inv.vsabc = util.PhasorToABC(inv.vsInit*math.Sqrt2, inv.omegaN*(time+inv.dt))
	}
	inv.uPrev = u

	inv.Omega.Set((inv.Theta.Get() - theta) / inv.dt)
	inv.Freq.Set(inv.Omega.Get() / (2 * math.Pi))
	inv.Vcdq.Set(vcdq)
	inv.Ircdq.Set(ircdq)
	inv.source.VoltageRef.Set(inv.vsabc[:])
}

func (inv *AvVoltageSourceInverterDQ) MnaApplySystemMatrixStamp(m matrix.DeviceMatrix) {
	for _, sub := range inv.subComponents() {
		sub.MnaApplySystemMatrixStamp(m)
	}
}

func (inv *AvVoltageSourceInverterDQ) MnaApplyRightSideVectorStamp(v matrix.DeviceVector) {
	for _, sub := range inv.subComponents() {
		sub.MnaApplyRightSideVectorStamp(v)
	}
}

func (inv *AvVoltageSourceInverterDQ) MnaUpdateVoltage(left matrix.Vector) {
	vs := inv.IntfVoltage.Get()
	for p := range vs {
		vs[p] = complex(real(device.NodeVoltage(left, inv.MatrixNodeIndex(0, p))), 0)
	}
	inv.IntfVoltage.Set(vs)
}

// MnaUpdateCurrent takes the interface current from the coupling resistor.
// It flows from the terminal into the inverter.
func (inv *AvVoltageSourceInverterDQ) MnaUpdateCurrent(matrix.Vector) {
	inv.IntfCurrent.Set(append([]complex128(nil), inv.resistorC.IntfCurrent.Get()...))
}
