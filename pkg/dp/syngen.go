package dp

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
	"github.com/edp1096/toy-gridsim/pkg/signal"
	"github.com/edp1096/toy-gridsim/pkg/task"
	"github.com/edp1096/toy-gridsim/pkg/util"
)

type GeneratorOrder string

const (
	Order3  GeneratorOrder = "3"
	Order4  GeneratorOrder = "4"
	Order6a GeneratorOrder = "6a"
	Order6b GeneratorOrder = "6b"
)

func ParseGeneratorOrder(s string) (GeneratorOrder, error) {
	switch s {
	case "3", "4", "6a", "6b":
		return GeneratorOrder(s), nil
	case "6":
		return Order6a, nil
	}
	return "", fmt.Errorf("generator order %q: %w", s, device.ErrInvalidParameter)
}

func (o GeneratorOrder) sixth() bool { return o == Order6a || o == Order6b }

// OperationalParameters are the per-unit machine data. Order 3 uses the d
// axis transient values, order 4 adds the q axis, order 6 adds the
// subtransient values and Taa.
type OperationalParameters struct {
	NomPower, NomVoltage, NomFrequency float64
	H                                  float64
	Ld, Lq, L0                         float64
	LdT, LqT, Td0T, Tq0T               float64
	LdS, LqS, Td0S, Tq0S               float64
	Taa                                float64
}

// SynchronGenerator is a reduced-order machine in voltage-behind-reactance
// form. Towards the network it is a Norton equivalent with a constant
// admittance and a current source recomputed every step.
type SynchronGenerator struct {
	device.Base
	order  GeneratorOrder
	params OperationalParameters

	Vdq0       *attribute.Attribute[[]float64]
	Idq0       *attribute.Attribute[[]float64]
	EdqT       *attribute.Attribute[[]float64]
	EdqS       *attribute.Attribute[[]float64]
	ElecTorque *attribute.Attribute[float64]
	MechTorque *attribute.Attribute[float64]
	OmMech     *attribute.Attribute[float64]
	ThetaMech  *attribute.Attribute[float64]
	Delta      *attribute.Attribute[float64]
	Ef         *attribute.Attribute[float64]

	baseV, baseI, baseZ, baseOmega float64

	// trapezoidal VBR constants
	adT, bdT, ddT, aqT, bqT   float64
	adS, bdS, cdS, ddS        float64
	aqS, bqS, cqS             float64
	yd, yq                    float64
	xdEff, xqEff, xAvg, xDiff float64
	admittance                complex128

	initElecPower complex128
	initMechPower float64
	initVoltage   complex128
	initSet       bool

	dt      float64
	efPrev  float64
	tmPrev  float64
	tePrev  float64
	rot     complex128
	edtHist float64
	eqtHist float64
	edsHist float64
	eqsHist float64
	isrc    complex128

	exciter  *signal.Exciter
	governor *signal.TurbineGovernorType1
}

var (
	_ device.MNA         = (*SynchronGenerator)(nil)
	_ device.SteadyState = (*SynchronGenerator)(nil)
)

func NewSynchronGenerator(name string, order GeneratorOrder, opts ...device.Option) *SynchronGenerator {
	g := &SynchronGenerator{Base: device.NewBase(name, "DP.SynchronGenerator"+string(order), 1, circuit.Single, opts...), order: order}
	s := g.Attributes()
	g.Vdq0 = attribute.New(s, "Vdq0", attribute.Read, make([]float64, 3))
	g.Idq0 = attribute.New(s, "Idq0", attribute.Read, make([]float64, 3))
	g.EdqT = attribute.New(s, "Edq_t", attribute.Read, make([]float64, 2))
	g.EdqS = attribute.New(s, "Edq_s", attribute.Read, make([]float64, 2))
	g.ElecTorque = attribute.New(s, "Etorque", attribute.Read, 0.0)
	g.MechTorque = attribute.New(s, "Tm", attribute.ReadWrite, 0.0)
	g.OmMech = attribute.New(s, "w_r", attribute.Read, 0.0)
	g.ThetaMech = attribute.New(s, "Theta", attribute.Read, 0.0)
	g.Delta = attribute.New(s, "delta", attribute.Read, 0.0)
	g.Ef = attribute.New(s, "Ef", attribute.ReadWrite, 0.0)
	return g
}

func (g *SynchronGenerator) Order() GeneratorOrder { return g.order }

// SetOperationalParametersPerUnit stores the machine data. A sixth order
// machine without additional leakage (Taa = 0) runs as order 6b.
func (g *SynchronGenerator) SetOperationalParametersPerUnit(p OperationalParameters) error {
	if err := g.checkParameters(p); err != nil {
		return err
	}
	if g.order == Order6a && p.Taa == 0 {
		g.Logger().Info("Taa is zero, using the 6b model")
		g.order = Order6b
	}
	g.params = p
	g.baseV = p.NomVoltage
	g.baseI = p.NomPower / p.NomVoltage
	g.baseZ = p.NomVoltage * p.NomVoltage / p.NomPower
	g.baseOmega = 2 * math.Pi * p.NomFrequency
	g.MarkParametersSet()
	return nil
}

func (g *SynchronGenerator) checkParameters(p OperationalParameters) error {
	type named struct {
		name string
		v    float64
	}
	checks := []named{
		{"nom_power", p.NomPower}, {"nom_voltage", p.NomVoltage}, {"nom_frequency", p.NomFrequency},
		{"H", p.H}, {"Ld", p.Ld}, {"Lq", p.Lq}, {"Ld_t", p.LdT}, {"Td0_t", p.Td0T},
	}
	if g.order != Order3 {
		checks = append(checks, named{"Lq_t", p.LqT}, named{"Tq0_t", p.Tq0T})
	}
	if g.order.sixth() {
		checks = append(checks, named{"Ld_s", p.LdS}, named{"Lq_s", p.LqS}, named{"Td0_s", p.Td0S}, named{"Tq0_s", p.Tq0S})
	}
	var errs []error
	for _, c := range checks {
		if err := device.CheckPositive(g.Name(), c.name, c.v); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Taa < 0 {
		errs = append(errs, device.CheckPositive(g.Name(), "Taa", p.Taa))
	}
	return errors.Join(errs...)
}

// SetInitialValues sets the steady-state operating point in SI units: the
// complex electrical power, the mechanical power and the terminal voltage
// phasor.
func (g *SynchronGenerator) SetInitialValues(elecPower complex128, mechPower float64, terminalVoltage complex128) {
	g.initElecPower = elecPower
	g.initMechPower = mechPower
	g.initVoltage = terminalVoltage
	g.initSet = true
}

func (g *SynchronGenerator) AddExciter(p signal.ExciterParameters) *signal.Exciter {
	g.exciter = signal.NewExciter(g.Name()+"_exciter", g.Logger())
	g.exciter.SetParameters(p)
	return g.exciter
}

func (g *SynchronGenerator) AddGovernor(p signal.GovernorParameters) *signal.TurbineGovernorType1 {
	g.governor = signal.NewTurbineGovernorType1(g.Name()+"_governor", g.Logger())
	g.governor.SetParameters(p)
	return g.governor
}

func (g *SynchronGenerator) Exciter() *signal.Exciter { return g.exciter }
func (g *SynchronGenerator) Governor() *signal.TurbineGovernorType1 { return g.governor }

func (g *SynchronGenerator) Validate() error {
	if err := g.Base.Validate(); err != nil {
		return err
	}
	if !g.initSet {
		return fmt.Errorf("%s: initial values: %w", g.Name(), device.ErrParameterNotSet)
	}
	return nil
}

func (g *SynchronGenerator) InitializeFromNodesAndTerminals(float64) error {
	if err := g.Validate(); err != nil {
		return err
	}
	p := g.params
	if g.initVoltage == 0 {
		return fmt.Errorf("%s: initial terminal voltage is zero: %w", g.Name(), device.ErrInvalidParameter)
	}
	if nv := g.InitialSingleVoltage(0); nv != 0 && cmplx.Abs(nv-g.initVoltage) > 1e-6*g.baseV {
		g.Logger().Warn("node voltage differs from generator initial voltage", "node", nv, "generator", g.initVoltage)
	}

	v := g.initVoltage / complex(g.baseV, 0)
	s := g.initElecPower / complex(p.NomPower, 0)
	i := cmplx.Conj(s / v)

	delta := cmplx.Phase(v + complex(0, p.Lq)*i)
	g.rot = cmplx.Rect(1, delta-math.Pi/2)
	vdq, idq := v/g.rot, i/g.rot
	vd, vq, id, iq := real(vdq), imag(vdq), real(idq), imag(idq)

	var ef float64
	edqT, edqS := []float64{0, 0}, []float64{0, 0}
	switch {
	case g.order == Order3:
		edqT[1] = vq + p.LdT*id
		ef = edqT[1] + (p.Ld-p.LdT)*id
	case g.order == Order4:
		edqT[0] = vd - p.LqT*iq
		edqT[1] = vq + p.LdT*id
		ef = edqT[1] + (p.Ld-p.LdT)*id
	default:
		g.yd, g.yq = g.leakage()
		taa := g.taa()
		edqS[0] = vd - p.LqS*iq
		edqS[1] = vq + p.LdS*id
		ef = edqS[1] + (p.Ld-p.LdS)*id
		edqT[0] = (p.Lq - p.LqT - g.yq) * iq
		edqT[1] = (1-taa/p.Td0T)*ef - (p.Ld-p.LdT-g.yd)*id
	}

	te := vd*id + vq*iq
	tm := g.initMechPower / p.NomPower

	g.Vdq0.Set([]float64{vd, vq, 0})
	g.Idq0.Set([]float64{id, iq, 0})
	g.EdqT.Set(edqT)
	g.EdqS.Set(edqS)
	g.Ef.Set(ef)
	g.ElecTorque.Set(te)
	g.MechTorque.Set(tm)
	g.OmMech.Set(1)
	g.Delta.Set(delta)
	g.ThetaMech.Set(delta - math.Pi/2)
	g.efPrev, g.tmPrev, g.tePrev = ef, tm, te

	g.SetIntf(0, g.initVoltage, i*complex(g.baseI, 0))
	g.Logger().Info("initialized", "order", g.order, "delta", delta, "Ef", ef, "Te", te, "Tm", tm)
	return nil
}

func (g *SynchronGenerator) taa() float64 {
	if g.order == Order6a {
		return g.params.Taa
	}
	return 0
}

// leakage returns the additional leakage terms of the 6a model.
func (g *SynchronGenerator) leakage() (yd, yq float64) {
	if g.order != Order6a {
		return 0, 0
	}
	p := g.params
	yd = (p.Td0S / p.Td0T) * (p.LdS / p.LdT) * (p.Ld - p.LdT)
	yq = (p.Tq0S / p.Tq0T) * (p.LqS / p.LqT) * (p.Lq - p.LqT)
	return yd, yq
}

// calculateVBRConstants discretizes every flux equation
// T*dE/dt = -E + k*i + u with the trapezoidal rule, giving
// E[k+1] = B*E[k] + A*(i[k+1] + i[k]) + D*(u[k+1] + u[k]).
func (g *SynchronGenerator) calculateVBRConstants(h float64) {
	p := g.params
	lag := func(t float64) (b, c float64) { return (2*t - h) / (2*t + h), h / (2*t + h) }

	var cdT float64
	g.bdT, cdT = lag(p.Td0T)
	g.yd, g.yq = g.leakage()
	taa := g.taa()

	switch g.order {
	case Order3:
		g.adT = cdT * (p.Ld - p.LdT)
		g.ddT = cdT
		g.xdEff = p.LdT + g.adT
		g.xqEff = p.Lq
	case Order4:
		var cqT float64
		g.bqT, cqT = lag(p.Tq0T)
		g.adT = cdT * (p.Ld - p.LdT)
		g.ddT = cdT
		g.aqT = cqT * (p.Lq - p.LqT)
		g.xdEff = p.LdT + g.adT
		g.xqEff = p.LqT + g.aqT
	default:
		var cqT float64
		g.bqT, cqT = lag(p.Tq0T)
		g.adT = cdT * (p.Ld - p.LdT - g.yd)
		g.ddT = cdT * (1 - taa/p.Td0T)
		g.aqT = cqT * (p.Lq - p.LqT - g.yq)

		g.bdS, g.cdS = lag(p.Td0S)
		g.adS = g.cdS * (p.LdT - p.LdS + g.yd)
		g.ddS = g.cdS * taa / p.Td0T
		g.bqS, g.cqS = lag(p.Tq0S)
		g.aqS = g.cqS * (p.LqT - p.LqS + g.yq)

		g.xdEff = p.LdS + g.adS + g.cdS*g.adT
		g.xqEff = p.LqS + g.aqS + g.cqS*g.aqT
	}
	g.xAvg = (g.xdEff + g.xqEff) / 2
	g.xDiff = (g.xdEff - g.xqEff) / 2
	g.admittance = 1 / complex(0, g.xAvg*g.baseZ)
}

func (g *SynchronGenerator) MnaInitialize(omega, dt float64, left *attribute.Attribute[[]complex128]) error {
	if err := device.CheckTimeStep(g.Name(), dt); err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return err
	}
	g.dt = dt
	g.calculateVBRConstants(dt)

	vh := cmplx.Abs(g.initVoltage) / g.baseV
	if g.exciter != nil {
		if err := g.exciter.Initialize(vh, g.Ef.Get(), dt); err != nil {
			return err
		}
	}
	if g.governor != nil {
		if err := g.governor.Initialize(g.MechTorque.Get(), dt); err != nil {
			return err
		}
	}

	g.ClearTasks()
	g.AddTask(
		task.NewFunc(g.Name()+".MnaPreStep", func(float64, int) error {
			rv := matrix.Vector(g.RightVector().Get())
			rv.Clear()
			g.MnaApplyRightSideVectorStamp(rv)
			return nil
		}).ReadsPrev(g.IntfVoltage, g.IntfCurrent, g.Delta, g.Ef, g.Idq0, g.EdqT, g.EdqS).Writes(g.RightVector()),
		task.NewFunc(g.Name()+".MnaPostStep", func(float64, int) error {
			x := matrix.Vector(left.Get())
			g.MnaUpdateVoltage(x)
			g.MnaUpdateCurrent(x)
			g.stepMechanics()
			return nil
		}).Reads(left).Writes(g.IntfVoltage, g.IntfCurrent, g.Vdq0, g.Idq0, g.EdqT, g.EdqS,
			g.ElecTorque, g.MechTorque, g.OmMech, g.ThetaMech, g.Delta, g.Ef),
	)
	for _, a := range []attribute.Ref{g.Delta, g.Ef, g.Idq0, g.EdqT, g.EdqS} {
		a.Snapshot()
	}
	g.InitRightVector(len(left.Get()))
	g.Logger().Debug("vbr constants", "Xd_eff", g.xdEff, "Xq_eff", g.xqEff, "Yd", g.yd, "Yq", g.yq)
	return nil
}

func (g *SynchronGenerator) MnaApplySystemMatrixStamp(m matrix.DeviceMatrix) {
	device.StampAdmittance(m, g.MatrixNodeIndex(0, 0), circuit.Ground, g.admittance)
}

// updateHistory evaluates the flux history terms from the state at the
// start of the step.
func (g *SynchronGenerator) updateHistory() (ed, eq float64) {
	idq := g.Idq0.Prev()
	id, iq := idq[0], idq[1]
	edqT, edqS := g.EdqT.Prev(), g.EdqS.Prev()
	efSum := g.Ef.Prev() + g.efPrev

	g.eqtHist = g.bdT*edqT[1] - g.adT*id + g.ddT*efSum
	if g.order == Order3 {
		g.edtHist = 0
		return 0, g.eqtHist
	}
	g.edtHist = g.bqT*edqT[0] + g.aqT*iq
	if g.order == Order4 {
		return g.edtHist, g.eqtHist
	}
	g.eqsHist = g.bdS*edqS[1] + g.cdS*(g.eqtHist+edqT[1]) - g.adS*id + g.ddS*efSum
	g.edsHist = g.bqS*edqS[0] + g.cqS*(g.edtHist+edqT[0]) + g.aqS*iq
	return g.edsHist, g.eqsHist
}

func (g *SynchronGenerator) MnaApplyRightSideVectorStamp(v matrix.DeviceVector) {
	g.rot = cmplx.Rect(1, g.Delta.Prev()-math.Pi/2)
	ed, eq := g.updateHistory()
	eh := complex(ed, eq) * g.rot * complex(g.baseV, 0)
	saliency := complex(g.xDiff/g.xAvg, 0) * g.rot * g.rot * cmplx.Conj(g.PrevCurrent(0))
	g.isrc = eh*g.admittance - saliency
	device.StampCurrentSource(v, g.MatrixNodeIndex(0, 0), circuit.Ground, g.isrc)
}

func (g *SynchronGenerator) MnaUpdateVoltage(left matrix.Vector) {
	vs := g.IntfVoltage.Get()
	vs[0] = device.NodeVoltage(left, g.MatrixNodeIndex(0, 0))
	g.IntfVoltage.Set(vs)
}

// MnaUpdateCurrent sets the current delivered into the network.
func (g *SynchronGenerator) MnaUpdateCurrent(matrix.Vector) {
	is := g.IntfCurrent.Get()
	is[0] = g.isrc - g.admittance*g.IntfVoltage.Get()[0]
	g.IntfCurrent.Set(is)
}

// SteadyStateStamp injects the current of the configured operating point,
// so the steady-state solve reproduces the initial terminal voltage when
// the rest of the network agrees with it.
func (g *SynchronGenerator) SteadyStateStamp(_ matrix.DeviceMatrix, v matrix.DeviceVector, _ float64) {
	if g.initVoltage == 0 {
		return
	}
	device.StampCurrentSource(v, g.MatrixNodeIndex(0, 0), circuit.Ground, cmplx.Conj(g.initElecPower/g.initVoltage))
}

// stepMechanics moves the flux states, torque, speed, angle and the attached
// controllers to the end of the step.
func (g *SynchronGenerator) stepMechanics() {
	p := g.params
	vdq := g.IntfVoltage.Get()[0] / complex(g.baseV, 0) / g.rot
	idq := g.IntfCurrent.Get()[0] / complex(g.baseI, 0) / g.rot
	vd, vq, id, iq := real(vdq), imag(vdq), real(idq), imag(idq)

	edqT, edqS := []float64{0, 0}, []float64{0, 0}
	edqT[1] = g.eqtHist - g.adT*id
	if g.order != Order3 {
		edqT[0] = g.edtHist + g.aqT*iq
	}
	if g.order.sixth() {
		edqS[1] = g.eqsHist - (g.adS+g.cdS*g.adT)*id
		edqS[0] = g.edsHist + (g.aqS+g.cqS*g.aqT)*iq
	}
	g.EdqT.Set(edqT)
	g.EdqS.Set(edqS)
	g.Vdq0.Set([]float64{vd, vq, 0})
	g.Idq0.Set([]float64{id, iq, 0})

	te := vd*id + vq*iq
	om := g.OmMech.Get()
	tm := g.MechTorque.Get()
	tmPrev := tm
	if g.governor != nil {
		tm = g.governor.Step(om)
	}
	// swing equation 2H dw/dt = Tm - Te
	omNext := util.Trapezoidal(om, (tmPrev-g.tePrev)/(2*p.H), (tm-te)/(2*p.H), g.dt)
	g.Delta.Set(util.Trapezoidal(g.Delta.Get(), g.baseOmega*(om-1), g.baseOmega*(omNext-1), g.dt))
	g.ThetaMech.Set(util.Trapezoidal(g.ThetaMech.Get(), g.baseOmega*om, g.baseOmega*omNext, g.dt))
	g.OmMech.Set(omNext)
	g.ElecTorque.Set(te)
	g.MechTorque.Set(tm)
	g.tmPrev, g.tePrev = tmPrev, te

	g.efPrev = g.Ef.Get()
	if g.exciter != nil {
		g.Ef.Set(g.exciter.Step(cmplx.Abs(vdq)))
	}
}
