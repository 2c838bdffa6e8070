package scenario

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/edp1096/toy-gridsim/internal/params"
	"github.com/edp1096/toy-gridsim/pkg/analysis"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/datalog"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/dp"
	"github.com/edp1096/toy-gridsim/pkg/signal"
)

const (
	faultOpenResistance   = 1e9
	faultClosedResistance = 1e-3
)

// InfiniteBus returns the bus voltage that keeps the generator terminal at
// v while it delivers s through the line. The open fault switch loads the
// terminal with 1/faultOpenResistance.
func InfiniteBus(line *params.Line, omega float64, s, v complex128) complex128 {
	i := cmplx.Conj(s / v)
	shunt := complex(line.G/2+1/faultOpenResistance, omega*line.C/2)
	series := i - v*shunt
	return v - series*complex(line.R, omega*line.L)
}

func generatorOperatingPoint(g *params.Generator) (s complex128, pm float64, v complex128) {
	s = complex(g.InitActivePower, g.InitReactivePower)
	pm = g.InitMechPower
	if pm == 0 {
		pm = g.InitActivePower
	}
	return s, pm, cmplx.Rect(g.InitVoltage, g.InitVoltageAngle)
}

func newGenerator(g *params.Generator, opts []device.Option) (*dp.SynchronGenerator, error) {
	order, err := dp.ParseGeneratorOrder(g.Order)
	if err != nil {
		return nil, err
	}
	gen := dp.NewSynchronGenerator(g.Name, order, opts...)
	if err := gen.SetOperationalParametersPerUnit(dp.OperationalParameters{
		NomPower: g.NomPower, NomVoltage: g.NomVoltage, NomFrequency: g.NomFrequency, H: g.H,
		Ld: g.Ld, Lq: g.Lq, L0: g.L0,
		LdT: g.LdT, LqT: g.LqT, Td0T: g.Td0T, Tq0T: g.Tq0T,
		LdS: g.LdS, LqS: g.LqS, Td0S: g.Td0S, Tq0S: g.Tq0S,
		Taa: g.Taa,
	}); err != nil {
		return nil, err
	}
	s, pm, v := generatorOperatingPoint(g)
	gen.SetInitialValues(s, pm, v)

	if e := g.Exciter; e != nil {
		gen.AddExciter(signal.ExciterParameters{
			Ta: e.Ta, Ka: e.Ka, Te: e.Te, Ke: e.Ke, Tf: e.Tf, Kf: e.Kf, Tr: e.Tr,
		})
	}
	if gv := g.Governor; gv != nil {
		gen.AddGovernor(signal.GovernorParameters{
			T3: gv.T3, T4: gv.T4, T5: gv.T5, Tc: gv.Tc, Ts: gv.Ts, R: gv.R,
			Pmin: gv.Pmin, Pmax: gv.Pmax, OmRef: gv.OmRef, TmRef: gv.TmRef,
		})
	}
	return gen, nil
}

// buildSMIB connects generator "gen" through line "line" to an infinite
// bus. A bolted fault at the generator terminal is applied at a quarter of
// the run and cleared a tenth of the run later. The system runs at the
// generator's nominal frequency.
func buildSMIB(env Env) (*Case, error) {
	pg, err := env.Params.Generator("gen")
	if err != nil {
		return nil, err
	}
	pl, err := env.Params.Line("line")
	if err != nil {
		return nil, err
	}
	if pg.NomFrequency <= 0 {
		return nil, fmt.Errorf("generator %s: nom_frequency: %w", pg.Name, device.ErrInvalidParameter)
	}
	opts := env.options()
	freq := pg.NomFrequency
	omega := 2 * math.Pi * freq

	genNode := circuit.NewNode("gen", circuit.Single)
	bus := circuit.NewNode("bus", circuit.Single)
	gnd := circuit.NewGround(circuit.Single)

	gen, err := newGenerator(pg, opts)
	if err != nil {
		return nil, err
	}
	if err := gen.Connect(genNode); err != nil {
		return nil, err
	}

	line := dp.NewPiLine(pl.Name, opts...)
	line.SetParameters(pl.R, pl.L, pl.C, pl.G)
	if err := line.Connect(genNode, bus); err != nil {
		return nil, err
	}

	s, _, v := generatorOperatingPoint(pg)
	inf := dp.NewVoltageSource("inf", opts...)
	inf.SetParameters(InfiniteBus(pl, omega, s, v), -1)
	if err := inf.Connect(gnd, bus); err != nil {
		return nil, err
	}

	fault := dp.NewSwitch("fault", opts...)
	fault.SetParameters(faultOpenResistance, faultClosedResistance, false)
	if err := fault.Connect(genNode, gnd); err != nil {
		return nil, err
	}

	sys := circuit.NewSystem("smib", freq)
	sys.AddComponent(gen, line, inf, fault)

	start := env.Duration / 4
	c := &Case{
		System:      sys,
		Domain:      device.DP,
		SteadyState: true,
		Events: []analysis.Event{
			analysis.SwitchEvent{At: start, Switch: fault, Closed: true},
			analysis.SwitchEvent{At: start + env.Duration/10, Switch: fault, Closed: false},
		},
		Watch: func(dl *datalog.Logger) error {
			return dl.LogAttributes(gen.Attributes(), "w_r", "delta", "Etorque", "Tm", "Ef")
		},
	}
	if env.Tear {
		c.Tear = []device.Tear{fault}
	}
	return c, nil
}
