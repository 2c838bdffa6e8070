package signal

import (
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/edp1096/toy-gridsim/internal/ctxlog"
	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/util"
	"gonum.org/v1/gonum/mat"
)

type GovernorParameters struct {
	T3, T4, T5 float64 // transient gain, reheat time constants
	Tc, Ts     float64 // servo and governor time constants
	R          float64 // droop
	Pmin, Pmax float64
	OmRef      float64
	TmRef      float64
}

// TurbineGovernorType1 turns a speed deviation into mechanical torque.
// States are [governor, servo, reheat], in per unit.
type TurbineGovernorType1 struct {
	name   string
	params GovernorParameters
	logger *slog.Logger
	attrs  *attribute.Store

	Pin *attribute.Attribute[float64]
	Tm  *attribute.Attribute[float64]

	ss      *util.StateSpace
	pinPrev float64
}

func NewTurbineGovernorType1(name string, logger *slog.Logger) *TurbineGovernorType1 {
	g := &TurbineGovernorType1{name: name, attrs: attribute.NewStore(name)}
	if logger == nil {
		logger = ctxlog.Discard()
	}
	g.logger = logger.With("component", name)
	g.Pin = attribute.New(g.attrs, "Pin", attribute.Read, 0.0)
	g.Tm = attribute.New(g.attrs, "Tm", attribute.Read, 0.0)
	return g
}

func (g *TurbineGovernorType1) Name() string { return g.name }
func (g *TurbineGovernorType1) Attributes() *attribute.Store { return g.attrs }

func (g *TurbineGovernorType1) SetParameters(p GovernorParameters) {
	g.params = p
}

func (g *TurbineGovernorType1) Parameters() GovernorParameters { return g.params }

func (g *TurbineGovernorType1) validate() error {
	p := g.params
	var errs []error
	for _, c := range []struct {
		name string
		v    float64
	}{{"Ts", p.Ts}, {"Tc", p.Tc}, {"T5", p.T5}, {"R", p.R}} {
		if c.v <= 0 {
			errs = append(errs, fmt.Errorf("%s: %s must be positive, got %g: %w", g.name, c.name, c.v, ErrInvalidParameter))
		}
	}
	if p.Pmax < p.Pmin {
		errs = append(errs, fmt.Errorf("%s: Pmax %g below Pmin %g: %w", g.name, p.Pmax, p.Pmin, ErrInvalidParameter))
	}
	return errors.Join(errs...)
}

// Initialize sets the steady state for torque tm. The torque reference
// follows tm so that the governor holds it at nominal speed.
func (g *TurbineGovernorType1) Initialize(tm, h float64) error {
	if err := g.validate(); err != nil {
		return err
	}
	p := &g.params
	p.TmRef = tm
	a := mat.NewDense(3, 3, []float64{
		-1 / p.Ts, 0, 0,
		(1 - p.T3/p.Tc) / p.Tc, -1 / p.Tc, 0,
		(1 - p.T4/p.T5) * p.T3 / (p.Tc * p.T5), (1 - p.T4/p.T5) / p.T5, -1 / p.T5,
	})
	b := mat.NewDense(3, 1, []float64{1 / p.Ts, 0, 0})
	ss, err := util.NewStateSpace(a, b, h)
	if err != nil {
		return fmt.Errorf("%s: %w", g.name, err)
	}
	g.ss = ss

	x2 := (1 - p.T3/p.Tc) * tm
	x3 := (1 - p.T4/p.T5) * tm
	g.ss.SetState([]float64{tm, x2, x3})
	g.pinPrev = tm
	g.Pin.Set(tm)
	g.Tm.Set(tm)
	g.logger.Debug("governor initialized", "Tm", tm)
	return nil
}

func (g *TurbineGovernorType1) input(omega float64) float64 {
	p := g.params
	pin := p.TmRef + (p.OmRef-omega)/p.R
	return math.Min(math.Max(pin, p.Pmin), p.Pmax)
}

// Step advances one time step with the rotor speed and returns the
// mechanical torque.
func (g *TurbineGovernorType1) Step(omega float64) float64 {
	p := g.params
	pin := g.input(omega)
	x := g.ss.Step([]float64{g.pinPrev}, []float64{pin})
	g.pinPrev = pin
	tm := x.AtVec(2) + p.T4/p.T5*(x.AtVec(1)+p.T3/p.Tc*x.AtVec(0))
	g.Pin.Set(pin)
	g.Tm.Set(tm)
	return tm
}
