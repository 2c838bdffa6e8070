// Package signal holds control blocks that feed machine models: a DC1-type
// exciter and a type 1 turbine governor.
package signal

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/edp1096/toy-gridsim/internal/ctxlog"
	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/util"
	"gonum.org/v1/gonum/mat"
)

var ErrInvalidParameter = errors.New("invalid control parameter")

type ExciterParameters struct {
	Ta, Ka float64 // regulator
	Te, Ke float64 // exciter
	Tf, Kf float64 // stabilizing feedback
	Tr     float64 // voltage transducer
}

// Exciter regulates the field voltage Ef from the terminal voltage
// magnitude. States are [Vm, Vr, Rf, Ef], all in per unit.
type Exciter struct {
	name   string
	params ExciterParameters
	logger *slog.Logger
	attrs  *attribute.Store

	Vref *attribute.Attribute[float64]
	Vm   *attribute.Attribute[float64]
	Vr   *attribute.Attribute[float64]
	Ef   *attribute.Attribute[float64]

	ss     *util.StateSpace
	vhPrev float64
}

func NewExciter(name string, logger *slog.Logger) *Exciter {
	e := &Exciter{name: name, attrs: attribute.NewStore(name)}
	if logger == nil {
		logger = ctxlog.Discard()
	}
	e.logger = logger.With("component", name)
	e.Vref = attribute.New(e.attrs, "Vref", attribute.ReadWrite, 0.0)
	e.Vm = attribute.New(e.attrs, "Vm", attribute.Read, 0.0)
	e.Vr = attribute.New(e.attrs, "Vr", attribute.Read, 0.0)
	e.Ef = attribute.New(e.attrs, "Ef", attribute.Read, 0.0)
	return e
}

func (e *Exciter) Name() string { return e.name }
func (e *Exciter) Attributes() *attribute.Store { return e.attrs }

func (e *Exciter) SetParameters(p ExciterParameters) {
	e.params = p
}

func (e *Exciter) Parameters() ExciterParameters { return e.params }

func (e *Exciter) validate() error {
	p := e.params
	var errs []error
	for _, c := range []struct {
		name string
		v    float64
	}{{"Ta", p.Ta}, {"Te", p.Te}, {"Tf", p.Tf}, {"Tr", p.Tr}, {"Ka", p.Ka}} {
		if c.v <= 0 {
			errs = append(errs, fmt.Errorf("%s: %s must be positive, got %g: %w", e.name, c.name, c.v, ErrInvalidParameter))
		}
	}
	return errors.Join(errs...)
}

// Initialize places the exciter in steady state for terminal voltage vh and
// field voltage ef and discretizes it with step h.
func (e *Exciter) Initialize(vh, ef, h float64) error {
	if err := e.validate(); err != nil {
		return err
	}
	p := e.params
	a := mat.NewDense(4, 4, []float64{
		-1 / p.Tr, 0, 0, 0,
		-p.Ka / p.Ta, -1 / p.Ta, p.Ka / p.Ta, -p.Ka * p.Kf / (p.Tf * p.Ta),
		0, 0, -1 / p.Tf, p.Kf / (p.Tf * p.Tf),
		0, 1 / p.Te, 0, -p.Ke / p.Te,
	})
	b := mat.NewDense(4, 2, []float64{
		1 / p.Tr, 0,
		0, p.Ka / p.Ta,
		0, 0,
		0, 0,
	})
	ss, err := util.NewStateSpace(a, b, h)
	if err != nil {
		return fmt.Errorf("%s: %w", e.name, err)
	}
	e.ss = ss

	vr := p.Ke * ef
	rf := p.Kf / p.Tf * ef
	e.ss.SetState([]float64{vh, vr, rf, ef})
	e.Vref.Set(vh + vr/p.Ka)
	e.Vm.Set(vh)
	e.Vr.Set(vr)
	e.Ef.Set(ef)
	e.vhPrev = vh
	e.logger.Debug("exciter initialized", "Vref", e.Vref.Get(), "Ef", ef)
	return nil
}

// Step advances one time step with the new terminal voltage magnitude and
// returns the field voltage.
func (e *Exciter) Step(vh float64) float64 {
	vref := e.Vref.Get()
	x := e.ss.Step([]float64{e.vhPrev, vref}, []float64{vh, vref})
	e.vhPrev = vh
	e.Vm.Set(x.AtVec(0))
	e.Vr.Set(x.AtVec(1))
	e.Ef.Set(x.AtVec(3))
	return x.AtVec(3)
}
