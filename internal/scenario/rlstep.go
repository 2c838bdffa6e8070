package scenario

import (
	"github.com/edp1096/toy-gridsim/pkg/analysis"
	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/datalog"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/dp"
	"github.com/edp1096/toy-gridsim/pkg/emt"
)

const (
	rlVoltage    = 230.0
	rlResistance = 1.0
	rlInductance = 0.01
)

// buildRLStep halves the source voltage at mid-run. The DP variant starts
// from a steady-state solve, the EMT variant from rest.
func buildRLStep(env Env) (*Case, error) {
	if env.Domain == device.EMT {
		return buildRLStepEMT(env)
	}
	opts := env.options()
	bus := circuit.NewNode("bus", circuit.Single)
	mid := circuit.NewNode("mid", circuit.Single)
	gnd := circuit.NewGround(circuit.Single)

	src := dp.NewVoltageSource("src", opts...)
	src.SetParameters(rlVoltage, -1)
	r := dp.NewResistor("r", opts...)
	r.SetParameters(rlResistance)
	l := dp.NewResIndSeries("l", opts...)
	l.SetParameters(0, rlInductance)

	if err := src.Connect(gnd, bus); err != nil {
		return nil, err
	}
	if err := r.Connect(bus, mid); err != nil {
		return nil, err
	}
	if err := l.Connect(mid, gnd); err != nil {
		return nil, err
	}

	sys := circuit.NewSystem("rl-step", env.SystemFrequency)
	sys.AddComponent(src, r, l)
	return &Case{
		System:      sys,
		Domain:      device.DP,
		SteadyState: true,
		Events: []analysis.Event{analysis.AttributeEvent{
			At: env.Duration / 2, Store: src.Attributes(), Name: "V_ref", Value: attribute.ComplexValue(rlVoltage / 2),
		}},
		Watch: func(dl *datalog.Logger) error {
			return dl.LogAttributes(src.Attributes(), "V_ref")
		},
	}, nil
}

func buildRLStepEMT(env Env) (*Case, error) {
	opts := env.options()
	bus := circuit.NewNode("bus", circuit.ABC)
	mid := circuit.NewNode("mid", circuit.ABC)
	gnd := circuit.NewGround(circuit.ABC)

	src := emt.NewControlledVoltageSource("src", opts...)
	src.SetParameters(balanced(rlVoltage))
	r := emt.NewResistor("r", opts...)
	r.SetParameters(rlResistance)
	l := emt.NewInductor("l", opts...)
	l.SetParameters(rlInductance)

	if err := src.Connect(gnd, bus); err != nil {
		return nil, err
	}
	if err := r.Connect(bus, mid); err != nil {
		return nil, err
	}
	if err := l.Connect(mid, gnd); err != nil {
		return nil, err
	}

	sys := circuit.NewSystem("rl-step", env.SystemFrequency)
	sys.AddComponent(src, r, l)
	half := attribute.Value{Kind: attribute.KindRealVector, RealVector: balanced(rlVoltage / 2)}
	return &Case{
		System: sys,
		Domain: device.EMT,
		Events: []analysis.Event{analysis.AttributeEvent{
			At: env.Duration / 2, Store: src.Attributes(), Name: "V_ref", Value: half,
		}},
		Watch: func(dl *datalog.Logger) error {
			return dl.LogAttributes(src.Attributes(), "V_ref")
		},
	}, nil
}

// balanced returns the phase values of a snapshot at the a-phase peak.
func balanced(v float64) []float64 {
	return []float64{v, -v / 2, -v / 2}
}
