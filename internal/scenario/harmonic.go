package scenario

import (
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/dp"
)

// Harmonics are the source phasors of the fundamental, third and fifth
// harmonic.
var Harmonics = []complex128{230, complex(0, 23), 11.5}

// buildHarmonic drives the rl-step load with a distorted source and solves
// every harmonic in its own system.
func buildHarmonic(env Env) (*Case, error) {
	opts := env.options()
	bus := circuit.NewNode("bus", circuit.Single)
	mid := circuit.NewNode("mid", circuit.Single)
	gnd := circuit.NewGround(circuit.Single)

	src := dp.NewVoltageSource("src", opts...)
	src.SetHarmonicParameters(Harmonics)
	if err := src.Connect(gnd, bus); err != nil {
		return nil, err
	}
	r := dp.NewResistor("r", opts...)
	r.SetParameters(rlResistance)
	if err := r.Connect(bus, mid); err != nil {
		return nil, err
	}
	l := dp.NewResIndSeries("l", opts...)
	l.SetParameters(0, rlInductance)
	if err := l.Connect(mid, gnd); err != nil {
		return nil, err
	}

	f := env.SystemFrequency
	sys := circuit.NewSystem("harmonic", f)
	sys.Frequencies = []float64{f, 3 * f, 5 * f}
	sys.AddComponent(src, r, l)
	return &Case{System: sys, Domain: device.DP, Kind: Harmonic}, nil
}
