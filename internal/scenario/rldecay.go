package scenario

import (
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/dp"
)

// DecayCurrent is the inductor current rl-decay starts from.
const DecayCurrent = complex(10, 0)

// buildRLDecay shorts an inductor through a 0 V source. Without resistance
// the DP current only rotates by the companion factor every step.
func buildRLDecay(env Env) (*Case, error) {
	opts := env.options()
	n := circuit.NewNode("n", circuit.Single)
	gnd := circuit.NewGround(circuit.Single)

	src := dp.NewVoltageSource("src", opts...)
	src.SetParameters(0, -1)
	if err := src.Connect(gnd, n); err != nil {
		return nil, err
	}
	rl := dp.NewResIndSeries("rl", opts...)
	rl.SetParameters(0, rlInductance)
	if err := rl.Connect(n, gnd); err != nil {
		return nil, err
	}

	sys := circuit.NewSystem("rl-decay", env.SystemFrequency)
	sys.AddComponent(src, rl)
	return &Case{
		System: sys,
		Domain: device.DP,
		Initialized: func(*circuit.System) error {
			rl.SetIntf(0, 0, DecayCurrent)
			return nil
		},
	}, nil
}
