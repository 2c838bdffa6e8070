package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
)

var ErrNoSteadyState = errors.New("component has no steady-state model")

// SteadyState solves the static phasor network at the system frequency and
// stores the node voltages as the initial voltages of the system.
type SteadyState struct {
	BaseAnalysis
	opts     options
	comps    []device.SteadyState
	size     int
	solution map[string]complex128
}

func NewSteadyState(opts ...Option) *SteadyState {
	return &SteadyState{BaseAnalysis: *NewBaseAnalysis(), opts: newOptions(opts)}
}

func (ss *SteadyState) Setup(sys *circuit.System) error {
	ss.System = sys
	ss.logger = ss.opts.logger
	ss.comps = ss.comps[:0]

	var errs []error
	for _, e := range sys.Components() {
		c, ok := e.(device.SteadyState)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), ErrNoSteadyState))
			continue
		}
		ss.comps = append(ss.comps, c)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	size, err := sys.AssignIndices()
	if err != nil {
		return err
	}
	if size == 0 {
		return ErrNoUnknowns
	}
	ss.size = size
	return nil
}

func (ss *SteadyState) Execute(ctx context.Context) error {
	if ss.System == nil {
		return ErrNotSetup
	}
	logger := ss.log(ctx)
	omega := 2 * math.Pi * ss.System.SystemFrequency

	m, err := matrix.NewSolver(ss.opts.solver, ss.size, true)
	if err != nil {
		return err
	}
	defer m.Destroy()

	rhs := matrix.NewVector(ss.size)
	for _, c := range ss.comps {
		c.SteadyStateStamp(m, rhs, omega)
	}
	if err := m.Factor(); err != nil {
		return fmt.Errorf("steady state: %w", err)
	}
	x, err := m.Solve(rhs)
	if err != nil {
		return fmt.Errorf("steady state: %w", err)
	}

	ss.solution = make(map[string]complex128)
	result := make(map[string]complex128)
	for _, n := range ss.System.Nodes() {
		v := x[n.MatrixIndex(0)]
		ss.solution[n.Name()] = v
		result["V("+n.Name()+")"] = v
		logger.Debug("steady-state voltage", "node", n.Name(), "v", v)
	}
	ss.StoreTimeResult(0, result)

	if err := ss.System.InitWithPowerflow(ss.solution); err != nil {
		return err
	}
	logger.Info("steady state solved", "system", ss.System.Name, "nodes", len(ss.solution))
	return nil
}

// Solution maps node names to their phase-a phasor.
func (ss *SteadyState) Solution() map[string]complex128 {
	return ss.solution
}
