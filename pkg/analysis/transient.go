package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
	"github.com/edp1096/toy-gridsim/pkg/task"
)

var ErrTearUnsupported = errors.New("tearing needs a single-frequency DP system")

type switchState struct {
	sw     device.Switchable
	closed bool
	torn   bool
}

// Transient steps a system with a fixed time step. Step k solves the
// network at time (k+1)*dt.
type Transient struct {
	BaseAnalysis
	opts     options
	timeStep float64
	duration float64

	freqs  []float64
	comps  []device.MNA
	torn   map[string]bool
	left   *attribute.Attribute[[]complex128]
	solver matrix.Solver
	tear   *tearSystem
	sws    []switchState
	events *eventQueue
	sched  *task.Scheduler
	steps  int
}

func NewTransient(timeStep, duration float64, opts ...Option) *Transient {
	return &Transient{
		BaseAnalysis: *NewBaseAnalysis(),
		opts:         newOptions(opts),
		timeStep:     timeStep,
		duration:     duration,
	}
}

func (tr *Transient) TimeStep() float64 { return tr.timeStep }

// Steps is the number of steps Execute runs.
func (tr *Transient) Steps() int {
	return int(math.Round(tr.duration / tr.timeStep))
}

func (tr *Transient) Solution() matrix.Vector { return tr.left.Get() }

func (tr *Transient) Scheduler() *task.Scheduler { return tr.sched }

func (tr *Transient) Setup(sys *circuit.System) error {
	if err := device.CheckTimeStep("transient", tr.timeStep); err != nil {
		return err
	}
	if tr.duration < tr.timeStep {
		return fmt.Errorf("transient: duration %g shorter than time step %g: %w", tr.duration, tr.timeStep, device.ErrInvalidParameter)
	}
	tr.System = sys
	tr.logger = tr.opts.logger

	comps, err := mnaComponents(sys)
	if err != nil {
		return err
	}
	tr.comps = comps
	tr.freqs = sys.Frequencies
	if len(tr.freqs) == 0 {
		tr.freqs = []float64{sys.SystemFrequency}
	}

	tr.torn = make(map[string]bool)
	for _, c := range tr.opts.tear {
		tr.torn[c.Name()] = true
	}
	if len(tr.torn) > 0 && (tr.opts.domain != device.DP || len(tr.freqs) != 1) {
		return ErrTearUnsupported
	}

	if err := initializeComponents(sys, comps, tr.freqs); err != nil {
		return err
	}
	if err := checkTorn(comps, tr.opts.tear); err != nil {
		return err
	}

	size, err := sys.AssignIndices()
	if err != nil {
		return err
	}
	if size == 0 {
		return ErrNoUnknowns
	}
	if tr.opts.initialized != nil {
		if err := tr.opts.initialized(sys); err != nil {
			return err
		}
	}

	total := size * len(tr.freqs)
	tr.left = attribute.New(nil, "left_vector", attribute.Read, make([]complex128, total))
	omega := 2 * math.Pi * sys.SystemFrequency
	for _, c := range comps {
		if t, ok := c.(device.Tear); ok && tr.torn[c.Name()] {
			if err := t.MnaTearInitialize(omega, tr.timeStep); err != nil {
				return err
			}
			continue
		}
		if err := c.MnaInitialize(omega, tr.timeStep, tr.left); err != nil {
			return err
		}
	}

	tr.solver, err = matrix.NewSolver(tr.opts.solver, total, tr.opts.domain == device.DP)
	if err != nil {
		return err
	}
	tr.stamp()
	if logger := tr.log(context.Background()); logger.Enabled(context.Background(), slog.LevelDebug) && total <= 32 {
		var b strings.Builder
		matrix.PrintSystem(&b, tr.solver)
		logger.Debug("stamped system", "matrix", b.String())
	}
	if err := tr.solver.Factor(); err != nil {
		return err
	}
	if len(tr.opts.tear) > 0 {
		if tr.tear, err = newTearSystem(tr.opts.tear); err != nil {
			return err
		}
		if err := tr.tear.update(tr.solver); err != nil {
			return err
		}
	}

	circuit.Walk(sys.Components(), func(e circuit.Element) {
		if sw, ok := e.(device.Switchable); ok {
			tr.sws = append(tr.sws, switchState{sw: sw, closed: sw.IsClosed(), torn: tr.torn[e.Name()]})
		}
	})
	tr.events = newEventQueue(tr.opts.events)

	solve, err := tr.solveTask(sys, total)
	if err != nil {
		return err
	}
	tasks := []task.Task{solve}
	for _, c := range comps {
		tasks = append(tasks, c.MnaTasks()...)
	}
	tr.sched = task.NewScheduler(tr.logger, tr.opts.workers)
	if err := tr.sched.Resolve(tasks); err != nil {
		return err
	}

	tr.log(context.Background()).Info("transient set up",
		"system", sys.Name, "domain", tr.opts.domain, "unknowns", total,
		"frequencies", len(tr.freqs), "torn", len(tr.opts.tear), "tasks", len(tasks))
	return nil
}

// initializeComponents sizes, validates and initializes every component
// from the node voltages of the prior steady-state solution.
func initializeComponents(sys *circuit.System, comps []device.MNA, freqs []float64) error {
	for _, c := range comps {
		c.Initialize(freqs)
	}
	var errs []error
	for _, c := range comps {
		if err := c.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	for _, c := range comps {
		if err := c.InitializeFromNodesAndTerminals(sys.SystemFrequency); err != nil {
			return err
		}
	}
	return nil
}

func checkTorn(comps []device.MNA, torn []device.Tear) error {
	in := make(map[string]bool, len(comps))
	for _, c := range comps {
		in[c.Name()] = true
	}
	for _, t := range torn {
		if !in[t.Name()] {
			return fmt.Errorf("tear %s: not a top-level component of the system", t.Name())
		}
	}
	return nil
}

func (tr *Transient) stamp() {
	for _, c := range tr.comps {
		if !tr.torn[c.Name()] {
			c.MnaApplySystemMatrixStamp(tr.solver)
		}
	}
}

// solveTask sums the component right vectors, solves the main system and
// corrects it with the torn branch currents.
func (tr *Transient) solveTask(sys *circuit.System, total int) (task.Task, error) {
	rvs := rightVectors(sys, tr.torn)
	reads := make([]attribute.Ref, len(rvs))
	for i, rv := range rvs {
		reads[i] = rv
	}
	writes := []attribute.Ref{tr.left}
	var prev []attribute.Ref
	for _, c := range tr.opts.tear {
		for _, name := range []string{"v_intf", "i_intf"} {
			ref, err := c.Attributes().Get(name)
			if err != nil {
				return nil, err
			}
			ref.Snapshot()
			prev = append(prev, ref)
			writes = append(writes, ref)
		}
	}

	return task.NewFunc(sys.Name+".Solve", func(float64, int) error {
		rhs := matrix.NewVector(total)
		for _, rv := range rvs {
			rhs.AddVector(rv.Get())
		}
		x, err := tr.solver.Solve(rhs)
		if err != nil {
			return err
		}
		if tr.tear != nil {
			if err := tr.tear.solve(x); err != nil {
				return err
			}
		}
		tr.left.Set(x)
		return nil
	}).Reads(reads...).ReadsPrev(prev...).Writes(writes...), nil
}

// applyEvents applies the events due at time and refactors whatever
// matrix a switch change touched.
func (tr *Transient) applyEvents(logger *slog.Logger, time float64) error {
	for _, e := range tr.events.due(time, tr.timeStep*1e-6) {
		logger.Info("event", "time", time, "event", e.String())
		if err := e.Apply(); err != nil {
			return err
		}
	}

	var mainChanged, tearChanged bool
	for i := range tr.sws {
		s := &tr.sws[i]
		if closed := s.sw.IsClosed(); closed != s.closed {
			s.closed = closed
			if s.torn {
				tearChanged = true
			} else {
				mainChanged = true
			}
		}
	}

	if mainChanged {
		logger.Debug("refactoring system matrix", "time", time)
		tr.solver.Clear()
		tr.stamp()
		if err := tr.solver.Factor(); err != nil {
			return err
		}
		if tr.tear != nil {
			return tr.tear.update(tr.solver)
		}
		return nil
	}
	if tearChanged {
		logger.Debug("restamping tear matrix", "time", time)
		return tr.tear.restamp()
	}
	return nil
}

func (tr *Transient) Execute(ctx context.Context) error {
	if tr.sched == nil {
		return ErrNotSetup
	}
	logger := tr.log(ctx)
	steps := tr.Steps()
	numFreqs := len(tr.freqs)

	for k := tr.steps; k < steps; k++ {
		time := float64(k+1) * tr.timeStep
		if err := tr.applyEvents(logger, time); err != nil {
			return &StepError{Step: k, Time: time, Err: err}
		}
		if err := tr.sched.Step(ctx, time, k); err != nil {
			return stepError(k, time, err)
		}
		tr.steps = k + 1

		x := matrix.Vector(tr.left.Get())
		tr.StoreTimeResult(time, collect(tr.System, tr.freqs, func(f int) []complex128 {
			return x.Frequency(numFreqs, f)
		}))
		if tr.opts.sampler != nil {
			if err := tr.opts.sampler.Sample(time); err != nil {
				return &StepError{Step: k, Time: time, Err: err}
			}
		}
	}

	logger.Info("transient done", "system", tr.System.Name, "steps", tr.steps, "time", float64(tr.steps)*tr.timeStep)
	return nil
}

// Close releases the matrix back end.
func (tr *Transient) Close() {
	if tr.solver != nil {
		tr.solver.Destroy()
	}
}
