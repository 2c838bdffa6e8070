package analysis

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
	"github.com/edp1096/toy-gridsim/pkg/task"
)

var ErrNotHarmonic = errors.New("component has no harmonic model")

// Harmonic runs a DP transient with one independent system per tracked
// frequency. The per-frequency solves run in parallel when workers allow.
type Harmonic struct {
	BaseAnalysis
	opts     options
	timeStep float64
	duration float64

	freqs   []float64
	comps   []device.Harmonic
	lefts   []*attribute.Attribute[[]complex128]
	solvers []matrix.Solver
	events  *eventQueue
	sched   *task.Scheduler
	steps   int
}

func NewHarmonic(timeStep, duration float64, opts ...Option) *Harmonic {
	return &Harmonic{
		BaseAnalysis: *NewBaseAnalysis(),
		opts:         newOptions(opts),
		timeStep:     timeStep,
		duration:     duration,
	}
}

func (h *Harmonic) Steps() int {
	return int(math.Round(h.duration / h.timeStep))
}

func (h *Harmonic) Scheduler() *task.Scheduler { return h.sched }

// Solution returns the solution of frequency index f.
func (h *Harmonic) Solution(f int) matrix.Vector { return h.lefts[f].Get() }

func (h *Harmonic) Setup(sys *circuit.System) error {
	if err := device.CheckTimeStep("harmonic", h.timeStep); err != nil {
		return err
	}
	if h.duration < h.timeStep {
		return fmt.Errorf("harmonic: duration %g shorter than time step %g: %w", h.duration, h.timeStep, device.ErrInvalidParameter)
	}
	h.System = sys
	h.logger = h.opts.logger
	h.freqs = sys.Frequencies
	if len(h.freqs) == 0 {
		h.freqs = []float64{sys.SystemFrequency}
	}

	comps, err := mnaComponents(sys)
	if err != nil {
		return err
	}
	var errs []error
	for _, c := range comps {
		hc, ok := c.(device.Harmonic)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name(), ErrNotHarmonic))
			continue
		}
		h.comps = append(h.comps, hc)
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}

	if err := initializeComponents(sys, comps, h.freqs); err != nil {
		return err
	}
	size, err := sys.AssignIndices()
	if err != nil {
		return err
	}
	if size == 0 {
		return ErrNoUnknowns
	}
	if h.opts.initialized != nil {
		if err := h.opts.initialized(sys); err != nil {
			return err
		}
	}

	h.lefts = make([]*attribute.Attribute[[]complex128], len(h.freqs))
	for f := range h.freqs {
		h.lefts[f] = attribute.New(nil, "left_vector_"+strconv.Itoa(f), attribute.Read, make([]complex128, size))
	}
	omega := 2 * math.Pi * sys.SystemFrequency
	for _, c := range h.comps {
		if err := c.MnaInitializeHarm(omega, h.timeStep, h.lefts); err != nil {
			return err
		}
	}

	h.solvers = make([]matrix.Solver, len(h.freqs))
	for f := range h.freqs {
		m, err := matrix.NewSolver(h.opts.solver, size, true)
		if err != nil {
			return err
		}
		for _, c := range h.comps {
			c.MnaApplySystemMatrixStampHarm(m, f)
		}
		if err := m.Factor(); err != nil {
			return fmt.Errorf("frequency %g: %w", h.freqs[f], err)
		}
		h.solvers[f] = m
	}

	rvs := rightVectors(sys, nil)
	reads := make([]attribute.Ref, len(rvs))
	for i, rv := range rvs {
		reads[i] = rv
	}
	var tasks []task.Task
	for f := range h.freqs {
		tasks = append(tasks, h.solveTask(f, size, rvs, reads))
	}
	for _, c := range h.comps {
		tasks = append(tasks, c.MnaTasks()...)
	}
	h.events = newEventQueue(h.opts.events)
	h.sched = task.NewScheduler(h.logger, h.opts.workers)
	if err := h.sched.Resolve(tasks); err != nil {
		return err
	}

	h.log(context.Background()).Info("harmonic set up",
		"system", sys.Name, "unknowns", size, "frequencies", h.freqs, "tasks", len(tasks))
	return nil
}

func (h *Harmonic) solveTask(f, size int, rvs []*attribute.Attribute[[]complex128], reads []attribute.Ref) task.Task {
	numFreqs := len(h.freqs)
	name := h.System.Name + ".Solve@" + strconv.FormatFloat(h.freqs[f], 'g', -1, 64) + "Hz"
	return task.NewFunc(name, func(float64, int) error {
		rhs := matrix.NewVector(size)
		for _, rv := range rvs {
			rhs.AddVector(matrix.Vector(rv.Get()).Frequency(numFreqs, f))
		}
		x, err := h.solvers[f].Solve(rhs)
		if err != nil {
			return err
		}
		h.lefts[f].Set(x)
		return nil
	}).Reads(reads...).Writes(h.lefts[f])
}

func (h *Harmonic) Execute(ctx context.Context) error {
	if h.sched == nil {
		return ErrNotSetup
	}
	logger := h.log(ctx)
	steps := h.Steps()

	for k := h.steps; k < steps; k++ {
		time := float64(k+1) * h.timeStep
		for _, e := range h.events.due(time, h.timeStep*1e-6) {
			logger.Info("event", "time", time, "event", e.String())
			if err := e.Apply(); err != nil {
				return &StepError{Step: k, Time: time, Err: err}
			}
		}
		if err := h.sched.Step(ctx, time, k); err != nil {
			return stepError(k, time, err)
		}
		h.steps = k + 1

		h.StoreTimeResult(time, collect(h.System, h.freqs, func(f int) []complex128 {
			return h.lefts[f].Get()
		}))
		if h.opts.sampler != nil {
			if err := h.opts.sampler.Sample(time); err != nil {
				return &StepError{Step: k, Time: time, Err: err}
			}
		}
	}

	logger.Info("harmonic done", "system", h.System.Name, "steps", h.steps)
	return nil
}

func (h *Harmonic) Close() {
	for _, m := range h.solvers {
		if m != nil {
			m.Destroy()
		}
	}
}
