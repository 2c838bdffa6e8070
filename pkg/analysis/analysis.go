// Package analysis drives a circuit.System through a steady-state solve,
// a fixed-step transient or a per-frequency harmonic transient.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/edp1096/toy-gridsim/internal/ctxlog"
	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/task"
	"github.com/edp1096/toy-gridsim/pkg/util"
)

var (
	ErrNotSetup   = errors.New("analysis not set up")
	ErrNoUnknowns = errors.New("system has no unknowns")
	ErrNotMNA     = errors.New("component does not implement MNA")
)

type Analysis interface {
	Setup(sys *circuit.System) error
	Execute(ctx context.Context) error
	GetResults() map[string][]complex128
}

// Sampler receives every recorded step. datalog.Logger implements it.
type Sampler interface {
	Sample(time float64) error
}

// StepError reports the step, simulated time and task of a failure inside
// the step loop.
type StepError struct {
	Step int
	Time float64
	Task string
	Err  error
}

func (e *StepError) Error() string {
	if e.Task != "" {
		return fmt.Sprintf("step %d (t=%s) task %s: %v", e.Step, util.FormatValueFactor(e.Time, "s"), e.Task, e.Err)
	}
	return fmt.Sprintf("step %d (t=%s): %v", e.Step, util.FormatValueFactor(e.Time, "s"), e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

func stepError(step int, time float64, err error) *StepError {
	se := &StepError{Step: step, Time: time, Err: err}
	var te *task.TaskError
	if errors.As(err, &te) {
		se.Task, se.Err = te.Task, te.Err
	}
	return se
}

type options struct {
	domain      device.Domain
	solver      string
	workers     int
	logger      *slog.Logger
	events      []Event
	tear        []device.Tear
	sampler     Sampler
	initialized func(sys *circuit.System) error
}

type Option func(*options)

func WithDomain(d device.Domain) Option {
	return func(o *options) { o.domain = d }
}

// WithSolver selects the main matrix back end, "sparse" or "dense".
func WithSolver(kind string) Option {
	return func(o *options) { o.solver = kind }
}

func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func WithEvents(events ...Event) Option {
	return func(o *options) { o.events = append(o.events, events...) }
}

// WithTear removes the given components from the main matrix and solves
// them in a separate impedance subsystem.
func WithTear(comps ...device.Tear) Option {
	return func(o *options) { o.tear = append(o.tear, comps...) }
}

func WithSampler(s Sampler) Option {
	return func(o *options) { o.sampler = s }
}

// OnInitialized runs after components are initialized from the node
// voltages and before the matrices are stamped.
func OnInitialized(fn func(sys *circuit.System) error) Option {
	return func(o *options) { o.initialized = fn }
}

func newOptions(opts []Option) options {
	o := options{solver: "sparse", workers: 1}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type BaseAnalysis struct {
	System  *circuit.System
	logger  *slog.Logger
	times   []float64
	results map[string][]complex128 // key: quantity name, value: result by time
}

func NewBaseAnalysis() *BaseAnalysis {
	return &BaseAnalysis{results: make(map[string][]complex128)}
}

func (a *BaseAnalysis) StoreTimeResult(time float64, solution map[string]complex128) {
	// Ignore same time
	if n := len(a.times); n > 0 {
		last := a.times[n-1]
		if time == last {
			return
		}
		// Compare rounded string. 1.999999e-05 == 2.000000e-05
		if util.FormatValueFactor(time, "s") == util.FormatValueFactor(last, "s") {
			return
		}
	}
	a.times = append(a.times, time)
	for name, value := range solution {
		a.results[name] = append(a.results[name], value)
	}
}

func (a *BaseAnalysis) GetResults() map[string][]complex128 {
	return a.results
}

func (a *BaseAnalysis) Times() []float64 {
	return a.times
}

// Final returns the last recorded value of every quantity.
func (a *BaseAnalysis) Final() map[string]complex128 {
	out := make(map[string]complex128, len(a.results))
	for name, values := range a.results {
		if len(values) > 0 {
			out[name] = values[len(values)-1]
		}
	}
	return out
}

func (a *BaseAnalysis) log(ctx context.Context) *slog.Logger {
	if a.logger != nil {
		return a.logger
	}
	return ctxlog.FromContext(ctx)
}

// mnaComponents returns the top-level components as MNA.
func mnaComponents(sys *circuit.System) ([]device.MNA, error) {
	var comps []device.MNA
	var errs []error
	for _, e := range sys.Components() {
		c, ok := e.(device.MNA)
		if !ok {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name(), ErrNotMNA))
			continue
		}
		comps = append(comps, c)
	}
	return comps, errors.Join(errs...)
}

// rightVectors collects the non-empty right vectors of all components and
// their sub-components, skipping the excluded ones.
func rightVectors(sys *circuit.System, skip map[string]bool) []*attribute.Attribute[[]complex128] {
	var out []*attribute.Attribute[[]complex128]
	circuit.Walk(sys.Components(), func(e circuit.Element) {
		c, ok := e.(device.MNA)
		if !ok || skip[e.Name()] {
			return
		}
		if rv := c.RightVector(); len(rv.Get()) > 0 {
			out = append(out, rv)
		}
	})
	return out
}

func phaseSuffix(phases, p int) string {
	if phases == 1 {
		return ""
	}
	return "." + string(rune('a'+p))
}

func freqSuffix(freqs []float64, f int) string {
	if len(freqs) < 2 {
		return ""
	}
	return "@" + strconv.FormatFloat(freqs[f], 'g', -1, 64) + "Hz"
}

// collect reads node voltages from the per-frequency solutions and the
// interface currents of the top-level components. Node voltage attributes
// are updated with the first frequency.
func collect(sys *circuit.System, freqs []float64, solution func(f int) []complex128) map[string]complex128 {
	out := make(map[string]complex128)
	for f := range freqs {
		x := solution(f)
		for _, n := range sys.Nodes() {
			phases := n.Phase().Count()
			vs := make([]complex128, phases)
			for p := 0; p < phases; p++ {
				vs[p] = x[n.MatrixIndex(p)]
				out["V("+n.Name()+phaseSuffix(phases, p)+")"+freqSuffix(freqs, f)] = vs[p]
			}
			if f == 0 {
				n.Voltage().Set(vs)
			}
		}
	}
	for _, e := range sys.Components() {
		c, ok := e.(device.Component)
		if !ok {
			continue
		}
		ref, err := c.Attributes().Get("i_intf")
		if err != nil {
			continue
		}
		is := ref.Value().ComplexVector
		if len(is) == 0 {
			continue
		}
		phases := len(is) / max(len(freqs), 1)
		if phases == 0 {
			continue
		}
		for f := range freqs {
			for p := 0; p < phases && f*phases+p < len(is); p++ {
				out["I("+c.Name()+phaseSuffix(phases, p)+")"+freqSuffix(freqs, f)] = is[f*phases+p]
			}
		}
	}
	return out
}
