// Package device defines the contracts every network component implements:
// topology, attributes, MNA stamping in single-frequency, harmonic and
// tearing variants, and the per-step tasks.
package device

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/edp1096/toy-gridsim/internal/ctxlog"
	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
	"github.com/edp1096/toy-gridsim/pkg/task"
	"github.com/google/uuid"
)

var (
	ErrParameterNotSet  = errors.New("parameters not set")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidTimeStep  = errors.New("time step must be positive")
)

type Domain int

const (
	DP  Domain = iota // single-phase dynamic phasors
	EMT               // three-phase instantaneous values
)

func (d Domain) String() string {
	if d == EMT {
		return "EMT"
	}
	return "DP"
}

type Component interface {
	circuit.Element
	UID() string
	Type() string
	Attributes() *attribute.Store
	Logger() *slog.Logger
	SubComponents() []Component
	// Validate reports configuration errors before the first step.
	Validate() error
}

type MNA interface {
	Component
	Initialize(frequencies []float64)
	InitializeFromNodesAndTerminals(frequency float64) error
	MnaInitialize(omega, dt float64, leftVector *attribute.Attribute[[]complex128]) error
	MnaApplySystemMatrixStamp(m matrix.DeviceMatrix)
	MnaApplyRightSideVectorStamp(v matrix.DeviceVector)
	MnaUpdateVoltage(left matrix.Vector)
	MnaUpdateCurrent(left matrix.Vector)
	MnaTasks() []task.Task
	RightVector() *attribute.Attribute[[]complex128]
}

// Harmonic components stamp one separate system per frequency. Their right
// vector is frequency-major: N unknowns of frequency 0, then frequency 1, ...
type Harmonic interface {
	MNA
	MnaInitializeHarm(omega, dt float64, leftVectors []*attribute.Attribute[[]complex128]) error
	MnaApplySystemMatrixStampHarm(m matrix.DeviceMatrix, freqIdx int)
	MnaApplyRightSideVectorStampHarm(v matrix.DeviceVector)
	MnaUpdateVoltageHarm(left matrix.Vector, freqIdx int)
	MnaUpdateCurrentHarm()
}

// Tear components are removed from the main system and stamped in impedance
// form into a small subsystem indexed by their tear index.
type Tear interface {
	Component
	TearIndex() int
	SetTearIndex(idx int)
	MnaTearInitialize(omega, dt float64) error
	MnaTearApplyMatrixStamp(m matrix.DeviceMatrix)
	MnaTearApplyVoltageStamp(v matrix.DeviceVector)
	MnaTearPostStep(voltage, current complex128)
}

// Switchable components change their system matrix stamp at runtime.
type Switchable interface {
	Component
	IsClosed() bool
	Close(closed bool)
}

// SteadyState components stamp their static phasor model at angular
// frequency omega for the steady-state solve that precedes a transient.
type SteadyState interface {
	Component
	SteadyStateStamp(m matrix.DeviceMatrix, v matrix.DeviceVector, omega float64)
}

type Option func(*Base)

func WithLogger(logger *slog.Logger) Option {
	return func(b *Base) { b.logger = logger }
}

func WithLogLevel(level slog.Level) Option {
	return func(b *Base) { b.logLevel = level }
}

func WithUID(uid string) Option {
	return func(b *Base) { b.uid = uid }
}

type Base struct {
	uid      string
	name     string
	typ      string
	logLevel slog.Level
	logger   *slog.Logger
	parent   *slog.Logger

	attrs        *attribute.Store
	terminals    []*circuit.Terminal
	virtualNodes []*circuit.Node
	subs         []Component
	tasks        []task.Task
	paramsSet    bool

	phases      int
	frequencies []float64

	IntfVoltage *attribute.Attribute[[]complex128]
	IntfCurrent *attribute.Attribute[[]complex128]
	rightVector *attribute.Attribute[[]complex128]
}

// NewBase creates the shared component state with a fixed number of
// terminals of the given phase type.
func NewBase(name, typ string, numTerminals int, phase circuit.PhaseType, opts ...Option) Base {
	b := Base{
		name:     name,
		typ:      typ,
		logLevel: slog.LevelInfo,
		attrs:    attribute.NewStore(name),
		phases:   phase.Count(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	if b.uid == "" {
		b.uid = uuid.New().String()
	}
	b.parent = b.logger
	b.logger = ctxlog.WithLevel(b.logger, b.logLevel).With("component", name)

	for i := 0; i < numTerminals; i++ {
		b.terminals = append(b.terminals, circuit.NewTerminal(fmt.Sprintf("%s.t%d", name, i), phase))
	}
	b.frequencies = []float64{0}
	b.IntfVoltage = attribute.New(b.attrs, "v_intf", attribute.Read, make([]complex128, b.phases))
	b.IntfCurrent = attribute.New(b.attrs, "i_intf", attribute.Read, make([]complex128, b.phases))
	b.rightVector = attribute.New(b.attrs, "right_vector", attribute.Read, []complex128(nil))
	return b
}

func (b *Base) UID() string { return b.uid }
func (b *Base) Name() string { return b.name }
func (b *Base) Type() string { return b.typ }
func (b *Base) Logger() *slog.Logger { return b.logger }
func (b *Base) LogLevel() slog.Level { return b.logLevel }
func (b *Base) Attributes() *attribute.Store { return b.attrs }
func (b *Base) Terminals() []*circuit.Terminal { return b.terminals }
func (b *Base) VirtualNodes() []*circuit.Node { return b.virtualNodes }
func (b *Base) SubComponents() []Component { return b.subs }
func (b *Base) MnaTasks() []task.Task { return b.tasks }
func (b *Base) Frequencies() []float64 { return b.frequencies }
func (b *Base) NumFreqs() int { return len(b.frequencies) }
func (b *Base) Phases() int { return b.phases }

func (b *Base) RightVector() *attribute.Attribute[[]complex128] { return b.rightVector }

func (b *Base) Elements() []circuit.Element {
	out := make([]circuit.Element, len(b.subs))
	for i, s := range b.subs {
		out[i] = s
	}
	return out
}

// Connect attaches nodes to the terminals in order. The count must match
// the terminal arity fixed at construction.
func (b *Base) Connect(nodes ...*circuit.Node) error {
	if len(nodes) != len(b.terminals) {
		return fmt.Errorf("%s: %d nodes for %d terminals: %w", b.name, len(nodes), len(b.terminals), circuit.ErrTerminalArity)
	}
	for i, n := range nodes {
		if err := b.terminals[i].Connect(n); err != nil {
			return fmt.Errorf("%s: %w", b.name, err)
		}
	}
	return nil
}

func (b *Base) Terminal(i int) *circuit.Terminal { return b.terminals[i] }

func (b *Base) AddVirtualNode(phase circuit.PhaseType) *circuit.Node {
	n := circuit.NewNode(fmt.Sprintf("%s.vn%d", b.name, len(b.virtualNodes)), phase)
	b.virtualNodes = append(b.virtualNodes, n)
	return n
}

func (b *Base) VirtualNode(i int) *circuit.Node { return b.virtualNodes[i] }

// ChildOptions passes the logger and level of b on to owned sub-components.
func (b *Base) ChildOptions() []Option {
	return []Option{WithLogger(b.parent), WithLogLevel(b.logLevel)}
}

func (b *Base) AddSubComponent(c Component) {
	b.subs = append(b.subs, c)
}

func (b *Base) ClearSubComponents() {
	b.subs = nil
}

func (b *Base) AddTask(t ...task.Task) {
	b.tasks = append(b.tasks, t...)
}

func (b *Base) ClearTasks() {
	b.tasks = nil
}

func (b *Base) MarkParametersSet() {
	b.paramsSet = true
}

func (b *Base) ParametersSet() bool { return b.paramsSet }

// Validate checks the generic preconditions. Components with further
// parameter constraints call it first.
func (b *Base) Validate() error {
	var errs []error
	if !b.paramsSet {
		errs = append(errs, fmt.Errorf("%s: %w", b.name, ErrParameterNotSet))
	}
	for _, t := range b.terminals {
		if !t.Connected() {
			errs = append(errs, fmt.Errorf("%s: %s: %w", b.name, t.Name(), circuit.ErrTerminalNotConnected))
		}
	}
	for _, s := range b.subs {
		if err := s.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Initialize sizes the interface quantities for the tracked frequencies.
func (b *Base) Initialize(frequencies []float64) {
	b.frequencies = append([]float64(nil), frequencies...)
	n := b.phases * len(frequencies)
	b.IntfVoltage.Set(make([]complex128, n))
	b.IntfCurrent.Set(make([]complex128, n))
	b.IntfVoltage.Snapshot()
	b.IntfCurrent.Snapshot()
}

// InitRightVector allocates the component right vector with size entries
// and snapshots the interface quantities so the first pre-step sees them.
func (b *Base) InitRightVector(size int) {
	b.rightVector.Set(make([]complex128, size))
	b.IntfVoltage.Snapshot()
	b.IntfCurrent.Snapshot()
}

// MatrixNodeIndex is the row of terminal t, phase p, or circuit.Ground.
func (b *Base) MatrixNodeIndex(t, p int) int {
	return b.terminals[t].MatrixIndex(p)
}

func (b *Base) TerminalNotGrounded(t int) bool {
	return !b.terminals[t].IsGrounded()
}

func (b *Base) InitialSingleVoltage(t int) complex128 {
	return b.terminals[t].InitialVoltage(0)
}

func (b *Base) InitialVoltage(t, p int) complex128 {
	return b.terminals[t].InitialVoltage(p)
}

func CheckTimeStep(name string, dt float64) error {
	if dt <= 0 {
		return fmt.Errorf("%s: %w, got %g", name, ErrInvalidTimeStep, dt)
	}
	return nil
}

func CheckPositive(component, param string, v float64) error {
	if v <= 0 {
		return fmt.Errorf("%s: %s must be positive, got %g: %w", component, param, v, ErrInvalidParameter)
	}
	return nil
}

func (b *Base) PrevVoltage(i int) complex128 { return b.IntfVoltage.Prev()[i] }
func (b *Base) PrevCurrent(i int) complex128 { return b.IntfCurrent.Prev()[i] }

// SetIntf writes entry i of the interface voltage and current in place.
func (b *Base) SetIntf(i int, v, c complex128) {
	vs, cs := b.IntfVoltage.Get(), b.IntfCurrent.Get()
	vs[i], cs[i] = v, c
	b.IntfVoltage.Set(vs)
	b.IntfCurrent.Set(cs)
}

// UpdateVoltageAcross stores v(t1) - v(t0) for every tracked frequency of a
// single-phase two-terminal component. left holds all frequencies
// frequency-major.
func (b *Base) UpdateVoltageAcross(left matrix.Vector) {
	n0, n1 := b.MatrixNodeIndex(0, 0), b.MatrixNodeIndex(1, 0)
	numFreqs := b.NumFreqs()
	vs := b.IntfVoltage.Get()
	for f := 0; f < numFreqs; f++ {
		vs[f] = VoltageAcross(left.Frequency(numFreqs, f), n0, n1)
	}
	b.IntfVoltage.Set(vs)
}

// UpdateVoltageAcrossHarm stores v(t1) - v(t0) of frequency freqIdx from
// that frequency's own solution.
func (b *Base) UpdateVoltageAcrossHarm(left matrix.Vector, freqIdx int) {
	vs := b.IntfVoltage.Get()
	vs[freqIdx] = VoltageAcross(left, b.MatrixNodeIndex(0, 0), b.MatrixNodeIndex(1, 0))
	b.IntfVoltage.Set(vs)
}

// InitializeTwoTerminal sets the interface voltage of every frequency from
// the steady-state node voltages and returns it.
func (b *Base) InitializeTwoTerminal() complex128 {
	v := b.InitialSingleVoltage(1) - b.InitialSingleVoltage(0)
	vs := b.IntfVoltage.Get()
	vs[0] = v
	b.IntfVoltage.Set(vs)
	return v
}
