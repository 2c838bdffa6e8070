package circuit

import (
	"fmt"
	"math/cmplx"

	"github.com/edp1096/toy-gridsim/internal/consts"
	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/google/uuid"
)

// Ground is the matrix index of every ground connection. It never addresses
// a matrix row or column.
const Ground = -1

type PhaseType int

const (
	Single PhaseType = iota
	ABC
)

func (p PhaseType) Count() int {
	if p == ABC {
		return 3
	}
	return 1
}

func (p PhaseType) String() string {
	if p == ABC {
		return "ABC"
	}
	return "Single"
}

type Node struct {
	uid     string
	name    string
	phase   PhaseType
	ground  bool
	index   int
	initial []complex128

	attrs   *attribute.Store
	voltage *attribute.Attribute[[]complex128]
}

func NewNode(name string, phase PhaseType) *Node {
	n := &Node{
		uid:     uuid.New().String(),
		name:    name,
		phase:   phase,
		index:   Ground,
		initial: make([]complex128, phase.Count()),
		attrs:   attribute.NewStore(name),
	}
	n.voltage = attribute.New(n.attrs, "v", attribute.Read, make([]complex128, phase.Count()))
	return n
}

func NewGround(phase PhaseType) *Node {
	n := NewNode("gnd", phase)
	n.ground = true
	return n
}

func (n *Node) UID() string { return n.uid }
func (n *Node) Name() string { return n.name }
func (n *Node) Phase() PhaseType { return n.phase }
func (n *Node) IsGround() bool { return n.ground }
func (n *Node) Attributes() *attribute.Store { return n.attrs }
func (n *Node) Voltage() *attribute.Attribute[[]complex128] { return n.voltage }

// MatrixIndex returns the row of the given phase, or Ground.
func (n *Node) MatrixIndex(phase int) int {
	if n.ground || n.index == Ground {
		return Ground
	}
	if phase < 0 || phase >= n.phase.Count() {
		panic(fmt.Sprintf("node %s: phase %d out of range", n.name, phase))
	}
	return n.index + phase
}

func (n *Node) MatrixIndices() []int {
	out := make([]int, n.phase.Count())
	for p := range out {
		out[p] = n.MatrixIndex(p)
	}
	return out
}

func (n *Node) setMatrixIndex(first int) {
	n.index = first
}

// SetInitialVoltage sets the power-flow voltage. A single value on a
// three-phase node is expanded into a balanced positive sequence.
func (n *Node) SetInitialVoltage(v ...complex128) error {
	switch {
	case len(v) == n.phase.Count():
		copy(n.initial, v)
	case len(v) == 1 && n.phase == ABC:
		n.initial[0] = v[0]
		n.initial[1] = v[0] * cmplx.Rect(1, consts.SHIFT_TO_PHASE_B)
		n.initial[2] = v[0] * cmplx.Rect(1, consts.SHIFT_TO_PHASE_C)
	default:
		return fmt.Errorf("node %s: %d initial voltages for %s node", n.name, len(v), n.phase)
	}
	n.voltage.Set(append([]complex128(nil), n.initial...))
	return nil
}

func (n *Node) InitialVoltage(phase int) complex128 {
	if n.ground {
		return 0
	}
	return n.initial[phase]
}

func (n *Node) InitialSingleVoltage() complex128 {
	return n.InitialVoltage(0)
}

func (n *Node) String() string {
	if n.ground {
		return "gnd"
	}
	return fmt.Sprintf("%s[%d]", n.name, n.index)
}
