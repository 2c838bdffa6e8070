package circuit

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type element struct {
	name      string
	terminals []*Terminal
	virtual   []*Node
	subs      []Element
	branches  int
	branchIdx int
}

func (e *element) Name() string { return e.name }
func (e *element) Terminals() []*Terminal { return e.terminals }
func (e *element) VirtualNodes() []*Node { return e.virtual }
func (e *element) Elements() []Element { return e.subs }
func (e *element) BranchCount() int { return e.branches }
func (e *element) SetBranchIndex(first int) { e.branchIdx = first }

func twoTerminal(name string, phase PhaseType, a, b *Node) *element {
	e := &element{name: name, terminals: []*Terminal{NewTerminal("t0", phase), NewTerminal("t1", phase)}}
	if a != nil {
		_ = e.terminals[0].Connect(a)
	}
	if b != nil {
		_ = e.terminals[1].Connect(b)
	}
	return e
}

func TestAssignIndices(t *testing.T) {
	n1 := NewNode("n1", Single)
	n2 := NewNode("n2", Single)
	gnd := NewGround(Single)

	vn := NewNode("line.vn0", Single)
	inner := twoTerminal("line.R", Single, n1, vn)
	line := twoTerminal("line", Single, n1, n2)
	line.virtual = []*Node{vn}
	line.subs = []Element{inner}

	src := twoTerminal("vs", Single, gnd, n1)
	src.branches = 1

	sys := NewSystem("test", 50)
	sys.AddComponent(line, src)

	size, err := sys.AssignIndices()
	require.NoError(t, err)
	assert.Equal(t, 4, size)
	assert.Equal(t, 4, sys.Size())

	assert.Equal(t, 0, n1.MatrixIndex(0))
	assert.Equal(t, 1, n2.MatrixIndex(0))
	assert.Equal(t, 2, vn.MatrixIndex(0))
	assert.Equal(t, 3, src.branchIdx)
	assert.Equal(t, Ground, gnd.MatrixIndex(0))
	assert.Equal(t, Ground, src.terminals[0].MatrixIndex(0))
	assert.Len(t, sys.Nodes(), 2, "ground and virtual nodes are not network nodes")

	// a sub-component wired to the owner's virtual node must not number it twice
	size, err = sys.AssignIndices()
	require.NoError(t, err)
	assert.Equal(t, 4, size)
	assert.Equal(t, 2, vn.MatrixIndex(0))
	_, err = sys.Node("line.vn0")
	assert.ErrorIs(t, err, ErrNodeNotFound)
}

func TestThreePhaseIndices(t *testing.T) {
	a := NewNode("a", ABC)
	b := NewNode("b", ABC)
	sys := NewSystem("emt", 50)
	sys.AddComponent(twoTerminal("r", ABC, a, b))

	size, err := sys.AssignIndices()
	require.NoError(t, err)
	assert.Equal(t, 6, size)
	assert.Equal(t, []int{0, 1, 2}, a.MatrixIndices())
	assert.Equal(t, []int{3, 4, 5}, b.MatrixIndices())
	assert.Panics(t, func() { a.MatrixIndex(3) })
}

func TestUnconnectedTerminal(t *testing.T) {
	sys := NewSystem("bad", 50)
	sys.AddComponent(twoTerminal("r1", Single, NewNode("n1", Single), nil))

	_, err := sys.AssignIndices()
	assert.ErrorIs(t, err, ErrTerminalNotConnected)
	assert.ErrorContains(t, err, "r1.t1")
}

func TestTerminalPhaseMismatch(t *testing.T) {
	term := NewTerminal("t0", ABC)
	err := term.Connect(NewNode("n", Single))
	assert.ErrorIs(t, err, ErrPhaseMismatch)

	require.NoError(t, term.Connect(NewGround(Single)), "ground accepts any phase")
	assert.True(t, term.IsGrounded())
	assert.Equal(t, complex128(0), term.InitialVoltage(2))
}

func TestInitialVoltage(t *testing.T) {
	abc := NewNode("abc", ABC)
	require.NoError(t, abc.SetInitialVoltage(10))

	assert.Equal(t, complex128(10), abc.InitialVoltage(0))
	assert.InDelta(t, -120, cmplx.Phase(abc.InitialVoltage(1))*180/math.Pi, 1e-9)
	assert.InDelta(t, 120, cmplx.Phase(abc.InitialVoltage(2))*180/math.Pi, 1e-9)
	assert.Len(t, abc.Voltage().Get(), 3)

	single := NewNode("s", Single)
	assert.Error(t, single.SetInitialVoltage(1, 2))
}

func TestInitWithPowerflow(t *testing.T) {
	n1 := NewNode("n1", Single)
	sys := NewSystem("pf", 50)
	sys.AddComponent(twoTerminal("r", Single, n1, NewGround(Single)))

	require.NoError(t, sys.InitWithPowerflow(map[string]complex128{"n1": 1 + 1i}))
	assert.Equal(t, 1+1i, n1.InitialSingleVoltage())

	err := sys.InitWithPowerflow(map[string]complex128{"n9": 1})
	assert.ErrorIs(t, err, ErrNodeNotFound)
}
