package circuit

import "fmt"

type Terminal struct {
	name  string
	phase PhaseType
	node  *Node
}

func NewTerminal(name string, phase PhaseType) *Terminal {
	return &Terminal{name: name, phase: phase}
}

func (t *Terminal) Name() string { return t.name }
func (t *Terminal) Phase() PhaseType { return t.phase }
func (t *Terminal) Node() *Node { return t.node }
func (t *Terminal) Connected() bool { return t.node != nil }

func (t *Terminal) Connect(n *Node) error {
	if n == nil {
		return fmt.Errorf("terminal %s: %w", t.name, ErrTerminalNotConnected)
	}
	if !n.IsGround() && n.Phase() != t.phase {
		return fmt.Errorf("terminal %s (%s) to node %s (%s): %w", t.name, t.phase, n.Name(), n.Phase(), ErrPhaseMismatch)
	}
	t.node = n
	return nil
}

func (t *Terminal) IsGrounded() bool {
	return t.node == nil || t.node.IsGround()
}

func (t *Terminal) MatrixIndex(phase int) int {
	if t.IsGrounded() {
		return Ground
	}
	return t.node.MatrixIndex(phase)
}

func (t *Terminal) InitialVoltage(phase int) complex128 {
	if t.IsGrounded() {
		return 0
	}
	return t.node.InitialVoltage(phase)
}
