package circuit

import (
	"errors"
	"fmt"
)

var (
	ErrTerminalNotConnected = errors.New("terminal not connected")
	ErrTerminalArity        = errors.New("terminal arity mismatch")
	ErrPhaseMismatch        = errors.New("phase type mismatch")
	ErrNodeNotFound         = errors.New("node not found")
)

// Element is the topology view of a component.
type Element interface {
	Name() string
	Terminals() []*Terminal
	VirtualNodes() []*Node
	Elements() []Element
}

// BranchElement needs extra unknowns beyond its nodes, such as the current
// of an ideal voltage source.
type BranchElement interface {
	BranchCount() int
	SetBranchIndex(first int)
}

type System struct {
	Name            string
	SystemFrequency float64
	Frequencies     []float64

	nodes      []*Node
	nodeByName map[string]*Node
	components []Element
	size       int
}

func NewSystem(name string, systemFrequency float64) *System {
	return &System{
		Name:            name,
		SystemFrequency: systemFrequency,
		Frequencies:     []float64{systemFrequency},
		nodeByName:      make(map[string]*Node),
	}
}

func (s *System) AddNode(nodes ...*Node) {
	for _, n := range nodes {
		if n.IsGround() {
			continue
		}
		if _, exists := s.nodeByName[n.Name()]; exists {
			continue
		}
		s.nodes = append(s.nodes, n)
		s.nodeByName[n.Name()] = n
	}
}

func (s *System) AddComponent(comps ...Element) {
	s.components = append(s.components, comps...)
}

func (s *System) Nodes() []*Node { return s.nodes }
func (s *System) Components() []Element { return s.components }

// Size is the number of unknowns per frequency after AssignIndices.
func (s *System) Size() int { return s.size }

func (s *System) Node(name string) (*Node, error) {
	n, ok := s.nodeByName[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrNodeNotFound)
	}
	return n, nil
}

// Walk visits every component and its owned sub-components depth first.
func Walk(elems []Element, fn func(Element)) {
	for _, e := range elems {
		fn(e)
		Walk(e.Elements(), fn)
	}
}

// AssignIndices numbers network nodes, then virtual nodes, then branch rows.
// Unconnected terminals are reported here, before any stamping happens.
func (s *System) AssignIndices() (int, error) {
	if err := s.collectNodes(); err != nil {
		return 0, err
	}

	idx := 0
	for _, n := range s.nodes {
		n.setMatrixIndex(idx)
		idx += n.Phase().Count()
	}

	Walk(s.components, func(e Element) {
		for _, vn := range e.VirtualNodes() {
			vn.setMatrixIndex(idx)
			idx += vn.Phase().Count()
		}
	})

	Walk(s.components, func(e Element) {
		if b, ok := e.(BranchElement); ok && b.BranchCount() > 0 {
			b.SetBranchIndex(idx)
			idx += b.BranchCount()
		}
	})

	s.size = idx
	return idx, nil
}

// InitWithPowerflow copies a steady-state solution into the node initial
// voltages. Keys are node names.
func (s *System) InitWithPowerflow(solution map[string]complex128) error {
	if err := s.collectNodes(); err != nil {
		return err
	}
	for name, v := range solution {
		n, err := s.Node(name)
		if err != nil {
			return fmt.Errorf("powerflow solution: %w", err)
		}
		if err := n.SetInitialVoltage(v); err != nil {
			return err
		}
	}
	return nil
}

// collectNodes registers every node reached through a terminal. Virtual
// nodes stay with their owner, even when a sub-component connects to one.
func (s *System) collectNodes() error {
	virtual := make(map[*Node]bool)
	Walk(s.components, func(e Element) {
		for _, vn := range e.VirtualNodes() {
			virtual[vn] = true
		}
	})

	var errs []error
	Walk(s.components, func(e Element) {
		for _, t := range e.Terminals() {
			if !t.Connected() {
				errs = append(errs, fmt.Errorf("%s.%s: %w", e.Name(), t.Name(), ErrTerminalNotConnected))
				continue
			}
			if virtual[t.Node()] {
				continue
			}
			s.AddNode(t.Node())
		}
	})
	return errors.Join(errs...)
}
