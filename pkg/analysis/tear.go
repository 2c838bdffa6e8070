package analysis

import (
	"fmt"

	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
)

// tearSystem solves torn branches against the factored main matrix Y.
// Branch j injects its current i_j at terminal 0 and draws it from
// terminal 1, and obeys v_j = Z_j i_j - e_j. With x0 = Y^-1 b the branch
// currents follow from
//
//	(Z + T' Y^-1 T) i = e + v0,  v0_j = x0[n1_j] - x0[n0_j]
//
// and the network solution is x = x0 + Y^-1 T i.
type tearSystem struct {
	comps []device.Tear
	nodes [][2]int
	cols  []matrix.Vector // Y^-1 T_j
	m     *matrix.DenseMatrix
}

func newTearSystem(comps []device.Tear) (*tearSystem, error) {
	ts := &tearSystem{comps: comps}
	for i, c := range comps {
		terms := c.Terminals()
		if len(terms) != 2 {
			return nil, fmt.Errorf("tear %s: %d terminals: %w", c.Name(), len(terms), circuit.ErrTerminalArity)
		}
		c.SetTearIndex(i)
		ts.nodes = append(ts.nodes, [2]int{terms[0].MatrixIndex(0), terms[1].MatrixIndex(0)})
	}
	return ts, nil
}

func (ts *tearSystem) size() int { return len(ts.comps) }

// update recomputes Y^-1 T after the main matrix was factored and rebuilds
// the tear matrix.
func (ts *tearSystem) update(main matrix.Solver) error {
	ts.cols = ts.cols[:0]
	for _, n := range ts.nodes {
		t := matrix.NewVector(main.Size())
		if n[0] != circuit.Ground {
			t[n[0]] += 1
		}
		if n[1] != circuit.Ground {
			t[n[1]] -= 1
		}
		col, err := main.Solve(t)
		if err != nil {
			return fmt.Errorf("tear incidence solve: %w", err)
		}
		ts.cols = append(ts.cols, col)
	}
	return ts.restamp()
}

// restamp rebuilds the tear matrix from the current branch impedances.
func (ts *tearSystem) restamp() error {
	ts.m = matrix.NewDenseMatrix(ts.size(), true)
	for i, n := range ts.nodes {
		for j, col := range ts.cols {
			v := across(col, n)
			ts.m.AddComplexElement(i, j, -real(v), -imag(v))
		}
	}
	for _, c := range ts.comps {
		c.MnaTearApplyMatrixStamp(ts.m)
	}
	return ts.m.Factor()
}

// across is x[n1] - x[n0] with ground at zero.
func across(x matrix.Vector, n [2]int) complex128 {
	var v complex128
	if n[1] != circuit.Ground {
		v += x[n[1]]
	}
	if n[0] != circuit.Ground {
		v -= x[n[0]]
	}
	return v
}

// solve corrects x0 in place and hands every torn branch its voltage and
// current.
func (ts *tearSystem) solve(x0 matrix.Vector) error {
	rhs := matrix.NewVector(ts.size())
	for _, c := range ts.comps {
		c.MnaTearApplyVoltageStamp(rhs)
	}
	for j, n := range ts.nodes {
		rhs[j] += across(x0, n)
	}
	i, err := ts.m.Solve(rhs)
	if err != nil {
		return fmt.Errorf("tear solve: %w", err)
	}
	for j, col := range ts.cols {
		for k := range x0 {
			x0[k] += col[k] * i[j]
		}
	}
	for j, c := range ts.comps {
		c.MnaTearPostStep(across(x0, ts.nodes[j]), i[j])
	}
	return nil
}
