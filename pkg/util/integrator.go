package util

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Trapezoidal advances x by one step of the trapezoidal rule given the
// derivative at the start and end of the step.
func Trapezoidal(x, dxPrev, dxCur, h float64) float64 {
	return x + h/2*(dxPrev+dxCur)
}

// StateSpace integrates x' = A x + B u with the trapezoidal rule:
//
//	x[k+1] = (I - A h/2)^-1 ((I + A h/2) x[k] + h/2 B (u[k+1] + u[k]))
//
// B may change between steps. A is fixed at construction.
type StateSpace struct {
	n, m  int
	h     float64
	ad    *mat.Dense // (I - A h/2)^-1 (I + A h/2)
	inv   *mat.Dense // (I - A h/2)^-1
	B     *mat.Dense
	state *mat.VecDense
}

func NewStateSpace(a, b *mat.Dense, h float64) (*StateSpace, error) {
	n, c := a.Dims()
	if n != c {
		return nil, fmt.Errorf("state matrix is %dx%d, want square", n, c)
	}
	br, m := b.Dims()
	if br != n {
		return nil, fmt.Errorf("input matrix has %d rows, want %d", br, n)
	}
	if h <= 0 {
		return nil, fmt.Errorf("state space step %g must be positive", h)
	}

	id := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		id.SetDiag(i, 1)
	}
	var lhs, rhs mat.Dense
	lhs.Scale(-h/2, a)
	lhs.Add(&lhs, id)
	rhs.Scale(h/2, a)
	rhs.Add(&rhs, id)

	inv := mat.NewDense(n, n, nil)
	if err := inv.Inverse(&lhs); err != nil {
		return nil, fmt.Errorf("state space discretization: %w", err)
	}
	ad := mat.NewDense(n, n, nil)
	ad.Mul(inv, &rhs)

	return &StateSpace{n: n, m: m, h: h, ad: ad, inv: inv, B: mat.DenseCopyOf(b), state: mat.NewVecDense(n, nil)}, nil
}

func (s *StateSpace) State() *mat.VecDense { return s.state }

func (s *StateSpace) SetState(x []float64) {
	s.state = mat.NewVecDense(s.n, append([]float64(nil), x...))
}

func (s *StateSpace) At(i int) float64 { return s.state.AtVec(i) }

// Step advances the state with inputs uPrev at the start and uCur at the end
// of the step.
func (s *StateSpace) Step(uPrev, uCur []float64) *mat.VecDense {
	if len(uPrev) != s.m || len(uCur) != s.m {
		panic(fmt.Sprintf("util: state space expects %d inputs", s.m))
	}
	sum := mat.NewVecDense(s.m, nil)
	for i := range uCur {
		sum.SetVec(i, uCur[i]+uPrev[i])
	}
	var bu, tmp, next mat.VecDense
	bu.MulVec(s.B, sum)
	bu.ScaleVec(s.h/2, &bu)
	tmp.MulVec(s.inv, &bu)
	next.MulVec(s.ad, s.state)
	next.AddVec(&next, &tmp)
	s.state = &next
	return s.state
}
