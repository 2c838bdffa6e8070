package matrix

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// DenseMatrix solves small systems with gonum LU. Complex systems are
// embedded into a real system of twice the size:
//
//	[ Re -Im ] [x_re]   [b_re]
//	[ Im  Re ] [x_im] = [b_im]
type DenseMatrix struct {
	size      int
	isComplex bool
	re        *mat.Dense
	im        *mat.Dense
	lu        mat.LU
	factored  bool
}

func NewDenseMatrix(size int, isComplex bool) *DenseMatrix {
	if size <= 0 {
		panic(fmt.Sprintf("matrix: dense size must be positive, got %d", size))
	}
	return &DenseMatrix{
		size:      size,
		isComplex: isComplex,
		re:        mat.NewDense(size, size, nil),
		im:        mat.NewDense(size, size, nil),
	}
}

func (m *DenseMatrix) Size() int { return m.size }

func (m *DenseMatrix) IsComplex() bool { return m.isComplex }

func (m *DenseMatrix) AddElement(i, j int, value float64) {
	m.check(i, j)
	m.re.Set(i, j, m.re.At(i, j)+value)
	m.factored = false
}

func (m *DenseMatrix) AddComplexElement(i, j int, real, imag float64) {
	m.check(i, j)
	m.re.Set(i, j, m.re.At(i, j)+real)
	if m.isComplex {
		m.im.Set(i, j, m.im.At(i, j)+imag)
	}
	m.factored = false
}

func (m *DenseMatrix) At(i, j int) complex128 {
	m.check(i, j)
	return complex(m.re.At(i, j), m.im.At(i, j))
}

func (m *DenseMatrix) Clear() {
	m.re.Zero()
	m.im.Zero()
	m.factored = false
}

func (m *DenseMatrix) Factor() error {
	a := m.re
	if m.isComplex {
		n := m.size
		a = mat.NewDense(2*n, 2*n, nil)
		a.Slice(0, n, 0, n).(*mat.Dense).Copy(m.re)
		a.Slice(n, 2*n, n, 2*n).(*mat.Dense).Copy(m.re)
		a.Slice(n, 2*n, 0, n).(*mat.Dense).Copy(m.im)
		a.Slice(0, n, n, 2*n).(*mat.Dense).Scale(-1, m.im)
	}
	m.lu.Factorize(a)
	if m.lu.Det() == 0 {
		return fmt.Errorf("matrix factorization failed: singular matrix")
	}
	m.factored = true
	return nil
}

func (m *DenseMatrix) Solve(rhs Vector) (Vector, error) {
	if !m.factored {
		if err := m.Factor(); err != nil {
			return nil, err
		}
	}
	if len(rhs) != m.size {
		return nil, fmt.Errorf("rhs size %d does not match matrix size %d", len(rhs), m.size)
	}

	n := m.size
	dim := n
	if m.isComplex {
		dim = 2 * n
	}
	b := mat.NewVecDense(dim, nil)
	for i, v := range rhs {
		b.SetVec(i, real(v))
		if m.isComplex {
			b.SetVec(n+i, imag(v))
		}
	}

	var x mat.VecDense
	if err := m.lu.SolveVecTo(&x, false, b); err != nil {
		// A poorly conditioned system still yields a solution.
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return nil, fmt.Errorf("matrix solve failed: %w", err)
		}
	}

	out := NewVector(n)
	for i := range out {
		if m.isComplex {
			out[i] = complex(x.AtVec(i), x.AtVec(n+i))
		} else {
			out[i] = complex(x.AtVec(i), 0)
		}
	}
	return out, nil
}

func (m *DenseMatrix) Destroy() {}

func (m *DenseMatrix) check(i, j int) {
	if i < 0 || j < 0 || i >= m.size || j >= m.size {
		panic(fmt.Sprintf("matrix: index (i=%d, j=%d) out of range [0,%d)", i, j, m.size))
	}
}

// NewSolver picks a back end by name: "sparse" or "dense".
func NewSolver(kind string, size int, isComplex bool) (Solver, error) {
	switch kind {
	case "", "sparse":
		return NewMatrix(size, isComplex)
	case "dense":
		if size <= 0 {
			return nil, fmt.Errorf("matrix size must be positive, got %d", size)
		}
		return NewDenseMatrix(size, isComplex), nil
	}
	return nil, fmt.Errorf("unknown solver %q", kind)
}
