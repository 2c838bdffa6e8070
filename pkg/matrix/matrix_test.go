package matrix

import (
	"bytes"
	"math/cmplx"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Two nodes: 1 S from node 0 to ground, 0.5 S between the nodes, (1+1j) S from
// node 1 to ground, 1 A injected into node 0.
func stampDivider(m DeviceMatrix) {
	m.AddComplexElement(0, 0, 1.5, 0)
	m.AddComplexElement(0, 1, -0.5, 0)
	m.AddComplexElement(1, 0, -0.5, 0)
	m.AddComplexElement(1, 1, 1.5, 1)
}

func TestSolversAgree(t *testing.T) {
	for _, kind := range []string{"sparse", "dense"} {
		t.Run(kind, func(t *testing.T) {
			s, err := NewSolver(kind, 2, true)
			require.NoError(t, err)
			defer s.Destroy()

			stampDivider(s)
			require.NoError(t, s.Factor())

			rhs := NewVector(2)
			rhs.AddRHS(0, 1)
			x, err := s.Solve(rhs)
			require.NoError(t, err)

			// Check the residual instead of a hand-derived solution.
			r0 := 1.5*x[0] - 0.5*x[1]
			r1 := -0.5*x[0] + (1.5+1i)*x[1]
			assert.InDelta(t, 0, cmplx.Abs(r0-1), 1e-12)
			assert.InDelta(t, 0, cmplx.Abs(r1), 1e-12)
		})
	}
}

func TestPrintSystem(t *testing.T) {
	var out [2]bytes.Buffer
	for i, kind := range []string{"sparse", "dense"} {
		s, err := NewSolver(kind, 2, true)
		require.NoError(t, err)
		stampDivider(s)
		PrintSystem(&out[i], s)
		s.Destroy()
	}
	assert.Contains(t, out[0].String(), "System matrix (2x2)")
	assert.Contains(t, out[0].String(), "+1j")
	assert.Equal(t, out[0].String(), out[1].String())
}

func TestSolveReusesFactorization(t *testing.T) {
	s, err := NewSolver("sparse", 1, false)
	require.NoError(t, err)
	defer s.Destroy()

	s.AddElement(0, 0, 4)
	require.NoError(t, s.Factor())
	for _, b := range []float64{1, 2, 8} {
		x, err := s.Solve(Vector{complex(b, 0)})
		require.NoError(t, err)
		assert.InDelta(t, b/4, real(x[0]), 1e-15)
		assert.Zero(t, imag(x[0]))
	}
}

func TestDenseSingular(t *testing.T) {
	d := NewDenseMatrix(2, false)
	d.AddElement(0, 0, 1)
	d.AddElement(0, 1, 1)
	d.AddElement(1, 0, 1)
	d.AddElement(1, 1, 1)
	assert.ErrorContains(t, d.Factor(), "singular")
}

func TestOutOfRangePanics(t *testing.T) {
	s, err := NewMatrix(2, true)
	require.NoError(t, err)
	defer s.Destroy()

	assert.Panics(t, func() { s.AddElement(-1, 0, 1) })
	assert.Panics(t, func() { s.AddComplexElement(0, 2, 1, 0) })
	assert.Panics(t, func() { NewDenseMatrix(2, true).AddElement(2, 2, 1) })
	assert.Panics(t, func() { NewVector(2).AddRHS(-1, 1) })
}

func TestSolveSizeMismatch(t *testing.T) {
	s, err := NewSolver("dense", 2, false)
	require.NoError(t, err)
	s.AddElement(0, 0, 1)
	s.AddElement(1, 1, 1)
	_, err = s.Solve(NewVector(3))
	assert.ErrorContains(t, err, "does not match matrix size")
}

func TestNewSolverErrors(t *testing.T) {
	_, err := NewSolver("klu", 2, true)
	assert.ErrorContains(t, err, `unknown solver "klu"`)
	_, err = NewSolver("sparse", 0, true)
	assert.Error(t, err)
	_, err = NewSolver("dense", 0, true)
	assert.Error(t, err)
}

func TestStride(t *testing.T) {
	d := NewDenseMatrix(6, true)
	for f := 0; f < 3; f++ {
		s := Stride(d, 3, f)
		assert.Equal(t, 2, s.Size())
		s.AddComplexElement(1, 0, float64(f+1), 0)
	}
	assert.Equal(t, complex(1, 0), d.At(1, 0))
	assert.Equal(t, complex(2, 0), d.At(3, 2))
	assert.Equal(t, complex(3, 0), d.At(5, 4))

	assert.Same(t, DeviceMatrix(d), Stride(d, 1, 0))
	assert.Panics(t, func() { Stride(d, 3, 0).AddElement(2, 0, 1) })
	assert.Panics(t, func() { Stride(d, 3, 3) })
}

func TestVectorFrequencyBlocks(t *testing.T) {
	v := NewVector(6)
	v.Frequency(3, 2).AddComplexRHS(1, 1, -1)
	assert.Equal(t, complex(1, -1), v[5])

	w := Vector{1, 2, 3, 4, 5, 6}
	v.AddVector(w)
	assert.Equal(t, complex(7, -1), v.At(5))

	v.Clear()
	assert.Equal(t, NewVector(6), v)
	assert.Panics(t, func() { v.AddVector(NewVector(2)) })
}

func TestStrideVector(t *testing.T) {
	v := NewVector(4)
	StrideVector(v, 2, 1).AddComplexRHS(0, 2, 3)
	StrideVector(v, 2, 0).AddRHS(1, 5)
	assert.Equal(t, Vector{0, 5, complex(2, 3), 0}, v)
	assert.Panics(t, func() { StrideVector(v, 2, 0).AddRHS(2, 1) })
}
