package matrix

import (
	"fmt"

	"github.com/edp1096/sparse"
)

// CircuitMatrix is the sparse LU back end. Indices are 0-based here and
// shifted by one for the sparse package, which reserves row 0 for ground.
type CircuitMatrix struct {
	size      int
	matrix    *sparse.Matrix
	rhs       []float64
	isComplex bool
	factored  bool
	config    *sparse.Configuration
}

func NewMatrix(size int, isComplex bool) (*CircuitMatrix, error) {
	if size <= 0 {
		return nil, fmt.Errorf("matrix size must be positive, got %d", size)
	}

	config := &sparse.Configuration{
		Real:                    true,
		Complex:                 isComplex,
		SeparatedComplexVectors: false,
		Expandable:              true,
		Translate:               false,
		ModifiedNodal:           true,
		TiesMultiplier:          5,
		PrinterWidth:            140,
		Annotate:                0,
	}

	mat, err := sparse.Create(int64(size), config)
	if err != nil {
		return nil, fmt.Errorf("creating sparse matrix: %w", err)
	}

	vectorSize := size + 1
	if isComplex {
		vectorSize *= 2 // interleaved re/im
	}

	return &CircuitMatrix{
		size:      size,
		matrix:    mat,
		rhs:       make([]float64, vectorSize),
		isComplex: isComplex,
		config:    config,
	}, nil
}

func (m *CircuitMatrix) Size() int { return m.size }

func (m *CircuitMatrix) IsComplex() bool { return m.isComplex }

func (m *CircuitMatrix) AddElement(i, j int, value float64) {
	m.check(i, j)
	m.matrix.GetElement(int64(i+1), int64(j+1)).Real += value
	m.factored = false
}

func (m *CircuitMatrix) AddComplexElement(i, j int, real, imag float64) {
	m.check(i, j)
	element := m.matrix.GetElement(int64(i+1), int64(j+1))
	element.Real += real
	if m.isComplex {
		element.Imag += imag
	}
	m.factored = false
}

func (m *CircuitMatrix) At(i, j int) complex128 {
	m.check(i, j)
	element := m.matrix.GetElement(int64(i+1), int64(j+1))
	return complex(element.Real, element.Imag)
}

func (m *CircuitMatrix) Clear() {
	m.matrix.Clear()
	m.factored = false
}

func (m *CircuitMatrix) Factor() error {
	if err := m.matrix.Factor(); err != nil {
		return fmt.Errorf("matrix factorization failed: %w", err)
	}
	m.factored = true
	return nil
}

// Solve runs forward/back substitution against the last factorization.
func (m *CircuitMatrix) Solve(rhs Vector) (Vector, error) {
	if !m.factored {
		if err := m.Factor(); err != nil {
			return nil, err
		}
	}
	if len(rhs) != m.size {
		return nil, fmt.Errorf("rhs size %d does not match matrix size %d", len(rhs), m.size)
	}

	clear(m.rhs)
	out := NewVector(m.size)

	if m.isComplex {
		for i, v := range rhs {
			m.rhs[2*(i+1)] = real(v)
			m.rhs[2*(i+1)+1] = imag(v)
		}
		solution, _, err := m.matrix.SolveComplex(m.rhs, nil)
		if err != nil {
			return nil, fmt.Errorf("matrix solve failed: %w", err)
		}
		for i := range out {
			out[i] = complex(solution[2*(i+1)], solution[2*(i+1)+1])
		}
		return out, nil
	}

	for i, v := range rhs {
		m.rhs[i+1] = real(v)
	}
	solution, err := m.matrix.Solve(m.rhs)
	if err != nil {
		return nil, fmt.Errorf("matrix solve failed: %w", err)
	}
	for i := range out {
		out[i] = complex(solution[i+1], 0)
	}
	return out, nil
}

func (m *CircuitMatrix) Destroy() {
	if m.matrix != nil {
		m.matrix.Destroy()
		m.matrix = nil
	}
}

func (m *CircuitMatrix) check(i, j int) {
	if i < 0 || j < 0 || i >= m.size || j >= m.size {
		panic(fmt.Sprintf("matrix: index (i=%d, j=%d) out of range [0,%d)", i, j, m.size))
	}
}
