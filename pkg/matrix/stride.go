package matrix

import "fmt"

type strideMatrix struct {
	m      DeviceMatrix
	n      int
	offset int
}

// Stride addresses the freqIdx block of a frequency-major harmonic matrix:
// row r of frequency k lands at k*N + r with N = Size/numFreqs.
func Stride(m DeviceMatrix, numFreqs, freqIdx int) DeviceMatrix {
	if numFreqs == 1 {
		return m
	}
	if freqIdx < 0 || freqIdx >= numFreqs {
		panic(fmt.Sprintf("matrix: frequency index %d out of range [0,%d)", freqIdx, numFreqs))
	}
	n := m.Size() / numFreqs
	return &strideMatrix{m: m, n: n, offset: freqIdx * n}
}

func (s *strideMatrix) Size() int { return s.n }

func (s *strideMatrix) AddElement(i, j int, value float64) {
	s.check(i, j)
	s.m.AddElement(s.offset+i, s.offset+j, value)
}

func (s *strideMatrix) AddComplexElement(i, j int, real, imag float64) {
	s.check(i, j)
	s.m.AddComplexElement(s.offset+i, s.offset+j, real, imag)
}

func (s *strideMatrix) check(i, j int) {
	if i < 0 || j < 0 || i >= s.n || j >= s.n {
		panic(fmt.Sprintf("matrix: index (i=%d, j=%d) out of range for frequency block of size %d", i, j, s.n))
	}
}

type strideVector struct {
	v      DeviceVector
	n      int
	offset int
}

// StrideVector is the right-hand-side counterpart of Stride.
func StrideVector(v DeviceVector, numFreqs, freqIdx int) DeviceVector {
	if numFreqs == 1 {
		return v
	}
	if freqIdx < 0 || freqIdx >= numFreqs {
		panic(fmt.Sprintf("matrix: frequency index %d out of range [0,%d)", freqIdx, numFreqs))
	}
	n := v.Size() / numFreqs
	return &strideVector{v: v, n: n, offset: freqIdx * n}
}

func (s *strideVector) Size() int { return s.n }

func (s *strideVector) AddRHS(i int, value float64) {
	s.check(i)
	s.v.AddRHS(s.offset+i, value)
}

func (s *strideVector) AddComplexRHS(i int, real, imag float64) {
	s.check(i)
	s.v.AddComplexRHS(s.offset+i, real, imag)
}

func (s *strideVector) check(i int) {
	if i < 0 || i >= s.n {
		panic(fmt.Sprintf("matrix: index %d out of range for frequency block of size %d", i, s.n))
	}
}
