package matrix

import "fmt"

// Vector holds one complex entry per unknown. Real-valued systems use only
// the real parts.
type Vector []complex128

func NewVector(size int) Vector {
	return make(Vector, size)
}

func (v Vector) Size() int { return len(v) }

func (v Vector) AddRHS(i int, value float64) {
	v.check(i)
	v[i] += complex(value, 0)
}

func (v Vector) AddComplexRHS(i int, real, imag float64) {
	v.check(i)
	v[i] += complex(real, imag)
}

func (v Vector) At(i int) complex128 {
	v.check(i)
	return v[i]
}

func (v Vector) Clear() {
	clear(v)
}

func (v Vector) AddVector(o Vector) {
	if len(o) != len(v) {
		panic(fmt.Sprintf("matrix: vector size mismatch %d != %d", len(o), len(v)))
	}
	for i := range o {
		v[i] += o[i]
	}
}

// Frequency returns the block of a frequency-major harmonic vector that
// belongs to freqIdx. The block shares storage with v.
func (v Vector) Frequency(numFreqs, freqIdx int) Vector {
	n := len(v) / numFreqs
	if freqIdx < 0 || freqIdx >= numFreqs {
		panic(fmt.Sprintf("matrix: frequency index %d out of range [0,%d)", freqIdx, numFreqs))
	}
	return v[freqIdx*n : (freqIdx+1)*n]
}

func (v Vector) check(i int) {
	if i < 0 || i >= len(v) {
		panic(fmt.Sprintf("matrix: vector index %d out of range [0,%d)", i, len(v)))
	}
}
