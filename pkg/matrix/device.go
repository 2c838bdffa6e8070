package matrix

import (
	"fmt"
	"io"
)

// DeviceMatrix is the additive target of system matrix stamps. Indices are
// 0-based; ground never has an index and must not reach these methods.
type DeviceMatrix interface {
	Size() int
	AddElement(i, j int, value float64)
	AddComplexElement(i, j int, real, imag float64)
}

// DeviceVector is the additive target of right-hand-side stamps.
type DeviceVector interface {
	Size() int
	AddRHS(i int, value float64)
	AddComplexRHS(i int, real, imag float64)
}

type Solver interface {
	DeviceMatrix
	At(i, j int) complex128
	IsComplex() bool
	Clear()
	Factor() error
	Solve(rhs Vector) (Vector, error)
	Destroy()
}

// PrintSystem writes the stamped matrix row by row.
func PrintSystem(w io.Writer, m Solver) {
	size := m.Size()
	fmt.Fprintf(w, "System matrix (%dx%d):\n", size, size)
	for i := 0; i < size; i++ {
		fmt.Fprintf(w, "%4d", i)
		for j := 0; j < size; j++ {
			v := m.At(i, j)
			if m.IsComplex() {
				fmt.Fprintf(w, " %10.3g%+10.3gj", real(v), imag(v))
			} else {
				fmt.Fprintf(w, " %10.3g", real(v))
			}
		}
		fmt.Fprintln(w)
	}
}
