package device

import (
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
)

// StampAdmittance adds y between n0 and n1. Either index may be
// circuit.Ground, in which case its row and column are left out.
func StampAdmittance(m matrix.DeviceMatrix, n0, n1 int, y complex128) {
	re, im := real(y), imag(y)
	if n0 != circuit.Ground {
		m.AddComplexElement(n0, n0, re, im)
	}
	if n1 != circuit.Ground {
		m.AddComplexElement(n1, n1, re, im)
	}
	if n0 != circuit.Ground && n1 != circuit.Ground {
		m.AddComplexElement(n0, n1, -re, -im)
		m.AddComplexElement(n1, n0, -re, -im)
	}
}

func StampConductance(m matrix.DeviceMatrix, n0, n1 int, g float64) {
	if n0 != circuit.Ground {
		m.AddElement(n0, n0, g)
	}
	if n1 != circuit.Ground {
		m.AddElement(n1, n1, g)
	}
	if n0 != circuit.Ground && n1 != circuit.Ground {
		m.AddElement(n0, n1, -g)
		m.AddElement(n1, n0, -g)
	}
}

// StampCurrentSource injects i into n0 and withdraws it from n1.
func StampCurrentSource(v matrix.DeviceVector, n0, n1 int, i complex128) {
	if n0 != circuit.Ground {
		v.AddComplexRHS(n0, real(i), imag(i))
	}
	if n1 != circuit.Ground {
		v.AddComplexRHS(n1, -real(i), -imag(i))
	}
}

func StampRealCurrentSource(v matrix.DeviceVector, n0, n1 int, i float64) {
	if n0 != circuit.Ground {
		v.AddRHS(n0, i)
	}
	if n1 != circuit.Ground {
		v.AddRHS(n1, -i)
	}
}

// StampVoltageSourceBranch couples branch row b to the terminal nodes so that
// the branch enforces v(n1) - v(n0) and its unknown is the current entering
// terminal 1.
func StampVoltageSourceBranch(m matrix.DeviceMatrix, n0, n1, b int) {
	if n0 != circuit.Ground {
		m.AddElement(n0, b, -1)
		m.AddElement(b, n0, -1)
	}
	if n1 != circuit.Ground {
		m.AddElement(n1, b, 1)
		m.AddElement(b, n1, 1)
	}
}

func NodeVoltage(left matrix.Vector, n int) complex128 {
	if n == circuit.Ground {
		return 0
	}
	return left.At(n)
}

// VoltageAcross is v(n1) - v(n0) from a solved vector.
func VoltageAcross(left matrix.Vector, n0, n1 int) complex128 {
	return NodeVoltage(left, n1) - NodeVoltage(left, n0)
}
