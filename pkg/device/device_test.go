package device

import (
	"testing"

	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/matrix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMatrix struct {
	size    int
	touched map[[2]int]complex128
}

func newRecordingMatrix(size int) *recordingMatrix {
	return &recordingMatrix{size: size, touched: make(map[[2]int]complex128)}
}

func (m *recordingMatrix) Size() int { return m.size }

func (m *recordingMatrix) AddElement(i, j int, v float64) {
	m.AddComplexElement(i, j, v, 0)
}

func (m *recordingMatrix) AddComplexElement(i, j int, re, im float64) {
	if i < 0 || j < 0 || i >= m.size || j >= m.size {
		panic("index out of range")
	}
	m.touched[[2]int{i, j}] += complex(re, im)
}

func TestStampAdmittanceSkipsGround(t *testing.T) {
	y := complex(2, -3)

	m := newRecordingMatrix(2)
	StampAdmittance(m, circuit.Ground, 1, y)
	assert.Equal(t, map[[2]int]complex128{{1, 1}: y}, m.touched)

	m = newRecordingMatrix(2)
	StampAdmittance(m, 0, circuit.Ground, y)
	assert.Equal(t, map[[2]int]complex128{{0, 0}: y}, m.touched)

	m = newRecordingMatrix(2)
	StampConductance(m, circuit.Ground, circuit.Ground, 5)
	assert.Empty(t, m.touched)
}

func TestStampConservesCurrent(t *testing.T) {
	m := newRecordingMatrix(3)
	StampAdmittance(m, 0, 2, complex(0.4, -1.2))
	StampConductance(m, 2, 1, 7)
	for col := 0; col < 3; col++ {
		var sum complex128
		for row := 0; row < 3; row++ {
			sum += m.touched[[2]int{row, col}]
		}
		assert.Zero(t, sum, "column %d", col)
	}

	v := matrix.NewVector(3)
	StampCurrentSource(v, 0, 2, complex(1, 1))
	StampRealCurrentSource(v, circuit.Ground, 1, 3)
	assert.Equal(t, matrix.Vector{complex(1, 1), -3, complex(-1, -1)}, v)
}

func TestStampVoltageSourceBranch(t *testing.T) {
	m := newRecordingMatrix(3)
	StampVoltageSourceBranch(m, circuit.Ground, 0, 2)
	assert.Equal(t, map[[2]int]complex128{{0, 2}: 1, {2, 0}: 1}, m.touched)
}

func TestVoltageAcross(t *testing.T) {
	left := matrix.Vector{complex(1, 2), 5}
	assert.Equal(t, complex(4, -2), VoltageAcross(left, 0, 1))
	assert.Equal(t, complex(-1, -2), VoltageAcross(left, 0, circuit.Ground))
	assert.Equal(t, complex128(5), VoltageAcross(left, circuit.Ground, 1))
	assert.Panics(t, func() { VoltageAcross(left, 0, 2) })
}

func TestBaseConnectAndValidate(t *testing.T) {
	b := NewBase("r1", "Resistor", 2, circuit.Single, WithUID("fixed"))
	assert.Equal(t, "fixed", b.UID())
	assert.Equal(t, "Resistor", b.Type())

	err := b.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParameterNotSet)
	assert.ErrorIs(t, err, circuit.ErrTerminalNotConnected)

	n := circuit.NewNode("n1", circuit.Single)
	assert.ErrorIs(t, b.Connect(n), circuit.ErrTerminalArity)
	require.NoError(t, b.Connect(circuit.NewGround(circuit.Single), n))
	b.MarkParametersSet()
	assert.NoError(t, b.Validate())
	assert.True(t, b.Terminal(0).IsGrounded())
	assert.False(t, b.TerminalNotGrounded(0))
}

func TestBaseInitializeSizesInterface(t *testing.T) {
	b := NewBase("src", "VoltageSource", 2, circuit.ABC)
	assert.Len(t, b.IntfVoltage.Get(), 3)

	b.Initialize([]float64{50, 150})
	assert.Len(t, b.IntfVoltage.Get(), 6)
	assert.Equal(t, 2, b.NumFreqs())

	assert.Len(t, b.IntfVoltage.Prev(), 6, "step-start slot follows the resize")
	assert.Len(t, b.IntfCurrent.Prev(), 6)
	b.SetIntf(4, 1, 2)
	assert.Zero(t, b.PrevVoltage(4))
	assert.Zero(t, b.PrevCurrent(4))
	b.InitRightVector(5)
	assert.Equal(t, complex128(1), b.PrevVoltage(4))
	assert.Equal(t, complex128(2), b.PrevCurrent(4))
	assert.Len(t, b.RightVector().Get(), 5)
}

func TestChecks(t *testing.T) {
	assert.ErrorIs(t, CheckTimeStep("l", 0), ErrInvalidTimeStep)
	assert.NoError(t, CheckTimeStep("l", 1e-6))
	assert.ErrorIs(t, CheckPositive("l", "L", -1), ErrInvalidParameter)
	assert.Equal(t, "EMT", EMT.String())
}
