package signal

import (
	"testing"

	"github.com/edp1096/toy-gridsim/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func kundurExciter(t *testing.T) *Exciter {
	e := NewExciter("exc", testutil.NewTestLogger(t))
	e.SetParameters(ExciterParameters{Ta: 0.2, Ka: 46, Te: 0.5, Ke: -0.0435, Tf: 1, Kf: 0.1, Tr: 0.02})
	return e
}

func TestExciterHoldsSteadyState(t *testing.T) {
	e := kundurExciter(t)
	require.NoError(t, e.Initialize(1.05, 2.2, 1e-3))
	for i := 0; i < 500; i++ {
		e.Step(1.05)
	}
	assert.InDelta(t, 2.2, e.Ef.Get(), 1e-9)
	assert.InDelta(t, 1.05, e.Vm.Get(), 1e-9)
}

func TestExciterRaisesFieldOnVoltageDip(t *testing.T) {
	e := kundurExciter(t)
	require.NoError(t, e.Initialize(1.0, 2.0, 1e-3))
	for i := 0; i < 200; i++ {
		e.Step(0.9)
	}
	assert.Greater(t, e.Ef.Get(), 2.0)
	assert.Less(t, e.Vm.Get(), 0.91)
}

func TestExciterRejectsZeroTimeConstant(t *testing.T) {
	e := NewExciter("exc", nil)
	e.SetParameters(ExciterParameters{Ka: 1})
	err := e.Initialize(1, 1, 1e-3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}

func kundurGovernor(t *testing.T) *TurbineGovernorType1 {
	g := NewTurbineGovernorType1("gov", testutil.NewTestLogger(t))
	g.SetParameters(GovernorParameters{T3: 0.04, T4: 0.1, T5: 0.1, Tc: 0.1, Ts: 0.3, R: 0.04, Pmin: 0, Pmax: 1.1, OmRef: 1})
	return g
}

func TestGovernorHoldsTorqueAtNominalSpeed(t *testing.T) {
	g := kundurGovernor(t)
	require.NoError(t, g.Initialize(0.54, 1e-3))
	for i := 0; i < 500; i++ {
		g.Step(1)
	}
	assert.InDelta(t, 0.54, g.Tm.Get(), 1e-9)
}

func TestGovernorRespondsToUnderspeed(t *testing.T) {
	g := kundurGovernor(t)
	require.NoError(t, g.Initialize(0.54, 1e-3))
	for i := 0; i < 5000; i++ {
		g.Step(0.99)
	}
	// 0.54 + 0.01/0.04 = 0.79 within limits
	assert.InDelta(t, 0.79, g.Tm.Get(), 1e-3)

	for i := 0; i < 5000; i++ {
		g.Step(0.9)
	}
	assert.InDelta(t, 1.1, g.Tm.Get(), 1e-3)
	assert.Equal(t, 1.1, g.Pin.Get())
}

func TestGovernorValidation(t *testing.T) {
	g := NewTurbineGovernorType1("gov", nil)
	g.SetParameters(GovernorParameters{Ts: 1, Tc: 1, T5: 1, R: 0.05, Pmin: 1, Pmax: 0})
	assert.ErrorIs(t, g.Initialize(0.5, 1e-3), ErrInvalidParameter)
}
