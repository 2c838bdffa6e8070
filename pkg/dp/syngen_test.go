package dp

import (
	"context"
	"math"
	"math/cmplx"
	"testing"

	"github.com/edp1096/toy-gridsim/internal/testutil"
	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/signal"
	"github.com/edp1096/toy-gridsim/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func machineParameters(taa float64) OperationalParameters {
	return OperationalParameters{
		NomPower: 555e6, NomVoltage: 24e3, NomFrequency: 60, H: 3.7,
		Ld: 1.8099, Lq: 1.76, L0: 0.15,
		LdT: 0.2998, LqT: 0.65, Td0T: 8.0669, Tq0T: 0.9991,
		LdS: 0.2299, LqS: 0.25, Td0S: 0.03, Tq0S: 0.07,
		Taa: taa,
	}
}

var (
	initVoltage = cmplx.Rect(24e3, 0.3)
	initPower   = complex(300e6, 50e6)
)

// stiffBus runs a generator whose terminal voltage is imposed by bus.
type stiffBus struct {
	gen   *SynchronGenerator
	left  *attribute.Attribute[[]complex128]
	sched *task.Scheduler
	step  int
}

func newStiffBus(t *testing.T, gen *SynchronGenerator, dt float64, bus func(step int) complex128) *stiffBus {
	t.Helper()
	n := circuit.NewNode("bus", circuit.Single)
	require.NoError(t, n.SetInitialVoltage(initVoltage))
	require.NoError(t, gen.Connect(n))
	sys := circuit.NewSystem("smib", 60)
	sys.AddComponent(gen)
	size, err := sys.AssignIndices()
	require.NoError(t, err)

	sb := &stiffBus{gen: gen}
	sb.left = attribute.New(nil, "left_vector", attribute.Read, make([]complex128, size))
	gen.Initialize([]float64{60})
	require.NoError(t, gen.InitializeFromNodesAndTerminals(60))
	require.NoError(t, gen.MnaInitialize(2*math.Pi*60, dt, sb.left))

	solve := task.NewFunc("bus.Solve", func(_ float64, step int) error {
		sb.left.Set([]complex128{bus(step)})
		return nil
	}).Reads(gen.RightVector()).Writes(sb.left)
	sb.sched = task.NewScheduler(nil, 1)
	require.NoError(t, sb.sched.Resolve(append(gen.MnaTasks(), solve)))
	return sb
}

func (sb *stiffBus) run(t *testing.T, steps int, each func(step int)) {
	t.Helper()
	for i := 0; i < steps; i++ {
		require.NoError(t, sb.sched.Step(context.Background(), float64(sb.step)*sb.gen.dt, sb.step))
		if each != nil {
			each(sb.step)
		}
		sb.step++
	}
}

func newGenerator(t *testing.T, order GeneratorOrder, taa float64) *SynchronGenerator {
	t.Helper()
	gen := NewSynchronGenerator("gen", order, device.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, gen.SetOperationalParametersPerUnit(machineParameters(taa)))
	gen.SetInitialValues(initPower, real(initPower), initVoltage)
	return gen
}

func TestSynchronGeneratorHoldsSteadyState(t *testing.T) {
	for _, tc := range []struct {
		order GeneratorOrder
		taa   float64
	}{
		{Order3, 0}, {Order4, 0}, {Order6a, 0.002}, {Order6b, 0},
	} {
		t.Run(string(tc.order), func(t *testing.T) {
			gen := newGenerator(t, tc.order, tc.taa)
			sb := newStiffBus(t, gen, 1e-4, func(int) complex128 { return initVoltage })
			i0 := gen.IntfCurrent.Get()[0]
			delta0 := gen.Delta.Get()
			ef0 := gen.Ef.Get()

			sb.run(t, 500, nil)

			assert.InDelta(t, 1, gen.OmMech.Get(), 1e-9)
			assert.InDelta(t, delta0, gen.Delta.Get(), 1e-8)
			assert.InDelta(t, ef0, gen.Ef.Get(), 1e-9)
			assert.InDelta(t, gen.MechTorque.Get(), gen.ElecTorque.Get(), 1e-9)
			assert.InDelta(t, 0, cmplx.Abs(gen.IntfCurrent.Get()[0]-i0)/cmplx.Abs(i0), 1e-8)
		})
	}
}

func TestSynchronGeneratorNortonMatchesOperatingPoint(t *testing.T) {
	for _, order := range []GeneratorOrder{Order3, Order4, Order6a} {
		gen := newGenerator(t, order, 0.002)
		newStiffBus(t, gen, 5e-5, func(int) complex128 { return initVoltage })
		require.NoError(t, gen.MnaTasks()[0].Execute(0, 0))

		want := cmplx.Conj(initPower / initVoltage)
		got := gen.isrc - gen.admittance*initVoltage
		assert.InDelta(t, 0, cmplx.Abs(got-want)/cmplx.Abs(want), 1e-9, "order %s", order)
		assert.InDelta(t, real(initPower)/555e6, gen.ElecTorque.Get(), 1e-12)
	}
}

func TestSynchronGeneratorSixthOrderWithoutTaa(t *testing.T) {
	bus := func(step int) complex128 {
		if step >= 20 {
			return initVoltage * 0.8
		}
		return initVoltage
	}
	implicit := newGenerator(t, Order6a, 0)
	assert.Equal(t, Order6b, implicit.Order())
	explicit := newGenerator(t, Order6b, 0)

	a := newStiffBus(t, implicit, 1e-4, bus)
	b := newStiffBus(t, explicit, 1e-4, bus)
	for i := 0; i < 100; i++ {
		a.run(t, 1, nil)
		b.run(t, 1, nil)
		require.Equal(t, explicit.IntfCurrent.Get(), implicit.IntfCurrent.Get(), "step %d", i)
		require.Equal(t, explicit.EdqS.Get(), implicit.EdqS.Get(), "step %d", i)
		require.Equal(t, explicit.OmMech.Get(), implicit.OmMech.Get(), "step %d", i)
	}
}

func TestSynchronGeneratorSixthOrderConstantsWithoutTaa(t *testing.T) {
	const h = 1e-4
	p := machineParameters(0)

	gen := newGenerator(t, Order6a, 0)
	yd, yq := gen.leakage()
	assert.Zero(t, yd)
	assert.Zero(t, yq)
	assert.Zero(t, gen.taa())
	gen.calculateVBRConstants(h)

	// 6b flux equations without additional leakage
	cdT, cqT := h/(2*p.Td0T+h), h/(2*p.Tq0T+h)
	cdS, cqS := h/(2*p.Td0S+h), h/(2*p.Tq0S+h)
	wantXd := p.LdS + cdS*(p.LdT-p.LdS) + cdS*cdT*(p.Ld-p.LdT)
	wantXq := p.LqS + cqS*(p.LqT-p.LqS) + cqS*cqT*(p.Lq-p.LqT)
	assert.InDelta(t, wantXd, gen.xdEff, 1e-12)
	assert.InDelta(t, wantXq, gen.xqEff, 1e-12)
	assert.InDelta(t, cdT, gen.ddT, 1e-15)
	assert.Zero(t, gen.ddS)

	leaky := newGenerator(t, Order6a, 0.002)
	require.Equal(t, Order6a, leaky.Order())
	yd, yq = leaky.leakage()
	assert.Positive(t, yd)
	assert.Positive(t, yq)
	leaky.calculateVBRConstants(h)
	assert.NotEqual(t, gen.xdEff, leaky.xdEff)
	assert.Positive(t, leaky.ddS)
}

func TestSynchronGeneratorNeedsInitialVoltage(t *testing.T) {
	gen := NewSynchronGenerator("gen", Order4, device.WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, gen.SetOperationalParametersPerUnit(machineParameters(0)))
	gen.SetInitialValues(initPower, real(initPower), 0)
	require.NoError(t, gen.Connect(circuit.NewNode("bus", circuit.Single)))
	gen.Initialize([]float64{60})
	assert.ErrorIs(t, gen.InitializeFromNodesAndTerminals(60), device.ErrInvalidParameter)
}

func TestSynchronGeneratorAcceleratesOnVoltageDip(t *testing.T) {
	gen := newGenerator(t, Order4, 0)
	sb := newStiffBus(t, gen, 1e-4, func(step int) complex128 {
		if step >= 10 {
			return initVoltage * 0.5
		}
		return initVoltage
	})
	sb.run(t, 200, nil)
	assert.Greater(t, gen.OmMech.Get(), 1.0)
	assert.Less(t, gen.ElecTorque.Get(), gen.MechTorque.Get())
}

func TestSynchronGeneratorWithControllers(t *testing.T) {
	gen := newGenerator(t, Order6a, 0.002)
	exc := gen.AddExciter(signal.ExciterParameters{Ta: 0.2, Ka: 46, Te: 0.5, Ke: -0.0435, Tf: 1, Kf: 0.1, Tr: 0.02})
	gov := gen.AddGovernor(signal.GovernorParameters{T3: 0.04, T4: 0.1, T5: 0.1, Tc: 0.1, Ts: 0.3, R: 0.04, Pmin: 0, Pmax: 1.1, OmRef: 1})

	sb := newStiffBus(t, gen, 1e-4, func(int) complex128 { return initVoltage })
	ef0, tm0 := gen.Ef.Get(), gen.MechTorque.Get()
	assert.InDelta(t, tm0, gov.Parameters().TmRef, 1e-12)

	sb.run(t, 300, nil)
	assert.InDelta(t, ef0, gen.Ef.Get(), 1e-8)
	assert.InDelta(t, tm0, gen.MechTorque.Get(), 1e-8)
	assert.InDelta(t, ef0, exc.Ef.Get(), 1e-8)
}

func TestSynchronGeneratorParameterChecks(t *testing.T) {
	gen := NewSynchronGenerator("gen", Order4)
	p := machineParameters(0)
	p.LqT = 0
	assert.ErrorIs(t, gen.SetOperationalParametersPerUnit(p), device.ErrInvalidParameter)

	gen3 := NewSynchronGenerator("gen3", Order3)
	assert.NoError(t, gen3.SetOperationalParametersPerUnit(p))

	p = machineParameters(-1)
	assert.ErrorIs(t, NewSynchronGenerator("g", Order6a).SetOperationalParametersPerUnit(p), device.ErrInvalidParameter)

	order, err := ParseGeneratorOrder("6")
	require.NoError(t, err)
	assert.Equal(t, Order6a, order)
	_, err = ParseGeneratorOrder("5")
	assert.ErrorIs(t, err, device.ErrInvalidParameter)

	noInit := NewSynchronGenerator("g", Order3)
	require.NoError(t, noInit.SetOperationalParametersPerUnit(machineParameters(0)))
	require.NoError(t, noInit.Connect(circuit.NewNode("n", circuit.Single)))
	assert.ErrorIs(t, noInit.Validate(), device.ErrParameterNotSet)
}
