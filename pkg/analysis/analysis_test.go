package analysis

import (
	"context"
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/edp1096/toy-gridsim/internal/testutil"
	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/dp"
	"github.com/edp1096/toy-gridsim/pkg/emt"
	"github.com/edp1096/toy-gridsim/pkg/task"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOptions(t *testing.T) device.Option {
	return device.WithLogger(testutil.NewTestLogger(t))
}

func relErr(got, want complex128) float64 {
	return cmplx.Abs(got-want) / cmplx.Abs(want)
}

// rlLoop shorts an inductor through a 0 V source.
func rlLoop(t *testing.T) (*circuit.System, *dp.ResIndSeries) {
	t.Helper()
	n := circuit.NewNode("n", circuit.Single)
	gnd := circuit.NewGround(circuit.Single)
	src := dp.NewVoltageSource("src", testOptions(t))
	src.SetParameters(0, -1)
	require.NoError(t, src.Connect(gnd, n))
	rl := dp.NewResIndSeries("rl", testOptions(t))
	rl.SetParameters(0, 0.01)
	require.NoError(t, rl.Connect(n, gnd))

	sys := circuit.NewSystem("rl", 50)
	sys.AddComponent(src, rl)
	return sys, rl
}

func TestRLCurrentFollowsCompanionFactor(t *testing.T) {
	const dt, steps = 1e-4, 1000
	i0 := complex(10, -3)

	for _, solver := range []string{"sparse", "dense"} {
		t.Run(solver, func(t *testing.T) {
			sys, rl := rlLoop(t)
			tr := NewTransient(dt, steps*dt, WithSolver(solver), OnInitialized(func(*circuit.System) error {
				rl.SetIntf(0, 0, i0)
				return nil
			}))
			require.NoError(t, tr.Setup(sys))
			defer tr.Close()
			require.NoError(t, tr.Execute(context.Background()))

			f := rl.PrevCurrFac(0)
			assert.InDelta(t, 1, cmplx.Abs(f), 1e-12)
			currents := tr.GetResults()["I(rl)"]
			require.Len(t, currents, steps)
			require.Len(t, tr.Times(), steps)
			want := i0
			for k, got := range currents {
				want *= f
				require.Less(t, relErr(got, want), 1e-9, "step %d", k)
			}
			assert.InDelta(t, steps*dt, tr.Times()[steps-1], 1e-12)
			// the inductor sees no voltage, so its current is the history term
			assert.InDelta(t, 0, cmplx.Abs(rl.EquivCurrent(0)-currents[steps-1]), 1e-9)
		})
	}
}

func TestCurrentSourceIntoResistor(t *testing.T) {
	n := circuit.NewNode("n", circuit.Single)
	gnd := circuit.NewGround(circuit.Single)
	src := dp.NewCurrentSource("src", testOptions(t))
	src.SetParameters(2)
	require.NoError(t, src.Connect(gnd, n))
	load := dp.NewResistor("load", testOptions(t))
	load.SetParameters(5)
	require.NoError(t, load.Connect(n, gnd))
	sys := circuit.NewSystem("cs", 50)
	sys.AddComponent(src, load)

	ss := NewSteadyState()
	require.NoError(t, ss.Setup(sys))
	require.NoError(t, ss.Execute(context.Background()))
	assert.InDelta(t, 0, cmplx.Abs(ss.Solution()["n"]-10), 1e-9)

	tr := NewTransient(1e-4, 1e-3)
	require.NoError(t, tr.Setup(sys))
	defer tr.Close()
	require.NoError(t, tr.Execute(context.Background()))
	final := tr.Final()
	assert.InDelta(t, 0, cmplx.Abs(final["V(n)"]-10), 1e-9)
	assert.InDelta(t, 0, cmplx.Abs(final["I(src)"]-2), 1e-12)
}

var (
	genVoltage = cmplx.Rect(24e3, 0.3)
	genPower   = complex(300e6, 50e6)
)

const (
	smibFreq = 60.0
	lineR    = 0.5
	lineL    = 0.05
	lineC    = 1e-6
	openR    = 1e9
)

type smib struct {
	sys   *circuit.System
	gen   *dp.SynchronGenerator
	fault *dp.Switch
}

// infiniteBus is the bus voltage that makes the generator terminal sit at
// genVoltage while delivering genPower through the line.
func infiniteBus() complex128 {
	omega := 2 * math.Pi * smibFreq
	i := cmplx.Conj(genPower / genVoltage)
	shunt := complex(1/openR, omega*lineC/2)
	series := i - genVoltage*shunt
	return genVoltage - series*complex(lineR, omega*lineL)
}

func newSMIB(t *testing.T) *smib {
	t.Helper()
	genNode := circuit.NewNode("gen", circuit.Single)
	bus := circuit.NewNode("bus", circuit.Single)
	gnd := circuit.NewGround(circuit.Single)

	gen := dp.NewSynchronGenerator("gen", dp.Order4, testOptions(t))
	require.NoError(t, gen.SetOperationalParametersPerUnit(dp.OperationalParameters{
		NomPower: 555e6, NomVoltage: 24e3, NomFrequency: smibFreq, H: 3.7,
		Ld: 1.8099, Lq: 1.76, L0: 0.15,
		LdT: 0.2998, LqT: 0.65, Td0T: 8.0669, Tq0T: 0.9991,
		LdS: 0.2299, LqS: 0.25, Td0S: 0.03, Tq0S: 0.07,
	}))
	gen.SetInitialValues(genPower, real(genPower), genVoltage)
	require.NoError(t, gen.Connect(genNode))

	line := dp.NewPiLine("line", testOptions(t))
	line.SetParameters(lineR, lineL, lineC, 0)
	require.NoError(t, line.Connect(genNode, bus))

	src := dp.NewVoltageSource("inf", testOptions(t))
	src.SetParameters(infiniteBus(), -1)
	require.NoError(t, src.Connect(gnd, bus))

	fault := dp.NewSwitch("fault", testOptions(t))
	fault.SetParameters(openR, 1e-3, false)
	require.NoError(t, fault.Connect(genNode, gnd))

	sys := circuit.NewSystem("smib", smibFreq)
	sys.AddComponent(gen, line, src, fault)

	ss := NewSteadyState(WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, ss.Setup(sys))
	require.NoError(t, ss.Execute(context.Background()))
	return &smib{sys: sys, gen: gen, fault: fault}
}

func TestSteadyStateReproducesOperatingPoint(t *testing.T) {
	s := newSMIB(t)
	n, err := s.sys.Node("gen")
	require.NoError(t, err)
	assert.Less(t, relErr(n.InitialSingleVoltage(), genVoltage), 1e-9)

	bus, err := s.sys.Node("bus")
	require.NoError(t, err)
	assert.Less(t, relErr(bus.InitialSingleVoltage(), infiniteBus()), 1e-9)
}

func TestSteadyStateRejectsDynamicOnlyComponents(t *testing.T) {
	a := circuit.NewNode("a", circuit.ABC)
	r := emt.NewResistor("r", testOptions(t))
	r.SetParameters(1)
	require.NoError(t, r.Connect(a, circuit.NewGround(circuit.ABC)))
	sys := circuit.NewSystem("emt", 50)
	sys.AddComponent(r)

	err := NewSteadyState().Setup(sys)
	require.ErrorIs(t, err, ErrNoSteadyState)
}

func TestSMIBHoldsOperatingPoint(t *testing.T) {
	s := newSMIB(t)
	tr := NewTransient(1e-4, 0.02, WithLogger(testutil.NewTestLogger(t)))
	require.NoError(t, tr.Setup(s.sys))
	defer tr.Close()
	require.NoError(t, tr.Execute(context.Background()))

	for k, v := range tr.GetResults()["V(gen)"] {
		require.Less(t, relErr(v, genVoltage), 1e-6, "step %d", k)
	}
	assert.InDelta(t, 1, s.gen.OmMech.Get(), 1e-7)
}

func faultEvents(sw device.Switchable) []Event {
	return []Event{
		SwitchEvent{At: 0.02, Switch: sw, Closed: false},
		SwitchEvent{At: 0.01, Switch: sw, Closed: true},
	}
}

func TestTornFaultMatchesRefactoring(t *testing.T) {
	const dt, duration = 1e-4, 0.03

	a := newSMIB(t)
	torn := NewTransient(dt, duration, WithTear(a.fault), WithEvents(faultEvents(a.fault)...))
	require.NoError(t, torn.Setup(a.sys))
	defer torn.Close()
	assert.Equal(t, 0, a.fault.TearIndex())
	require.NoError(t, torn.Execute(context.Background()))

	b := newSMIB(t)
	full := NewTransient(dt, duration, WithEvents(faultEvents(b.fault)...))
	require.NoError(t, full.Setup(b.sys))
	defer full.Close()
	require.NoError(t, full.Execute(context.Background()))

	vt, vf := torn.GetResults()["V(gen)"], full.GetResults()["V(gen)"]
	require.Len(t, vt, 300)
	require.Len(t, vf, 300)
	for k := range vt {
		require.Less(t, cmplx.Abs(vt[k]-vf[k])/cmplx.Abs(genVoltage), 1e-6, "step %d", k)
	}

	assert.Less(t, cmplx.Abs(vt[98]-genVoltage)/cmplx.Abs(genVoltage), 1e-6)
	assert.Less(t, cmplx.Abs(vt[150]), 0.2*cmplx.Abs(genVoltage))
	assert.False(t, a.fault.IsClosed())
	assert.NotEqual(t, 1.0, a.gen.OmMech.Get())
}

func TestTearNeedsSingleFrequencyDP(t *testing.T) {
	s := newSMIB(t)
	tr := NewTransient(1e-4, 1e-3, WithDomain(device.EMT), WithTear(s.fault))
	require.ErrorIs(t, tr.Setup(s.sys), ErrTearUnsupported)
}

// divider is a DP source feeding a 2 ohm resistor.
func divider(t *testing.T) (*circuit.System, *dp.VoltageSource) {
	t.Helper()
	n := circuit.NewNode("n", circuit.Single)
	gnd := circuit.NewGround(circuit.Single)
	src := dp.NewVoltageSource("src", testOptions(t))
	src.SetParameters(4, -1)
	require.NoError(t, src.Connect(gnd, n))
	load := dp.NewResistor("load", testOptions(t))
	load.SetParameters(2)
	require.NoError(t, load.Connect(n, gnd))
	sys := circuit.NewSystem("divider", 50)
	sys.AddComponent(src, load)
	return sys, src
}

func TestAttributeEventChangesSourceNextStep(t *testing.T) {
	const dt = 1e-3
	sys, src := divider(t)
	tr := NewTransient(dt, 10*dt, WithEvents(AttributeEvent{
		At: 5 * dt, Store: src.Attributes(), Name: "V_ref", Value: attribute.ComplexValue(10),
	}))
	require.NoError(t, tr.Setup(sys))
	defer tr.Close()
	require.NoError(t, tr.Execute(context.Background()))

	res := tr.GetResults()
	for k, v := range res["V(n)"] {
		want := complex(4, 0)
		if k >= 4 {
			want = 10
		}
		assert.InDelta(t, 0, cmplx.Abs(v-want), 1e-9, "step %d", k)
		assert.InDelta(t, 0, cmplx.Abs(res["I(src)"][k]+want/2), 1e-9, "step %d", k)
	}
	n, err := sys.Node("n")
	require.NoError(t, err)
	assert.InDelta(t, 10, real(n.Voltage().Get()[0]), 1e-9)
}

func TestEventQueueOrder(t *testing.T) {
	sw := dp.NewSwitch("s")
	q := newEventQueue([]Event{
		SwitchEvent{At: 0.2, Switch: sw, Closed: true},
		SwitchEvent{At: 0.1, Switch: sw, Closed: true},
		SwitchEvent{At: 0.1, Switch: sw, Closed: false},
	})
	assert.Empty(t, q.due(0.05, 1e-9))
	due := q.due(0.1, 1e-9)
	require.Len(t, due, 2)
	assert.True(t, due[0].(SwitchEvent).Closed)
	assert.False(t, due[1].(SwitchEvent).Closed)
	assert.Equal(t, 1, q.Len())
	assert.Equal(t, "close s at 0.2", q.due(1, 0)[0].String())
}

type failingLoad struct {
	*dp.Resistor
	err error
}

func (f failingLoad) MnaTasks() []task.Task {
	return append(f.Resistor.MnaTasks(), task.NewFunc("load.Check", func(_ float64, step int) error {
		if step == 3 {
			return f.err
		}
		return nil
	}))
}

func TestStepErrorNamesTaskAndStep(t *testing.T) {
	const dt = 1e-3
	errTrip := errors.New("trip")
	n := circuit.NewNode("n", circuit.Single)
	gnd := circuit.NewGround(circuit.Single)
	src := dp.NewVoltageSource("src", testOptions(t))
	src.SetParameters(1, -1)
	require.NoError(t, src.Connect(gnd, n))
	load := failingLoad{Resistor: dp.NewResistor("load", testOptions(t)), err: errTrip}
	load.SetParameters(1)
	require.NoError(t, load.Connect(n, gnd))
	sys := circuit.NewSystem("fail", 50)
	sys.AddComponent(src, load)

	tr := NewTransient(dt, 10*dt)
	require.NoError(t, tr.Setup(sys))
	defer tr.Close()
	err := tr.Execute(context.Background())

	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 3, se.Step)
	assert.InDelta(t, 4*dt, se.Time, 1e-15)
	assert.Equal(t, "load.Check", se.Task)
	assert.ErrorIs(t, err, errTrip)
	assert.Len(t, tr.Times(), 3)
}

func TestStepErrorFromEventAndCancel(t *testing.T) {
	sys, src := divider(t)
	tr := NewTransient(1e-3, 5e-3, WithEvents(AttributeEvent{
		At: 2e-3, Store: src.Attributes(), Name: "missing", Value: attribute.RealValue(1),
	}))
	require.NoError(t, tr.Setup(sys))
	defer tr.Close()
	err := tr.Execute(context.Background())
	var se *StepError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.Step)
	assert.Empty(t, se.Task)
	assert.ErrorIs(t, err, attribute.ErrNotFound)

	sys, _ = divider(t)
	tr = NewTransient(1e-3, 5e-3)
	require.NoError(t, tr.Setup(sys))
	defer tr.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = tr.Execute(ctx)
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 0, se.Step)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSetupValidation(t *testing.T) {
	n := circuit.NewNode("n", circuit.Single)
	r := dp.NewResistor("r", testOptions(t))
	require.NoError(t, r.Connect(n, circuit.NewGround(circuit.Single)))
	c := dp.NewCapacitor("c", testOptions(t))
	require.NoError(t, c.Connect(n, circuit.NewGround(circuit.Single)))
	sys := circuit.NewSystem("bad", 50)
	sys.AddComponent(r, c)

	err := NewTransient(1e-4, 1e-3).Setup(sys)
	require.ErrorIs(t, err, device.ErrParameterNotSet)
	assert.Contains(t, err.Error(), "r:")
	assert.Contains(t, err.Error(), "c:")

	require.ErrorIs(t, NewTransient(0, 1e-3).Setup(sys), device.ErrInvalidTimeStep)
	require.ErrorIs(t, NewTransient(1e-4, 1e-3).Execute(context.Background()), ErrNotSetup)
}

var harmonics = []complex128{230, complex(0, 20), 10}

const (
	harmR = 1.0
	harmL = 0.01
)

// harmonicLoad drives an R-L series load with 50, 150 and 250 Hz phasors.
func harmonicLoad(t *testing.T) *circuit.System {
	t.Helper()
	bus := circuit.NewNode("bus", circuit.Single)
	mid := circuit.NewNode("mid", circuit.Single)
	gnd := circuit.NewGround(circuit.Single)

	src := dp.NewVoltageSource("src", testOptions(t))
	src.SetHarmonicParameters(harmonics)
	require.NoError(t, src.Connect(gnd, bus))
	r := dp.NewResistor("r", testOptions(t))
	r.SetParameters(harmR)
	require.NoError(t, r.Connect(bus, mid))
	l := dp.NewResIndSeries("l", testOptions(t))
	l.SetParameters(0, harmL)
	require.NoError(t, l.Connect(mid, gnd))

	sys := circuit.NewSystem("harmonic", 50)
	sys.Frequencies = []float64{50, 150, 250}
	sys.AddComponent(src, r, l)
	return sys
}

func TestHarmonicReachesPerFrequencySteadyState(t *testing.T) {
	h := NewHarmonic(1e-4, 0.3, WithWorkers(3))
	require.NoError(t, h.Setup(harmonicLoad(t)))
	defer h.Close()
	require.NoError(t, h.Execute(context.Background()))

	final := h.Final()
	for f, freq := range []float64{50, 150, 250} {
		zl := complex(0, 2*math.Pi*freq*harmL)
		want := harmonics[f] * zl / (complex(harmR, 0) + zl)
		key := "V(mid)" + freqSuffix([]float64{50, 150, 250}, f)
		assert.Less(t, relErr(final[key], want), 1e-6, key)
	}
	assert.Contains(t, final, "V(bus)@150Hz")
	assert.Len(t, h.Scheduler().Levels(), 3)
}

func TestHarmonicMatchesStridedTransient(t *testing.T) {
	const dt, duration = 1e-4, 0.01
	h := NewHarmonic(dt, duration)
	require.NoError(t, h.Setup(harmonicLoad(t)))
	defer h.Close()
	require.NoError(t, h.Execute(context.Background()))

	tr := NewTransient(dt, duration)
	require.NoError(t, tr.Setup(harmonicLoad(t)))
	defer tr.Close()
	require.NoError(t, tr.Execute(context.Background()))

	hr, tres := h.GetResults(), tr.GetResults()
	for _, key := range []string{"V(mid)@50Hz", "V(mid)@150Hz", "V(mid)@250Hz", "I(l)@150Hz"} {
		require.Len(t, hr[key], 100, key)
		for k := range hr[key] {
			require.InDelta(t, 0, cmplx.Abs(hr[key][k]-tres[key][k]), 1e-9, "%s step %d", key, k)
		}
	}
}

func TestTransientEMT(t *testing.T) {
	a := circuit.NewNode("a", circuit.ABC)
	gnd := circuit.NewGround(circuit.ABC)
	src := emt.NewControlledVoltageSource("src", testOptions(t))
	src.SetParameters([]float64{100, -50, -50})
	require.NoError(t, src.Connect(gnd, a))
	load := emt.NewResistor("load", testOptions(t))
	load.SetParameters(2)
	require.NoError(t, load.Connect(a, gnd))
	sys := circuit.NewSystem("emt", 50)
	sys.AddComponent(src, load)

	tr := NewTransient(1e-4, 1e-3, WithDomain(device.EMT), WithSolver("dense"), WithWorkers(2))
	require.NoError(t, tr.Setup(sys))
	defer tr.Close()
	require.NoError(t, tr.Execute(context.Background()))

	final := tr.Final()
	for p, v := range map[string]float64{"a": 100, "b": -50, "c": -50} {
		assert.InDelta(t, v, real(final["V(a."+p+")"]), 1e-9)
		assert.InDelta(t, -v/2, real(final["I(src."+p+")"]), 1e-9)
	}
}
