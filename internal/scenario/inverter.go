package scenario

import (
	"math"

	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/datalog"
	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/emt"
)

const defaultInverterVoltage = 230.0

// LoadResistance is the per-phase load that absorbs pRef at the capacitor
// voltage the inverter settles to behind its coupling resistor rc.
func LoadResistance(v, rc, pRef float64) float64 {
	vc := (v + math.Sqrt(v*v+4*rc*pRef/3)) / 2
	return v / (pRef / 3 / vc)
}

// buildInverter runs inverter "pv" against a resistive load sized for its
// initial power reference. The generation profile, if any, moves P_ref once
// per simulated second.
func buildInverter(env Env) (*Case, error) {
	pv, err := env.Params.Inverter("pv")
	if err != nil {
		return nil, err
	}
	opts := env.options()
	vnom := pv.VNom
	if vnom == 0 {
		vnom = defaultInverterVoltage
	}

	pcc := circuit.NewNode("pcc", circuit.ABC)
	if err := pcc.SetInitialVoltage(complex(vnom, 0)); err != nil {
		return nil, err
	}

	inv := emt.NewAvVoltageSourceInverterDQ(pv.Name, opts...)
	inv.SetParameters(2*math.Pi*env.SystemFrequency, vnom, pv.Pref, pv.Qref)
	inv.SetControllerParameters(emt.ControllerParameters{
		KpPLL: pv.KpPLL, KiPLL: pv.KiPLL,
		KpPowerCtrl: pv.KpPower, KiPowerCtrl: pv.KiPower,
		KpCurrCtrl: pv.KpCurrent, KiCurrCtrl: pv.KiCurrent,
		OmegaCutoff: pv.OmegaCutoff,
	})
	inv.SetFilterParameters(emt.FilterParameters{Lf: pv.Lf, Cf: pv.Cf, Rf: pv.Rf, Rc: pv.Rc})
	if len(pv.Profile) > 0 {
		inv.SetGenerationProfile(pv.Profile, 1)
	}
	if err := inv.Connect(pcc); err != nil {
		return nil, err
	}

	load := emt.NewResistor("load", opts...)
	load.SetParameters(LoadResistance(vnom, pv.Rc, pv.Pref))
	if err := load.Connect(pcc, circuit.NewGround(circuit.ABC)); err != nil {
		return nil, err
	}

	sys := circuit.NewSystem("inverter", env.SystemFrequency)
	sys.AddComponent(inv, load)
	return &Case{
		System: sys,
		Domain: device.EMT,
		Watch: func(dl *datalog.Logger) error {
			return dl.LogAttributes(inv.Attributes(), "P_ref", "p", "q", "omega", "freq")
		},
	}, nil
}
