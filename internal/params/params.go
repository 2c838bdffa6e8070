// Package params decodes component parameter files written in HCL.
//
// Expressions may use the variables pi and f (the system frequency), so a
// file can say omega = 2*pi*f or xl = 2*pi*f*0.01.
package params

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
)

var ErrNotFound = errors.New("parameter block not found")

type File struct {
	Generators []*Generator `hcl:"generator,block"`
	Lines      []*Line      `hcl:"line,block"`
	Inverters  []*Inverter  `hcl:"inverter,block"`
}

type Generator struct {
	Name  string `hcl:"name,label"`
	Order string `hcl:"order"`

	NomPower     float64 `hcl:"nom_power"`
	NomVoltage   float64 `hcl:"nom_voltage"`
	NomFrequency float64 `hcl:"nom_frequency"`
	H            float64 `hcl:"h"`

	Ld   float64 `hcl:"ld"`
	Lq   float64 `hcl:"lq"`
	L0   float64 `hcl:"l0,optional"`
	LdT  float64 `hcl:"ld_t"`
	LqT  float64 `hcl:"lq_t,optional"`
	Td0T float64 `hcl:"td0_t"`
	Tq0T float64 `hcl:"tq0_t,optional"`
	LdS  float64 `hcl:"ld_s,optional"`
	LqS  float64 `hcl:"lq_s,optional"`
	Td0S float64 `hcl:"td0_s,optional"`
	Tq0S float64 `hcl:"tq0_s,optional"`
	Taa  float64 `hcl:"taa,optional"`

	InitActivePower   float64 `hcl:"init_active_power"`
	InitReactivePower float64 `hcl:"init_reactive_power,optional"`
	InitVoltage       float64 `hcl:"init_voltage"`
	InitVoltageAngle  float64 `hcl:"init_voltage_angle,optional"`
	InitMechPower     float64 `hcl:"init_mech_power,optional"`

	Exciter  *Exciter  `hcl:"exciter,block"`
	Governor *Governor `hcl:"governor,block"`
}

type Exciter struct {
	Ta float64 `hcl:"ta"`
	Ka float64 `hcl:"ka"`
	Te float64 `hcl:"te"`
	Ke float64 `hcl:"ke"`
	Tf float64 `hcl:"tf"`
	Kf float64 `hcl:"kf"`
	Tr float64 `hcl:"tr"`
}

type Governor struct {
	T3    float64 `hcl:"t3"`
	T4    float64 `hcl:"t4"`
	T5    float64 `hcl:"t5"`
	Tc    float64 `hcl:"tc"`
	Ts    float64 `hcl:"ts"`
	R     float64 `hcl:"r"`
	Pmin  float64 `hcl:"pmin"`
	Pmax  float64 `hcl:"pmax"`
	OmRef float64 `hcl:"om_ref,optional"`
	TmRef float64 `hcl:"tm_ref,optional"`
}

type Line struct {
	Name string  `hcl:"name,label"`
	R    float64 `hcl:"r"`
	L    float64 `hcl:"l"`
	C    float64 `hcl:"c,optional"`
	G    float64 `hcl:"g,optional"`
}

type Inverter struct {
	Name string `hcl:"name,label"`

	Lf float64 `hcl:"lf"`
	Cf float64 `hcl:"cf"`
	Rf float64 `hcl:"rf"`
	Rc float64 `hcl:"rc"`

	OmegaCutoff float64 `hcl:"omega_cutoff"`
	KpPLL       float64 `hcl:"kp_pll"`
	KiPLL       float64 `hcl:"ki_pll"`
	KpPower     float64 `hcl:"kp_power"`
	KiPower     float64 `hcl:"ki_power"`
	KpCurrent   float64 `hcl:"kp_current"`
	KiCurrent   float64 `hcl:"ki_current"`

	VNom    float64   `hcl:"v_nom,optional"`
	Pref    float64   `hcl:"p_ref"`
	Qref    float64   `hcl:"q_ref,optional"`
	Profile []float64 `hcl:"profile,optional"`
}

// EvalContext exposes pi and the system frequency f to expressions.
func EvalContext(systemFrequency float64) *hcl.EvalContext {
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"pi": cty.NumberFloatVal(math.Pi),
			"f":  cty.NumberFloatVal(systemFrequency),
		},
	}
}

func Parse(src []byte, filename string, systemFrequency float64) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}

	var out File
	diags = gohcl.DecodeBody(hclFile.Body, EvalContext(systemFrequency), &out)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}
	return &out, nil
}

func LoadFile(path string, systemFrequency float64) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading parameter file: %w", err)
	}
	return Parse(src, path, systemFrequency)
}

func (f *File) Generator(name string) (*Generator, error) {
	for _, g := range f.Generators {
		if g.Name == name {
			return g, nil
		}
	}
	return nil, fmt.Errorf("generator %q: %w", name, ErrNotFound)
}

func (f *File) Line(name string) (*Line, error) {
	for _, l := range f.Lines {
		if l.Name == name {
			return l, nil
		}
	}
	return nil, fmt.Errorf("line %q: %w", name, ErrNotFound)
}

func (f *File) Inverter(name string) (*Inverter, error) {
	for _, inv := range f.Inverters {
		if inv.Name == name {
			return inv, nil
		}
	}
	return nil, fmt.Errorf("inverter %q: %w", name, ErrNotFound)
}

//go:embed defaults.hcl
var defaultsHCL []byte

// Default returns the built-in parameter set used by the bundled scenarios.
func Default(systemFrequency float64) (*File, error) {
	return Parse(defaultsHCL, "defaults.hcl", systemFrequency)
}
