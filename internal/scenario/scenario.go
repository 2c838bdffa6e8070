// Package scenario builds the bundled example networks from a parameter
// file and the run settings.
package scenario

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/edp1096/toy-gridsim/internal/params"
	"github.com/edp1096/toy-gridsim/pkg/analysis"
	"github.com/edp1096/toy-gridsim/pkg/circuit"
	"github.com/edp1096/toy-gridsim/pkg/datalog"
	"github.com/edp1096/toy-gridsim/pkg/device"
)

var (
	ErrUnknown     = errors.New("unknown scenario")
	ErrWrongDomain = errors.New("scenario does not support domain")
)

type Kind int

const (
	Transient Kind = iota
	Harmonic
)

func (k Kind) String() string {
	if k == Harmonic {
		return "harmonic"
	}
	return "transient"
}

// Env is everything a builder may read.
type Env struct {
	Params          *params.File
	SystemFrequency float64
	Duration        float64
	Domain          device.Domain
	Tear            bool
	Logger          *slog.Logger
}

func (e Env) options() []device.Option {
	if e.Logger == nil {
		return nil
	}
	return []device.Option{device.WithLogger(e.Logger)}
}

// Case is a built network plus how to run it.
type Case struct {
	System      *circuit.System
	Domain      device.Domain
	Kind        Kind
	SteadyState bool
	Events      []analysis.Event
	Tear        []device.Tear

	// Initialized runs between component initialization and stamping.
	Initialized func(sys *circuit.System) error

	// Watch subscribes scenario specific attributes.
	Watch func(l *datalog.Logger) error
}

type Scenario struct {
	Name        string
	Description string
	Domains     []device.Domain
	Build       func(env Env) (*Case, error)
}

func (s Scenario) Supports(d device.Domain) bool {
	return slices.Contains(s.Domains, d)
}

var registry = []Scenario{
	{
		Name:        "rl-decay",
		Description: "inductor current circulating through a 0 V source",
		Domains:     []device.Domain{device.DP},
		Build:       buildRLDecay,
	},
	{
		Name:        "rl-step",
		Description: "source stepping an R-L load down to half voltage",
		Domains:     []device.Domain{device.DP, device.EMT},
		Build:       buildRLStep,
	},
	{
		Name:        "smib",
		Description: "synchronous generator on an infinite bus with a cleared fault",
		Domains:     []device.Domain{device.DP},
		Build:       buildSMIB,
	},
	{
		Name:        "inverter",
		Description: "grid-forming inverter feeding a resistive load",
		Domains:     []device.Domain{device.EMT},
		Build:       buildInverter,
	},
	{
		Name:        "harmonic",
		Description: "harmonic source on an R-L load, one system per frequency",
		Domains:     []device.Domain{device.DP},
		Build:       buildHarmonic,
	},
}

func All() []Scenario {
	return slices.Clone(registry)
}

func Lookup(name string) (Scenario, error) {
	for _, s := range registry {
		if s.Name == name {
			return s, nil
		}
	}
	return Scenario{}, fmt.Errorf("%q: %w", name, ErrUnknown)
}

// Resolve picks the domain to run s in. A scenario with a single domain
// always uses it.
func (s Scenario) Resolve(want device.Domain) (device.Domain, error) {
	if len(s.Domains) == 1 {
		return s.Domains[0], nil
	}
	if !s.Supports(want) {
		return want, fmt.Errorf("%s: %w %s", s.Name, ErrWrongDomain, want)
	}
	return want, nil
}

// ParseDomain accepts the configuration spelling of a domain.
func ParseDomain(s string) (device.Domain, error) {
	switch s {
	case "dp", "DP":
		return device.DP, nil
	case "emt", "EMT":
		return device.EMT, nil
	}
	return device.DP, fmt.Errorf("domain %q: %w", s, device.ErrInvalidParameter)
}
