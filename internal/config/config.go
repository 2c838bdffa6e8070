// Package config loads run configuration from defaults, a YAML file,
// GRIDSIM_ environment variables and command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/edp1096/toy-gridsim/internal/consts"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const EnvPrefix = "GRIDSIM_"

const (
	DefaultTimeStep        = 1e-4
	DefaultDuration        = 0.1
	DefaultSystemFrequency = consts.SYSTEM_FREQUENCY
	DefaultSimName         = "gridsim"
	DefaultOutputDir       = "logs"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")

	domains = []string{"dp", "emt"}
	solvers = []string{"sparse", "dense"}
	outputs = []string{"csv", "sqlite", "plot"}
)

type Config struct {
	SimName         string   `koanf:"sim_name"`
	Scenario        string   `koanf:"scenario"`
	Domain          string   `koanf:"domain"`
	Solver          string   `koanf:"solver"`
	TimeStep        float64  `koanf:"time_step"`
	Duration        float64  `koanf:"duration"`
	SystemFrequency float64  `koanf:"system_frequency"`
	Workers         int      `koanf:"workers"`
	ParamsFile      string   `koanf:"params_file"`
	OutputDir       string   `koanf:"output_dir"`
	Outputs         []string `koanf:"outputs"`
	LogLevel        string   `koanf:"log_level"`
	LogFormat       string   `koanf:"log_format"`

	// FileUsed is the config file that was read, if any.
	FileUsed string `koanf:"-"`
}

func defaults() map[string]interface{} {
	return map[string]interface{}{
		"sim_name":         DefaultSimName,
		"scenario":         "rl-decay",
		"domain":           "dp",
		"solver":           "sparse",
		"time_step":        DefaultTimeStep,
		"duration":         DefaultDuration,
		"system_frequency": DefaultSystemFrequency,
		"workers":          4,
		"output_dir":       DefaultOutputDir,
		"outputs":          []string{},
		"log_level":        "info",
		"log_format":       "text",
	}
}

// Load reads the configuration. cfgFile may be empty. Only flags that were
// explicitly set override lower layers.
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if cfgFile != "" {
		if err := k.Load(file.Provider(cfgFile), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", cfgFile, err)
		}
	}

	// GRIDSIM_TIME_STEP -> time_step
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			if !f.Changed {
				return "", nil
			}
			return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.FileUsed = cfgFile

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.TimeStep <= 0 {
		return fmt.Errorf("%w: time_step must be positive, got %g", ErrInvalidConfig, c.TimeStep)
	}
	if c.Duration < c.TimeStep {
		return fmt.Errorf("%w: duration %g shorter than time_step %g", ErrInvalidConfig, c.Duration, c.TimeStep)
	}
	if c.SystemFrequency <= 0 {
		return fmt.Errorf("%w: system_frequency must be positive", ErrInvalidConfig)
	}
	if !slices.Contains(domains, c.Domain) {
		return fmt.Errorf("%w: unknown domain %q", ErrInvalidConfig, c.Domain)
	}
	if !slices.Contains(solvers, c.Solver) {
		return fmt.Errorf("%w: unknown solver %q", ErrInvalidConfig, c.Solver)
	}
	for _, o := range c.Outputs {
		if !slices.Contains(outputs, o) {
			return fmt.Errorf("%w: unknown output %q", ErrInvalidConfig, o)
		}
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	return nil
}

// Steps is the number of whole time steps covering Duration.
func (c *Config) Steps() int {
	return int(c.Duration/c.TimeStep + 0.5)
}
