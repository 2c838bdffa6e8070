package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.Float64("time-step", DefaultTimeStep, "")
	fs.Float64("duration", DefaultDuration, "")
	fs.String("solver", "sparse", "")
	fs.StringSlice("outputs", nil, "")
	return fs
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, DefaultTimeStep, cfg.TimeStep)
	assert.Equal(t, "dp", cfg.Domain)
	assert.Equal(t, "sparse", cfg.Solver)
	assert.Equal(t, 1000, cfg.Steps())
}

func TestLoadLayering(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gridsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("time_step: 0.001\nduration: 1\nsolver: dense\nscenario: smib\n"), 0o644))

	t.Setenv("GRIDSIM_SCENARIO", "inverter")

	fs := newFlags()
	require.NoError(t, fs.Parse([]string{"--duration", "2"}))

	cfg, err := Load(path, fs)
	require.NoError(t, err)

	assert.Equal(t, 0.001, cfg.TimeStep, "file value kept, flag not changed")
	assert.Equal(t, 2.0, cfg.Duration, "changed flag wins")
	assert.Equal(t, "dense", cfg.Solver)
	assert.Equal(t, "inverter", cfg.Scenario, "env overrides file")
	assert.Equal(t, path, cfg.FileUsed)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero step", func(c *Config) { c.TimeStep = 0 }, "time_step must be positive"},
		{"short run", func(c *Config) { c.Duration = 1e-6 }, "shorter than time_step"},
		{"domain", func(c *Config) { c.Domain = "sp" }, `unknown domain "sp"`},
		{"solver", func(c *Config) { c.Solver = "klu" }, `unknown solver "klu"`},
		{"output", func(c *Config) { c.Outputs = []string{"hdf5"} }, `unknown output "hdf5"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("", nil)
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidConfig)
			assert.ErrorContains(t, err, tt.errMsg)
		})
	}
}

func TestValidateClampsWorkers(t *testing.T) {
	cfg, err := Load("", nil)
	require.NoError(t, err)
	cfg.Workers = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Workers)
}
