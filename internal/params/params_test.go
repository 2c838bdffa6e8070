package params

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	f, err := Default(60)
	require.NoError(t, err)

	gen, err := f.Generator("gen")
	require.NoError(t, err)
	assert.Equal(t, "6", gen.Order)
	assert.Equal(t, 555e6, gen.NomPower)
	assert.InDelta(t, 25.2e3, gen.InitVoltage, 1e-9)
	require.NotNil(t, gen.Exciter)
	require.NotNil(t, gen.Governor)
	assert.Equal(t, 46.0, gen.Exciter.Ka)
	assert.Equal(t, 0.0, gen.Governor.TmRef, "optional attribute defaults to zero")

	line, err := f.Line("line")
	require.NoError(t, err)
	assert.InDelta(t, 0.3267/(2*math.Pi*60), line.L, 1e-15)

	inv, err := f.Inverter("pv")
	require.NoError(t, err)
	assert.InDelta(t, 2*math.Pi*60, inv.OmegaCutoff, 1e-9, "f resolves to the system frequency")
	assert.Equal(t, []float64{30000, 20000, 25000}, inv.Profile)
	assert.Equal(t, 230.0, inv.VNom)
}

func TestNotFound(t *testing.T) {
	f, err := Default(50)
	require.NoError(t, err)

	_, err = f.Generator("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.Line("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.Inverter("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadFileWithoutOptionalBlocks(t *testing.T) {
	src := `
generator "g3" {
  order         = "3"
  nom_power     = 100e6
  nom_voltage   = 13.8e3
  nom_frequency = 50
  h             = 5
  ld            = 1.0
  lq            = 0.9
  ld_t          = 0.3
  td0_t         = 6
  init_active_power = 50e6
  init_voltage      = 13.8e3
}
`
	path := filepath.Join(t.TempDir(), "g3.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	f, err := LoadFile(path, 50)
	require.NoError(t, err)
	gen, err := f.Generator("g3")
	require.NoError(t, err)
	assert.Nil(t, gen.Exciter)
	assert.Nil(t, gen.Governor)
	assert.Equal(t, 0.0, gen.LdS)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`line "l" { r = `), "bad.hcl", 50)
	assert.ErrorContains(t, err, "failed to parse HCL file bad.hcl")

	_, err = Parse([]byte(`line "l" { r = 1 }`), "missing.hcl", 50)
	assert.ErrorContains(t, err, "failed to decode HCL file missing.hcl")
}
