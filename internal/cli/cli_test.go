package cli

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/edp1096/toy-gridsim/internal/config"
	"github.com/edp1096/toy-gridsim/internal/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	out, errOut := new(bytes.Buffer), new(bytes.Buffer)
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	t.Log(errOut.String())
	return out.String(), err
}

func TestScenariosCommand(t *testing.T) {
	out, err := execute(t, "scenarios")
	require.NoError(t, err)
	for _, s := range scenario.All() {
		assert.Contains(t, out, s.Name)
	}
	assert.Contains(t, out, "DP,EMT")
}

func TestRunWritesOutputs(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "run", "rl-decay",
		"--duration", "0.01", "--time-step", "1e-4",
		"--output-dir", dir, "--sim-name", "decay",
		"--outputs", "csv,sqlite,plot", "--log-level", "error", "--levels")
	require.NoError(t, err)

	assert.Contains(t, out, "LEVEL")
	assert.Contains(t, out, "rl-decay.Solve")
	assert.Contains(t, out, "I(rl)")
	assert.Contains(t, out, "V(n)")

	csvData, err := os.ReadFile(filepath.Join(dir, "decay", "rl-decay.csv"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(csvData)), "\n")
	require.Len(t, lines, 101, "header plus one row per step")
	assert.True(t, strings.HasPrefix(lines[0], "time,"))
	assert.Contains(t, lines[0], "I(rl)_0.mag")

	assert.FileExists(t, filepath.Join(dir, "decay", "rl-decay.png"))

	db, err := sql.Open("sqlite", filepath.Join(dir, "results.db"))
	require.NoError(t, err)
	defer db.Close()
	var rows int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM results WHERE run = ? AND name = ?`, "decay/rl-decay", "I(rl)_0.mag").Scan(&rows))
	assert.Equal(t, 100, rows)
}

func TestRunEMTScenario(t *testing.T) {
	out, err := execute(t, "run", "rl-step", "--domain", "emt", "--solver", "dense",
		"--duration", "0.002", "--log-level", "error")
	require.NoError(t, err)
	assert.Contains(t, out, "V(bus.a)")
	assert.Contains(t, out, "VALUE")
	assert.NotContains(t, out, "PHASE")
}

func TestRunErrors(t *testing.T) {
	_, err := execute(t, "run", "nope", "--log-level", "error")
	assert.ErrorIs(t, err, scenario.ErrUnknown)

	_, err = execute(t, "run", "rl-decay", "--time-step=-1")
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = execute(t, "run", "rl-decay", "--params-file", filepath.Join(t.TempDir(), "missing.hcl"))
	assert.Error(t, err)
}
