package cli

import (
	"fmt"
	"io"
	"maps"
	"math"
	"math/cmplx"
	"slices"
	"strings"

	"github.com/edp1096/toy-gridsim/pkg/device"
	"github.com/edp1096/toy-gridsim/pkg/util"
	"github.com/jedib0t/go-pretty/v6/table"
)

// renderFinal prints the last value of every quantity. DP values are
// phasors, EMT values are instantaneous and only the real part is shown.
func renderFinal(w io.Writer, final map[string]complex128, domain device.Domain) error {
	if len(final) == 0 {
		_, _ = fmt.Fprintln(w, "(no results)")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	if domain == device.EMT {
		t.AppendHeader(table.Row{"Quantity", "Value"})
	} else {
		t.AppendHeader(table.Row{"Quantity", "Magnitude", "Phase [deg]"})
	}

	for _, name := range slices.Sorted(maps.Keys(final)) {
		v := final[name]
		if domain == device.EMT {
			t.AppendRow(table.Row{name, strings.TrimSpace(util.FormatMagnitude(real(v)))})
			continue
		}
		t.AppendRow(table.Row{
			name,
			strings.TrimSpace(util.FormatMagnitude(cmplx.Abs(v))),
			strings.TrimSpace(util.FormatPhase(cmplx.Phase(v) * 180 / math.Pi)),
		})
	}
	t.Render()
	return nil
}

func renderLevels(w io.Writer, levels [][]string) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Level", "Tasks"})
	for i, level := range levels {
		t.AppendRow(table.Row{i, strings.Join(level, ", ")})
	}
	t.Render()
}
