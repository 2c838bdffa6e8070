package cli

import (
	"strings"

	"github.com/edp1096/toy-gridsim/internal/scenario"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func NewScenariosCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "scenarios",
		Short: "List the bundled scenarios",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Name", "Domains", "Description"})
			for _, s := range scenario.All() {
				domains := make([]string, len(s.Domains))
				for i, d := range s.Domains {
					domains[i] = d.String()
				}
				t.AppendRow(table.Row{s.Name, strings.Join(domains, ","), s.Description})
			}
			t.Render()
			return nil
		},
	}
}
