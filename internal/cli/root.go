// Package cli provides the gridsim command-line interface.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/edp1096/toy-gridsim/internal/config"
	"github.com/edp1096/toy-gridsim/internal/ctxlog"
	"github.com/spf13/cobra"
)

var Version = "0.1.0"

type configKey struct{}

func configFrom(ctx context.Context) *config.Config {
	if cfg, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return cfg
	}
	return nil
}

func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "gridsim",
		Short: "gridsim - power grid transient simulator",
		Long: `gridsim solves power networks with modified nodal analysis, either as
dynamic phasors or as three-phase instantaneous values.

Settings come from defaults, an optional YAML file, GRIDSIM_ environment
variables and flags, in that order.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			logger := ctxlog.New(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
			if cfg.FileUsed != "" {
				logger.Debug("using config file", "path", cfg.FileUsed)
			}

			ctx := context.WithValue(cmd.Context(), configKey{}, cfg)
			cmd.SetContext(ctxlog.WithLogger(ctx, logger))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (YAML)")
	flags.String("sim-name", "", "Simulation name, used for output paths")
	flags.String("domain", "", "Simulation domain (dp|emt)")
	flags.String("solver", "", "Matrix back end (sparse|dense)")
	flags.Float64("time-step", 0, "Time step in seconds")
	flags.Float64("duration", 0, "Simulated time in seconds")
	flags.Float64("system-frequency", 0, "System frequency in Hz")
	flags.Int("workers", 0, "Parallel task workers per step")
	flags.String("params-file", "", "HCL component parameter file")
	flags.String("output-dir", "", "Directory for result files")
	flags.StringSlice("outputs", nil, "Result sinks (csv,sqlite,plot)")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.String("log-format", "", "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("domain", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"dp", "emt"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("solver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"sparse", "dense"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewScenariosCommand())
	return rootCmd
}

func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}
