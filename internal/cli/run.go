package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/edp1096/toy-gridsim/internal/config"
	"github.com/edp1096/toy-gridsim/internal/ctxlog"
	"github.com/edp1096/toy-gridsim/internal/params"
	"github.com/edp1096/toy-gridsim/internal/scenario"
	"github.com/edp1096/toy-gridsim/pkg/analysis"
	"github.com/edp1096/toy-gridsim/pkg/datalog"
	"github.com/edp1096/toy-gridsim/pkg/task"
	"github.com/edp1096/toy-gridsim/pkg/util"
	"github.com/spf13/cobra"
)

type runOptions struct {
	tear   bool
	levels bool
}

// simulation is what Transient and Harmonic have in common.
type simulation interface {
	analysis.Analysis
	Final() map[string]complex128
	Times() []float64
	Scheduler() *task.Scheduler
	Close()
}

func NewRunCommand() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run a scenario",
		Long: `Build a scenario, solve its steady state when it has one and step it
through the configured duration. The final value of every node voltage and
component current is printed as a table.`,
		Example: `  gridsim run smib --duration 1 --time-step 1e-4 --outputs csv,plot
  gridsim run rl-step --domain emt --solver dense
  gridsim run smib --tear`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd.Context())
			if cfg == nil {
				return errors.New("configuration not loaded")
			}
			if len(args) == 1 {
				cfg.Scenario = args[0]
			}
			return runScenario(cmd.Context(), cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.tear, "tear", false, "Solve switches that support it in a torn subsystem")
	cmd.Flags().BoolVar(&opts.levels, "levels", false, "Print the task schedule levels")
	return cmd
}

func loadParams(cfg *config.Config) (*params.File, error) {
	if cfg.ParamsFile != "" {
		return params.LoadFile(cfg.ParamsFile, cfg.SystemFrequency)
	}
	return params.Default(cfg.SystemFrequency)
}

func runScenario(ctx context.Context, w io.Writer, cfg *config.Config, opts runOptions) error {
	logger := ctxlog.FromContext(ctx)

	sc, err := scenario.Lookup(cfg.Scenario)
	if err != nil {
		return err
	}
	want, err := scenario.ParseDomain(cfg.Domain)
	if err != nil {
		return err
	}
	domain, err := sc.Resolve(want)
	if err != nil {
		return err
	}
	if domain != want {
		logger.Info("scenario runs in its own domain", "scenario", sc.Name, "domain", domain)
	}

	p, err := loadParams(cfg)
	if err != nil {
		return err
	}
	c, err := sc.Build(scenario.Env{
		Params:          p,
		SystemFrequency: cfg.SystemFrequency,
		Duration:        cfg.Duration,
		Domain:          domain,
		Tear:            opts.tear,
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("building %s: %w", sc.Name, err)
	}

	if c.Kind == scenario.Harmonic {
		for _, f := range c.System.Frequencies {
			logger.Debug("tracking frequency", "f", util.FormatValueFactor(f, "Hz"))
		}
	}

	if c.SteadyState {
		if err := solveSteadyState(ctx, logger, cfg, c); err != nil {
			return err
		}
	}

	dl, err := openDatalog(cfg, c, logger)
	if err != nil {
		return err
	}
	sim := newSimulation(cfg, c, logger, dl)
	defer sim.Close()

	start := time.Now()
	err = func() error {
		if err := sim.Setup(c.System); err != nil {
			return err
		}
		if dl != nil {
			if err := subscribe(dl, c); err != nil {
				return err
			}
		}
		if opts.levels {
			renderLevels(w, sim.Scheduler().Levels())
		}
		return sim.Execute(ctx)
	}()
	if dl != nil {
		err = errors.Join(err, dl.Close())
	}
	if err != nil {
		return err
	}

	logger.Info("run finished",
		"scenario", sc.Name, "kind", c.Kind, "steps", len(sim.Times()),
		"simulated", util.FormatValueFactor(cfg.Duration, "s"), "elapsed", time.Since(start).Round(time.Millisecond))
	return renderFinal(w, sim.Final(), domain)
}

func solveSteadyState(ctx context.Context, logger *slog.Logger, cfg *config.Config, c *scenario.Case) error {
	ss := analysis.NewSteadyState(analysis.WithSolver(cfg.Solver), analysis.WithLogger(logger))
	if err := ss.Setup(c.System); err != nil {
		return err
	}
	if err := ss.Execute(ctx); err != nil {
		return err
	}
	for name, v := range ss.Solution() {
		logger.Debug("initial voltage", "node", util.FormatPhasor(name, v))
	}
	return nil
}

func newSimulation(cfg *config.Config, c *scenario.Case, logger *slog.Logger, dl *datalog.Logger) simulation {
	opts := []analysis.Option{
		analysis.WithDomain(c.Domain),
		analysis.WithSolver(cfg.Solver),
		analysis.WithWorkers(cfg.Workers),
		analysis.WithLogger(logger),
		analysis.WithEvents(c.Events...),
		analysis.WithTear(c.Tear...),
	}
	if c.Initialized != nil {
		opts = append(opts, analysis.OnInitialized(c.Initialized))
	}
	if dl != nil {
		opts = append(opts, analysis.WithSampler(dl))
	}
	if c.Kind == scenario.Harmonic {
		return analysis.NewHarmonic(cfg.TimeStep, cfg.Duration, opts...)
	}
	return analysis.NewTransient(cfg.TimeStep, cfg.Duration, opts...)
}
