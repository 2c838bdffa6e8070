package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/edp1096/toy-gridsim/internal/config"
	"github.com/edp1096/toy-gridsim/internal/scenario"
	"github.com/edp1096/toy-gridsim/pkg/datalog"
	"github.com/edp1096/toy-gridsim/pkg/device"
)

const resultsDB = "results.db"

// openDatalog creates the sinks named in cfg.Outputs under
// OutputDir/SimName. It returns nil when no output is configured.
func openDatalog(cfg *config.Config, c *scenario.Case, logger *slog.Logger) (*datalog.Logger, error) {
	if len(cfg.Outputs) == 0 {
		return nil, nil
	}
	dir := filepath.Join(cfg.OutputDir, cfg.SimName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	mode, suffix := datalog.MagPhase, ".mag"
	if c.Domain == device.EMT {
		mode, suffix = datalog.RealImag, ".re"
	}
	name := c.System.Name

	var sinks []datalog.Sink
	closeAll := func(err error) error {
		for _, s := range sinks {
			err = errors.Join(err, s.Close())
		}
		return err
	}
	for _, o := range cfg.Outputs {
		switch o {
		case "csv":
			f, err := os.Create(filepath.Join(dir, name+".csv"))
			if err != nil {
				return nil, closeAll(err)
			}
			sinks = append(sinks, datalog.NewCSVSink(f))
		case "sqlite":
			s, err := datalog.OpenSQLite(filepath.Join(cfg.OutputDir, resultsDB), cfg.SimName+"/"+name)
			if err != nil {
				return nil, closeAll(err)
			}
			sinks = append(sinks, s)
		case "plot":
			sinks = append(sinks, datalog.NewPlotSink(filepath.Join(dir, name+".png"), name).Only(func(col string) bool {
				return strings.HasPrefix(col, "V(") && strings.HasSuffix(col, suffix)
			}))
		}
	}
	logger.Info("writing results", "dir", dir, "outputs", cfg.Outputs)
	return datalog.New(name, datalog.WithMode(mode), datalog.WithLogger(logger), datalog.WithSinks(sinks...)), nil
}

// subscribe logs every node voltage, the interface current of every
// top-level component and whatever the scenario watches. Nodes only exist
// once the analysis assigned matrix indices.
func subscribe(dl *datalog.Logger, c *scenario.Case) error {
	for _, n := range c.System.Nodes() {
		ref, err := n.Attributes().Get("v")
		if err != nil {
			return err
		}
		if err := dl.Log("V("+n.Name()+")", ref); err != nil {
			return err
		}
	}
	for _, e := range c.System.Components() {
		comp, ok := e.(device.Component)
		if !ok {
			continue
		}
		ref, err := comp.Attributes().Get("i_intf")
		if err != nil {
			continue
		}
		if err := dl.Log("I("+comp.Name()+")", ref); err != nil {
			return err
		}
	}
	if c.Watch != nil {
		return c.Watch(dl)
	}
	return nil
}
