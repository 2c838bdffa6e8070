package datalog

import (
	"fmt"
	"path/filepath"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// PlotSink collects every column and renders them as time series on Close.
// The image format follows the file extension.
type PlotSink struct {
	path    string
	title   string
	width   vg.Length
	height  vg.Length
	filter  func(column string) bool
	columns []string
	series  []plotter.XYs
}

func NewPlotSink(path, title string) *PlotSink {
	return &PlotSink{path: path, title: title, width: 8 * vg.Inch, height: 4 * vg.Inch}
}

// Only restricts the plotted columns to those for which keep is true.
func (s *PlotSink) Only(keep func(column string) bool) *PlotSink {
	s.filter = keep
	return s
}

func (s *PlotSink) WriteHeader(columns []string) error {
	s.columns = columns
	s.series = make([]plotter.XYs, len(columns))
	return nil
}

func (s *PlotSink) WriteRow(time float64, values []float64) error {
	for i, v := range values {
		s.series[i] = append(s.series[i], plotter.XY{X: time, Y: v})
	}
	return nil
}

func (s *PlotSink) Close() error {
	switch ext := strings.ToLower(filepath.Ext(s.path)); ext {
	case ".png", ".svg", ".pdf", ".jpg", ".jpeg":
	default:
		return fmt.Errorf("plot %s: unsupported format %q", s.path, ext)
	}

	p := plot.New()
	p.Title.Text = s.title
	p.X.Label.Text = "time [s]"
	p.Legend.Top = true

	n := 0
	for i, c := range s.columns {
		if s.filter != nil && !s.filter(c) {
			continue
		}
		line, err := plotter.NewLine(s.series[i])
		if err != nil {
			return fmt.Errorf("plot %s: %w", c, err)
		}
		line.Color = plotutil.Color(n)
		p.Add(line)
		p.Legend.Add(c, line)
		n++
	}
	if err := p.Save(s.width, s.height, s.path); err != nil {
		return fmt.Errorf("plot %s: %w", s.path, err)
	}
	return nil
}
