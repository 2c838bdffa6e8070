// Package datalog samples attributes after every simulation step and
// writes them to CSV, SQLite or plot sinks.
package datalog

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/cmplx"
	"slices"

	"github.com/edp1096/toy-gridsim/internal/ctxlog"
	"github.com/edp1096/toy-gridsim/pkg/attribute"
)

var ErrColumnsFixed = errors.New("columns are fixed after the first sample")

// Sink receives the flattened samples. WriteHeader is called once before
// the first row.
type Sink interface {
	WriteHeader(columns []string) error
	WriteRow(time float64, values []float64) error
	Close() error
}

type Mode int

const (
	RealImag Mode = iota // complex values as .re/.im
	MagPhase             // complex values as .mag/.phase in degrees
)

type entry struct {
	name string
	ref  attribute.Ref
}

type Logger struct {
	name    string
	mode    Mode
	logger  *slog.Logger
	entries []entry
	sinks   []Sink
	columns []string
	row     []float64
	samples int
}

type Option func(*Logger)

func WithMode(m Mode) Option {
	return func(l *Logger) { l.mode = m }
}

func WithLogger(logger *slog.Logger) Option {
	return func(l *Logger) { l.logger = logger }
}

func WithSinks(sinks ...Sink) Option {
	return func(l *Logger) { l.sinks = append(l.sinks, sinks...) }
}

func New(name string, opts ...Option) *Logger {
	l := &Logger{name: name}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = ctxlog.Discard()
	}
	l.logger = l.logger.With("datalog", name)
	return l
}

func (l *Logger) Name() string { return l.name }

// Log subscribes ref under name. Subscriptions are closed once the first
// sample was taken.
func (l *Logger) Log(name string, ref attribute.Ref) error {
	if l.columns != nil {
		return fmt.Errorf("%s: log %s: %w", l.name, name, ErrColumnsFixed)
	}
	l.entries = append(l.entries, entry{name: name, ref: ref})
	return nil
}

// LogAttributes subscribes attributes of store as owner.name.
func (l *Logger) LogAttributes(store *attribute.Store, names ...string) error {
	for _, n := range names {
		ref, err := store.Get(n)
		if err != nil {
			return err
		}
		if err := l.Log(store.Owner()+"."+n, ref); err != nil {
			return err
		}
	}
	return nil
}

func (l *Logger) flatten() map[string]float64 {
	out := make(map[string]float64)
	for _, e := range l.entries {
		v := e.ref.Value()
		if l.mode == MagPhase {
			switch v.Kind {
			case attribute.KindComplex:
				addPolar(out, e.name, v.Complex)
				continue
			case attribute.KindComplexVector:
				for i, c := range v.ComplexVector {
					addPolar(out, fmt.Sprintf("%s_%d", e.name, i), c)
				}
				continue
			}
		}
		for k, x := range v.Scalars(e.name) {
			out[k] = x
		}
	}
	return out
}

func addPolar(out map[string]float64, name string, c complex128) {
	out[name+".mag"] = cmplx.Abs(c)
	out[name+".phase"] = cmplx.Phase(c) * 180 / math.Pi
}

// Sample reads every subscribed attribute and writes one row to all sinks.
// Columns that vanish after the first sample are written as NaN.
func (l *Logger) Sample(time float64) error {
	values := l.flatten()
	if l.columns == nil {
		l.columns = make([]string, 0, len(values))
		for k := range values {
			l.columns = append(l.columns, k)
		}
		slices.Sort(l.columns)
		l.row = make([]float64, len(l.columns))
		for _, s := range l.sinks {
			if err := s.WriteHeader(l.columns); err != nil {
				return fmt.Errorf("%s: %w", l.name, err)
			}
		}
		l.logger.Debug("columns fixed", "count", len(l.columns))
	}
	for i, c := range l.columns {
		v, ok := values[c]
		if !ok {
			v = math.NaN()
		}
		l.row[i] = v
	}
	for _, s := range l.sinks {
		if err := s.WriteRow(time, l.row); err != nil {
			return fmt.Errorf("%s: %w", l.name, err)
		}
	}
	l.samples++
	return nil
}

func (l *Logger) Columns() []string { return l.columns }
func (l *Logger) Samples() int { return l.samples }

func (l *Logger) Close() error {
	var errs []error
	for _, s := range l.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	l.logger.Info("closed", "samples", l.samples, "columns", len(l.columns))
	return errors.Join(errs...)
}
