package datalog

import (
	"encoding/csv"
	"io"
	"strconv"
)

type CSVSink struct {
	w      *csv.Writer
	closer io.Closer
	record []string
}

// NewCSVSink writes to w. When w is an io.Closer it is closed with the sink.
func NewCSVSink(w io.Writer) *CSVSink {
	s := &CSVSink{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.closer = c
	}
	return s
}

func (s *CSVSink) WriteHeader(columns []string) error {
	s.record = make([]string, len(columns)+1)
	return s.w.Write(append([]string{"time"}, columns...))
}

func (s *CSVSink) WriteRow(time float64, values []float64) error {
	s.record[0] = strconv.FormatFloat(time, 'g', -1, 64)
	for i, v := range values {
		s.record[i+1] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return s.w.Write(s.record)
}

func (s *CSVSink) Close() error {
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
