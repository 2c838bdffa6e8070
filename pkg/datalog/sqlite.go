package datalog

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS results (
	run   TEXT NOT NULL,
	time  REAL NOT NULL,
	name  TEXT NOT NULL,
	value REAL
)`

// SQLiteSink stores samples in the results table, one row per column and
// step. All rows of a run are committed together on Close.
type SQLiteSink struct {
	db      *sql.DB
	tx      *sql.Tx
	stmt    *sql.Stmt
	run     string
	columns []string
}

func OpenSQLite(path, run string) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create results table: %w", err)
	}
	if _, err := db.Exec(`DELETE FROM results WHERE run = ?`, run); err != nil {
		db.Close()
		return nil, fmt.Errorf("clear run %s: %w", run, err)
	}
	return &SQLiteSink{db: db, run: run}, nil
}

func (s *SQLiteSink) WriteHeader(columns []string) error {
	s.columns = append([]string(nil), columns...)
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO results (run, time, name, value) VALUES (?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	s.tx, s.stmt = tx, stmt
	return nil
}

func (s *SQLiteSink) WriteRow(time float64, values []float64) error {
	for i, v := range values {
		if _, err := s.stmt.Exec(s.run, time, s.columns[i], v); err != nil {
			return fmt.Errorf("insert %s: %w", s.columns[i], err)
		}
	}
	return nil
}

func (s *SQLiteSink) Close() error {
	if s.tx != nil {
		s.stmt.Close()
		if err := s.tx.Commit(); err != nil {
			s.db.Close()
			return err
		}
	}
	return s.db.Close()
}
