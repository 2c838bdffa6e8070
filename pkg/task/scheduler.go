package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs resolved tasks level by level. A level only starts after
// the previous one has finished, so the right-hand side is complete before
// the solve and the solution is complete before any post-step reads it.
type Scheduler struct {
	logger  *slog.Logger
	workers int
	levels  [][]Task
	prev    []attribute.Ref
}

// TaskError reports the task whose Execute failed.
type TaskError struct {
	Task string
	Err  error
}

func (e *TaskError) Error() string { return fmt.Sprintf("task %s: %v", e.Task, e.Err) }
func (e *TaskError) Unwrap() error { return e.Err }

func NewScheduler(logger *slog.Logger, workers int) *Scheduler {
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{logger: logger, workers: workers}
}

func (s *Scheduler) Resolve(tasks []Task) error {
	g, err := newGraph(tasks)
	if err != nil {
		return err
	}
	levels, err := g.levels()
	if err != nil {
		return err
	}
	s.levels = levels

	seen := make(map[attribute.Ref]bool)
	s.prev = s.prev[:0]
	for _, t := range tasks {
		for _, ref := range t.PrevStepDependencies() {
			if !seen[ref] {
				seen[ref] = true
				s.prev = append(s.prev, ref)
			}
		}
	}

	if s.logger != nil {
		for i, level := range s.Levels() {
			s.logger.Debug("task level", "level", i, "tasks", level)
		}
	}
	return nil
}

// Levels returns the task names per level.
func (s *Scheduler) Levels() [][]string {
	out := make([][]string, len(s.levels))
	for i, level := range s.levels {
		for _, t := range level {
			out[i] = append(out[i], t.Name())
		}
	}
	return out
}

// Step snapshots previous-step attributes and then executes all levels.
func (s *Scheduler) Step(ctx context.Context, time float64, step int) error {
	for _, ref := range s.prev {
		ref.Snapshot()
	}

	for _, level := range s.levels {
		if err := ctx.Err(); err != nil {
			return err
		}
		if len(level) == 1 || s.workers == 1 {
			for _, t := range level {
				if err := t.Execute(time, step); err != nil {
					return &TaskError{Task: t.Name(), Err: err}
				}
			}
			continue
		}

		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(s.workers)
		for _, t := range level {
			g.Go(func() error {
				if err := t.Execute(time, step); err != nil {
					return &TaskError{Task: t.Name(), Err: err}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
	}
	return nil
}
