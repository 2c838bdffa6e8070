package task

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/edp1096/toy-gridsim/pkg/attribute"
)

var (
	ErrDuplicateTask   = errors.New("duplicate task name")
	ErrMultipleWriters = errors.New("attribute modified by more than one task")
	ErrCycle           = errors.New("cycle detected")
)

type graph struct {
	tasks   map[string]Task
	edges   map[string][]string // writer -> readers
	parents map[string][]string // reader -> writers
}

func newGraph(tasks []Task) (*graph, error) {
	g := &graph{
		tasks:   make(map[string]Task, len(tasks)),
		edges:   make(map[string][]string),
		parents: make(map[string][]string),
	}

	writers := make(map[attribute.Ref]string)
	for _, t := range tasks {
		if _, exists := g.tasks[t.Name()]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, t.Name())
		}
		g.tasks[t.Name()] = t
		for _, ref := range t.Modified() {
			if other, exists := writers[ref]; exists && other != t.Name() {
				return nil, fmt.Errorf("%w: %s.%s written by %s and %s",
					ErrMultipleWriters, ref.Owner(), ref.Name(), other, t.Name())
			}
			writers[ref] = t.Name()
		}
	}

	for _, t := range tasks {
		for _, ref := range t.Dependencies() {
			writer, ok := writers[ref]
			if !ok || writer == t.Name() {
				continue
			}
			g.addEdge(writer, t.Name())
		}
	}
	return g, nil
}

func (g *graph) addEdge(parent, child string) {
	for _, c := range g.edges[parent] {
		if c == child {
			return
		}
	}
	g.edges[parent] = append(g.edges[parent], child)
	g.parents[child] = append(g.parents[child], parent)
}

func (g *graph) sortedIDs() []string {
	ids := make([]string, 0, len(g.tasks))
	for id := range g.tasks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *graph) findCycle() []string {
	visited := make(map[string]bool)
	onStack := make(map[string]bool)
	from := make(map[string]string)
	var cycle []string

	var dfs func(id string) bool
	dfs = func(id string) bool {
		visited[id] = true
		onStack[id] = true
		for _, child := range g.edges[id] {
			if !visited[child] {
				from[child] = id
				if dfs(child) {
					return true
				}
			} else if onStack[child] {
				cycle = []string{child}
				for cur := id; cur != child; cur = from[cur] {
					cycle = append([]string{cur}, cycle...)
				}
				cycle = append([]string{child}, cycle...)
				return true
			}
		}
		onStack[id] = false
		return false
	}

	for _, id := range g.sortedIDs() {
		if !visited[id] && dfs(id) {
			return cycle
		}
	}
	return nil
}

// levels groups tasks so that every task comes after all of its writers.
// Tasks inside one level are independent.
func (g *graph) levels() ([][]Task, error) {
	if cycle := g.findCycle(); cycle != nil {
		return nil, fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
	}

	assigned := make(map[string]int)
	var levelOf func(id string) int
	levelOf = func(id string) int {
		if l, ok := assigned[id]; ok {
			return l
		}
		l := 0
		for _, p := range g.parents[id] {
			if pl := levelOf(p) + 1; pl > l {
				l = pl
			}
		}
		assigned[id] = l
		return l
	}

	maxLevel := -1
	for _, id := range g.sortedIDs() {
		if l := levelOf(id); l > maxLevel {
			maxLevel = l
		}
	}

	out := make([][]Task, maxLevel+1)
	for _, id := range g.sortedIDs() {
		l := assigned[id]
		out[l] = append(out[l], g.tasks[id])
	}
	return out, nil
}
