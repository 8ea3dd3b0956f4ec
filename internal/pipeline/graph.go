package pipeline

import (
	"iter"
	"strings"

	"go.trai.ch/zerr"
)

// Graph is the set of registered tasks and their prerequisite edges.
type Graph struct {
	tasks     map[string]*Task
	order     []string
	validated bool
}

// NewGraph creates an empty Graph.
func NewGraph() *Graph {
	return &Graph{
		tasks: make(map[string]*Task),
	}
}

// AddTask registers t. Dependencies may name tasks registered later; they
// are checked by Validate.
func (g *Graph) AddTask(t Task) error {
	if _, exists := g.tasks[t.Name]; exists {
		return zerr.With(ErrTaskAlreadyExists, "task_name", t.Name)
	}
	deps := make([]string, len(t.Dependencies))
	copy(deps, t.Dependencies)
	t.Dependencies = deps

	g.tasks[t.Name] = &t
	g.order = append(g.order, t.Name)
	g.validated = false
	return nil
}

// Validate checks that every dependency exists and that the graph is acyclic.
func (g *Graph) Validate() error {
	visited := make(map[string]int) // 0: unvisited, 1: visiting, 2: done
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		visited[name] = 1
		path = append(path, name)

		for _, dep := range g.tasks[name].Dependencies {
			if _, ok := g.tasks[dep]; !ok {
				return zerr.With(zerr.With(ErrMissingDependency, "dependency", dep), "task_name", name)
			}
			switch visited[dep] {
			case 1:
				return buildCycleError(path, dep)
			case 0:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		visited[name] = 2
		path = path[:len(path)-1]
		return nil
	}

	// Registration order keeps error reporting deterministic.
	for _, name := range g.order {
		if visited[name] == 0 {
			if err := visit(name); err != nil {
				return err
			}
		}
	}

	g.validated = true
	return nil
}

func buildCycleError(path []string, dep string) error {
	start := 0
	for i, node := range path {
		if node == dep {
			start = i
			break
		}
	}
	cycle := append(append([]string{}, path[start:]...), dep)
	return zerr.With(ErrCycleDetected, "cycle", strings.Join(cycle, " -> "))
}

// Task returns the registered task called name.
func (g *Graph) Task(name string) (Task, bool) {
	t, ok := g.tasks[name]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// Tasks yields the registered tasks in registration order.
func (g *Graph) Tasks() iter.Seq[Task] {
	return func(yield func(Task) bool) {
		for _, name := range g.order {
			if !yield(*g.tasks[name]) {
				return
			}
		}
	}
}

// Len returns the number of registered tasks.
func (g *Graph) Len() int {
	return len(g.tasks)
}

// Plan returns the series that running targets executes: each target's
// dependencies depth first in declared order, then the target, with every
// task appearing once.
func (g *Graph) Plan(targets ...string) ([]string, error) {
	if !g.validated {
		return nil, ErrGraphNotValidated
	}

	seen := make(map[string]bool)
	var plan []string

	var add func(name string)
	add = func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		for _, dep := range g.tasks[name].Dependencies {
			add(dep)
		}
		plan = append(plan, name)
	}

	for _, target := range targets {
		if _, ok := g.tasks[target]; !ok {
			return nil, zerr.With(ErrTaskNotFound, "task_name", target)
		}
		add(target)
	}
	return plan, nil
}
