package pipeline

import (
	"context"
	"sync"

	"go.trai.ch/zerr"

	"github.com/conneroisu/assetforge/internal/logging"
)

// Runner executes the series planned for a set of targets. Each task runs
// at most once per Run, and never concurrently with itself across Runs.
type Runner struct {
	graph  *Graph
	opts   Options
	logger logging.Logger

	// KeepGoing continues the series after a fatal failure.
	KeepGoing bool

	mutex sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRunner creates a Runner for a validated graph.
func NewRunner(graph *Graph, opts Options, logger logging.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Runner{
		graph:  graph,
		opts:   opts,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}
}

// Options returns the options handed to every task.
func (r *Runner) Options() Options {
	return r.opts
}

// Graph returns the graph the runner executes.
func (r *Runner) Graph() *Graph {
	return r.graph
}

// Run executes targets and their prerequisites one after another. The
// returned error is the first fatal failure, or nil when every task
// succeeded or only reported errors.
func (r *Runner) Run(ctx context.Context, targets ...string) (Results, error) {
	plan, err := r.graph.Plan(targets...)
	if err != nil {
		return nil, err
	}

	results := make(Results, 0, len(plan))
	var firstErr error

	for _, name := range plan {
		if ctx.Err() != nil || (firstErr != nil && !r.KeepGoing) {
			results = append(results, Result{Task: name, Status: StatusSkipped})
			continue
		}

		result := r.runTask(ctx, name)
		results = append(results, result)

		if result.Status == StatusFailed && firstErr == nil {
			firstErr = zerr.With(zerr.Wrap(result.Err, ErrTaskFailed.Error()), "task_name", name)
		}
	}

	if firstErr == nil && ctx.Err() != nil {
		return results, ctx.Err()
	}
	return results, firstErr
}

func (r *Runner) runTask(ctx context.Context, name string) Result {
	task, _ := r.graph.Task(name)

	lock := r.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	perf := logging.StartOperation(ctx, r.logger, name)
	if task.Action == nil {
		return Result{Task: name, Status: StatusSucceeded, Duration: perf.End(ctx)}
	}

	err := task.Action(ctx, r.opts)
	switch {
	case err == nil:
		return Result{Task: name, Status: StatusSucceeded, Duration: perf.End(ctx)}
	case IsReported(err):
		return Result{Task: name, Status: StatusReported, Err: err, Duration: perf.End(ctx)}
	default:
		return Result{Task: name, Status: StatusFailed, Err: err, Duration: perf.EndWithError(ctx, err)}
	}
}

func (r *Runner) lockFor(name string) *sync.Mutex {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	lock, ok := r.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[name] = lock
	}
	return lock
}
