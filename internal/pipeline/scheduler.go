package pipeline

import (
	"context"
	"sync"

	"github.com/conneroisu/assetforge/internal/logging"
)

// Callback receives the outcome of a scheduled run.
type Callback func(results Results, err error)

type triggerState struct {
	running bool
	pending bool
	then    Callback
}

// Scheduler runs tasks in response to watch events. A trigger never starts
// while a previous run of the same trigger is in flight; triggers arriving
// meanwhile collapse into exactly one follow-up run.
type Scheduler struct {
	runner *Runner
	logger logging.Logger

	mutex    sync.Mutex
	triggers map[string]*triggerState
	wg       sync.WaitGroup
}

// NewScheduler creates a Scheduler backed by runner.
func NewScheduler(runner *Runner, logger logging.Logger) *Scheduler {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Scheduler{
		runner:   runner,
		logger:   logger.WithComponent("scheduler"),
		triggers: make(map[string]*triggerState),
	}
}

// Trigger runs name in the background, then calls then. If name is already
// running the request is coalesced and then replaces the pending callback.
func (s *Scheduler) Trigger(ctx context.Context, name string, then Callback) {
	s.mutex.Lock()
	state, ok := s.triggers[name]
	if !ok {
		state = &triggerState{}
		s.triggers[name] = state
	}
	if state.running {
		state.pending = true
		state.then = then
		s.mutex.Unlock()
		s.logger.Debug(ctx, "coalescing trigger", "task", name)
		return
	}
	state.running = true
	s.wg.Add(1)
	s.mutex.Unlock()

	go s.loop(ctx, name, state, then)
}

func (s *Scheduler) loop(ctx context.Context, name string, state *triggerState, then Callback) {
	defer s.wg.Done()

	for {
		results, err := s.runner.Run(ctx, name)
		if then != nil {
			then(results, err)
		}

		s.mutex.Lock()
		if state.pending && ctx.Err() == nil {
			state.pending = false
			then = state.then
			state.then = nil
			s.mutex.Unlock()
			continue
		}
		state.running = false
		state.pending = false
		state.then = nil
		s.mutex.Unlock()
		return
	}
}

// Running reports whether a run of name is in flight.
func (s *Scheduler) Running(name string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	state, ok := s.triggers[name]
	return ok && state.running
}

// Active returns the number of triggers with a run in flight.
func (s *Scheduler) Active() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	n := 0
	for _, state := range s.triggers {
		if state.running {
			n++
		}
	}
	return n
}

// Wait blocks until every in-flight and pending run has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}
