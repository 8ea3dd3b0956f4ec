// Package pipeline holds the named task graph, the series runner that
// executes it and the per-trigger scheduler used by watch mode.
package pipeline

import (
	"context"
	"time"

	"github.com/conneroisu/assetforge/internal/notify"
)

// Options is built once at startup and handed to every task invocation.
type Options struct {
	Production bool
	Reporter   notify.Reporter
}

// Report forwards err to the configured reporter, if any.
func (o Options) Report(ctx context.Context, err error) {
	if o.Reporter != nil && err != nil {
		o.Reporter.Report(ctx, err)
	}
}

// Action is the work a task performs. A nil Action marks an aggregate task
// that only sequences its dependencies.
type Action func(ctx context.Context, opts Options) error

// Task is a named unit of work with ordered prerequisites.
type Task struct {
	Name         string
	Description  string
	Dependencies []string
	Action       Action
}

// Status is the outcome of a single task invocation.
type Status int

const (
	StatusSucceeded Status = iota
	StatusReported
	StatusFailed
	StatusSkipped
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusReported:
		return "reported"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Result records one task invocation.
type Result struct {
	Task     string
	Status   Status
	Err      error
	Duration time.Duration
}

// Results is the ordered outcome of a run.
type Results []Result

// Failed reports whether any task failed fatally.
func (rs Results) Failed() bool {
	for _, r := range rs {
		if r.Status == StatusFailed {
			return true
		}
	}
	return false
}

// Reported reports whether any task reported a compile error.
func (rs Results) Reported() bool {
	for _, r := range rs {
		if r.Status == StatusReported {
			return true
		}
	}
	return false
}

// Get returns the result for name.
func (rs Results) Get(name string) (Result, bool) {
	for _, r := range rs {
		if r.Task == name {
			return r, true
		}
	}
	return Result{}, false
}
