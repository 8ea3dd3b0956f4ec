package watcher

import (
	"context"
	stderrors "errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/assetforge/internal/fileset"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/pipeline"
)

// Binding ties glob patterns to the task that rebuilds them.
type Binding struct {
	// Patterns are matched against slash separated paths relative to the
	// router root. "!" patterns exclude.
	Patterns []string
	Task     string
	// OnAll runs after every triggered run of Task.
	OnAll pipeline.Callback
	// OnRemove runs for each matching path that was deleted, before Task
	// is triggered.
	OnRemove func(ctx context.Context, rel string) error
}

// Trigger starts a task run in the background.
type Trigger interface {
	Trigger(ctx context.Context, name string, then pipeline.Callback)
}

// Router dispatches change batches to bindings.
type Router struct {
	root     string
	trigger  Trigger
	bindings []Binding
	logger   logging.Logger
}

// NewRouter creates a Router for paths under root.
func NewRouter(root string, trigger Trigger, logger logging.Logger, bindings ...Binding) (*Router, error) {
	for _, b := range bindings {
		if b.Task == "" {
			return nil, fmt.Errorf("binding for %v has no task", b.Patterns)
		}
		if len(b.Patterns) == 0 {
			return nil, fmt.Errorf("binding for task %q has no patterns", b.Task)
		}
		for _, p := range b.Patterns {
			if !doublestar.ValidatePattern(strings.TrimPrefix(filepath.ToSlash(p), "!")) {
				return nil, fmt.Errorf("invalid watch pattern %q for task %q", p, b.Task)
			}
		}
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Router{
		root:     filepath.Clean(root),
		trigger:  trigger,
		bindings: bindings,
		logger:   logger.WithComponent("router"),
	}, nil
}

// Bindings returns the configured bindings.
func (r *Router) Bindings() []Binding {
	return r.bindings
}

// Handle is a ChangeHandler. Each binding with at least one matching event
// is triggered once per batch.
func (r *Router) Handle(ctx context.Context, events []ChangeEvent) error {
	var errs []error
	for _, b := range r.bindings {
		matched := false
		for _, event := range events {
			rel, ok := r.rel(event.Path)
			if !ok || !fileset.Match(b.Patterns, rel) {
				continue
			}
			matched = true
			r.logger.Debug(ctx, "change", "path", rel, "event", event.Type.String(), "task", b.Task)

			if event.Removed() && b.OnRemove != nil {
				if err := b.OnRemove(ctx, rel); err != nil {
					errs = append(errs, fmt.Errorf("removing %s: %w", rel, err))
				}
			}
		}
		if matched {
			r.trigger.Trigger(ctx, b.Task, b.OnAll)
		}
	}
	return stderrors.Join(errs...)
}

func (r *Router) rel(path string) (string, bool) {
	if !fileset.Under(r.root, path) {
		return "", false
	}
	rel, err := filepath.Rel(r.root, path)
	if err != nil {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
