package watcher

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"time"
)

// Debouncer groups rapid file changes together. Events are never dropped:
// when nobody reads the output, Add blocks.
type Debouncer struct {
	delay  time.Duration
	events chan ChangeEvent
	output chan []ChangeEvent
}

// NewDebouncer creates a Debouncer that emits a batch once delay passes
// without a new event.
func NewDebouncer(delay time.Duration) *Debouncer {
	return &Debouncer{
		delay:  delay,
		events: make(chan ChangeEvent, 256),
		output: make(chan []ChangeEvent),
	}
}

// Add queues an event, waiting for room unless ctx is cancelled.
func (d *Debouncer) Add(ctx context.Context, event ChangeEvent) {
	select {
	case d.events <- event:
	case <-ctx.Done():
	}
}

// Output delivers batches sorted by path with one event per path.
func (d *Debouncer) Output() <-chan []ChangeEvent {
	return d.output
}

// Run batches events until ctx is cancelled.
func (d *Debouncer) Run(ctx context.Context) {
	pending := make(map[string]ChangeEvent)
	timer := time.NewTimer(d.delay)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return

		case event := <-d.events:
			// The latest event for a path describes its final state.
			pending[event.Path] = event
			timer.Reset(d.delay)

		case <-timer.C:
			if len(pending) == 0 {
				continue
			}
			batch := slices.SortedFunc(maps.Values(pending), func(a, b ChangeEvent) int {
				return cmp.Compare(a.Path, b.Path)
			})
			clear(pending)

			select {
			case d.output <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}
