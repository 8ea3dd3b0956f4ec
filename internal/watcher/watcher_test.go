package watcher

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetforge/internal/pipeline"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestFilters(t *testing.T) {
	assert.False(t, NoGitFilter("/p/.git/HEAD"))
	assert.True(t, NoGitFilter("/p/src/.gitkeep"))
	assert.False(t, NoNodeModulesFilter("/p/node_modules/x/index.js"))
	assert.True(t, NoNodeModulesFilter("/p/src/js/app.js"))
}

func TestDebouncerBatchesAndDedupes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDebouncer(20 * time.Millisecond)
	go d.Run(ctx)

	d.Add(ctx, ChangeEvent{Type: EventTypeCreated, Path: "b.scss"})
	d.Add(ctx, ChangeEvent{Type: EventTypeModified, Path: "a.scss"})
	d.Add(ctx, ChangeEvent{Type: EventTypeDeleted, Path: "b.scss"})

	select {
	case batch := <-d.Output():
		require.Len(t, batch, 2)
		assert.Equal(t, "a.scss", batch[0].Path)
		assert.Equal(t, "b.scss", batch[1].Path)
		assert.Equal(t, EventTypeDeleted, batch[1].Type, "latest event wins")
	case <-time.After(2 * time.Second):
		t.Fatal("no batch")
	}
}

func TestDebouncerKeepsEventsWhileBlocked(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDebouncer(5 * time.Millisecond)
	go d.Run(ctx)

	d.Add(ctx, ChangeEvent{Path: "one.js"})
	// Nobody reads the first batch yet; later events must still arrive.
	time.Sleep(30 * time.Millisecond)
	d.Add(ctx, ChangeEvent{Path: "two.js"})

	var seen []string
	deadline := time.After(2 * time.Second)
	for len(seen) < 2 {
		select {
		case batch := <-d.Output():
			for _, e := range batch {
				seen = append(seen, e.Path)
			}
		case <-deadline:
			t.Fatalf("only saw %v", seen)
		}
	}
	assert.Equal(t, []string{"one.js", "two.js"}, seen)
}

type recordingTrigger struct {
	mutex sync.Mutex
	tasks []string
}

func (r *recordingTrigger) Trigger(_ context.Context, name string, then pipeline.Callback) {
	r.mutex.Lock()
	r.tasks = append(r.tasks, name)
	r.mutex.Unlock()
	if then != nil {
		then(nil, nil)
	}
}

func (r *recordingTrigger) Tasks() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return slices.Clone(r.tasks)
}

func TestRouterDispatch(t *testing.T) {
	root := t.TempDir()
	trigger := &recordingTrigger{}

	var (
		removed []string
		after   int
	)
	router, err := NewRouter(root, trigger, nil,
		Binding{Patterns: []string{"sass/**/*.{scss,css}"}, Task: "styles"},
		Binding{Patterns: []string{"js/**/*.js"}, Task: "scripts-reloader", OnAll: func(pipeline.Results, error) { after++ }},
		Binding{
			Patterns: []string{"**/*.png", "!vendor/**"},
			Task:     "static",
			OnRemove: func(_ context.Context, rel string) error {
				removed = append(removed, rel)
				return nil
			},
		},
	)
	require.NoError(t, err)

	err = router.Handle(context.Background(), []ChangeEvent{
		{Type: EventTypeModified, Path: filepath.Join(root, "js", "a.js")},
		{Type: EventTypeModified, Path: filepath.Join(root, "js", "lib", "b.js")},
		{Type: EventTypeDeleted, Path: filepath.Join(root, "img", "logo.png")},
		{Type: EventTypeDeleted, Path: filepath.Join(root, "vendor", "x.png")},
		{Type: EventTypeModified, Path: filepath.Join(filepath.Dir(root), "outside.scss")},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"scripts-reloader", "static"}, trigger.Tasks(), "one trigger per binding per batch")
	assert.Equal(t, 1, after)
	assert.Equal(t, []string{"img/logo.png"}, removed)
}

func TestRouterCollectsRemoveErrors(t *testing.T) {
	root := t.TempDir()
	trigger := &recordingTrigger{}
	router, err := NewRouter(root, trigger, nil, Binding{
		Patterns: []string{"**/*.svg"},
		Task:     "static",
		OnRemove: func(context.Context, string) error { return assert.AnError },
	})
	require.NoError(t, err)

	err = router.Handle(context.Background(), []ChangeEvent{{Type: EventTypeRenamed, Path: filepath.Join(root, "a.svg")}})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []string{"static"}, trigger.Tasks(), "the task still runs")
}

func TestNewRouterValidation(t *testing.T) {
	_, err := NewRouter("/", &recordingTrigger{}, nil, Binding{Patterns: []string{"**/*.js"}})
	assert.Error(t, err)
	_, err = NewRouter("/", &recordingTrigger{}, nil, Binding{Task: "scripts"})
	assert.Error(t, err)
	_, err = NewRouter("/", &recordingTrigger{}, nil, Binding{Patterns: []string{"[unclosed"}, Task: "scripts"})
	assert.Error(t, err)
}

func waitForBatch(t *testing.T, batches <-chan []ChangeEvent, want func(ChangeEvent) bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case batch := <-batches:
			if slices.ContainsFunc(batch, want) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for change event")
		}
	}
}

func TestFileWatcherEndToEnd(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sass"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0o755))

	fw, err := NewFileWatcher(20*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	batches := make(chan []ChangeEvent, 16)
	fw.AddHandler(func(_ context.Context, events []ChangeEvent) error {
		batches <- events
		return nil
	})
	require.NoError(t, fw.AddRecursive(root))
	require.NoError(t, fw.AddRecursive(filepath.Join(root, "missing")))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	file := filepath.Join(root, "sass", "main.scss")
	require.NoError(t, os.WriteFile(file, []byte(".a{}"), 0o644))
	waitForBatch(t, batches, func(e ChangeEvent) bool { return e.Path == file })

	nested := filepath.Join(root, "js", "lib")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	time.Sleep(50 * time.Millisecond)
	inner := filepath.Join(nested, "x.js")
	require.NoError(t, os.WriteFile(inner, []byte("1"), 0o644))
	waitForBatch(t, batches, func(e ChangeEvent) bool { return e.Path == inner })

	require.NoError(t, os.Remove(file))
	waitForBatch(t, batches, func(e ChangeEvent) bool { return e.Path == file && e.Removed() })
}
