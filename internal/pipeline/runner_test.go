package pipeline

import (
	"context"
	stderrors "errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/conneroisu/assetforge/internal/notify/mocks"
)

type recorder struct {
	mutex sync.Mutex
	calls []string
}

func (r *recorder) action(name string, err error) Action {
	return func(context.Context, Options) error {
		r.mutex.Lock()
		r.calls = append(r.calls, name)
		r.mutex.Unlock()
		return err
	}
}

func (r *recorder) list() []string {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]string(nil), r.calls...)
}

func newTestGraph(t *testing.T, tasks ...Task) *Graph {
	t.Helper()
	g := NewGraph()
	for _, task := range tasks {
		require.NoError(t, g.AddTask(task))
	}
	require.NoError(t, g.Validate())
	return g
}

func TestRunnerRunsSeriesInOrder(t *testing.T) {
	rec := &recorder{}
	g := newTestGraph(t,
		Task{Name: "styles", Action: rec.action("styles", nil)},
		Task{Name: "scripts", Action: rec.action("scripts", nil)},
		Task{Name: "templates", Action: rec.action("templates", nil)},
		Task{Name: "build", Dependencies: []string{"styles", "scripts", "templates"}},
	)

	results, err := NewRunner(g, Options{}, nil).Run(context.Background(), "build", "styles")
	require.NoError(t, err)
	assert.Equal(t, []string{"styles", "scripts", "templates"}, rec.list())
	require.Len(t, results, 4)
	for _, r := range results {
		assert.Equal(t, StatusSucceeded, r.Status, r.Task)
	}
}

func TestRunnerReportedErrorsContinue(t *testing.T) {
	rec := &recorder{}
	g := newTestGraph(t,
		Task{Name: "styles", Action: rec.action("styles", Reported(stderrors.New("bad scss")))},
		Task{Name: "scripts", Action: rec.action("scripts", nil)},
		Task{Name: "build", Dependencies: []string{"styles", "scripts"}},
	)

	results, err := NewRunner(g, Options{}, nil).Run(context.Background(), "build")
	require.NoError(t, err)
	assert.Equal(t, []string{"styles", "scripts"}, rec.list())
	assert.True(t, results.Reported())
	assert.False(t, results.Failed())

	styles, ok := results.Get("styles")
	require.True(t, ok)
	assert.Equal(t, StatusReported, styles.Status)
	assert.EqualError(t, styles.Err, "bad scss")
}

func TestRunnerFatalFailureStopsSeries(t *testing.T) {
	rec := &recorder{}
	cause := stderrors.New("parse error")
	g := newTestGraph(t,
		Task{Name: "styles", Action: rec.action("styles", nil)},
		Task{Name: "templates", Action: rec.action("templates", cause)},
		Task{Name: "static", Action: rec.action("static", nil)},
		Task{Name: "build", Dependencies: []string{"styles", "templates", "static"}},
	)

	results, err := NewRunner(g, Options{}, nil).Run(context.Background(), "build")
	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "templates", zerrMetadata(t, err)["task_name"])
	assert.Equal(t, []string{"styles", "templates"}, rec.list())

	static, _ := results.Get("static")
	assert.Equal(t, StatusSkipped, static.Status)
	build, _ := results.Get("build")
	assert.Equal(t, StatusSkipped, build.Status)
}

func TestRunnerKeepGoing(t *testing.T) {
	rec := &recorder{}
	g := newTestGraph(t,
		Task{Name: "templates", Action: rec.action("templates", stderrors.New("boom"))},
		Task{Name: "static", Action: rec.action("static", nil)},
		Task{Name: "serve", Dependencies: []string{"templates", "static"}, Action: rec.action("serve", nil)},
	)

	runner := NewRunner(g, Options{}, nil)
	runner.KeepGoing = true
	results, err := runner.Run(context.Background(), "serve")
	require.Error(t, err)
	assert.Equal(t, []string{"templates", "static", "serve"}, rec.list())
	assert.True(t, results.Failed())
}

func TestRunnerCancelledContextSkips(t *testing.T) {
	rec := &recorder{}
	g := newTestGraph(t, Task{Name: "styles", Action: rec.action("styles", nil)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := NewRunner(g, Options{}, nil).Run(ctx, "styles")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.list())
	assert.Equal(t, StatusSkipped, results[0].Status)
}

func TestRunnerPassesOptions(t *testing.T) {
	ctrl := gomock.NewController(t)
	reporter := mocks.NewMockReporter(ctrl)
	compileErr := stderrors.New("undefined variable")
	reporter.EXPECT().Report(gomock.Any(), compileErr).Times(1)

	g := newTestGraph(t, Task{Name: "styles", Action: func(ctx context.Context, opts Options) error {
		assert.True(t, opts.Production)
		opts.Report(ctx, compileErr)
		return Reported(compileErr)
	}})

	results, err := NewRunner(g, Options{Production: true, Reporter: reporter}, nil).Run(context.Background(), "styles")
	require.NoError(t, err)
	assert.Equal(t, StatusReported, results[0].Status)
}

func TestRunnerSerializesSameTask(t *testing.T) {
	var active, peak atomic.Int32
	g := newTestGraph(t, Task{Name: "scripts", Action: func(context.Context, Options) error {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return nil
	}})

	runner := NewRunner(g, Options{}, nil)
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = runner.Run(context.Background(), "scripts")
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), peak.Load())
}

func TestReported(t *testing.T) {
	assert.Nil(t, Reported(nil))
	assert.False(t, IsReported(stderrors.New("x")))
	assert.True(t, IsReported(Reported(stderrors.New("x"))))
	assert.Equal(t, "skipped", StatusSkipped.String())
}
