package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"

	"github.com/conneroisu/assetforge/internal/config"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/pipeline"
	"github.com/conneroisu/assetforge/internal/server"
	"github.com/conneroisu/assetforge/internal/watcher"
)

// State is where the serve loop currently is.
type State int

const (
	StateIdle State = iota
	StateInitialBuild
	StateServing
	StateWatching
	StateRebuilding
	StateStopped
)

// String returns the string representation of the State
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInitialBuild:
		return "initial-build"
	case StateServing:
		return "serving"
	case StateWatching:
		return "watching"
	case StateRebuilding:
		return "rebuilding"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ServeService builds everything, serves the output and rebuilds on
// change.
type ServeService struct {
	cfg    *config.Config
	logger logging.Logger
	out    io.Writer

	forge     *Forge
	runner    *pipeline.Runner
	hub       *server.Hub
	server    *server.Server
	scheduler *pipeline.Scheduler

	stateMutex sync.RWMutex
	state      State
	ready      chan struct{}
	readyOnce  sync.Once
}

// NewServeService creates the development server and the forge behind it.
func NewServeService(cfg *config.Config, logger logging.Logger, options ...Option) (*ServeService, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &ServeService{
		cfg:    cfg,
		logger: logger.WithComponent("serve"),
		out:    os.Stderr,
		ready:  make(chan struct{}),
	}

	s.hub = server.NewHub(server.HubConfig{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		AllowedOrigins: cfg.Server.AllowedOrigins,
		ReloadDelay:    cfg.Server.ReloadDelay,
		Notify:         cfg.Server.Notify,
	}, logger)
	s.server = server.New(server.Config{
		Host:  cfg.Server.Host,
		Port:  cfg.Server.Port,
		Roots: []string{cfg.Resolve(cfg.Paths.Intermediate), cfg.Resolve(cfg.Paths.Public)},
		Open:  cfg.Server.Open,
		Gzip:  cfg.Server.Gzip,
	}, s.hub, logger)

	options = append([]Option{WithLiveReload(s.hub), WithServe(s.watch)}, options...)
	forge, err := NewForge(cfg, logger, options...)
	if err != nil {
		return nil, err
	}
	s.forge = forge
	s.out = forge.out
	// One runner for the initial build and every watch trigger, so a task
	// never runs twice at once.
	s.runner = forge.Runner(true)
	s.scheduler = pipeline.NewScheduler(s.runner, logger)
	return s, nil
}

// Serve runs the initial build, then serves and watches until ctx is
// cancelled. Task failures are logged and never stop the loop.
func (s *ServeService) Serve(ctx context.Context) error {
	s.setState(ctx, StateInitialBuild)
	defer s.setState(ctx, StateStopped)

	// Failed prerequisites are logged by the runner as they happen and do
	// not keep the server from starting.
	results, _ := s.runner.Run(ctx, TaskServe)
	if result, ok := results.Get(TaskServe); ok && result.Status == pipeline.StatusFailed {
		return result.Err
	}
	return nil
}

// watch is the action of the serve task.
func (s *ServeService) watch(ctx context.Context, _ pipeline.Options) error {
	s.setState(ctx, StateServing)
	if err := s.server.Start(ctx); err != nil {
		return err
	}

	fw, err := watcher.NewFileWatcher(s.cfg.Watch.Debounce, s.logger)
	if err != nil {
		return err
	}
	defer fw.Stop()

	router, err := watcher.NewRouter(s.cfg.Root(), trigger{s}, s.logger, s.Bindings()...)
	if err != nil {
		return err
	}
	fw.AddHandler(router.Handle)
	if err := fw.AddRecursive(s.cfg.Resolve(s.cfg.Paths.Source)); err != nil {
		return err
	}
	if err := fw.Start(ctx); err != nil {
		return err
	}

	s.setState(ctx, StateWatching)
	s.readyOnce.Do(func() { close(s.ready) })

	<-ctx.Done()
	s.scheduler.Wait()

	select {
	case <-s.server.Done():
	case <-time.After(10 * time.Second):
		s.logger.Warn(ctx, nil, "server did not stop in time")
	}
	return nil
}

// Bindings maps source changes to the tasks that rebuild them.
func (s *ServeService) Bindings() []watcher.Binding {
	cfg := s.cfg
	scriptsDir := path.Dir(filepath.ToSlash(cfg.Scripts.Entry))

	return []watcher.Binding{
		{
			Patterns: append([]string{path.Join(filepath.ToSlash(cfg.Styles.SassDir), "**/*.{scss,sass,css}")}, cfg.Styles.Vendor...),
			Task:     TaskStyles,
			OnAll:    s.logFailure(TaskStyles),
		},
		{
			Patterns: []string{path.Join(scriptsDir, "**/*.{js,mjs,jsx,ts,tsx}")},
			Task:     TaskScriptsReloader,
			OnAll:    s.logFailure(TaskScriptsReloader),
		},
		{
			Patterns: append(append([]string{}, cfg.Templates.Sources...), path.Join(filepath.ToSlash(cfg.Templates.Partials), "**/*.hbs")),
			Task:     TaskTemplates,
			OnAll:    s.reloadAfter(TaskTemplates),
		},
		{
			Patterns: []string{cfg.StaticGlob()},
			Task:     TaskStatic,
			OnAll:    s.reloadAfter(TaskStatic),
			OnRemove: s.removeStatic,
		},
	}
}

func (s *ServeService) logFailure(task string) pipeline.Callback {
	return func(results pipeline.Results, err error) {
		ctx := context.Background()
		if err != nil {
			s.logger.Error(ctx, err, "task failed, still watching", "task", task)
		}
		s.rebuilt(ctx)
	}
}

func (s *ServeService) reloadAfter(task string) pipeline.Callback {
	return func(results pipeline.Results, err error) {
		ctx := context.Background()
		if err != nil {
			s.logger.Error(ctx, err, "task failed, still watching", "task", task)
		} else {
			s.hub.Reload(ctx)
		}
		s.rebuilt(ctx)
	}
}

func (s *ServeService) removeStatic(ctx context.Context, rel string) error {
	public, err := s.forge.RemoveStatic(s.cfg.Resolve(rel))
	if err != nil {
		return err
	}
	color.New(color.FgRed).Fprintf(s.out, "🗑️  deleting %s...\n", public)
	s.logger.Debug(ctx, "deleted public copy", "source", rel, "public", public)
	return nil
}

// trigger marks the loop as rebuilding before handing off to the
// scheduler.
type trigger struct{ s *ServeService }

func (t trigger) Trigger(ctx context.Context, name string, then pipeline.Callback) {
	t.s.setState(ctx, StateRebuilding)
	t.s.scheduler.Trigger(ctx, name, then)
}

// rebuilt returns to watching once the last in-flight run is done. It is
// called from inside the finishing run, so one run is still counted.
func (s *ServeService) rebuilt(ctx context.Context) {
	if s.scheduler.Active() <= 1 && s.State() == StateRebuilding {
		s.setState(ctx, StateWatching)
	}
}

func (s *ServeService) setState(ctx context.Context, state State) {
	s.stateMutex.Lock()
	previous := s.state
	s.state = state
	s.stateMutex.Unlock()
	if previous != state {
		s.logger.Debug(ctx, "state", "from", previous.String(), "to", state.String())
	}
}

// State returns the current state of the serve loop.
func (s *ServeService) State() State {
	s.stateMutex.RLock()
	defer s.stateMutex.RUnlock()
	return s.state
}

// Ready is closed once the initial build is done and files are watched.
func (s *ServeService) Ready() <-chan struct{} {
	return s.ready
}

// Addr returns the address the server listens on.
func (s *ServeService) Addr() string {
	return s.server.Addr()
}

// URL returns the development server's URL.
func (s *ServeService) URL() string {
	return fmt.Sprintf("http://%s", s.Addr())
}

// Forge returns the forge behind the server.
func (s *ServeService) Forge() *Forge {
	return s.forge
}

// Scheduler returns the scheduler running watch triggers.
func (s *ServeService) Scheduler() *pipeline.Scheduler {
	return s.scheduler
}

// Hub returns the live reload hub.
func (s *ServeService) Hub() *server.Hub {
	return s.hub
}
