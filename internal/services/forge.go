// Package services wires the build tasks into a task graph and runs it,
// either once (build) or continuously behind the development server
// (serve).
package services

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/conneroisu/assetforge/internal/changed"
	"github.com/conneroisu/assetforge/internal/config"
	"github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/fileset"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/notify"
	"github.com/conneroisu/assetforge/internal/pipeline"
	"github.com/conneroisu/assetforge/internal/scripts"
	"github.com/conneroisu/assetforge/internal/static"
	"github.com/conneroisu/assetforge/internal/styles"
	"github.com/conneroisu/assetforge/internal/templates"
)

// Task names.
const (
	TaskStyles          = "styles"
	TaskScripts         = "scripts"
	TaskScriptsReloader = "scripts-reloader"
	TaskTemplates       = "templates"
	TaskStatic          = "static"
	TaskBuild           = "build"
	TaskServe           = "serve"
	TaskClean           = "clean"
)

// assetTasks is the initial sequence shared by build and serve.
var assetTasks = []string{TaskStyles, TaskScripts, TaskTemplates, TaskStatic}

// LiveReload is the browser side of the development server.
type LiveReload interface {
	styles.Streamer
	notify.Reporter
	Reload(ctx context.Context)
	ClearErrors(ctx context.Context, kind errors.Kind, keep ...string)
}

// Option customises a Forge.
type Option func(*Forge)

// WithLiveReload sends CSS updates, reloads and the error overlay to lr.
func WithLiveReload(lr LiveReload) Option {
	return func(f *Forge) { f.live = lr }
}

// WithServe sets the action of the serve task.
func WithServe(action pipeline.Action) Option {
	return func(f *Forge) { f.serve = action }
}

// WithCompiler replaces the sass CLI.
func WithCompiler(c styles.Compiler) Option {
	return func(f *Forge) { f.compiler = c }
}

// WithReporters adds reporters next to the console and exit code ones.
func WithReporters(reporters ...notify.Reporter) Option {
	return func(f *Forge) { f.reporters = append(f.reporters, reporters...) }
}

// WithOutput sets where console reports go.
func WithOutput(w io.Writer) Option {
	return func(f *Forge) { f.out = w }
}

// Forge owns the configured tasks and the graph connecting them.
type Forge struct {
	cfg    *config.Config
	logger logging.Logger
	out    io.Writer

	compiler  styles.Compiler
	reporters []notify.Reporter
	live      LiveReload
	serve     pipeline.Action

	tracker   *changed.Tracker
	styles    *styles.Task
	scripts   *scripts.Task
	templates *templates.Task
	static    *static.Task

	graph    *pipeline.Graph
	exitCode *notify.ExitCode
	opts     pipeline.Options
}

// NewForge creates the tasks described by cfg and validates their graph.
func NewForge(cfg *config.Config, logger logging.Logger, options ...Option) (*Forge, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	f := &Forge{
		cfg:      cfg,
		logger:   logger,
		out:      os.Stderr,
		exitCode: &notify.ExitCode{},
	}
	for _, option := range options {
		option(f)
	}
	if f.compiler == nil {
		f.compiler = styles.NewSassCompiler(cfg.Styles.Compiler, cfg.Root())
	}

	if err := f.createTasks(); err != nil {
		return nil, err
	}

	reporters := notify.Multi{notify.NewConsoleReporter(f.out), f.exitCode}
	if f.live != nil {
		reporters = append(reporters, f.live)
	}
	reporters = append(reporters, f.reporters...)
	f.opts = pipeline.Options{
		Production: cfg.Build.Production,
		Reporter:   reporters,
	}

	graph, err := f.buildGraph()
	if err != nil {
		return nil, err
	}
	f.graph = graph
	return f, nil
}

func (f *Forge) createTasks() error {
	cfg := f.cfg

	f.tracker = changed.Open(cfg.Resolve(cfg.Build.Manifest))

	loadPaths := make([]string, 0, len(cfg.Styles.LoadPaths))
	for _, p := range cfg.Styles.LoadPaths {
		loadPaths = append(loadPaths, cfg.Resolve(p))
	}
	var streamer styles.Streamer
	if f.live != nil {
		streamer = f.live
	}
	stylesTask, err := styles.NewTask(styles.Config{
		Root:         cfg.Root(),
		Vendor:       cfg.Styles.Vendor,
		Sources:      cfg.Styles.Sources,
		SassDir:      cfg.Resolve(cfg.Styles.SassDir),
		LoadPaths:    loadPaths,
		Intermediate: cfg.Resolve(cfg.Paths.Intermediate),
		Public:       cfg.Resolve(cfg.Paths.Public),
		Browsers:     cfg.Styles.Browsers,
	}, f.compiler, f.tracker, streamer, f.logger)
	if err != nil {
		return fmt.Errorf("configuring styles: %w", err)
	}
	f.styles = stylesTask

	scriptsTask, err := scripts.NewTask(scripts.Config{
		Root:   cfg.Root(),
		Entry:  cfg.Resolve(cfg.Scripts.Entry),
		Public: cfg.Resolve(cfg.Paths.Public),
		Output: cfg.Scripts.Output,
		Target: cfg.Scripts.Target,
	}, f.logger)
	if err != nil {
		return fmt.Errorf("configuring scripts: %w", err)
	}
	f.scripts = scriptsTask

	data, err := cfg.TemplateData()
	if err != nil {
		return fmt.Errorf("configuring templates: %w", err)
	}
	f.templates = templates.NewTask(templates.Config{
		Root:      cfg.Root(),
		Sources:   cfg.Templates.Sources,
		Partials:  cfg.Resolve(cfg.Templates.Partials),
		Public:    cfg.Resolve(cfg.Paths.Public),
		Extension: cfg.Templates.Extension,
		Data:      data,
	}, f.logger)

	f.static = static.NewTask(static.Config{
		Source:      cfg.Resolve(cfg.Paths.Source),
		Public:      cfg.Resolve(cfg.Paths.Public),
		Extensions:  cfg.Static.Extensions,
		Parallelism: cfg.Static.Parallelism,
	}, f.logger)
	return nil
}

func (f *Forge) buildGraph() (*pipeline.Graph, error) {
	tasks := []pipeline.Task{
		{
			Name:        TaskStyles,
			Description: "Compile vendor CSS and Sass, prefix and write CSS",
			Action:      f.clearing(errors.KindStyle, f.styles.Run),
		},
		{
			Name:        TaskScripts,
			Description: "Bundle the entry script",
			Action:      f.clearing(errors.KindScript, f.scripts.Run),
		},
		{
			Name:         TaskScriptsReloader,
			Description:  "Bundle scripts, then reload browsers",
			Dependencies: []string{TaskScripts},
			Action:       f.reload,
		},
		{
			Name:        TaskTemplates,
			Description: "Render Handlebars pages",
			Action:      f.templates.Run,
		},
		{
			Name:        TaskStatic,
			Description: "Copy passthrough assets",
			Action:      f.static.Run,
		},
		{
			Name:         TaskBuild,
			Description:  "Build every asset once",
			Dependencies: assetTasks,
		},
		{
			Name:         TaskServe,
			Description:  "Build, serve and rebuild on change",
			Dependencies: assetTasks,
			Action:       f.serveAction,
		},
		{
			Name:        TaskClean,
			Description: "Remove the intermediate and public directories",
			Action:      f.clean,
		},
	}

	graph := pipeline.NewGraph()
	for _, task := range tasks {
		if err := graph.AddTask(task); err != nil {
			return nil, err
		}
	}
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	return graph, nil
}

// clearing drops the overlay errors of kind that the last run of the task
// did not report again. A fatal failure leaves the overlay untouched.
func (f *Forge) clearing(kind errors.Kind, run pipeline.Action) pipeline.Action {
	return func(ctx context.Context, opts pipeline.Options) error {
		if f.live == nil {
			return run(ctx, opts)
		}

		var (
			mutex  sync.Mutex
			failed []string
		)
		opts.Reporter = notify.Multi{opts.Reporter, notify.ReporterFunc(func(_ context.Context, err error) {
			var buildErr *errors.BuildError
			if stderrors.As(err, &buildErr) && buildErr.Kind == kind {
				mutex.Lock()
				failed = append(failed, buildErr.File)
				mutex.Unlock()
			}
		})}

		err := run(ctx, opts)
		if err == nil || pipeline.IsReported(err) {
			f.live.ClearErrors(ctx, kind, failed...)
		}
		return err
	}
}

func (f *Forge) reload(ctx context.Context, _ pipeline.Options) error {
	if f.live != nil {
		f.live.Reload(ctx)
	}
	return nil
}

func (f *Forge) serveAction(ctx context.Context, opts pipeline.Options) error {
	if f.serve == nil {
		return fmt.Errorf("the %s task needs the development server", TaskServe)
	}
	return f.serve(ctx, opts)
}

func (f *Forge) clean(ctx context.Context, _ pipeline.Options) error {
	root := f.cfg.Root()
	for _, dir := range []string{f.cfg.Paths.Intermediate, f.cfg.Paths.Public} {
		target := f.cfg.Resolve(dir)
		if target == root || !fileset.Under(root, target) {
			return fmt.Errorf("refusing to remove %s outside the project", target)
		}
		if err := os.RemoveAll(target); err != nil {
			return fmt.Errorf("removing %s: %w", target, err)
		}
		f.logger.Info(ctx, "removed", "dir", filepath.ToSlash(dir))
	}
	return nil
}

// Graph returns the validated task graph.
func (f *Forge) Graph() *pipeline.Graph {
	return f.graph
}

// Options returns the options every task receives.
func (f *Forge) Options() pipeline.Options {
	return f.opts
}

// ExitCode is non-zero once any compile error was reported.
func (f *Forge) ExitCode() int {
	return f.exitCode.Code()
}

// Config returns the configuration the tasks were created from.
func (f *Forge) Config() *config.Config {
	return f.cfg
}

// Runner creates a runner over the graph.
func (f *Forge) Runner(keepGoing bool) *pipeline.Runner {
	runner := pipeline.NewRunner(f.graph, f.opts, f.logger)
	runner.KeepGoing = keepGoing
	return runner
}

// RemoveStatic deletes the public copy of a deleted passthrough asset.
func (f *Forge) RemoveStatic(source string) (string, error) {
	return f.static.Remove(source)
}
