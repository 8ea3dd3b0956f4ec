// Package scripts bundles the browser entry script with esbuild.
package scripts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/pipeline"
)

// Config locates the entry and bundle. Paths are absolute.
type Config struct {
	Root   string
	Entry  string
	Public string
	Output string
	Target string
}

// Task is the scripts task.
type Task struct {
	cfg    Config
	target api.Target
	logger logging.Logger
}

var targets = map[string]api.Target{
	"es5":    api.ES5,
	"es2015": api.ES2015,
	"es2016": api.ES2016,
	"es2017": api.ES2017,
	"es2018": api.ES2018,
	"es2019": api.ES2019,
	"es2020": api.ES2020,
	"es2021": api.ES2021,
	"es2022": api.ES2022,
	"esnext": api.ESNext,
}

// ParseTarget maps a language level such as "es2015" to an esbuild target.
func ParseTarget(name string) (api.Target, error) {
	if name == "" {
		return api.ES2015, nil
	}
	t, ok := targets[strings.ToLower(name)]
	if !ok {
		return api.DefaultTarget, fmt.Errorf("unknown script target %q", name)
	}
	return t, nil
}

// NewTask creates the scripts task.
func NewTask(cfg Config, logger logging.Logger) (*Task, error) {
	target, err := ParseTarget(cfg.Target)
	if err != nil {
		return nil, err
	}
	if cfg.Output == "" {
		cfg.Output = "app.js"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Task{cfg: cfg, target: target, logger: logger.WithComponent("scripts")}, nil
}

// OutputPath is where the bundle is written.
func (t *Task) OutputPath() string {
	return filepath.Join(t.cfg.Public, "js", t.cfg.Output)
}

// Run bundles the entry. Bundle errors are reported and nothing is written.
func (t *Task) Run(ctx context.Context, opts pipeline.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := api.Build(t.buildOptions(opts.Production))
	if len(result.Errors) > 0 {
		buildErr := messageError(t.cfg.Root, t.cfg.Entry, result.Errors[0])
		opts.Report(ctx, buildErr)
		return pipeline.Reported(buildErr)
	}
	for _, w := range result.Warnings {
		t.logger.Debug(ctx, "esbuild warning", "message", w.Text)
	}

	out := t.OutputPath()
	for _, file := range result.OutputFiles {
		if file.Path != out {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(out), err)
		}
		if err := os.WriteFile(out, file.Contents, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", out, err)
		}
		t.logger.Info(ctx, fmt.Sprintf("%s %s", t.cfg.Output, humanize.Bytes(uint64(len(file.Contents)))), "output", out)
		return nil
	}
	return fmt.Errorf("esbuild produced no output for %s", out)
}

func (t *Task) buildOptions(production bool) api.BuildOptions {
	opts := api.BuildOptions{
		EntryPoints:   []string{t.cfg.Entry},
		Outfile:       t.OutputPath(),
		AbsWorkingDir: t.cfg.Root,
		Bundle:        true,
		Write:         false,
		Format:        api.FormatIIFE,
		Platform:      api.PlatformBrowser,
		Target:        t.target,
		LogLevel:      api.LogLevelSilent,
	}
	if production {
		opts.MinifyWhitespace = true
		opts.MinifyIdentifiers = true
		opts.MinifySyntax = true
		opts.Sourcemap = api.SourceMapNone
	} else {
		opts.Sourcemap = api.SourceMapInline
	}
	return opts
}

func messageError(root, entry string, msg api.Message) *errors.BuildError {
	file := entry
	if loc := msg.Location; loc != nil && loc.File != "" {
		file = loc.File
		if !filepath.IsAbs(file) {
			file = filepath.Join(root, file)
		}
	}

	buildErr := errors.NewBuildError(errors.KindScript, file, msg.Text)
	if loc := msg.Location; loc != nil {
		column := loc.Column + 1
		frame := errors.NewLineFrame(loc.Line, column, loc.LineText)
		if source, err := os.ReadFile(file); err == nil {
			if full := errors.NewCodeFrame(source, loc.Line, column, errors.DefaultFrameRadius); full != nil {
				frame = full
			}
		}
		buildErr.WithLocation(loc.Line, column).WithFrame(frame)
	}
	return buildErr
}
