// Package styles compiles vendor CSS and Sass entries, prefixes them for
// the configured browsers and writes intermediate and public copies.
package styles

import (
	"context"
	stderrors "errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/conneroisu/assetforge/internal/changed"
	"github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/fileset"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/pipeline"
)

// Streamer pushes stylesheet updates to connected browsers.
type Streamer interface {
	InjectCSS(ctx context.Context, paths []string)
}

// Config locates the stylesheet inputs and outputs. Paths are absolute.
type Config struct {
	Root         string
	Vendor       []string
	Sources      []string
	SassDir      string
	LoadPaths    []string
	Intermediate string
	Public       string
	Browsers     []string
}

// Task is the styles task.
type Task struct {
	cfg      Config
	compiler Compiler
	post     *PostProcessor
	tracker  *changed.Tracker
	streamer Streamer
	logger   logging.Logger
}

// NewTask creates the styles task. streamer may be nil.
func NewTask(cfg Config, compiler Compiler, tracker *changed.Tracker, streamer Streamer, logger logging.Logger) (*Task, error) {
	post, err := NewPostProcessor(cfg.Browsers)
	if err != nil {
		return nil, err
	}
	if tracker == nil {
		tracker = changed.New()
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Task{
		cfg:      cfg,
		compiler: compiler,
		post:     post,
		tracker:  tracker,
		streamer: streamer,
		logger:   logger.WithComponent("styles"),
	}, nil
}

// SetStreamer replaces the live reload target.
func (t *Task) SetStreamer(s Streamer) {
	t.streamer = s
}

// Outputs returns the intermediate and public paths for an input relative
// to its glob base.
func (t *Task) Outputs(rel string) (intermediate, public string) {
	css := fileset.ReplaceExt(rel, ".css")
	return filepath.Join(t.cfg.Intermediate, css), filepath.Join(t.cfg.Public, "css", css)
}

// Run builds every vendor and source stylesheet. Inputs that fail to
// compile are reported and skipped; the others are still written.
func (t *Task) Run(ctx context.Context, opts pipeline.Options) error {
	tree, err := changed.HashTree(append([]string{t.cfg.SassDir}, t.cfg.LoadPaths...)...)
	if err != nil {
		return err
	}

	files, err := fileset.Glob(t.cfg.Root, append(append([]string{}, t.cfg.Vendor...), t.cfg.Sources...)...)
	if err != nil {
		return err
	}

	var (
		reported []error
		updated  []string
	)
	claimed := make(map[string]string)
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if isPartial(file.Path) {
			continue
		}

		// Later inputs win, so an input writing over an earlier one is
		// always rebuilt.
		_, out := t.Outputs(file.Rel)
		earlier, clash := claimed[out]
		if clash {
			t.logger.Warn(ctx, nil, "stylesheet output written twice",
				"output", out, "first", earlier, "second", file.Path)
		}
		claimed[out] = file.Path

		public, err := t.build(ctx, opts, file, tree, clash)
		if err != nil {
			var buildErr *errors.BuildError
			if !stderrors.As(err, &buildErr) {
				return err
			}
			opts.Report(ctx, buildErr)
			reported = append(reported, buildErr)
			t.tracker.Forget(file.Path)
			continue
		}
		if public != "" {
			updated = append(updated, public)
		}
	}

	if err := t.tracker.Save(); err != nil {
		t.logger.Warn(ctx, err, "could not save change manifest")
	}

	if len(updated) > 0 && t.streamer != nil {
		t.streamer.InjectCSS(ctx, updated)
	}

	if len(reported) > 0 {
		return pipeline.Reported(stderrors.Join(reported...))
	}
	return nil
}

// build compiles one input and returns its public URL path, or "" when
// the input was unchanged.
func (t *Task) build(ctx context.Context, opts pipeline.Options, file fileset.File, tree uint64, force bool) (string, error) {
	source, err := os.ReadFile(file.Path)
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", file.Path, err)
	}

	intermediate, public := t.Outputs(file.Rel)
	sass := isSass(file.Path)
	parts := [][]byte{source, changed.Bool(opts.Production)}
	if sass {
		// Entries depend on every partial and load path they may import.
		parts = append(parts, changed.Uint64(tree))
	}
	fp := changed.Fingerprint(parts...)
	if !force && t.tracker.Fresh(file.Path, fp) {
		t.logger.Debug(ctx, "unchanged", "file", file.Rel)
		return "", nil
	}

	css := source
	if sass {
		css, err = t.compiler.Compile(ctx, Request{
			Path:       file.Path,
			Source:     source,
			LoadPaths:  t.cfg.LoadPaths,
			Production: opts.Production,
		})
		if err != nil {
			return "", err
		}
	}

	prefixed, err := t.post.Prefix(file.Path, css)
	if err != nil {
		return "", err
	}
	final := prefixed
	if opts.Production {
		if final, err = t.post.Minify(file.Path, prefixed); err != nil {
			return "", err
		}
	}

	if err := writeFile(intermediate, prefixed); err != nil {
		return "", err
	}
	if err := writeFile(public, final); err != nil {
		return "", err
	}
	t.tracker.Record(file.Path, fp, intermediate, public)

	t.logger.Info(ctx, fmt.Sprintf("%s %s", filepath.ToSlash(fileset.ReplaceExt(file.Rel, ".css")), humanize.Bytes(uint64(len(final)))),
		"output", public,
	)
	return path.Join("/css", filepath.ToSlash(fileset.ReplaceExt(file.Rel, ".css"))), nil
}

// isPartial reports whether name is a Sass partial, which is only ever
// compiled through the entries that load it.
func isPartial(name string) bool {
	return isSass(name) && strings.HasPrefix(filepath.Base(name), "_")
}

func isSass(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".scss" || ext == ".sass"
}

func writeFile(name string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(name), err)
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
