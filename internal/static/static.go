// Package static copies passthrough assets such as images and fonts from
// the source tree into the public directory.
package static

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/conneroisu/assetforge/internal/fileset"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/pipeline"
)

// DefaultParallelism bounds concurrent copies when none is configured.
const DefaultParallelism = 8

// Config locates the static assets. Paths are absolute.
type Config struct {
	Source      string
	Public      string
	Extensions  []string
	Parallelism int
}

// Task is the static task.
type Task struct {
	cfg    Config
	logger logging.Logger
}

// NewTask creates the static task.
func NewTask(cfg Config, logger logging.Logger) *Task {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Task{cfg: cfg, logger: logger.WithComponent("static")}
}

// Pattern is the glob, relative to the source directory, that selects
// static assets.
func Pattern(extensions []string) string {
	if len(extensions) == 1 {
		return "**/*." + extensions[0]
	}
	return "**/*.{" + strings.Join(extensions, ",") + "}"
}

// Run copies every matching asset.
func (t *Task) Run(ctx context.Context, _ pipeline.Options) error {
	if len(t.cfg.Extensions) == 0 {
		return nil
	}
	files, err := fileset.Glob(t.cfg.Source, Pattern(t.cfg.Extensions))
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(t.cfg.Parallelism)
	for _, file := range files {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return copyFile(file.Path, filepath.Join(t.cfg.Public, file.Rel))
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	t.logger.Debug(ctx, "copied static assets", "count", len(files))
	return nil
}

// Remove deletes the public copy of the source file at path. It returns
// the removed public path.
func (t *Task) Remove(path string) (string, error) {
	rel, err := filepath.Rel(t.cfg.Source, path)
	if err != nil || rel == "." || !fileset.Under(t.cfg.Source, path) {
		return "", fmt.Errorf("%s is outside %s", path, t.cfg.Source)
	}
	target := filepath.Join(t.cfg.Public, rel)
	if err := os.RemoveAll(target); err != nil {
		return "", fmt.Errorf("deleting %s: %w", target, err)
	}
	return target, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("creating %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copying %s: %w", src, err)
	}
	return out.Close()
}
