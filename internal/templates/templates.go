// Package templates renders Handlebars pages with shared partials into the
// public directory.
package templates

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aymerick/raymond"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/conneroisu/assetforge/internal/fileset"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/pipeline"
)

// Config locates the templates. Paths are absolute except Sources, which
// are globs relative to Root.
type Config struct {
	Root      string
	Sources   []string
	Partials  string
	Public    string
	Extension string
	Data      map[string]any
}

// Task is the templates task.
type Task struct {
	cfg      Config
	markdown goldmark.Markdown
	logger   logging.Logger
}

// NewTask creates the templates task.
func NewTask(cfg Config, logger logging.Logger) *Task {
	if cfg.Extension == "" {
		cfg.Extension = ".html"
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Task{
		cfg:      cfg,
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:   logger.WithComponent("templates"),
	}
}

// Partials loads every partial keyed by its slash separated path relative
// to the partials directory, without extension.
func (t *Task) Partials() (map[string]string, error) {
	files, err := fileset.Glob(t.cfg.Partials, "**/*.hbs")
	if err != nil {
		return nil, err
	}
	partials := make(map[string]string, len(files))
	for _, f := range files {
		source, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("reading partial %s: %w", f.Path, err)
		}
		partials[filepath.ToSlash(fileset.ReplaceExt(f.Rel, ""))] = string(source)
	}
	return partials, nil
}

// Pages returns the templates that produce output, which excludes
// everything under the partials directory.
func (t *Task) Pages() ([]fileset.File, error) {
	files, err := fileset.Glob(t.cfg.Root, t.cfg.Sources...)
	if err != nil {
		return nil, err
	}
	pages := files[:0]
	for _, f := range files {
		if !fileset.Under(t.cfg.Partials, f.Path) {
			pages = append(pages, f)
		}
	}
	return pages, nil
}

// OutputPath maps a page relative to its glob base to its public path.
func (t *Task) OutputPath(rel string) string {
	return filepath.Join(t.cfg.Public, fileset.ReplaceExt(rel, t.cfg.Extension))
}

// Run renders every page. The first parse or render error fails the run.
func (t *Task) Run(ctx context.Context, _ pipeline.Options) error {
	partials, err := t.Partials()
	if err != nil {
		return err
	}
	pages, err := t.Pages()
	if err != nil {
		return err
	}

	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.render(ctx, page, partials); err != nil {
			return err
		}
	}
	return nil
}

func (t *Task) render(ctx context.Context, page fileset.File, partials map[string]string) error {
	source, err := os.ReadFile(page.Path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", page.Path, err)
	}

	tpl, err := raymond.Parse(string(source))
	if err != nil {
		return fmt.Errorf("parsing %s: %w", page.Path, err)
	}
	tpl.RegisterPartials(partials)
	tpl.RegisterHelper("markdown", t.markdownHelper)

	html, err := tpl.Exec(t.cfg.Data)
	if err != nil {
		return fmt.Errorf("rendering %s: %w", page.Path, err)
	}

	out := t.OutputPath(page.Rel)
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(out), err)
	}
	if err := os.WriteFile(out, []byte(html), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	t.logger.Debug(ctx, "rendered", "page", page.Rel, "output", out)
	return nil
}

// markdownHelper renders its block body as Markdown.
func (t *Task) markdownHelper(options *raymond.Options) raymond.SafeString {
	var buf bytes.Buffer
	body := dedent(options.Fn())
	if err := t.markdown.Convert([]byte(body), &buf); err != nil {
		panic(fmt.Errorf("markdown: %w", err))
	}
	return raymond.SafeString(buf.String())
}

// dedent strips the indentation shared by every non-blank line so indented
// blocks are not read as code.
func dedent(s string) string {
	lines := strings.Split(s, "\n")
	prefix := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if prefix < 0 || n < prefix {
			prefix = n
		}
	}
	if prefix <= 0 {
		return s
	}
	for i, line := range lines {
		if len(line) >= prefix {
			lines[i] = line[prefix:]
		} else {
			lines[i] = strings.TrimLeft(line, " \t")
		}
	}
	return strings.Join(lines, "\n")
}
