package styles

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/conneroisu/assetforge/internal/errors"
)

// Request is one stylesheet to compile.
type Request struct {
	// Path is the entry file. Its directory is always a load path.
	Path       string
	Source     []byte
	LoadPaths  []string
	Production bool
}

// Compiler turns a Sass entry into CSS. Compile failures are returned as
// *errors.BuildError; any other error means the compiler could not run.
type Compiler interface {
	Compile(ctx context.Context, req Request) ([]byte, error)
}

// CompilerFunc adapts a function to Compiler.
type CompilerFunc func(ctx context.Context, req Request) ([]byte, error)

// Compile calls f.
func (f CompilerFunc) Compile(ctx context.Context, req Request) ([]byte, error) {
	return f(ctx, req)
}

// SassCompiler runs the dart-sass command line compiler.
type SassCompiler struct {
	Binary string
	Dir    string
}

// NewSassCompiler runs binary from dir. An empty binary means "sass".
func NewSassCompiler(binary, dir string) *SassCompiler {
	if binary == "" {
		binary = "sass"
	}
	return &SassCompiler{Binary: binary, Dir: dir}
}

// productionPrelude is prepended to every entry. It occupies exactly one
// line, which is subtracted from reported positions.
func productionPrelude(production bool) []byte {
	return []byte(fmt.Sprintf("$production: %t;\n", production))
}

// Compile feeds the entry to sass on stdin.
func (s *SassCompiler) Compile(ctx context.Context, req Request) ([]byte, error) {
	args := []string{
		"--stdin",
		"--no-source-map",
		"--style=expanded",
		"--load-path=" + filepath.Dir(req.Path),
	}
	for _, lp := range req.LoadPaths {
		args = append(args, "--load-path="+lp)
	}

	cmd := exec.CommandContext(ctx, s.Binary, args...)
	cmd.Dir = s.Dir
	cmd.Stdin = bytes.NewReader(append(productionPrelude(req.Production), req.Source...))

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, parseSassError(req, s.Dir, stderr.String(), err)
	}
	return stdout.Bytes(), nil
}

var sassLocation = regexp.MustCompile(`^\s+(\S+)\s+(\d+):(\d+)\s+`)

// parseSassError converts sass stderr into a BuildError pointing at the
// file and position sass blamed.
func parseSassError(req Request, dir, stderr string, cause error) *errors.BuildError {
	message := ""
	file := req.Path
	line, column := 0, 0

	for _, raw := range strings.Split(stderr, "\n") {
		text := strings.TrimRight(raw, "\r")
		if message == "" {
			if msg, ok := strings.CutPrefix(text, "Error: "); ok {
				message = strings.TrimSpace(msg)
				continue
			}
		}
		if line == 0 {
			if m := sassLocation.FindStringSubmatch(text); m != nil {
				line, _ = strconv.Atoi(m[2])
				column, _ = strconv.Atoi(m[3])
				if m[1] != "-" && m[1] != "stdin" {
					file = m[1]
					if !filepath.IsAbs(file) && dir != "" {
						file = filepath.Join(dir, file)
					}
				}
			}
		}
	}

	if message == "" {
		message = strings.TrimSpace(stderr)
		if message == "" {
			message = cause.Error()
		}
	}

	var source []byte
	if file == req.Path {
		// The prelude line only exists in the stdin copy.
		if line > 1 {
			line--
		}
		source = req.Source
	} else if data, err := os.ReadFile(file); err == nil {
		source = data
	}

	buildErr := errors.NewBuildError(errors.KindStyle, file, message).WithCause(cause)
	if line > 0 {
		buildErr.WithLocation(line, column).
			WithFrame(errors.NewCodeFrame(source, line, column, errors.DefaultFrameRadius))
	}
	return buildErr
}
