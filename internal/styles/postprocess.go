package styles

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"

	"github.com/conneroisu/assetforge/internal/errors"
)

var engineNames = map[string]api.EngineName{
	"chrome":  api.EngineChrome,
	"edge":    api.EngineEdge,
	"firefox": api.EngineFirefox,
	"ie":      api.EngineIE,
	"ios":     api.EngineIOS,
	"opera":   api.EngineOpera,
	"safari":  api.EngineSafari,
}

var browserTarget = regexp.MustCompile(`^([a-z]+)(\d+(?:\.\d+)*)$`)

// Engines converts targets such as "chrome58" or "ios10.3" into esbuild
// engine targets.
func Engines(browsers []string) ([]api.Engine, error) {
	engines := make([]api.Engine, 0, len(browsers))
	for _, b := range browsers {
		m := browserTarget.FindStringSubmatch(strings.ToLower(strings.TrimSpace(b)))
		if m == nil {
			return nil, fmt.Errorf("invalid browser target %q", b)
		}
		name, ok := engineNames[m[1]]
		if !ok {
			return nil, fmt.Errorf("unknown browser %q", m[1])
		}
		engines = append(engines, api.Engine{Name: name, Version: m[2]})
	}
	return engines, nil
}

// PostProcessor prefixes and optionally minifies CSS with esbuild.
type PostProcessor struct {
	engines []api.Engine
}

// NewPostProcessor targets browsers.
func NewPostProcessor(browsers []string) (*PostProcessor, error) {
	engines, err := Engines(browsers)
	if err != nil {
		return nil, err
	}
	return &PostProcessor{engines: engines}, nil
}

// Prefix lowers css for the configured browsers, adding vendor prefixes.
func (p *PostProcessor) Prefix(file string, css []byte) ([]byte, error) {
	return p.transform(file, css, false)
}

// Minify prefixes and minifies css.
func (p *PostProcessor) Minify(file string, css []byte) ([]byte, error) {
	return p.transform(file, css, true)
}

func (p *PostProcessor) transform(file string, css []byte, minify bool) ([]byte, error) {
	result := api.Transform(string(css), api.TransformOptions{
		Loader:           api.LoaderCSS,
		Engines:          p.engines,
		Sourcefile:       file,
		MinifyWhitespace: minify,
		MinifySyntax:     minify,
		LogLevel:         api.LogLevelSilent,
	})
	if len(result.Errors) > 0 {
		return nil, messageError(errors.KindStyle, file, result.Errors[0])
	}
	return result.Code, nil
}

// messageError converts an esbuild message into a BuildError.
func messageError(kind errors.Kind, file string, msg api.Message) *errors.BuildError {
	buildErr := errors.NewBuildError(kind, file, msg.Text)
	if loc := msg.Location; loc != nil {
		if loc.File != "" && loc.File != "<stdin>" {
			buildErr.File = loc.File
		}
		column := loc.Column + 1
		buildErr.WithLocation(loc.Line, column).
			WithFrame(errors.NewLineFrame(loc.Line, column, loc.LineText))
	}
	return buildErr
}
