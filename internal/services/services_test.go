package services

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetforge/internal/config"
	"github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/notify"
	"github.com/conneroisu/assetforge/internal/server"
	"github.com/conneroisu/assetforge/internal/styles"
	"github.com/conneroisu/assetforge/internal/testutils"
)

// fakeSass drops variable declarations and module rules, and fails on
// sources containing "!!".
var fakeSass = styles.CompilerFunc(func(_ context.Context, req styles.Request) ([]byte, error) {
	if strings.Contains(string(req.Source), "!!") {
		return nil, errors.NewBuildError(errors.KindStyle, req.Path, "expected expression").WithLocation(1, 1)
	}
	var out []string
	for _, line := range strings.Split(string(req.Source), "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "$") || strings.HasPrefix(trimmed, "@use") {
			continue
		}
		out = append(out, line)
	}
	return []byte(strings.Join(out, "\n")), nil
})

// newProject lays out a small source tree and returns its configuration.
func newProject(t *testing.T) *config.Config {
	t.Helper()
	root := testutils.CreateTempProject(t)
	testutils.WriteFiles(t, root, map[string]string{
		"src/sass/main.scss":       "@use \"vars\";\n.hero {\n  color: red;\n  user-select: none;\n}\n",
		"src/sass/_vars.scss":      "$brand: red;\n",
		"src/vendor/normalize.css": "html {\n  line-height: 1.15;\n}\n",
		"src/js/greeting.js":       "export const greeting = \"hello\";\n",
		"src/js/app.js":            "import { greeting } from \"./greeting.js\";\nconsole.log(greeting, \"app\");\n",
		"src/partials/head.hbs":    "<head><title>{{title}}</title></head>",
		"src/index.hbs":            "<html>{{> head}}<body>{{#markdown}}# Welcome{{/markdown}}</body></html>\n",
		"src/about/team.hbs":       "<p>{{title}} team</p>\n",
		"src/images/logo.png":      "png",
		"src/fonts/a.woff2":        "font",
		"src/notes.txt":            "not an asset",
	})

	cfg := testutils.CreateTestConfig(root)
	cfg.Templates.Data = map[string]any{"title": "Forge"}
	require.NoError(t, config.Validate(cfg).Err())
	return cfg
}

func newForge(t *testing.T, cfg *config.Config, options ...Option) *Forge {
	t.Helper()
	options = append([]Option{WithCompiler(fakeSass), WithOutput(io.Discard)}, options...)
	forge, err := NewForge(cfg, nil, options...)
	require.NoError(t, err)
	return forge
}

func TestGraph(t *testing.T) {
	forge := newForge(t, newProject(t))
	graph := forge.Graph()

	assert.Equal(t, 8, graph.Len())
	plan, err := graph.Plan(TaskBuild)
	require.NoError(t, err)
	assert.Equal(t, []string{TaskStyles, TaskScripts, TaskTemplates, TaskStatic, TaskBuild}, plan)

	plan, err = graph.Plan(TaskScriptsReloader)
	require.NoError(t, err)
	assert.Equal(t, []string{TaskScripts, TaskScriptsReloader}, plan)

	plan, err = graph.Plan(TaskServe)
	require.NoError(t, err)
	assert.Equal(t, []string{TaskStyles, TaskScripts, TaskTemplates, TaskStatic, TaskServe}, plan)
}

func TestBuildWritesEveryOutput(t *testing.T) {
	cfg := newProject(t)
	result, err := NewBuildService(newForge(t, cfg), nil).Build(context.Background())
	require.NoError(t, err)
	assert.Zero(t, result.ExitCode)
	assert.Len(t, result.Results, 5)

	public := cfg.Resolve("public")
	assert.Contains(t, testutils.ReadFile(t, filepath.Join(public, "css", "main.css")), "-webkit-user-select")
	assert.FileExists(t, filepath.Join(cfg.Resolve(".tmp"), "main.css"))
	assert.FileExists(t, filepath.Join(public, "css", "normalize.css"))
	assert.NoFileExists(t, filepath.Join(public, "css", "_vars.css"), "partials never produce output")

	bundle := testutils.ReadFile(t, filepath.Join(public, "js", "app.js"))
	assert.Contains(t, bundle, `"hello"`)
	assert.Contains(t, bundle, "sourceMappingURL=data:")

	index := testutils.ReadFile(t, filepath.Join(public, "index.html"))
	assert.Contains(t, index, "<title>Forge</title>")
	assert.Contains(t, index, "<h1>Welcome</h1>")
	assert.Equal(t, "<p>Forge team</p>\n", testutils.ReadFile(t, filepath.Join(public, "about", "team.html")))
	assert.NoFileExists(t, filepath.Join(public, "partials", "head.html"))

	assert.Equal(t, "png", testutils.ReadFile(t, filepath.Join(public, "images", "logo.png")))
	assert.FileExists(t, filepath.Join(public, "fonts", "a.woff2"))
	assert.NoFileExists(t, filepath.Join(public, "notes.txt"))
}

func TestBuildProductionMinifies(t *testing.T) {
	cfg := newProject(t)
	cfg.Build.Production = true
	forge := newForge(t, cfg)
	assert.True(t, forge.Options().Production)

	_, err := NewBuildService(forge, nil).Build(context.Background())
	require.NoError(t, err)

	public := cfg.Resolve("public")
	css := testutils.ReadFile(t, filepath.Join(public, "css", "main.css"))
	assert.Contains(t, css, ".hero{")
	assert.Contains(t, testutils.ReadFile(t, filepath.Join(cfg.Resolve(".tmp"), "main.css")), "\n  color: red;")

	bundle := testutils.ReadFile(t, filepath.Join(public, "js", "app.js"))
	assert.NotContains(t, bundle, "sourceMappingURL")
	assert.NotContains(t, bundle, "\n  ")
}

func TestBuildIsStable(t *testing.T) {
	cfg := newProject(t)
	public := cfg.Resolve("public")

	_, err := NewBuildService(newForge(t, cfg), nil).Build(context.Background())
	require.NoError(t, err)
	first := testutils.Snapshot(t, public)

	_, err = NewBuildService(newForge(t, cfg), nil).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, testutils.Snapshot(t, public))

	_, err = NewBuildService(newForge(t, cfg), nil).Run(context.Background(), TaskClean)
	require.NoError(t, err)
	assert.NoDirExists(t, public)

	_, err = NewBuildService(newForge(t, cfg), nil).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, testutils.Snapshot(t, public))
}

func TestBuildReportsCompileErrors(t *testing.T) {
	cfg := newProject(t)
	testutils.WriteFile(t, cfg.Resolve("src/sass/broken.scss"), ".a { color: !! }\n")
	testutils.WriteFile(t, cfg.Resolve("src/js/app.js"), "import { missing } from \"./nowhere.js\";\n")

	var reported []error
	forge := newForge(t, cfg, WithReporters(notify.ReporterFunc(func(_ context.Context, err error) {
		reported = append(reported, err)
	})))
	result, err := NewBuildService(forge, nil).Build(context.Background())

	require.NoError(t, err, "reported errors are not fatal")
	assert.Equal(t, 1, result.ExitCode)
	require.Len(t, reported, 2)

	public := cfg.Resolve("public")
	assert.FileExists(t, filepath.Join(public, "css", "main.css"), "other stylesheets still build")
	assert.NoFileExists(t, filepath.Join(public, "css", "broken.css"))
	assert.NoFileExists(t, filepath.Join(public, "js", "app.js"))
	assert.FileExists(t, filepath.Join(public, "index.html"), "the series continues")
}

func TestStylesOverlayTracksCurrentErrors(t *testing.T) {
	cfg := newProject(t)
	a, b := cfg.Resolve("src/sass/a.scss"), cfg.Resolve("src/sass/b.scss")
	testutils.WriteFile(t, a, ".a { color: !! }\n")
	testutils.WriteFile(t, b, ".b { color: blue; }\n")

	hub := server.NewHub(server.HubConfig{}, nil)
	svc := NewBuildService(newForge(t, cfg, WithLiveReload(hub)), nil)
	overlayFiles := func() []string {
		var files []string
		for _, err := range hub.Errors() {
			files = append(files, err.File)
		}
		return files
	}

	_, err := svc.Run(context.Background(), TaskStyles)
	require.NoError(t, err)
	assert.Equal(t, []string{a}, overlayFiles())

	testutils.WriteFile(t, a, ".a { color: red; }\n")
	testutils.WriteFile(t, b, ".b { color: !! }\n")
	_, err = svc.Run(context.Background(), TaskStyles)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, overlayFiles(), "the fixed stylesheet leaves the overlay")

	testutils.WriteFile(t, b, ".b { color: blue; }\n")
	_, err = svc.Run(context.Background(), TaskStyles)
	require.NoError(t, err)
	assert.Empty(t, hub.Errors())
}

func TestBuildStopsOnTemplateFailure(t *testing.T) {
	cfg := newProject(t)
	testutils.WriteFile(t, cfg.Resolve("src/index.hbs"), "{{#if}}unclosed")

	result, err := NewBuildService(newForge(t, cfg), nil).Build(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, result.ExitCode)

	static, ok := result.Results.Get(TaskStatic)
	require.True(t, ok)
	assert.Equal(t, "skipped", static.Status.String())
	assert.NoFileExists(t, filepath.Join(cfg.Resolve("public"), "images", "logo.png"))
}

func TestServeTaskNeedsServer(t *testing.T) {
	_, err := NewBuildService(newForge(t, newProject(t)), nil).Run(context.Background(), TaskServe)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "development server")
}

func TestCleanRefusesProjectRoot(t *testing.T) {
	cfg := newProject(t)
	cfg.Paths.Public = "."
	_, err := NewBuildService(newForge(t, cfg), nil).Run(context.Background(), TaskClean)
	require.Error(t, err)
	assert.DirExists(t, cfg.Resolve("src"))
}

func TestInitProject(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "site")
	svc := NewInitService()
	require.NoError(t, svc.InitProject(InitOptions{ProjectDir: dir, Example: true}))

	for _, name := range []string{"src/sass/main.scss", "src/js/app.js", "src/index.hbs", "src/partials/head.hbs", config.DefaultFile} {
		assert.FileExists(t, filepath.Join(dir, filepath.FromSlash(name)))
	}
	assert.DirExists(t, filepath.Join(dir, "src", "vendor"))

	err := svc.InitProject(InitOptions{ProjectDir: dir})
	require.Error(t, err, "existing config needs force")
	require.NoError(t, svc.InitProject(InitOptions{ProjectDir: dir, Force: true}))
}

func TestInitExampleBuilds(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, NewInitService().InitProject(InitOptions{ProjectDir: dir, Example: true}))

	cfg := config.Defaults()
	cfg.Paths.Root = dir
	compiled := styles.CompilerFunc(func(context.Context, styles.Request) ([]byte, error) {
		return []byte(".hero { color: white; }\n"), nil
	})
	_, err := NewBuildService(newForge(t, cfg, WithCompiler(compiled)), nil).Build(context.Background())
	require.NoError(t, err)
	assert.Contains(t, testutils.ReadFile(t, filepath.Join(dir, "public", "index.html")), "<strong>src/index.hbs</strong>")
	assert.Contains(t, testutils.ReadFile(t, filepath.Join(dir, "public", "js", "app.js")), "Hello, ")
}

func TestDoctor(t *testing.T) {
	cfg := newProject(t)

	old := lookPath
	t.Cleanup(func() { lookPath = old })
	lookPath = func(string) (string, error) { return "", os.ErrNotExist }

	checks := Doctor(cfg)
	require.NotEmpty(t, checks)
	assert.False(t, Healthy(checks))
	assert.Equal(t, "sass compiler", checks[0].Name)
	assert.False(t, checks[0].OK)
	assert.NotEmpty(t, checks[0].Hint)
	for _, c := range checks[1:] {
		assert.True(t, c.OK, c.Name+": "+c.Detail)
	}

	require.NoError(t, os.Remove(cfg.Resolve(cfg.Scripts.Entry)))
	checks = Doctor(cfg)
	for _, c := range checks {
		if c.Name == "entry script" {
			assert.False(t, c.OK)
		}
	}
}
