package services

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/conneroisu/assetforge/internal/config"
)

// InitService handles project initialization business logic
type InitService struct{}

// NewInitService creates a new initialization service
func NewInitService() *InitService {
	return &InitService{}
}

// InitOptions contains options for project initialization
type InitOptions struct {
	ProjectDir string
	// Example writes a starter stylesheet, script and pages.
	Example bool
	Force   bool
}

// InitProject lays out the default source tree and writes the default
// configuration file.
func (s *InitService) InitProject(opts InitOptions) error {
	if err := os.MkdirAll(opts.ProjectDir, 0o755); err != nil {
		return fmt.Errorf("creating project directory: %w", err)
	}

	cfg := config.Defaults()
	if err := s.createDirectoryStructure(opts.ProjectDir, cfg); err != nil {
		return err
	}

	if err := config.WriteFile(filepath.Join(opts.ProjectDir, config.DefaultFile), cfg, opts.Force); err != nil {
		return err
	}

	if opts.Example {
		return s.createExamples(opts.ProjectDir, opts.Force)
	}
	return nil
}

func (s *InitService) createDirectoryStructure(projectDir string, cfg *config.Config) error {
	dirs := []string{
		cfg.Styles.SassDir,
		filepath.Join(cfg.Paths.Source, "vendor"),
		filepath.Dir(cfg.Scripts.Entry),
		cfg.Templates.Partials,
		filepath.Join(cfg.Paths.Source, "images"),
	}
	for _, dir := range dirs {
		dirPath := filepath.Join(projectDir, filepath.FromSlash(dir))
		if err := os.MkdirAll(dirPath, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	return nil
}

var examples = map[string]string{
	"src/sass/_variables.scss": `$brand: #3b6fd8 !default;
$spacing: 1rem !default;
`,
	"src/sass/main.scss": `@use "variables" as *;

body {
  margin: 0;
  font-family: system-ui, sans-serif;
  user-select: none;
}

.hero {
  padding: $spacing * 4 $spacing;
  color: white;
  background: $brand;

  @if $production {
    transition: none;
  }
}
`,
	"src/js/greeting.js": `export function greeting(name) {
  return ` + "`Hello, ${name}!`" + `;
}
`,
	"src/js/app.js": `import { greeting } from "./greeting.js";

const hero = document.querySelector(".hero");
if (hero) {
  hero.textContent = greeting("assetforge");
}
`,
	"src/partials/head.hbs": `<head>
  <meta charset="utf-8">
  <title>{{#if title}}{{title}}{{else}}assetforge{{/if}}</title>
  <link rel="stylesheet" href="/css/main.css">
</head>
`,
	"src/index.hbs": `<!DOCTYPE html>
<html>
{{> head}}
<body>
  <div class="hero"></div>
  {{#markdown}}
  Edit **src/index.hbs** and save to reload.
  {{/markdown}}
  <script src="/js/app.js"></script>
</body>
</html>
`,
}

func (s *InitService) createExamples(projectDir string, force bool) error {
	for name, content := range examples {
		path := filepath.Join(projectDir, filepath.FromSlash(name))
		if _, err := os.Stat(path); err == nil && !force {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(name), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", name, err)
		}
	}
	return nil
}
