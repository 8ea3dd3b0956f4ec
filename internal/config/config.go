// Package config provides configuration management for assetforge using
// Viper for loading from files, environment variables and command-line
// flags.
//
// The configuration supports YAML files, environment variable overrides
// with the ASSETFORGE_ prefix and validation. It covers the project layout,
// every build task, the development server, the watcher and logging.
package config

import (
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetforge/internal/static"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "ASSETFORGE"

// DefaultFile is the configuration file looked up in the working directory.
const DefaultFile = ".assetforge.yml"

type Config struct {
	Paths     PathsConfig     `mapstructure:"paths" yaml:"paths"`
	Build     BuildConfig     `mapstructure:"build" yaml:"build"`
	Styles    StylesConfig    `mapstructure:"styles" yaml:"styles"`
	Scripts   ScriptsConfig   `mapstructure:"scripts" yaml:"scripts"`
	Templates TemplatesConfig `mapstructure:"templates" yaml:"templates"`
	Static    StaticConfig    `mapstructure:"static" yaml:"static"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Watch     WatchConfig     `mapstructure:"watch" yaml:"watch"`
	Notify    NotifyConfig    `mapstructure:"notify" yaml:"notify"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// PathsConfig is the project layout. Everything else is relative to Root.
type PathsConfig struct {
	Root         string `mapstructure:"root" yaml:"root"`
	Source       string `mapstructure:"source" yaml:"source"`
	Intermediate string `mapstructure:"intermediate" yaml:"intermediate"`
	Public       string `mapstructure:"public" yaml:"public"`
}

type BuildConfig struct {
	Production bool `mapstructure:"production" yaml:"production"`
	// Manifest records fingerprints of built stylesheets between runs.
	Manifest string `mapstructure:"manifest" yaml:"manifest"`
}

type StylesConfig struct {
	Vendor    []string `mapstructure:"vendor" yaml:"vendor"`
	Sources   []string `mapstructure:"sources" yaml:"sources"`
	SassDir   string   `mapstructure:"sass_dir" yaml:"sass_dir"`
	LoadPaths []string `mapstructure:"load_paths" yaml:"load_paths"`
	Compiler  string   `mapstructure:"compiler" yaml:"compiler"`
	Browsers  []string `mapstructure:"browsers" yaml:"browsers"`
}

type ScriptsConfig struct {
	Entry  string `mapstructure:"entry" yaml:"entry"`
	Output string `mapstructure:"output" yaml:"output"`
	Target string `mapstructure:"target" yaml:"target"`
}

type TemplatesConfig struct {
	Sources   []string       `mapstructure:"sources" yaml:"sources"`
	Partials  string         `mapstructure:"partials" yaml:"partials"`
	Extension string         `mapstructure:"extension" yaml:"extension"`
	Data      map[string]any `mapstructure:"data" yaml:"data,omitempty"`
	// DataFile is a YAML file merged over Data. Unlike Data its keys keep
	// their case.
	DataFile string `mapstructure:"data_file" yaml:"data_file,omitempty"`
}

type StaticConfig struct {
	Extensions  []string `mapstructure:"extensions" yaml:"extensions"`
	Parallelism int      `mapstructure:"parallelism" yaml:"parallelism"`
}

type ServerConfig struct {
	Host           string        `mapstructure:"host" yaml:"host"`
	Port           int           `mapstructure:"port" yaml:"port"`
	Open           bool          `mapstructure:"open" yaml:"open"`
	Gzip           bool          `mapstructure:"gzip" yaml:"gzip"`
	Notify         bool          `mapstructure:"notify" yaml:"notify"`
	ReloadDelay    time.Duration `mapstructure:"reload_delay" yaml:"reload_delay"`
	AllowedOrigins []string      `mapstructure:"allowed_origins" yaml:"allowed_origins,omitempty"`
}

type WatchConfig struct {
	Debounce time.Duration `mapstructure:"debounce" yaml:"debounce"`
}

// NotifyConfig controls how reported build errors reach the user besides
// the console.
type NotifyConfig struct {
	Desktop bool `mapstructure:"desktop" yaml:"desktop"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// DefaultStaticExtensions are the passthrough asset types.
var DefaultStaticExtensions = []string{
	"html", "php", "jpg", "jpeg", "png", "gif", "webp", "mp4", "svg",
	"ico", "eot", "ttf", "woff", "woff2", "otf",
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Paths: PathsConfig{
			Root:         ".",
			Source:       "src",
			Intermediate: ".tmp",
			Public:       "public",
		},
		Build: BuildConfig{
			Manifest: ".tmp/.assetforge-manifest.yml",
		},
		Styles: StylesConfig{
			Vendor:    []string{"src/vendor/**/*.css"},
			Sources:   []string{"src/sass/*.scss"},
			SassDir:   "src/sass",
			LoadPaths: []string{},
			Compiler:  "sass",
			Browsers:  []string{"chrome100", "edge100", "firefox100", "safari14", "ios14"},
		},
		Scripts: ScriptsConfig{
			Entry:  "src/js/app.js",
			Output: "app.js",
			Target: "es2015",
		},
		Templates: TemplatesConfig{
			Sources:   []string{"src/**/*.hbs"},
			Partials:  "src/partials",
			Extension: ".html",
		},
		Static: StaticConfig{
			Extensions:  slices.Clone(DefaultStaticExtensions),
			Parallelism: 8,
		},
		Server: ServerConfig{
			Host:           "localhost",
			Port:           3000,
			Open:           true,
			Gzip:           true,
			AllowedOrigins: []string{},
		},
		Watch: WatchConfig{
			Debounce: 100 * time.Millisecond,
		},
		Notify: NotifyConfig{
			Desktop: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// SetDefaults registers every default on v so that environment variables
// can override keys that appear in no file.
func SetDefaults(v *viper.Viper) {
	d := Defaults()
	defaults := map[string]any{
		"paths.root":             d.Paths.Root,
		"paths.source":           d.Paths.Source,
		"paths.intermediate":     d.Paths.Intermediate,
		"paths.public":           d.Paths.Public,
		"build.production":       d.Build.Production,
		"build.manifest":         d.Build.Manifest,
		"styles.vendor":          d.Styles.Vendor,
		"styles.sources":         d.Styles.Sources,
		"styles.sass_dir":        d.Styles.SassDir,
		"styles.load_paths":      []string{},
		"styles.compiler":        d.Styles.Compiler,
		"styles.browsers":        d.Styles.Browsers,
		"scripts.entry":          d.Scripts.Entry,
		"scripts.output":         d.Scripts.Output,
		"scripts.target":         d.Scripts.Target,
		"templates.sources":      d.Templates.Sources,
		"templates.partials":     d.Templates.Partials,
		"templates.extension":    d.Templates.Extension,
		"templates.data":         map[string]any{},
		"templates.data_file":    "",
		"static.extensions":      d.Static.Extensions,
		"static.parallelism":     d.Static.Parallelism,
		"server.host":            d.Server.Host,
		"server.port":            d.Server.Port,
		"server.open":            d.Server.Open,
		"server.gzip":            d.Server.Gzip,
		"server.notify":          d.Server.Notify,
		"server.reload_delay":    d.Server.ReloadDelay,
		"server.allowed_origins": d.Server.AllowedOrigins,
		"watch.debounce":         d.Watch.Debounce,
		"notify.desktop":         d.Notify.Desktop,
		"log.level":              d.Log.Level,
		"log.format":             d.Log.Format,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads the configuration held by the global viper instance.
func Load() (*Config, error) {
	return LoadFrom(viper.GetViper())
}

// LoadFrom reads and validates the configuration held by v.
func LoadFrom(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	if config.Templates.Data == nil {
		config.Templates.Data = make(map[string]any)
	}

	if result := Validate(&config); result.HasErrors() {
		return nil, fmt.Errorf("invalid configuration: %w", result.Err())
	}
	return &config, nil
}

// Resolve returns p relative to the project root, made absolute.
func (c *Config) Resolve(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	root := c.Paths.Root
	if abs, err := filepath.Abs(root); err == nil {
		root = abs
	}
	return filepath.Join(root, filepath.FromSlash(p))
}

// Root returns the absolute project root.
func (c *Config) Root() string {
	return c.Resolve(".")
}

// StaticGlob matches passthrough assets anywhere under the source tree.
func (c *Config) StaticGlob() string {
	return path.Join(filepath.ToSlash(c.Paths.Source), static.Pattern(c.Static.Extensions))
}

// TemplateData is the context every template renders with: Data with
// DataFile merged over it.
func (c *Config) TemplateData() (map[string]any, error) {
	data := maps.Clone(c.Templates.Data)
	if data == nil {
		data = make(map[string]any)
	}
	if c.Templates.DataFile == "" {
		return data, nil
	}

	content, err := os.ReadFile(c.Resolve(c.Templates.DataFile))
	if err != nil {
		return nil, fmt.Errorf("reading template data: %w", err)
	}
	var fromFile map[string]any
	if err := yaml.Unmarshal(content, &fromFile); err != nil {
		return nil, fmt.Errorf("parsing template data %s: %w", c.Templates.DataFile, err)
	}
	maps.Copy(data, fromFile)
	return data, nil
}

// WriteFile writes cfg as YAML to name. An existing file is only replaced
// when force is set.
func WriteFile(name string, cfg *Config, force bool) error {
	if !force {
		if _, err := os.Stat(name); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", name)
		}
	}

	var b strings.Builder
	b.WriteString("# assetforge configuration\n")
	enc := yaml.NewEncoder(&b)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}

	if err := os.WriteFile(name, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}
