package config

import (
	stderrors "errors"
	"fmt"
	"net"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/scripts"
	"github.com/conneroisu/assetforge/internal/styles"
)

// ValidationError represents a configuration validation error with suggestions
type ValidationError struct {
	Field       string
	Value       interface{}
	Message     string
	Suggestions []string
}

func (ve *ValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// ValidationResult holds the result of configuration validation
type ValidationResult struct {
	Valid    bool
	Errors   []ValidationError
	Warnings []ValidationError
}

// HasErrors returns true if there are any validation errors
func (vr *ValidationResult) HasErrors() bool {
	return len(vr.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// Err joins every validation error, or returns nil.
func (vr *ValidationResult) Err() error {
	errs := make([]error, 0, len(vr.Errors))
	for i := range vr.Errors {
		errs = append(errs, &vr.Errors[i])
	}
	return stderrors.Join(errs...)
}

// String returns a formatted string of all validation issues
func (vr *ValidationResult) String() string {
	var builder strings.Builder

	if len(vr.Errors) > 0 {
		builder.WriteString("❌ Validation Errors:\n")
		for _, err := range vr.Errors {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", err.Field, err.Message))
			for _, suggestion := range err.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
		builder.WriteString("\n")
	}

	if len(vr.Warnings) > 0 {
		builder.WriteString("⚠️  Validation Warnings:\n")
		for _, warning := range vr.Warnings {
			builder.WriteString(fmt.Sprintf("  • %s: %s\n", warning.Field, warning.Message))
			for _, suggestion := range warning.Suggestions {
				builder.WriteString(fmt.Sprintf("    💡 %s\n", suggestion))
			}
		}
	}

	return builder.String()
}

func (vr *ValidationResult) fail(field string, value interface{}, message string, suggestions ...string) {
	vr.Errors = append(vr.Errors, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

func (vr *ValidationResult) warn(field string, value interface{}, message string, suggestions ...string) {
	vr.Warnings = append(vr.Warnings, ValidationError{Field: field, Value: value, Message: message, Suggestions: suggestions})
}

// Validate checks every section and collects all problems at once.
func Validate(config *Config) *ValidationResult {
	result := &ValidationResult{
		Errors:   []ValidationError{},
		Warnings: []ValidationError{},
	}

	validatePaths(&config.Paths, &config.Build, result)
	validateStyles(&config.Styles, result)
	validateScripts(&config.Scripts, result)
	validateTemplates(&config.Templates, result)
	validateStatic(&config.Static, result)
	validateServer(&config.Server, result)
	validateWatch(&config.Watch, result)
	validateLog(&config.Log, result)

	result.Valid = !result.HasErrors()
	return result
}

func validatePaths(paths *PathsConfig, build *BuildConfig, result *ValidationResult) {
	if paths.Root == "" {
		result.fail("paths.root", paths.Root, "project root cannot be empty", "Use '.' for the current directory")
	}
	if err := validatePath(paths.Source); err != nil {
		result.fail("paths.source", paths.Source, err.Error(), "Use a directory inside the project, such as 'src'")
	}

	// clean removes these directories, so they must stay inside the project.
	for field, dir := range map[string]string{
		"paths.intermediate": paths.Intermediate,
		"paths.public":       paths.Public,
	} {
		if err := validateOutputDir(dir); err != nil {
			result.fail(field, dir, err.Error(),
				"Use a relative directory inside the project",
				"The defaults are '.tmp' and 'public'",
			)
		}
	}
	if paths.Intermediate != "" && filepath.Clean(paths.Intermediate) == filepath.Clean(paths.Public) {
		result.fail("paths.intermediate", paths.Intermediate, "intermediate and public directories must differ")
	}

	if build.Manifest != "" {
		if err := validatePath(build.Manifest); err != nil {
			result.fail("build.manifest", build.Manifest, err.Error())
		}
	}
}

func validateStyles(config *StylesConfig, result *ValidationResult) {
	if len(config.Vendor)+len(config.Sources) == 0 {
		result.fail("styles.sources", config.Sources, "no stylesheet globs configured",
			"Use 'src/sass/*.scss' for Sass entries",
		)
	}
	validateGlobs("styles.vendor", config.Vendor, result)
	validateGlobs("styles.sources", config.Sources, result)

	if config.Compiler == "" {
		result.fail("styles.compiler", config.Compiler, "sass compiler cannot be empty",
			"Install Dart Sass and use 'sass'",
		)
	} else if strings.ContainsAny(config.Compiler, ";&|$`<>") {
		result.fail("styles.compiler", config.Compiler, "compiler contains shell metacharacters",
			"Use the path of the sass executable only",
		)
	}

	for _, p := range config.LoadPaths {
		if err := validatePath(p); err != nil {
			result.fail("styles.load_paths", p, err.Error())
		}
	}

	if len(config.Browsers) == 0 {
		result.warn("styles.browsers", config.Browsers, "no browser targets, vendor prefixes will not be added",
			"Add targets such as 'chrome100' or 'safari14'",
		)
	} else if _, err := styles.Engines(config.Browsers); err != nil {
		result.fail("styles.browsers", config.Browsers, err.Error(),
			"Targets are a browser name followed by a version, e.g. 'ios14.5'",
			"Known browsers: chrome, edge, firefox, ie, ios, opera, safari",
		)
	}
}

func validateScripts(config *ScriptsConfig, result *ValidationResult) {
	if config.Entry == "" {
		result.fail("scripts.entry", config.Entry, "entry script cannot be empty", "Use 'src/js/app.js'")
	} else if err := validatePath(config.Entry); err != nil {
		result.fail("scripts.entry", config.Entry, err.Error())
	}

	if config.Output == "" || strings.ContainsAny(config.Output, `/\`) {
		result.fail("scripts.output", config.Output, "output must be a file name", "Use 'app.js'")
	}

	if _, err := scripts.ParseTarget(config.Target); err != nil {
		result.fail("scripts.target", config.Target, err.Error(),
			"Use 'es5', 'es2015' through 'es2022', or 'esnext'",
		)
	}
}

func validateTemplates(config *TemplatesConfig, result *ValidationResult) {
	if len(config.Sources) == 0 {
		result.fail("templates.sources", config.Sources, "no template globs configured", "Use 'src/**/*.hbs'")
	}
	validateGlobs("templates.sources", config.Sources, result)

	if config.Partials != "" {
		if err := validatePath(config.Partials); err != nil {
			result.fail("templates.partials", config.Partials, err.Error())
		}
	}
	if !strings.HasPrefix(config.Extension, ".") || len(config.Extension) < 2 {
		result.fail("templates.extension", config.Extension, "extension must start with '.'", "Use '.html'")
	}
	if config.DataFile != "" {
		if err := validatePath(config.DataFile); err != nil {
			result.fail("templates.data_file", config.DataFile, err.Error())
		}
	}
}

var extensionPattern = regexp.MustCompile(`^[a-z0-9]+$`)

func validateStatic(config *StaticConfig, result *ValidationResult) {
	if len(config.Extensions) == 0 {
		result.warn("static.extensions", config.Extensions, "no static extensions, nothing will be copied")
	}
	for _, ext := range config.Extensions {
		if !extensionPattern.MatchString(ext) {
			result.fail("static.extensions", ext, fmt.Sprintf("invalid extension %q", ext),
				"Extensions are lowercase letters and digits without a leading dot, e.g. 'png'",
			)
		}
	}
	if config.Parallelism < 0 {
		result.fail("static.parallelism", config.Parallelism, "parallelism cannot be negative",
			"Use 0 for the default",
		)
	}
}

func validateServer(config *ServerConfig, result *ValidationResult) {
	if config.Port < 0 || config.Port > 65535 {
		result.fail("server.port", config.Port, fmt.Sprintf("port %d is not in valid range 0-65535", config.Port),
			"Use a port between 1024-65535 for non-privileged access",
			"Common development ports: 3000, 8080, 8000, 3001",
			"Port 0 allows system to assign an available port",
		)
	} else if config.Port > 0 && config.Port < 1024 {
		result.warn("server.port", config.Port, "port below 1024 requires elevated privileges",
			"Consider using a port above 1024 for development",
		)
	}

	if config.Host != "" {
		if err := validateHostname(config.Host); err != nil {
			result.fail("server.host", config.Host, err.Error(),
				"Use 'localhost' for local development",
				"Use '0.0.0.0' to bind to all interfaces",
			)
		}
	}

	if config.ReloadDelay < 0 {
		result.fail("server.reload_delay", config.ReloadDelay.String(), "reload delay cannot be negative")
	}

	for _, origin := range config.AllowedOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			result.fail("server.allowed_origins", origin, "origins must be http(s) URLs",
				"Use a full origin such as 'http://localhost:3000'",
			)
		}
	}
}

func validateWatch(config *WatchConfig, result *ValidationResult) {
	if config.Debounce < 0 {
		result.fail("watch.debounce", config.Debounce.String(), "debounce cannot be negative", "Use '100ms'")
	}
}

func validateLog(config *LogConfig, result *ValidationResult) {
	if _, err := logging.ParseLevel(config.Level); err != nil {
		result.fail("log.level", config.Level, err.Error(), "Use debug, info, warn or error")
	}
	if !slices.Contains([]string{"text", "json"}, config.Format) {
		result.fail("log.format", config.Format, "unknown log format", "Use 'text' or 'json'")
	}
}

func validateGlobs(field string, globs []string, result *ValidationResult) {
	for _, glob := range globs {
		pattern := strings.TrimPrefix(filepath.ToSlash(glob), "!")
		if !doublestar.ValidatePattern(pattern) {
			result.fail(field, glob, "invalid glob pattern")
			continue
		}
		if err := validatePath(pattern); err != nil {
			result.fail(field, glob, err.Error())
		}
	}
}

// validatePath validates a project relative path
func validatePath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}

	cleanPath := filepath.Clean(path)

	// Reject path traversal attempts
	if slices.Contains(strings.Split(filepath.ToSlash(cleanPath), "/"), "..") {
		return fmt.Errorf("path contains traversal: %s", path)
	}

	// Reject dangerous characters
	dangerousChars := []string{";", "&", "|", "$", "`", "<", ">", "\"", "'"}
	for _, char := range dangerousChars {
		if strings.Contains(cleanPath, char) {
			return fmt.Errorf("path contains dangerous character: %s", char)
		}
	}

	return nil
}

func validateOutputDir(dir string) error {
	if err := validatePath(dir); err != nil {
		return err
	}
	clean := filepath.Clean(dir)
	if filepath.IsAbs(clean) {
		return fmt.Errorf("output directory should be relative path: %s", dir)
	}
	if clean == "." {
		return fmt.Errorf("output directory cannot be the project root")
	}
	return nil
}

func validateHostname(host string) error {
	// Check for dangerous characters
	dangerousChars := []string{";", "&", "|", "$", "`", "(", ")", "<", ">", "\"", "'", "\\"}
	for _, char := range dangerousChars {
		if strings.Contains(host, char) {
			return fmt.Errorf("contains dangerous character: %s", char)
		}
	}

	if net.ParseIP(host) != nil || host == "localhost" {
		return nil
	}

	hostnameRegex := regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)
	if !hostnameRegex.MatchString(host) {
		return fmt.Errorf("invalid hostname format")
	}

	return nil
}
