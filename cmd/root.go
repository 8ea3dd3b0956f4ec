// Package cmd provides the command-line interface for assetforge.
//
// Configuration System:
//
//	The CLI supports flexible configuration through multiple sources with clear precedence:
//	1. Command-line flags (--production, --port, etc.) - highest priority
//	2. ASSETFORGE_CONFIG_FILE environment variable - custom config file path
//	3. Individual environment variables (ASSETFORGE_SERVER_PORT, etc.)
//	4. Configuration files (.assetforge.yml) - lowest priority
//
// Environment Variables:
//
//	ASSETFORGE_CONFIG_FILE: Path to custom configuration file
//	ASSETFORGE_SERVER_PORT: Override server port
//	ASSETFORGE_BUILD_PRODUCTION: Minify and drop source maps
//	And many more following the ASSETFORGE_<SECTION>_<OPTION> pattern
package cmd

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/conneroisu/assetforge/internal/config"
	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/notify"
	"github.com/conneroisu/assetforge/internal/services"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "assetforge",
	Short: "Build, serve and live reload front-end assets",
	Long: `assetforge compiles stylesheets, bundles scripts, renders Handlebars pages
and copies static assets into a public directory, then serves the result
with live reload while you edit.

Quick Start:
  assetforge init --example       Lay out a new project
  assetforge serve                Build, serve and rebuild on change
  assetforge build --production   Build minified assets once
  assetforge tasks                List the tasks you can run

Documentation: https://github.com/conneroisu/assetforge`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: initConfig,
}

// flagBindings maps flags to the configuration keys they override.
var flagBindings = map[string]string{
	"production": "build.production",
	"log-level":  "log.level",
	"log-format": "log.format",
	"port":       "server.port",
	"host":       "server.host",
	"open":       "server.open",
}

// ExitError carries a process exit code. A nil Err means the failure was
// already reported.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Execute runs the command line and returns the process exit code.
func Execute() int {
	err := rootCmd.Execute()
	if err == nil {
		return 0
	}

	var exitErr *ExitError
	if stderrors.As(err, &exitErr) {
		if exitErr.Err != nil {
			printError(rootCmd.ErrOrStderr(), exitErr.Err)
		}
		return exitErr.Code
	}
	printError(rootCmd.ErrOrStderr(), err)
	return 1
}

func printError(w io.Writer, err error) {
	color.New(color.FgRed, color.Bold).Fprint(w, "Error: ")
	fmt.Fprintln(w, err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .assetforge.yml, can also use ASSETFORGE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().Bool("production", false, "minify output and drop source maps")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "text", "log format (text, json)")
}

// initConfig initializes the configuration system with support for multiple config sources.
//
// Configuration Loading Priority (highest to lowest):
//  1. --config flag: Explicitly specified config file path
//  2. ASSETFORGE_CONFIG_FILE environment variable: Custom config file path
//  3. Default: .assetforge.yml in current directory
//
// A missing default file is fine; an explicitly named file must exist.
func initConfig(cmd *cobra.Command, _ []string) error {
	explicit := true
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else if envConfigFile := os.Getenv(config.EnvPrefix + "_CONFIG_FILE"); envConfigFile != "" {
		viper.SetConfigFile(envConfigFile)
	} else {
		explicit = false
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(strings.TrimSuffix(config.DefaultFile, ".yml"))
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := SetViperBindings(cmd, flagBindings); err != nil {
		return err
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if explicit || !stderrors.As(err, &notFound) {
			return fmt.Errorf("reading configuration: %w", err)
		}
	}
	return nil
}

// loadConfig decodes and validates the merged configuration.
func loadConfig() (*config.Config, error) {
	return config.Load()
}

// newLogger creates the logger described by cfg, writing to w.
func newLogger(cfg *config.Config, w io.Writer) (logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:  level,
		Format: cfg.Log.Format,
		Output: w,
	}), nil
}

// newDesktopReporter creates the reporter behind notify.desktop.
var newDesktopReporter = notify.NewDesktopReporter

// forgeOptions are the options shared by every command that runs tasks.
func forgeOptions(cmd *cobra.Command, cfg *config.Config, logger logging.Logger) []services.Option {
	options := []services.Option{services.WithOutput(cmd.ErrOrStderr())}
	if cfg.Notify.Desktop {
		options = append(options, services.WithReporters(newDesktopReporter(logger)))
	}
	return options
}
