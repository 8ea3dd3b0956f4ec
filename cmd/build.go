package cmd

import (
	"fmt"
	"slices"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conneroisu/assetforge/internal/pipeline"
	"github.com/conneroisu/assetforge/internal/services"
)

var buildCmd = &cobra.Command{
	Use:     "build",
	Aliases: []string{"b"},
	Short:   "Build every asset once",
	Long: `Build stylesheets, scripts, pages and static assets once, in that order.
The series stops at the first task that fails. Compile errors in stylesheets
and scripts are printed and make the command exit non-zero, but do not stop
the other tasks.

Examples:
  assetforge build                   # Development build with source maps
  assetforge build --production      # Minified build`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTasks(cmd, services.TaskBuild)
	},
}

var runCmd = &cobra.Command{
	Use:   "run <task>...",
	Short: "Run tasks and their prerequisites",
	Long: `Run the named tasks in order, each after its prerequisites. Every task
runs at most once. Use 'assetforge tasks' to list them.

Examples:
  assetforge run styles              # Rebuild the stylesheets
  assetforge run clean build         # Start from a clean slate`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if slices.Contains(args, services.TaskServe) {
			if len(args) > 1 {
				return fmt.Errorf("the %s task runs until interrupted and cannot be combined", services.TaskServe)
			}
			return runServe(cmd, nil)
		}
		return runTasks(cmd, args...)
	},
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove the intermediate and public directories",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runTasks(cmd, services.TaskClean)
	},
}

func init() {
	rootCmd.AddCommand(buildCmd, runCmd, cleanCmd)
}

// runTasks runs targets once and turns their outcome into an exit code.
func runTasks(cmd *cobra.Command, targets ...string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	forge, err := services.NewForge(cfg, logger, forgeOptions(cmd, cfg, logger)...)
	if err != nil {
		return err
	}

	result, err := services.NewBuildService(forge, logger).Run(cmd.Context(), targets...)
	if result != nil && len(result.Results) > 0 {
		printResults(cmd, result)
	}
	if err != nil {
		return &ExitError{Code: 1, Err: err}
	}
	if result.ExitCode != 0 {
		return &ExitError{Code: result.ExitCode}
	}
	return nil
}

func printResults(cmd *cobra.Command, result *services.BuildResult) {
	out := cmd.OutOrStdout()
	for _, r := range result.Results {
		mark, c := "✓", color.New(color.FgGreen)
		switch r.Status {
		case pipeline.StatusReported:
			mark, c = "!", color.New(color.FgYellow)
		case pipeline.StatusFailed:
			mark, c = "✗", color.New(color.FgRed)
		case pipeline.StatusSkipped:
			mark, c = "-", color.New(color.Faint)
		}
		c.Fprintf(out, "%s %-18s", mark, r.Task)
		if r.Status == pipeline.StatusSkipped {
			fmt.Fprintln(out, r.Status)
			continue
		}
		fmt.Fprintln(out, r.Duration.Round(time.Millisecond))
	}

	if result.ExitCode == 0 {
		color.New(color.FgGreen).Fprintf(out, "✅ done in %s\n", result.Duration.Round(time.Millisecond))
	} else {
		color.New(color.FgRed).Fprintf(out, "❌ finished with errors in %s\n", result.Duration.Round(time.Millisecond))
	}
}
