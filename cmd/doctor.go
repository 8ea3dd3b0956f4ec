package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/assetforge/internal/services"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the tools and inputs a build needs are present",
	Long: `Check for the Sass compiler, the source directories, the entry script
and whether the server port is free.

Examples:
  assetforge doctor                  # Human readable report
  assetforge doctor -o json          # JSON for tooling`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

var doctorFlags *StandardFlags

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorFlags = AddStandardFlags(doctorCmd, "output")
}

func runDoctor(cmd *cobra.Command, _ []string) error {
	if err := doctorFlags.ValidateFlags(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	checks := services.Doctor(cfg)
	out := cmd.OutOrStdout()

	switch strings.ToLower(doctorFlags.OutputFormat) {
	case "json":
		encoder := json.NewEncoder(out)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(checks); err != nil {
			return err
		}
	case "yaml":
		if err := yaml.NewEncoder(out).Encode(checks); err != nil {
			return err
		}
	default:
		for _, check := range checks {
			if check.OK {
				color.New(color.FgGreen).Fprint(out, "✓ ")
			} else {
				color.New(color.FgRed).Fprint(out, "✗ ")
			}
			fmt.Fprintf(out, "%s: %s\n", check.Name, check.Detail)
			if check.Hint != "" {
				fmt.Fprintf(out, "  → %s\n", check.Hint)
			}
		}
	}

	if !services.Healthy(checks) {
		return &ExitError{Code: 1}
	}
	return nil
}
