package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/conneroisu/assetforge/internal/config"
	"github.com/conneroisu/assetforge/internal/services"
)

var initCmd = &cobra.Command{
	Use:     "init [dir]",
	Aliases: []string{"i"},
	Short:   "Lay out a new project and write the default configuration",
	Long: `Create the default source directories and write .assetforge.yml. If no
directory is given, initializes the current directory.

Examples:
  assetforge init                    # Initialize the current directory
  assetforge init my-site --example  # New directory with a starter page
  assetforge init --force            # Overwrite an existing configuration`,
	Args: cobra.MaximumNArgs(1),
	RunE: runInit,
}

var (
	initExample bool
	initForce   bool
)

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initExample, "example", false, "Write a starter stylesheet, script and page")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing files")
}

func runInit(cmd *cobra.Command, args []string) error {
	projectDir := "."
	if len(args) == 1 {
		projectDir = args[0]
	}
	abs, err := filepath.Abs(projectDir)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", projectDir, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Initializing assetforge project in %s\n", abs)

	err = services.NewInitService().InitProject(services.InitOptions{
		ProjectDir: abs,
		Example:    initExample,
		Force:      initForce,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "✓ Wrote %s\n", config.DefaultFile)
	fmt.Fprintln(out, "\nNext steps:")
	if wd, err := os.Getwd(); err != nil || wd != abs {
		fmt.Fprintf(out, "  cd %s\n", projectDir)
	}
	fmt.Fprintln(out, "  assetforge serve")
	return nil
}
