package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conneroisu/assetforge/internal/services"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"s"},
	Short:   "Build, serve and rebuild on change",
	Long: `Build every asset, start the development server and rebuild whatever
changes. Stylesheet changes are injected without a reload; script, page and
static changes reload the browser. Build errors are shown in the page until
they are fixed.

Examples:
  assetforge serve                   # Serve on localhost:3000
  assetforge serve -p 8080           # Serve on another port
  assetforge serve --open=false      # Don't open a browser`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveFlags *StandardFlags

func init() {
	rootCmd.AddCommand(serveCmd)
	serveFlags = AddStandardFlags(serveCmd, "server")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger, err := newLogger(cfg, cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	svc, err := services.NewServeService(cfg, logger, forgeOptions(cmd, cfg, logger)...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go announce(ctx, cmd, svc)

	if err := svc.Serve(ctx); err != nil {
		return &ExitError{Code: 1, Err: fmt.Errorf("server error: %w", err)}
	}
	// Compile errors were printed as they happened.
	if code := svc.Forge().ExitCode(); code != 0 {
		return &ExitError{Code: code}
	}
	return nil
}

func announce(ctx context.Context, cmd *cobra.Command, svc *services.ServeService) {
	select {
	case <-svc.Ready():
		color.New(color.FgCyan, color.Bold).Fprintf(cmd.OutOrStdout(), "🚀 Serving at %s\n", svc.URL())
	case <-ctx.Done():
	}
}
