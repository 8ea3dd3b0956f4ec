// Package cmd provides the command-line interface for assetforge.
//
// This package implements all CLI commands using the Cobra framework.
//
// # Available Commands
//
//   - build: Run every asset task once
//   - serve: Build, serve the output and rebuild on change
//   - run: Run named tasks and their prerequisites
//   - tasks: List the task graph
//   - init: Lay out a new project and write the default configuration
//   - clean: Remove the intermediate and public directories
//   - doctor: Check that the tools a build needs are installed
//   - version: Show version information
//
// # Command Examples
//
//	// Start the development server on another port
//	assetforge serve --port 8080 --open=false
//
//	// Production build
//	assetforge build --production
//
//	// Rebuild only the stylesheets
//	assetforge run styles
//
//	// Show the task graph as YAML
//	assetforge tasks -o yaml
//
// # Configuration Integration
//
// Commands respect configuration from multiple sources in order of precedence:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables (ASSETFORGE_*)
//  3. Configuration file (.assetforge.yml)
//  4. Default values (lowest priority)
//
// # Exit Codes
//
// A command exits non-zero when a task fails or when any stylesheet or
// script compile error was reported during the run.
package cmd
