// Package internal contains the core implementation packages for assetforge.
//
// # Package Organization
//
// The internal packages are organized by functional domain:
//
//   - pipeline: Named task graph, series runner and watch-mode scheduler
//   - styles: Sass compilation, vendor CSS, prefixing and minification
//   - scripts: Entry bundling with esbuild
//   - templates: Handlebars page rendering with a Markdown helper
//   - static: Passthrough asset copying and deletion
//   - changed: Fingerprint manifest that skips unchanged stylesheets
//   - fileset: Glob expansion and matching
//   - watcher: File system monitoring with debouncing and task bindings
//   - server: Development server, live reload hub and error overlay
//   - services: Task wiring for build, serve, init and doctor
//   - config: Configuration management with validation
//   - errors: Build errors with code frames
//   - notify: Console, desktop and exit code reporters
//
// # Inter-Package Communication
//
//   - Tasks report compile errors through notify.Reporter and keep going
//   - The runner executes a task's prerequisites in order, once each
//   - The watcher batches changes and routes them to task triggers
//   - The server hub receives CSS updates, reloads and errors from tasks
//
// For detailed documentation, see the individual package documentation.
package internal
