// Package testutils holds project fixtures shared by the package tests.
package testutils

import (
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/conneroisu/assetforge/internal/config"
)

// CreateTempProject creates a temporary project with the default source
// layout and no files.
func CreateTempProject(t *testing.T) string {
	t.Helper()
	tempDir := t.TempDir()

	dirs := []string{
		"src/sass",
		"src/vendor",
		"src/js",
		"src/partials",
		"src/images",
	}

	for _, dir := range dirs {
		err := os.MkdirAll(filepath.Join(tempDir, filepath.FromSlash(dir)), 0o755)
		require.NoError(t, err)
	}

	return tempDir
}

// CreateTestConfig returns the default configuration rooted at projectDir,
// serving on a free local port without opening a browser.
func CreateTestConfig(projectDir string) *config.Config {
	cfg := config.Defaults()
	cfg.Paths.Root = projectDir
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 0
	cfg.Server.Open = false
	cfg.Watch.Debounce = 30 * time.Millisecond
	return cfg
}

// WriteFile writes content to name, creating its directory.
func WriteFile(t *testing.T, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(name), 0o755))
	require.NoError(t, os.WriteFile(name, []byte(content), 0o644))
}

// WriteFiles writes files keyed by slash separated paths under root.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		WriteFile(t, filepath.Join(root, filepath.FromSlash(name)), content)
	}
}

// ReadFile returns the content of name.
func ReadFile(t *testing.T, name string) string {
	t.Helper()
	content, err := os.ReadFile(name)
	require.NoError(t, err)
	return string(content)
}

// Snapshot returns every file under dir keyed by its slash separated
// relative path.
func Snapshot(t *testing.T, dir string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	require.NoError(t, err)
	return files
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}
