// Package fileset expands glob patterns into the files a task reads.
package fileset

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// File is a matched file. Rel is relative to the static prefix of the
// pattern that matched it, the way gulp computes a file's base.
type File struct {
	Path string
	Base string
	Rel  string
}

// Glob expands patterns relative to root. Patterns starting with "!"
// exclude files matched by earlier patterns. Results follow the order of
// the patterns, sorted by Path within each one, and each file appears once.
func Glob(root string, patterns ...string) ([]File, error) {
	var includes, excludes []string
	for _, p := range patterns {
		p = filepath.ToSlash(p)
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			excludes = append(excludes, neg)
			continue
		}
		includes = append(includes, p)
	}

	for _, p := range append(slices.Clone(includes), excludes...) {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid glob pattern %q", p)
		}
	}

	seen := make(map[string]bool)
	var files []File
	for _, pattern := range includes {
		base, rest := doublestar.SplitPattern(pattern)
		dir := filepath.Join(root, filepath.FromSlash(base))

		matches, err := doublestar.Glob(os.DirFS(dir), rest, doublestar.WithFilesOnly())
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("expanding %s: %w", pattern, err)
		}

		var batch []File
		for _, match := range matches {
			full := path.Join(base, match)
			if seen[full] || excluded(excludes, full) {
				continue
			}
			seen[full] = true
			batch = append(batch, File{
				Path: filepath.Join(dir, filepath.FromSlash(match)),
				Base: dir,
				Rel:  filepath.FromSlash(match),
			})
		}
		slices.SortFunc(batch, func(a, b File) int { return strings.Compare(a.Path, b.Path) })
		files = append(files, batch...)
	}
	return files, nil
}

func excluded(excludes []string, name string) bool {
	for _, pattern := range excludes {
		if doublestar.MatchUnvalidated(pattern, name) {
			return true
		}
	}
	return false
}

// Match reports whether the slash or OS separated path rel matches any of
// patterns, honouring "!" exclusions.
func Match(patterns []string, rel string) bool {
	name := filepath.ToSlash(rel)
	matched := false
	for _, p := range patterns {
		p = filepath.ToSlash(p)
		if neg, ok := strings.CutPrefix(p, "!"); ok {
			if doublestar.MatchUnvalidated(neg, name) {
				return false
			}
			continue
		}
		if !matched && doublestar.MatchUnvalidated(p, name) {
			matched = true
		}
	}
	return matched
}

// Under reports whether target is inside dir (or is dir).
func Under(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// ReplaceExt swaps the extension of rel for ext.
func ReplaceExt(rel, ext string) string {
	return strings.TrimSuffix(rel, filepath.Ext(rel)) + ext
}
