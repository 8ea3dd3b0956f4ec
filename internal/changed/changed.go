// Package changed remembers the fingerprint of every input a task built so
// unchanged inputs can be skipped on the next run.
package changed

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"
)

// Entry is the last successful build of one input.
type Entry struct {
	Fingerprint uint64   `yaml:"fingerprint"`
	Outputs     []string `yaml:"outputs"`
}

// Tracker is safe for concurrent use.
type Tracker struct {
	mutex    sync.Mutex
	entries  map[string]Entry
	manifest string
}

// New returns an in-memory tracker.
func New() *Tracker {
	return &Tracker{entries: make(map[string]Entry)}
}

// Open returns a tracker persisted to manifest. A missing or unreadable
// manifest starts empty.
func Open(manifest string) *Tracker {
	t := New()
	t.manifest = manifest

	data, err := os.ReadFile(manifest)
	if err != nil {
		return t
	}
	var entries map[string]Entry
	if yaml.Unmarshal(data, &entries) == nil && entries != nil {
		t.entries = entries
	}
	return t
}

// Fresh reports whether key was last built with fp and all of its outputs
// still exist.
func (t *Tracker) Fresh(key string, fp uint64) bool {
	t.mutex.Lock()
	entry, ok := t.entries[key]
	t.mutex.Unlock()

	if !ok || entry.Fingerprint != fp || len(entry.Outputs) == 0 {
		return false
	}
	for _, out := range entry.Outputs {
		if _, err := os.Stat(out); err != nil {
			return false
		}
	}
	return true
}

// Record stores a successful build of key.
func (t *Tracker) Record(key string, fp uint64, outputs ...string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	t.entries[key] = Entry{Fingerprint: fp, Outputs: slices.Clone(outputs)}
}

// Forget drops key so it is rebuilt next time.
func (t *Tracker) Forget(key string) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	delete(t.entries, key)
}

// Len returns the number of tracked inputs.
func (t *Tracker) Len() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return len(t.entries)
}

// Save writes the manifest. It is a no-op for in-memory trackers.
func (t *Tracker) Save() error {
	if t.manifest == "" {
		return nil
	}
	t.mutex.Lock()
	data, err := yaml.Marshal(t.entries)
	t.mutex.Unlock()
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(t.manifest), 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}
	return os.WriteFile(t.manifest, data, 0o644)
}

// Fingerprint hashes parts in order.
func Fingerprint(parts ...[]byte) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.Write(p)
		_, _ = d.Write([]byte{0})
	}
	return d.Sum64()
}

// Uint64 encodes v for use as a Fingerprint part.
func Uint64(v uint64) []byte {
	return strconv.AppendUint(nil, v, 16)
}

// Bool encodes v for use as a Fingerprint part.
func Bool(v bool) []byte {
	return strconv.AppendBool(nil, v)
}

// HashTree hashes the relative path and content of every regular file
// under each of dirs, in order. A missing dir hashes to the empty tree.
func HashTree(dirs ...string) (uint64, error) {
	d := xxhash.New()
	for i, dir := range dirs {
		_, _ = d.Write(Uint64(uint64(i)))
		_, _ = d.Write([]byte{1})
		if err := hashDir(d, dir); err != nil {
			return 0, fmt.Errorf("hashing %s: %w", dir, err)
		}
	}
	return d.Sum64(), nil
}

func hashDir(d *xxhash.Digest, dir string) error {
	return filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == dir {
				return filepath.SkipDir
			}
			return err
		}
		if !entry.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		_, _ = d.WriteString(filepath.ToSlash(rel))
		_, _ = d.Write([]byte{0})
		_, _ = d.Write(Uint64(xxhash.Sum64(content)))
		_, _ = d.Write([]byte{0})
		return nil
	})
}
