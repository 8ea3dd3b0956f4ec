// Package errors provides the structured build error used to report
// stylesheet and script compilation failures, together with code frame
// extraction and a race-safe collector consumed by the dev server overlay.
package errors

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Kind identifies which task produced a build error.
type Kind string

const (
	KindStyle    Kind = "styles"
	KindScript   Kind = "scripts"
	KindTemplate Kind = "templates"
	KindStatic   Kind = "static"
)

// BuildError represents a compile or bundle failure for a single source file.
type BuildError struct {
	Kind      Kind
	File      string
	Line      int
	Column    int
	Message   string
	Frame     []string
	Cause     error
	Timestamp time.Time
}

// NewBuildError creates a build error for file.
func NewBuildError(kind Kind, file, message string) *BuildError {
	return &BuildError{
		Kind:      kind,
		File:      file,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// WithLocation sets the 1-based line and column of the failure.
func (be *BuildError) WithLocation(line, column int) *BuildError {
	be.Line = line
	be.Column = column
	return be
}

// WithFrame attaches code frame lines.
func (be *BuildError) WithFrame(frame []string) *BuildError {
	be.Frame = frame
	return be
}

// WithCause records the underlying error.
func (be *BuildError) WithCause(cause error) *BuildError {
	be.Cause = cause
	return be
}

// Error implements the error interface
func (be *BuildError) Error() string {
	if be.File == "" {
		return be.Message
	}
	if be.Line > 0 {
		return fmt.Sprintf("%s:%d:%d: %s", be.File, be.Line, be.Column, be.Message)
	}
	return fmt.Sprintf("%s: %s", be.File, be.Message)
}

// Unwrap returns the underlying cause.
func (be *BuildError) Unwrap() error {
	return be.Cause
}

// ShortFile returns the base name of the failing file, or "" when unknown.
func (be *BuildError) ShortFile() string {
	if be.File == "" {
		return ""
	}
	return filepath.Base(be.File)
}

// Summary returns the error text following the first colon, the part that
// fits in a desktop notification.
func (be *BuildError) Summary() string {
	return Summary(be.Error())
}

// CodeFrame returns the frame lines joined with newlines.
func (be *BuildError) CodeFrame() string {
	return strings.Join(be.Frame, "\n")
}

// Summary drops everything up to and including the first colon of message.
func Summary(message string) string {
	idx := strings.Index(message, ":")
	if idx < 0 {
		return strings.TrimSpace(message)
	}
	return strings.TrimSpace(message[idx+1:])
}

// Collector keeps the most recent build errors per task.
type Collector struct {
	errors map[Kind][]*BuildError
	mutex  sync.RWMutex
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{errors: make(map[Kind][]*BuildError)}
}

// Add records err under its kind, replacing any earlier error for the
// same file.
func (c *Collector) Add(err *BuildError) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if err.Timestamp.IsZero() {
		err.Timestamp = time.Now()
	}
	kept := c.errors[err.Kind][:0]
	for _, existing := range c.errors[err.Kind] {
		if existing.File != err.File {
			kept = append(kept, existing)
		}
	}
	c.errors[err.Kind] = append(kept, err)
}

// Retain keeps the errors of kind whose file is in files and reports
// whether any were removed.
func (c *Collector) Retain(kind Kind, files ...string) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	errs, ok := c.errors[kind]
	if !ok {
		return false
	}
	var kept []*BuildError
	for _, err := range errs {
		for _, file := range files {
			if err.File == file {
				kept = append(kept, err)
				break
			}
		}
	}
	if len(kept) == len(errs) {
		return false
	}
	if len(kept) == 0 {
		delete(c.errors, kind)
	} else {
		c.errors[kind] = kept
	}
	return true
}

// All returns a copy of every recorded error ordered by time.
func (c *Collector) All() []*BuildError {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	var all []*BuildError
	for _, errs := range c.errors {
		all = append(all, errs...)
	}
	for i := 1; i < len(all); i++ {
		for j := i; j > 0 && all[j].Timestamp.Before(all[j-1].Timestamp); j-- {
			all[j], all[j-1] = all[j-1], all[j]
		}
	}
	return all
}

// HasErrors returns true if there are any errors
func (c *Collector) HasErrors() bool {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	for _, errs := range c.errors {
		if len(errs) > 0 {
			return true
		}
	}
	return false
}
