// Package notify reports compile failures to the console, the desktop and
// any other sink that implements Reporter.
package notify

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/gen2brain/beeep"

	"github.com/conneroisu/assetforge/internal/errors"
	"github.com/conneroisu/assetforge/internal/logging"
)

// Reporter receives errors that a task handled without failing the pipeline.
//
//go:generate mockgen -source=reporter.go -destination=mocks/mock_reporter.go -package=mocks
type Reporter interface {
	Report(ctx context.Context, err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, err error)

// Report calls f.
func (f ReporterFunc) Report(ctx context.Context, err error) {
	f(ctx, err)
}

// Multi fans a report out to every reporter in order.
type Multi []Reporter

// Report forwards err to each reporter.
func (m Multi) Report(ctx context.Context, err error) {
	for _, r := range m {
		if r != nil {
			r.Report(ctx, err)
		}
	}
}

// Discard ignores every report.
var Discard Reporter = ReporterFunc(func(context.Context, error) {})

// ConsoleReporter prints a red error line followed by the code frame.
type ConsoleReporter struct {
	out   io.Writer
	red   *color.Color
	mutex sync.Mutex
}

// NewConsoleReporter writes reports to out, or stderr when out is nil.
func NewConsoleReporter(out io.Writer) *ConsoleReporter {
	if out == nil {
		out = os.Stderr
	}
	return &ConsoleReporter{
		out: out,
		red: color.New(color.FgRed, color.Bold),
	}
}

// Report prints err.
func (c *ConsoleReporter) Report(_ context.Context, err error) {
	if err == nil {
		return
	}
	c.mutex.Lock()
	defer c.mutex.Unlock()

	fmt.Fprintln(c.out, "⚠️ ⚠️ ⚠️")
	c.red.Fprintln(c.out, err.Error())

	var buildErr *errors.BuildError
	if stderrors.As(err, &buildErr) && len(buildErr.Frame) > 0 {
		fmt.Fprintln(c.out, buildErr.CodeFrame())
	}
}

// NotifyFunc matches beeep.Notify.
type NotifyFunc func(title, message string, icon any) error

// DesktopReporter raises a desktop notification for each report.
type DesktopReporter struct {
	notify NotifyFunc
	logger logging.Logger
}

// NewDesktopReporter sends notifications with beeep.
func NewDesktopReporter(logger logging.Logger) *DesktopReporter {
	return NewDesktopReporterWith(beeep.Notify, logger)
}

// NewDesktopReporterWith sends notifications through fn.
func NewDesktopReporterWith(fn NotifyFunc, logger logging.Logger) *DesktopReporter {
	return &DesktopReporter{notify: fn, logger: logger}
}

// Report sends a notification titled with the failing file name.
func (d *DesktopReporter) Report(ctx context.Context, err error) {
	if err == nil {
		return
	}
	title, message := NotificationText(err)
	if notifyErr := d.notify(title, message, ""); notifyErr != nil && d.logger != nil {
		d.logger.Debug(ctx, "desktop notification failed", "error", notifyErr.Error())
	}
}

// NotificationText derives the notification title and body for err.
func NotificationText(err error) (title, message string) {
	var buildErr *errors.BuildError
	if stderrors.As(err, &buildErr) {
		return "Error: " + buildErr.ShortFile(), buildErr.Summary()
	}
	return "Error: ", errors.Summary(err.Error())
}

// ExitCode remembers that at least one failure was reported.
type ExitCode struct {
	code atomic.Int32
}

// Report marks the process as failed.
func (e *ExitCode) Report(context.Context, error) {
	e.code.Store(1)
}

// Code returns 1 once anything has been reported, 0 otherwise.
func (e *ExitCode) Code() int {
	return int(e.code.Load())
}
