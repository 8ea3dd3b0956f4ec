package services

import (
	"context"
	"time"

	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/pipeline"
)

// BuildService runs tasks once.
type BuildService struct {
	forge  *Forge
	logger logging.Logger
}

// NewBuildService creates a new build service
func NewBuildService(forge *Forge, logger logging.Logger) *BuildService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &BuildService{forge: forge, logger: logger}
}

// BuildResult contains the result of a build operation
type BuildResult struct {
	Results  pipeline.Results
	Duration time.Duration
	// ExitCode is non-zero when a task failed or a compile error was
	// reported.
	ExitCode int
}

// Build runs the build task: every asset task in order, stopping at the
// first fatal failure.
func (s *BuildService) Build(ctx context.Context) (*BuildResult, error) {
	return s.Run(ctx, TaskBuild)
}

// Run runs targets and their prerequisites once.
func (s *BuildService) Run(ctx context.Context, targets ...string) (*BuildResult, error) {
	start := time.Now()
	results, err := s.forge.Runner(false).Run(ctx, targets...)

	result := &BuildResult{
		Results:  results,
		Duration: time.Since(start),
		ExitCode: s.forge.ExitCode(),
	}
	if err != nil {
		result.ExitCode = 1
		return result, err
	}

	s.logger.Info(ctx, "done",
		"tasks", len(results),
		"reported", results.Reported(),
		"duration", result.Duration.Round(time.Millisecond).String(),
	)
	return result, nil
}
