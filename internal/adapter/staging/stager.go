package staging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/couchcryptid/airquality-etl/internal/observability"
)

// ExecResult is the outcome of a command run inside the container.
type ExecResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runtime is the container runtime surface the stager needs.
type Runtime interface {
	Exec(ctx context.Context, container string, cmd []string) (ExecResult, error)
	CopyDir(ctx context.Context, container, src, dst string) error
}

// StepError reports the step that stopped a transfer.
type StepError struct {
	Step     string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *StepError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("staging step %s: %v", e.Step, e.Err)
	}
	return fmt.Sprintf("staging step %s: exit code %d: %s", e.Step, e.ExitCode, strings.TrimSpace(e.Stderr))
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Stager runs transfer plans against a container runtime.
type Stager struct {
	rt      Runtime
	cfg     Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewStager creates a Stager.
func NewStager(rt Runtime, cfg Config, logger *slog.Logger, metrics *observability.Metrics) *Stager {
	return &Stager{rt: rt, cfg: cfg, logger: logger, metrics: metrics}
}

// Stage uploads localDir into the HDFS directory target. Steps run strictly
// in order and each one only runs if the previous one exited cleanly.
func (s *Stager) Stage(ctx context.Context, localDir, target string) ([]domain.StepResult, error) {
	steps := Plan(localDir, target, s.cfg)
	results := make([]domain.StepResult, 0, len(steps))

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return results, &StepError{Step: step.Name, Err: err}
		}

		s.logger.Info("staging step started", "step", step.Name, "container", s.cfg.Container)
		start := time.Now()
		res, err := s.run(ctx, step)
		res.Duration = time.Since(start)
		results = append(results, res)

		if err == nil && res.ExitCode != 0 {
			err = &StepError{Step: step.Name, ExitCode: res.ExitCode, Stderr: res.Stderr}
		}
		if err != nil {
			var se *StepError
			if !errors.As(err, &se) {
				err = &StepError{Step: step.Name, ExitCode: res.ExitCode, Stderr: res.Stderr, Err: err}
			}
			s.metrics.StagingSteps.WithLabelValues(step.Name, "error").Inc()
			s.logger.Error("staging step failed", "step", step.Name, "exit_code", res.ExitCode, "error", err)
			return results, err
		}

		s.metrics.StagingSteps.WithLabelValues(step.Name, "success").Inc()
		s.logger.Info("staging step finished", "step", step.Name, "duration", res.Duration)
	}
	return results, nil
}

func (s *Stager) run(ctx context.Context, step Step) (domain.StepResult, error) {
	res := domain.StepResult{Step: step.Name}
	if step.IsCopy() {
		return res, s.rt.CopyDir(ctx, s.cfg.Container, step.Src, step.Dst)
	}

	out, err := s.rt.Exec(ctx, s.cfg.Container, step.Cmd)
	res.ExitCode = out.ExitCode
	res.Stdout = out.Stdout
	res.Stderr = out.Stderr
	return res, err
}
