package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/jonboulle/clockwork"
)

// ErrAttemptsExhausted matches the terminal error returned when a period
// stops making progress.
var ErrAttemptsExhausted = errors.New("retry attempts exhausted")

// Runner performs one pass over a roster for a period.
type Runner interface {
	Run(ctx context.Context, stations []domain.Station, period domain.Period) Result
}

// PassRecorder receives a summary of every pass.
type PassRecorder interface {
	RecordPass(ctx context.Context, ev domain.PassEvent) error
}

// RetryPolicy bounds the outer retry loop. The cooldown doubles after every
// pass that fetched nothing, up to MaxCooldown, and resets on progress.
type RetryPolicy struct {
	Cooldown    time.Duration
	MaxCooldown time.Duration
	MaxAttempts int
}

// AttemptsExhaustedError reports a period abandoned after MaxAttempts
// consecutive passes without progress.
type AttemptsExhaustedError struct {
	Period   domain.Period
	Attempts int
	Last     Result
}

func (e *AttemptsExhaustedError) Error() string {
	msg := fmt.Sprintf("period %s: %d consecutive passes without progress, last outcome %s",
		e.Period, e.Attempts, e.Last.Outcome)
	if e.Last.Err != nil {
		msg += ": " + e.Last.Err.Error()
	}
	return msg
}

func (e *AttemptsExhaustedError) Is(target error) bool {
	return target == ErrAttemptsExhausted
}

func (e *AttemptsExhaustedError) Unwrap() error {
	return e.Last.Err
}

// Driver re-runs passes for each period until the period is complete.
type Driver struct {
	runner    Runner
	policy    RetryPolicy
	clock     clockwork.Clock
	recorders []PassRecorder
	runID     string
	logger    *slog.Logger
}

// DriverOption customizes a Driver.
type DriverOption func(*Driver)

// WithDriverClock sets the clock used for cooldowns. Defaults to the real clock.
func WithDriverClock(c clockwork.Clock) DriverOption {
	return func(d *Driver) { d.clock = c }
}

// WithPassRecorder adds a recorder that receives every pass summary.
func WithPassRecorder(r PassRecorder) DriverOption {
	return func(d *Driver) { d.recorders = append(d.recorders, r) }
}

// WithDriverRunID tags pass events with the given run identifier.
func WithDriverRunID(id string) DriverOption {
	return func(d *Driver) { d.runID = id }
}

// NewDriver creates a retry driver around runner.
func NewDriver(runner Runner, policy RetryPolicy, logger *slog.Logger, opts ...DriverOption) *Driver {
	d := &Driver{
		runner: runner,
		policy: policy,
		clock:  clockwork.NewRealClock(),
		logger: logger,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Run completes every period in order. It returns ctx.Err() on cancellation
// and an *AttemptsExhaustedError when a period stops making progress.
func (d *Driver) Run(ctx context.Context, stations []domain.Station, periods []domain.Period) error {
	for _, p := range periods {
		if err := d.RunPeriod(ctx, stations, p); err != nil {
			return err
		}
	}
	return nil
}

// RunPeriod re-runs passes for one period until a pass completes.
func (d *Driver) RunPeriod(ctx context.Context, stations []domain.Station, period domain.Period) error {
	cooldown := d.policy.Cooldown
	streak := 0

	for attempt := 1; ; attempt++ {
		started := d.clock.Now()
		res := d.runner.Run(ctx, stations, period)
		d.record(ctx, period, attempt, res, started)

		switch res.Outcome {
		case domain.OutcomeComplete:
			d.logger.Info("period complete", "period", period.String(), "attempts", attempt)
			return nil
		case domain.OutcomeCancelled:
			if res.Err != nil {
				return res.Err
			}
			return ctx.Err()
		}

		if res.Fetched > 0 {
			streak = 0
			cooldown = d.policy.Cooldown
		} else {
			streak++
		}
		if streak >= d.policy.MaxAttempts {
			return &AttemptsExhaustedError{Period: period, Attempts: streak, Last: res}
		}

		d.logger.Warn("pass incomplete, retrying after cooldown",
			"period", period.String(),
			"attempt", attempt,
			"outcome", res.Outcome.String(),
			"cooldown", cooldown,
			"streak", streak,
		)
		if !sleepWithContext(ctx, d.clock, cooldown) {
			return ctx.Err()
		}
		if streak > 0 {
			cooldown = nextBackoff(cooldown, d.policy.MaxCooldown)
		}
	}
}

func (d *Driver) record(ctx context.Context, period domain.Period, attempt int, res Result, started time.Time) {
	if len(d.recorders) == 0 {
		return
	}
	ev := domain.PassEvent{
		RunID:      d.runID,
		Period:     period,
		Attempt:    attempt,
		Outcome:    res.Outcome.String(),
		Made:       res.Made,
		Skipped:    res.Skipped,
		Fetched:    res.Fetched,
		Failures:   res.Failures,
		StartedAt:  started.UTC(),
		FinishedAt: d.clock.Now().UTC(),
	}
	if res.Err != nil {
		ev.Error = res.Err.Error()
	}
	// Passes are recorded even when the run was cancelled.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultNotifyTimeout)
	defer cancel()
	for _, r := range d.recorders {
		if err := r.RecordPass(rctx, ev); err != nil {
			d.logger.Warn("record pass failed", "period", period.String(), "attempt", attempt, "error", err)
		}
	}
}

func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	next := current * 2
	if next > maxBackoff {
		return maxBackoff
	}
	return next
}
