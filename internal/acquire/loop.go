package acquire

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/archive"
	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/couchcryptid/airquality-etl/internal/observability"
	"github.com/couchcryptid/airquality-etl/internal/tracker"
	"github.com/jonboulle/clockwork"
	"github.com/sony/gobreaker"
)

// ErrFailureBudget is reported when a pass aborts because too many calls failed.
var ErrFailureBudget = errors.New("failure budget exhausted")

// DefaultNotifyTimeout bounds each sink notification when Options.NotifyTimeout is unset.
const DefaultNotifyTimeout = 2 * time.Second

// Fetcher downloads the archive document for one request.
type Fetcher interface {
	Fetch(ctx context.Context, r archive.Request) ([]byte, error)
}

// ArtifactSink is notified after each artifact is persisted.
type ArtifactSink interface {
	ArtifactStored(ctx context.Context, ev domain.ArtifactEvent) error
}

// Options configures a fetch loop.
type Options struct {
	BaseURL       string
	OutputDir     string
	CallBudget    int
	FailureBudget int
	Delay         time.Duration
	NotifyTimeout time.Duration // bounds each ArtifactSink call
}

// Result reports one pass over the roster for one period.
type Result struct {
	Period   domain.Period
	Outcome  domain.Outcome
	Made     int // network calls attempted
	Skipped  int // stations whose artifact already existed
	Fetched  int // artifacts persisted this pass
	Failures int
	Err      error
}

// Loop walks a roster in order and fetches missing artifacts under a call
// budget and a failure budget.
type Loop struct {
	fetcher Fetcher
	opts    Options
	clock   clockwork.Clock
	sink    ArtifactSink
	runID   string
	logger  *slog.Logger
	metrics *observability.Metrics
}

// LoopOption customizes a Loop.
type LoopOption func(*Loop)

// WithClock sets the clock used for pacing. Defaults to the real clock.
func WithClock(c clockwork.Clock) LoopOption {
	return func(l *Loop) { l.clock = c }
}

// WithArtifactSink registers a sink for persisted artifacts.
func WithArtifactSink(s ArtifactSink) LoopOption {
	return func(l *Loop) { l.sink = s }
}

// WithRunID tags emitted artifact events with the given run identifier.
func WithRunID(id string) LoopOption {
	return func(l *Loop) { l.runID = id }
}

// NewLoop creates a fetch loop.
func NewLoop(f Fetcher, opts Options, logger *slog.Logger, metrics *observability.Metrics, options ...LoopOption) *Loop {
	l := &Loop{
		fetcher: f,
		opts:    opts,
		clock:   clockwork.NewRealClock(),
		logger:  logger,
		metrics: metrics,
	}
	for _, o := range options {
		o(l)
	}
	return l
}

// Run performs one pass over stations for period. Failures are reported in
// the Result, never returned as a Go error.
func (l *Loop) Run(ctx context.Context, stations []domain.Station, period domain.Period) Result {
	start := l.clock.Now()
	res := l.run(ctx, stations, period)

	l.metrics.Passes.WithLabelValues(res.Outcome.String()).Inc()
	l.metrics.PassDuration.Observe(l.clock.Since(start).Seconds())

	attrs := []any{
		"period", period.String(),
		"outcome", res.Outcome.String(),
		"made", res.Made,
		"skipped", res.Skipped,
		"fetched", res.Fetched,
		"failures", res.Failures,
		"roster", len(stations),
	}
	if res.Err != nil {
		attrs = append(attrs, "error", res.Err)
		l.logger.Warn("pass finished", attrs...)
	} else {
		l.logger.Info("pass finished", attrs...)
	}
	return res
}

func (l *Loop) run(ctx context.Context, stations []domain.Station, period domain.Period) Result {
	res := Result{Period: period}

	dir := domain.ArtifactDir(l.opts.OutputDir, period)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return failed(res, fmt.Errorf("create output dir: %w", err))
	}
	existing, err := tracker.Scan(dir)
	if err != nil {
		return failed(res, err)
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: "archive-" + period.String(),
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.TotalFailures >= uint32(l.opts.FailureBudget)
		},
	})

	var lastErr error
	delayDue := false
	for _, s := range stations {
		if ctx.Err() != nil {
			return cancelled(res, ctx.Err())
		}

		if existing.Exists(s, period) {
			res.Skipped++
			l.metrics.ArtifactsSkipped.Inc()
			l.logger.Debug("artifact exists, skipping",
				"station", s.OriginalID,
				"period", period.String(),
				"skipped", res.Skipped,
			)
			continue
		}

		if res.Made >= l.opts.CallBudget {
			l.logger.Info("call budget reached",
				"period", period.String(),
				"made", res.Made,
				"budget", l.opts.CallBudget,
			)
			if res.Failures > 0 {
				return failed(res, fmt.Errorf("%d of %d calls failed: %w", res.Failures, res.Made, lastErr))
			}
			res.Outcome = domain.OutcomeBudgetExhausted
			return res
		}

		if delayDue {
			if !l.sleep(ctx, l.opts.Delay) {
				return cancelled(res, ctx.Err())
			}
			delayDue = false
		}

		res.Made++
		n, err := l.fetchOne(ctx, cb, s, period, dir)
		if err != nil {
			if ctx.Err() != nil {
				return cancelled(res, ctx.Err())
			}
			res.Failures++
			lastErr = err
			l.metrics.FetchFailures.Inc()
			l.logger.Warn("fetch failed",
				"station", s.OriginalID,
				"period", period.String(),
				"failures", res.Failures,
				"error", err,
			)
			if cb.State() == gobreaker.StateOpen {
				return failed(res, fmt.Errorf("%w after %d failures: %w", ErrFailureBudget, res.Failures, lastErr))
			}
			continue
		}

		res.Fetched++
		delayDue = l.opts.Delay > 0
		l.metrics.ArtifactsFetched.Inc()
		l.logger.Info("artifact fetched",
			"station", s.OriginalID,
			"period", period.String(),
			"bytes", n,
			"made", res.Made,
			"budget", l.opts.CallBudget,
			"skipped", res.Skipped,
		)
		l.notify(ctx, s, period, n)
	}

	if res.Failures > 0 {
		return failed(res, fmt.Errorf("%d of %d calls failed: %w", res.Failures, res.Made, lastErr))
	}
	res.Outcome = domain.OutcomeComplete
	return res
}

// fetchOne downloads and persists one artifact inside the breaker, so write
// errors count toward the failure budget like network errors.
func (l *Loop) fetchOne(ctx context.Context, cb *gobreaker.CircuitBreaker, s domain.Station, period domain.Period, dir string) (int, error) {
	out, err := cb.Execute(func() (interface{}, error) {
		data, err := l.fetcher.Fetch(ctx, archive.BuildRequest(l.opts.BaseURL, s, period))
		if err != nil {
			return nil, err
		}
		if err := writeAtomic(dir, domain.ArtifactName(s.OriginalID, period), data); err != nil {
			return nil, err
		}
		return len(data), nil
	})
	if err != nil {
		return 0, err
	}
	n, _ := out.(int)
	return n, nil
}

func (l *Loop) notify(ctx context.Context, s domain.Station, period domain.Period, n int) {
	if l.sink == nil {
		return
	}
	ev := domain.ArtifactEvent{
		RunID:     l.runID,
		StationID: s.OriginalID,
		Period:    period,
		Path:      domain.ArtifactPath(l.opts.OutputDir, s, period),
		Bytes:     n,
		FetchedAt: l.clock.Now().UTC(),
	}
	timeout := l.opts.NotifyTimeout
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	nctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := l.sink.ArtifactStored(nctx, ev); err != nil {
		l.logger.Warn("artifact notification failed", "station", s.OriginalID, "period", period.String(), "error", err)
	}
}

func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	return sleepWithContext(ctx, l.clock, d)
}

func failed(res Result, err error) Result {
	res.Outcome = domain.OutcomeFailed
	res.Err = err
	return res
}

func cancelled(res Result, err error) Result {
	res.Outcome = domain.OutcomeCancelled
	res.Err = err
	return res
}

func sleepWithContext(ctx context.Context, clock clockwork.Clock, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	}
}
