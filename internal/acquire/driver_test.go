package acquire_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/acquire"
	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/couchcryptid/airquality-etl/internal/observability"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

// countingRunner wraps a real loop and counts invocations.
type countingRunner struct {
	inner acquire.Runner
	calls atomic.Int32
}

func (c *countingRunner) Run(ctx context.Context, stations []domain.Station, period domain.Period) acquire.Result {
	c.calls.Add(1)
	return c.inner.Run(ctx, stations, period)
}

// scriptedRunner returns canned results in order, repeating the last one.
type scriptedRunner struct {
	results []acquire.Result
	calls   atomic.Int32
	periods []domain.Period
	mu      sync.Mutex
}

func (s *scriptedRunner) Run(ctx context.Context, _ []domain.Station, period domain.Period) acquire.Result {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.periods = append(s.periods, period)
	s.mu.Unlock()

	if ctx.Err() != nil {
		return acquire.Result{Period: period, Outcome: domain.OutcomeCancelled, Err: ctx.Err()}
	}
	if n > len(s.results) {
		n = len(s.results)
	}
	res := s.results[n-1]
	res.Period = period
	return res
}

type mockRecorder struct {
	passes []domain.PassEvent
}

func (m *mockRecorder) RecordPass(_ context.Context, ev domain.PassEvent) error {
	m.passes = append(m.passes, ev)
	return nil
}

func complete() acquire.Result {
	return acquire.Result{Outcome: domain.OutcomeComplete}
}

func noProgress() acquire.Result {
	return acquire.Result{Outcome: domain.OutcomeFailed, Made: 3, Failures: 3, Err: acquire.ErrFailureBudget}
}

func progress() acquire.Result {
	return acquire.Result{Outcome: domain.OutcomeBudgetExhausted, Made: 2, Fetched: 2}
}

func noWait(attempts int) acquire.RetryPolicy {
	return acquire.RetryPolicy{MaxAttempts: attempts}
}

// --- tests ---

func TestDriver_RetryConvergence(t *testing.T) {
	base := t.TempDir()
	f := &mockFetcher{}
	runner := &countingRunner{inner: newLoop(f, testOptions(base, 2), observability.NewMetricsForTesting())}
	stations := roster("A1", "B2", "C3", "D4", "E5")

	d := acquire.NewDriver(runner, noWait(5), testLogger())
	require.NoError(t, d.Run(context.Background(), stations, []domain.Period{testPeriod}))

	assert.Equal(t, int32(3), runner.calls.Load())
	assert.Equal(t, []string{"A1", "B2", "C3", "D4", "E5"}, f.Calls())
	assert.Len(t, listDir(t, domain.ArtifactDir(base, testPeriod)), 5)
}

func TestDriver_MultiplePeriods(t *testing.T) {
	base := t.TempDir()
	f := &mockFetcher{}
	loop := newLoop(f, testOptions(base, 10), observability.NewMetricsForTesting())
	rec := &mockRecorder{}

	d := acquire.NewDriver(loop, noWait(3), testLogger(), acquire.WithPassRecorder(rec), acquire.WithDriverRunID("run-7"))
	require.NoError(t, d.Run(context.Background(), roster("A1", "B2"), []domain.Period{2017, 2018}))

	assert.Len(t, listDir(t, domain.ArtifactDir(base, 2017)), 2)
	assert.Len(t, listDir(t, domain.ArtifactDir(base, 2018)), 2)
	require.Len(t, rec.passes, 2)
	assert.Equal(t, domain.Period(2017), rec.passes[0].Period)
	assert.Equal(t, domain.Period(2018), rec.passes[1].Period)
	assert.Equal(t, "run-7", rec.passes[0].RunID)
	assert.Equal(t, "complete", rec.passes[1].Outcome)
	assert.Equal(t, 2, rec.passes[1].Fetched)
}

func TestDriver_AttemptsExhausted(t *testing.T) {
	runner := &scriptedRunner{results: []acquire.Result{noProgress()}}

	d := acquire.NewDriver(runner, noWait(3), testLogger())
	err := d.Run(context.Background(), roster("A1"), []domain.Period{testPeriod, 2019})

	require.Error(t, err)
	assert.ErrorIs(t, err, acquire.ErrAttemptsExhausted)
	assert.ErrorIs(t, err, acquire.ErrFailureBudget)
	var exhausted *acquire.AttemptsExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, testPeriod, exhausted.Period)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.Equal(t, domain.OutcomeFailed, exhausted.Last.Outcome)
	assert.Equal(t, int32(3), runner.calls.Load())
	// Later periods are not attempted.
	assert.NotContains(t, runner.periods, domain.Period(2019))
}

func TestDriver_ProgressResetsAttempts(t *testing.T) {
	runner := &scriptedRunner{results: []acquire.Result{
		noProgress(),
		noProgress(),
		progress(),
		noProgress(),
		noProgress(),
		complete(),
	}}
	rec := &mockRecorder{}

	d := acquire.NewDriver(runner, noWait(3), testLogger(), acquire.WithPassRecorder(rec))
	require.NoError(t, d.Run(context.Background(), roster("A1"), []domain.Period{testPeriod}))

	assert.Equal(t, int32(6), runner.calls.Load())
	require.Len(t, rec.passes, 6)
	for i, p := range rec.passes {
		assert.Equal(t, i+1, p.Attempt)
	}
	assert.Equal(t, "failed", rec.passes[0].Outcome)
	assert.Equal(t, acquire.ErrFailureBudget.Error(), rec.passes[0].Error)
	assert.Equal(t, "budget_exhausted", rec.passes[2].Outcome)
}

func TestDriver_CancelledPass(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &scriptedRunner{results: []acquire.Result{complete()}}

	d := acquire.NewDriver(runner, noWait(3), testLogger())
	err := d.Run(ctx, roster("A1"), []domain.Period{testPeriod})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), runner.calls.Load())
}

func TestDriver_CooldownBacksOffAndCaps(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clock := clockwork.NewFakeClock()
	runner := &scriptedRunner{results: []acquire.Result{noProgress(), noProgress(), noProgress(), complete()}}
	policy := acquire.RetryPolicy{Cooldown: 10 * time.Second, MaxCooldown: 15 * time.Second, MaxAttempts: 5}
	d := acquire.NewDriver(runner, policy, testLogger(), acquire.WithDriverClock(clock))

	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx, roster("A1"), []domain.Period{testPeriod})
	}()

	// First cooldown is the base value.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(10 * time.Second)

	// Second would be 20s but is capped at 15s.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(14 * time.Second)
	assert.Equal(t, int32(2), runner.calls.Load())
	clock.Advance(time.Second)

	// Third stays at the cap.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(15 * time.Second)

	select {
	case err := <-done:
		require.NoError(t, err)
		assert.Equal(t, int32(4), runner.calls.Load())
	case <-ctx.Done():
		t.Fatal("driver did not finish")
	}
}

func TestDriver_CancelledDuringCooldown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clock := clockwork.NewFakeClock()
	runner := &scriptedRunner{results: []acquire.Result{progress()}}
	policy := acquire.RetryPolicy{Cooldown: time.Minute, MaxCooldown: time.Hour, MaxAttempts: 5}
	d := acquire.NewDriver(runner, policy, testLogger(), acquire.WithDriverClock(clock))

	done := make(chan error, 1)
	go func() {
		done <- d.Run(ctx, roster("A1"), []domain.Period{testPeriod})
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clock.BlockUntilContext(waitCtx, 1))
	cancel()

	err := <-done
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, int32(1), runner.calls.Load())
}
