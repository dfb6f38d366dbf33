package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/couchcryptid/airquality-etl/internal/observability"
	"github.com/couchcryptid/airquality-etl/internal/reconcile"
	"github.com/couchcryptid/airquality-etl/internal/roster"
)

// Stage names, as reported in metrics and errors.
const (
	StageDataset   = "dataset"
	StageReconcile = "reconcile"
	StageAcquire   = "acquire"
	StageStaging   = "staging"
)

// DatasetProvider downloads the source dataset files to disk.
type DatasetProvider interface {
	Download(ctx context.Context, dataset string, files []string, destDir string) (domain.DatasetReport, error)
}

// Acquirer drives one period to completion.
type Acquirer interface {
	RunPeriod(ctx context.Context, stations []domain.Station, period domain.Period) error
}

// Stager uploads a local artifact directory to the target store.
type Stager interface {
	Stage(ctx context.Context, localDir, target string) ([]domain.StepResult, error)
}

// Options locates the pipeline inputs and outputs.
type Options struct {
	DataDir        string
	RosterPath     string
	ReadingsFile   string
	MetadataFile   string
	OutputDir      string
	Periods        []domain.Period
	Dataset        string
	DatasetFiles   []string
	ReconcileForce bool
	TargetDir      string // HDFS directory for weather artifacts, one sub-directory per period
	DatasetTarget  string // HDFS directory for the downloaded dataset files
}

// Pipeline runs the acquisition stages in order: dataset download and
// staging, roster reconciliation, weather acquisition, and per-period staging.
type Pipeline struct {
	opts     Options
	acquirer Acquirer
	dataset  DatasetProvider
	stager   Stager
	logger   *slog.Logger
	metrics  *observability.Metrics
	ready    atomic.Bool

	mu       sync.Mutex
	progress map[domain.Period]domain.PassEvent
}

// Option enables optional stages.
type Option func(*Pipeline)

// WithDataset enables the dataset download stage.
func WithDataset(p DatasetProvider) Option {
	return func(pl *Pipeline) { pl.dataset = p }
}

// WithStager enables the staging stage.
func WithStager(s Stager) Option {
	return func(pl *Pipeline) { pl.stager = s }
}

// New creates a Pipeline.
func New(opts Options, acquirer Acquirer, logger *slog.Logger, metrics *observability.Metrics, options ...Option) *Pipeline {
	p := &Pipeline{
		opts:     opts,
		acquirer: acquirer,
		logger:   logger,
		metrics:  metrics,
		progress: make(map[domain.Period]domain.PassEvent),
	}
	for _, o := range options {
		o(p)
	}
	return p
}

// CheckReadiness returns nil once at least one period has been fully acquired.
func (p *Pipeline) CheckReadiness(_ context.Context) error {
	if !p.ready.Load() {
		return errors.New("no period has been acquired yet")
	}
	return nil
}

// RecordPass keeps the latest pass of each period for progress reporting.
func (p *Pipeline) RecordPass(_ context.Context, ev domain.PassEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress[ev.Period] = ev
	return nil
}

// Progress returns the latest pass of each period, ordered by period.
func (p *Pipeline) Progress() []domain.PassEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.PassEvent, 0, len(p.progress))
	for _, ev := range p.progress {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period < out[j].Period })
	return out
}

// Run executes every enabled stage. The first failing stage stops the run.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info("pipeline started", "periods", len(p.opts.Periods), "output_dir", p.opts.OutputDir)
	p.metrics.AcquisitionRunning.Set(1)
	defer p.metrics.AcquisitionRunning.Set(0)

	if p.dataset != nil {
		if err := p.stage(StageDataset, func() error { return p.downloadDataset(ctx) }); err != nil {
			return err
		}
		if p.stager != nil {
			if err := p.stage(StageStaging, func() error { return p.stageDataset(ctx) }); err != nil {
				return err
			}
		}
	}

	if err := p.stage(StageReconcile, p.reconcileRoster); err != nil {
		return err
	}

	stations, err := roster.Load(p.opts.RosterPath)
	if err != nil {
		return fmt.Errorf("load roster: %w", err)
	}
	p.logger.Info("roster loaded", "stations", len(stations), "path", p.opts.RosterPath)

	for _, period := range p.opts.Periods {
		if err := p.stage(StageAcquire, func() error {
			return p.acquirer.RunPeriod(ctx, stations, period)
		}); err != nil {
			return err
		}
		p.ready.Store(true)

		if p.stager == nil {
			continue
		}
		if err := p.stage(StageStaging, func() error { return p.stagePeriod(ctx, period) }); err != nil {
			return err
		}
	}

	p.logger.Info("pipeline finished")
	return nil
}

func (p *Pipeline) stage(name string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.StageDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s stage: %w", name, err)
	}
	return nil
}

func (p *Pipeline) downloadDataset(ctx context.Context) error {
	report, err := p.dataset.Download(ctx, p.opts.Dataset, p.opts.DatasetFiles, p.opts.DataDir)
	if err != nil {
		return err
	}
	var total int64
	for _, f := range report.Files {
		total += f.Size
	}
	p.logger.Info("dataset ready",
		"dataset", p.opts.Dataset,
		"files", len(report.Files),
		"missing", len(report.Missing),
		"failed", len(report.Failed),
		"bytes", total,
	)
	return nil
}

// reconcileRoster builds the roster unless one already exists.
func (p *Pipeline) reconcileRoster() error {
	if !p.opts.ReconcileForce {
		_, err := os.Stat(p.opts.RosterPath)
		if err == nil {
			p.logger.Info("roster exists, skipping reconciliation", "path", p.opts.RosterPath)
			return nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("stat roster: %w", err)
		}
	}

	res, err := reconcile.Run(p.opts.ReadingsFile, p.opts.MetadataFile, p.opts.RosterPath)
	if err != nil {
		return err
	}
	for _, id := range res.Unmatched {
		p.logger.Warn("station not found in metadata", "station", id.Raw, "cleaned", id.Cleaned)
	}
	p.logger.Info("roster written", "path", p.opts.RosterPath, "matched", len(res.Rows), "unmatched", len(res.Unmatched))
	return nil
}

func (p *Pipeline) stageDataset(ctx context.Context) error {
	results, err := p.stager.Stage(ctx, p.opts.DataDir, p.opts.DatasetTarget)
	if err != nil {
		return err
	}
	p.logger.Info("dataset staged", "dataset", p.opts.Dataset, "target", p.opts.DatasetTarget, "steps", len(results))
	return nil
}

func (p *Pipeline) stagePeriod(ctx context.Context, period domain.Period) error {
	local := domain.ArtifactDir(p.opts.OutputDir, period)
	target := path.Join(p.opts.TargetDir, period.String())
	results, err := p.stager.Stage(ctx, local, target)
	if err != nil {
		return err
	}
	p.logger.Info("period staged", "period", period.String(), "target", target, "steps", len(results))
	return nil
}
