// Command acquire runs the full acquisition pipeline: optional dataset
// download, roster reconciliation, weather archive acquisition for every
// configured period, and optional staging into HDFS.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/airquality-etl/internal/acquire"
	"github.com/couchcryptid/airquality-etl/internal/adapter/httpadapter"
	kafkaadapter "github.com/couchcryptid/airquality-etl/internal/adapter/kafka"
	"github.com/couchcryptid/airquality-etl/internal/adapter/kaggle"
	"github.com/couchcryptid/airquality-etl/internal/adapter/ledger"
	"github.com/couchcryptid/airquality-etl/internal/adapter/staging"
	"github.com/couchcryptid/airquality-etl/internal/archive"
	"github.com/couchcryptid/airquality-etl/internal/config"
	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/couchcryptid/airquality-etl/internal/observability"
	"github.com/couchcryptid/airquality-etl/internal/pipeline"
	"github.com/google/uuid"
)

// recorderFunc adapts a function to acquire.PassRecorder.
type recorderFunc func(ctx context.Context, ev domain.PassEvent) error

func (f recorderFunc) RecordPass(ctx context.Context, ev domain.PassEvent) error {
	return f(ctx, ev)
}

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	runID := uuid.NewString()
	logger = logger.With("run_id", runID)

	var (
		loopOpts   = []acquire.LoopOption{acquire.WithRunID(runID)}
		driverOpts = []acquire.DriverOption{acquire.WithDriverRunID(runID)}
		closers    []func() error
	)

	if len(cfg.KafkaBrokers) > 0 {
		pub := kafkaadapter.NewPublisher(cfg, logger, metrics)
		loopOpts = append(loopOpts, acquire.WithArtifactSink(pub))
		driverOpts = append(driverOpts, acquire.WithPassRecorder(pub))
		closers = append(closers, pub.Close)
		logger.Info("kafka events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	if cfg.LedgerPath != "" {
		l, err := ledger.Open(cfg.LedgerPath)
		if err != nil {
			logger.Error("failed to open ledger", "path", cfg.LedgerPath, "error", err)
			return 1
		}
		driverOpts = append(driverOpts, acquire.WithPassRecorder(l))
		closers = append(closers, l.Close)
		logger.Info("pass ledger enabled", "path", cfg.LedgerPath)
	}

	// The pipeline keeps per-period progress for the HTTP endpoint, but it is
	// built after the driver it wraps.
	var p *pipeline.Pipeline
	driverOpts = append(driverOpts, acquire.WithPassRecorder(recorderFunc(func(ctx context.Context, ev domain.PassEvent) error {
		return p.RecordPass(ctx, ev)
	})))

	client := archive.NewClient(cfg.ArchiveTimeout, metrics, logger)
	loop := acquire.NewLoop(client, acquire.Options{
		BaseURL:       cfg.ArchiveBaseURL,
		OutputDir:     cfg.OutputDir,
		CallBudget:    cfg.CallBudget,
		FailureBudget: cfg.FailureBudget,
		Delay:         cfg.RequestDelay,
		NotifyTimeout: cfg.EventTimeout,
	}, logger, metrics, loopOpts...)
	driver := acquire.NewDriver(loop, acquire.RetryPolicy{
		Cooldown:    cfg.RetryCooldown,
		MaxCooldown: cfg.RetryMaxCooldown,
		MaxAttempts: cfg.RetryMaxAttempts,
	}, logger, driverOpts...)

	var pipelineOpts []pipeline.Option
	if cfg.DatasetEnabled {
		pipelineOpts = append(pipelineOpts, pipeline.WithDataset(
			kaggle.NewClient(cfg.KaggleBaseURL, cfg.KaggleUsername, cfg.KaggleKey, logger),
		))
		logger.Info("dataset download enabled", "dataset", cfg.Dataset, "files", len(cfg.DatasetFiles))
	} else {
		logger.Info("dataset download disabled")
	}

	if cfg.StagingEnabled {
		rt, err := staging.NewDockerRuntime()
		if err != nil {
			logger.Error("failed to create docker client", "error", err)
			return 1
		}
		closers = append(closers, rt.Close)
		pipelineOpts = append(pipelineOpts, pipeline.WithStager(staging.NewStager(rt, staging.Config{
			Container:   cfg.StagingContainer,
			StagingDir:  cfg.StagingDir,
			Replication: cfg.HDFSReplication,
		}, logger, metrics)))
		logger.Info("hdfs staging enabled", "container", cfg.StagingContainer, "target", cfg.HDFSTargetDir)
	} else {
		logger.Info("hdfs staging disabled")
	}

	p = pipeline.New(pipeline.Options{
		DataDir:        cfg.DataDir,
		RosterPath:     cfg.RosterPath,
		ReadingsFile:   cfg.ReadingsFile,
		MetadataFile:   cfg.MetadataFile,
		OutputDir:      cfg.OutputDir,
		Periods:        cfg.Periods,
		Dataset:        cfg.Dataset,
		DatasetFiles:   cfg.DatasetFiles,
		ReconcileForce: cfg.ReconcileForce,
		TargetDir:      cfg.HDFSTargetDir,
		DatasetTarget:  cfg.HDFSSourceDir,
	}, driver, logger, metrics, pipelineOpts...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var srv *httpadapter.Server
	if cfg.MetricsAddr != "" {
		srv = httpadapter.NewServer(cfg.MetricsAddr, p, p, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "error", err)
			}
		}()
	}

	runErr := p.Run(ctx)

	code := 0
	switch {
	case runErr == nil:
		logger.Info("acquisition complete", "periods", len(cfg.Periods))
	case errors.Is(runErr, context.Canceled):
		logger.Warn("acquisition interrupted", "error", runErr)
		code = 130
	default:
		logger.Error("acquisition failed", "error", runErr)
		code = 1
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown error", "error", err)
		}
	}
	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
	return code
}
