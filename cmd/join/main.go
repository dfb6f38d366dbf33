// Command join pairs pollutant readings with the acquired weather artifacts
// by station and hour, producing one flat CSV ready for analysis.
//
// Usage:
//
//	go run ./cmd/join \
//	  --readings data/joint_data_2017-2023/PM10_1g_joint_2017-2023.csv \
//	  --readings data/joint_data_2017-2023/NO2_1g_joint_2017-2023.csv \
//	  --artifacts output \
//	  --periods 2017-2018 \
//	  --out joined.csv
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	"github.com/couchcryptid/airquality-etl/internal/join"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, nil))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, os.Args[1:]); err != nil {
		logger.Error("join failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("join", pflag.ContinueOnError)
	readings := fs.StringArrayP("readings", "r", nil, "pollutant readings CSV (repeatable)")
	artifacts := fs.StringP("artifacts", "a", "output", "weather artifact base directory")
	periodSpec := fs.StringP("periods", "p", "2017", "periods to join, e.g. 2017,2019 or 2017-2023")
	out := fs.StringP("out", "o", "joined.csv", "joined CSV output path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if len(*readings) == 0 {
		fs.Usage()
		return fmt.Errorf("missing required flag: --readings")
	}

	periods, err := domain.ParsePeriods(*periodSpec)
	if err != nil {
		return fmt.Errorf("invalid --periods: %w", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	res, err := join.Run(ctx, join.Options{
		ReadingsFiles: *readings,
		ArtifactDir:   *artifacts,
		Periods:       periods,
	}, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close output: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(*out)
		return err
	}

	logger.Info("join written",
		"path", *out,
		"rows", res.Joined,
		"unmatched", res.Unmatched,
		"skipped", res.Skipped,
		"stations", res.Stations,
	)
	return nil
}
