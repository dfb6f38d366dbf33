// Command reconcile builds the station roster from a readings file header and
// the station metadata file.
//
// Usage:
//
//	go run ./cmd/reconcile \
//	  --readings data/joint_data_2017-2023/PM10_1g_joint_2017-2023.csv \
//	  --metadata data/stations_metadata.csv \
//	  --out data/stations_lat_long.csv
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/couchcryptid/airquality-etl/internal/reconcile"
	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
)

func main() {
	logger := slog.New(tint.NewHandler(os.Stderr, nil))
	if err := run(logger, os.Args[1:]); err != nil {
		logger.Error("reconcile failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("reconcile", pflag.ContinueOnError)
	readings := fs.StringP("readings", "r", "", "readings CSV whose header lists the station columns")
	metadata := fs.StringP("metadata", "m", "", "semicolon-separated station metadata CSV")
	out := fs.StringP("out", "o", "stations_lat_long.csv", "roster output path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *readings == "" || *metadata == "" {
		fs.Usage()
		return fmt.Errorf("missing required flags: --readings, --metadata")
	}

	res, err := reconcile.Run(*readings, *metadata, *out)
	if err != nil {
		return err
	}

	for _, id := range res.Unmatched {
		logger.Warn("no metadata for station", "column", id.Raw, "cleaned", id.Cleaned)
	}
	logger.Info("roster written", "path", *out, "stations", len(res.Rows), "unmatched", len(res.Unmatched))
	return nil
}
