package observability

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/config"
	"github.com/lmittmann/tint"
)

// NewLogger builds the process logger. JSON goes to stdout for collectors;
// the text format is colourised for terminals.
func NewLogger(cfg *config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg *config.Config) *slog.Logger {
	if cfg.LogFormat == "text" {
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      cfg.SlogLevel(),
			TimeFormat: time.TimeOnly,
		}))
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	}))
}
