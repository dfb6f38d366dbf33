package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/airquality-etl/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultDatasetFiles are the archive members extracted from the air-quality dataset.
var DefaultDatasetFiles = []string{
	"stations_metadata.csv",
	"joint_data_2017-2023/C6H6_1g_joint_2017-2023.csv",
	"joint_data_2017-2023/NO2_1g_joint_2017-2023.csv",
	"joint_data_2017-2023/PM10_1g_joint_2017-2023.csv",
	"joint_data_2017-2023/PM25_1g_joint_2017-2023.csv",
	"joint_data_2017-2023/SO2_1g_joint_2017-2023.csv",
}

// Config holds all pipeline settings, populated from environment variables.
type Config struct {
	LogLevel        string        `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat       string        `env:"LOG_FORMAT" validate:"oneof=json text"`
	MetricsAddr     string        `env:"METRICS_ADDR"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`

	// Inputs and outputs.
	DataDir      string          `env:"DATA_DIR" validate:"required"`
	RosterPath   string          `env:"ROSTER_PATH" validate:"required"`
	ReadingsFile string          `env:"READINGS_FILE" validate:"required"`
	MetadataFile string          `env:"METADATA_FILE" validate:"required"`
	OutputDir    string          `env:"OUTPUT_DIR" validate:"required"`
	Periods      []domain.Period `env:"PERIODS" validate:"min=1"`

	// Archive fetch loop.
	ArchiveBaseURL string        `env:"ARCHIVE_BASE_URL" validate:"required,url"`
	ArchiveTimeout time.Duration `env:"ARCHIVE_TIMEOUT" validate:"gt=0"`
	CallBudget     int           `env:"CALL_BUDGET" validate:"gt=0"`
	FailureBudget  int           `env:"FAILURE_BUDGET" validate:"gt=0"`
	RequestDelay   time.Duration `env:"REQUEST_DELAY" validate:"gte=0"`

	// Outer retry driver.
	RetryCooldown    time.Duration `env:"RETRY_COOLDOWN" validate:"gte=0"`
	RetryMaxCooldown time.Duration `env:"RETRY_MAX_COOLDOWN" validate:"gtefield=RetryCooldown"`
	RetryMaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" validate:"gt=0"`

	// Dataset provider.
	DatasetEnabled bool
	Dataset        string
	DatasetFiles   []string
	KaggleBaseURL  string `env:"KAGGLE_BASE_URL" validate:"required,url"`
	KaggleUsername string
	KaggleKey      string
	ReconcileForce bool

	// Bulk transfer to HDFS through the container runtime.
	StagingEnabled   bool
	StagingContainer string `env:"STAGING_CONTAINER" validate:"required"`
	StagingDir       string `env:"STAGING_DIR" validate:"required"`
	HDFSTargetDir    string `env:"HDFS_TARGET_DIR" validate:"required"`
	HDFSSourceDir    string `env:"HDFS_SOURCE_DIR" validate:"required"`
	HDFSReplication  int    `env:"HDFS_REPLICATION" validate:"gt=0"`

	// Optional sinks. Empty values disable them.
	KafkaBrokers []string
	KafkaTopic   string
	EventTimeout time.Duration `env:"EVENT_TIMEOUT" validate:"gt=0"`
	LedgerPath   string
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report env var names instead of struct field names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	periods, err := domain.ParsePeriods(sharedcfg.EnvOrDefault("PERIODS", "2017"))
	if err != nil {
		return nil, fmt.Errorf("invalid PERIODS: %w", err)
	}

	dataDir := sharedcfg.EnvOrDefault("DATA_DIR", "data")

	cfg := &Config{
		LogLevel:        strings.ToLower(sharedcfg.EnvOrDefault("LOG_LEVEL", "info")),
		LogFormat:       strings.ToLower(sharedcfg.EnvOrDefault("LOG_FORMAT", "json")),
		MetricsAddr:     os.Getenv("METRICS_ADDR"),
		ShutdownTimeout: shutdownTimeout,

		DataDir:      dataDir,
		RosterPath:   sharedcfg.EnvOrDefault("ROSTER_PATH", dataDir+"/stations_lat_long.csv"),
		ReadingsFile: sharedcfg.EnvOrDefault("READINGS_FILE", dataDir+"/joint_data_2017-2023/PM10_1g_joint_2017-2023.csv"),
		MetadataFile: sharedcfg.EnvOrDefault("METADATA_FILE", dataDir+"/stations_metadata.csv"),
		OutputDir:    sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),
		Periods:      periods,

		ArchiveBaseURL: sharedcfg.EnvOrDefault("ARCHIVE_BASE_URL", "https://archive-api.open-meteo.com/v1/archive"),

		Dataset:        sharedcfg.EnvOrDefault("KAGGLE_DATASET", "wisekinder/poland-air-quality-monitoring-dataset-2017-2023"),
		DatasetFiles:   parseList(sharedcfg.EnvOrDefault("DATASET_FILES", strings.Join(DefaultDatasetFiles, ","))),
		KaggleBaseURL:  sharedcfg.EnvOrDefault("KAGGLE_BASE_URL", "https://www.kaggle.com/api/v1"),
		KaggleUsername: os.Getenv("KAGGLE_USERNAME"),
		KaggleKey:      os.Getenv("KAGGLE_KEY"),

		StagingContainer: sharedcfg.EnvOrDefault("STAGING_CONTAINER", "master"),
		StagingDir:       sharedcfg.EnvOrDefault("STAGING_DIR", "/tmp/staging_data"),
		HDFSTargetDir:    sharedcfg.EnvOrDefault("HDFS_TARGET_DIR", "/user/hadoop/openmeteo"),
		HDFSSourceDir:    sharedcfg.EnvOrDefault("HDFS_SOURCE_DIR", "/source1"),

		KafkaBrokers: parseList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "openmeteo-artifacts"),
		LedgerPath:   os.Getenv("LEDGER_PATH"),
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"ARCHIVE_TIMEOUT", "30s", &cfg.ArchiveTimeout},
		{"REQUEST_DELAY", "200ms", &cfg.RequestDelay},
		{"RETRY_COOLDOWN", "10s", &cfg.RetryCooldown},
		{"RETRY_MAX_COOLDOWN", "5m", &cfg.RetryMaxCooldown},
		{"EVENT_TIMEOUT", "2s", &cfg.EventTimeout},
	}
	for _, d := range durations {
		v, err := time.ParseDuration(sharedcfg.EnvOrDefault(d.key, d.def))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = v
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"CALL_BUDGET", 130, &cfg.CallBudget},
		{"FAILURE_BUDGET", 10, &cfg.FailureBudget},
		{"RETRY_MAX_ATTEMPTS", 20, &cfg.RetryMaxAttempts},
		{"HDFS_REPLICATION", 3, &cfg.HDFSReplication},
	}
	for _, n := range ints {
		v, err := envInt(n.key, n.def)
		if err != nil {
			return nil, err
		}
		*n.dst = v
	}

	bools := []struct {
		key string
		dst *bool
	}{
		{"DATASET_ENABLED", &cfg.DatasetEnabled},
		{"RECONCILE_FORCE", &cfg.ReconcileForce},
		{"STAGING_ENABLED", &cfg.StagingEnabled},
	}
	for _, b := range bools {
		v, err := envBool(b.key)
		if err != nil {
			return nil, err
		}
		*b.dst = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid %s: failed %q check", fe.Field(), fe.Tag())
		}
		return err
	}

	if c.DatasetEnabled {
		if c.KaggleUsername == "" || c.KaggleKey == "" {
			return errors.New("DATASET_ENABLED is true but KAGGLE_USERNAME or KAGGLE_KEY is not set")
		}
		if len(c.DatasetFiles) == 0 {
			return errors.New("DATASET_FILES is required when DATASET_ENABLED is true")
		}
	}
	if len(c.KafkaBrokers) > 0 && c.KafkaTopic == "" {
		return errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	return nil
}

// SlogLevel maps LogLevel to a slog level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func envBool(key string) (bool, error) {
	s := os.Getenv(key)
	if s == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

func parseList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
