package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// BrowserUserAgent is sent on every upstream request; some endpoints reject
// default client signatures.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"

// Upstream endpoints.
const (
	DefaultUSGSInventoryURL = "https://nwis.waterdata.usgs.gov/nwis/inventory"
	DefaultUSGSIVURL        = "https://nwis.waterservices.usgs.gov/nwis/iv/"
	DefaultUSGSDVURL        = "https://waterservices.usgs.gov/nwis/dv/"
	DefaultNOAAURL          = "https://api.tidesandcurrents.noaa.gov/api/prod/datagetter"
	DefaultWQPURL           = "https://www.waterqualitydata.us/data"
)

// Config holds all process settings, populated from environment variables
// and an optional .env file.
type Config struct {
	OutputDir       string
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Fetch behaviour.
	FetchTimeout   time.Duration
	CatalogTimeout time.Duration
	WQPTimeout     time.Duration
	FetchAttempts  int
	RetryDelay     time.Duration
	Workers        int
	ChunkDays      int
	UserAgent      string

	// Upstream endpoints, overridable for testing and mirrors.
	USGSInventoryURL string
	USGSIVURL        string
	USGSDVURL        string
	NOAAURL          string
	WQPURL           string

	// Optional outputs.
	ParquetExport bool
	KafkaBrokers  []string
	KafkaTopic    string
}

// Load reads configuration from environment variables, applying defaults where unset.
// A .env file in the working directory is loaded first if present.
func Load() (*Config, error) {
	_ = godotenv.Load() // ignore missing file

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		OutputDir:        sharedcfg.EnvOrDefault("OUTPUT_DIR", "output"),
		HTTPAddr:         os.Getenv("HTTP_ADDR"),
		LogLevel:         sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:        sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:  shutdownTimeout,
		UserAgent:        sharedcfg.EnvOrDefault("USER_AGENT", BrowserUserAgent),
		USGSInventoryURL: sharedcfg.EnvOrDefault("USGS_INVENTORY_URL", DefaultUSGSInventoryURL),
		USGSIVURL:        sharedcfg.EnvOrDefault("USGS_IV_URL", DefaultUSGSIVURL),
		USGSDVURL:        sharedcfg.EnvOrDefault("USGS_DV_URL", DefaultUSGSDVURL),
		NOAAURL:          sharedcfg.EnvOrDefault("NOAA_URL", DefaultNOAAURL),
		WQPURL:           sharedcfg.EnvOrDefault("WQP_URL", DefaultWQPURL),
		KafkaTopic:       sharedcfg.EnvOrDefault("KAFKA_TOPIC", "hydrofetch-runs"),
	}

	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		cfg.KafkaBrokers = sharedcfg.ParseBrokers(raw)
	}

	durations := []struct {
		key string
		def string
		dst *time.Duration
	}{
		{"FETCH_TIMEOUT", "30s", &cfg.FetchTimeout},
		{"CATALOG_TIMEOUT", "60s", &cfg.CatalogTimeout},
		{"WQP_TIMEOUT", "600s", &cfg.WQPTimeout},
		{"RETRY_DELAY", "5s", &cfg.RetryDelay},
	}
	for _, d := range durations {
		v, err := parseDuration(d.key, d.def)
		if err != nil {
			return nil, err
		}
		*d.dst = v
	}

	ints := []struct {
		key string
		def int
		dst *int
	}{
		{"FETCH_ATTEMPTS", 3, &cfg.FetchAttempts},
		{"FETCH_WORKERS", DefaultWorkers(), &cfg.Workers},
		{"CHUNK_DAYS", 30, &cfg.ChunkDays},
	}
	for _, n := range ints {
		v, err := parsePositiveInt(n.key, n.def)
		if err != nil {
			return nil, err
		}
		*n.dst = v
	}

	parquet, err := strconv.ParseBool(sharedcfg.EnvOrDefault("PARQUET_EXPORT", "true"))
	if err != nil {
		return nil, errors.New("invalid PARQUET_EXPORT")
	}
	cfg.ParquetExport = parquet

	if cfg.OutputDir == "" {
		return nil, errors.New("OUTPUT_DIR is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// DefaultWorkers is min(8, available parallelism).
func DefaultWorkers() int {
	return min(8, runtime.GOMAXPROCS(0))
}

// ChunkSpan is the configured chunk length as a duration.
func (c *Config) ChunkSpan() time.Duration {
	return time.Duration(c.ChunkDays) * 24 * time.Hour
}

func parseDuration(key, def string) (time.Duration, error) {
	d, err := time.ParseDuration(sharedcfg.EnvOrDefault(key, def))
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return d, nil
}

func parsePositiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return n, nil
}
