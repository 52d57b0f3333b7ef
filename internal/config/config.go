package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Scheme store backends.
const (
	StoreFile   = "file"
	StoreSQLite = "sqlite"
	StoreS3     = "s3"
)

// Cube input formats.
const (
	FormatJSON   = "json"
	FormatNetCDF = "netcdf"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	BatchSize       int

	// Scheme storage.
	SchemeStore     string
	SchemeDir       string
	SchemeCacheSize int
	SQLitePath      string
	S3Bucket        string
	S3Prefix        string
	S3Region        string
	S3Endpoint      string
	S3UsePathStyle  bool
	S3AccessKeyID   string
	S3SecretKey     string

	// Result sinks. ResultsDB is a SQLite path; empty disables it.
	ResultsDB         string
	KafkaEnabled      bool
	KafkaBrokers      []string
	KafkaResultsTopic string

	// Inputs.
	ParameterTable string
	CubeFormat     string
	NetCDFFields   []string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	cacheSize, err := parsePositiveInt("SCHEME_CACHE_SIZE", 16)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		HTTPAddr:        os.Getenv("HTTP_ADDR"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,
		BatchSize:       batchSize,

		SchemeStore:     strings.ToLower(sharedcfg.EnvOrDefault("SCHEME_STORE", StoreFile)),
		SchemeDir:       sharedcfg.EnvOrDefault("SCHEME_DIR", "schemes"),
		SchemeCacheSize: cacheSize,
		SQLitePath:      sharedcfg.EnvOrDefault("SQLITE_PATH", "vpc.db"),
		S3Bucket:        os.Getenv("S3_BUCKET"),
		S3Prefix:        sharedcfg.EnvOrDefault("S3_PREFIX", "schemes/"),
		S3Region:        sharedcfg.EnvOrDefault("S3_REGION", "eu-north-1"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3UsePathStyle:  os.Getenv("S3_USE_PATH_STYLE") == "true",
		S3AccessKeyID:   os.Getenv("S3_ACCESS_KEY_ID"),
		S3SecretKey:     os.Getenv("S3_SECRET_ACCESS_KEY"),

		ResultsDB:         os.Getenv("RESULTS_DB"),
		KafkaEnabled:      os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:      sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaResultsTopic: sharedcfg.EnvOrDefault("KAFKA_RESULTS_TOPIC", "vp-classifications"),

		ParameterTable: os.Getenv("PARAMETER_TABLE"),
		CubeFormat:     strings.ToLower(sharedcfg.EnvOrDefault("CUBE_FORMAT", FormatJSON)),
		NetCDFFields:   parseList(sharedcfg.EnvOrDefault("NETCDF_FIELDS", "ZH,ZDR,KDP")),
	}

	switch cfg.SchemeStore {
	case StoreFile, StoreSQLite:
	case StoreS3:
		if cfg.S3Bucket == "" {
			return nil, errors.New("SCHEME_STORE is s3 but S3_BUCKET is not set")
		}
	default:
		return nil, fmt.Errorf("invalid SCHEME_STORE %q: must be file, sqlite or s3", cfg.SchemeStore)
	}
	switch cfg.CubeFormat {
	case FormatJSON, FormatNetCDF:
	default:
		return nil, fmt.Errorf("invalid CUBE_FORMAT %q: must be json or netcdf", cfg.CubeFormat)
	}
	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaResultsTopic == "" {
			return nil, errors.New("KAFKA_RESULTS_TOPIC is required when KAFKA_ENABLED is true")
		}
	}

	return cfg, nil
}

func parsePositiveInt(key string, fallback int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s: must be a positive integer", key)
	}
	return n, nil
}

// parseList splits a comma-separated value, trimming blanks and dropping
// empty entries.
func parseList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
