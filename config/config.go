package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration for the transform engine,
// loaded from the environment (and an optional .env file).
type Config struct {
	// Server
	Port        string
	Environment string

	// Watermark / metadata store (Postgres)
	Watermark WatermarkConfig

	// Partition cache tier-2 (Redis)
	Redis RedisConfig

	// Embedded analytical engine (SQLite stand-in)
	Engine EngineConfig

	// Observability: logging, tracing, metrics, alerts, export
	Monitoring MonitoringConfig

	// Partition detection and predicate generation
	Partition PartitionConfig

	// C8/C9 strategy and performance tuning
	Performance PerformanceConfig

	// C10 data quality thresholds
	Quality QualityConfig

	// HTTP API rate limiting
	RateLimit RateLimitConfig
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	BurstSize         int
}

type WatermarkConfig struct {
	Host        string
	Port        string
	Name        string
	User        string
	Password    string
	SSLMode     string
	MaxConns    int
	MigratePath string
}

func (w WatermarkConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		w.User, w.Password, w.Host, w.Port, w.Name, w.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	KeyPrefix string
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type EngineConfig struct {
	DataPath        string
	BusyTimeout     time.Duration
	MaxOpenFilePaths int
}

type MonitoringConfig struct {
	ServiceName    string
	LogLevel       string
	MetricsPerSeries int
	MetricsRetention time.Duration
	ExportPath     string
	ExportInterval time.Duration
	RealTimeInterval time.Duration
}

type PartitionConfig struct {
	CacheTTL           time.Duration
	DefaultGranularity string // spec.md §9 default: DAY
}

type PerformanceConfig struct {
	BulkThreshold int64
	MemoryLimitMB float64
}

type QualityConfig struct {
	CacheTTL           time.Duration
	FreshnessWindow    time.Duration
	NullRateThreshold  float64
}

// Load reads configuration from the environment, falling back to a local
// .env file when present (ignored if missing).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:        getEnv("PORT", "8090"),
		Environment: getEnv("ENVIRONMENT", "development"),

		Watermark: WatermarkConfig{
			Host:        getEnv("WATERMARK_DB_HOST", "localhost"),
			Port:        getEnv("WATERMARK_DB_PORT", "5432"),
			Name:        getEnv("WATERMARK_DB_NAME", "transform_engine"),
			User:        getEnv("WATERMARK_DB_USER", "postgres"),
			Password:    getEnv("WATERMARK_DB_PASSWORD", ""),
			SSLMode:     getEnv("WATERMARK_DB_SSL_MODE", "disable"),
			MaxConns:    getEnvAsInt("WATERMARK_DB_MAX_CONNS", 10),
			MigratePath: getEnv("WATERMARK_DB_MIGRATE_PATH", "./internal/watermark/migrations"),
		},

		Redis: RedisConfig{
			Host:      getEnv("REDIS_HOST", "localhost"),
			Port:      getEnv("REDIS_PORT", "6379"),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvAsInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", "transformengine:"),
		},

		Engine: EngineConfig{
			DataPath:         getEnv("ENGINE_DATA_PATH", "./data/engine.db"),
			BusyTimeout:      getEnvAsDuration("ENGINE_BUSY_TIMEOUT", 5*time.Second),
			MaxOpenFilePaths: getEnvAsInt("ENGINE_MAX_OPEN_FILE_PATHS", 64),
		},

		Monitoring: MonitoringConfig{
			ServiceName:      getEnv("SERVICE_NAME", "transformengine"),
			LogLevel:         getEnv("LOG_LEVEL", "info"),
			MetricsPerSeries: getEnvAsInt("METRICS_MAX_PER_SERIES", 1000),
			MetricsRetention: getEnvAsDuration("METRICS_RETENTION", 24*time.Hour),
			ExportPath:       getEnv("METRICS_EXPORT_PATH", "./data/metrics"),
			ExportInterval:   getEnvAsDuration("METRICS_EXPORT_INTERVAL", 60*time.Second),
			RealTimeInterval: getEnvAsDuration("MONITOR_SAMPLE_INTERVAL", 10*time.Second),
		},

		Partition: PartitionConfig{
			CacheTTL:           getEnvAsDuration("PARTITION_CACHE_TTL", 5*time.Minute),
			DefaultGranularity: getEnv("PARTITION_DEFAULT_GRANULARITY", "DAY"),
		},

		Performance: PerformanceConfig{
			BulkThreshold: int64(getEnvAsInt("PERF_BULK_THRESHOLD", 10000)),
			MemoryLimitMB: getEnvAsFloat("PERF_MEMORY_LIMIT_MB", 2048.0),
		},

		Quality: QualityConfig{
			CacheTTL:          getEnvAsDuration("QUALITY_CACHE_TTL", time.Minute),
			FreshnessWindow:   getEnvAsDuration("QUALITY_FRESHNESS_WINDOW", 24*time.Hour),
			NullRateThreshold: getEnvAsFloat("QUALITY_NULL_RATE_THRESHOLD", 0.10),
		},

		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvAsFloat("API_RATE_LIMIT_RPS", 10),
			BurstSize:         getEnvAsInt("API_RATE_LIMIT_BURST", 20),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present for the active
// environment.
func (c *Config) Validate() error {
	if c.Environment == "production" {
		if c.Watermark.Password == "" {
			log.Println("WARNING: WATERMARK_DB_PASSWORD not set in production")
		}
		if c.Performance.BulkThreshold <= 0 {
			return fmt.Errorf("PERF_BULK_THRESHOLD must be positive")
		}
	}
	return nil
}

// Helper functions

func getEnv(key string, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultVal
	}
	return value
}

func getEnvAsSlice(key string, defaultVal []string, sep string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	return strings.Split(valueStr, sep)
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultVal
	}
	if d, err := time.ParseDuration(valueStr); err == nil {
		return d
	}
	return defaultVal
}
