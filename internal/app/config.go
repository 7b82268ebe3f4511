package app

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yungbote/deepmed-backend/internal/data/db"
	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/observability"
	"github.com/yungbote/deepmed-backend/internal/pkg/envutil"
	"github.com/yungbote/deepmed-backend/internal/platform/embedding"
	"github.com/yungbote/deepmed-backend/internal/platform/objectstore"
	"github.com/yungbote/deepmed-backend/internal/platform/qdrant"
	"github.com/yungbote/deepmed-backend/internal/retrieval"
	"github.com/yungbote/deepmed-backend/internal/services"
)

type RedisConfig struct {
	Addr     string `yaml:"addr" validate:"required"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type QueueConfig struct {
	Prefix             string         `yaml:"prefix" validate:"required"`
	DefaultConcurrency int            `yaml:"default_concurrency" validate:"gte=1"`
	Concurrency        map[string]int `yaml:"concurrency"`
	PollInterval       time.Duration  `yaml:"poll_interval" validate:"gt=0"`
	MaxAttempts        int            `yaml:"max_attempts" validate:"gte=1"`
	BackoffBase        time.Duration  `yaml:"backoff_base" validate:"gt=0"`
	StatusCron         string         `yaml:"status_cron"`
}

type StreamConfig struct {
	RetryInterval time.Duration `yaml:"retry_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"`
	Grace         time.Duration `yaml:"grace"`
	SnapshotTTL   time.Duration `yaml:"snapshot_ttl"`
	// MemoryBus keeps progress in-process; only valid for a single instance.
	MemoryBus bool `yaml:"memory_bus"`
}

type Config struct {
	LogMode     string   `yaml:"log_mode"`
	Port        string   `yaml:"port" validate:"required,numeric"`
	CORSOrigins []string `yaml:"cors_origins"`

	DB          db.Config                `yaml:"db"`
	Redis       RedisConfig              `yaml:"redis"`
	Queue       QueueConfig              `yaml:"queue"`
	Stream      StreamConfig             `yaml:"stream"`
	Qdrant      qdrant.Config            `yaml:"qdrant"`
	Embedding   embedding.Config         `yaml:"embedding"`
	CacheTTL    time.Duration            `yaml:"embedding_cache_ttl"`
	Objects     objectstore.Config       `yaml:"objects"`
	MaxFileSize int64                    `yaml:"max_file_size" validate:"gte=0"`
	Weights     retrieval.Weights        `yaml:"retrieval_weights"`
	Otel        observability.OtelConfig `yaml:"otel"`
}

// LoadConfig reads .env (when present), then the environment, then the optional CONFIG_FILE YAML
// overlay, and validates the result.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := configFromEnv()
	if err != nil {
		return Config{}, err
	}
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		if err := overlayFile(&cfg, path); err != nil {
			return Config{}, err
		}
	}
	if err := validator.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	if err := validateQueueNames(cfg.Queue.Concurrency); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func configFromEnv() (Config, error) {
	qcfg, err := qdrant.ConfigFromEnv()
	if err != nil {
		return Config{}, err
	}

	concurrency := map[string]int{}
	for _, q := range queue.Names() {
		if n := envutil.Int(concurrencyEnv(q), 0); n > 0 {
			concurrency[string(q)] = n
		}
	}

	cfg := Config{
		LogMode:     envutil.String("LOG_MODE", "development"),
		Port:        envutil.String("PORT", "8080"),
		CORSOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),
		DB: db.Config{
			Driver:     strings.ToLower(envutil.String("DB_DRIVER", db.DialectPostgres)),
			Host:       envutil.String("POSTGRES_HOST", "localhost"),
			Port:       envutil.String("POSTGRES_PORT", "5432"),
			User:       envutil.String("POSTGRES_USER", "postgres"),
			Password:   envutil.String("POSTGRES_PASSWORD", ""),
			Name:       envutil.String("POSTGRES_NAME", "deepmed"),
			SSLMode:    envutil.String("POSTGRES_SSLMODE", "disable"),
			SQLitePath: envutil.String("SQLITE_PATH", ""),
		},
		Redis: RedisConfig{
			Addr:     envutil.String("REDIS_ADDR", "localhost:6379"),
			Password: envutil.String("REDIS_PASSWORD", ""),
			DB:       envutil.Int("REDIS_DB", 0),
		},
		Queue: QueueConfig{
			Prefix:             envutil.String("QUEUE_PREFIX", "deepmed"),
			DefaultConcurrency: envutil.Int("QUEUE_CONCURRENCY", 2),
			Concurrency:        concurrency,
			PollInterval:       envutil.Duration("QUEUE_POLL_INTERVAL", 250*time.Millisecond),
			MaxAttempts:        envutil.Int("QUEUE_MAX_ATTEMPTS", queue.DefaultMaxAttempts),
			BackoffBase:        envutil.Duration("QUEUE_BACKOFF_BASE", queue.DefaultBackoffBase),
			StatusCron:         envutil.String("QUEUE_STATUS_CRON", services.DefaultQueueStatusSchedule),
		},
		Stream: StreamConfig{
			RetryInterval: envutil.Duration("SSE_RETRY_INTERVAL", 5*time.Second),
			Heartbeat:     envutil.Duration("SSE_HEARTBEAT", 30*time.Second),
			Grace:         envutil.Duration("SSE_TERMINAL_GRACE", time.Second),
			SnapshotTTL:   envutil.Duration("PROGRESS_SNAPSHOT_TTL", time.Hour),
			MemoryBus:     envutil.Bool("PROGRESS_MEMORY_BUS", false),
		},
		Qdrant:      qcfg,
		Embedding:   embedding.ConfigFromEnv(),
		CacheTTL:    envutil.Duration("EMBEDDING_CACHE_TTL", 24*time.Hour),
		Objects:     objectstore.ConfigFromEnv(),
		MaxFileSize: int64(envutil.Int("MAX_FILE_SIZE_BYTES", 0)),
		Weights: retrieval.Weights{
			BM25:         envutil.Float("RETRIEVAL_BM25_WEIGHT", retrieval.DefaultWeights().BM25),
			Vector:       envutil.Float("RETRIEVAL_VECTOR_WEIGHT", retrieval.DefaultWeights().Vector),
			MinComposite: envutil.Float("RETRIEVAL_MIN_COMPOSITE", 0),
		},
		Otel: observability.OtelConfig{
			Enabled:     envutil.Bool("OTEL_ENABLED", false),
			ServiceName: envutil.String("OTEL_SERVICE_NAME", "deepmed-backend"),
			Environment: envutil.String("ENVIRONMENT", "development"),
			Version:     envutil.String("SERVICE_VERSION", ""),
			Endpoint:    envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:     observability.ParseHeaders(envutil.String("OTEL_EXPORTER_OTLP_HEADERS", "")),
			Insecure:    envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", false),
			SampleRatio: envutil.Float("OTEL_SAMPLER_RATIO", 1),
		},
	}
	return cfg, nil
}

// overlayFile applies a YAML file on top of cfg; keys absent from the file keep their env values.
func overlayFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func validateQueueNames(m map[string]int) error {
	for name := range m {
		if _, err := queue.ParseName(name); err != nil {
			return fmt.Errorf("queue concurrency: %w", err)
		}
	}
	return nil
}

// QUEUE_CONCURRENCY_PDF_PROCESSING, QUEUE_CONCURRENCY_DOCUMENT_INDEXING, ...
func concurrencyEnv(q queue.Name) string {
	return "QUEUE_CONCURRENCY_" + strings.ToUpper(strings.ReplaceAll(string(q), "-", "_"))
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c Config) concurrency() map[queue.Name]int {
	out := make(map[queue.Name]int, len(c.Queue.Concurrency))
	for name, n := range c.Queue.Concurrency {
		out[queue.Name(name)] = n
	}
	return out
}
