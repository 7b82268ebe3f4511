package qdrant

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/yungbote/deepmed-backend/internal/pkg/envutil"
)

const DefaultNamespacePrefix = "dm"

type Config struct {
	URL             string `yaml:"url"`
	Collection      string `yaml:"collection"`
	NamespacePrefix string `yaml:"namespace_prefix"`
	VectorDim       int    `yaml:"vector_dim"`
	// CreateCollection creates a missing collection with cosine distance at startup.
	CreateCollection bool `yaml:"create_collection"`
}

type ConfigErrorCode string

const (
	ConfigErrorMissingURL        ConfigErrorCode = "missing_url"
	ConfigErrorInvalidURL        ConfigErrorCode = "invalid_url"
	ConfigErrorMissingCollection ConfigErrorCode = "missing_collection"
	ConfigErrorInvalidVectorDim  ConfigErrorCode = "invalid_vector_dim"
)

type ConfigError struct {
	Code  ConfigErrorCode
	Value string
	Cause error
}

func (e *ConfigError) Error() string {
	if e == nil {
		return "invalid qdrant config"
	}
	switch e.Code {
	case ConfigErrorMissingURL:
		return "QDRANT_URL is required"
	case ConfigErrorInvalidURL:
		return fmt.Sprintf("invalid QDRANT_URL=%q; expected absolute URL like http://qdrant:6333", e.Value)
	case ConfigErrorMissingCollection:
		return "QDRANT_COLLECTION is required"
	case ConfigErrorInvalidVectorDim:
		return fmt.Sprintf("invalid QDRANT_VECTOR_DIM=%q; expected positive integer", e.Value)
	default:
		return "invalid qdrant config"
	}
}

func (e *ConfigError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// ConfigFromEnv reads QDRANT_*; an empty QDRANT_URL yields a zero Config and no error, meaning vector
// search is disabled.
func ConfigFromEnv() (Config, error) {
	cfg := Config{
		URL:              envutil.String("QDRANT_URL", ""),
		Collection:       envutil.String("QDRANT_COLLECTION", "deepmed_chunks"),
		NamespacePrefix:  envutil.String("QDRANT_NAMESPACE_PREFIX", DefaultNamespacePrefix),
		VectorDim:        envutil.Int("QDRANT_VECTOR_DIM", 1536),
		CreateCollection: envutil.Bool("QDRANT_CREATE_COLLECTION", true),
	}
	if cfg.URL == "" {
		return Config{}, nil
	}
	if err := ValidateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Enabled() bool { return strings.TrimSpace(c.URL) != "" }

func ValidateConfig(cfg Config) error {
	if strings.TrimSpace(cfg.URL) == "" {
		return &ConfigError{Code: ConfigErrorMissingURL}
	}
	parsed, err := url.Parse(cfg.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return &ConfigError{Code: ConfigErrorInvalidURL, Value: cfg.URL, Cause: err}
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return &ConfigError{Code: ConfigErrorMissingCollection}
	}
	if cfg.VectorDim <= 0 {
		return &ConfigError{Code: ConfigErrorInvalidVectorDim, Value: strconv.Itoa(cfg.VectorDim)}
	}
	return nil
}
