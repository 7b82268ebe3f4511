package objectstore

import (
	"context"
	"fmt"
	"io"
	"mime"
	"path"
	"strings"

	"github.com/yungbote/deepmed-backend/internal/pkg/envutil"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

type Mode string

const (
	ModeLocal       Mode = "local"
	ModeGCS         Mode = "gcs"
	ModeGCSEmulator Mode = "gcs_emulator"
)

// Store holds raw uploaded files, addressed by the document's storage key. Missing objects surface as
// errors wrapping pkg/errors.ErrNotFound.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

type Config struct {
	Mode         Mode   `yaml:"mode" validate:"oneof=local gcs gcs_emulator"`
	LocalDir     string `yaml:"local_dir"`
	Bucket       string `yaml:"bucket"`
	EmulatorHost string `yaml:"emulator_host"`
}

func ConfigFromEnv() Config {
	cfg := Config{
		Mode:         Mode(strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", string(ModeLocal)))),
		LocalDir:     envutil.String("LOCAL_STORAGE_DIR", "./data/objects"),
		Bucket:       envutil.String("MATERIAL_GCS_BUCKET_NAME", ""),
		EmulatorHost: envutil.String("STORAGE_EMULATOR_HOST", ""),
	}
	return cfg
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	switch cfg.Mode {
	case ModeLocal, "":
		return NewLocalStore(log, cfg.LocalDir)
	case ModeGCS, ModeGCSEmulator:
		return NewGCSStore(ctx, log, cfg)
	default:
		return nil, fmt.Errorf("invalid OBJECT_STORAGE_MODE=%q (allowed: %q, %q, %q)", cfg.Mode, ModeLocal, ModeGCS, ModeGCSEmulator)
	}
}

func contentTypeForKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".md", ".markdown":
		return "text/markdown; charset=utf-8"
	case ".txt":
		return "text/plain; charset=utf-8"
	case "":
		return ""
	}
	return mime.TypeByExtension(path.Ext(key))
}

func cleanKey(key string) (string, error) {
	k := strings.TrimLeft(strings.TrimSpace(key), "/")
	if k == "" {
		return "", fmt.Errorf("object key required")
	}
	k = path.Clean(k)
	if k == ".." || strings.HasPrefix(k, "../") {
		return "", fmt.Errorf("object key %q escapes the store", key)
	}
	return k, nil
}
