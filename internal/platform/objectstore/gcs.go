package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"

	pkgerrors "github.com/yungbote/deepmed-backend/internal/pkg/errors"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

type gcsStore struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

func NewGCSStore(ctx context.Context, log *logger.Logger, cfg Config) (Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("missing env var MATERIAL_GCS_BUCKET_NAME")
	}
	var opts []option.ClientOption
	switch cfg.Mode {
	case ModeGCSEmulator:
		host := strings.TrimRight(strings.TrimSpace(cfg.EmulatorHost), "/")
		if host == "" {
			return nil, fmt.Errorf("OBJECT_STORAGE_MODE=%q requires STORAGE_EMULATOR_HOST", ModeGCSEmulator)
		}
		_ = os.Setenv("STORAGE_EMULATOR_HOST", host)
		opts = append(opts, option.WithoutAuthentication())
	default:
		opts = append(clientOptionsFromEnv(), option.WithScopes(storage.ScopeReadWrite))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	s := &gcsStore{log: log.With("service", "GCSObjectStore"), client: client, bucket: cfg.Bucket}
	s.log.Info("Object storage initialized", "mode", cfg.Mode, "bucket", cfg.Bucket, "emulator_host", cfg.EmulatorHost)
	return s, nil
}

func clientOptionsFromEnv() []option.ClientOption {
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

func (s *gcsStore) Put(ctx context.Context, key string, r io.Reader, contentType string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(k).NewWriter(ctx)
	if contentType == "" {
		contentType = contentTypeForKey(k)
	}
	w.ContentType = contentType
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to write data to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return nil
}

func (s *gcsStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	k, err := cleanKey(key)
	if err != nil {
		return nil, err
	}
	rc, err := s.client.Bucket(s.bucket).Object(k).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("object %s: %w", key, pkgerrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open GCS object: %w", err)
	}
	return rc, nil
}

func (s *gcsStore) Delete(ctx context.Context, key string) error {
	k, err := cleanKey(key)
	if err != nil {
		return err
	}
	err = s.client.Bucket(s.bucket).Object(k).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete GCS object: %w", err)
	}
	return nil
}

func (s *gcsStore) Close() error { return s.client.Close() }
