package app

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/deepmed-backend/internal/data/db"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/platform/objectstore"
	"github.com/yungbote/deepmed-backend/internal/platform/qdrant"
)

type Clients struct {
	DB      *db.Service
	Redis   goredis.UniversalClient
	Objects objectstore.Store
	// Vectors is nil when QDRANT_URL is unset.
	Vectors qdrant.VectorStore
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")

	dbs, err := db.Open(cfg.DB, log)
	if err != nil {
		return Clients{}, fmt.Errorf("init db: %w", err)
	}
	if err := db.AutoMigrateAll(dbs.DB()); err != nil {
		_ = dbs.Close()
		return Clients{}, fmt.Errorf("db automigrate: %w", err)
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		_ = dbs.Close()
		return Clients{}, fmt.Errorf("init redis %s: %w", cfg.Redis.Addr, err)
	}

	objects, err := objectstore.New(ctx, log, cfg.Objects)
	if err != nil {
		_ = rdb.Close()
		_ = dbs.Close()
		return Clients{}, fmt.Errorf("init object store: %w", err)
	}

	c := Clients{DB: dbs, Redis: rdb, Objects: objects}
	if cfg.Qdrant.Enabled() {
		vs, err := qdrant.NewVectorStore(ctx, log, cfg.Qdrant)
		if err != nil {
			c.Close(log)
			return Clients{}, fmt.Errorf("init qdrant: %w", err)
		}
		c.Vectors = instrumentVectorStore(vs)
	} else {
		log.Warn("QDRANT_URL not set; retrieval runs on full-text ranking only")
	}
	return c, nil
}

func (c Clients) Close(log *logger.Logger) {
	if c.Objects != nil {
		if err := c.Objects.Close(); err != nil {
			log.Warn("object store close failed", "error", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil {
			log.Warn("redis close failed", "error", err)
		}
	}
	if c.DB != nil {
		if err := c.DB.Close(); err != nil {
			log.Warn("db close failed", "error", err)
		}
	}
}
