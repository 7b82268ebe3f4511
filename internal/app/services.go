package app

import (
	"fmt"

	"github.com/yungbote/deepmed-backend/internal/data/repos"
	"github.com/yungbote/deepmed-backend/internal/ingestion/extractor"
	"github.com/yungbote/deepmed-backend/internal/ingestion/pipeline"
	"github.com/yungbote/deepmed-backend/internal/jobs/orchestrator"
	"github.com/yungbote/deepmed-backend/internal/jobs/queue"
	"github.com/yungbote/deepmed-backend/internal/jobs/runtime"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/platform/embedding"
	"github.com/yungbote/deepmed-backend/internal/realtime/bus"
	"github.com/yungbote/deepmed-backend/internal/retrieval"
	"github.com/yungbote/deepmed-backend/internal/services"
	"github.com/yungbote/deepmed-backend/internal/validation"
)

type Repos struct {
	KnowledgeBase   repos.KnowledgeBaseRepo
	Document        repos.DocumentRepo
	Chunk           repos.ChunkRepo
	ProviderSetting repos.ProviderSettingRepo
}

func wireRepos(c Clients, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	db := c.DB.DB()
	return Repos{
		KnowledgeBase:   repos.NewKnowledgeBaseRepo(db, log),
		Document:        repos.NewDocumentRepo(db, log),
		Chunk:           repos.NewChunkRepo(db, log),
		ProviderSetting: repos.NewProviderSettingRepo(db, log),
	}
}

type Services struct {
	Bus          bus.Bus
	Orchestrator *orchestrator.Orchestrator
	Progress     services.ProgressReporter
	Notifier     services.JobNotifier
	QueueStatus  *services.QueueStatusReporter
	Embeddings   *embedding.Provider
	Retriever    *retrieval.Retriever
	Validator    *validation.Validator
}

func wireServices(log *logger.Logger, cfg Config, c Clients, r Repos) (Services, error) {
	log.Info("Wiring services...")

	var progressBus bus.Bus
	if cfg.Stream.MemoryBus {
		log.Warn("Progress bus is in-memory; streams only see jobs run by this instance")
		progressBus = bus.NewMemoryBus(log)
	} else {
		b, err := bus.NewRedisBus(c.Redis, cfg.Stream.SnapshotTTL, log)
		if err != nil {
			return Services{}, fmt.Errorf("init progress bus: %w", err)
		}
		progressBus = b
	}

	store := queue.NewStore(c.Redis, cfg.Queue.Prefix, log)
	registry := runtime.NewRegistry()
	orch := orchestrator.New(store, registry, log, orchestrator.Config{
		Concurrency:        cfg.concurrency(),
		DefaultConcurrency: cfg.Queue.DefaultConcurrency,
		PollInterval:       cfg.Queue.PollInterval,
		Policy: queue.RetryPolicy{
			MaxAttempts: cfg.Queue.MaxAttempts,
			BackoffBase: cfg.Queue.BackoffBase,
		},
		OnEnqueued: services.NewQueuedPublisher(log, progressBus),
	})

	progress := services.NewProgressReporter(log, r.Document, progressBus)
	notifier := services.NewJobNotifier(log, progressBus, progress)

	embeddings := embedding.NewProvider(log, cfg.Embedding, r.ProviderSetting, nil)

	fused := retrieval.NewFusedSearcher(log, r.Chunk, c.Vectors)
	cache := retrieval.NewRedisEmbeddingCache(c.Redis, cfg.Queue.Prefix+":embedding", cfg.CacheTTL, embeddings.Model)
	retriever := retrieval.NewRetriever(log, r.Chunk, embeddings, fused, cache, cfg.Weights)

	deps := pipeline.Deps{
		Log:       log,
		Docs:      r.Document,
		KBs:       r.KnowledgeBase,
		Chunks:    r.Chunk,
		Objects:   c.Objects,
		Extractor: extractor.New(log, extractor.Options{MaxBytes: cfg.MaxFileSize}),
		Progress:  progress,
		Enqueuer:  orch,
		Embedder:  embeddings,
	}
	if c.Vectors != nil {
		deps.Vectors = c.Vectors
	}
	if err := pipeline.Register(registry, deps); err != nil {
		return Services{}, fmt.Errorf("register job handlers: %w", err)
	}

	return Services{
		Bus:          progressBus,
		Orchestrator: orch,
		Progress:     progress,
		Notifier:     notifier,
		QueueStatus:  services.NewQueueStatusReporter(log, orch),
		Embeddings:   embeddings,
		Retriever:    retriever,
		Validator:    validation.New(validation.Options{}),
	}, nil
}
