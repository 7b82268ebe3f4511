package app

import (
	"context"

	"github.com/yungbote/deepmed-backend/internal/http"
	httpH "github.com/yungbote/deepmed-backend/internal/http/handlers"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
	"github.com/yungbote/deepmed-backend/internal/realtime"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Progress *httpH.ProgressHandler
	Queue    *httpH.QueueHandler
	Search   *httpH.SearchHandler
	Validate *httpH.ValidateHandler
	Chunks   *httpH.ChunkHandler
}

func wireHandlers(log *logger.Logger, cfg Config, c Clients, r Repos, s Services) Handlers {
	log.Info("Wiring handlers...")
	checks := map[string]httpH.Check{
		"db": func(ctx context.Context) error {
			sqlDB, err := c.DB.DB().DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
		"redis": s.Orchestrator.Ping,
	}
	return Handlers{
		Health: httpH.NewHealthHandler(checks),
		Progress: httpH.NewProgressHandler(log, s.Bus, realtime.StreamOptions{
			RetryInterval: cfg.Stream.RetryInterval,
			Heartbeat:     cfg.Stream.Heartbeat,
			Grace:         cfg.Stream.Grace,
		}),
		Queue:    httpH.NewQueueHandler(log, s.Orchestrator),
		Search:   httpH.NewSearchHandler(s.Retriever),
		Validate: httpH.NewValidateHandler(s.Validator),
		Chunks:   httpH.NewChunkHandler(r.Chunk),
	}
}

func wireServer(log *logger.Logger, cfg Config, h Handlers) *http.Server {
	return http.NewServer(http.RouterConfig{
		Log:             log,
		ServiceName:     cfg.Otel.ServiceName,
		CORSOrigins:     cfg.CORSOrigins,
		HealthHandler:   h.Health,
		ProgressHandler: h.Progress,
		QueueHandler:    h.Queue,
		SearchHandler:   h.Search,
		ValidateHandler: h.Validate,
		ChunkHandler:    h.Chunks,
	})
}
