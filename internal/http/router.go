package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/deepmed-backend/internal/http/handlers"
	httpMW "github.com/yungbote/deepmed-backend/internal/http/middleware"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	ServiceName string
	CORSOrigins []string

	HealthHandler   *httpH.HealthHandler
	ProgressHandler *httpH.ProgressHandler
	QueueHandler    *httpH.QueueHandler
	SearchHandler   *httpH.SearchHandler
	ValidateHandler *httpH.ValidateHandler
	ChunkHandler    *httpH.ChunkHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
		r.GET("/readyz", cfg.HealthHandler.Ready)
	}

	api := r.Group("/api")
	{
		// Progress (SSE)
		if cfg.ProgressHandler != nil {
			api.GET("/documents/:id/progress", cfg.ProgressHandler.DocumentProgress)
			api.GET("/tasks/:id/stream", cfg.ProgressHandler.TaskStream)
		}

		// Queues
		if cfg.QueueHandler != nil {
			api.GET("/queue/health", cfg.QueueHandler.Health)
			api.GET("/queue/:queue/status", cfg.QueueHandler.Status)
			api.GET("/queue/:queue/jobs/:id", cfg.QueueHandler.GetJob)
			api.POST("/queue/:queue/jobs", cfg.QueueHandler.AddJob)
		}

		if cfg.SearchHandler != nil {
			api.POST("/search", cfg.SearchHandler.Search)
		}
		if cfg.ValidateHandler != nil {
			api.POST("/validate", cfg.ValidateHandler.Validate)
		}

		// Chunk availability
		if cfg.ChunkHandler != nil {
			api.GET("/documents/:id/chunks", cfg.ChunkHandler.ListForDocument)
			api.PATCH("/chunks/availability", cfg.ChunkHandler.SetAvailability)
		}
	}

	return r
}
