package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yungbote/deepmed-backend/internal/http"
	"github.com/yungbote/deepmed-backend/internal/observability"
	"github.com/yungbote/deepmed-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *http.Server

	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
	notifierDone chan struct{}
	closeOnce    sync.Once
}

func New(ctx context.Context) (*App, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		log.Sync()
		return nil, err
	}
	reposet := wireRepos(clients, log)
	serviceset, err := wireServices(log, cfg, clients, reposet)
	if err != nil {
		clients.Close(log)
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, cfg, clients, reposet, serviceset)

	return &App{
		Log:          log,
		Cfg:          cfg,
		Clients:      clients,
		Repos:        reposet,
		Services:     serviceset,
		Server:       wireServer(log, cfg, handlerset),
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the job workers, the lifecycle relay and the periodic queue report.
func (a *App) Start(ctx context.Context) error {
	if a == nil || a.cancel != nil {
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	a.notifierDone = make(chan struct{})
	go func() {
		defer close(a.notifierDone)
		a.Services.Notifier.Run(runCtx, a.Services.Orchestrator.Events())
	}()

	if err := a.Services.Orchestrator.Start(runCtx); err != nil {
		return fmt.Errorf("start orchestrator: %w", err)
	}
	if err := a.Services.QueueStatus.Start(a.Cfg.Queue.StatusCron); err != nil {
		return fmt.Errorf("start queue status reporter: %w", err)
	}
	return nil
}

func (a *App) Run() error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Log.Info("HTTP server listening", "port", a.Cfg.Port)
	return a.Server.Run(":" + a.Cfg.Port)
}

// Close drains HTTP, then the workers, then the relay, within ctx.
func (a *App) Close(ctx context.Context) error {
	if a == nil {
		return nil
	}
	var errs []error
	a.closeOnce.Do(func() {
		if err := a.Server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
		a.Services.QueueStatus.Stop()
		if err := a.Services.Orchestrator.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("orchestrator shutdown: %w", err))
		}
		if a.notifierDone != nil {
			// Events is closed by Shutdown, so the relay drains what is left and returns.
			select {
			case <-a.notifierDone:
			case <-time.After(5 * time.Second):
				a.Log.Warn("Lifecycle relay did not drain in time")
			}
		}
		if a.cancel != nil {
			a.cancel()
		}
		if err := a.Services.Bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("progress bus close: %w", err))
		}
		a.Clients.Close(a.Log)
		if a.otelShutdown != nil {
			if err := a.otelShutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
			}
		}
		a.Log.Sync()
	})
	return errors.Join(errs...)
}
