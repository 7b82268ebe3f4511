package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/deepmed-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Printf("failed to initialize app: %v\n", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		a.Log.Error("startup failed", "error", err)
		_ = a.Close(context.Background())
		os.Exit(1)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- a.Run() }()

	exit := 0
	select {
	case <-ctx.Done():
		a.Log.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			a.Log.Error("server exited", "error", err)
			exit = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := a.Close(shutdownCtx); err != nil {
		fmt.Printf("shutdown: %v\n", err)
		exit = 1
	}
	os.Exit(exit)
}
