package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/maltedev/mercado-scraper/internal/api"
	"github.com/maltedev/mercado-scraper/internal/app"
	"github.com/maltedev/mercado-scraper/internal/config"
	"github.com/maltedev/mercado-scraper/internal/extract"
	"github.com/maltedev/mercado-scraper/internal/jobs"
	"github.com/maltedev/mercado-scraper/internal/queue"
	"github.com/maltedev/mercado-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logger.New(cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.StartRelay(ctx)
	}()

	taskQueue := queue.NewInMemoryQueue(cfg.Queue.MaxSize)
	jobManager := jobs.NewManager(a.Service, taskQueue, logger)

	wg.Add(1)
	go func() {
		defer wg.Done()
		jobManager.StartWorkers(ctx, cfg.Queue.Workers)
	}()

	svc := api.Services{
		Scraper:    a.Service,
		Jobs:       jobManager,
		Classifier: a.Classifier,
		Reconciler: extract.NewReconciler(logger),
	}
	if a.SQLite != nil {
		svc.Cache = a.SQLite
	}
	if a.Relay != nil {
		svc.Outbox = a.Relay
	}
	handlers := api.NewHandlers(svc, logger)

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      api.NewRouter(handlers, api.RouterOptions{RequestTimeout: cfg.Server.WriteTimeout}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		logger.Info("shutting down server...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		cancel()
		taskQueue.Close()
	}()

	logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		cancel()
		taskQueue.Close()
		wg.Wait()
		a.Close()
		os.Exit(1)
	}

	wg.Wait()
	logger.Info("server stopped")
}
