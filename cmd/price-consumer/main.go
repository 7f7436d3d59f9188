package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/mercado-scraper/internal/config"
	"github.com/maltedev/mercado-scraper/internal/events"
	"github.com/maltedev/mercado-scraper/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// stdout carries the alerts
	logger := logger.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect to redis", "addr", cfg.Redis.Addr, "error", err)
		os.Exit(1)
	}
	logger.Info("connected to redis", "addr", cfg.Redis.Addr)

	enc := json.NewEncoder(os.Stdout)
	watcher := events.NewPriceWatcher(cfg.Events.AlertMinDrop, func(a events.Alert) {
		if err := enc.Encode(a); err != nil {
			logger.Error("failed to write alert", "product_id", a.ProductID, "error", err)
		}
	}, logger)

	consumer := events.NewConsumer(rdb, events.ConsumerConfig{
		Stream: cfg.Events.Stream,
		Group:  cfg.Events.ConsumerGroup,
		Name:   cfg.Events.ConsumerName,
	}, watcher.Handle, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutting down", "tracked_products", watcher.Tracked())
		cancel()
	}()

	if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("consumer stopped", "error", err)
		os.Exit(1)
	}
}
