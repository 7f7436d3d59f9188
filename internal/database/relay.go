package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	relaySource = "mercado-scraper"

	// DeadLetterSuffix names the stream that mirrors events which exhausted their retries.
	DeadLetterSuffix = ":dead"

	defaultRelayMaxLen = 100_000
)

// RedisClient is the stream subset the relay needs
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

// OutboxRepo is the outbox subset the relay needs
type OutboxRepo interface {
	GetPending(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, err error) error
	CountByStatus(ctx context.Context, statuses ...string) (int64, error)
}

type RelayConfig struct {
	PollInterval time.Duration
	BatchSize    int
	// StreamMaxLen caps every target stream (approximate trimming).
	StreamMaxLen int64
}

// Relay drains committed price events from the outbox into Redis streams.
// Entries carry the same fields as directly published events so stream
// consumers need not know which path produced them.
type Relay struct {
	redis  RedisClient
	outbox OutboxRepo
	logger *slog.Logger
	cfg    RelayConfig
}

// BatchResult summarises one pass over the outbox.
type BatchResult struct {
	Relayed      int
	Failed       int
	DeadLettered int
}

type relayedPayload struct {
	RunID     string `json:"run_id"`
	QueryType string `json:"query_type"`
}

func NewRelay(outbox OutboxRepo, redisClient RedisClient, logger *slog.Logger, cfg RelayConfig) *Relay {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.StreamMaxLen <= 0 {
		cfg.StreamMaxLen = defaultRelayMaxLen
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{
		redis:  redisClient,
		outbox: outbox,
		logger: logger.With("component", "relay"),
		cfg:    cfg,
	}
}

// Start polls the outbox until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) error {
	r.logger.Info("starting relay", "interval", r.cfg.PollInterval, "batch_size", r.cfg.BatchSize)

	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := r.RelayBatch(ctx); err != nil {
			r.logger.Error("relay pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			r.logger.Info("relay stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RelayBatch moves up to one batch of pending events. A failing event is
// rescheduled by the outbox and does not stop the rest of the batch.
func (r *Relay) RelayBatch(ctx context.Context) (BatchResult, error) {
	var res BatchResult

	pending, err := r.outbox.GetPending(ctx, r.cfg.BatchSize)
	if err != nil {
		return res, fmt.Errorf("failed to get pending events: %w", err)
	}
	if len(pending) == 0 {
		return res, nil
	}

	for _, event := range pending {
		if err := r.publish(ctx, event); err != nil {
			res.Failed++
			if r.fail(ctx, event, err) {
				res.DeadLettered++
			}
			continue
		}

		if err := r.outbox.MarkProcessed(ctx, event.ID); err != nil {
			// the entry is already on the stream; a redelivery is tolerated downstream
			r.logger.Error("failed to mark event as processed", "event_id", event.ID, "error", err)
			continue
		}
		res.Relayed++
	}

	r.logger.Info("outbox batch relayed",
		"relayed", res.Relayed,
		"failed", res.Failed,
		"dead_lettered", res.DeadLettered,
	)
	return res, nil
}

// fail records the failure and reports whether the event is now dead-lettered.
func (r *Relay) fail(ctx context.Context, event *OutboxEvent, cause error) bool {
	r.logger.Error("failed to relay event",
		"event_id", event.ID,
		"product_id", event.AggregateID,
		"retry_count", event.RetryCount,
		"error", cause,
	)

	if err := r.outbox.MarkFailed(ctx, event.ID, cause); err != nil {
		r.logger.Error("failed to mark event as failed", "event_id", event.ID, "error", err)
		return false
	}
	if event.RetryCount+1 < MaxRetryCount {
		return false
	}

	err := r.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: event.TargetStream + DeadLetterSuffix,
		MaxLen: r.cfg.StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event_id":    event.ID.String(),
			"event_type":  event.EventType,
			"product_id":  event.AggregateID,
			"payload":     string(event.Payload),
			"error":       cause.Error(),
			"retry_count": strconv.Itoa(event.RetryCount + 1),
		},
	}).Err()
	if err != nil {
		r.logger.Error("failed to mirror dead-lettered event", "event_id", event.ID, "error", err)
	}
	r.logger.Warn("event dead-lettered", "event_id", event.ID, "product_id", event.AggregateID)
	return true
}

func (r *Relay) publish(ctx context.Context, event *OutboxEvent) error {
	var meta relayedPayload
	if err := json.Unmarshal(event.Payload, &meta); err != nil {
		return fmt.Errorf("failed to unmarshal payload: %w", err)
	}

	envelope, err := json.Marshal(map[string]interface{}{
		"id":         event.ID.String(),
		"type":       event.EventType,
		"product_id": event.AggregateID,
		"created_at": event.CreatedAt.Format(time.RFC3339),
		"payload":    event.Payload,
		"metadata": map[string]interface{}{
			"source":        relaySource,
			"outbox_id":     event.ID.String(),
			"retry_count":   event.RetryCount,
			"target_stream": event.TargetStream,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to marshal stream entry: %w", err)
	}

	err = r.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: event.TargetStream,
		MaxLen: r.cfg.StreamMaxLen,
		Approx: true,
		Values: map[string]interface{}{
			"data":       string(envelope),
			"event_id":   event.ID.String(),
			"event_type": event.EventType,
			"product_id": event.AggregateID,
			"run_id":     meta.RunID,
			"query_type": meta.QueryType,
		},
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}
	return nil
}

// PendingCount returns the events still waiting for the relay
func (r *Relay) PendingCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusPending, OutboxStatusFailed)
}

// DeadLetterCount returns the events that exhausted their retries
func (r *Relay) DeadLetterCount(ctx context.Context) (int64, error) {
	return r.outbox.CountByStatus(ctx, OutboxStatusDeadLetter)
}
