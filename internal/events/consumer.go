package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrMalformedEvent = errors.New("malformed event")

// StreamReader is the consumer-group subset of the redis client.
type StreamReader interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
}

// Handler processes one decoded PRODUCT_SCRAPED event.
type Handler func(ctx context.Context, event *ProductScrapedPayload) error

type ConsumerConfig struct {
	Stream  string
	Group   string
	Name    string
	Count   int64
	Block   time.Duration
	Backoff time.Duration
}

// Consumer reads product events from a stream through a consumer group and
// acknowledges every message its handler accepts.
type Consumer struct {
	client  StreamReader
	cfg     ConsumerConfig
	handler Handler
	logger  *slog.Logger
}

func NewConsumer(client StreamReader, cfg ConsumerConfig, handler Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Stream == "" {
		cfg.Stream = "stream:price_events"
	}
	if cfg.Group == "" {
		cfg.Group = "price-watchers"
	}
	if cfg.Name == "" {
		cfg.Name = "consumer-1"
	}
	if cfg.Count <= 0 {
		cfg.Count = 10
	}
	if cfg.Block <= 0 {
		cfg.Block = 5 * time.Second
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = time.Second
	}
	return &Consumer{
		client:  client,
		cfg:     cfg,
		handler: handler,
		logger:  logger.With("component", "event_consumer"),
	}
}

// Run blocks until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.cfg.Stream, c.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("failed to create consumer group: %w", err)
	}

	c.logger.Info("starting consumer", "stream", c.cfg.Stream, "group", c.cfg.Group, "name", c.cfg.Name)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.cfg.Group,
			Consumer: c.cfg.Name,
			Streams:  []string{c.cfg.Stream, ">"},
			Count:    c.cfg.Count,
			Block:    c.cfg.Block,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Error("failed to read from stream", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.Backoff):
			}
			continue
		}

		for _, stream := range streams {
			for _, message := range stream.Messages {
				c.handleMessage(ctx, message)
			}
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, msg redis.XMessage) {
	if err := c.processMessage(ctx, msg); err != nil {
		if !errors.Is(err, ErrMalformedEvent) {
			// left pending for redelivery
			c.logger.Error("failed to process message", "id", msg.ID, "error", err)
			return
		}
		c.logger.Warn("dropping malformed message", "id", msg.ID, "error", err)
	}

	if err := c.client.XAck(ctx, c.cfg.Stream, c.cfg.Group, msg.ID).Err(); err != nil {
		c.logger.Error("failed to acknowledge message", "id", msg.ID, "error", err)
	}
}

func (c *Consumer) processMessage(ctx context.Context, msg redis.XMessage) error {
	event, ok, err := DecodeProductScraped(msg.Values)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return c.handler(ctx, event)
}

// DecodeProductScraped reads a PRODUCT_SCRAPED event from stream values
// written either directly or by the outbox relay. Other event types
// report false.
func DecodeProductScraped(values map[string]interface{}) (*ProductScrapedPayload, bool, error) {
	eventType, _ := values["event_type"].(string)
	if eventType != string(EventTypeProductScraped) {
		return nil, false, nil
	}

	data, ok := values["data"].(string)
	if !ok || data == "" {
		return nil, false, fmt.Errorf("%w: missing data", ErrMalformedEvent)
	}

	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal([]byte(data), &envelope); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	raw := []byte(data)
	if len(envelope.Payload) > 0 {
		raw = envelope.Payload
	}

	var event ProductScrapedPayload
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.ProductID == "" {
		return nil, false, fmt.Errorf("%w: missing product id", ErrMalformedEvent)
	}
	return &event, true, nil
}
