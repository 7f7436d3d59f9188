package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/maltedev/mercado-scraper/internal/models"
)

// DefaultStreamMaxLen caps the stream length (approximate trimming).
const DefaultStreamMaxLen = 100_000

// RedisClient is the stream subset StreamPublisher needs.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

// StreamPublisher writes events straight to a Redis stream without an outbox.
type StreamPublisher struct {
	client RedisClient
	stream string
	logger *slog.Logger
}

func NewStreamPublisher(client RedisClient, stream string, logger *slog.Logger) *StreamPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if stream == "" {
		stream = "stream:price_events"
	}
	return &StreamPublisher{
		client: client,
		stream: stream,
		logger: logger.With("component", "stream_publisher"),
	}
}

// PublishRun adds one stream entry per product and stops at the first failure.
func (p *StreamPublisher) PublishRun(ctx context.Context, runID uuid.UUID, queryType string, products []*models.Product) (int, error) {
	published := 0
	for i, product := range products {
		if product == nil || product.ProductID == "" {
			continue
		}

		payload := NewProductScrapedPayload(runID, queryType, i+1, product)
		data, err := json.Marshal(payload)
		if err != nil {
			return published, fmt.Errorf("failed to marshal event: %w", err)
		}

		args := &redis.XAddArgs{
			Stream: p.stream,
			MaxLen: DefaultStreamMaxLen,
			Approx: true,
			Values: map[string]interface{}{
				"data":       string(data),
				"event_id":   payload.EventID,
				"event_type": payload.EventType,
				"product_id": payload.ProductID,
				"run_id":     payload.RunID,
			},
		}
		if err := p.client.XAdd(ctx, args).Err(); err != nil {
			return published, fmt.Errorf("failed to publish to redis: %w", err)
		}
		published++
	}

	p.logger.Info("run published to stream",
		"run_id", runID,
		"stream", p.stream,
		"events", published,
	)
	return published, nil
}
