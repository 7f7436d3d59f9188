package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/maltedev/mercado-scraper/internal/database"
	"github.com/maltedev/mercado-scraper/internal/models"
)

// EventType represents the type of event
type EventType string

const (
	// EventTypeProductScraped is published for every record a run accepts
	EventTypeProductScraped EventType = "PRODUCT_SCRAPED"

	source = "mercado-scraper"
)

// ProductScrapedPayload is the body of a PRODUCT_SCRAPED event.
type ProductScrapedPayload struct {
	EventID   string        `json:"event_id"`
	EventType string        `json:"event_type"`
	Timestamp time.Time     `json:"timestamp"`
	RunID     string        `json:"run_id"`
	QueryType string        `json:"query_type"`
	ProductID string        `json:"product_id"`
	Product   models.Record `json:"product"`
	Source    string        `json:"source"`
}

// NewProductScrapedPayload builds the payload for the product at position index of a run.
func NewProductScrapedPayload(runID uuid.UUID, queryType string, index int, p *models.Product) *ProductScrapedPayload {
	return &ProductScrapedPayload{
		EventID:   uuid.New().String(),
		EventType: string(EventTypeProductScraped),
		Timestamp: time.Now(),
		RunID:     runID.String(),
		QueryType: queryType,
		ProductID: p.ProductID,
		Product:   p.Record(index),
		Source:    source,
	}
}

// Publisher announces the products of a finished run.
type Publisher interface {
	PublishRun(ctx context.Context, runID uuid.UUID, queryType string, products []*models.Product) (int, error)
}

// Transactor runs fn inside one database transaction.
type Transactor interface {
	Transaction(ctx context.Context, fn func(pgx.Tx) error) error
}

type outboxWriter interface {
	InsertWithTx(ctx context.Context, tx pgx.Tx, event *database.OutboxEvent) error
}

type historyWriter interface {
	InsertPriceHistoryTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, products []*models.Product) (int, error)
}

// OutboxPublisher stores price history and the matching outbox events in
// one transaction; the relay delivers them to the stream afterwards.
type OutboxPublisher struct {
	db      Transactor
	outbox  outboxWriter
	history historyWriter
	stream  string
	logger  *slog.Logger
}

func NewOutboxPublisher(db *database.DB, stream string, logger *slog.Logger) *OutboxPublisher {
	return newOutboxPublisher(db, database.NewOutboxRepository(db), database.NewHistoryRepository(db), stream, logger)
}

func newOutboxPublisher(db Transactor, outbox outboxWriter, history historyWriter, stream string, logger *slog.Logger) *OutboxPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	if stream == "" {
		stream = database.DefaultTargetStream
	}
	return &OutboxPublisher{
		db:      db,
		outbox:  outbox,
		history: history,
		stream:  stream,
		logger:  logger.With("component", "event_publisher"),
	}
}

func (p *OutboxPublisher) PublishRun(ctx context.Context, runID uuid.UUID, queryType string, products []*models.Product) (int, error) {
	var published int

	err := p.db.Transaction(ctx, func(tx pgx.Tx) error {
		if _, err := p.history.InsertPriceHistoryTx(ctx, tx, runID, products); err != nil {
			return err
		}

		published = 0
		for i, product := range products {
			if product == nil || product.ProductID == "" {
				continue
			}
			data, err := json.Marshal(NewProductScrapedPayload(runID, queryType, i+1, product))
			if err != nil {
				return fmt.Errorf("failed to marshal event: %w", err)
			}

			event := &database.OutboxEvent{
				AggregateType: "product",
				AggregateID:   product.ProductID,
				EventType:     string(EventTypeProductScraped),
				Payload:       data,
				TargetStream:  p.stream,
			}
			if err := p.outbox.InsertWithTx(ctx, tx, event); err != nil {
				return fmt.Errorf("failed to insert outbox event: %w", err)
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to publish run: %w", err)
	}

	p.logger.Info("run published to outbox",
		"run_id", runID,
		"query_type", queryType,
		"events", published,
	)
	return published, nil
}
