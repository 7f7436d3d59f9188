package events

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"github.com/maltedev/mercado-scraper/internal/models"
)

// PriceHistoryWriter appends a run's products to a price history table.
type PriceHistoryWriter interface {
	InsertPriceHistory(ctx context.Context, runID uuid.UUID, products []*models.Product) (int, error)
}

// HistoryPublisher records runs in postgres without emitting events.
type HistoryPublisher struct {
	history PriceHistoryWriter
	logger  *slog.Logger
}

func NewHistoryPublisher(history PriceHistoryWriter, logger *slog.Logger) *HistoryPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &HistoryPublisher{
		history: history,
		logger:  logger.With("component", "history_publisher"),
	}
}

func (p *HistoryPublisher) PublishRun(ctx context.Context, runID uuid.UUID, queryType string, products []*models.Product) (int, error) {
	n, err := p.history.InsertPriceHistory(ctx, runID, products)
	if err != nil {
		return 0, err
	}
	p.logger.Debug("run recorded", "run_id", runID, "query_type", queryType, "rows", n)
	return n, nil
}

// Fanout hands each run to every publisher in order. It reports the largest
// count any publisher reached and joins their errors.
type Fanout []Publisher

func (f Fanout) PublishRun(ctx context.Context, runID uuid.UUID, queryType string, products []*models.Product) (int, error) {
	var (
		best int
		errs []error
	)
	for _, p := range f {
		n, err := p.PublishRun(ctx, runID, queryType, products)
		if n > best {
			best = n
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return best, errors.Join(errs...)
}
