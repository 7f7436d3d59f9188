package database

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/maltedev/mercado-scraper/internal/models"
)

// PricePoint is one stored observation of a product price.
type PricePoint struct {
	RunID              uuid.UUID
	ProductID          string
	Name               string
	URL                string
	Category           string
	CategoryConfidence float64
	Price              decimal.NullDecimal
	OriginalPrice      decimal.NullDecimal
	DiscountPercentage decimal.Decimal
	IsPromotion        bool
	FreeShipping       bool
	ScrapedAt          time.Time
}

const insertPriceHistory = `
	INSERT INTO price_history (
		run_id, product_id, name, url, category, category_confidence,
		price, original_price, discount_percentage,
		is_promotion, free_shipping, scraped_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

// HistoryRepository persists price observations in postgres.
type HistoryRepository struct {
	db *DB
}

func NewHistoryRepository(db *DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// InsertPriceHistory stores every usable product of a run in one transaction.
func (r *HistoryRepository) InsertPriceHistory(ctx context.Context, runID uuid.UUID, products []*models.Product) (int, error) {
	var inserted int
	err := r.db.Transaction(ctx, func(tx pgx.Tx) error {
		n, err := r.InsertPriceHistoryTx(ctx, tx, runID, products)
		inserted = n
		return err
	})
	return inserted, err
}

// InsertPriceHistoryTx is InsertPriceHistory inside a caller-owned transaction.
func (r *HistoryRepository) InsertPriceHistoryTx(ctx context.Context, tx pgx.Tx, runID uuid.UUID, products []*models.Product) (int, error) {
	batch := &pgx.Batch{}
	for _, p := range products {
		if p == nil || p.ProductID == "" || !p.Price.Valid {
			continue
		}
		batch.Queue(insertPriceHistory,
			runID, p.ProductID, p.Name, p.URL, p.Category, p.CategoryConfidence,
			nullableText(p.Price), nullableText(p.OriginalPrice), p.DiscountPercentage().StringFixed(2),
			p.IsPromotion, p.FreeShipping, p.ScrapedAt,
		)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return 0, fmt.Errorf("failed to insert price history: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return 0, fmt.Errorf("failed to close history batch: %w", err)
	}
	return batch.Len(), nil
}

// LatestPrices returns the most recent observation per product, newest first.
func (r *HistoryRepository) LatestPrices(ctx context.Context, limit int) ([]PricePoint, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT * FROM (
			SELECT DISTINCT ON (product_id)
				run_id, product_id, name, url, category, category_confidence,
				price::text, original_price::text, discount_percentage::text,
				is_promotion, free_shipping, scraped_at
			FROM price_history
			ORDER BY product_id, scraped_at DESC
		) latest
		ORDER BY scraped_at DESC
		LIMIT $1`

	return r.queryPoints(ctx, query, limit)
}

// ProductHistory returns the observations of one product since the given time, newest first.
func (r *HistoryRepository) ProductHistory(ctx context.Context, productID string, since time.Time) ([]PricePoint, error) {
	query := `
		SELECT run_id, product_id, name, url, category, category_confidence,
			price::text, original_price::text, discount_percentage::text,
			is_promotion, free_shipping, scraped_at
		FROM price_history
		WHERE product_id = $1 AND scraped_at >= $2
		ORDER BY scraped_at DESC`

	return r.queryPoints(ctx, query, productID, since)
}

func (r *HistoryRepository) queryPoints(ctx context.Context, query string, args ...interface{}) ([]PricePoint, error) {
	rows, err := r.db.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var (
			pt                    PricePoint
			runID                 *uuid.UUID
			price, original, disc *string
		)
		if err := rows.Scan(
			&runID, &pt.ProductID, &pt.Name, &pt.URL, &pt.Category, &pt.CategoryConfidence,
			&price, &original, &disc,
			&pt.IsPromotion, &pt.FreeShipping, &pt.ScrapedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		if runID != nil {
			pt.RunID = *runID
		}
		pt.Price = parseNullable(price)
		pt.OriginalPrice = parseNullable(original)
		if d := parseNullable(disc); d.Valid {
			pt.DiscountPercentage = d.Decimal
		}
		points = append(points, pt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return points, nil
}

func nullableText(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.StringFixed(2)
	return &s
}

func parseNullable(s *string) decimal.NullDecimal {
	if s == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
