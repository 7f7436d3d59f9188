package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/maltedev/mercado-scraper/internal/models"
)

// DefaultHistoryDays is the product history retention used by Cleanup.
const DefaultHistoryDays = 7

const (
	bestSelectorsLimit = 10
	// DefaultMinAttempts is the sample size below which selector stats are ignored.
	DefaultMinAttempts = 5
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS search_cache (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		cache_key TEXT NOT NULL UNIQUE,
		query_type TEXT NOT NULL,
		query_params TEXT NOT NULL,
		products_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS product_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		product_id TEXT,
		name TEXT NOT NULL,
		price TEXT,
		original_price TEXT,
		url TEXT,
		scraped_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_product_history_product ON product_history (product_id, scraped_at)`,
	`CREATE TABLE IF NOT EXISTS selector_performance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		selector TEXT NOT NULL,
		selector_type TEXT NOT NULL,
		success_count INTEGER NOT NULL DEFAULT 0,
		total_attempts INTEGER NOT NULL DEFAULT 0,
		last_used INTEGER NOT NULL,
		UNIQUE (selector, selector_type)
	)`,
}

// SQLiteCache keeps search results, product price history and selector
// statistics in a local SQLite file.
type SQLiteCache struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// HistoryPoint is one observation of a product's price.
type HistoryPoint struct {
	Name          string              `json:"name"`
	Price         decimal.NullDecimal `json:"price"`
	OriginalPrice decimal.NullDecimal `json:"original_price"`
	ScrapedAt     time.Time           `json:"scraped_at"`
}

// SelectorStat is the success record of one selector.
type SelectorStat struct {
	Selector      string  `json:"selector"`
	SuccessCount  int     `json:"success_count"`
	TotalAttempts int     `json:"total_attempts"`
	SuccessRate   float64 `json:"success_rate"`
}

// Stats summarizes cache contents.
type Stats struct {
	TotalCachedSearches  int `json:"total_cached_searches"`
	ValidCachedSearches  int `json:"valid_cached_searches"`
	TotalProductsTracked int `json:"total_products_tracked"`
	UniqueProducts       int `json:"unique_products"`
}

// CleanupResult reports how many rows Cleanup removed.
type CleanupResult struct {
	ExpiredSearches int64 `json:"expired_searches"`
	OldHistory      int64 `json:"old_history"`
}

func NewSQLiteCache(path string, ttl time.Duration, logger *slog.Logger) (*SQLiteCache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize sqlite cache: %w", err)
		}
	}

	c := &SQLiteCache{
		db:     db,
		ttl:    ttl,
		logger: logger.With("component", "sqlite_cache"),
		now:    time.Now,
	}
	c.logger.Info("sqlite cache initialized", "path", path, "ttl", ttl)
	return c, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) ([]*models.Product, bool, error) {
	var data string
	err := c.db.QueryRowContext(ctx,
		`SELECT products_json FROM search_cache WHERE cache_key = ? AND expires_at > ?`,
		key, c.now().Unix(),
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached search: %w", err)
	}

	products, err := decodeProducts([]byte(data))
	if err != nil {
		return nil, false, err
	}

	c.logger.Debug("cache hit", "key", key, "products", len(products))
	return products, true, nil
}

func (c *SQLiteCache) Put(ctx context.Context, e Entry) error {
	products, err := encodeProducts(e.Products)
	if err != nil {
		return err
	}
	params, err := json.Marshal(e.Params)
	if err != nil {
		return fmt.Errorf("failed to encode params: %w", err)
	}

	now := c.now()
	_, err = c.db.ExecContext(ctx,
		`INSERT INTO search_cache (cache_key, query_type, query_params, products_json, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
			query_type = excluded.query_type,
			query_params = excluded.query_params,
			products_json = excluded.products_json,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at`,
		e.Key, e.QueryType, string(params), string(products), now.Unix(), now.Add(c.ttl).Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store cached search: %w", err)
	}

	c.logger.Debug("cache stored", "key", e.Key, "products", len(e.Products))
	return nil
}

// SaveHistory appends one price observation per product.
func (c *SQLiteCache) SaveHistory(ctx context.Context, products []*models.Product) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO product_history (product_id, name, price, original_price, url, scraped_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare history insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range products {
		scrapedAt := p.ScrapedAt
		if scrapedAt.IsZero() {
			scrapedAt = c.now()
		}
		if _, err := stmt.ExecContext(ctx,
			p.ProductID, p.Name, nullString(p.Price), nullString(p.OriginalPrice), p.URL, scrapedAt.Unix(),
		); err != nil {
			return fmt.Errorf("failed to insert history for %s: %w", p.ProductID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit history: %w", err)
	}
	return nil
}

// PriceHistory returns observations of a product from the last days, newest first.
func (c *SQLiteCache) PriceHistory(ctx context.Context, productID string, days int) ([]HistoryPoint, error) {
	since := c.now().AddDate(0, 0, -days).Unix()

	rows, err := c.db.QueryContext(ctx,
		`SELECT name, price, original_price, scraped_at FROM product_history
		 WHERE product_id = ? AND scraped_at > ?
		 ORDER BY scraped_at DESC, id DESC`,
		productID, since,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query price history: %w", err)
	}
	defer rows.Close()

	var history []HistoryPoint
	for rows.Next() {
		var (
			point           HistoryPoint
			price, original sql.NullString
			scrapedAt       int64
		)
		if err := rows.Scan(&point.Name, &price, &original, &scrapedAt); err != nil {
			return nil, fmt.Errorf("failed to scan price history: %w", err)
		}
		point.Price = parseNullDecimal(price)
		point.OriginalPrice = parseNullDecimal(original)
		point.ScrapedAt = time.Unix(scrapedAt, 0)
		history = append(history, point)
	}
	return history, rows.Err()
}

// SelectorCount aggregates attempts of one selector.
type SelectorCount struct {
	Selector  string
	Type      string
	Successes int
	Attempts  int
}

// RecordSelector updates the success counters of a selector.
func (c *SQLiteCache) RecordSelector(ctx context.Context, selector, selectorType string, success bool) error {
	hit := 0
	if success {
		hit = 1
	}
	return c.RecordSelectorCounts(ctx, []SelectorCount{{Selector: selector, Type: selectorType, Successes: hit, Attempts: 1}})
}

// RecordSelectorCounts applies a batch of selector counters in one transaction.
func (c *SQLiteCache) RecordSelectorCounts(ctx context.Context, counts []SelectorCount) error {
	if len(counts) == 0 {
		return nil
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin selector update: %w", err)
	}
	defer tx.Rollback()

	now := c.now().Unix()
	for _, sc := range counts {
		if sc.Attempts <= 0 {
			continue
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO selector_performance (selector, selector_type, success_count, total_attempts, last_used)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(selector, selector_type) DO UPDATE SET
				success_count = success_count + excluded.success_count,
				total_attempts = total_attempts + excluded.total_attempts,
				last_used = excluded.last_used`,
			sc.Selector, sc.Type, sc.Successes, sc.Attempts, now,
		)
		if err != nil {
			return fmt.Errorf("failed to record selector: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit selector update: %w", err)
	}
	return nil
}

// BestSelectors returns up to ten selectors of a type ordered by success rate.
func (c *SQLiteCache) BestSelectors(ctx context.Context, selectorType string, minAttempts int) ([]SelectorStat, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT selector, success_count, total_attempts,
			CAST(success_count AS REAL) / total_attempts AS success_rate
		 FROM selector_performance
		 WHERE selector_type = ? AND total_attempts >= ?
		 ORDER BY success_rate DESC, total_attempts DESC
		 LIMIT ?`,
		selectorType, minAttempts, bestSelectorsLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query selectors: %w", err)
	}
	defer rows.Close()

	var stats []SelectorStat
	for rows.Next() {
		var s SelectorStat
		if err := rows.Scan(&s.Selector, &s.SuccessCount, &s.TotalAttempts, &s.SuccessRate); err != nil {
			return nil, fmt.Errorf("failed to scan selector: %w", err)
		}
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// Cleanup removes expired searches and history older than historyDays.
func (c *SQLiteCache) Cleanup(ctx context.Context, historyDays int) (CleanupResult, error) {
	if historyDays <= 0 {
		historyDays = DefaultHistoryDays
	}
	now := c.now()
	var result CleanupResult

	res, err := c.db.ExecContext(ctx, `DELETE FROM search_cache WHERE expires_at < ?`, now.Unix())
	if err != nil {
		return result, fmt.Errorf("failed to delete expired searches: %w", err)
	}
	result.ExpiredSearches, _ = res.RowsAffected()

	res, err = c.db.ExecContext(ctx, `DELETE FROM product_history WHERE scraped_at < ?`, now.AddDate(0, 0, -historyDays).Unix())
	if err != nil {
		return result, fmt.Errorf("failed to delete old history: %w", err)
	}
	result.OldHistory, _ = res.RowsAffected()

	c.logger.Info("cache cleaned", "expired_searches", result.ExpiredSearches, "old_history", result.OldHistory)
	return result, nil
}

func (c *SQLiteCache) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	queries := []struct {
		query string
		args  []any
		dest  *int
	}{
		{`SELECT COUNT(*) FROM search_cache`, nil, &s.TotalCachedSearches},
		{`SELECT COUNT(*) FROM search_cache WHERE expires_at > ?`, []any{c.now().Unix()}, &s.ValidCachedSearches},
		{`SELECT COUNT(*) FROM product_history`, nil, &s.TotalProductsTracked},
		{`SELECT COUNT(DISTINCT product_id) FROM product_history`, nil, &s.UniqueProducts},
	}
	for _, q := range queries {
		if err := c.db.QueryRowContext(ctx, q.query, q.args...).Scan(q.dest); err != nil {
			return Stats{}, fmt.Errorf("failed to compute cache stats: %w", err)
		}
	}
	return s, nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}

func nullString(v decimal.NullDecimal) sql.NullString {
	if !v.Valid {
		return sql.NullString{}
	}
	return sql.NullString{String: v.Decimal.String(), Valid: true}
}

func parseNullDecimal(s sql.NullString) decimal.NullDecimal {
	if !s.Valid {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}
