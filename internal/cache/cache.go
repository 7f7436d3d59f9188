package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/maltedev/mercado-scraper/internal/models"
)

// DefaultTTL is how long a cached search stays valid.
const DefaultTTL = 2 * time.Hour

// Entry is one search result set to cache.
type Entry struct {
	Key       string
	QueryType string
	Params    map[string]any
	Products  []*models.Product
}

// SearchCache stores search results under a derived key.
type SearchCache interface {
	Get(ctx context.Context, key string) ([]*models.Product, bool, error)
	Put(ctx context.Context, entry Entry) error
	Close() error
}

// document is the serialized form shared by the cache backends.
type document struct {
	QueryType string          `json:"query_type"`
	Params    map[string]any  `json:"params"`
	Products  []models.Record `json:"products"`
	CreatedAt time.Time       `json:"created_at"`
}

func encodeProducts(products []*models.Product) ([]byte, error) {
	data, err := json.Marshal(models.Records(products))
	if err != nil {
		return nil, fmt.Errorf("failed to encode products: %w", err)
	}
	return data, nil
}

func decodeProducts(data []byte) ([]*models.Product, error) {
	var records []models.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return models.ProductsFromRecords(records)
}

// Noop is a SearchCache that never hits.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]*models.Product, bool, error) {
	return nil, false, nil
}

func (Noop) Put(context.Context, Entry) error {
	return nil
}

func (Noop) Close() error {
	return nil
}
