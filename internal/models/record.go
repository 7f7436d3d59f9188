package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Record is the persisted shape of a Product used by caches and exports.
type Record struct {
	Index              int       `json:"index"`
	Name               string    `json:"name"`
	Category           string    `json:"category"`
	CategoryConfidence float64   `json:"category_confidence"`
	Price              *float64  `json:"price"`
	OriginalPrice      *float64  `json:"original_price"`
	DiscountPercentage float64   `json:"discount_percentage"`
	URL                string    `json:"url"`
	ProductID          string    `json:"product_id"`
	ImageURL           string    `json:"image_url"`
	Seller             string    `json:"seller,omitempty"`
	Rating             *float64  `json:"rating,omitempty"`
	ReviewsCount       *int      `json:"reviews_count,omitempty"`
	FreeShipping       bool      `json:"free_shipping"`
	IsPromotion        bool      `json:"is_promotion"`
	ScrapedAt          time.Time `json:"scraped_at"`
}

// Record converts the product to its persisted shape. Index is 1-based by convention.
func (p *Product) Record(index int) Record {
	return Record{
		Index:              index,
		Name:               p.Name,
		Category:           p.Category,
		CategoryConfidence: p.CategoryConfidence,
		Price:              floatPtr(p.Price),
		OriginalPrice:      floatPtr(p.OriginalPrice),
		DiscountPercentage: p.DiscountPercentage().InexactFloat64(),
		URL:                p.URL,
		ProductID:          p.ProductID,
		ImageURL:           p.ImageURL,
		Seller:             p.Seller,
		Rating:             p.Rating,
		ReviewsCount:       p.ReviewsCount,
		FreeShipping:       p.FreeShipping,
		IsPromotion:        p.IsPromotion,
		ScrapedAt:          p.ScrapedAt,
	}
}

// FromRecord rebuilds a Product, validating it and recomputing the discount.
// The stored discount_percentage is ignored.
func FromRecord(r Record) (*Product, error) {
	return NewProduct(ProductInput{
		Name:               r.Name,
		Price:              nullDecimal(r.Price),
		OriginalPrice:      nullDecimal(r.OriginalPrice),
		URL:                r.URL,
		ImageURL:           r.ImageURL,
		Seller:             r.Seller,
		Rating:             r.Rating,
		ReviewsCount:       r.ReviewsCount,
		IsPromotion:        r.IsPromotion,
		FreeShipping:       r.FreeShipping,
		ProductID:          r.ProductID,
		Category:           r.Category,
		CategoryConfidence: r.CategoryConfidence,
		ScrapedAt:          r.ScrapedAt,
	})
}

// Records converts a slice of products to persisted records numbered from 1.
func Records(products []*Product) []Record {
	out := make([]Record, 0, len(products))
	for i, p := range products {
		out = append(out, p.Record(i+1))
	}
	return out
}

// ProductsFromRecords rebuilds products, failing on the first invalid record.
func ProductsFromRecords(records []Record) ([]*Product, error) {
	out := make([]*Product, 0, len(records))
	for _, r := range records {
		p, err := FromRecord(r)
		if err != nil {
			return nil, fmt.Errorf("failed to rebuild record %d: %w", r.Index, err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (p *Product) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.Record(0))
}

func (p *Product) UnmarshalJSON(data []byte) error {
	var r Record
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	rebuilt, err := FromRecord(r)
	if err != nil {
		return err
	}
	*p = *rebuilt
	return nil
}

func floatPtr(v decimal.NullDecimal) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Decimal.InexactFloat64()
	return &f
}

func nullDecimal(f *float64) decimal.NullDecimal {
	if f == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(decimal.NewFromFloat(*f))
}
