package models

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"
)

// BaseURL is prefixed to relative product links.
const BaseURL = "https://www.mercadolivre.com.br"

const minNameLength = 3

var (
	ErrInvalidProduct       = errors.New("invalid product")
	ErrNameTooShort         = fmt.Errorf("%w: name too short", ErrInvalidProduct)
	ErrPriceOutOfRange      = fmt.Errorf("%w: price out of range", ErrInvalidProduct)
	ErrConfidenceOutOfRange = fmt.Errorf("%w: category confidence out of range", ErrInvalidProduct)
)

var (
	MinPrice = decimal.NewFromInt(1)
	MaxPrice = decimal.NewFromInt(1_000_000)

	hundred = decimal.NewFromInt(100)

	whitespacePattern = regexp.MustCompile(`\s+`)
	nameStripPattern  = regexp.MustCompile(`[^\p{L}\p{N}_\s\-()\[\]/+.]`)
	productIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`ML[AB]\d+`),
		regexp.MustCompile(`/p/(ML[AB]\d+)`),
		regexp.MustCompile(`item[_-]?id[=:](\d+)`),
		regexp.MustCompile(`/(\d{10,})`),
	}
)

// Product is a single marketplace listing. The discount percentage is
// derived from the two prices on every read, so it always matches them.
type Product struct {
	Name               string
	Price              decimal.NullDecimal
	OriginalPrice      decimal.NullDecimal
	URL                string
	ImageURL           string
	Seller             string
	Rating             *float64
	ReviewsCount       *int
	IsPromotion        bool
	FreeShipping       bool
	ProductID          string
	Category           string
	CategoryConfidence float64
	ScrapedAt          time.Time
}

// ProductInput carries raw field values for NewProduct.
type ProductInput struct {
	Name               string
	Price              decimal.NullDecimal
	OriginalPrice      decimal.NullDecimal
	URL                string
	ImageURL           string
	Seller             string
	Rating             *float64
	ReviewsCount       *int
	IsPromotion        bool
	FreeShipping       bool
	ProductID          string
	Category           string
	CategoryConfidence float64
	ScrapedAt          time.Time
}

// NewProduct validates the input and builds a Product.
func NewProduct(in ProductInput) (*Product, error) {
	name := NormalizeName(in.Name)
	if utf8.RuneCountInString(name) < minNameLength {
		return nil, fmt.Errorf("%w: %q", ErrNameTooShort, in.Name)
	}

	if err := validatePrice(in.Price); err != nil {
		return nil, err
	}
	if err := validatePrice(in.OriginalPrice); err != nil {
		return nil, err
	}

	if in.CategoryConfidence < 0 || in.CategoryConfidence > 1 {
		return nil, fmt.Errorf("%w: %v", ErrConfidenceOutOfRange, in.CategoryConfidence)
	}

	p := &Product{
		Name:               name,
		Price:              in.Price,
		OriginalPrice:      in.OriginalPrice,
		URL:                AbsoluteURL(in.URL),
		ImageURL:           strings.TrimSpace(in.ImageURL),
		Seller:             strings.TrimSpace(in.Seller),
		Rating:             in.Rating,
		ReviewsCount:       in.ReviewsCount,
		IsPromotion:        in.IsPromotion,
		FreeShipping:       in.FreeShipping,
		ProductID:          in.ProductID,
		Category:           in.Category,
		CategoryConfidence: in.CategoryConfidence,
		ScrapedAt:          in.ScrapedAt,
	}

	if p.ProductID == "" && p.URL != "" {
		p.ProductID, _ = ExtractProductID(p.URL)
	}
	if p.ScrapedAt.IsZero() {
		p.ScrapedAt = time.Now()
	}

	return p, nil
}

// SetPrices validates and replaces both prices.
func (p *Product) SetPrices(price, original decimal.NullDecimal) error {
	if err := validatePrice(price); err != nil {
		return err
	}
	if err := validatePrice(original); err != nil {
		return err
	}
	p.Price = price
	p.OriginalPrice = original
	return nil
}

// SetCategory stores a classification outcome.
func (p *Product) SetCategory(category string, confidence float64) error {
	if confidence < 0 || confidence > 1 {
		return fmt.Errorf("%w: %v", ErrConfidenceOutOfRange, confidence)
	}
	p.Category = category
	p.CategoryConfidence = confidence
	return nil
}

// DiscountPercentage returns the derived discount, rounded to two places.
func (p *Product) DiscountPercentage() decimal.Decimal {
	return Discount(p.Price, p.OriginalPrice)
}

// HasDiscount reports whether a higher original price was recorded.
func (p *Product) HasDiscount() bool {
	return p.DiscountPercentage().IsPositive()
}

// Usable reports whether the record carries the fields required downstream.
func (p *Product) Usable() bool {
	return p.Name != "" && p.Price.Valid && p.URL != ""
}

// Discount computes round(((original - price) / original) * 100, 2), or zero
// unless both prices are present and original > price.
func Discount(price, original decimal.NullDecimal) decimal.Decimal {
	if !price.Valid || !original.Valid || !original.Decimal.GreaterThan(price.Decimal) {
		return decimal.Zero
	}
	return original.Decimal.Sub(price.Decimal).
		Div(original.Decimal).
		Mul(hundred).
		Round(2)
}

func validatePrice(v decimal.NullDecimal) error {
	if !v.Valid {
		return nil
	}
	if v.Decimal.LessThan(MinPrice) || v.Decimal.GreaterThan(MaxPrice) {
		return fmt.Errorf("%w: R$ %s", ErrPriceOutOfRange, v.Decimal.StringFixed(2))
	}
	return nil
}

// NormalizeName collapses whitespace and strips characters outside the
// allowed set of letters, digits and common punctuation.
func NormalizeName(name string) string {
	clean := whitespacePattern.ReplaceAllString(strings.TrimSpace(name), " ")
	return nameStripPattern.ReplaceAllString(clean, "")
}

// AbsoluteURL prefixes relative links with the marketplace base URL.
func AbsoluteURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://") {
		return raw
	}
	return BaseURL + raw
}

// ExtractProductID returns the first marketplace item id found in the URL.
func ExtractProductID(url string) (string, bool) {
	if url == "" {
		return "", false
	}
	for _, pattern := range productIDPatterns {
		matches := pattern.FindStringSubmatch(url)
		if matches == nil {
			continue
		}
		if len(matches) > 1 {
			return matches[1], true
		}
		return matches[0], true
	}
	return "", false
}

// NullPrice wraps a decimal as a present price.
func NullPrice(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NewNullDecimal(d)
}
