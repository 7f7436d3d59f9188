package extract

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/maltedev/mercado-scraper/internal/models"
	"github.com/maltedev/mercado-scraper/internal/parser"
)

var (
	ErrRejected = errors.New("fragment rejected")
	ErrNoName   = fmt.Errorf("%w: no usable name", ErrRejected)
	ErrNoPrice  = fmt.Errorf("%w: no usable price", ErrRejected)
	ErrNoURL    = fmt.Errorf("%w: no product link", ErrRejected)
)

// Candidate is one text value harvested by a selector. Link and image
// candidates carry the attribute value as Text.
type Candidate struct {
	Selector string `json:"selector"`
	Text     string `json:"text"`
}

// Fragment holds the candidates harvested from a single listing, each list in
// selector priority order.
type Fragment struct {
	Names          []Candidate `json:"names"`
	Prices         []Candidate `json:"prices"`
	OriginalPrices []Candidate `json:"original_prices"`
	URLs           []Candidate `json:"urls"`
	Images         []Candidate `json:"images"`
	Text           string      `json:"text"`
}

// Selection records which selector supplied each accepted field.
type Selection struct {
	Name          string
	Price         string
	OriginalPrice string
	URL           string
}

const minNameRunes = 10

var (
	// SanityThreshold is the smallest price accepted from markup.
	SanityThreshold = decimal.NewFromInt(10)

	nameSkipWords = []string{"economiza", "confira", "ofertas"}
)

// Reconciler turns harvested fragments into validated products.
type Reconciler struct {
	logger *slog.Logger
}

func NewReconciler(logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{logger: logger.With("component", "reconciler")}
}

// Reconcile picks name, prices and link for one fragment. Incomplete or
// invalid fragments return an error wrapping ErrRejected.
func (r *Reconciler) Reconcile(f Fragment) (*models.Product, error) {
	p, _, err := r.reconcile(f)
	return p, err
}

// ReconcileWithSelection is Reconcile plus the selectors that won.
func (r *Reconciler) ReconcileWithSelection(f Fragment) (*models.Product, Selection, error) {
	return r.reconcile(f)
}

func (r *Reconciler) reconcile(f Fragment) (*models.Product, Selection, error) {
	var sel Selection

	name, nameSel, ok := pickName(f.Names)
	if !ok {
		return nil, sel, ErrNoName
	}
	sel.Name = nameSel

	price, priceSel, ok := pickPrice(f.Prices)
	if !ok {
		return nil, sel, ErrNoPrice
	}
	sel.Price = priceSel

	original, originalSel := pickOriginalPrice(f.OriginalPrices, price)
	sel.OriginalPrice = originalSel

	link, linkSel, ok := pickURL(f.URLs)
	if !ok {
		return nil, sel, ErrNoURL
	}
	sel.URL = linkSel

	text := f.Text
	if text == "" {
		text = name
	}

	p, err := models.NewProduct(models.ProductInput{
		Name:          name,
		Price:         price,
		OriginalPrice: original,
		URL:           link,
		ImageURL:      pickImage(f.Images),
		IsPromotion:   isPromotion(text, original.Valid),
		FreeShipping:  parser.HasFreeShipping(text),
	})
	if err != nil {
		return nil, sel, fmt.Errorf("%w: %w", ErrRejected, err)
	}

	return p, sel, nil
}

// Report summarizes a batch reconciliation.
type Report struct {
	Accepted int            `json:"accepted"`
	Rejected int            `json:"rejected"`
	Causes   map[string]int `json:"causes,omitempty"`
}

// ReconcileAll keeps the successful products and counts rejections by cause.
func (r *Reconciler) ReconcileAll(fragments []Fragment) ([]*models.Product, Report) {
	products := make([]*models.Product, 0, len(fragments))
	report := Report{Causes: make(map[string]int)}

	for i, f := range fragments {
		p, err := r.Reconcile(f)
		if err != nil {
			report.Rejected++
			report.Causes[Cause(err)]++
			r.logger.Debug("fragment rejected", "index", i, "error", err)
			continue
		}
		products = append(products, p)
	}

	report.Accepted = len(products)
	return products, report
}

// Cause classifies a rejection error for reporting.
func Cause(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoName):
		return "no_name"
	case errors.Is(err, ErrNoPrice):
		return "no_price"
	case errors.Is(err, ErrNoURL):
		return "no_url"
	case errors.Is(err, models.ErrInvalidProduct):
		return "invalid"
	default:
		return "other"
	}
}

func pickName(candidates []Candidate) (string, string, bool) {
	for _, c := range candidates {
		text := strings.TrimSpace(c.Text)
		if utf8.RuneCountInString(text) <= minNameRunes {
			continue
		}
		lower := strings.ToLower(text)
		skip := false
		for _, w := range nameSkipWords {
			if strings.Contains(lower, w) {
				skip = true
				break
			}
		}
		if !skip {
			return text, c.Selector, true
		}
	}
	return "", "", false
}

func pickPrice(candidates []Candidate) (decimal.NullDecimal, string, bool) {
	for _, c := range candidates {
		v, ok := parser.ParsePrice(c.Text)
		if ok && v.GreaterThan(SanityThreshold) {
			return decimal.NewNullDecimal(v), c.Selector, true
		}
	}
	return decimal.NullDecimal{}, "", false
}

// pickOriginalPrice enforces original > current; failing candidates are skipped.
func pickOriginalPrice(candidates []Candidate, current decimal.NullDecimal) (decimal.NullDecimal, string) {
	for _, c := range candidates {
		v, ok := parser.ParsePrice(c.Text)
		if !ok || !v.GreaterThan(SanityThreshold) {
			continue
		}
		if current.Valid && !v.GreaterThan(current.Decimal) {
			continue
		}
		return decimal.NewNullDecimal(v), c.Selector
	}
	return decimal.NullDecimal{}, ""
}

func pickURL(candidates []Candidate) (string, string, bool) {
	for _, c := range candidates {
		href := strings.TrimSpace(c.Text)
		if strings.Contains(href, "ML") || strings.Contains(href, "/p/") {
			return models.AbsoluteURL(href), c.Selector, true
		}
	}
	return "", "", false
}

func pickImage(candidates []Candidate) string {
	for _, c := range candidates {
		if src := strings.TrimSpace(c.Text); src != "" {
			return src
		}
	}
	return ""
}

func isPromotion(text string, hasOriginal bool) bool {
	if hasOriginal || parser.IsPromotionIndicator(text) {
		return true
	}
	return strings.Contains(strings.ToLower(text), "off")
}
