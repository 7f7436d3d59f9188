// Package format renders prices and run summaries for terminal output.
package format

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/maltedev/mercado-scraper/internal/classifier"
	"github.com/maltedev/mercado-scraper/internal/models"
)

var printer = message.NewPrinter(language.BrazilianPortuguese)

// BRL formats d as "R$ 1.234,56".
func BRL(d decimal.Decimal) string {
	return "R$ " + printer.Sprintf("%.2f", d.Round(2).InexactFloat64())
}

// NullBRL formats a nullable price, "-" when absent.
func NullBRL(d decimal.NullDecimal) string {
	if !d.Valid {
		return "-"
	}
	return BRL(d.Decimal)
}

// Percent formats d with one decimal place, "45,7%".
func Percent(d decimal.Decimal) string {
	return printer.Sprintf("%.1f%%", d.InexactFloat64())
}

// Summary aggregates the figures shown after a run.
type Summary struct {
	Count        int             `json:"count"`
	AvgPrice     decimal.Decimal `json:"avg_price"`
	MinPrice     decimal.Decimal `json:"min_price"`
	MaxPrice     decimal.Decimal `json:"max_price"`
	WithDiscount int             `json:"with_discount"`
	AvgDiscount  decimal.Decimal `json:"avg_discount"`
	MaxDiscount  decimal.Decimal `json:"max_discount"`
	TotalSaved   decimal.Decimal `json:"total_saved"`
	FreeShipping int             `json:"free_shipping"`
	Promotions   int             `json:"promotions"`
}

func Summarize(products []*models.Product) Summary {
	var s Summary
	var priced int
	sum := decimal.Zero
	discountSum := decimal.Zero

	for _, p := range products {
		if p == nil {
			continue
		}
		s.Count++
		if p.FreeShipping {
			s.FreeShipping++
		}
		if p.IsPromotion {
			s.Promotions++
		}

		if p.Price.Valid {
			price := p.Price.Decimal
			if priced == 0 || price.LessThan(s.MinPrice) {
				s.MinPrice = price
			}
			if priced == 0 || price.GreaterThan(s.MaxPrice) {
				s.MaxPrice = price
			}
			sum = sum.Add(price)
			priced++
		}

		if p.HasDiscount() {
			d := p.DiscountPercentage()
			s.WithDiscount++
			discountSum = discountSum.Add(d)
			if d.GreaterThan(s.MaxDiscount) {
				s.MaxDiscount = d
			}
			s.TotalSaved = s.TotalSaved.Add(p.OriginalPrice.Decimal.Sub(p.Price.Decimal))
		}
	}

	if priced > 0 {
		s.AvgPrice = sum.Div(decimal.NewFromInt(int64(priced))).Round(2)
	}
	if s.WithDiscount > 0 {
		s.AvgDiscount = discountSum.Div(decimal.NewFromInt(int64(s.WithDiscount))).Round(2)
	}
	return s
}

// WriteTable prints up to limit products as an aligned table.
func WriteTable(w io.Writer, products []*models.Product, limit int) error {
	if limit <= 0 || limit > len(products) {
		limit = len(products)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tNOME\tPREÇO\tDE\tDESCONTO\tCATEGORIA\tFRETE")
	for i, p := range products[:limit] {
		discount := "-"
		if p.HasDiscount() {
			discount = Percent(p.DiscountPercentage())
		}
		category := "-"
		if p.Category != "" {
			category = fmt.Sprintf("%s (%s)", p.Category, classifier.BandFor(p.CategoryConfidence))
		}
		shipping := "não"
		if p.FreeShipping {
			shipping = "grátis"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			i+1, Truncate(p.Name, 35), NullBRL(p.Price), NullBRL(p.OriginalPrice), discount, category, shipping)
	}
	return tw.Flush()
}

// WriteSummary prints the aggregate figures of s.
func WriteSummary(w io.Writer, s Summary) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Produtos:\t%d\n", s.Count)
	if s.Count > 0 {
		fmt.Fprintf(tw, "Preço médio:\t%s\n", BRL(s.AvgPrice))
		fmt.Fprintf(tw, "Menor preço:\t%s\n", BRL(s.MinPrice))
		fmt.Fprintf(tw, "Maior preço:\t%s\n", BRL(s.MaxPrice))
	}
	if s.WithDiscount > 0 {
		fmt.Fprintf(tw, "Com desconto:\t%d\n", s.WithDiscount)
		fmt.Fprintf(tw, "Desconto médio:\t%s\n", Percent(s.AvgDiscount))
		fmt.Fprintf(tw, "Maior desconto:\t%s\n", Percent(s.MaxDiscount))
		fmt.Fprintf(tw, "Economia total:\t%s\n", BRL(s.TotalSaved))
	}
	fmt.Fprintf(tw, "Frete grátis:\t%d\n", s.FreeShipping)
	return tw.Flush()
}

// Truncate shortens s to at most n runes, marking the cut with "...".
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	if n <= 3 {
		return string([]rune(s)[:n])
	}
	return strings.TrimSpace(string([]rune(s)[:n-3])) + "..."
}
