package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/maltedev/mercado-scraper/internal/models"
)

var (
	nonNumericPattern = regexp.MustCompile(`[^\d,.]`)
	numericPattern    = regexp.MustCompile(`^\d*\.?\d*$`)
	ratingPattern     = regexp.MustCompile(`(\d+[,.]\d+)`)
	integerPattern    = regexp.MustCompile(`(\d+)`)
	nonDigitPattern   = regexp.MustCompile(`\D`)
)

var promotionKeywords = []string{
	"desconto", "promoção", "oferta", "liquidação",
	"sale", "off", "%", "economize", "imperdível",
	"black friday", "cyber monday", "queima",
}

var shippingKeywords = []string{
	"frete grátis", "frete gratuito", "grátis",
	"free shipping", "sem custo de envio",
}

// decimalPointLimit bounds the integer part of a lone-dot value read as a decimal point.
// "99.90" is a decimal while "1.049" and "199.99" are read as thousands.
var decimalPointLimit = decimal.NewFromInt(100)

// ParsePrice converts scraped price text in Brazilian or US notation into a decimal.
// It returns false when no numeric content survives cleaning.
func ParsePrice(text string) (decimal.Decimal, bool) {
	clean := nonNumericPattern.ReplaceAllString(strings.TrimSpace(text), "")
	if clean == "" {
		return decimal.Decimal{}, false
	}

	hasComma := strings.Contains(clean, ",")
	hasDot := strings.Contains(clean, ".")

	var normalized string
	switch {
	case hasComma && hasDot:
		if strings.LastIndex(clean, ",") > strings.LastIndex(clean, ".") {
			normalized = strings.ReplaceAll(strings.ReplaceAll(clean, ".", ""), ",", ".")
		} else {
			normalized = strings.ReplaceAll(clean, ",", "")
		}
	case hasComma:
		normalized = strings.ReplaceAll(clean, ",", ".")
	case hasDot:
		parts := strings.Split(clean, ".")
		if len(parts) == 2 && len(parts[1]) <= 2 {
			if parts[0] == "" {
				return decimal.Decimal{}, false
			}
			if isSmallInteger(parts[0]) {
				normalized = clean
				break
			}
		}
		normalized = strings.ReplaceAll(clean, ".", "")
	default:
		normalized = clean
	}

	return toDecimal(normalized)
}

func isSmallInteger(s string) bool {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return false
	}
	return d.LessThan(decimalPointLimit)
}

func toDecimal(s string) (decimal.Decimal, bool) {
	if !numericPattern.MatchString(s) || strings.Trim(s, ".") == "" {
		return decimal.Decimal{}, false
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	s = strings.TrimSuffix(s, ".")

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// ExtractProductID returns the marketplace item id embedded in a product URL.
func ExtractProductID(url string) (string, bool) {
	return models.ExtractProductID(url)
}

// ExtractRating reads a star rating such as "4,7" or "5 estrelas".
// Whole numbers above 5 are not ratings.
func ExtractRating(text string) (float64, bool) {
	if text == "" {
		return 0, false
	}

	if m := ratingPattern.FindStringSubmatch(text); m != nil {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
		if err == nil {
			return v, true
		}
	}

	if m := integerPattern.FindStringSubmatch(text); m != nil {
		v, err := strconv.Atoi(m[1])
		if err == nil && v <= 5 {
			return float64(v), true
		}
	}

	return 0, false
}

// ExtractReviewsCount reads the digits out of text like "(1.234 avaliações)".
func ExtractReviewsCount(text string) (int, bool) {
	digits := nonDigitPattern.ReplaceAllString(text, "")
	if digits == "" {
		return 0, false
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// IsPromotionIndicator reports whether the text carries promotional wording.
func IsPromotionIndicator(text string) bool {
	return containsAny(text, promotionKeywords)
}

// HasFreeShipping reports whether the text advertises free shipping.
func HasFreeShipping(text string) bool {
	return containsAny(text, shippingKeywords)
}

func containsAny(text string, keywords []string) bool {
	if text == "" {
		return false
	}
	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
