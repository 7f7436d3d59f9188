package scraper

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/maltedev/mercado-scraper/internal/models"
)

const (
	BaseURL    = models.BaseURL
	SearchBase = "https://lista.mercadolivre.com.br"
)

// CategorySlugs maps the short category names accepted on the command line
// to marketplace category ids.
var CategorySlugs = map[string]string{
	"eletronicos": "MLB1000",
	"celulares":   "MLB1055",
	"informatica": "MLB1648",
	"casa":        "MLB1574",
	"moda":        "MLB1430",
	"esportes":    "MLB1276",
	"livros":      "MLB3025",
	"beleza":      "MLB263532",
	"games":       "MLB1144",
	"automotivo":  "MLB1743",
}

var categoryIDPattern = regexp.MustCompile(`^MLB\d+$`)

// ResolveCategory accepts a slug or a raw MLB id.
func ResolveCategory(category string) (string, error) {
	c := strings.TrimSpace(category)
	if id, ok := CategorySlugs[strings.ToLower(c)]; ok {
		return id, nil
	}
	if categoryIDPattern.MatchString(strings.ToUpper(c)) {
		return strings.ToUpper(c), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, category)
}

// CategoryNames lists the known slugs in alphabetical order.
func CategoryNames() []string {
	names := make([]string, 0, len(CategorySlugs))
	for name := range CategorySlugs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func offset(page, pageSize int) int {
	return (page-1)*pageSize + 1
}

// TermURL builds the search listing URL for page (1-based).
func TermURL(searchBase, term string, page, pageSize int) string {
	slug := url.PathEscape(strings.Join(strings.Fields(term), "-"))
	u := fmt.Sprintf("%s/%s", strings.TrimRight(searchBase, "/"), slug)
	if page > 1 {
		u += fmt.Sprintf("_Desde_%d", offset(page, pageSize))
	}
	return u
}

// CategoryURL builds the category listing URL for page (1-based).
func CategoryURL(base, categoryID string, page, pageSize int) string {
	u := fmt.Sprintf("%s/c/%s", strings.TrimRight(base, "/"), categoryID)
	if page > 1 {
		u += fmt.Sprintf("#D[A:%d]", offset(page, pageSize))
	}
	return u
}

// OffersURL builds the offers listing URL for page (1-based).
func OffersURL(base string, page, pageSize int) string {
	u := strings.TrimRight(base, "/") + "/ofertas"
	if page > 1 {
		u += fmt.Sprintf("#D[A:%d]", offset(page, pageSize))
	}
	return u
}
