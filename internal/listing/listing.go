package listing

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/mercado-scraper/internal/extract"
)

const (
	minContainers = 5
	maxContainers = 50
)

var whitespace = regexp.MustCompile(`\s+`)

// Selectors lists the CSS selectors tried for each field, highest priority first.
type Selectors struct {
	Containers     []string
	Names          []string
	Prices         []string
	OriginalPrices []string
	Links          []string
	Images         []string
}

func DefaultSelectors() Selectors {
	return Selectors{
		Containers: []string{
			".ui-search-result",
			".ui-search-results__item",
			"article[data-testid]",
			".poly-card",
			".andes-card",
			`[class*="item"]`,
		},
		Names: []string{
			".poly-component__title",
			".ui-search-item__title a",
			"h3 a",
			".ui-search-item__title",
			"h2 a",
			"h3",
		},
		Prices: []string{
			".poly-price__current .andes-money-amount__fraction",
			".andes-money-amount--cents-superscript .andes-money-amount__fraction",
			".ui-search-price__second-line .andes-money-amount__fraction",
			".poly-component__price .andes-money-amount:not(.andes-money-amount--previous) .andes-money-amount__fraction",
			".andes-money-amount:not(.andes-money-amount--previous) .andes-money-amount__fraction",
		},
		OriginalPrices: []string{
			"s.andes-money-amount.andes-money-amount--previous .andes-money-amount__fraction",
			"s.andes-money-amount--previous .andes-money-amount__fraction",
			".andes-money-amount--previous .andes-money-amount__fraction",
			".ui-search-price__original-value .andes-money-amount__fraction",
			"s .andes-money-amount__fraction",
			"del .andes-money-amount__fraction",
		},
		Links: []string{
			".poly-component__title[href]",
			"a.ui-search-link[href]",
			"h3 a[href]",
			`a[href*="/p/"], a[href*="ML"]`,
		},
		Images: []string{
			"img[src], img[data-src]",
		},
	}
}

// Parser harvests extraction fragments from a search results page.
type Parser struct {
	selectors Selectors
	logger    *slog.Logger
}

func NewParser(selectors Selectors, logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{
		selectors: selectors,
		logger:    logger.With("component", "listing_parser"),
	}
}

func (p *Parser) Selectors() Selectors {
	return p.selectors
}

// Fragments returns one fragment per listing container. The first container
// selector with more than five matches is used and at most fifty containers are read.
func (p *Parser) Fragments(html string) ([]extract.Fragment, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	for _, sel := range p.selectors.Containers {
		containers := doc.Find(sel)
		if containers.Length() <= minContainers {
			continue
		}

		p.logger.Debug("container selector matched", "selector", sel, "count", containers.Length())

		fragments := make([]extract.Fragment, 0, maxContainers)
		containers.EachWithBreak(func(i int, s *goquery.Selection) bool {
			if i >= maxContainers {
				return false
			}
			fragments = append(fragments, p.fragment(s))
			return true
		})
		return fragments, nil
	}

	p.logger.Debug("no listing containers found")
	return []extract.Fragment{}, nil
}

func (p *Parser) fragment(s *goquery.Selection) extract.Fragment {
	f := extract.Fragment{
		Text: collapse(s.Text()),
	}

	for _, sel := range p.selectors.Names {
		el := s.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		text := collapse(el.Text())
		if text == "" {
			text, _ = el.Attr("title")
		}
		f.Names = append(f.Names, extract.Candidate{Selector: sel, Text: text})
	}

	f.Prices = textCandidates(s, p.selectors.Prices)
	f.OriginalPrices = textCandidates(s, p.selectors.OriginalPrices)

	for _, sel := range p.selectors.Links {
		el := s.Find(sel).First()
		if href, ok := el.Attr("href"); ok {
			f.URLs = append(f.URLs, extract.Candidate{Selector: sel, Text: href})
		}
	}

	for _, sel := range p.selectors.Images {
		el := s.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		src, _ := el.Attr("src")
		if src == "" {
			src, _ = el.Attr("data-src")
		}
		f.Images = append(f.Images, extract.Candidate{Selector: sel, Text: src})
	}

	return f
}

func textCandidates(s *goquery.Selection, selectors []string) []extract.Candidate {
	var out []extract.Candidate
	for _, sel := range selectors {
		el := s.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		out = append(out, extract.Candidate{Selector: sel, Text: collapse(el.Text())})
	}
	return out
}

func collapse(s string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
}
