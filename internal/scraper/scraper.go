package scraper

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyTerm        = errors.New("empty search term")
	ErrUnknownCategory  = errors.New("unknown category")
	ErrUnknownQueryType = errors.New("unknown query type")
	ErrFetchFailed      = errors.New("failed to fetch listing page")
)

// Fetcher returns the markup of a listing page.
type Fetcher interface {
	FetchHTML(ctx context.Context, url string) (string, error)
}

type Options struct {
	MaxPages    int
	PageSize    int
	MaxProducts int
	DelayMin    time.Duration
	DelayMax    time.Duration
	BaseURL     string
	SearchBase  string
}

func DefaultOptions() Options {
	return Options{
		MaxPages:    5,
		PageSize:    50,
		MaxProducts: 50,
		DelayMin:    time.Second,
		DelayMax:    3 * time.Second,
		BaseURL:     BaseURL,
		SearchBase:  SearchBase,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxPages <= 0 {
		o.MaxPages = d.MaxPages
	}
	if o.PageSize <= 0 {
		o.PageSize = d.PageSize
	}
	if o.MaxProducts <= 0 {
		o.MaxProducts = d.MaxProducts
	}
	if o.BaseURL == "" {
		o.BaseURL = d.BaseURL
	}
	if o.SearchBase == "" {
		o.SearchBase = d.SearchBase
	}
	return o
}
