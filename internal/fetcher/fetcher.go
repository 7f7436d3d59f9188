package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

var ErrEmptyResponse = errors.New("empty response body")

// DefaultAllowedDomains are the marketplace hosts listing pages live on.
var DefaultAllowedDomains = []string{
	"www.mercadolivre.com.br",
	"lista.mercadolivre.com.br",
	"produto.mercadolivre.com.br",
}

type Options struct {
	UserAgents     []string
	AllowedDomains []string
	AcceptLanguage string
	Timeout        time.Duration
}

func DefaultOptions() Options {
	return Options{
		UserAgents: []string{
			"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		},
		AllowedDomains: DefaultAllowedDomains,
		AcceptLanguage: "pt-BR,pt;q=0.9,en;q=0.8",
		Timeout:        30 * time.Second,
	}
}

// Fetcher downloads listing pages without a browser.
type Fetcher struct {
	base   *colly.Collector
	opts   Options
	logger *slog.Logger
}

func New(opts Options, logger *slog.Logger) *Fetcher {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	c := colly.NewCollector(
		colly.AllowURLRevisit(),
	)
	if len(opts.AllowedDomains) > 0 {
		c.AllowedDomains = opts.AllowedDomains
	}
	c.SetRequestTimeout(opts.Timeout)

	return &Fetcher{
		base:   c,
		opts:   opts,
		logger: logger.With("component", "fetcher"),
	}
}

// FetchHTML returns the body of url, failing on transport errors and non-2xx statuses.
func (f *Fetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	c := f.base.Clone()
	c.Context = ctx

	var (
		body     []byte
		fetchErr error
		status   int
	)

	c.OnRequest(func(r *colly.Request) {
		if ua := f.userAgent(); ua != "" {
			r.Headers.Set("User-Agent", ua)
		}
		if f.opts.AcceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.opts.AcceptLanguage)
		}
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = r.Body
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = err
	})

	if err := c.Visit(url); err != nil {
		if fetchErr == nil {
			fetchErr = err
		}
	}
	c.Wait()

	if fetchErr != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("failed to fetch %s (status %d): %w", url, status, fetchErr)
	}
	if status != 0 && status != http.StatusOK {
		return "", fmt.Errorf("failed to fetch %s: unexpected status %d", url, status)
	}
	if len(body) == 0 {
		return "", fmt.Errorf("failed to fetch %s: %w", url, ErrEmptyResponse)
	}

	f.logger.Debug("page fetched", "url", url, "bytes", len(body))
	return string(body), nil
}

func (f *Fetcher) userAgent() string {
	if len(f.opts.UserAgents) == 0 {
		return ""
	}
	return f.opts.UserAgents[rand.Intn(len(f.opts.UserAgents))]
}
