package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/mercado-scraper/internal/cache"
	"github.com/maltedev/mercado-scraper/internal/classifier"
	"github.com/maltedev/mercado-scraper/internal/events"
	"github.com/maltedev/mercado-scraper/internal/extract"
	"github.com/maltedev/mercado-scraper/internal/listing"
	"github.com/maltedev/mercado-scraper/internal/models"
	"github.com/maltedev/mercado-scraper/internal/ratelimit"
)

// Query describes one search request.
type Query struct {
	Type        string `json:"type"`
	Term        string `json:"term,omitempty"`
	Category    string `json:"category,omitempty"`
	MaxProducts int    `json:"max_products"`
	UseCache    bool   `json:"use_cache"`
}

// Run is the outcome of one search.
type Run struct {
	ID         uuid.UUID         `json:"id"`
	QueryType  string            `json:"query_type"`
	Params     map[string]any    `json:"params"`
	Products   []*models.Product `json:"products"`
	FromCache  bool              `json:"from_cache"`
	Pages      int               `json:"pages"`
	Rejected   int               `json:"rejected"`
	Causes     map[string]int    `json:"causes,omitempty"`
	Published  int               `json:"published"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
}

// HistoryRecorder appends accepted products to a price history.
type HistoryRecorder interface {
	SaveHistory(ctx context.Context, products []*models.Product) error
}

// SelectorRecorder accumulates selector hit rates.
type SelectorRecorder interface {
	RecordSelectorCounts(ctx context.Context, counts []cache.SelectorCount) error
}

// Deps are the collaborators of a Service. Only Fetcher is required.
type Deps struct {
	Fetcher    Fetcher
	Listing    *listing.Parser
	Reconciler *extract.Reconciler
	Classifier *classifier.Classifier
	Cache      cache.SearchCache
	History    HistoryRecorder
	Selectors  SelectorRecorder
	Publisher  events.Publisher
	Limiter    ratelimit.RateLimiter
}

// Service runs searches end to end: fetch, harvest, reconcile, classify,
// then cache, record history and publish.
type Service struct {
	deps   Deps
	opts   Options
	logger *slog.Logger
}

func NewService(deps Deps, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	if deps.Listing == nil {
		deps.Listing = listing.NewParser(listing.DefaultSelectors(), logger)
	}
	if deps.Reconciler == nil {
		deps.Reconciler = extract.NewReconciler(logger)
	}
	if deps.Classifier == nil {
		deps.Classifier = classifier.New(nil)
	}
	if deps.Cache == nil {
		deps.Cache = cache.Noop{}
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewAdaptiveRateLimiter(opts.DelayMin, opts.DelayMax)
	}

	return &Service{
		deps:   deps,
		opts:   opts,
		logger: logger.With("component", "scraper"),
	}
}

// QueryType maps a short mode name ("term", "category", "offers") or a full
// query type to the query type used in cache keys.
func QueryType(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "term", "search", cache.QuerySearchTerm:
		return cache.QuerySearchTerm, nil
	case "category", cache.QuerySearchCategory:
		return cache.QuerySearchCategory, nil
	case "offers", "ofertas", cache.QuerySearchOffers:
		return cache.QuerySearchOffers, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownQueryType, mode)
	}
}

func (s *Service) Options() Options {
	return s.opts
}

// Params returns the normalized query parameters used for cache keys.
func (s *Service) Params(q Query) (map[string]any, error) {
	max := q.MaxProducts
	if max <= 0 {
		max = s.opts.MaxProducts
	}

	switch q.Type {
	case cache.QuerySearchTerm:
		term := strings.TrimSpace(q.Term)
		if term == "" {
			return nil, ErrEmptyTerm
		}
		return map[string]any{"term": term, "max": max}, nil
	case cache.QuerySearchCategory:
		if _, err := ResolveCategory(q.Category); err != nil {
			return nil, err
		}
		return map[string]any{"category": strings.ToLower(strings.TrimSpace(q.Category)), "max": max}, nil
	case cache.QuerySearchOffers:
		return map[string]any{"max": max}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownQueryType, q.Type)
	}
}

func (s *Service) pageURL(q Query, page int) string {
	switch q.Type {
	case cache.QuerySearchTerm:
		return TermURL(s.opts.SearchBase, q.Term, page, s.opts.PageSize)
	case cache.QuerySearchCategory:
		id, _ := ResolveCategory(q.Category)
		return CategoryURL(s.opts.BaseURL, id, page, s.opts.PageSize)
	default:
		return OffersURL(s.opts.BaseURL, page, s.opts.PageSize)
	}
}

// Search runs q, serving from the cache when allowed and fresh.
func (s *Service) Search(ctx context.Context, q Query) (*Run, error) {
	params, err := s.Params(q)
	if err != nil {
		return nil, err
	}
	max := params["max"].(int)

	run := &Run{
		ID:        uuid.New(),
		QueryType: q.Type,
		Params:    params,
		StartedAt: time.Now(),
		Causes:    map[string]int{},
	}

	key, err := cache.Key(q.Type, params)
	if err != nil {
		return nil, err
	}

	if q.UseCache {
		products, ok, err := s.deps.Cache.Get(ctx, key)
		if err != nil {
			s.logger.Warn("cache read failed", "key", key, "error", err)
		}
		if ok {
			run.Products = products
			run.FromCache = true
			run.FinishedAt = time.Now()
			s.logger.Info("serving search from cache", "run_id", run.ID, "query_type", q.Type, "products", len(products))
			return run, nil
		}
	}

	if err := s.scrape(ctx, q, max, run); err != nil {
		return nil, err
	}

	if len(run.Products) > 0 {
		s.persist(ctx, q, key, run)
	}

	run.FinishedAt = time.Now()
	s.logger.Info("search finished",
		"run_id", run.ID,
		"query_type", q.Type,
		"pages", run.Pages,
		"products", len(run.Products),
		"rejected", run.Rejected,
		"duration", run.FinishedAt.Sub(run.StartedAt),
	)
	return run, nil
}

func (s *Service) scrape(ctx context.Context, q Query, max int, run *Run) error {
	classify := classifier.NewCached(s.deps.Classifier, nil)
	adaptive, _ := s.deps.Limiter.(*ratelimit.AdaptiveRateLimiter)

	for page := 1; len(run.Products) < max && page <= s.opts.MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.deps.Limiter.Wait(ctx); err != nil {
			return err
		}

		pageURL := s.pageURL(q, page)
		s.logger.Debug("fetching listing page", "url", pageURL, "page", page)

		html, err := s.deps.Fetcher.FetchHTML(ctx, pageURL)
		if err != nil {
			if adaptive != nil {
				adaptive.RecordError()
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if page == 1 {
				return fmt.Errorf("%w: %w", ErrFetchFailed, err)
			}
			s.logger.Warn("stopping after fetch failure", "url", pageURL, "error", err)
			break
		}
		if adaptive != nil {
			adaptive.RecordSuccess()
		}

		fragments, err := s.deps.Listing.Fragments(html)
		if err != nil {
			return err
		}
		run.Pages++

		products := s.reconcilePage(ctx, fragments, classify, run)
		if len(products) == 0 {
			break
		}

		if q.Type == cache.QuerySearchOffers {
			products = discounted(products)
		}
		run.Products = append(run.Products, products...)
	}

	if len(run.Products) > max {
		run.Products = run.Products[:max]
	}
	return nil
}

func (s *Service) reconcilePage(ctx context.Context, fragments []extract.Fragment, classify *classifier.CachedClassifier, run *Run) []*models.Product {
	tally := newSelectorTally()
	products := make([]*models.Product, 0, len(fragments))

	for _, f := range fragments {
		p, sel, err := s.deps.Reconciler.ReconcileWithSelection(f)
		tally.add(f, sel, err)
		if err != nil {
			run.Rejected++
			run.Causes[extract.Cause(err)]++
			continue
		}

		if r := classify.Classify(p.Name, p.URL, ""); r.Found() {
			if err := p.SetCategory(r.Category, r.Confidence); err != nil {
				s.logger.Warn("classification discarded", "product_id", p.ProductID, "error", err)
			}
		}
		products = append(products, p)
	}

	if s.deps.Selectors != nil {
		if err := s.deps.Selectors.RecordSelectorCounts(ctx, tally.counts()); err != nil {
			s.logger.Warn("failed to record selector stats", "error", err)
		}
	}
	return products
}

// persist stores a fresh run. Failures are logged; the run itself succeeded.
func (s *Service) persist(ctx context.Context, q Query, key string, run *Run) {
	if q.UseCache {
		err := s.deps.Cache.Put(ctx, cache.Entry{
			Key:       key,
			QueryType: q.Type,
			Params:    run.Params,
			Products:  run.Products,
		})
		if err != nil {
			s.logger.Warn("cache write failed", "key", key, "error", err)
		}
	}

	if s.deps.History != nil {
		if err := s.deps.History.SaveHistory(ctx, run.Products); err != nil {
			s.logger.Warn("failed to save price history", "error", err)
		}
	}

	if s.deps.Publisher != nil {
		n, err := s.deps.Publisher.PublishRun(ctx, run.ID, q.Type, run.Products)
		run.Published = n
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("failed to publish run", "run_id", run.ID, "error", err)
		}
	}
}

// discounted keeps products with an original price and a positive discount.
func discounted(products []*models.Product) []*models.Product {
	out := products[:0]
	for _, p := range products {
		if p.OriginalPrice.Valid && p.HasDiscount() {
			out = append(out, p)
		}
	}
	return out
}
