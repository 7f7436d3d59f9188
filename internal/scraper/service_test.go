package scraper

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/mercado-scraper/internal/cache"
	"github.com/maltedev/mercado-scraper/internal/models"
)

const discountCard = `
<div class="poly-card">
  <a class="poly-component__title" href="https://produto.mercadolivre.com.br/MLB%[1]d-fritadeira">Fritadeira Air Fryer %[1]d Litros</a>
  <div class="poly-component__price">
    <s class="andes-money-amount andes-money-amount--previous"><span class="andes-money-amount__fraction">899</span></s>
    <div class="poly-price__current"><span class="andes-money-amount"><span class="andes-money-amount__fraction">488</span></span></div>
  </div>
</div>`

const plainCard = `
<div class="poly-card">
  <a class="poly-component__title" href="https://produto.mercadolivre.com.br/MLB%[1]d-cafeteira">Cafeteira Expresso Modelo %[1]d</a>
  <div class="poly-component__price">
    <div class="poly-price__current"><span class="andes-money-amount"><span class="andes-money-amount__fraction">350</span></span></div>
  </div>
</div>`

// brokenCard has no price and is rejected.
const brokenCard = `
<div class="poly-card">
  <a class="poly-component__title" href="https://produto.mercadolivre.com.br/MLB%[1]d-x">Produto Sem Preco Nenhum %[1]d</a>
</div>`

func listingPage(start int, cards ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i, card := range cards {
		fmt.Fprintf(&b, card, start+i)
	}
	b.WriteString("</body></html>")
	return b.String()
}

func repeat(card string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = card
	}
	return out
}

type fakeFetcher struct {
	mu    sync.Mutex
	pages map[string]string
	errs  map[string]error
	calls []string
}

func (f *fakeFetcher) FetchHTML(ctx context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if err, ok := f.errs[url]; ok {
		return "", err
	}
	if html, ok := f.pages[url]; ok {
		return html, nil
	}
	return "<html><body></body></html>", nil
}

type fakePublisher struct {
	runID    uuid.UUID
	products int
}

func (p *fakePublisher) PublishRun(ctx context.Context, runID uuid.UUID, queryType string, products []*models.Product) (int, error) {
	p.runID = runID
	p.products = len(products)
	return len(products), nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.DelayMin = 0
	opts.DelayMax = 0
	return opts
}

func TestSearchTerm(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		TermURL(SearchBase, "air fryer", 1, 50): listingPage(1001, repeat(discountCard, 6)...),
		TermURL(SearchBase, "air fryer", 2, 50): listingPage(2001, repeat(discountCard, 6)...),
	}}
	svc := NewService(Deps{Fetcher: fetcher}, testOptions(), nil)

	run, err := svc.Search(context.Background(), Query{Type: cache.QuerySearchTerm, Term: "air fryer", MaxProducts: 50})
	require.NoError(t, err)

	assert.False(t, run.FromCache)
	assert.Equal(t, 3, run.Pages)
	assert.Len(t, fetcher.calls, 3)
	require.Len(t, run.Products, 12)
	assert.Equal(t, map[string]any{"term": "air fryer", "max": 50}, run.Params)

	p := run.Products[0]
	assert.Equal(t, "MLB1001", p.ProductID)
	assert.Equal(t, "Eletrodomésticos e Casa", p.Category)
	assert.InDelta(t, 0.4, p.CategoryConfidence, 1e-9)
	assert.True(t, decimal.RequireFromString("45.72").Equal(p.DiscountPercentage()))
	assert.True(t, p.IsPromotion)
}

func TestSearchStopsAtMaxProducts(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{
		TermURL(SearchBase, "air fryer", 1, 50): listingPage(1001, repeat(discountCard, 8)...),
	}}
	svc := NewService(Deps{Fetcher: fetcher}, testOptions(), nil)

	run, err := svc.Search(context.Background(), Query{Type: cache.QuerySearchTerm, Term: "air fryer", MaxProducts: 4})
	require.NoError(t, err)
	assert.Len(t, run.Products, 4)
	assert.Len(t, fetcher.calls, 1)
}

func TestSearchStopsAtMaxPages(t *testing.T) {
	fetcher := &fakeFetcher{pages: map[string]string{}}
	for page := 1; page <= 7; page++ {
		fetcher.pages[CategoryURL(BaseURL, "MLB1574", page, 50)] = listingPage(page*100, repeat(discountCard, 6)...)
	}
	svc := NewService(Deps{Fetcher: fetcher}, testOptions(), nil)

	run, err := svc.Search(context.Background(), Query{Type: cache.QuerySearchCategory, Category: "casa", MaxProducts: 500})
	require.NoError(t, err)
	assert.Equal(t, 5, run.Pages)
	assert.Len(t, run.Products, 30)
}

func TestSearchOffersKeepsDiscounted(t *testing.T) {
	cards := append(repeat(discountCard, 3), repeat(plainCard, 3)...)
	fetcher := &fakeFetcher{pages: map[string]string{
		OffersURL(BaseURL, 1, 50): listingPage(5001, cards...),
	}}
	svc := NewService(Deps{Fetcher: fetcher}, testOptions(), nil)

	run, err := svc.Search(context.Background(), Query{Type: cache.QuerySearchOffers})
	require.NoError(t, err)
	require.Len(t, run.Products, 3)
	for _, p := range run.Products {
		assert.True(t, p.OriginalPrice.Valid)
		assert.True(t, p.HasDiscount())
	}
	assert.Equal(t, map[string]any{"max": 50}, run.Params)
}

func TestSearchCountsRejections(t *testing.T) {
	cards := append(repeat(discountCard, 4), repeat(brokenCard, 2)...)
	fetcher := &fakeFetcher{pages: map[string]string{
		TermURL(SearchBase, "fritadeira", 1, 50): listingPage(1, cards...),
	}}
	svc := NewService(Deps{Fetcher: fetcher}, testOptions(), nil)

	run, err := svc.Search(context.Background(), Query{Type: cache.QuerySearchTerm, Term: "fritadeira"})
	require.NoError(t, err)
	assert.Len(t, run.Products, 4)
	assert.Equal(t, 2, run.Rejected)
	assert.Equal(t, 2, run.Causes["no_price"])
}

func TestSearchCacheAside(t *testing.T) {
	ctx := context.Background()
	store, err := cache.NewSQLiteCache(filepath.Join(t.TempDir(), "scraper.db"), time.Hour, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fetcher := &fakeFetcher{pages: map[string]string{
		TermURL(SearchBase, "air fryer", 1, 50): listingPage(1001, repeat(discountCard, 6)...),
	}}
	publisher := &fakePublisher{}
	svc := NewService(Deps{
		Fetcher:   fetcher,
		Cache:     store,
		History:   store,
		Selectors: store,
		Publisher: publisher,
	}, testOptions(), nil)

	q := Query{Type: cache.QuerySearchTerm, Term: "air fryer", MaxProducts: 10, UseCache: true}

	first, err := svc.Search(ctx, q)
	require.NoError(t, err)
	require.Len(t, first.Products, 6)
	assert.Equal(t, first.ID, publisher.runID)
	assert.Equal(t, 6, first.Published)
	calls := len(fetcher.calls)

	second, err := svc.Search(ctx, q)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Len(t, fetcher.calls, calls)
	require.Len(t, second.Products, 6)
	assert.Equal(t, first.Products[0].ProductID, second.Products[0].ProductID)
	assert.True(t, decimal.RequireFromString("45.72").Equal(second.Products[0].DiscountPercentage()))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.TotalCachedSearches)
	assert.Equal(t, 6, stats.TotalProductsTracked)

	best, err := store.BestSelectors(ctx, "name", 1)
	require.NoError(t, err)
	require.NotEmpty(t, best)
	assert.Equal(t, ".poly-component__title", best[0].Selector)
	assert.Equal(t, 6, best[0].SuccessCount)
}

func TestSearchWithoutCacheFlagSkipsCache(t *testing.T) {
	ctx := context.Background()
	store, err := cache.NewSQLiteCache(filepath.Join(t.TempDir(), "scraper.db"), time.Hour, nil)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	fetcher := &fakeFetcher{pages: map[string]string{
		TermURL(SearchBase, "air fryer", 1, 50): listingPage(1001, repeat(discountCard, 6)...),
	}}
	svc := NewService(Deps{Fetcher: fetcher, Cache: store}, testOptions(), nil)

	_, err = svc.Search(ctx, Query{Type: cache.QuerySearchTerm, Term: "air fryer"})
	require.NoError(t, err)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalCachedSearches)
}

func TestSearchFetchFailure(t *testing.T) {
	url := TermURL(SearchBase, "air fryer", 1, 50)
	fetcher := &fakeFetcher{errs: map[string]error{url: errors.New("connection reset")}}
	svc := NewService(Deps{Fetcher: fetcher}, testOptions(), nil)

	_, err := svc.Search(context.Background(), Query{Type: cache.QuerySearchTerm, Term: "air fryer"})
	assert.ErrorIs(t, err, ErrFetchFailed)

	// a failure after the first page keeps what was collected
	fetcher = &fakeFetcher{
		pages: map[string]string{url: listingPage(1001, repeat(discountCard, 6)...)},
		errs:  map[string]error{TermURL(SearchBase, "air fryer", 2, 50): errors.New("timeout")},
	}
	svc = NewService(Deps{Fetcher: fetcher}, testOptions(), nil)

	run, err := svc.Search(context.Background(), Query{Type: cache.QuerySearchTerm, Term: "air fryer"})
	require.NoError(t, err)
	assert.Len(t, run.Products, 6)
}

func TestSearchInvalidQueries(t *testing.T) {
	svc := NewService(Deps{Fetcher: &fakeFetcher{}}, testOptions(), nil)
	ctx := context.Background()

	_, err := svc.Search(ctx, Query{Type: cache.QuerySearchTerm, Term: "   "})
	assert.ErrorIs(t, err, ErrEmptyTerm)

	_, err = svc.Search(ctx, Query{Type: cache.QuerySearchCategory, Category: "brinquedos"})
	assert.ErrorIs(t, err, ErrUnknownCategory)

	_, err = svc.Search(ctx, Query{Type: "search_seller"})
	assert.ErrorIs(t, err, ErrUnknownQueryType)
}

func TestSearchHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc := NewService(Deps{Fetcher: &fakeFetcher{}}, testOptions(), nil)
	_, err := svc.Search(ctx, Query{Type: cache.QuerySearchOffers})
	assert.Error(t, err)
}
