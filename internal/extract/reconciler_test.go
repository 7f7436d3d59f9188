package extract

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/mercado-scraper/internal/classifier"
	"github.com/maltedev/mercado-scraper/internal/models"
)

func fryerFragment() Fragment {
	return Fragment{
		Names: []Candidate{
			{Selector: ".poly-component__title", Text: "Fritadeira Air Fryer"},
		},
		Prices: []Candidate{
			{Selector: ".poly-price__current .andes-money-amount__fraction", Text: "R$ 488,00"},
		},
		OriginalPrices: []Candidate{
			{Selector: "s.andes-money-amount--previous .andes-money-amount__fraction", Text: "R$ 899,00"},
		},
		URLs: []Candidate{
			{Selector: ".poly-component__title[href]", Text: "https://produto.mercadolivre.com.br/MLB1234567890-fritadeira-air-fryer"},
		},
		Images: []Candidate{
			{Selector: "img[data-src]", Text: ""},
			{Selector: "img[src]", Text: "https://http2.mlstatic.com/D_fryer.webp"},
		},
		Text: "Fritadeira Air Fryer R$ 899 R$ 488",
	}
}

func TestReconcileEndToEnd(t *testing.T) {
	r := NewReconciler(nil)

	p, err := r.Reconcile(fryerFragment())
	require.NoError(t, err)

	assert.True(t, decimal.NewFromInt(488).Equal(p.Price.Decimal))
	assert.True(t, decimal.NewFromInt(899).Equal(p.OriginalPrice.Decimal))
	assert.True(t, decimal.RequireFromString("45.72").Equal(p.DiscountPercentage()))
	assert.True(t, p.IsPromotion)
	assert.False(t, p.FreeShipping)
	assert.Equal(t, "https://http2.mlstatic.com/D_fryer.webp", p.ImageURL)
	assert.True(t, p.Usable())

	result := classifier.New(classifier.DefaultTaxonomy()).Classify(p.Name, p.URL, "")
	require.NoError(t, p.SetCategory(result.Category, result.Confidence))
	assert.Equal(t, "Eletrodomésticos e Casa", p.Category)
	assert.Equal(t, 0.4, p.CategoryConfidence)
	assert.Equal(t, classifier.SourceKeyword, result.Source)
}

func TestReconcileCurrentPricePriority(t *testing.T) {
	f := fryerFragment()
	f.Prices = []Candidate{
		{Selector: "first", Text: ""},
		{Selector: "second", Text: "R$ 9,90"},
		{Selector: "third", Text: "R$ 150"},
		{Selector: "fourth", Text: "R$ 120"},
	}

	p, sel, err := NewReconciler(nil).ReconcileWithSelection(f)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(150).Equal(p.Price.Decimal))
	assert.Equal(t, "third", sel.Price)
}

func TestReconcileOriginalPriceMustExceedCurrent(t *testing.T) {
	tests := []struct {
		name      string
		originals []Candidate
		expected  string
		selector  string
	}{
		{
			name:      "lower original skipped",
			originals: []Candidate{{Selector: "a", Text: "R$ 300"}, {Selector: "b", Text: "R$ 600"}},
			expected:  "600",
			selector:  "b",
		},
		{
			name:      "equal original skipped",
			originals: []Candidate{{Selector: "a", Text: "488"}},
		},
		{
			name:      "below sanity threshold skipped",
			originals: []Candidate{{Selector: "a", Text: "5"}, {Selector: "b", Text: "abc"}},
		},
		{
			name:      "no candidates",
			originals: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fryerFragment()
			f.OriginalPrices = tt.originals
			f.Text = "Fritadeira"

			p, sel, err := NewReconciler(nil).ReconcileWithSelection(f)
			require.NoError(t, err)

			if tt.expected == "" {
				assert.False(t, p.OriginalPrice.Valid)
				assert.True(t, p.DiscountPercentage().IsZero())
				assert.False(t, p.IsPromotion)
				return
			}
			assert.True(t, decimal.RequireFromString(tt.expected).Equal(p.OriginalPrice.Decimal))
			assert.Equal(t, tt.selector, sel.OriginalPrice)
			assert.True(t, p.OriginalPrice.Decimal.GreaterThan(p.Price.Decimal))
		})
	}
}

func TestReconcileRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Fragment)
		wantErr error
		cause   string
	}{
		{
			name:    "no price",
			mutate:  func(f *Fragment) { f.Prices = []Candidate{{Text: "grátis"}, {Text: "R$ 5"}} },
			wantErr: ErrNoPrice,
			cause:   "no_price",
		},
		{
			name:    "short name",
			mutate:  func(f *Fragment) { f.Names = []Candidate{{Text: "Fritadeira"}} },
			wantErr: ErrNoName,
			cause:   "no_name",
		},
		{
			name:    "skip word in name",
			mutate:  func(f *Fragment) { f.Names = []Candidate{{Text: "Confira as ofertas do dia"}} },
			wantErr: ErrNoName,
			cause:   "no_name",
		},
		{
			name:    "link without item id",
			mutate:  func(f *Fragment) { f.URLs = []Candidate{{Text: "https://www.mercadolivre.com.br/ajuda"}} },
			wantErr: ErrNoURL,
			cause:   "no_url",
		},
		{
			name:    "price above domain range",
			mutate:  func(f *Fragment) { f.Prices = []Candidate{{Text: "R$ 2.000.000"}}; f.OriginalPrices = nil },
			wantErr: models.ErrPriceOutOfRange,
			cause:   "invalid",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fryerFragment()
			tt.mutate(&f)

			p, err := NewReconciler(nil).Reconcile(f)
			assert.Nil(t, p)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.ErrorIs(t, err, ErrRejected)
			assert.Equal(t, tt.cause, Cause(err))
		})
	}
}

func TestReconcileNameFallsThrough(t *testing.T) {
	f := fryerFragment()
	f.Names = []Candidate{
		{Selector: "h3", Text: "Ofertas"},
		{Selector: "h2 a", Text: "Economiza até 40% hoje mesmo"},
		{Selector: "title", Text: "Cafeteira Expresso 15 Bar"},
	}

	p, sel, err := NewReconciler(nil).ReconcileWithSelection(f)
	require.NoError(t, err)
	assert.Equal(t, "Cafeteira Expresso 15 Bar", p.Name)
	assert.Equal(t, "title", sel.Name)
}

func TestReconcilePromotionAndShippingFlags(t *testing.T) {
	tests := []struct {
		name      string
		text      string
		promotion bool
		shipping  bool
	}{
		{name: "off token", text: "10% OFF", promotion: true},
		{name: "keyword", text: "Oferta relâmpago", promotion: true},
		{name: "free shipping", text: "Frete grátis", shipping: true},
		{name: "plain", text: "Chegará amanhã"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := fryerFragment()
			f.OriginalPrices = nil
			f.Text = tt.text

			p, err := NewReconciler(nil).Reconcile(f)
			require.NoError(t, err)
			assert.Equal(t, tt.promotion, p.IsPromotion)
			assert.Equal(t, tt.shipping, p.FreeShipping)
		})
	}
}

func TestReconcileRelativeURL(t *testing.T) {
	f := fryerFragment()
	f.URLs = []Candidate{{Text: "/fritadeira/p/MLB19876543"}}

	p, err := NewReconciler(nil).Reconcile(f)
	require.NoError(t, err)
	assert.Equal(t, "https://www.mercadolivre.com.br/fritadeira/p/MLB19876543", p.URL)
	assert.Equal(t, "MLB19876543", p.ProductID)
}

func TestReconcileAll(t *testing.T) {
	bad := fryerFragment()
	bad.Prices = nil
	noLink := fryerFragment()
	noLink.URLs = nil

	products, report := NewReconciler(nil).ReconcileAll([]Fragment{fryerFragment(), bad, noLink, fryerFragment()})

	assert.Len(t, products, 2)
	assert.Equal(t, 2, report.Accepted)
	assert.Equal(t, 2, report.Rejected)
	assert.Equal(t, map[string]int{"no_price": 1, "no_url": 1}, report.Causes)
}

func TestReconcileEmptyFragmentDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		_, err := NewReconciler(nil).Reconcile(Fragment{})
		assert.ErrorIs(t, err, ErrRejected)
	})
}
