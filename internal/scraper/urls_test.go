package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/mercado-scraper/internal/cache"
)

func TestTermURL(t *testing.T) {
	assert.Equal(t, "https://lista.mercadolivre.com.br/air-fryer", TermURL(SearchBase, "  air   fryer ", 1, 50))
	assert.Equal(t, "https://lista.mercadolivre.com.br/air-fryer_Desde_51", TermURL(SearchBase, "air fryer", 2, 50))
	assert.Equal(t, "https://lista.mercadolivre.com.br/smart-tv_Desde_201", TermURL(SearchBase+"/", "smart tv", 5, 50))
}

func TestCategoryURL(t *testing.T) {
	assert.Equal(t, "https://www.mercadolivre.com.br/c/MLB1000", CategoryURL(BaseURL, "MLB1000", 1, 50))
	assert.Equal(t, "https://www.mercadolivre.com.br/c/MLB1000#D[A:101]", CategoryURL(BaseURL, "MLB1000", 3, 50))
}

func TestOffersURL(t *testing.T) {
	assert.Equal(t, "https://www.mercadolivre.com.br/ofertas", OffersURL(BaseURL, 1, 50))
	assert.Equal(t, "https://www.mercadolivre.com.br/ofertas#D[A:51]", OffersURL(BaseURL, 2, 50))
}

func TestResolveCategory(t *testing.T) {
	id, err := ResolveCategory("Games")
	require.NoError(t, err)
	assert.Equal(t, "MLB1144", id)

	id, err = ResolveCategory("mlb5672")
	require.NoError(t, err)
	assert.Equal(t, "MLB5672", id)

	_, err = ResolveCategory("brinquedos")
	assert.ErrorIs(t, err, ErrUnknownCategory)

	assert.Len(t, CategoryNames(), len(CategorySlugs))
	assert.Equal(t, "automotivo", CategoryNames()[0])
}

func TestQueryType(t *testing.T) {
	tests := []struct {
		mode string
		want string
	}{
		{"term", cache.QuerySearchTerm},
		{" Term ", cache.QuerySearchTerm},
		{"search_term", cache.QuerySearchTerm},
		{"category", cache.QuerySearchCategory},
		{"offers", cache.QuerySearchOffers},
		{"ofertas", cache.QuerySearchOffers},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			got, err := QueryType(tt.mode)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := QueryType("wishlist")
	assert.ErrorIs(t, err, ErrUnknownQueryType)
}
