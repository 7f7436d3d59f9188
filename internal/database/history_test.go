package database

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/mercado-scraper/internal/models"
)

func historyProduct(t *testing.T, id, price, original string, at time.Time) *models.Product {
	t.Helper()

	in := models.ProductInput{
		Name:      "Smart TV 50 4K " + id,
		Price:     models.NullPrice(decimal.RequireFromString(price)),
		URL:       "https://produto.mercadolivre.com.br/" + id,
		ScrapedAt: at,
	}
	if original != "" {
		in.OriginalPrice = models.NullPrice(decimal.RequireFromString(original))
	}
	p, err := models.NewProduct(in)
	require.NoError(t, err)
	return p
}

func TestNullableDecimalText(t *testing.T) {
	assert.Nil(t, nullableText(decimal.NullDecimal{}))
	s := nullableText(models.NullPrice(decimal.RequireFromString("2599.9")))
	require.NotNil(t, s)
	assert.Equal(t, "2599.90", *s)

	assert.False(t, parseNullable(nil).Valid)
	bad := "abc"
	assert.False(t, parseNullable(&bad).Valid)
	good := "488.00"
	assert.True(t, decimal.NewFromInt(488).Equal(parseNullable(&good).Decimal))
}

func TestHistoryRepository(t *testing.T) {
	ctx := context.Background()
	db := setupTestDB(t)
	repo := NewHistoryRepository(db)

	runID := uuid.New()
	now := time.Now().UTC().Truncate(time.Second)
	products := []*models.Product{
		historyProduct(t, "MLB1001", "520", "899", now.Add(-48*time.Hour)),
		historyProduct(t, "MLB1001", "488", "899", now.Add(-time.Hour)),
		historyProduct(t, "MLB2002", "99.90", "", now),
		nil,
	}

	n, err := repo.InsertPriceHistory(ctx, runID, products)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	latest, err := repo.LatestPrices(ctx, 10)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, "MLB2002", latest[0].ProductID)
	assert.False(t, latest[0].OriginalPrice.Valid)
	assert.Equal(t, "MLB1001", latest[1].ProductID)
	assert.True(t, decimal.NewFromInt(488).Equal(latest[1].Price.Decimal))
	assert.True(t, decimal.RequireFromString("45.72").Equal(latest[1].DiscountPercentage))
	assert.Equal(t, runID, latest[1].RunID)

	history, err := repo.ProductHistory(ctx, "MLB1001", now.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Len(t, history, 1)
}
