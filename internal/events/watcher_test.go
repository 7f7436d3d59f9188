package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/mercado-scraper/internal/models"
)

func priceEvent(id string, price, discount float64) *ProductScrapedPayload {
	return &ProductScrapedPayload{
		ProductID: id,
		RunID:     "run-1",
		Product: models.Record{
			Name:               "Fritadeira Air Fryer " + id,
			Price:              &price,
			DiscountPercentage: discount,
			URL:                "https://produto.mercadolivre.com.br/" + id,
		},
	}
}

func TestPriceWatcher(t *testing.T) {
	ctx := context.Background()
	var alerts []Alert
	w := NewPriceWatcher(10, func(a Alert) { alerts = append(alerts, a) }, nil)

	// plain first sighting
	require.NoError(t, w.Handle(ctx, priceEvent("MLB1", 500, 5)))
	assert.Empty(t, alerts)

	// small drop stays quiet
	require.NoError(t, w.Handle(ctx, priceEvent("MLB1", 480, 5)))
	assert.Empty(t, alerts)

	// 20% drop from the last seen price
	require.NoError(t, w.Handle(ctx, priceEvent("MLB1", 384, 5)))
	require.Len(t, alerts, 1)
	assert.Equal(t, AlertPriceDrop, alerts[0].Level)
	assert.Equal(t, 480.0, alerts[0].PreviousPrice)
	assert.InDelta(t, 20.0, alerts[0].DropPercent, 0.0001)

	require.NoError(t, w.Handle(ctx, priceEvent("MLB2", 488, 45.72)))
	require.Len(t, alerts, 2)
	assert.Equal(t, AlertGood, alerts[1].Level)

	require.NoError(t, w.Handle(ctx, priceEvent("MLB3", 99, 67)))
	require.Len(t, alerts, 3)
	assert.Equal(t, AlertHot, alerts[2].Level)

	noPrice := priceEvent("MLB4", 0, 0)
	noPrice.Product.Price = nil
	require.NoError(t, w.Handle(ctx, noPrice))
	assert.Len(t, alerts, 3)

	assert.Equal(t, 3, w.Tracked())
}
