package events

import (
	"context"
	"log/slog"
	"sync"
)

type AlertLevel string

const (
	AlertPriceDrop AlertLevel = "price_drop"
	AlertHot       AlertLevel = "hot"
	AlertGood      AlertLevel = "good"
)

const (
	hotDiscount  = 50.0
	goodDiscount = 30.0
)

// Alert is raised for a deep discount or a price drop since the last event
// seen for the same product.
type Alert struct {
	Level         AlertLevel `json:"level"`
	ProductID     string     `json:"product_id"`
	Name          string     `json:"name"`
	URL           string     `json:"url"`
	Price         float64    `json:"price"`
	PreviousPrice float64    `json:"previous_price,omitempty"`
	DropPercent   float64    `json:"drop_percent,omitempty"`
	Discount      float64    `json:"discount_percentage"`
	RunID         string     `json:"run_id"`
}

// PriceWatcher remembers the last price per product for the life of the process.
type PriceWatcher struct {
	mu      sync.Mutex
	last    map[string]float64
	minDrop float64
	notify  func(Alert)
	logger  *slog.Logger
}

// NewPriceWatcher alerts on drops of at least minDrop percent. A nil notify logs alerts.
func NewPriceWatcher(minDrop float64, notify func(Alert), logger *slog.Logger) *PriceWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	w := &PriceWatcher{
		last:    make(map[string]float64),
		minDrop: minDrop,
		notify:  notify,
		logger:  logger.With("component", "price_watcher"),
	}
	if w.notify == nil {
		w.notify = w.logAlert
	}
	return w
}

// Handle matches the consumer Handler signature.
func (w *PriceWatcher) Handle(_ context.Context, e *ProductScrapedPayload) error {
	if e.Product.Price == nil {
		return nil
	}
	price := *e.Product.Price

	w.mu.Lock()
	previous, seen := w.last[e.ProductID]
	w.last[e.ProductID] = price
	w.mu.Unlock()

	alert := Alert{
		ProductID: e.ProductID,
		Name:      e.Product.Name,
		URL:       e.Product.URL,
		Price:     price,
		Discount:  e.Product.DiscountPercentage,
		RunID:     e.RunID,
	}

	switch {
	case seen && previous > price && (previous-price)/previous*100 >= w.minDrop:
		alert.Level = AlertPriceDrop
		alert.PreviousPrice = previous
		alert.DropPercent = (previous - price) / previous * 100
	case alert.Discount >= hotDiscount:
		alert.Level = AlertHot
	case alert.Discount >= goodDiscount:
		alert.Level = AlertGood
	default:
		return nil
	}

	w.notify(alert)
	return nil
}

// Tracked returns how many products have a remembered price.
func (w *PriceWatcher) Tracked() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.last)
}

func (w *PriceWatcher) logAlert(a Alert) {
	w.logger.Info("price alert",
		"level", a.Level,
		"product_id", a.ProductID,
		"name", a.Name,
		"price", a.Price,
		"previous_price", a.PreviousPrice,
		"discount", a.Discount,
		"url", a.URL,
	)
}
