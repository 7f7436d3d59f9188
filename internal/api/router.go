package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterOptions tune the middleware stack.
type RouterOptions struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
}

// NewRouter mounts the handlers under /api/v1 plus /health.
func NewRouter(h *Handlers, opts RouterOptions) http.Handler {
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"http://localhost:*", "https://localhost:*"}
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 120 * time.Second
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(opts.RequestTimeout))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/price/parse", h.ParsePrice)
		r.Post("/product-id", h.ProductID)
		r.Post("/classify", h.Classify)
		r.Post("/reconcile", h.Reconcile)
		r.Post("/cache-key", h.CacheKey)

		r.Get("/search", h.Search)
		r.Get("/categories", h.Categories)

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", h.CacheStats)
			r.Get("/history/{productID}", h.PriceHistory)
			r.Get("/selectors/{selectorType}", h.BestSelectors)
		})

		if h.svc.Jobs != nil {
			r.Route("/jobs", func(r chi.Router) {
				r.Post("/", h.CreateJob)
				r.Get("/", h.ListJobs)
				r.Get("/{jobID}", h.GetJob)
				r.Get("/{jobID}/products", h.GetJobProducts)
			})
			r.Get("/stats", h.GetStats)
		}
	})

	return r
}
