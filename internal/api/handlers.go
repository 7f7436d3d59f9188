package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/maltedev/mercado-scraper/internal/cache"
	"github.com/maltedev/mercado-scraper/internal/classifier"
	"github.com/maltedev/mercado-scraper/internal/extract"
	"github.com/maltedev/mercado-scraper/internal/format"
	"github.com/maltedev/mercado-scraper/internal/jobs"
	"github.com/maltedev/mercado-scraper/internal/models"
	"github.com/maltedev/mercado-scraper/internal/parser"
	"github.com/maltedev/mercado-scraper/internal/queue"
	"github.com/maltedev/mercado-scraper/internal/scraper"
)

const maxListedJobs = 100

// Searcher runs search queries.
type Searcher interface {
	Search(ctx context.Context, q scraper.Query) (*scraper.Run, error)
}

// CacheInspector exposes the local cache tables.
type CacheInspector interface {
	Stats(ctx context.Context) (cache.Stats, error)
	PriceHistory(ctx context.Context, productID string, days int) ([]cache.HistoryPoint, error)
	BestSelectors(ctx context.Context, selectorType string, minAttempts int) ([]cache.SelectorStat, error)
}

// OutboxMonitor reports outbox backlog for the health check.
type OutboxMonitor interface {
	PendingCount(ctx context.Context) (int64, error)
	DeadLetterCount(ctx context.Context) (int64, error)
}

// Services are the collaborators behind the handlers. Cache and Outbox may be nil.
type Services struct {
	Scraper    Searcher
	Jobs       *jobs.Manager
	Classifier *classifier.Classifier
	Reconciler *extract.Reconciler
	Cache      CacheInspector
	Outbox     OutboxMonitor
}

type Handlers struct {
	svc    Services
	logger *slog.Logger
}

func NewHandlers(svc Services, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	if svc.Classifier == nil {
		svc.Classifier = classifier.New(nil)
	}
	if svc.Reconciler == nil {
		svc.Reconciler = extract.NewReconciler(logger)
	}
	return &Handlers{
		svc:    svc,
		logger: logger.With("component", "api"),
	}
}

type ParsePriceRequest struct {
	Text string `json:"text"`
}

type ParsePriceResponse struct {
	Found     bool             `json:"found"`
	Price     *decimal.Decimal `json:"price"`
	Formatted string           `json:"formatted,omitempty"`
}

// ParsePrice reads a price from scraped text.
func (h *Handlers) ParsePrice(w http.ResponseWriter, r *http.Request) {
	var req ParsePriceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	price, ok := parser.ParsePrice(req.Text)
	if !ok {
		h.respondJSON(w, http.StatusOK, ParsePriceResponse{})
		return
	}
	h.respondJSON(w, http.StatusOK, ParsePriceResponse{Found: true, Price: &price, Formatted: format.BRL(price)})
}

type ProductIDRequest struct {
	URL string `json:"url"`
}

type ProductIDResponse struct {
	Found     bool   `json:"found"`
	ProductID string `json:"product_id,omitempty"`
}

func (h *Handlers) ProductID(w http.ResponseWriter, r *http.Request) {
	var req ProductIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, ok := parser.ExtractProductID(req.URL)
	h.respondJSON(w, http.StatusOK, ProductIDResponse{Found: ok, ProductID: id})
}

type ClassifyRequest struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

type ClassifyResponse struct {
	classifier.Result
	Band classifier.Band `json:"band"`
}

// Classify assigns a category to a product name and link.
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" && strings.TrimSpace(req.URL) == "" {
		h.respondError(w, http.StatusBadRequest, "either name or url is required")
		return
	}

	result := h.svc.Classifier.Classify(req.Name, req.URL, req.Description)
	h.respondJSON(w, http.StatusOK, ClassifyResponse{Result: result, Band: result.Band()})
}

type ReconcileRequest struct {
	Fragments []extract.Fragment `json:"fragments"`
}

type ReconcileResponse struct {
	Products []models.Record `json:"products"`
	Report   extract.Report  `json:"report"`
}

// Reconcile turns harvested candidates into validated, classified records.
func (h *Handlers) Reconcile(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Fragments) == 0 {
		h.respondError(w, http.StatusBadRequest, "fragments are required")
		return
	}

	products, report := h.svc.Reconciler.ReconcileAll(req.Fragments)
	classify := classifier.NewCached(h.svc.Classifier, nil)
	for _, p := range products {
		res := classify.Classify(p.Name, p.URL, "")
		if res.Found() {
			if err := p.SetCategory(res.Category, res.Confidence); err != nil {
				h.logger.Warn("failed to set category", "product_id", p.ProductID, "error", err)
			}
		}
	}

	h.respondJSON(w, http.StatusOK, ReconcileResponse{Products: models.Records(products), Report: report})
}

type CacheKeyRequest struct {
	QueryType string         `json:"query_type"`
	Params    map[string]any `json:"params"`
}

type CacheKeyResponse struct {
	Key string `json:"key"`
}

func (h *Handlers) CacheKey(w http.ResponseWriter, r *http.Request) {
	var req CacheKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.QueryType == "" {
		h.respondError(w, http.StatusBadRequest, "query_type is required")
		return
	}

	key, err := cache.Key(req.QueryType, req.Params)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.respondJSON(w, http.StatusOK, CacheKeyResponse{Key: key})
}

// SearchResponse is a finished run with its products in export shape.
type SearchResponse struct {
	*scraper.Run
	Products []models.Record `json:"products"`
}

// Search runs a query synchronously.
// Query string: type=term|category|offers, q, category, max, cache.
func (h *Handlers) Search(w http.ResponseWriter, r *http.Request) {
	q, err := queryFromValues(r.URL.Query().Get("type"), r.URL.Query().Get("q"), r.URL.Query().Get("category"),
		r.URL.Query().Get("max"), r.URL.Query().Get("cache"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	run, err := h.svc.Scraper.Search(r.Context(), q)
	if err != nil {
		h.respondSearchError(w, err)
		return
	}
	h.respondJSON(w, http.StatusOK, SearchResponse{Run: run, Products: models.Records(run.Products)})
}

func (h *Handlers) Categories(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]string, len(scraper.CategorySlugs))
	for _, slug := range scraper.CategoryNames() {
		out[slug] = scraper.CategorySlugs[slug]
	}
	h.respondJSON(w, http.StatusOK, out)
}

func (h *Handlers) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.svc.Cache == nil {
		h.respondError(w, http.StatusNotFound, "local cache disabled")
		return
	}

	stats, err := h.svc.Cache.Stats(r.Context())
	if err != nil {
		h.logger.Error("failed to get cache stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get cache stats")
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

// PriceHistory lists recorded prices of one product, newest first.
func (h *Handlers) PriceHistory(w http.ResponseWriter, r *http.Request) {
	if h.svc.Cache == nil {
		h.respondError(w, http.StatusNotFound, "local cache disabled")
		return
	}

	productID := strings.ToUpper(chi.URLParam(r, "productID"))
	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			h.respondError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}

	points, err := h.svc.Cache.PriceHistory(r.Context(), productID, days)
	if err != nil {
		h.logger.Error("failed to get price history", "product_id", productID, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get price history")
		return
	}
	h.respondJSON(w, http.StatusOK, points)
}

func (h *Handlers) BestSelectors(w http.ResponseWriter, r *http.Request) {
	if h.svc.Cache == nil {
		h.respondError(w, http.StatusNotFound, "local cache disabled")
		return
	}

	stats, err := h.svc.Cache.BestSelectors(r.Context(), chi.URLParam(r, "selectorType"), cache.DefaultMinAttempts)
	if err != nil {
		h.logger.Error("failed to get selector stats", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to get selector stats")
		return
	}
	h.respondJSON(w, http.StatusOK, stats)
}

// CreateJobRequest queues a search to run in the background.
type CreateJobRequest struct {
	Type        string `json:"type"`
	Term        string `json:"term"`
	Category    string `json:"category"`
	MaxProducts int    `json:"max_products"`
	UseCache    *bool  `json:"use_cache"`
	Priority    int    `json:"priority"`
}

type CreateJobResponse struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (h *Handlers) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	useCache := true
	if req.UseCache != nil {
		useCache = *req.UseCache
	}
	q, err := newQuery(req.Type, req.Term, req.Category, req.MaxProducts, useCache)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.svc.Jobs.CreateJob(r.Context(), q, req.Priority)
	if err != nil {
		if errors.Is(err, queue.ErrQueueFull) {
			h.respondError(w, http.StatusServiceUnavailable, "job queue is full")
			return
		}
		h.logger.Error("failed to create job", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	h.respondJSON(w, http.StatusCreated, CreateJobResponse{
		JobID:   job.ID,
		Status:  job.Status,
		Message: "Job created successfully",
	})
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	job, err := h.svc.Jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.respondJSON(w, http.StatusOK, job)
}

func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := maxListedJobs
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n < limit {
			limit = n
		}
	}
	h.respondJSON(w, http.StatusOK, h.svc.Jobs.ListJobs(r.Context(), limit))
}

func (h *Handlers) GetJobProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Jobs.GetJobProducts(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.respondError(w, http.StatusNotFound, "job not found")
		return
	}
	h.respondJSON(w, http.StatusOK, models.Records(products))
}

func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, h.svc.Jobs.GetStats(r.Context()))
}

// Health reports outbox backlog when an outbox is configured.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	health := map[string]any{"status": "ok"}
	status := http.StatusOK

	if h.svc.Outbox != nil {
		pendingCount, err := h.svc.Outbox.PendingCount(r.Context())
		if err != nil {
			h.logger.Warn("failed to count pending events", "error", err)
		}
		deadLetterCount, err := h.svc.Outbox.DeadLetterCount(r.Context())
		if err != nil {
			h.logger.Warn("failed to count dead letter events", "error", err)
		}

		health["outbox"] = map[string]any{
			"pending":     pendingCount,
			"dead_letter": deadLetterCount,
		}
		if pendingCount > 1000 {
			health["status"] = "warning"
			health["message"] = "High number of pending outbox events"
		}
		if deadLetterCount > 100 {
			health["status"] = "error"
			health["message"] = "High number of dead letter events"
			status = http.StatusServiceUnavailable
		}
	}

	h.respondJSON(w, status, health)
}

func (h *Handlers) respondSearchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scraper.ErrEmptyTerm),
		errors.Is(err, scraper.ErrUnknownCategory),
		errors.Is(err, scraper.ErrUnknownQueryType):
		h.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scraper.ErrFetchFailed):
		h.logger.Warn("search failed upstream", "error", err)
		h.respondError(w, http.StatusBadGateway, "marketplace unavailable")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		h.respondError(w, http.StatusGatewayTimeout, "search timed out")
	default:
		h.logger.Error("search failed", "error", err)
		h.respondError(w, http.StatusInternalServerError, "search failed")
	}
}

func queryFromValues(mode, term, category, max, useCache string) (scraper.Query, error) {
	n := 0
	if max != "" {
		v, err := strconv.Atoi(max)
		if err != nil || v < 1 {
			return scraper.Query{}, errors.New("max must be a positive integer")
		}
		n = v
	}

	cached := true
	if useCache != "" {
		v, err := strconv.ParseBool(useCache)
		if err != nil {
			return scraper.Query{}, errors.New("cache must be a boolean")
		}
		cached = v
	}
	return newQuery(mode, term, category, n, cached)
}

func newQuery(mode, term, category string, max int, useCache bool) (scraper.Query, error) {
	if mode == "" {
		mode = "term"
	}
	queryType, err := scraper.QueryType(mode)
	if err != nil {
		return scraper.Query{}, err
	}
	if max < 0 {
		return scraper.Query{}, errors.New("max_products must not be negative")
	}
	return scraper.Query{
		Type:        queryType,
		Term:        strings.TrimSpace(term),
		Category:    strings.TrimSpace(category),
		MaxProducts: max,
		UseCache:    useCache,
	}, nil
}

func (h *Handlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
