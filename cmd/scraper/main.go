package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/maltedev/mercado-scraper/internal/app"
	"github.com/maltedev/mercado-scraper/internal/cache"
	"github.com/maltedev/mercado-scraper/internal/config"
	"github.com/maltedev/mercado-scraper/internal/format"
	"github.com/maltedev/mercado-scraper/internal/models"
	"github.com/maltedev/mercado-scraper/internal/scraper"
	"github.com/maltedev/mercado-scraper/internal/storage"
	"github.com/maltedev/mercado-scraper/pkg/logger"
)

const tableRows = 20

func main() {
	var (
		mode     = flag.String("mode", "term", "Search mode: term, category, offers")
		query    = flag.String("q", "", "Search term, or category slug/id with -mode category")
		max      = flag.Int("max", 0, "Maximum products to collect (0 uses SCRAPER_MAX_PRODUCTS)")
		useCache = flag.Bool("cache", true, "Serve fresh results from the cache and store new ones")
		engine   = flag.String("engine", "", "Page engine: http or browser (overrides SCRAPER_ENGINE)")
		output   = flag.String("output", "table", "Output format: table, json")
		save     = flag.String("save", "", "Directory to write the JSON export to (empty disables)")
		urls     = flag.Bool("urls", false, "Also write a plain-text URL list next to the export")
		stats    = flag.Bool("stats", false, "Print cache statistics and exit")
		cleanup  = flag.Bool("cleanup", false, "Remove expired cache entries and old history, then exit")
		history  = flag.String("history", "", "Print the recorded price history of a product id and exit")
		list     = flag.Bool("categories", false, "List category slugs and exit")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *engine != "" {
		cfg.Scraper.Engine = *engine
	}

	logger := logger.NewWithWriter(os.Stderr, cfg.Logging.Level, cfg.Logging.Format)

	if *list {
		for _, slug := range scraper.CategoryNames() {
			fmt.Printf("%-14s %s\n", slug, scraper.CategorySlugs[slug])
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		logger.Info("shutdown signal received")
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	switch {
	case *stats:
		err = printStats(ctx, a)
	case *cleanup:
		err = runCleanup(ctx, a)
	case *history != "":
		err = printHistory(ctx, a, *history)
	default:
		err = runSearch(ctx, a, searchFlags{
			mode:     *mode,
			query:    *query,
			max:      *max,
			useCache: *useCache,
			output:   *output,
			saveDir:  *save,
			urls:     *urls,
		})
	}

	if err != nil {
		logger.Error("command failed", "error", err)
		a.Close()
		os.Exit(1)
	}
}

type searchFlags struct {
	mode     string
	query    string
	max      int
	useCache bool
	output   string
	saveDir  string
	urls     bool
}

func runSearch(ctx context.Context, a *app.App, f searchFlags) error {
	queryType, err := scraper.QueryType(f.mode)
	if err != nil {
		return err
	}

	q := scraper.Query{Type: queryType, MaxProducts: f.max, UseCache: f.useCache}
	switch queryType {
	case cache.QuerySearchTerm:
		q.Term = f.query
	case cache.QuerySearchCategory:
		q.Category = f.query
	}

	run, err := a.Service.Search(ctx, q)
	if err != nil {
		return err
	}

	switch f.output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(storage.NewExport(run.ID, run.QueryType, run.Params, run.Products)); err != nil {
			return err
		}
	default:
		printRun(run)
	}

	if f.saveDir != "" && len(run.Products) > 0 {
		now := time.Now()
		path := storage.ExportFilename(f.saveDir, strings.TrimPrefix(run.QueryType, "search_"), now)
		if err := storage.SaveExport(path, storage.NewExport(run.ID, run.QueryType, run.Params, run.Products)); err != nil {
			return fmt.Errorf("failed to save export: %w", err)
		}
		fmt.Fprintf(os.Stderr, "Resultados salvos em: %s\n", path)

		if f.urls {
			urlPath := storage.URLListFilename(f.saveDir, now)
			if err := storage.SaveURLList(urlPath, run.Products); err != nil {
				return fmt.Errorf("failed to save url list: %w", err)
			}
			fmt.Fprintf(os.Stderr, "URLs exportadas para: %s\n", urlPath)
		}
	}
	return nil
}

func printRun(run *scraper.Run) {
	source := "site"
	if run.FromCache {
		source = "cache"
	}
	fmt.Printf("%d produtos (%s, %d páginas, %d descartados)\n\n", len(run.Products), source, run.Pages, run.Rejected)

	if len(run.Products) == 0 {
		return
	}

	if err := format.WriteTable(os.Stdout, run.Products, tableRows); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	if len(run.Products) > tableRows {
		fmt.Printf("... e mais %d produtos\n", len(run.Products)-tableRows)
	}

	fmt.Println()
	if err := format.WriteSummary(os.Stdout, format.Summarize(run.Products)); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}

var errNoLocalCache = errors.New("this command needs CACHE_BACKEND=sqlite")

func printStats(ctx context.Context, a *app.App) error {
	if a.SQLite == nil {
		return errNoLocalCache
	}
	stats, err := a.SQLite.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Buscas em cache:      %d (%d válidas)\n", stats.TotalCachedSearches, stats.ValidCachedSearches)
	fmt.Printf("Registros de preço:   %d\n", stats.TotalProductsTracked)
	fmt.Printf("Produtos distintos:   %d\n", stats.UniqueProducts)

	for _, kind := range []string{"name", "price", "original_price", "url"} {
		best, err := a.SQLite.BestSelectors(ctx, kind, cache.DefaultMinAttempts)
		if err != nil {
			return err
		}
		if len(best) == 0 {
			continue
		}
		fmt.Printf("Melhor seletor (%s): %s (%.0f%% de %d)\n", kind, best[0].Selector, best[0].SuccessRate*100, best[0].TotalAttempts)
	}
	return nil
}

func runCleanup(ctx context.Context, a *app.App) error {
	if a.SQLite == nil {
		return errNoLocalCache
	}
	result, err := a.SQLite.Cleanup(ctx, a.Config.Cache.HistoryDays)
	if err != nil {
		return err
	}
	fmt.Printf("Removidas %d buscas expiradas e %d entradas de histórico\n", result.ExpiredSearches, result.OldHistory)
	return nil
}

func printHistory(ctx context.Context, a *app.App, productID string) error {
	if a.SQLite == nil {
		return errNoLocalCache
	}
	points, err := a.SQLite.PriceHistory(ctx, strings.ToUpper(productID), a.Config.Cache.HistoryDays)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Printf("Sem histórico para %s nos últimos %d dias\n", productID, a.Config.Cache.HistoryDays)
		return nil
	}

	for _, p := range points {
		fmt.Printf("%s  %-12s  %-12s  %s\n",
			p.ScrapedAt.Format("02/01/2006 15:04"),
			format.NullBRL(p.Price),
			format.NullBRL(p.OriginalPrice),
			format.Percent(models.Discount(p.Price, p.OriginalPrice)),
		)
	}
	return nil
}
