// Package app wires configuration into a ready scraper service and its
// optional backing stores. Both binaries build on it.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/mercado-scraper/internal/browser"
	"github.com/maltedev/mercado-scraper/internal/cache"
	"github.com/maltedev/mercado-scraper/internal/classifier"
	"github.com/maltedev/mercado-scraper/internal/config"
	"github.com/maltedev/mercado-scraper/internal/database"
	"github.com/maltedev/mercado-scraper/internal/events"
	"github.com/maltedev/mercado-scraper/internal/fetcher"
	"github.com/maltedev/mercado-scraper/internal/scraper"
)

// App holds the wired components. Optional parts are nil when disabled.
type App struct {
	Config     *config.Config
	Service    *scraper.Service
	Classifier *classifier.Classifier
	Cache      cache.SearchCache
	SQLite     *cache.SQLiteCache
	DB         *database.DB
	History    *database.HistoryRepository
	Relay      *database.Relay
	Redis      *redis.Client

	closers []func() error
	logger  *slog.Logger
}

// New builds the application from cfg. The caller must Close it.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	taxonomy, err := loadTaxonomy(cfg.Taxonomy.Path)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Classifier: classifier.New(taxonomy), logger: logger}

	pageFetcher, err := a.newFetcher()
	if err == nil {
		err = a.connectRedis(ctx)
	}
	if err == nil {
		err = a.openCache()
	}
	if err == nil {
		err = a.connectDatabase(ctx)
	}
	if err != nil {
		a.Close()
		return nil, err
	}

	deps := scraper.Deps{
		Fetcher:    pageFetcher,
		Classifier: a.Classifier,
		Cache:      a.Cache,
		Publisher:  a.newPublisher(),
	}
	if a.SQLite != nil {
		deps.History = a.SQLite
		deps.Selectors = a.SQLite
	}

	a.Service = scraper.NewService(deps, scraper.Options{
		MaxPages:    cfg.Scraper.MaxPages,
		PageSize:    cfg.Scraper.PageSize,
		MaxProducts: cfg.Scraper.MaxProducts,
		DelayMin:    cfg.Scraper.DelayMin,
		DelayMax:    cfg.Scraper.DelayMax,
	}, logger)

	logger.Info("application wired",
		"engine", cfg.Scraper.Engine,
		"cache", cfg.Cache.Backend,
		"events", cfg.Events.Mode,
		"database", cfg.Database.Enabled,
	)
	return a, nil
}

func loadTaxonomy(path string) (*classifier.Taxonomy, error) {
	if path == "" {
		return nil, nil
	}
	t, err := classifier.LoadTaxonomy(path)
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (a *App) newFetcher() (scraper.Fetcher, error) {
	cfg := a.Config

	if cfg.Scraper.Engine == "browser" {
		opts := browser.DefaultOptions()
		opts.Headless = cfg.Browser.Headless
		opts.Timeout = cfg.Browser.Timeout
		opts.MaxRetries = cfg.Scraper.MaxRetries
		opts.ViewportWidth = cfg.Browser.ViewportWidth
		opts.ViewportHeight = cfg.Browser.ViewportHeight
		opts.AcceptLanguage = cfg.Browser.AcceptLanguage
		opts.TimezoneID = cfg.Browser.TimezoneID
		opts.Locale = cfg.Browser.Locale
		if len(cfg.Scraper.UserAgents) > 0 {
			opts.UserAgent = cfg.Scraper.UserAgents[0]
		}

		b, err := browser.New(opts, a.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		a.closers = append(a.closers, b.Close)
		return b, nil
	}

	opts := fetcher.DefaultOptions()
	opts.Timeout = cfg.Browser.Timeout
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	if len(cfg.Scraper.UserAgents) > 0 {
		opts.UserAgents = cfg.Scraper.UserAgents
	}
	return fetcher.New(opts, a.logger), nil
}

func (a *App) needsRedis() bool {
	return a.Config.Cache.Backend == "redis" ||
		a.Config.Events.Mode == "stream" ||
		a.Config.Events.Mode == "outbox"
}

func (a *App) connectRedis(ctx context.Context) error {
	if !a.needsRedis() {
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.Config.Redis.Addr,
		Password: a.Config.Redis.Password,
		DB:       a.Config.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}

	a.Redis = client
	a.closers = append(a.closers, client.Close)
	return nil
}

func (a *App) openCache() error {
	cfg := a.Config.Cache

	switch cfg.Backend {
	case "sqlite":
		c, err := cache.NewSQLiteCache(cfg.Path, cfg.TTL, a.logger)
		if err != nil {
			return err
		}
		a.SQLite = c
		a.Cache = c
		a.closers = append(a.closers, c.Close)
	case "redis":
		// the client is closed with the app
		a.Cache = cache.NewRedisCache(a.Redis, cfg.TTL, a.logger)
	default:
		a.Cache = cache.Noop{}
	}
	return nil
}

func (a *App) connectDatabase(ctx context.Context) error {
	cfg := a.Config.Database
	if !cfg.Enabled {
		return nil
	}

	db, err := database.New(ctx, database.Config{
		URL:      cfg.DatabaseURL(),
		MaxConns: int32(cfg.MaxConns),
	})
	if err != nil {
		return err
	}
	a.DB = db
	a.closers = append(a.closers, func() error {
		db.Close()
		return nil
	})

	if err := db.Migrate(ctx); err != nil {
		return err
	}
	a.History = database.NewHistoryRepository(db)
	return nil
}

func (a *App) newPublisher() events.Publisher {
	cfg := a.Config.Events

	switch cfg.Mode {
	case "outbox":
		a.Relay = database.NewRelay(database.NewOutboxRepository(a.DB), a.Redis, a.logger, database.RelayConfig{
			PollInterval: cfg.RelayInterval,
			BatchSize:    cfg.RelayBatch,
		})
		return events.NewOutboxPublisher(a.DB, cfg.Stream, a.logger)
	case "stream":
		stream := events.NewStreamPublisher(a.Redis, cfg.Stream, a.logger)
		if a.History != nil {
			return events.Fanout{events.NewHistoryPublisher(a.History, a.logger), stream}
		}
		return stream
	default:
		if a.History != nil {
			return events.NewHistoryPublisher(a.History, a.logger)
		}
		return nil
	}
}

// StartRelay runs the outbox relay until ctx ends. It returns at once when
// the outbox is disabled.
func (a *App) StartRelay(ctx context.Context) {
	if a.Relay == nil {
		return
	}
	if err := a.Relay.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Error("relay stopped with error", "error", err)
	}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
