package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Scraper  ScraperConfig
	Browser  BrowserConfig
	Cache    CacheConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Events   EventsConfig
	Queue    QueueConfig
	Taxonomy TaxonomyConfig
	Logging  LoggingConfig
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

type ScraperConfig struct {
	Engine      string
	DelayMin    time.Duration
	DelayMax    time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	MaxPages    int
	PageSize    int
	MaxProducts int
	UserAgents  []string
}

type BrowserConfig struct {
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
}

type CacheConfig struct {
	Backend     string
	Path        string
	TTL         time.Duration
	HistoryDays int
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type EventsConfig struct {
	// Mode is "none", "stream" (direct XADD) or "outbox" (postgres outbox plus relay).
	Mode          string
	Stream        string
	RelayInterval time.Duration
	RelayBatch    int
	ConsumerGroup string
	ConsumerName  string
	// AlertMinDrop is the percentage drop from the last seen price that raises an alert.
	AlertMinDrop float64
}

type QueueConfig struct {
	Workers int
	MaxSize int
}

type TaxonomyConfig struct {
	Path string
}

type LoggingConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 120*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Scraper: ScraperConfig{
			Engine:      getEnvOrDefault("SCRAPER_ENGINE", "http"),
			DelayMin:    getDurationOrDefault("SCRAPER_DELAY_MIN", 2*time.Second),
			DelayMax:    getDurationOrDefault("SCRAPER_DELAY_MAX", 4*time.Second),
			MaxRetries:  getIntOrDefault("SCRAPER_MAX_RETRIES", 3),
			RetryDelay:  getDurationOrDefault("SCRAPER_RETRY_DELAY", 5*time.Second),
			MaxPages:    getIntOrDefault("SCRAPER_MAX_PAGES", 5),
			PageSize:    getIntOrDefault("SCRAPER_PAGE_SIZE", 50),
			MaxProducts: getIntOrDefault("SCRAPER_MAX_PRODUCTS", 100),
			UserAgents:  getStringSliceOrDefault("SCRAPER_USER_AGENTS", defaultUserAgents()),
		},
		Browser: BrowserConfig{
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "pt-BR,pt;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "America/Sao_Paulo"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "pt-BR"),
		},
		Cache: CacheConfig{
			Backend:     getEnvOrDefault("CACHE_BACKEND", "sqlite"),
			Path:        getEnvOrDefault("CACHE_PATH", "cache/scraper_cache.db"),
			TTL:         getDurationOrDefault("CACHE_TTL", 2*time.Hour),
			HistoryDays: getIntOrDefault("CACHE_HISTORY_DAYS", 7),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolOrDefault("DB_ENABLED", false),
			Host:     getEnvOrDefault("DB_HOST", "localhost"),
			Port:     getIntOrDefault("DB_PORT", 5432),
			User:     getEnvOrDefault("DB_USER", "postgres"),
			Password: getEnvOrDefault("DB_PASSWORD", ""),
			DBName:   getEnvOrDefault("DB_NAME", "mercado_scraper"),
			SSLMode:  getEnvOrDefault("DB_SSL_MODE", "disable"),
			MaxConns: getIntOrDefault("DB_MAX_CONNS", 10),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Events: EventsConfig{
			Mode:          getEnvOrDefault("EVENTS_MODE", "none"),
			Stream:        getEnvOrDefault("EVENTS_STREAM", "stream:price_events"),
			RelayInterval: getDurationOrDefault("EVENTS_RELAY_INTERVAL", 5*time.Second),
			RelayBatch:    getIntOrDefault("EVENTS_RELAY_BATCH", 100),
			ConsumerGroup: getEnvOrDefault("EVENTS_CONSUMER_GROUP", "price-watchers"),
			ConsumerName:  getEnvOrDefault("EVENTS_CONSUMER_NAME", "consumer-1"),
			AlertMinDrop:  getFloatOrDefault("EVENTS_ALERT_MIN_DROP", 10),
		},
		Queue: QueueConfig{
			Workers: getIntOrDefault("QUEUE_WORKERS", 2),
			MaxSize: getIntOrDefault("QUEUE_MAX_SIZE", 100),
		},
		Taxonomy: TaxonomyConfig{
			Path: getEnvOrDefault("TAXONOMY_PATH", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Scraper.DelayMin > c.Scraper.DelayMax {
		return fmt.Errorf("SCRAPER_DELAY_MIN cannot be greater than SCRAPER_DELAY_MAX")
	}

	if c.Scraper.MaxPages < 1 {
		return fmt.Errorf("SCRAPER_MAX_PAGES must be at least 1")
	}

	if c.Scraper.MaxProducts < 1 {
		return fmt.Errorf("SCRAPER_MAX_PRODUCTS must be at least 1")
	}

	switch c.Scraper.Engine {
	case "http", "browser":
	default:
		return fmt.Errorf("SCRAPER_ENGINE must be http or browser, got %q", c.Scraper.Engine)
	}

	switch c.Cache.Backend {
	case "sqlite", "redis", "none":
	default:
		return fmt.Errorf("CACHE_BACKEND must be sqlite, redis or none, got %q", c.Cache.Backend)
	}

	switch c.Events.Mode {
	case "none", "stream":
	case "outbox":
		if !c.Database.Enabled {
			return fmt.Errorf("EVENTS_MODE=outbox requires DB_ENABLED=true")
		}
	default:
		return fmt.Errorf("EVENTS_MODE must be none, stream or outbox, got %q", c.Events.Mode)
	}

	if c.Queue.Workers < 1 {
		return fmt.Errorf("QUEUE_WORKERS must be at least 1")
	}

	return nil
}

// DatabaseURL renders the postgres connection string for pgxpool.
func (d DatabaseConfig) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func defaultUserAgents() []string {
	return []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	}
}
