package config

import "time"

// Config is the main application configuration struct.
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Similarity SimilarityConfig `mapstructure:"similarity"`
	Matcher    MatcherConfig    `mapstructure:"matcher"`
	Filters    FilterConfig     `mapstructure:"filters"`
	Scraper    ScraperConfig    `mapstructure:"scraper"`
	Sourcing   SourcingConfig   `mapstructure:"sourcing"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Export     ExportConfig     `mapstructure:"export"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CacheConfig drives the on-disk image cache.
type CacheConfig struct {
	RootDir      string        `mapstructure:"root_dir"`
	ImageTTL     time.Duration `mapstructure:"image_ttl"`
	MaxBytes     int64         `mapstructure:"max_bytes"`
	MaxEntries   int           `mapstructure:"max_entries"`
	FetchTimeout time.Duration `mapstructure:"fetch_timeout"`
}

// SimilarityConfig drives the tiered scorer.
type SimilarityConfig struct {
	HashThreshold float64       `mapstructure:"hash_threshold"`
	VisualWeight  float64       `mapstructure:"visual_weight"`
	Simulate      bool          `mapstructure:"simulate"`
	LLMBaseURL    string        `mapstructure:"llm_base_url"`
	LLMAPIKey     string        `mapstructure:"llm_api_key"`
	LLMModel      string        `mapstructure:"llm_model"`
	LLMTimeout    time.Duration `mapstructure:"llm_timeout"`
}

// MatcherConfig drives the source matcher.
type MatcherConfig struct {
	ItemSimilarity float64 `mapstructure:"item_similarity"`
	MinResolution  int     `mapstructure:"min_resolution"`
	CanvasSize     int     `mapstructure:"canvas_size"`
	MaxRunnersUp   int     `mapstructure:"max_runners_up"`
}

// FilterConfig carries the store and product thresholds.
type FilterConfig struct {
	Store   StoreThresholds   `mapstructure:"store"`
	Product ProductThresholds `mapstructure:"product"`
	DryRun  bool              `mapstructure:"dry_run"`
}

type StoreThresholds struct {
	MinRevenue30d int64 `mapstructure:"min_revenue_30d"`
	MinOrders30d  int   `mapstructure:"min_orders_30d"`
}

type ProductThresholds struct {
	CategoryBlocklist []string `mapstructure:"category_blocklist"`
	MaxListingAgeDays int      `mapstructure:"max_listing_age_days"`
	MinSalesVolume    int      `mapstructure:"min_sales_volume"`
	MaxSalesVolume    int      `mapstructure:"max_sales_volume"`
	MinWeightGrams    float64  `mapstructure:"min_weight_grams"`
	MaxWeightGrams    float64  `mapstructure:"max_weight_grams"`
}

// ScraperConfig drives the per-call retry policy of the orchestrator.
type ScraperConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	MaxRetries      int           `mapstructure:"max_retries"`
	RetryGap        time.Duration `mapstructure:"retry_gap"`
	CallTimeout     time.Duration `mapstructure:"call_timeout"`
	MaxProducts     int           `mapstructure:"max_products"`
	CompetitorDepth int           `mapstructure:"competitor_depth"`
}

// SourcingConfig drives the sourcing-platform search client. Credentials
// come from the environment only.
type SourcingConfig struct {
	BaseURL   string        `mapstructure:"base_url"`
	AppKey    string        `mapstructure:"app_key"`
	AppSecret string        `mapstructure:"app_secret"`
	PageSize  int           `mapstructure:"page_size"`
	RatePerS  float64       `mapstructure:"rate_per_s"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// BrowserConfig drives the shared rod session and its lock file.
type BrowserConfig struct {
	Bin          string        `mapstructure:"bin"`
	Headless     bool          `mapstructure:"headless"`
	LockPath     string        `mapstructure:"lock_path"`
	LockPollWait time.Duration `mapstructure:"lock_poll_wait"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ExportConfig drives the optional elasticsearch result sink.
type ExportConfig struct {
	Enabled     bool     `mapstructure:"enabled"`
	Addresses   []string `mapstructure:"addresses"`
	Username    string   `mapstructure:"username"`
	Password    string   `mapstructure:"password"`
	IndexPrefix string   `mapstructure:"index_prefix"`
}
