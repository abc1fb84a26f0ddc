package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads the layered configuration: base config.yaml, then the
// environment overlay, then environment variables. Credentials are only
// ever read from the environment.
func Load() (*Config, error) {
	loadEnvFile()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../../configs")
	viper.AddConfigPath(".")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	viper.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = viper.MergeInConfig() // overlay is optional

	expandEnvVars(viper.GetViper())

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideCredentials(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}
	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		if strVal, ok := v.Get(key).(string); ok {
			if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
				expanded := os.ExpandEnv(strVal)
				if expanded != strVal && expanded != "" {
					v.Set(key, expanded)
				}
			}
		}
	}
}

// overrideCredentials pulls credentials straight from the environment when
// the config file left them empty.
func overrideCredentials(cfg *Config) {
	if cfg.Sourcing.AppKey == "" {
		cfg.Sourcing.AppKey = os.Getenv("SOURCING_APP_KEY")
	}
	if cfg.Sourcing.AppSecret == "" {
		cfg.Sourcing.AppSecret = os.Getenv("SOURCING_APP_SECRET")
	}
	if cfg.Similarity.LLMAPIKey == "" {
		cfg.Similarity.LLMAPIKey = os.Getenv("LLM_API_KEY")
	}
	if cfg.Export.Password == "" {
		cfg.Export.Password = os.Getenv("ELASTICSEARCH_PASSWORD")
	}
	if cfg.Redis.Password == "" {
		cfg.Redis.Password = os.Getenv("REDIS_PASSWORD")
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "arbitrage-scout"
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = ":2112"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Cache.RootDir == "" {
		cfg.Cache.RootDir = filepath.Join(os.TempDir(), "scout-image-cache")
	}
	if cfg.Cache.ImageTTL == 0 {
		cfg.Cache.ImageTTL = 7 * 24 * time.Hour
	}
	if cfg.Cache.MaxBytes == 0 {
		cfg.Cache.MaxBytes = 5 << 30 // 5 GiB
	}
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = 50_000
	}
	if cfg.Cache.FetchTimeout == 0 {
		cfg.Cache.FetchTimeout = 30 * time.Second
	}

	if cfg.Similarity.HashThreshold == 0 {
		cfg.Similarity.HashThreshold = 0.3
	}
	if cfg.Similarity.VisualWeight == 0 {
		cfg.Similarity.VisualWeight = 0.8
	}
	if cfg.Similarity.LLMModel == "" {
		cfg.Similarity.LLMModel = "gpt-4o-mini"
	}
	if cfg.Similarity.LLMTimeout == 0 {
		cfg.Similarity.LLMTimeout = 30 * time.Second
	}

	if cfg.Matcher.ItemSimilarity == 0 {
		cfg.Matcher.ItemSimilarity = 0.5
	}
	if cfg.Matcher.MinResolution == 0 {
		cfg.Matcher.MinResolution = 200
	}
	if cfg.Matcher.CanvasSize == 0 {
		cfg.Matcher.CanvasSize = 800
	}
	if cfg.Matcher.MaxRunnersUp == 0 {
		cfg.Matcher.MaxRunnersUp = 5
	}

	if cfg.Filters.Store.MinRevenue30d == 0 {
		cfg.Filters.Store.MinRevenue30d = 500_000
	}
	if cfg.Filters.Store.MinOrders30d == 0 {
		cfg.Filters.Store.MinOrders30d = 250
	}

	if cfg.Scraper.BaseURL == "" {
		cfg.Scraper.BaseURL = "https://marketplace.example.com"
	}
	if cfg.Scraper.MaxRetries == 0 {
		cfg.Scraper.MaxRetries = 2
	}
	if cfg.Scraper.RetryGap == 0 {
		cfg.Scraper.RetryGap = time.Second
	}
	if cfg.Scraper.CallTimeout == 0 {
		cfg.Scraper.CallTimeout = 60 * time.Second
	}
	if cfg.Scraper.MaxProducts == 0 {
		cfg.Scraper.MaxProducts = 50
	}
	if cfg.Scraper.CompetitorDepth == 0 {
		cfg.Scraper.CompetitorDepth = 1
	}

	if cfg.Sourcing.PageSize == 0 {
		cfg.Sourcing.PageSize = 10
	}
	if cfg.Sourcing.RatePerS == 0 {
		cfg.Sourcing.RatePerS = 1.0
	}
	if cfg.Sourcing.Timeout == 0 {
		cfg.Sourcing.Timeout = 30 * time.Second
	}

	if cfg.Browser.LockPath == "" {
		cfg.Browser.LockPath = filepath.Join(os.TempDir(), "scout-browser.lock")
	}
	if cfg.Browser.LockPollWait == 0 {
		cfg.Browser.LockPollWait = 5 * time.Second
	}

	if cfg.Redis.Address == "" {
		cfg.Redis.Address = "localhost:6379"
	}

	if cfg.Export.IndexPrefix == "" {
		cfg.Export.IndexPrefix = "scout-results"
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Similarity.VisualWeight < 0 || cfg.Similarity.VisualWeight > 1 {
		return fmt.Errorf("similarity.visual_weight must be in [0,1], got %v", cfg.Similarity.VisualWeight)
	}
	if cfg.Similarity.HashThreshold <= 0 || cfg.Similarity.HashThreshold > 1 {
		return fmt.Errorf("similarity.hash_threshold must be in (0,1], got %v", cfg.Similarity.HashThreshold)
	}
	if cfg.Matcher.ItemSimilarity < 0 || cfg.Matcher.ItemSimilarity > 1 {
		return fmt.Errorf("matcher.item_similarity must be in [0,1], got %v", cfg.Matcher.ItemSimilarity)
	}
	if cfg.Cache.MaxBytes < 0 {
		return fmt.Errorf("cache.max_bytes must be positive")
	}
	if cfg.Export.Enabled && len(cfg.Export.Addresses) == 0 {
		return fmt.Errorf("export.addresses required when export is enabled")
	}
	return nil
}
