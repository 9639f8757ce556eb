// Package config loads pipeline configuration from a YAML file, a .env
// file, and PROSPECTOR_-prefixed environment variables, in that order of
// precedence (environment wins).
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full pipeline configuration.
type Config struct {
	App           AppConfig       `mapstructure:"app"`
	Logger        LoggerConfig    `mapstructure:"logger"`
	Redis         RedisConfig     `mapstructure:"redis"`
	Elasticsearch ElasticConfig   `mapstructure:"elasticsearch"`
	Discovery     DiscoveryConfig `mapstructure:"discovery"`
	Search        SearchConfig    `mapstructure:"search"`
	Proxy         ProxyConfig     `mapstructure:"proxy"`
	Vetting       VettingConfig   `mapstructure:"vetting"`
	Crawl         CrawlConfig     `mapstructure:"crawl"`
	AI            AIConfig        `mapstructure:"ai"`
	Schedule      ScheduleConfig  `mapstructure:"schedule"`
}

// AppConfig identifies the running application.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LoggerConfig configures the zap logger.
type LoggerConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
	Encoding    string `mapstructure:"encoding"`
}

// RedisConfig holds the pipeline state store connection.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// ElasticConfig holds the page corpus connection.
type ElasticConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	APIKey    string   `mapstructure:"api_key"`
	Index     string   `mapstructure:"index"`
}

// DiscoveryConfig controls query generation.
type DiscoveryConfig struct {
	UseAIVariants    bool     `mapstructure:"use_ai_variants"`
	MaxQueries       int      `mapstructure:"max_queries"`
	PerFamilyCap     int      `mapstructure:"per_family_cap"`
	Seed             int64    `mapstructure:"seed"`
	Intents          []string `mapstructure:"intents"`
	PlatformHints    []string `mapstructure:"platform_hints"`
	GeoTLDs          []string `mapstructure:"geo_tlds"`
	Regions          []string `mapstructure:"regions"`
	NegativeKeywords []string `mapstructure:"negative_keywords"`
}

// SearchConfig controls the engine chain and its credentials.
type SearchConfig struct {
	GoogleAPIKey string        `mapstructure:"google_api_key"`
	GoogleCSEID  string        `mapstructure:"google_cse_id"`
	BingAPIKey   string        `mapstructure:"bing_api_key"`
	Region       string        `mapstructure:"region"`
	MaxResults   int           `mapstructure:"max_results"`
	MinDelay     time.Duration `mapstructure:"min_delay"`
	EnableScrape bool          `mapstructure:"enable_scrape"`
}

// ProxyConfig lists outbound proxies for scrape traffic.
type ProxyConfig struct {
	URLs []string `mapstructure:"urls"`
}

// VettingConfig controls vetting thresholds.
type VettingConfig struct {
	MinEcommerceKeywords int     `mapstructure:"min_ecommerce_keywords"`
	MinRelevanceScore    float64 `mapstructure:"min_relevance_score"`
	MaxConcurrent        int     `mapstructure:"max_concurrent"`
	Stagger              bool    `mapstructure:"stagger"`
}

// CrawlConfig bounds per-domain crawls and the crawl fleet.
type CrawlConfig struct {
	MaxPages        int    `mapstructure:"max_pages"`
	MaxDepth        int    `mapstructure:"max_depth"`
	Concurrency     int    `mapstructure:"concurrency"`
	ParallelDomains int    `mapstructure:"parallel_domains"`
	UserAgent       string `mapstructure:"user_agent"`
}

// AIConfig holds the text-generation API settings.
type AIConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// ScheduleConfig holds the recurring-run cron expression.
type ScheduleConfig struct {
	Cron string `mapstructure:"cron"`
}

// Load reads configuration and validates it. configPath may be empty; the
// default search path is the working directory and ./config.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("PROSPECTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)
	if err := bindEnvVars(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	if v.GetBool("app.debug") {
		v.Set("logger.level", "debug")
	}
	if v.GetString("app.environment") == "development" {
		v.Set("logger.development", true)
		v.Set("logger.encoding", "console")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app", map[string]any{
		"name":        "prospector",
		"version":     "1.0.0",
		"environment": "production",
		"debug":       false,
	})
	v.SetDefault("logger", map[string]any{
		"level":       "info",
		"development": false,
		"encoding":    "json",
	})
	v.SetDefault("redis", map[string]any{
		"addr": "127.0.0.1:6379",
		"db":   0,
	})
	v.SetDefault("elasticsearch", map[string]any{
		"addresses": []string{"http://127.0.0.1:9200"},
		"index":     "prospector-pages",
	})
	v.SetDefault("discovery", map[string]any{
		"use_ai_variants": true,
		"max_queries":     400,
		"per_family_cap":  50,
		"seed":            42,
	})
	v.SetDefault("search", map[string]any{
		"region":        "us",
		"max_results":   50,
		"min_delay":     "2s",
		"enable_scrape": true,
	})
	v.SetDefault("vetting", map[string]any{
		"min_ecommerce_keywords": 1,
		"min_relevance_score":    0.2,
		"max_concurrent":         5,
		"stagger":                true,
	})
	v.SetDefault("crawl", map[string]any{
		"max_pages":        200,
		"max_depth":        2,
		"concurrency":      5,
		"parallel_domains": 3,
		"user_agent":       "prospector-crawler/1.0",
	})
	v.SetDefault("ai", map[string]any{
		"model": "gemini-2.0-flash",
	})
	v.SetDefault("schedule", map[string]any{
		"cron": "0 6 * * *",
	})
}

// bindEnvVars maps the credential variables their vendors document onto
// config keys, so a plain .env works without the PROSPECTOR_ prefix.
func bindEnvVars(v *viper.Viper) error {
	binds := map[string][]string{
		"app.environment":         {"APP_ENV"},
		"app.debug":               {"APP_DEBUG"},
		"logger.level":            {"LOG_LEVEL"},
		"redis.addr":              {"REDIS_ADDR"},
		"redis.password":          {"REDIS_PASSWORD"},
		"elasticsearch.addresses": {"ELASTICSEARCH_ADDRESSES", "ELASTICSEARCH_HOSTS"},
		"elasticsearch.password":  {"ELASTICSEARCH_PASSWORD", "ELASTIC_PASSWORD"},
		"elasticsearch.api_key":   {"ELASTICSEARCH_API_KEY"},
		"search.google_api_key":   {"GOOGLE_API_KEY"},
		"search.google_cse_id":    {"GOOGLE_CSE_ID"},
		"search.bing_api_key":     {"BING_API_KEY"},
		"ai.api_key":              {"GEMINI_API_KEY"},
	}
	for key, envs := range binds {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("bind %s: %w", key, err)
		}
	}
	return nil
}

// Validate checks cross-field consistency. Zero values that have safe
// defaults are filled by the consuming constructors, not rejected here.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return errors.New("app name must be specified")
	}
	switch c.App.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("invalid environment: %s", c.App.Environment)
	}
	if c.Discovery.MaxQueries < 0 {
		return errors.New("discovery max_queries cannot be negative")
	}
	if c.Vetting.MinRelevanceScore < 0 || c.Vetting.MinRelevanceScore > 1 {
		return fmt.Errorf("vetting min_relevance_score %.2f out of range [0,1]",
			c.Vetting.MinRelevanceScore)
	}
	if c.Crawl.MaxPages <= 0 {
		return errors.New("crawl max_pages must be positive")
	}
	if c.Crawl.MaxDepth < 0 {
		return errors.New("crawl max_depth cannot be negative")
	}
	if len(c.Elasticsearch.Addresses) == 0 {
		return errors.New("elasticsearch addresses must be specified")
	}
	if c.Redis.Addr == "" {
		return errors.New("redis addr must be specified")
	}
	if c.Search.MinDelay < 0 {
		return errors.New("search min_delay cannot be negative")
	}
	return nil
}
