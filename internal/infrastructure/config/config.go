package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 應用配置
type Config struct {
	App            AppConfig            `mapstructure:"app"`
	Server         ServerConfig         `mapstructure:"server"`
	Search         SearchConfig         `mapstructure:"search"`
	Cache          CacheConfig          `mapstructure:"cache"`
	Recommendation RecommendationConfig `mapstructure:"recommendation"`
	Queue          QueueConfig          `mapstructure:"queue"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit"`
	DedupWindow    time.Duration        `mapstructure:"dedup_window"`
	LogLevel       string               `mapstructure:"log_level"`
}

// AppConfig 應用程式設定
type AppConfig struct {
	Env     string `mapstructure:"env"`
	Debug   bool   `mapstructure:"debug"`
	Version string `mapstructure:"version"`
	Name    string `mapstructure:"name"`
}

// ServerConfig 服務器配置
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// SearchConfig 外部生成式搜尋服務配置
type SearchConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Temperature float64       `mapstructure:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MinDelay    time.Duration `mapstructure:"min_delay"`
	MaxAttempts int           `mapstructure:"max_attempts"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
}

// CacheConfig 推薦快取配置
type CacheConfig struct {
	Backend         string        `mapstructure:"backend"`
	TTL             time.Duration `mapstructure:"ttl"`
	MaxItemsPerUser int           `mapstructure:"max_items_per_user"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
	RedisAddr       string        `mapstructure:"redis_addr"`
	RedisPassword   string        `mapstructure:"redis_password"`
	RedisDB         int           `mapstructure:"redis_db"`
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Relevance       string        `mapstructure:"relevance"`
}

// RecommendationConfig 推薦數量設定
type RecommendationConfig struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
	MaxCached    int `mapstructure:"max_cached"`
}

// QueueConfig 互動記錄隊列設定
type QueueConfig struct {
	Workers int `mapstructure:"workers"`
	MaxSize int `mapstructure:"max_size"`
}

// RateLimitConfig 速率限制配置
type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
}

// 快取後端
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendGorm   = "gorm"
)

// 快取相關性過濾模式
const (
	RelevancePermissive = "permissive"
	RelevanceConcerns   = "concerns"
)

// LoadConfig 載入設定
func LoadConfig() (*Config, error) {
	// .env 可有可無
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// 綁定環境變量
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("search.api_key", "PERPLEXITY_API_KEY")
	_ = v.BindEnv("search.base_url", "PERPLEXITY_BASE_URL")
	_ = v.BindEnv("search.model", "PERPLEXITY_MODEL")
	_ = v.BindEnv("search.min_delay", "SEARCH_MIN_DELAY")
	_ = v.BindEnv("search.max_attempts", "SEARCH_MAX_ATTEMPTS")
	_ = v.BindEnv("cache.backend", "CACHE_BACKEND")
	_ = v.BindEnv("cache.ttl", "CACHE_TTL")
	_ = v.BindEnv("cache.redis_addr", "REDIS_ADDR")
	_ = v.BindEnv("cache.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("cache.dsn", "DATABASE_URL")
	_ = v.BindEnv("dedup_window", "DEDUP_WINDOW")
	_ = v.BindEnv("log_level", "LOG_LEVEL")

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// MaskAPIKey 遮罩 API Key，只顯示前後各 4 個字符
func MaskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// setDefaults 設定預設值
func setDefaults(v *viper.Viper) {
	// 應用程式設定
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", true)
	v.SetDefault("app.version", "1.0.0")
	v.SetDefault("app.name", "skin-recommender")

	// 伺服器設定
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")

	// 搜尋服務設定
	v.SetDefault("search.api_key", "")
	v.SetDefault("search.base_url", "https://api.perplexity.ai")
	v.SetDefault("search.model", "sonar")
	v.SetDefault("search.max_tokens", 2000)
	v.SetDefault("search.temperature", 0.2)
	v.SetDefault("search.timeout", "30s")
	v.SetDefault("search.min_delay", "2s")
	v.SetDefault("search.max_attempts", 3)
	v.SetDefault("search.backoff_base", "1s")

	// 快取設定
	v.SetDefault("cache.backend", BackendMemory)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.max_items_per_user", 50)
	v.SetDefault("cache.cleanup_interval", "10m")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.redis_password", "")
	v.SetDefault("cache.redis_db", 0)
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.dsn", "skin-recommender.db")
	v.SetDefault("cache.relevance", RelevancePermissive)

	// 推薦設定
	v.SetDefault("recommendation.default_limit", 7)
	v.SetDefault("recommendation.max_limit", 10)
	v.SetDefault("recommendation.max_cached", 3)

	// 隊列設定
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.max_size", 256)

	// 限流設定
	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests", 100)
	v.SetDefault("rate_limit.window", "1m")

	v.SetDefault("dedup_window", "1s")
	v.SetDefault("log_level", "info")
}

// validateConfig 驗證設定
func validateConfig(config *Config) error {
	if config.Server.Port == 0 {
		return fmt.Errorf("server port is required")
	}

	// 驗證搜尋設定
	if config.Search.MinDelay <= 0 {
		return fmt.Errorf("invalid search min delay")
	}
	if config.Search.MaxAttempts <= 0 {
		return fmt.Errorf("invalid search max attempts")
	}
	if config.Search.Timeout <= 0 {
		return fmt.Errorf("invalid search timeout")
	}

	// 驗證快取設定
	if config.Cache.TTL <= 0 {
		return fmt.Errorf("invalid cache ttl")
	}
	if config.Cache.MaxItemsPerUser <= 0 {
		return fmt.Errorf("invalid cache max items per user")
	}
	switch config.Cache.Backend {
	case BackendMemory, BackendRedis:
	case BackendGorm:
		if config.Cache.Driver != "sqlite" && config.Cache.Driver != "postgres" {
			return fmt.Errorf("cache driver must be 'sqlite' or 'postgres', got: %s", config.Cache.Driver)
		}
		if config.Cache.DSN == "" {
			return fmt.Errorf("cache dsn is required for gorm backend")
		}
	default:
		return fmt.Errorf("unknown cache backend: %s", config.Cache.Backend)
	}
	if config.Cache.Relevance != RelevancePermissive && config.Cache.Relevance != RelevanceConcerns {
		return fmt.Errorf("unknown cache relevance mode: %s", config.Cache.Relevance)
	}

	// 驗證推薦設定
	if config.Recommendation.MaxLimit < 1 {
		return fmt.Errorf("invalid recommendation max limit")
	}
	if config.Recommendation.DefaultLimit < 1 || config.Recommendation.DefaultLimit > config.Recommendation.MaxLimit {
		return fmt.Errorf("invalid recommendation default limit")
	}

	// 驗證隊列設定
	if config.Queue.Workers <= 0 {
		return fmt.Errorf("invalid queue workers")
	}
	if config.Queue.MaxSize <= 0 {
		return fmt.Errorf("invalid queue max size")
	}

	return nil
}

// Default 返回僅含預設值的設定，測試與工具使用
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	_ = v.Unmarshal(&config)
	return &config
}
