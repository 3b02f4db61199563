package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ImageFallbackPlatform is the generic visual search provider that always
// ends the reverse image chain
const ImageFallbackPlatform = "lens"

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Log       LogConfig
	Cache     CacheConfig
	State     StateConfig
	RateLimit RateLimitConfig
	Search    SearchConfig
	Platforms map[string]PlatformConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// CacheConfig holds cache-related configuration
type CacheConfig struct {
	Type            string        `mapstructure:"type"` // "memory" or "redis"
	RedisURL        string        `mapstructure:"redis_url"`
	TextTTL         time.Duration `mapstructure:"text_ttl"`
	ImageTTL        time.Duration `mapstructure:"image_ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// StateConfig holds the backend for settings, history and click tracking
type StateConfig struct {
	Type     string `mapstructure:"type"` // "memory" or "redis"
	RedisURL string `mapstructure:"redis_url"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	PerIP    int    `mapstructure:"per_ip"`  // requests per minute per client IP
	Backend  string `mapstructure:"backend"` // "memory" or "redis" for platform windows
	RedisURL string `mapstructure:"redis_url"`
}

// SearchConfig holds orchestration settings
type SearchConfig struct {
	CallTimeout        time.Duration `mapstructure:"call_timeout"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	DefaultPlatforms   []string      `mapstructure:"default_platforms"`
	ImageChain         []string      `mapstructure:"image_chain"`
	MaxConcurrency     int           `mapstructure:"max_concurrency"`
	MinImageConfidence float64       `mapstructure:"min_image_confidence"`
	EnableDebugLogging bool          `mapstructure:"enable_debug_logging"`
}

// PlatformConfig holds per-marketplace configuration
type PlatformConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	BaseURL     string            `mapstructure:"base_url"`
	APIKey      string            `mapstructure:"api_key"`
	ImageSearch bool              `mapstructure:"image_search"`
	RateLimit   PlatformRateLimit `mapstructure:"rate_limit"`
	Affiliate   PlatformAffiliate `mapstructure:"affiliate"`
}

// PlatformRateLimit is the sliding-window budget for one platform
type PlatformRateLimit struct {
	MaxRequests int           `mapstructure:"max_requests"`
	Window      time.Duration `mapstructure:"window"`
}

// PlatformAffiliate is the affiliate tagging for one platform
type PlatformAffiliate struct {
	Enabled bool              `mapstructure:"enabled"`
	Param   string            `mapstructure:"param"`
	Value   string            `mapstructure:"value"`
	Extra   map[string]string `mapstructure:"extra"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/pricelens/")

	// Environment variable settings
	v.SetEnvPrefix("PRICELENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"chrome-extension://*"})
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("log.level", "info")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.text_ttl", "24h")
	v.SetDefault("cache.image_ttl", "1h")
	v.SetDefault("cache.cleanup_interval", "10m")

	v.SetDefault("state.type", "memory")

	// Rate limit defaults
	v.SetDefault("ratelimit.per_ip", 60)
	v.SetDefault("ratelimit.backend", "memory")

	// Search defaults
	v.SetDefault("search.call_timeout", "6s")
	v.SetDefault("search.request_timeout", "11s")
	v.SetDefault("search.default_platforms", []string{"aliexpress", "temu", "dhgate"})
	v.SetDefault("search.image_chain", []string{"aliexpress"})
	v.SetDefault("search.max_concurrency", 8)
	v.SetDefault("search.min_image_confidence", 50)

	// Platform defaults
	v.SetDefault("platforms", map[string]interface{}{
		"aliexpress": map[string]interface{}{
			"enabled":      true,
			"base_url":     "https://api.aliexpress.example.com",
			"image_search": true,
			"rate_limit":   map[string]interface{}{"max_requests": 30, "window": "1m"},
			"affiliate": map[string]interface{}{
				"enabled": true,
				"param":   "aff_fcid",
				"value":   "pricelens",
				"extra":   map[string]interface{}{"aff_platform": "portals-tool"},
			},
		},
		"temu": map[string]interface{}{
			"enabled":    true,
			"base_url":   "https://api.temu.example.com",
			"rate_limit": map[string]interface{}{"max_requests": 20, "window": "1m"},
			"affiliate": map[string]interface{}{
				"enabled": true,
				"param":   "_x_ads_channel",
				"value":   "pricelens",
			},
		},
		"dhgate": map[string]interface{}{
			"enabled":    true,
			"base_url":   "https://www.dhgate.com",
			"rate_limit": map[string]interface{}{"max_requests": 10, "window": "1m"},
			"affiliate": map[string]interface{}{
				"enabled": false,
				"param":   "f",
				"value":   "pricelens",
			},
		},
		"lens": map[string]interface{}{
			"enabled":      true,
			"base_url":     "https://lens.example.com",
			"image_search": true,
			"rate_limit":   map[string]interface{}{"max_requests": 10, "window": "1m"},
		},
	})
}

// validate validates the configuration
func validate(config *Config) error {
	if config.Cache.Type != "memory" && config.Cache.Type != "redis" {
		return fmt.Errorf("cache type must be 'memory' or 'redis', got: %s", config.Cache.Type)
	}

	if config.Cache.Type == "redis" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when cache type is 'redis'")
	}

	if config.State.Type != "memory" && config.State.Type != "redis" {
		return fmt.Errorf("state type must be 'memory' or 'redis', got: %s", config.State.Type)
	}

	if config.State.Type == "redis" && config.State.RedisURL == "" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when state type is 'redis'")
	}

	if config.RateLimit.Backend != "memory" && config.RateLimit.Backend != "redis" {
		return fmt.Errorf("rate limit backend must be 'memory' or 'redis', got: %s", config.RateLimit.Backend)
	}

	if config.RateLimit.Backend == "redis" && config.RateLimit.RedisURL == "" && config.Cache.RedisURL == "" {
		return fmt.Errorf("Redis URL is required when rate limit backend is 'redis'")
	}

	if config.Search.CallTimeout <= 0 || config.Search.RequestTimeout <= 0 {
		return fmt.Errorf("search timeouts must be positive")
	}

	if config.Search.CallTimeout > config.Search.RequestTimeout {
		return fmt.Errorf("search.call_timeout (%s) must not exceed search.request_timeout (%s)",
			config.Search.CallTimeout, config.Search.RequestTimeout)
	}

	if config.Search.MinImageConfidence < 0 || config.Search.MinImageConfidence > 100 {
		return fmt.Errorf("search.min_image_confidence must be within 0-100, got: %.0f", config.Search.MinImageConfidence)
	}

	for name, p := range config.Platforms {
		if !p.Enabled {
			continue
		}
		if p.BaseURL == "" {
			return fmt.Errorf("platform %s: base_url is required", name)
		}
		if p.RateLimit.MaxRequests <= 0 || p.RateLimit.Window <= 0 {
			return fmt.Errorf("platform %s: rate_limit.max_requests and rate_limit.window must be positive", name)
		}
		if p.Affiliate.Enabled && (p.Affiliate.Param == "" || p.Affiliate.Value == "") {
			return fmt.Errorf("platform %s: affiliate param and value are required when affiliate is enabled", name)
		}
	}

	if p, ok := config.Platforms[ImageFallbackPlatform]; !ok || !p.Enabled {
		return fmt.Errorf("platform %s must be enabled as the reverse image search fallback", ImageFallbackPlatform)
	}

	for _, name := range config.Search.DefaultPlatforms {
		if p, ok := config.Platforms[name]; !ok || !p.Enabled {
			return fmt.Errorf("default platform %s is not configured or disabled", name)
		}
	}

	return nil
}

// RedisURLFor returns sectionURL, falling back to the cache's Redis URL
func (c *Config) RedisURLFor(sectionURL string) string {
	if sectionURL != "" {
		return sectionURL
	}
	return c.Cache.RedisURL
}
