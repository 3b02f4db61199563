package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	// Clean up environment before tests
	cleanupEnv := func() {
		os.Unsetenv("PRICELENS_SERVER_PORT")
		os.Unsetenv("PRICELENS_SERVER_ENVIRONMENT")
		os.Unsetenv("PRICELENS_CACHE_TYPE")
		os.Unsetenv("PRICELENS_CACHE_REDIS_URL")
		os.Unsetenv("PRICELENS_CACHE_TEXT_TTL")
		os.Unsetenv("PRICELENS_CACHE_IMAGE_TTL")
		os.Unsetenv("PRICELENS_RATELIMIT_PER_IP")
		os.Unsetenv("PRICELENS_SEARCH_CALL_TIMEOUT")
		os.Unsetenv("PRICELENS_SEARCH_REQUEST_TIMEOUT")
	}

	t.Run("loads with defaults when no env vars set", func(t *testing.T) {
		cleanupEnv()
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "8080" {
			t.Errorf("Server.Port = %s, want 8080", cfg.Server.Port)
		}
		if cfg.Server.Environment != "development" {
			t.Errorf("Server.Environment = %s, want development", cfg.Server.Environment)
		}
		if cfg.Cache.Type != "memory" {
			t.Errorf("Cache.Type = %s, want memory", cfg.Cache.Type)
		}
		if cfg.Cache.TextTTL != 24*time.Hour {
			t.Errorf("Cache.TextTTL = %v, want 24h", cfg.Cache.TextTTL)
		}
		if cfg.Cache.ImageTTL != time.Hour {
			t.Errorf("Cache.ImageTTL = %v, want 1h", cfg.Cache.ImageTTL)
		}
		if cfg.Search.CallTimeout != 6*time.Second {
			t.Errorf("Search.CallTimeout = %v, want 6s", cfg.Search.CallTimeout)
		}
		if cfg.Search.RequestTimeout != 11*time.Second {
			t.Errorf("Search.RequestTimeout = %v, want 11s", cfg.Search.RequestTimeout)
		}
		if cfg.Search.MinImageConfidence != 50 {
			t.Errorf("Search.MinImageConfidence = %.0f, want 50", cfg.Search.MinImageConfidence)
		}
		if len(cfg.Search.DefaultPlatforms) != 3 {
			t.Errorf("Search.DefaultPlatforms = %v, want 3 platforms", cfg.Search.DefaultPlatforms)
		}

		ali, ok := cfg.Platforms["aliexpress"]
		if !ok {
			t.Fatalf("Platforms[aliexpress] missing")
		}
		if ali.RateLimit.MaxRequests != 30 || ali.RateLimit.Window != time.Minute {
			t.Errorf("aliexpress rate limit = %+v, want 30/1m", ali.RateLimit)
		}
		if !ali.Affiliate.Enabled || ali.Affiliate.Param != "aff_fcid" {
			t.Errorf("aliexpress affiliate = %+v, want enabled aff_fcid", ali.Affiliate)
		}
	})

	t.Run("loads custom values from environment variables", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("PRICELENS_SERVER_PORT", "9090")
		os.Setenv("PRICELENS_SERVER_ENVIRONMENT", "production")
		os.Setenv("PRICELENS_CACHE_TYPE", "redis")
		os.Setenv("PRICELENS_CACHE_REDIS_URL", "redis://localhost:6379")
		os.Setenv("PRICELENS_CACHE_TEXT_TTL", "12h")
		os.Setenv("PRICELENS_RATELIMIT_PER_IP", "200")
		defer cleanupEnv()

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() error = %v, want nil", err)
		}

		if cfg.Server.Port != "9090" {
			t.Errorf("Server.Port = %s, want 9090", cfg.Server.Port)
		}
		if cfg.Server.Environment != "production" {
			t.Errorf("Server.Environment = %s, want production", cfg.Server.Environment)
		}
		if cfg.Cache.Type != "redis" {
			t.Errorf("Cache.Type = %s, want redis", cfg.Cache.Type)
		}
		if cfg.Cache.RedisURL != "redis://localhost:6379" {
			t.Errorf("Cache.RedisURL = %s, want redis://localhost:6379", cfg.Cache.RedisURL)
		}
		if cfg.Cache.TextTTL != 12*time.Hour {
			t.Errorf("Cache.TextTTL = %v, want 12h", cfg.Cache.TextTTL)
		}
		if cfg.RateLimit.PerIP != 200 {
			t.Errorf("RateLimit.PerIP = %d, want 200", cfg.RateLimit.PerIP)
		}
	})

	t.Run("fails validation for invalid cache type", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("PRICELENS_CACHE_TYPE", "invalid")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for invalid cache type")
		}
	})

	t.Run("fails validation when redis URL missing for redis cache", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("PRICELENS_CACHE_TYPE", "redis")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for missing Redis URL")
		}
	})

	t.Run("fails validation when call timeout exceeds request timeout", func(t *testing.T) {
		cleanupEnv()
		os.Setenv("PRICELENS_SEARCH_CALL_TIMEOUT", "20s")
		defer cleanupEnv()

		_, err := Load()
		if err == nil {
			t.Error("Load() error = nil, want error for call timeout above request timeout")
		}
	})
}

func validConfig() *Config {
	return &Config{
		Cache:     CacheConfig{Type: "memory"},
		State:     StateConfig{Type: "memory"},
		RateLimit: RateLimitConfig{Backend: "memory"},
		Search: SearchConfig{
			CallTimeout:        6 * time.Second,
			RequestTimeout:     11 * time.Second,
			DefaultPlatforms:   []string{"aliexpress"},
			MinImageConfidence: 50,
		},
		Platforms: map[string]PlatformConfig{
			"aliexpress": {
				Enabled:   true,
				BaseURL:   "https://api.example.com",
				RateLimit: PlatformRateLimit{MaxRequests: 10, Window: time.Minute},
				Affiliate: PlatformAffiliate{Enabled: true, Param: "aff", Value: "x"},
			},
			ImageFallbackPlatform: {
				Enabled:   true,
				BaseURL:   "https://lens.example.com",
				RateLimit: PlatformRateLimit{MaxRequests: 10, Window: time.Minute},
			},
		},
	}
}

func TestValidate(t *testing.T) {
	t.Run("validates successfully with all required fields", func(t *testing.T) {
		if err := validate(validConfig()); err != nil {
			t.Errorf("validate() error = %v, want nil", err)
		}
	})

	t.Run("fails for invalid cache type", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cache.Type = "invalid-type"

		if err := validate(cfg); err == nil {
			t.Error("validate() error = nil, want error for invalid cache type")
		}
	})

	t.Run("validates redis cache type with URL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cache = CacheConfig{Type: "redis", RedisURL: "redis://localhost:6379"}

		if err := validate(cfg); err != nil {
			t.Errorf("validate() error = %v, want nil for valid redis config", err)
		}
	})

	t.Run("redis state falls back to cache URL", func(t *testing.T) {
		cfg := validConfig()
		cfg.Cache = CacheConfig{Type: "redis", RedisURL: "redis://localhost:6379"}
		cfg.State = StateConfig{Type: "redis"}

		if err := validate(cfg); err != nil {
			t.Errorf("validate() error = %v, want nil", err)
		}
		if got := cfg.RedisURLFor(cfg.State.RedisURL); got != "redis://localhost:6379" {
			t.Errorf("RedisURLFor() = %s, want cache URL", got)
		}
	})

	t.Run("fails for redis rate limit backend without any URL", func(t *testing.T) {
		cfg := validConfig()
		cfg.RateLimit.Backend = "redis"

		if err := validate(cfg); err == nil {
			t.Error("validate() error = nil, want error for redis limiter without URL")
		}
	})

	t.Run("fails for enabled platform without base URL", func(t *testing.T) {
		cfg := validConfig()
		p := cfg.Platforms["aliexpress"]
		p.BaseURL = ""
		cfg.Platforms["aliexpress"] = p

		if err := validate(cfg); err == nil {
			t.Error("validate() error = nil, want error for missing base_url")
		}
	})

	t.Run("fails for enabled affiliate without param", func(t *testing.T) {
		cfg := validConfig()
		p := cfg.Platforms["aliexpress"]
		p.Affiliate.Param = ""
		cfg.Platforms["aliexpress"] = p

		if err := validate(cfg); err == nil {
			t.Error("validate() error = nil, want error for affiliate without param")
		}
	})

	t.Run("fails for unknown default platform", func(t *testing.T) {
		cfg := validConfig()
		cfg.Search.DefaultPlatforms = []string{"ebay"}

		if err := validate(cfg); err == nil {
			t.Error("validate() error = nil, want error for unknown default platform")
		}
	})

	t.Run("fails when the image fallback is disabled", func(t *testing.T) {
		cfg := validConfig()
		p := cfg.Platforms[ImageFallbackPlatform]
		p.Enabled = false
		cfg.Platforms[ImageFallbackPlatform] = p

		if err := validate(cfg); err == nil {
			t.Error("validate() error = nil, want error for disabled image fallback")
		}
	})

	t.Run("fails when the image fallback is missing", func(t *testing.T) {
		cfg := validConfig()
		delete(cfg.Platforms, ImageFallbackPlatform)

		if err := validate(cfg); err == nil {
			t.Error("validate() error = nil, want error for missing image fallback")
		}
	})

	t.Run("fails for out of range image confidence", func(t *testing.T) {
		cfg := validConfig()
		cfg.Search.MinImageConfidence = 150

		if err := validate(cfg); err == nil {
			t.Error("validate() error = nil, want error for confidence above 100")
		}
	})
}
