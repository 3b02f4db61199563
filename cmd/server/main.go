package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/pricelens/backend/config"
	httpDelivery "github.com/pricelens/backend/internal/delivery/http"
	"github.com/pricelens/backend/internal/domain"
	"github.com/pricelens/backend/internal/infrastructure/cache"
	"github.com/pricelens/backend/internal/infrastructure/db"
	"github.com/pricelens/backend/internal/infrastructure/marketplace"
	"github.com/pricelens/backend/internal/infrastructure/ratelimit"
	"github.com/pricelens/backend/internal/infrastructure/state"
	"github.com/pricelens/backend/internal/scheduler"
	"github.com/pricelens/backend/internal/usecase"
)

const version = "1.0.0"

// resultStore is what the services and the housekeeping job need from a cache backend
type resultStore interface {
	domain.ResultCache
	scheduler.Purger
}

// windowLimiter is what the services and the housekeeping job need from a limiter backend
type windowLimiter interface {
	domain.RateLimiter
	scheduler.Pruner
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	setupLogging(cfg.Log)

	log.Printf("Starting PriceLens Backend v%s", version)
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	redisPool := newRedisPool()
	defer redisPool.Close()

	// Initialize infrastructure dependencies
	resultCache, err := newResultCache(ctx, cfg, redisPool)
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	log.Printf("Cache: %s (text TTL %s, image TTL %s)", cfg.Cache.Type, cfg.Cache.TextTTL, cfg.Cache.ImageTTL)

	stateStore, err := newStateStore(ctx, cfg, redisPool)
	if err != nil {
		log.Fatalf("Failed to initialize state store: %v", err)
	}
	log.Printf("State store: %s", cfg.State.Type)

	limiter, err := newLimiter(ctx, cfg, redisPool)
	if err != nil {
		log.Fatalf("Failed to initialize rate limiter: %v", err)
	}
	log.Printf("Platform rate limiter: %s", cfg.RateLimit.Backend)

	adapters, imageSearchers, fallback, err := buildMarketplaces(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize marketplaces: %v", err)
	}

	affiliateConfigs, limits, maxWindow := platformSettings(cfg)
	affiliate := usecase.NewAffiliateProcessor(affiliateConfigs)

	// Initialize usecase layer
	searchService := usecase.NewSearchService(resultCache, limiter, adapters, affiliate, stateStore,
		usecase.SearchServiceConfig{
			CacheTTL:           cfg.Cache.TextTTL,
			CallTimeout:        cfg.Search.CallTimeout,
			RequestTimeout:     cfg.Search.RequestTimeout,
			DefaultPlatforms:   cfg.Search.DefaultPlatforms,
			MaxConcurrency:     cfg.Search.MaxConcurrency,
			Limits:             limits,
			EnableDebugLogging: cfg.Search.EnableDebugLogging,
		})

	imageChain := usecase.NewImageChain(imageSearchers, fallback, resultCache, limiter, affiliate, stateStore,
		usecase.ImageChainConfig{
			CacheTTL:       cfg.Cache.ImageTTL,
			CallTimeout:    cfg.Search.CallTimeout,
			RequestTimeout: cfg.Search.RequestTimeout,
			MinConfidence:  cfg.Search.MinImageConfidence,
			Limits:         limits,
		})

	known := make([]string, 0, len(adapters))
	for _, a := range adapters {
		known = append(known, a.Platform())
	}
	settingsService := usecase.NewSettingsService(stateStore, resultCache, known)

	log.Printf("Search: platforms=%v, call timeout=%s, request timeout=%s, debug=%v",
		known, cfg.Search.CallTimeout, cfg.Search.RequestTimeout, cfg.Search.EnableDebugLogging)

	// Housekeeping
	sched := scheduler.New(resultCache, limiter, cfg.Cache.CleanupInterval, maxWindow)
	if err := sched.Start(ctx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer sched.Stop()

	handler := httpDelivery.NewHandler(searchService, imageChain, settingsService, version)
	router := httpDelivery.SetupRouter(cfg, handler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.Search.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
		return
	}
	log.Println("Server exited")
}

func setupLogging(cfg config.LogConfig) {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	level, err := log.ParseLevel(cfg.Level)
	if err != nil {
		log.Warnf("Unknown log level %q, using info", cfg.Level)
		level = log.InfoLevel
	}
	log.SetLevel(level)
}

// redisPool shares one client per URL across cache, state and limiter
type redisPool struct {
	clients map[string]*redis.Client
}

func newRedisPool() *redisPool {
	return &redisPool{clients: make(map[string]*redis.Client)}
}

func (p *redisPool) get(ctx context.Context, url string) (*redis.Client, error) {
	if c, ok := p.clients[url]; ok {
		return c, nil
	}
	c, err := db.NewRedisClient(ctx, url)
	if err != nil {
		return nil, err
	}
	p.clients[url] = c
	return c, nil
}

func (p *redisPool) Close() {
	for url, c := range p.clients {
		if err := c.Close(); err != nil {
			log.Printf("Failed to close redis client %s: %v", url, err)
		}
	}
}

func newResultCache(ctx context.Context, cfg *config.Config, pool *redisPool) (resultStore, error) {
	if cfg.Cache.Type != "redis" {
		return cache.NewMemoryCache(), nil
	}
	rdb, err := pool.get(ctx, cfg.Cache.RedisURL)
	if err != nil {
		return nil, err
	}
	return cache.NewRedisCache(rdb), nil
}

func newStateStore(ctx context.Context, cfg *config.Config, pool *redisPool) (domain.StateStore, error) {
	if cfg.State.Type != "redis" {
		return state.NewMemoryStore(), nil
	}
	rdb, err := pool.get(ctx, cfg.RedisURLFor(cfg.State.RedisURL))
	if err != nil {
		return nil, err
	}
	return state.NewRedisStore(rdb), nil
}

func newLimiter(ctx context.Context, cfg *config.Config, pool *redisPool) (windowLimiter, error) {
	if cfg.RateLimit.Backend != "redis" {
		return ratelimit.NewSlidingWindow(), nil
	}
	rdb, err := pool.get(ctx, cfg.RedisURLFor(cfg.RateLimit.RedisURL))
	if err != nil {
		return nil, err
	}
	return ratelimit.NewRedisWindow(rdb), nil
}

// buildMarketplaces creates an adapter for every enabled platform. The image
// chain follows search.image_chain; the lens provider is its fallback.
func buildMarketplaces(cfg *config.Config) ([]domain.PlatformAdapter, []domain.ImageSearcher, domain.ImageSearcher, error) {
	var (
		adapters  []domain.PlatformAdapter
		byImage   = make(map[string]domain.ImageSearcher)
		fallback  domain.ImageSearcher
		platforms = make([]string, 0, len(cfg.Platforms))
	)
	for name := range cfg.Platforms {
		platforms = append(platforms, name)
	}
	sort.Strings(platforms)

	for _, name := range platforms {
		p := cfg.Platforms[name]
		if !p.Enabled {
			log.Printf("Platform %s disabled", name)
			continue
		}
		mc := marketplace.Config{BaseURL: p.BaseURL, APIKey: p.APIKey}

		switch name {
		case domain.PlatformAliExpress:
			a, err := marketplace.NewAliExpress(mc)
			if err != nil {
				return nil, nil, nil, err
			}
			adapters = append(adapters, a)
			if p.ImageSearch {
				byImage[name] = a
			}
		case domain.PlatformTemu:
			a, err := marketplace.NewTemu(mc)
			if err != nil {
				return nil, nil, nil, err
			}
			adapters = append(adapters, a)
		case domain.PlatformDHgate:
			a, err := marketplace.NewDHgate(mc)
			if err != nil {
				return nil, nil, nil, err
			}
			adapters = append(adapters, a)
		case config.ImageFallbackPlatform:
			l, err := marketplace.NewLens(mc)
			if err != nil {
				return nil, nil, nil, err
			}
			fallback = l
		default:
			log.Warnf("Platform %s has no adapter, ignoring", name)
			continue
		}
		log.Printf("Platform %s enabled: %s", name, p.BaseURL)
	}

	if fallback == nil {
		return nil, nil, nil, fmt.Errorf("image search fallback %s is not enabled", config.ImageFallbackPlatform)
	}

	chain := make([]domain.ImageSearcher, 0, len(cfg.Search.ImageChain))
	for _, name := range cfg.Search.ImageChain {
		s, ok := byImage[name]
		if !ok {
			log.Warnf("Image chain step %s is not an enabled image-capable platform, skipping", name)
			continue
		}
		chain = append(chain, s)
	}

	return adapters, chain, fallback, nil
}

// platformSettings extracts affiliate tagging and request budgets per
// platform, plus the longest budget window
func platformSettings(cfg *config.Config) (map[string]domain.AffiliateConfig, map[string]domain.PlatformLimits, time.Duration) {
	affiliates := make(map[string]domain.AffiliateConfig, len(cfg.Platforms))
	limits := make(map[string]domain.PlatformLimits, len(cfg.Platforms))
	var maxWindow time.Duration

	for name, p := range cfg.Platforms {
		affiliates[name] = domain.AffiliateConfig{
			Enabled: p.Affiliate.Enabled,
			Param:   p.Affiliate.Param,
			Value:   p.Affiliate.Value,
			Extra:   p.Affiliate.Extra,
		}
		limits[name] = domain.PlatformLimits{
			MaxRequests: p.RateLimit.MaxRequests,
			Window:      p.RateLimit.Window,
		}
		if p.RateLimit.Window > maxWindow {
			maxWindow = p.RateLimit.Window
		}
	}
	if maxWindow == 0 {
		maxWindow = time.Minute
	}
	return affiliates, limits, maxWindow
}
