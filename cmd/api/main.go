package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wbtrack-rest-api/internal/cache"
	"wbtrack-rest-api/internal/config"
	"wbtrack-rest-api/internal/handler"
	"wbtrack-rest-api/internal/metrics"
	"wbtrack-rest-api/internal/middleware"
	"wbtrack-rest-api/internal/model"
	"wbtrack-rest-api/internal/repository"
	"wbtrack-rest-api/internal/router"
	"wbtrack-rest-api/internal/service"
	"wbtrack-rest-api/internal/wildberries"
	"wbtrack-rest-api/pkg/password"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting WBTrack API...")

	// Load configuration
	cfg := config.MustLoad()
	log.Printf("Environment: %s", cfg.App.Environment)

	// Open the database and apply migrations
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	db, err := repository.Open(ctx, cfg.Database.Driver, cfg.Database.URL)
	cancel()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer db.Close()

	// Initialize the token state store
	var store cache.Cache
	switch cfg.Cache.Type {
	case "memory":
		store = cache.NewMemoryCache()
		log.Println("Memory cache initialized")
	default:
		redisCache, err := cache.NewRedisCache(cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			db.Close()
			log.Fatalf("Failed to initialize Redis: %v", err)
		}
		store = redisCache
	}
	defer store.Close()

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// Repositories
	userRepo := repository.NewSQLUserRepository(db)
	productRepo := repository.NewSQLProductRepository(db)

	// Services
	tokenService, err := service.NewTokenService(store, service.TokenConfig{
		Secret:        []byte(cfg.Auth.SecretKey),
		Algorithm:     cfg.Auth.Algorithm,
		Lifetime:      cfg.Auth.TokenLifetime(),
		RevocationTTL: cfg.Auth.RevocationTTL,
	})
	if err != nil {
		log.Fatalf("Failed to initialize token service: %v", err)
	}

	wbClient := wildberries.NewClient(&http.Client{}, wildberries.Config{
		BaseURL:        cfg.Wildberries.BaseURL,
		APIToken:       cfg.Wildberries.APIToken,
		MaxAttempts:    cfg.Wildberries.MaxAttempts,
		RetryDelay:     cfg.Wildberries.RetryDelay,
		AttemptTimeout: cfg.Wildberries.AttemptTimeout,
		RatePerSecond:  cfg.Wildberries.RatePerSecond,
		RateBurst:      cfg.Wildberries.RateBurst,
	})

	authService := service.NewAuthService(userRepo, tokenService, password.NewHasher(password.DefaultParams))
	productService := service.NewProductService(productRepo, wbClient)

	// Background refresh of tracked products
	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()

	var scheduler *service.Scheduler
	if cfg.Scheduler.Enabled {
		scheduler = service.NewScheduler(productRepo,
			map[string]service.DetailsFetcher{model.MarketplaceWildberries: wbClient},
			service.SchedulerConfig{
				Interval:   cfg.Scheduler.Interval(),
				BatchSize:  cfg.Scheduler.BatchSize,
				Backoff:    cfg.Scheduler.Backoff,
				MaxBackoff: cfg.Scheduler.MaxBackoff,
			},
			collector,
		)
		go scheduler.Run(schedulerCtx)
	} else {
		log.Println("Scheduler disabled")
	}

	// Handlers and middleware
	healthHandler := handler.New(cfg.App.Version,
		handler.ReadinessCheck{Name: "cache", Ping: store.Ping},
		handler.ReadinessCheck{Name: "database", Ping: db.PingContext},
	)

	loginLimiter := middleware.NewRateLimiter(middleware.LoginRateLimiterConfig(
		cfg.Auth.LoginRatePerMinute, cfg.Auth.LoginRateBurst))
	defer loginLimiter.Stop()

	// Create auth middleware with injected dependencies
	authMiddleware := middleware.NewAuthMiddleware(middleware.AuthConfig{
		Tokens: tokenService,
		Users:  userRepo,
	})

	// Create router
	r := router.New(router.Config{
		Handler:        healthHandler,
		AuthHandler:    handler.NewAuthHandler(authService),
		ProductHandler: handler.NewProductHandler(productService),
		AuthMiddleware: authMiddleware,
		LoginLimiter:   loginLimiter.Middleware,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(registry),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Address())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	ctx, cancel = context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop the scheduler first so no snapshot is written during teardown
	stopScheduler()
	if scheduler != nil {
		select {
		case <-scheduler.Done():
			log.Println("Scheduler stopped")
		case <-ctx.Done():
			log.Println("Scheduler did not stop before the shutdown timeout")
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
	fmt.Println("Goodbye!")
}
