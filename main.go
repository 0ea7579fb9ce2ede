package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"milhasradar/promoworker/config"
	"milhasradar/promoworker/internal/pipeline"
	"milhasradar/promoworker/internal/scraper"
	"milhasradar/promoworker/internal/server"
	"milhasradar/promoworker/logger"
	"milhasradar/promoworker/services/cache"
	"milhasradar/promoworker/services/publisher"
	"milhasradar/promoworker/services/store"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Str("listing_url", cfg.ListingURL).
		Msg("Starting promotion worker")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, &cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	pipe := pipeline.New(pipeline.Config{
		Fetcher:      services.Fetcher,
		Parser:       services.Parser,
		Promotions:   services.Store,
		Jobs:         services.Store,
		Publisher:    services.Publisher,
		ListingURL:   cfg.ListingURL,
		SourceDomain: cfg.SourceDomain,
		MaxArticles:  cfg.MaxArticles,
		SoftExpiry:   time.Duration(cfg.SoftExpiryDays) * 24 * time.Hour,
		HardDelete:   time.Duration(cfg.HardDeleteDays) * 24 * time.Hour,
	})

	// Scheduled runs are optional; the HTTP trigger always works
	var scheduler *cron.Cron
	if cfg.CronSpec != "" {
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.CronSpec, func() {
			if _, err := pipe.Run(ctx, pipeline.Options{Enrich: cfg.Enrich}); err != nil {
				log.Error().Err(err).Msg("Scheduled scrape run failed")
			}
		})
		if err != nil {
			log.Fatal().Err(err).Str("cron_spec", cfg.CronSpec).Msg("Invalid cron spec")
		}
		scheduler.Start()
		log.Info().Str("cron_spec", cfg.CronSpec).Msg("Scheduled scrape runs")
	}

	srv := server.New(cfg.Port, pipe, services.Store)
	serverDone := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("HTTP server listening")
		serverDone <- srv.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
	case err := <-serverDone:
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server exited with error")
		}
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Pool      *pgxpool.Pool
	Store     *store.PostgresStore
	Fetcher   *scraper.HTTPPageFetcher
	Parser    *scraper.Parser
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	pool, err := store.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	services.Pool = pool
	services.Store = store.NewPostgresStore(pool)

	logger.Info("Connected to Postgres")

	// Initialize cache service
	services.Cache = cache.NewMemcacheService(cfg.MemcacheAddr)

	logger.Info("Connected to Memcache at %s", cfg.MemcacheAddr)

	// Initialize publisher
	services.Publisher = publisher.NewRedisPublisher(
		ctx,
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.RedisStream,
		cfg.RedisStreamMaxLength,
	)

	logger.Info("Connected to Redis at %s (DB: %d, Stream: %s)",
		cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream)

	services.Fetcher = scraper.NewHTTPPageFetcher(services.Cache, cfg.FetchBlockTime)

	rules := scraper.DefaultRules()
	if cfg.RulesPath != "" {
		rules, err = scraper.LoadRules(cfg.RulesPath)
		if err != nil {
			return nil, err
		}
		logger.Info("Loaded parser rules from %s", cfg.RulesPath)
	}
	services.Parser = scraper.NewParser(rules, cfg.SourceName)

	return services, nil
}
