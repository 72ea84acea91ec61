package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/kosarica/feed-service/config"
	"github.com/kosarica/feed-service/internal/bandit"
	"github.com/kosarica/feed-service/internal/cache"
	"github.com/kosarica/feed-service/internal/cf"
	"github.com/kosarica/feed-service/internal/consumer"
	"github.com/kosarica/feed-service/internal/database"
	"github.com/kosarica/feed-service/internal/handlers"
	"github.com/kosarica/feed-service/internal/jobs"
	"github.com/kosarica/feed-service/internal/middleware"
	"github.com/kosarica/feed-service/internal/popularity"
	"github.com/kosarica/feed-service/internal/ranker"
	"github.com/kosarica/feed-service/internal/sweepers"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting feed service")

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := database.Connect(
		ctx,
		dbURL,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("Database connected")

	cacheClient, err := cache.New(cache.Config{
		URL:          config.GetRedisURL(),
		DialTimeout:  cfg.Cache.DialTimeout,
		ReadTimeout:  cfg.Cache.ReadTimeout,
		WriteTimeout: cfg.Cache.WriteTimeout,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create cache client")
	}
	defer cacheClient.Close()

	if err := cacheClient.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("Cache not reachable at startup, continuing degraded")
	} else {
		logger.Info().Msg("Cache connected")
	}

	store := database.NewStore(database.Pool())
	sampler := bandit.New(cacheClient, cfg.Trainer.Seed)

	eventConsumer := consumer.New(cacheClient, cacheClient, store, sampler)
	go eventConsumer.Run(ctx)

	aggregator := popularity.New(store, cacheClient)
	trainer := cf.NewTrainer(store, cacheClient, cf.TrainerConfig{
		Config: cf.Config{
			LatentDim:    cfg.Trainer.LatentDim,
			Epochs:       cfg.Trainer.Epochs,
			LearningRate: cfg.Trainer.LearningRate,
			Reg:          cfg.Trainer.Reg,
			TopK:         cfg.Trainer.TopK,
			Seed:         cfg.Trainer.Seed,
		},
		WindowDays: cfg.Trainer.WindowDays,
		MaxRows:    cfg.Trainer.MaxRows,
	})

	cleanupCfg := jobs.CleanupConfig{
		InteractionRetentionDays: cfg.Workers.RetentionDays,
		FeatureRetentionDays:     2 * cfg.Workers.RetentionDays,
	}

	scheduler := sweepers.NewScheduler(logger,
		sweepers.Job{Name: "aggregate", Interval: cfg.Workers.AggregateInterval, Run: aggregator.Run},
		sweepers.Job{Name: "train", Interval: cfg.Workers.TrainInterval, Run: trainer.Run},
		sweepers.Job{Name: "cleanup", Interval: cfg.Workers.CleanupInterval, Run: func(ctx context.Context) error {
			if err := jobs.CleanupOldInteractions(ctx, database.Pool(), cleanupCfg); err != nil {
				return err
			}
			return jobs.CleanupStaleFeatures(ctx, database.Pool(), cleanupCfg)
		}},
	)
	go scheduler.Start(ctx)

	feedRanker := ranker.New(store, cacheClient, sampler, ranker.Config{
		DefaultLimit:     cfg.Ranker.DefaultLimit,
		MaxLimit:         cfg.Ranker.MaxLimit,
		CandidateCap:     cfg.Ranker.CandidateCap,
		FuzzySearchLimit: cfg.Ranker.FuzzySearchLimit,
		CallTimeout:      cfg.Ranker.CallTimeout,
		Diversity:        ranker.DefaultDiversityConfig(),
	})

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)
	router.Use(middleware.RateLimitMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	}))

	router.GET("/health", handlers.HealthCheck(cacheClient))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/feed", handlers.GetFeed(feedRanker))
	router.POST("/events", handlers.PostEvent(cacheClient))

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	scheduler.Stop()
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "feed-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Msg("HTTP request")
	})
}
