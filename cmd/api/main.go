// cmd/api/main.go

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"trendagg/internal/adapter/state"
	"trendagg/internal/adapter/storage"
	"trendagg/internal/config"
	"trendagg/internal/domain/trend"
	"trendagg/internal/server"
	"trendagg/internal/service/aggregator"
	"trendagg/internal/service/social"
	"trendagg/internal/service/trends"
)

func main() {
	// Load .env if present
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	if cfg.Environment == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))

	// Setup context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup signal handling for graceful shutdown
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Initialize dependencies
	db, err := initDatabase(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	trendStore := storage.NewTrendStore(db)
	if err := trendStore.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	natsConn, err := initNATS(cfg.NATS, logger)
	if err != nil {
		logger.Error("failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer natsConn.Close()

	// Initialize provider state (response cache + request throttle)
	if err := os.MkdirAll(cfg.Trends.StateDir, 0o755); err != nil {
		logger.Error("failed to create state directory", "error", err)
		os.Exit(1)
	}
	cache := state.NewCache(cfg.Trends.StateDir, logger)
	throttle := state.NewThrottle(
		filepath.Join(cfg.Trends.StateDir, "last_google_request.txt"),
		cfg.Trends.MinRequestInterval,
		logger,
	)

	// Initialize the trend retrieval strategy
	fetcherCfg := trends.DefaultFetcherConfig()
	fetcherCfg.Seeds = cfg.Trends.Seeds
	fetcherCfg.DomainTerms = cfg.Trends.DomainTerms
	fetcherCfg.SuggestionsPerSeed = cfg.Trends.SuggestionsPerSeed
	fetcherCfg.MaxKeywords = cfg.Trends.MaxKeywords
	fetcherCfg.MaxAttempts = cfg.Trends.MaxAttempts
	fetcherCfg.RateLimitBackoff = cfg.Trends.RateLimitBackoff
	fetcherCfg.RelaxedCacheAge = cfg.Trends.RelaxedCacheAge
	fetcherCfg.TrendingCacheAge = cfg.Trends.TrendingCacheAge

	fetcher := trends.NewFetcher(
		trends.NewClient(),
		cache,
		throttle,
		trends.NewDiscovery(logger),
		fetcherCfg,
		logger,
	)

	redditClient := social.NewRedditClient(
		cfg.Reddit.Subreddits,
		cfg.Reddit.PostsPerSubreddit,
		cfg.Reddit.UserAgent,
		logger,
	)

	// Assemble the aggregation sources
	sources := []aggregator.Source{
		{
			Name: "google_trends",
			Fetch: func(ctx context.Context) []trend.Record {
				return fetcher.FetchTrends(ctx, cfg.Trends.Region, cfg.Trends.Timeframe, true, cfg.Trends.CacheMaxAge)
			},
		},
		{Name: "reddit", Fetch: redditClient.FetchTrends},
	}

	if cfg.YouTube.Enabled() {
		youtubeClient := social.NewYouTubeClient(
			cfg.YouTube.APIKey,
			cfg.YouTube.Region,
			cfg.YouTube.MaxResults,
			logger,
		)
		sources = append(sources, aggregator.Source{Name: "youtube", Fetch: youtubeClient.FetchTrends})
	}

	agg := aggregator.New(sources, trendStore, natsConn, aggregator.Config{
		Interval:    cfg.Aggregator.Interval,
		EventsTopic: cfg.Aggregator.EventsTopic,
	}, logger)

	if err := agg.Start(ctx); err != nil {
		logger.Error("failed to start aggregator", "error", err)
		os.Exit(1)
	}

	// Initialize HTTP server
	httpServer := server.NewServer(cfg.Server, trendStore, natsConn, cfg.Aggregator.EventsTopic, logger)

	go func() {
		logger.Info("starting http server", "host", cfg.Server.Host, "port", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	<-shutdown
	logger.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}

	if err := agg.Stop(shutdownCtx); err != nil {
		logger.Warn("aggregator shutdown error", "error", err)
	}

	logger.Info("shutdown complete")
}

// Initialize database connection
func initDatabase(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	connString := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Database, cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.MaxLifetime

	db, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}

	// Test connection
	if err := db.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return db, nil
}

// Initialize NATS connection
func initNATS(cfg config.NATSConfig, logger *slog.Logger) (*nats.Conn, error) {
	options := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.ConnectTimeout),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("nats connection closed")
		}),
	}

	nc, err := nats.Connect(cfg.URL, options...)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to NATS: %w", err)
	}

	return nc, nil
}
