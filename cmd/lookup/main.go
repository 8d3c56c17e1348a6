package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/indexer/shard"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/lookup/cache"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/lookup/handler"
	"github.com/Adithya-Monish-Kumar-K/forward-index/internal/lookup/reload"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/forward-index/pkg/middleware"
	pkgredis "github.com/Adithya-Monish-Kumar-K/forward-index/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting lookup service", "port", cfg.Server.Port, "num_shards", cfg.Forward.NumShards)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New()
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer shutdownMetrics(context.Background())
	}

	router, err := shard.NewRouter(cfg.Forward, indexer.ReadOnly(), indexer.WithMetrics(m))
	if err != nil {
		slog.Error("failed to open shard router", "error", err)
		os.Exit(1)
	}
	defer router.Close()
	slog.Info("shard router opened",
		"data_dir", cfg.Forward.DataDir,
		"segments", router.SegmentCount(),
	)
	if m != nil {
		m.ActiveShards.Set(float64(router.NumShards()))
	}

	checker := health.NewChecker()
	checker.Register("shards", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d shards, %d segments", router.NumShards(), router.SegmentCount()),
		}
	})

	var lookupCache *cache.LookupCache
	redisClient, err := pkgredis.NewClient(cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, lookup caching disabled", "error", err)
		checker.Register("redis", health.PingCheck(nil, false))
	} else {
		defer redisClient.Close()
		lookupCache = cache.New(redisClient, cfg.Redis.CacheTTL, m)
		checker.Register("redis", health.PingCheck(redisClient.Ping, false))
		slog.Info("lookup cache enabled",
			"addr", cfg.Redis.Addr,
			"ttl", cfg.Redis.CacheTTL,
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reload.Start(ctx, router, lookupCache, cfg.Forward.FlushInterval)

	// Every lookup replica must see every announcement, so each gets its
	// own consumer group.
	hostname, _ := os.Hostname()
	sealedCfg := cfg.Kafka
	sealedCfg.ConsumerGroup = fmt.Sprintf("%s-lookup-%s", cfg.Kafka.ConsumerGroup, hostname)
	sealedConsumer := kafka.NewConsumer(sealedCfg, cfg.Kafka.Topics.IndexComplete, reload.HandleSealed(router, lookupCache))
	go func() {
		if err := sealedConsumer.Start(ctx); err != nil {
			slog.Error("sealed segment consumer error", "error", err)
		}
	}()

	mux := http.NewServeMux()
	handler.New(router, lookupCache).Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	if m != nil {
		chain = middleware.Metrics(m)(chain)
	}
	chain = middleware.Timeout(cfg.Server.WriteTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("lookup service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("lookup service stopped")
}
