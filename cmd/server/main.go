// Package main runs the activity engine: the feed client, the aggregate store,
// navigation sessions, the fill ledger and the HTTP query API in one process.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"solana-activity-engine/internal/aggregate"
	"solana-activity-engine/internal/api"
	"solana-activity-engine/internal/cache"
	"solana-activity-engine/internal/config"
	"solana-activity-engine/internal/feed"
	"solana-activity-engine/internal/fills"
	"solana-activity-engine/internal/ledger"
	"solana-activity-engine/internal/logging"
	"solana-activity-engine/internal/navigator"
	"solana-activity-engine/internal/portfolio"
)

func main() {
	configPath := flag.String("config", os.Getenv("ENGINE_CONFIG"), "Path to YAML config file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Fatal("engine stopped")
	}
	logger.Info("shutdown complete")
}

func run(cfg *config.Config, logger *logrus.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.WithField("signal", sig.String()).Info("received signal, initiating graceful shutdown")
		cancel()

		// A second signal skips the graceful path.
		sig = <-sigCh
		logger.WithField("signal", sig.String()).Warn("received second signal, forcing exit")
		os.Exit(1)
	}()

	labels, closeLabels, err := newLabelCache(ctx, cfg.Cache, logger)
	if err != nil {
		return err
	}
	defer closeLabels()

	store := aggregate.NewStore(aggregate.Options{
		RecentTradesCap:   cfg.Aggregate.RecentTradesCap,
		Window:            cfg.Aggregate.Window,
		GraduationTarget:  cfg.Aggregate.GraduationTarget,
		GraduatingAt:      cfg.Aggregate.GraduatingAt,
		NewlyMintedMaxAge: cfg.Aggregate.NewlyMintedMaxAge,
		ClassLimit:        cfg.Aggregate.ClassLimit,
		Logger:            logger,
	})

	sweeper, err := aggregate.NewSweeper(store, cfg.Aggregate.SweepSchedule, logger)
	if err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	adapter := feed.NewAdapter(store, feed.AdapterOptions{Logger: logger})
	client := feed.NewClient(feed.ClientConfig{
		URL:               cfg.Feed.URL,
		SubscribeMessages: cfg.Feed.SubscribeMessages,
		SnapshotRequest:   cfg.Feed.SnapshotRequest,
		ReconnectDelay:    cfg.Feed.ReconnectDelay,
		MaxReconnectDelay: cfg.Feed.MaxReconnectDelay,
		PingInterval:      cfg.Feed.PingInterval,
		ReadTimeout:       cfg.Feed.ReadTimeout,
		WriteTimeout:      cfg.Feed.WriteTimeout,
		HandshakeTimeout:  cfg.Feed.HandshakeTimeout,
	}, adapter, logger)

	sessions, err := navigator.NewManager(adapter, navigator.ManagerOptions{
		Session: navigator.Options{
			StackSize: cfg.Navigator.StackSize,
			Threshold: cfg.Navigator.Threshold,
			Batch:     cfg.Navigator.Batch,
			Labels:    labels,
			Logger:    logger,
		},
		IdleTTL:        cfg.Navigator.IdleTTL,
		ExpirySchedule: cfg.Navigator.ExpirySchedule,
		MaxSessions:    cfg.Navigator.MaxSessions,
	})
	if err != nil {
		return err
	}
	sessions.Start()
	defer sessions.Stop()

	positions := ledger.New(ledger.Options{
		Wallet:  cfg.Ledger.Wallet,
		Epsilon: decimal.NewFromFloat(cfg.Ledger.Epsilon),
		Logger:  logger,
	})

	gin.SetMode(cfg.Server.Mode)
	server := api.NewServer(cfg.Server.Addr, api.Deps{
		Feed:      adapter,
		Sessions:  sessions,
		Positions: positions,
		Portfolio: portfolio.NewAggregator(positions, store),
		Logger:    logger,
		Metrics:   cfg.Server.Metrics,
		RateLimit: api.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimit,
			Burst:             cfg.Server.RateBurst,
		},
	})

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, feed.ErrClientClosed) {
			errCh <- fmt.Errorf("feed client: %w", err)
		}
	}()

	labelSync := navigator.NewLabelSync(store, labels, logger)
	wg.Add(1)
	go func() {
		defer wg.Done()
		labelSync.Run(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		ledger.Watch(ctx, positions, ledger.DefaultEventBuffer, logger)
	}()

	var consumer *fills.Consumer
	if cfg.Fills.Enabled {
		consumer = fills.NewConsumer(fills.Config{
			URL:               cfg.Fills.URL,
			Queue:             cfg.Fills.Queue,
			ConsumerTag:       cfg.Fills.ConsumerTag,
			Prefetch:          cfg.Fills.Prefetch,
			ReconnectDelay:    cfg.Feed.ReconnectDelay,
			MaxReconnectDelay: cfg.Feed.MaxReconnectDelay,
		}, positions, logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, fills.ErrConsumerClosed) {
				errCh <- fmt.Errorf("fill consumer: %w", err)
			}
		}()
	}

	go func() {
		if err := server.ListenAndServe(); err != nil {
			errCh <- fmt.Errorf("http api: %w", err)
		}
	}()

	logger.WithFields(logrus.Fields{
		"feed":  cfg.Feed.URL,
		"addr":  cfg.Server.Addr,
		"fills": cfg.Fills.Enabled,
		"cache": cfg.Cache.Backend,
	}).Info("activity engine started")

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http api shutdown")
	}
	if err := client.Close(); err != nil {
		logger.WithError(err).Debug("feed client close")
	}
	if consumer != nil {
		if err := consumer.Close(); err != nil {
			logger.WithError(err).Debug("fill consumer close")
		}
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		logger.Warn("workers did not stop before shutdown timeout")
	}
	return runErr
}

// newLabelCache builds the token label cache for the configured backend.
func newLabelCache(ctx context.Context, cfg config.CacheConfig, logger logrus.FieldLogger) (cache.TokenInfoCache, func(), error) {
	switch cfg.Backend {
	case "redis":
		client := cache.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("connect to redis %s: %w", cfg.RedisAddr, err)
		}
		logger.WithField("addr", cfg.RedisAddr).Info("token label cache: redis")
		return cache.NewRedisCache(client, cfg.TTL, cfg.KeyPrefix), func() { _ = client.Close() }, nil
	default:
		return cache.NewMemoryCache(cache.MemoryOptions{Capacity: cfg.Capacity, TTL: cfg.TTL}), func() {}, nil
	}
}
