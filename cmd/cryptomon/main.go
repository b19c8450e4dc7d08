package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/anujsainicse/funding-profit-inr/internal/application/port"
	"github.com/anujsainicse/funding-profit-inr/internal/application/service"
	"github.com/anujsainicse/funding-profit-inr/internal/infrastructure/config"
	"github.com/anujsainicse/funding-profit-inr/internal/infrastructure/exchange/bybit"
	"github.com/anujsainicse/funding-profit-inr/internal/infrastructure/exchange/coindcx"
	"github.com/anujsainicse/funding-profit-inr/internal/infrastructure/logger"
	memorystore "github.com/anujsainicse/funding-profit-inr/internal/infrastructure/storage/memory"
	redisstore "github.com/anujsainicse/funding-profit-inr/internal/infrastructure/storage/redis"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "configs/config.toml", "path to config.toml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}
	logger.SetLevel(cfg.App.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, closeStore := buildStore(cfg)
	defer closeStore()

	ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
	var workers []port.Worker

	if cfg.BybitSpot.Enabled {
		workers = append(workers, service.NewStreamWorker(service.StreamWorkerConfig{
			ID:                 "bybit_spot",
			WsURL:              cfg.BybitSpot.WsURL,
			Symbols:            cfg.BybitSpot.Symbols,
			KeyPrefix:          cfg.BybitSpot.KeyPrefix,
			TTL:                ttl,
			ReconnectDelay:     time.Duration(cfg.BybitSpot.ReconnectDelaySec) * time.Second,
			WatchdogPeriod:     time.Duration(cfg.BybitSpot.WatchdogPeriodSec) * time.Second,
			DataTimeout:        time.Duration(cfg.BybitSpot.DataTimeoutSec) * time.Second,
			StalenessThreshold: time.Duration(cfg.BybitSpot.StalenessThresholdSec) * time.Second,
		}, bybit.NewFeed(), store))
	} else {
		log.Warn().Msg("bybit_spot disabled by config")
	}

	if cfg.CoindcxLtp.Enabled {
		workers = append(workers, service.NewStreamWorker(service.StreamWorkerConfig{
			ID:                 "coindcx_ltp",
			WsURL:              cfg.CoindcxLtp.WsURL,
			Symbols:            cfg.CoindcxLtp.Symbols,
			KeyPrefix:          cfg.CoindcxLtp.KeyPrefix,
			TTL:                ttl,
			ReconnectDelay:     time.Duration(cfg.CoindcxLtp.ReconnectDelaySec) * time.Second,
			WatchdogPeriod:     time.Duration(cfg.CoindcxLtp.WatchdogPeriodSec) * time.Second,
			DataTimeout:        time.Duration(cfg.CoindcxLtp.DataTimeoutSec) * time.Second,
			StalenessThreshold: time.Duration(cfg.CoindcxLtp.StalenessThresholdSec) * time.Second,
		}, coindcx.NewTradeFeed(), store))
	} else {
		log.Warn().Msg("coindcx_ltp disabled by config")
	}

	if cfg.CoindcxFunding.Enabled {
		client := coindcx.NewFundingClient(
			cfg.CoindcxFunding.URL,
			time.Duration(cfg.CoindcxFunding.APITimeoutSec)*time.Second,
		)
		workers = append(workers, service.NewPollWorker(service.PollWorkerConfig{
			ID:                 "coindcx_funding",
			Symbols:            cfg.CoindcxFunding.Symbols,
			KeyPrefix:          cfg.CoindcxFunding.KeyPrefix,
			TTL:                ttl,
			FetchInterval:      time.Duration(cfg.CoindcxFunding.FetchIntervalSec) * time.Second,
			RetryAttempts:      cfg.CoindcxFunding.RetryAttempts,
			StalenessThreshold: time.Duration(cfg.CoindcxFunding.StalenessThresholdSec) * time.Second,
		}, client, store))
	} else {
		log.Warn().Msg("coindcx_funding disabled by config")
	}

	if len(workers) == 0 {
		log.Fatal().Msg("no workers enabled")
	}

	sup := service.NewSupervisor(service.SupervisorConfig{
		HealthCheckInterval: time.Duration(cfg.Monitoring.HealthCheckIntervalSec) * time.Second,
		StatusLogInterval:   time.Duration(cfg.Monitoring.StatusLogIntervalSec) * time.Second,
		AutoRestart:         cfg.Monitoring.AutoRestart,
		RestartDelay:        time.Duration(cfg.Monitoring.RestartDelaySec) * time.Second,
		MaxRestartAttempts:  cfg.Monitoring.MaxRestartAttempts,
		UnhealthyGrace:      time.Duration(cfg.Monitoring.UnhealthyGraceSec) * time.Second,
		StartStagger:        time.Duration(cfg.Monitoring.StartStaggerMs) * time.Millisecond,
		ShutdownTimeout:     time.Duration(cfg.Monitoring.ShutdownTimeoutSec) * time.Second,
	}, service.NewHealthMonitor(), workers)

	log.Info().
		Str("config", *configPath).
		Int("workers", len(workers)).
		Msg("crypto monitor started")

	if err := sup.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("supervisor exited")
	}
}

// buildStore returns the Redis field store, or the in-memory fallback when
// Redis is disabled.
func buildStore(cfg *config.Config) (port.FieldStore, func()) {
	if !cfg.Redis.Enabled {
		log.Warn().Msg("redis disabled, using in-memory store")
		return memorystore.New(), func() {}
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis ping failed")
	}
	log.Info().Str("addr", cfg.Redis.Addr).Int("db", cfg.Redis.DB).Msg("redis initialized")

	return redisstore.New(rdb), func() {
		log.Info().Msg("closing redis connection")
		_ = rdb.Close()
	}
}
