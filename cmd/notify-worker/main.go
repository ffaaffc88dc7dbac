package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/hackgods/consultation-scheduling/internal/config"
	"github.com/hackgods/consultation-scheduling/internal/logging"
	"github.com/hackgods/consultation-scheduling/internal/notify"
	redisclient "github.com/hackgods/consultation-scheduling/internal/redis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.IsProduction())
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	if cfg.NotifyDriver != config.NotifyDriverRedis {
		logger.Fatal("notify-worker reads the redis stream; set NOTIFY_DRIVER=redis",
			zap.String("notify_driver", cfg.NotifyDriver))
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := redisclient.NewStreamReader(rootCtx, cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword, cfg.WorkerInterval, logger)
	if err != nil {
		logger.Fatal("redis connection error", zap.Error(err))
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", zap.Error(err))
		}
	}()

	consumerName, _ := os.Hostname()
	if consumerName == "" {
		consumerName = "notify-worker"
	}

	logger.Info("notify-worker starting",
		zap.String("env", cfg.Env),
		zap.String("stream", cfg.NotifyStream),
		zap.String("group", cfg.NotifyGroup),
		zap.String("consumer", consumerName),
		zap.Duration("block", cfg.WorkerInterval),
		zap.Duration("replay", cfg.NotifyReplay),
	)

	consumer := notify.NewStreamConsumer(rdb, cfg.NotifyStream, cfg.NotifyGroup, consumerName,
		cfg.WorkerInterval, cfg.NotifyReplay, notify.NewLogDispatcher(logger), logger)

	if err := consumer.Run(rootCtx); err != nil {
		logger.Fatal("consumer stopped", zap.Error(err))
	}
	logger.Info("shutdown signal received, notify-worker stopped")
}
