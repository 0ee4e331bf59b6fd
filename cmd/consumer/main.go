package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"portfolioprojector/internal/config"
	"portfolioprojector/internal/logging"
	"portfolioprojector/internal/migrations"
	"portfolioprojector/internal/repository"
	"portfolioprojector/internal/streamconsumer"

	"github.com/redis/go-redis/v9"

	_ "github.com/lib/pq"
)

func main() {
	logger := logging.New()

	cfg, err := config.LoadConfig("configs")
	if err != nil {
		logger.Error("Error loading config: %v", err)
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Error("Error connecting to database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Error("Error pinging database: %v", err)
		os.Exit(1)
	}
	logger.Info("Connected to database successfully")

	if err := migrations.Run(db); err != nil {
		logger.Error("Error running migrations: %v", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("Error pinging redis: %v", err)
		os.Exit(1)
	}
	logger.Info("Connected to redis successfully")

	runner := repository.NewSQLTxRunner(db)

	consumers := []*streamconsumer.Consumer{
		streamconsumer.New("transaction:created", cfg.Consumer, redisClient, logger, streamconsumer.NewCreatedHandler(runner, logger)),
		streamconsumer.New("transaction:updated", cfg.Consumer, redisClient, logger, streamconsumer.NewUpdatedHandler(runner, logger)),
		streamconsumer.New("transaction:deleted", cfg.Consumer, redisClient, logger, streamconsumer.NewDeletedHandler(runner, logger)),
	}

	for _, c := range consumers {
		if err := c.Start(ctx); err != nil {
			logger.Error("Error starting consumer for %s: %v", c.Stream, err)
			os.Exit(1)
		}
		logger.Info(fmt.Sprintf("started consumer for %s", c.Stream))
	}

	<-ctx.Done()
	logger.Info("shutdown signal received, stopping consumers")

	for _, c := range consumers {
		c.Stop()
	}
	logger.Info("all consumers stopped")
}
