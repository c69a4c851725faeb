package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/BearBump/FareWatch/config"
	"github.com/BearBump/FareWatch/internal/broker/kafka"
	"github.com/BearBump/FareWatch/internal/cache/rediscache"
	"github.com/BearBump/FareWatch/internal/services/trackers"
	"github.com/BearBump/FareWatch/internal/storage/pgtracker"
)

type fareAPIApp struct {
	ctx      context.Context
	cancel   context.CancelFunc
	opts     fareAPIOpts
	svc      *trackers.Service
	consumer *kafka.Consumer
	closeDB  func()
}

func mustBootstrapFareAPI() *fareAPIApp {
	cfgPath := os.Getenv("configPath")
	if cfgPath == "" {
		panic("configPath env var is required")
	}
	swaggerPath := os.Getenv("swaggerPath")
	if swaggerPath == "" {
		panic("swaggerPath env var is required")
	}

	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	httpAddr := cfg.FareWatch.HTTPAddr
	if httpAddr == "" {
		httpAddr = ":8080"
	}
	consumerGroup := cfg.FareWatch.KafkaConsumerGroup
	if consumerGroup == "" {
		consumerGroup = "fare-api"
	}
	topic := cfg.Kafka.FareAlertsTopicName
	if topic == "" {
		topic = "fare.alerts"
	}

	cacheTTL := time.Duration(cfg.FareWatch.CurrentTrackerTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 10 * time.Minute
	}

	sslMode := cfg.Database.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
	st := mustOpenPostgresWithRetry(connString, 60*time.Second)

	redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	rc := rediscache.New(redisAddr, cfg.Redis.Password, cfg.Redis.DB)

	svc := trackers.New(st, rc, cacheTTL)

	brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
	consumer := kafka.NewConsumer(brokers, topic, consumerGroup)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	return &fareAPIApp{
		ctx:    ctx,
		cancel: cancel,
		opts: fareAPIOpts{
			httpAddr:      httpAddr,
			swaggerPath:   swaggerPath,
			topic:         topic,
			consumerGroup: consumerGroup,
		},
		svc:      svc,
		consumer: consumer,
		closeDB:  st.Close,
	}
}

func mustOpenPostgresWithRetry(connString string, wait time.Duration) *pgtracker.Storage {
	deadline := time.Now().Add(wait)
	var lastErr error
	for time.Now().Before(deadline) {
		st, err := pgtracker.New(connString)
		if err == nil {
			return st
		}
		lastErr = err
		time.Sleep(1 * time.Second)
	}
	panic(fmt.Sprintf("postgres is not ready after %s: %v", wait, lastErr))
}

func (a *fareAPIApp) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.consumer != nil {
		_ = a.consumer.Close()
	}
	if a.closeDB != nil {
		a.closeDB()
	}
}

func (a *fareAPIApp) Run() error {
	return runFareAPI(a.ctx, a.opts, a.svc, a.consumer)
}
