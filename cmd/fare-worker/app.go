package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/BearBump/FareWatch/config"
	"github.com/BearBump/FareWatch/internal/broker/kafka"
	"github.com/BearBump/FareWatch/internal/cache/rediscache"
	"github.com/BearBump/FareWatch/internal/integrations/flights"
	"github.com/BearBump/FareWatch/internal/integrations/flights/fake"
	"github.com/BearBump/FareWatch/internal/integrations/flights/serpflights"
	"github.com/BearBump/FareWatch/internal/services/poller"
	"github.com/BearBump/FareWatch/internal/storage/pgtracker"
)

// workerRepository is what the worker needs from storage: the poller's claim
// and settle operations plus alert-log retention.
type workerRepository interface {
	poller.Repository
	PruneFareAlerts(ctx context.Context, olderThan time.Time) (int64, error)
}

type workerFactories struct {
	newStorage       func(cfg *config.Config) (repo workerRepository, closeFn func(), err error)
	newProducer      func(cfg *config.Config) poller.Producer
	newRateLimiter   func(cfg *config.Config) poller.RateLimiter
	newFlightsClient func(cfg *config.Config) flights.Client
}

func defaultWorkerFactories() workerFactories {
	return workerFactories{
		newStorage: func(cfg *config.Config) (workerRepository, func(), error) {
			sslMode := cfg.Database.SSLMode
			if sslMode == "" {
				sslMode = "disable"
			}
			connString := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
				cfg.Database.Username, cfg.Database.Password, cfg.Database.Host, cfg.Database.Port, cfg.Database.DBName, sslMode)
			st, err := pgtracker.New(connString)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newProducer: func(cfg *config.Config) poller.Producer {
			brokers := []string{fmt.Sprintf("%s:%d", cfg.Kafka.Host, cfg.Kafka.Port)}
			return kafka.NewProducer(brokers)
		},
		newRateLimiter: func(cfg *config.Config) poller.RateLimiter {
			redisAddr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
			return rediscache.NewRateLimiter(redisAddr, cfg.Redis.Password, cfg.Redis.DB)
		},
		newFlightsClient: func(cfg *config.Config) flights.Client {
			// Without an API key the worker falls back to the local fake, which
			// keeps a compose stack functional with zero external accounts.
			if cfg.Provider.Mode == "serpapi" && cfg.Provider.APIKey != "" {
				return serpflights.New(
					cfg.Provider.BaseURL,
					cfg.Provider.APIKey,
					cfg.Provider.Currency,
					time.Duration(cfg.Provider.TimeoutSeconds)*time.Second,
					cfg.Provider.Retries,
					cfg.Provider.RatePerSecond,
				)
			}
			return fake.New()
		},
	}
}

func RunFareWorker(ctx context.Context, cfg *config.Config, f workerFactories) error {
	topic := cfg.Kafka.FareAlertsTopicName
	if topic == "" {
		topic = "fare.alerts"
	}

	pollInterval := time.Duration(cfg.FareWatch.WorkerPollIntervalSeconds) * time.Second
	if pollInterval <= 0 {
		pollInterval = 30 * time.Second
	}
	batchSize := cfg.FareWatch.WorkerBatchSize
	if batchSize <= 0 {
		batchSize = 100
	}
	concurrency := cfg.FareWatch.WorkerConcurrency
	if concurrency <= 0 {
		concurrency = 4
	}
	lease := time.Duration(cfg.FareWatch.WorkerLeaseSeconds) * time.Second
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	rlPerMin := int64(cfg.FareWatch.WorkerRateLimitPerMinute)
	if rlPerMin <= 0 {
		rlPerMin = 60
	}

	repo, closeFn, err := f.newStorage(cfg)
	if err != nil {
		return err
	}
	if closeFn != nil {
		defer closeFn()
	}

	producer := f.newProducer(cfg)
	if c, ok := producer.(io.Closer); ok {
		defer c.Close()
	}
	rl := f.newRateLimiter(cfg)
	flightsClient := f.newFlightsClient(cfg)

	p := poller.New(repo, flightsClient, producer, rl, topic).
		WithSettings(pollInterval, batchSize, concurrency, lease, rlPerMin).
		WithPlanner(poller.PlannerConfig{
			CheckInterval: time.Duration(cfg.FareWatch.CheckIntervalSeconds) * time.Second,
			CheckJitter:   time.Duration(cfg.FareWatch.CheckJitterSeconds) * time.Second,
			StaleDelay:    time.Duration(cfg.FareWatch.StaleRecheckSeconds) * time.Second,
			Backoff1:      time.Duration(cfg.FareWatch.WorkerBackoff1Seconds) * time.Second,
			Backoff2:      time.Duration(cfg.FareWatch.WorkerBackoff2Seconds) * time.Second,
			Backoff3:      time.Duration(cfg.FareWatch.WorkerBackoff3Seconds) * time.Second,
			Backoff4:      time.Duration(cfg.FareWatch.WorkerBackoff4Seconds) * time.Second,
		}).
		WithCheckPolicy(cfg.FareWatch.SampleBudget,
			time.Duration(cfg.FareWatch.NotifyCooldownSeconds)*time.Second)

	startAlertPrune(ctx, repo, cfg.FareWatch.AlertRetentionDays)

	httpAddr := cfg.FareWatch.WorkerHTTPAddr
	if httpAddr != "" {
		go func() {
			err := runWorkerHTTPServer(ctx, workerHTTPOpts{
				httpAddr:    httpAddr,
				swaggerPath: os.Getenv("workerSwaggerPath"),
				poller:      p,
				cfg:         cfg,
			})
			if err != nil {
				slog.Error("worker http server", "error", err.Error())
			}
		}()
	}

	return p.Run(ctx)
}

// startAlertPrune drops alert-log rows past the retention window once a day.
func startAlertPrune(ctx context.Context, repo workerRepository, retentionDays int) {
	if retentionDays <= 0 {
		retentionDays = 90
	}

	c := cron.New()
	_, _ = c.AddFunc("@daily", func() {
		olderThan := time.Now().UTC().AddDate(0, 0, -retentionDays)
		n, err := repo.PruneFareAlerts(ctx, olderThan)
		if err != nil {
			slog.Error("prune fare alerts", "error", err.Error())
			return
		}
		slog.Info("pruned fare alerts", "removed", n, "older_than", olderThan.Format("2006-01-02"))
	})
	c.Start()

	go func() {
		<-ctx.Done()
		c.Stop()
	}()
}
