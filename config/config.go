package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Provider  ProviderConfig  `yaml:"provider"`
	FareWatch FareWatchConfig `yaml:"farewatch"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	FareAlertsTopicName string `yaml:"fare_alerts_topic_name"`
}

type RedisConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ProviderConfig selects and tunes the flight quote source.
// mode: "serpapi" | "fake" (default fake when no api_key).
type ProviderConfig struct {
	Mode           string  `yaml:"mode"`
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	Currency       string  `yaml:"currency"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	Retries        int     `yaml:"retries"`
	RatePerSecond  float64 `yaml:"rate_per_second"`
}

type FareWatchConfig struct {
	HTTPAddr                 string `yaml:"http_addr"`
	KafkaConsumerGroup       string `yaml:"kafka_consumer_group"`
	CurrentTrackerTTLSeconds int    `yaml:"current_tracker_ttl_seconds"`

	WorkerPollIntervalSeconds int `yaml:"worker_poll_interval_seconds"`
	WorkerBatchSize           int `yaml:"worker_batch_size"`
	WorkerConcurrency         int `yaml:"worker_concurrency"`
	WorkerLeaseSeconds        int `yaml:"worker_lease_seconds"`
	WorkerRateLimitPerMinute  int `yaml:"worker_rate_limit_per_minute"`

	WorkerHTTPAddr string `yaml:"worker_http_addr"`

	// Check scheduling (optional). Defaults are "prod-like": a tracker is
	// re-checked every 6 hours, exhausted ranges every 7 days, failures back
	// off over 15m/1h/3h/6h, repeat alerts for an unchanged fare wait 24h.
	CheckIntervalSeconds  int `yaml:"check_interval_seconds"`
	CheckJitterSeconds    int `yaml:"check_jitter_seconds"`
	StaleRecheckSeconds   int `yaml:"stale_recheck_seconds"`
	NotifyCooldownSeconds int `yaml:"notify_cooldown_seconds"`
	SampleBudget          int `yaml:"sample_budget"`
	WorkerBackoff1Seconds int `yaml:"worker_backoff_1_seconds"`
	WorkerBackoff2Seconds int `yaml:"worker_backoff_2_seconds"`
	WorkerBackoff3Seconds int `yaml:"worker_backoff_3_seconds"`
	WorkerBackoff4Seconds int `yaml:"worker_backoff_4_seconds"`

	AlertRetentionDays int `yaml:"alert_retention_days"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}
