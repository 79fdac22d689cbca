package config

import (
	"errors"
	"os"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
)

// Config holds service settings, populated from environment variables.
type Config struct {
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Optional Kafka publish sink.
	KafkaEnabled       bool
	KafkaBrokers       []string
	KafkaSinkTopic     string
	BatchSize          int
	BatchFlushInterval time.Duration

	// Optional SQLite archive; empty disables it.
	SQLitePath string

	// Optional Prometheus Pushgateway; empty disables the push.
	PushgatewayURL string
	PushJob        string
}

// Load reads configuration from environment variables, applying defaults where unset.
func Load() (*Config, error) {
	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	batchSize, err := sharedcfg.ParseBatchSize()
	if err != nil {
		return nil, err
	}

	flushInterval, err := sharedcfg.ParseBatchFlushInterval()
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel:           sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:          sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout:    shutdownTimeout,
		KafkaEnabled:       os.Getenv("KAFKA_ENABLED") == "true",
		KafkaBrokers:       sharedcfg.ParseBrokers(sharedcfg.EnvOrDefault("KAFKA_BROKERS", "localhost:9092")),
		KafkaSinkTopic:     sharedcfg.EnvOrDefault("KAFKA_SINK_TOPIC", "ccn-processed"),
		BatchSize:          batchSize,
		BatchFlushInterval: flushInterval,
		SQLitePath:         os.Getenv("SQLITE_PATH"),
		PushgatewayURL:     os.Getenv("PUSHGATEWAY_URL"),
		PushJob:            sharedcfg.EnvOrDefault("PUSHGATEWAY_JOB", "ccn_etl"),
	}

	if cfg.KafkaEnabled {
		if len(cfg.KafkaBrokers) == 0 {
			return nil, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true")
		}
		if cfg.KafkaSinkTopic == "" {
			return nil, errors.New("KAFKA_SINK_TOPIC is required when KAFKA_ENABLED is true")
		}
	}
	if cfg.PushgatewayURL != "" && cfg.PushJob == "" {
		return nil, errors.New("PUSHGATEWAY_JOB is required when PUSHGATEWAY_URL is set")
	}

	return cfg, nil
}
