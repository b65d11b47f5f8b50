package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds runtime configuration for the alert cache service.
type Config struct {
	LogLevel string `mapstructure:"log_level"`
	HTTPAddr string `mapstructure:"http_addr"`

	Kafka KafkaConfig `mapstructure:"kafka"`
	Cache CacheConfig `mapstructure:"cache"`
}

// KafkaConfig configures data point consumption and match signal publishing.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	// Topic match signals are published to
	Topic string `mapstructure:"topic"`
	// DataTopic data points are consumed from; empty disables the consumer
	DataTopic string `mapstructure:"data_topic"`
	GroupID   string `mapstructure:"group_id"`

	Producer ProducerConfig `mapstructure:"producer"`
}

// ProducerConfig tunes the match signal producer and its worker pool.
type ProducerConfig struct {
	PoolSize     int           `mapstructure:"pool_size"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	// Compression: none, gzip, snappy, lz4, zstd
	Compression string `mapstructure:"compression"`
}

// CacheConfig configures the condition cache.
type CacheConfig struct {
	// LoadPolicy decides what a cache load does with an invalid condition:
	// "skip" drops it and continues, "abort" rejects the whole load
	LoadPolicy string `mapstructure:"load_policy"`
	// SignalBuffer is the capacity of the match signal queue
	SignalBuffer int `mapstructure:"signal_buffer"`
}

// Default returns a sensible default config for local dev.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		HTTPAddr: ":8080",
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topic:   "alert-matches",
			GroupID: "alertcache",
			Producer: ProducerConfig{
				PoolSize:     4,
				BatchSize:    100,
				BatchTimeout: 100 * time.Millisecond,
				WriteTimeout: 10 * time.Second,
				RequiredAcks: -1,
				MaxRetries:   3,
				RetryBackoff: 100 * time.Millisecond,
				Compression:  "snappy",
			},
		},
		Cache: CacheConfig{
			LoadPolicy:   "skip",
			SignalBuffer: 1000,
		},
	}
}

// Load reads configuration from v on top of Default.
func Load(v *viper.Viper) (*Config, error) {
	def := Default()
	v.SetDefault("log_level", def.LogLevel)
	v.SetDefault("http_addr", def.HTTPAddr)
	v.SetDefault("kafka.brokers", def.Kafka.Brokers)
	v.SetDefault("kafka.topic", def.Kafka.Topic)
	v.SetDefault("kafka.data_topic", def.Kafka.DataTopic)
	v.SetDefault("kafka.group_id", def.Kafka.GroupID)
	v.SetDefault("kafka.producer.pool_size", def.Kafka.Producer.PoolSize)
	v.SetDefault("kafka.producer.batch_size", def.Kafka.Producer.BatchSize)
	v.SetDefault("kafka.producer.batch_timeout", def.Kafka.Producer.BatchTimeout)
	v.SetDefault("kafka.producer.write_timeout", def.Kafka.Producer.WriteTimeout)
	v.SetDefault("kafka.producer.required_acks", def.Kafka.Producer.RequiredAcks)
	v.SetDefault("kafka.producer.max_retries", def.Kafka.Producer.MaxRetries)
	v.SetDefault("kafka.producer.retry_backoff", def.Kafka.Producer.RetryBackoff)
	v.SetDefault("kafka.producer.compression", def.Kafka.Producer.Compression)
	v.SetDefault("cache.load_policy", def.Cache.LoadPolicy)
	v.SetDefault("cache.signal_buffer", def.Cache.SignalBuffer)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validation errors
var (
	ErrNoBrokers         = errors.New("at least one kafka broker is required")
	ErrNoTopic           = errors.New("kafka topic is required")
	ErrInvalidLoadPolicy = errors.New("cache load policy must be skip or abort")
	ErrInvalidBuffer     = errors.New("signal buffer must be positive")
)

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if len(c.Kafka.Brokers) == 0 {
		return ErrNoBrokers
	}
	if strings.TrimSpace(c.Kafka.Topic) == "" {
		return ErrNoTopic
	}
	switch c.Cache.LoadPolicy {
	case "skip", "abort":
	default:
		return fmt.Errorf("%w: %q", ErrInvalidLoadPolicy, c.Cache.LoadPolicy)
	}
	if c.Cache.SignalBuffer <= 0 {
		return ErrInvalidBuffer
	}
	return nil
}
