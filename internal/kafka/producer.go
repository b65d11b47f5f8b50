package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"

	"alertcache/internal/config"
	"alertcache/internal/logger"
	"alertcache/internal/metrics"
	"alertcache/internal/models"
)

// Producer errors
var (
	ErrProducerClosed  = errors.New("producer is closed")
	ErrSerializeFailed = errors.New("failed to serialize message")
)

// messageWriter is the part of *kafka.Writer the producer uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer publishes match signals to Kafka with a writer pool, retry and
// batching.
type Producer struct {
	cfg     config.ProducerConfig
	topic   string
	writers []messageWriter
	pool    chan messageWriter
	closed  atomic.Bool

	newWriter func() messageWriter

	messagesSent   atomic.Uint64
	messagesFailed atomic.Uint64
	bytesWritten   atomic.Uint64
}

// ProducerOption is a functional option for configuring the producer
type ProducerOption func(*Producer)

// withWriterFactory replaces the kafka-go writers, for tests.
func withWriterFactory(fn func() messageWriter) ProducerOption {
	return func(p *Producer) { p.newWriter = fn }
}

// NewProducer creates a producer writing to topic.
func NewProducer(brokers []string, topic string, cfg config.ProducerConfig, opts ...ProducerOption) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}

	p := &Producer{
		cfg:     cfg,
		topic:   topic,
		writers: make([]messageWriter, cfg.PoolSize),
		pool:    make(chan messageWriter, cfg.PoolSize),
	}
	p.newWriter = func() messageWriter {
		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // keeps one condition's signals on one partition
			BatchSize:    cfg.BatchSize,
			BatchTimeout: cfg.BatchTimeout,
			WriteTimeout: cfg.WriteTimeout,
			RequiredAcks: kafka.RequiredAcks(cfg.RequiredAcks),
			Compression:  getCompression(cfg.Compression),
			MaxAttempts:  1, // retries are ours
		}
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < cfg.PoolSize; i++ {
		w := p.newWriter()
		p.writers[i] = w
		p.pool <- w
	}

	log := logger.WithComponent("kafka_producer")
	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Int("pool_size", cfg.PoolSize).
		Str("compression", cfg.Compression).
		Msg("kafka producer created")

	return p, nil
}

func getCompression(name string) compress.Compression {
	switch name {
	case "gzip":
		return compress.Gzip
	case "snappy":
		return compress.Snappy
	case "lz4":
		return compress.Lz4
	case "zstd":
		return compress.Zstd
	default:
		return compress.None
	}
}

// message encodes sig with its routing headers.
func message(sig *models.MatchSignal) (kafka.Message, error) {
	data, err := json.Marshal(sig)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("%w: %v", ErrSerializeFailed, err)
	}
	return kafka.Message{
		Key:   []byte(sig.PartitionKey),
		Value: data,
		Headers: []kafka.Header{
			{Key: "signal_id", Value: []byte(sig.ID)},
			{Key: "condition_id", Value: []byte(strconv.Itoa(sig.ConditionID))},
			{Key: "kind", Value: []byte(sig.Kind)},
			{Key: "deferred", Value: []byte(strconv.FormatBool(sig.Deferred))},
		},
		Time: sig.MatchedAt,
	}, nil
}

// Publish sends one match signal.
func (p *Producer) Publish(ctx context.Context, sig *models.MatchSignal) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}

	msg, err := message(sig)
	if err != nil {
		p.messagesFailed.Add(1)
		metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
		return err
	}
	return p.write(ctx, []kafka.Message{msg})
}

// PublishBatch sends signals in one write. Signals that fail to serialize
// are logged and skipped.
func (p *Producer) PublishBatch(ctx context.Context, signals []*models.MatchSignal) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	if len(signals) == 0 {
		return nil
	}

	log := logger.WithComponent("kafka_producer")
	messages := make([]kafka.Message, 0, len(signals))
	for _, sig := range signals {
		msg, err := message(sig)
		if err != nil {
			log.Error().
				Err(err).
				Str("signal_id", sig.ID).
				Int("condition_id", sig.ConditionID).
				Msg("failed to serialize match signal")
			p.messagesFailed.Add(1)
			metrics.KafkaPublishTotal.WithLabelValues("failed").Inc()
			continue
		}
		messages = append(messages, msg)
	}
	if len(messages) == 0 {
		return nil
	}
	return p.write(ctx, messages)
}

func (p *Producer) write(ctx context.Context, messages []kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	start := time.Now()

	var writer messageWriter
	select {
	case writer = <-p.pool:
		defer func() { p.pool <- writer }()
	case <-ctx.Done():
		p.messagesFailed.Add(uint64(len(messages)))
		metrics.KafkaPublishTotal.WithLabelValues("failed").Add(float64(len(messages)))
		return ctx.Err()
	}

	err := p.writeWithRetry(ctx, writer, messages)
	duration := time.Since(start)
	metrics.KafkaPublishDuration.Observe(duration.Seconds())

	if err != nil {
		log.Error().
			Err(err).
			Int("batch_size", len(messages)).
			Dur("duration", duration).
			Msg("failed to publish to kafka")
		p.messagesFailed.Add(uint64(len(messages)))
		metrics.KafkaPublishTotal.WithLabelValues("failed").Add(float64(len(messages)))
		return err
	}

	log.Debug().
		Int("batch_size", len(messages)).
		Dur("duration", duration).
		Msg("published to kafka")

	var bytes uint64
	for _, msg := range messages {
		bytes += uint64(len(msg.Value))
	}
	p.messagesSent.Add(uint64(len(messages)))
	p.bytesWritten.Add(bytes)
	metrics.KafkaPublishTotal.WithLabelValues("success").Add(float64(len(messages)))
	metrics.KafkaBytesWritten.Add(float64(bytes))
	return nil
}

// writeWithRetry writes messages with exponential backoff between attempts.
func (p *Producer) writeWithRetry(ctx context.Context, writer messageWriter, messages []kafka.Message) error {
	log := logger.WithComponent("kafka_producer")
	var lastErr error
	backoff := p.cfg.RetryBackoff

	for attempt := 0; attempt <= p.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			log.Warn().
				Int("attempt", attempt).
				Int("batch_size", len(messages)).
				Dur("backoff", backoff).
				Msg("retrying kafka publish")
			metrics.KafkaPublishRetries.Inc()

			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := writer.WriteMessages(ctx, messages...)
		if err == nil {
			return nil
		}
		lastErr = err
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Msg("kafka publish attempt failed")

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", p.cfg.MaxRetries+1, lastErr)
}

// Close closes all writers in the pool
func (p *Producer) Close() error {
	if p.closed.Swap(true) {
		return nil
	}

	var errs []error
	for _, w := range p.writers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ProducerStats holds producer metrics
type ProducerStats struct {
	MessagesSent   uint64 `json:"messages_sent"`
	MessagesFailed uint64 `json:"messages_failed"`
	BytesWritten   uint64 `json:"bytes_written"`
}

func (p *Producer) Stats() ProducerStats {
	return ProducerStats{
		MessagesSent:   p.messagesSent.Load(),
		MessagesFailed: p.messagesFailed.Load(),
		BytesWritten:   p.bytesWritten.Load(),
	}
}

// HealthCheck reports whether a writer can be taken from the pool.
func (p *Producer) HealthCheck(ctx context.Context) error {
	if p.closed.Load() {
		return ErrProducerClosed
	}
	select {
	case w := <-p.pool:
		p.pool <- w
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
