package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"

	"alertcache/internal/logger"
	"alertcache/internal/metrics"
	"alertcache/internal/models"
)

// Dispatcher receives every valid data point read from the topic.
type Dispatcher interface {
	Dispatch(ctx context.Context, dp *models.DataPoint) (int, error)
}

// messageReader is the part of *kafka.Reader the consumer uses.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer reads data points from a topic and dispatches them to the cache.
// Offsets are committed after dispatch, including for messages that could not
// be decoded, so a poison message is skipped rather than redelivered forever.
type Consumer struct {
	reader     messageReader
	dispatcher Dispatcher

	wg      sync.WaitGroup
	cancel  context.CancelFunc
	mu      sync.Mutex
	stopped atomic.Bool

	// fetch errors back off from minBackoff, doubling up to maxBackoff
	minBackoff time.Duration
	maxBackoff time.Duration

	consumed       atomic.Uint64
	invalid        atomic.Uint64
	dispatchErrors atomic.Uint64
	fetchErrors    atomic.Uint64
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	Brokers    []string
	Topic      string
	GroupID    string
	Dispatcher Dispatcher
}

// NewConsumer creates a consumer group member reading cfg.Topic.
func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("topic is required")
	}
	if cfg.Dispatcher == nil {
		return nil, errors.New("dispatcher is required")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(reader, cfg.Dispatcher), nil
}

func newConsumer(reader messageReader, dispatcher Dispatcher) *Consumer {
	return &Consumer{
		reader:     reader,
		dispatcher: dispatcher,
		minBackoff: 100 * time.Millisecond,
		maxBackoff: 5 * time.Second,
	}
}

// Start runs the read loop in the background until Stop or ctx is done.
func (c *Consumer) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.run(ctx)
}

func (c *Consumer) run(ctx context.Context) {
	defer c.wg.Done()

	log := logger.WithComponent("kafka_consumer")
	log.Info().Msg("kafka consumer started")
	defer log.Info().Msg("kafka consumer stopped")

	backoff := c.minBackoff
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.fetchErrors.Add(1)
			metrics.KafkaConsumedTotal.WithLabelValues("failed").Inc()
			log.Error().Err(err).Dur("backoff", backoff).Msg("failed to fetch message")

			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, c.maxBackoff)
			continue
		}
		backoff = c.minBackoff

		c.handle(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to commit offset")
		}
	}
}

// handle decodes and dispatches one message. A panic is contained to the
// message; the read loop commits it and moves on.
func (c *Consumer) handle(ctx context.Context, msg kafka.Message) {
	log := logger.WithComponent("kafka_consumer")
	c.consumed.Add(1)

	defer func() {
		if r := recover(); r != nil {
			c.dispatchErrors.Add(1)
			metrics.KafkaConsumedTotal.WithLabelValues("failed").Inc()
			metrics.PanicsRecovered.WithLabelValues("kafka_consumer").Inc()
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("panic handling message")
		}
	}()

	dp, err := decode(msg.Value)
	if err != nil {
		c.invalid.Add(1)
		metrics.KafkaConsumedTotal.WithLabelValues("invalid").Inc()
		metrics.IngestDataPointsTotal.WithLabelValues("kafka", "rejected").Inc()
		log.Warn().
			Err(err).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Msg("dropping invalid data point")
		return
	}
	metrics.IngestDataPointsTotal.WithLabelValues("kafka", "accepted").Inc()

	if _, err := c.dispatcher.Dispatch(ctx, dp); err != nil {
		c.dispatchErrors.Add(1)
		metrics.KafkaConsumedTotal.WithLabelValues("failed").Inc()
		log.Error().Err(err).Str("data_point_id", dp.ID).Msg("dispatch failed")
		return
	}
	metrics.KafkaConsumedTotal.WithLabelValues("dispatched").Inc()
}

func decode(data []byte) (*models.DataPoint, error) {
	var dp models.DataPoint
	if err := json.Unmarshal(data, &dp); err != nil {
		return nil, fmt.Errorf("decode data point: %w", err)
	}
	dp.Normalize()
	if err := dp.Validate(); err != nil {
		return nil, err
	}
	return &dp, nil
}

// Stop ends the read loop and closes the reader.
func (c *Consumer) Stop() error {
	if c.stopped.Swap(true) {
		return nil
	}
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Unlock()
	c.wg.Wait()
	return c.reader.Close()
}

// ConsumerStats holds consumer metrics
type ConsumerStats struct {
	Consumed       uint64 `json:"consumed"`
	Invalid        uint64 `json:"invalid"`
	DispatchErrors uint64 `json:"dispatch_errors"`
	FetchErrors    uint64 `json:"fetch_errors"`
}

func (c *Consumer) Stats() ConsumerStats {
	return ConsumerStats{
		Consumed:       c.consumed.Load(),
		Invalid:        c.invalid.Load(),
		DispatchErrors: c.dispatchErrors.Load(),
		FetchErrors:    c.fetchErrors.Load(),
	}
}
