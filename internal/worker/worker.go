package worker

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"alertcache/internal/logger"
	"alertcache/internal/metrics"
	"alertcache/internal/models"
)

// Publisher hands match signals to the alert-firing pipeline
type Publisher interface {
	Publish(ctx context.Context, sig *models.MatchSignal) error
	PublishBatch(ctx context.Context, signals []*models.MatchSignal) error
}

// Pool drains the match signal queue in batches and publishes them
type Pool struct {
	publisher    Publisher
	signals      <-chan *models.MatchSignal
	workers      int
	batchSize    int
	batchTimeout time.Duration

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	processed atomic.Uint64
	failed    atomic.Uint64
}

// Config holds worker pool configuration
type Config struct {
	Publisher    Publisher
	Signals      <-chan *models.MatchSignal
	Workers      int
	BatchSize    int
	BatchTimeout time.Duration
}

// NewPool creates a new worker pool
func NewPool(cfg Config) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = 100 * time.Millisecond
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		publisher:    cfg.Publisher,
		signals:      cfg.Signals,
		workers:      cfg.Workers,
		batchSize:    cfg.BatchSize,
		batchTimeout: cfg.BatchTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start launches the workers
func (p *Pool) Start() {
	log := logger.WithComponent("worker_pool")
	log.Info().
		Int("workers", p.workers).
		Int("batch_size", p.batchSize).
		Dur("batch_timeout", p.batchTimeout).
		Msg("starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop cancels the workers and waits for their final flush. Call Wait
// instead to drain the queue after it has been closed.
func (p *Pool) Stop() {
	log := logger.WithComponent("worker_pool")
	log.Info().Msg("stopping worker pool")
	p.cancel()
	p.wg.Wait()
	log.Info().Msg("worker pool stopped")
}

// Wait blocks until the signal queue is closed and every worker has flushed.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.cancel()
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	log := logger.WithComponent("worker").With().Int("worker_id", id).Logger()

	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("worker panic recovered")
			metrics.PanicsRecovered.WithLabelValues("worker").Inc()
		}
	}()

	log.Debug().Msg("worker started")
	defer log.Debug().Msg("worker stopped")

	batch := make([]*models.MatchSignal, 0, p.batchSize)
	timer := time.NewTimer(p.batchTimeout)
	defer timer.Stop()

	flush := func() {
		if len(batch) > 0 {
			p.publishBatch(batch)
			batch = batch[:0]
		}
	}

	for {
		select {
		case <-p.ctx.Done():
			flush()
			return

		case sig, ok := <-p.signals:
			if !ok {
				flush()
				return
			}
			metrics.SignalQueueSize.Set(float64(len(p.signals)))

			batch = append(batch, sig)
			if len(batch) >= p.batchSize {
				flush()
				timer.Reset(p.batchTimeout)
			}

		case <-timer.C:
			flush()
			timer.Reset(p.batchTimeout)
		}
	}
}

func (p *Pool) publishBatch(batch []*models.MatchSignal) {
	log := logger.WithComponent("worker")
	start := time.Now()

	// the pool context may already be cancelled during the final flush
	ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), 10*time.Second)
	defer cancel()

	err := p.publisher.PublishBatch(ctx, batch)
	duration := time.Since(start)
	metrics.WorkerBatchPublishDuration.Observe(duration.Seconds())

	if err == nil {
		log.Debug().
			Int("batch_size", len(batch)).
			Dur("duration", duration).
			Msg("match signals published")
		p.processed.Add(uint64(len(batch)))
		metrics.WorkerProcessedTotal.Add(float64(len(batch)))
		return
	}

	log.Error().
		Err(err).
		Int("batch_size", len(batch)).
		Dur("duration", duration).
		Msg("failed to publish batch, falling back to individual publish")
	p.publishIndividually(batch)
}

func (p *Pool) publishIndividually(batch []*models.MatchSignal) {
	log := logger.WithComponent("worker")

	for _, sig := range batch {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(p.ctx), 5*time.Second)
		err := p.publisher.Publish(ctx, sig)
		cancel()

		if err != nil {
			log.Error().
				Err(err).
				Str("signal_id", sig.ID).
				Int("condition_id", sig.ConditionID).
				Msg("failed to publish match signal")
			p.failed.Add(1)
			metrics.WorkerFailedTotal.Inc()
			continue
		}
		p.processed.Add(1)
		metrics.WorkerProcessedTotal.Inc()
	}
}

// Stats holds worker pool metrics
type Stats struct {
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
}

func (p *Pool) Stats() Stats {
	return Stats{
		Processed: p.processed.Load(),
		Failed:    p.failed.Load(),
	}
}
