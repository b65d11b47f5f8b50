package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"alertcache/internal/cache"
	"alertcache/internal/config"
	"alertcache/internal/handlers"
	"alertcache/internal/kafka"
	"alertcache/internal/logger"
	"alertcache/internal/middleware"
	"alertcache/internal/scheduler"
	"alertcache/internal/state"
	"alertcache/internal/worker"
)

// Processor wires the condition cache to its inputs (HTTP ingest, Kafka
// consumer) and its output (match signals published to Kafka).
type Processor struct {
	cfg *config.Config

	manager    *cache.Manager
	scheduler  *scheduler.Scheduler
	producer   *kafka.Producer
	consumer   *kafka.Consumer
	workerPool *worker.Pool
	httpServer *http.Server

	// Initial condition set loaded before serving
	conditions []cache.Condition

	wg sync.WaitGroup
}

// Option configures a Processor
type Option func(*Processor)

// WithConditions loads conds into the cache at startup.
func WithConditions(conds []cache.Condition) Option {
	return func(p *Processor) { p.conditions = conds }
}

// New constructs a Processor with given config.
func New(cfg *config.Config, opts ...Option) *Processor {
	p := &Processor{cfg: cfg}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run starts every component and blocks until ctx is cancelled, then shuts
// down gracefully.
func (p *Processor) Run(ctx context.Context) error {
	log := logger.WithComponent("processor")
	log.Info().Msg("processor starting")

	policy, err := cache.ParseLoadPolicy(p.cfg.Cache.LoadPolicy)
	if err != nil {
		return err
	}

	p.manager = cache.NewManager(cache.Config{
		Activity:     state.NewMemoryStore(),
		SignalBuffer: p.cfg.Cache.SignalBuffer,
	})
	p.scheduler = scheduler.New(p.manager, p.manager.FireDeferred)
	p.manager.SetScheduler(p.scheduler)

	if len(p.conditions) > 0 {
		if _, err := p.manager.Load(ctx, p.conditions, policy); err != nil {
			p.manager.Close()
			return fmt.Errorf("failed to load conditions: %w", err)
		}
	}

	if err := p.initProducer(); err != nil {
		log.Error().Err(err).Msg("failed to initialize producer")
		p.manager.Close()
		return fmt.Errorf("failed to initialize producer: %w", err)
	}

	p.initWorkerPool()
	p.workerPool.Start()

	if p.cfg.Kafka.DataTopic != "" {
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:    p.cfg.Kafka.Brokers,
			Topic:      p.cfg.Kafka.DataTopic,
			GroupID:    p.cfg.Kafka.GroupID,
			Dispatcher: p.manager,
		})
		if err != nil {
			p.shutdown()
			return fmt.Errorf("failed to initialize consumer: %w", err)
		}
		p.consumer = consumer
		p.consumer.Start(ctx)
	}

	p.initHTTPServer(policy)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		log.Info().Str("addr", p.cfg.HTTPAddr).Msg("starting HTTP server")
		if err := p.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server error")
		}
	}()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.reportStats(ctx)
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	return p.shutdown()
}

func (p *Processor) initProducer() error {
	producer, err := kafka.NewProducer(
		p.cfg.Kafka.Brokers,
		p.cfg.Kafka.Topic,
		p.cfg.Kafka.Producer,
	)
	if err != nil {
		return err
	}
	p.producer = producer
	return nil
}

func (p *Processor) initWorkerPool() {
	p.workerPool = worker.NewPool(worker.Config{
		Publisher:    p.producer,
		Signals:      p.manager.Signals(),
		Workers:      p.cfg.Kafka.Producer.PoolSize,
		BatchSize:    p.cfg.Kafka.Producer.BatchSize,
		BatchTimeout: p.cfg.Kafka.Producer.BatchTimeout,
	})
}

func (p *Processor) initHTTPServer(policy cache.LoadPolicy) {
	mux := http.NewServeMux()

	ingest := handlers.NewIngestHandler(handlers.IngestConfig{
		Dispatcher:  p.manager,
		MaxBodySize: 10 * 1024 * 1024,
	})
	mux.Handle("/ingest", middleware.Chain(
		ingest,
		middleware.Recovery,
		middleware.Logging,
		middleware.RequireJSON,
	))

	conditions := handlers.NewConditionsHandler(handlers.ConditionsConfig{
		Loader: p.manager,
		Policy: policy,
	})
	mux.Handle("/conditions", middleware.Chain(
		conditions,
		middleware.Recovery,
		middleware.Logging,
		middleware.RequireJSON,
	))

	mux.HandleFunc("/health", p.healthHandler)
	mux.HandleFunc("/stats", p.statsHandler)
	mux.Handle("/metrics", promhttp.Handler())

	p.httpServer = &http.Server{
		Addr:         p.cfg.HTTPAddr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// shutdown stops the inputs first, then drains the signal queue into Kafka,
// then closes the producer.
func (p *Processor) shutdown() error {
	log := logger.WithComponent("processor")
	log.Info().Msg("initiating graceful shutdown")

	// 1. Stop accepting new HTTP requests
	if p.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("stopping HTTP server")
		if err := p.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown error")
		}
	}

	// 2. Stop consuming data points
	if p.consumer != nil {
		log.Info().Msg("stopping kafka consumer")
		if err := p.consumer.Stop(); err != nil {
			log.Error().Err(err).Msg("consumer close error")
		}
	}

	// 3. Cancel pending duration checks
	p.scheduler.Stop()

	// 4. Close the signal queue so workers drain it and exit
	log.Info().Msg("closing signal queue")
	if err := p.manager.Close(); err != nil {
		log.Error().Err(err).Msg("cache close error")
	}

	done := make(chan struct{})
	go func() {
		p.workerPool.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("workers drained the signal queue")
	case <-time.After(15 * time.Second):
		log.Warn().Msg("worker drain timeout, stopping workers")
		p.workerPool.Stop()
	}

	// 5. Close producer
	log.Info().Msg("closing kafka producer")
	if err := p.producer.Close(); err != nil {
		log.Error().Err(err).Msg("producer close error")
	}

	// 6. Wait for all goroutines
	p.wg.Wait()

	log.Info().Msg("processor stopped gracefully")
	return nil
}

// reportStats periodically logs statistics
func (p *Processor) reportStats(ctx context.Context) {
	log := logger.WithComponent("processor")
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := p.stats()
			log.Info().
				Int("conditions", s.Cache.Conditions).
				Uint64("dispatched", s.Cache.Dispatched).
				Uint64("matched", s.Cache.Matched).
				Uint64("signals_dropped", s.Cache.Dropped).
				Int("pending_duration_checks", s.Scheduler.Pending).
				Uint64("worker_processed", s.Worker.Processed).
				Uint64("worker_failed", s.Worker.Failed).
				Uint64("producer_sent", s.Producer.MessagesSent).
				Uint64("producer_failed", s.Producer.MessagesFailed).
				Int("queue_size", s.Cache.QueueSize).
				Msg("stats")
		}
	}
}

// Stats is the body of GET /stats
type Stats struct {
	Cache     cache.Stats          `json:"cache"`
	Scheduler scheduler.Stats      `json:"scheduler"`
	Worker    worker.Stats         `json:"worker"`
	Producer  kafka.ProducerStats  `json:"producer"`
	Consumer  *kafka.ConsumerStats `json:"consumer,omitempty"`
}

func (p *Processor) stats() Stats {
	s := Stats{
		Cache:     p.manager.Stats(),
		Scheduler: p.scheduler.Stats(),
		Worker:    p.workerPool.Stats(),
		Producer:  p.producer.Stats(),
	}
	if p.consumer != nil {
		cs := p.consumer.Stats()
		s.Consumer = &cs
	}
	return s
}

func (p *Processor) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := p.producer.HealthCheck(ctx); err != nil {
		http.Error(w, fmt.Sprintf("unhealthy: %v", err), http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

func (p *Processor) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(p.stats()); err != nil {
		log := logger.WithError(err)
		log.Warn().Msg("failed to write stats")
	}
}
