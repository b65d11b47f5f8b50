package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"alertcache/internal/alerts"
	"alertcache/internal/logger"
	"alertcache/internal/metrics"
	"alertcache/internal/models"
	"alertcache/internal/state"
)

// LoadPolicy decides what Load does with a condition that cannot be built.
type LoadPolicy int

const (
	// LoadSkipInvalid logs and counts the bad condition and keeps loading
	LoadSkipInvalid LoadPolicy = iota
	// LoadAbortOnError rejects the whole load and keeps the previous cache
	LoadAbortOnError
)

func ParseLoadPolicy(s string) (LoadPolicy, error) {
	switch s {
	case "", "skip":
		return LoadSkipInvalid, nil
	case "abort":
		return LoadAbortOnError, nil
	}
	return 0, fmt.Errorf("unknown load policy %q", s)
}

// ErrClosed is returned by Dispatch after Close.
var ErrClosed = errors.New("cache manager closed")

// Manager owns the condition cache: the chains of elements keyed by source,
// the availability duration elements keyed by resource, and the queue match
// signals are written to.
type Manager struct {
	mu         sync.RWMutex
	chains     *alerts.Chains[string]
	durations  map[int][]*alerts.AvailabilityDurationElement
	conditions map[int]Condition
	closed     bool

	availability sync.Map // resource id -> alerts.Availability
	activity     state.ActivityStore
	scheduler    alerts.DurationScheduler

	// queueMu guards sends on signals against close; it is never held
	// together with mu, so a sender blocked on a full queue does not stall
	// Load or Dispatch
	queueMu     sync.RWMutex
	queueClosed bool
	signals     chan *models.MatchSignal

	// cancelled by Close to release senders blocked on a full queue
	ctx    context.Context
	cancel context.CancelFunc

	dispatched atomic.Uint64
	matched    atomic.Uint64
	emitted    atomic.Uint64
	dropped    atomic.Uint64

	log zerolog.Logger
}

// Config holds manager configuration
type Config struct {
	Activity     state.ActivityStore
	SignalBuffer int
}

// NewManager creates an empty cache. Call SetScheduler before dispatching
// availability data if duration conditions are loaded.
func NewManager(cfg Config) *Manager {
	if cfg.Activity == nil {
		cfg.Activity = state.NewMemoryStore()
	}
	if cfg.SignalBuffer <= 0 {
		cfg.SignalBuffer = 1000
	}
	ctx, cancel := context.WithCancel(context.Background())

	metrics.SignalQueueCapacity.Set(float64(cfg.SignalBuffer))

	return &Manager{
		chains:     alerts.NewChains[string](),
		durations:  make(map[int][]*alerts.AvailabilityDurationElement),
		conditions: make(map[int]Condition),
		activity:   cfg.Activity,
		signals:    make(chan *models.MatchSignal, cfg.SignalBuffer),
		ctx:        ctx,
		cancel:     cancel,
		log:        logger.WithComponent("cache"),
	}
}

// SetScheduler sets the scheduler deferred duration checks are handed to.
func (m *Manager) SetScheduler(s alerts.DurationScheduler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scheduler = s
}

// Signals is the queue of match signals for the alert-firing pipeline. It is
// closed by Close.
func (m *Manager) Signals() <-chan *models.MatchSignal {
	return m.signals
}

// LoadResult summarizes one Load.
type LoadResult struct {
	Loaded   int           `json:"loaded"`
	Rejected []LoadError   `json:"rejected,omitempty"`
	Duration time.Duration `json:"duration"`
}

// LoadError describes a condition Load could not build.
type LoadError struct {
	ConditionID int    `json:"condition_id"`
	Error       string `json:"error"`
}

// Load replaces the cached condition set with conds. The new cache is built
// aside and swapped in at once, so dispatch never sees a partial cache.
// Elements start with the activity remembered by the activity store;
// conditions it has never seen are provisionally active.
func (m *Manager) Load(ctx context.Context, conds []Condition, policy LoadPolicy) (LoadResult, error) {
	start := time.Now()
	defer func() { metrics.CacheLoadDuration.Observe(time.Since(start).Seconds()) }()

	var result LoadResult
	chains := alerts.NewChains[string]()
	durations := make(map[int][]*alerts.AvailabilityDurationElement)
	conditions := make(map[int]Condition, len(conds))
	seen := make(map[int]struct{}, len(conds))

	for _, c := range conds {
		if c.Category == CategoryAvailabilityDuration && c.Availability == nil {
			if avail, ok := m.CurrentAvailability(c.ResourceID); ok {
				c.Availability = &avail
			}
		}

		var e alerts.Element
		var err error
		if _, dup := seen[c.ID]; dup {
			err = fmt.Errorf("%w: duplicate condition id %d", ErrInvalidCondition, c.ID)
		} else {
			seen[c.ID] = struct{}{}
			e, err = m.build(c)
		}
		if err != nil {
			metrics.CacheLoadRejectedTotal.WithLabelValues(rejectReason(err)).Inc()
			if policy == LoadAbortOnError {
				m.log.Error().Err(err).Int("condition_id", c.ID).Msg("aborting cache load")
				return LoadResult{}, fmt.Errorf("load condition %d: %w", c.ID, err)
			}
			m.log.Warn().Err(err).Int("condition_id", c.ID).Msg("skipping invalid condition")
			result.Rejected = append(result.Rejected, LoadError{ConditionID: c.ID, Error: err.Error()})
			continue
		}

		e.SetActive(m.activity.Get(ctx, c.ID).MaybeActive())

		if d, ok := e.(*alerts.AvailabilityDurationElement); ok {
			durations[c.ResourceID] = append(durations[c.ResourceID], d)
		} else {
			chains.Add(c.Source, e)
		}
		conditions[c.ID] = c
		result.Loaded++
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return LoadResult{}, ErrClosed
	}
	var gone []int
	for id := range m.conditions {
		if _, ok := conditions[id]; !ok {
			gone = append(gone, id)
		}
	}
	m.chains = chains
	m.durations = durations
	m.conditions = conditions
	m.mu.Unlock()

	if len(gone) > 0 {
		m.activity.Forget(ctx, gone...)
	}

	metrics.CacheElements.Set(float64(result.Loaded))
	result.Duration = time.Since(start)

	m.log.Info().
		Int("loaded", result.Loaded).
		Int("rejected", len(result.Rejected)).
		Int("removed", len(gone)).
		Dur("duration", result.Duration).
		Msg("condition cache loaded")

	return result, nil
}

func (m *Manager) build(c Condition) (alerts.Element, error) {
	if c.ID <= 0 {
		return nil, fmt.Errorf("%w: condition id must be positive", ErrInvalidCondition)
	}
	if c.Category != CategoryAvailabilityDuration && c.Source == "" {
		return nil, fmt.Errorf("%w: source is required", ErrInvalidCondition)
	}
	return Build(c)
}

// ErrInvalidCondition is returned for a condition missing fields the cache
// needs to place it.
var ErrInvalidCondition = errors.New("invalid condition")

func rejectReason(err error) string {
	switch {
	case errors.Is(err, alerts.ErrUnsupportedOperator):
		return "unsupported_operator"
	case errors.Is(err, alerts.ErrInvalidElement):
		return "invalid_element"
	}
	return "invalid_condition"
}

// SetActivity records the caller-managed activity of a condition and applies
// it to the loaded elements.
func (m *Manager) SetActivity(ctx context.Context, conditionID int, active bool) {
	m.activity.Set(ctx, conditionID, alerts.ActivityOf(active))

	m.mu.RLock()
	defer m.mu.RUnlock()
	m.chains.Each(func(_ string, e alerts.Element) bool {
		if e.ConditionID() == conditionID {
			e.SetActive(active)
		}
		return true
	})
	for _, elems := range m.durations {
		for _, e := range elems {
			if e.ConditionID() == conditionID {
				e.SetActive(active)
			}
		}
	}
}

// Dispatch evaluates dp against every element watching its source and queues
// a match signal for each active element that matched. Availability data also
// runs the duration elements of the resource. It returns the number of
// signals queued. Element errors do not stop evaluation; they are joined into
// the returned error.
func (m *Manager) Dispatch(ctx context.Context, dp *models.DataPoint) (int, error) {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return 0, ErrClosed
	}
	chain := m.chains.Get(dp.Source)
	var durations []*alerts.AvailabilityDurationElement
	if dp.Kind == models.KindAvailability {
		durations = m.durations[dp.ResourceID]
	}
	scheduler := m.scheduler
	m.mu.RUnlock()

	m.dispatched.Add(1)

	value, extras := dp.Value(), dp.Extras()
	var (
		queued int
		errs   []error
	)
	for _, e := range chain {
		kind := e.Kind().String()
		metrics.ElementEvaluationsTotal.WithLabelValues(kind).Inc()

		ok, err := e.Process(value, extras...)
		if err != nil {
			metrics.ElementErrorsTotal.WithLabelValues(kind).Inc()
			errs = append(errs, fmt.Errorf("condition %d: %w", e.ConditionID(), err))
			continue
		}
		if !ok {
			continue
		}
		metrics.ElementMatchesTotal.WithLabelValues(kind).Inc()
		m.matched.Add(1)
		if !e.Active() {
			logger.Logger.Debug().Int("condition_id", e.ConditionID()).Msg("match on inactive condition")
			continue
		}
		if m.emit(ctx, models.NewMatchSignal(e, dp)) {
			queued++
		}
	}

	if dp.Kind == models.KindAvailability && dp.Availability != nil {
		avail := *dp.Availability
		m.availability.Store(dp.ResourceID, avail)
		if len(durations) > 0 {
			if scheduler == nil {
				errs = append(errs, errors.New("no scheduler for availability duration conditions"))
			} else {
				resource := alerts.Resource{ID: dp.ResourceID, Name: dp.Source}
				n := alerts.CheckDurationElements(durations, resource, avail, dp.Timestamp, scheduler)
				metrics.DurationChecksScheduledTotal.Add(float64(n))
			}
		}
	}

	return queued, errors.Join(errs...)
}

// FireDeferred queues the signal for a duration check the scheduler
// confirmed. Inactive conditions are dropped.
func (m *Manager) FireDeferred(e *alerts.AvailabilityDurationElement, c alerts.DurationComposite) {
	m.matched.Add(1)
	metrics.ElementMatchesTotal.WithLabelValues(e.Kind().String()).Inc()
	if !e.Active() {
		return
	}
	m.emit(m.ctx, models.NewDeferredSignal(c))
}

// CurrentAvailability is the last availability dispatched for resourceID.
func (m *Manager) CurrentAvailability(resourceID int) (alerts.Availability, bool) {
	v, ok := m.availability.Load(resourceID)
	if !ok {
		return alerts.AvailabilityUnknown, false
	}
	return v.(alerts.Availability), true
}

// emit blocks until the signal is queued, ctx is done or the manager closes.
func (m *Manager) emit(ctx context.Context, sig *models.MatchSignal) bool {
	m.queueMu.RLock()
	defer m.queueMu.RUnlock()
	if m.queueClosed {
		m.drop(sig, "closed")
		return false
	}

	select {
	case m.signals <- sig:
		m.emitted.Add(1)
		metrics.SignalQueueSize.Set(float64(len(m.signals)))
		return true
	case <-ctx.Done():
		m.drop(sig, "cancelled")
	case <-m.ctx.Done():
		m.drop(sig, "closed")
	}
	return false
}

func (m *Manager) drop(sig *models.MatchSignal, reason string) {
	m.dropped.Add(1)
	metrics.SignalsDroppedTotal.Inc()
	m.log.Warn().
		Str("signal_id", sig.ID).
		Int("condition_id", sig.ConditionID).
		Str("reason", reason).
		Msg("match signal dropped")
}

// Close stops accepting data and closes the signal queue. Signals already
// queued stay readable.
func (m *Manager) Close() error {
	// releases senders blocked on a full queue before queueMu is taken
	m.cancel()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.queueMu.Lock()
	m.queueClosed = true
	close(m.signals)
	m.queueMu.Unlock()

	return m.activity.Close()
}

// Stats holds cache statistics
type Stats struct {
	Conditions         int    `json:"conditions"`
	Elements           int    `json:"elements"`
	Sources            int    `json:"sources"`
	DurationConditions int    `json:"duration_conditions"`
	Dispatched         uint64 `json:"dispatched"`
	Matched            uint64 `json:"matched"`
	Emitted            uint64 `json:"emitted"`
	Dropped            uint64 `json:"dropped"`
	QueueSize          int    `json:"queue_size"`
	QueueCapacity      int    `json:"queue_capacity"`
}

func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	durations := 0
	for _, elems := range m.durations {
		durations += len(elems)
	}
	return Stats{
		Conditions:         len(m.conditions),
		Elements:           m.chains.Len() + durations,
		Sources:            len(m.chains.Keys()),
		DurationConditions: durations,
		Dispatched:         m.dispatched.Load(),
		Matched:            m.matched.Load(),
		Emitted:            m.emitted.Load(),
		Dropped:            m.dropped.Load(),
		QueueSize:          len(m.signals),
		QueueCapacity:      cap(m.signals),
	}
}
