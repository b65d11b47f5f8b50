package scheduler

import (
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"alertcache/internal/alerts"
	"alertcache/internal/logger"
	"alertcache/internal/metrics"
)

// AvailabilityLookup returns the current availability of a resource.
type AvailabilityLookup interface {
	CurrentAvailability(resourceID int) (alerts.Availability, bool)
}

// FireFunc receives a duration check whose availability still held when it
// ran.
type FireFunc func(e *alerts.AvailabilityDurationElement, c alerts.DurationComposite)

// Scheduler runs deferred availability duration checks on timers. A check is
// never cancelled by later transitions; it re-reads the availability when it
// fires and decides then.
type Scheduler struct {
	lookup AvailabilityLookup
	fire   FireFunc
	now    func() time.Time

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool

	scheduled atomic.Uint64
	matched   atomic.Uint64
	cleared   atomic.Uint64
}

// New creates a scheduler. fire is called from the timer goroutine.
func New(lookup AvailabilityLookup, fire FireFunc) *Scheduler {
	return &Scheduler{
		lookup: lookup,
		fire:   fire,
		now:    time.Now,
		timers: make(map[string]*time.Timer),
	}
}

// ScheduleAvailabilityDurationCheck arms a timer that fires no earlier than
// start plus the element's duration.
func (s *Scheduler) ScheduleAvailabilityDurationCheck(e *alerts.AvailabilityDurationElement, resource alerts.Resource, start time.Time) {
	if start.IsZero() {
		start = s.now()
	}
	composite := e.Composite(resource, alerts.AvailabilityUnknown)
	delay := composite.DueAt(start).Sub(s.now())
	if delay < 0 {
		delay = 0
	}

	id := uuid.NewString()
	log := logger.WithCondition("scheduler", e.ConditionID())

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		log.Warn().Int("resource_id", resource.ID).Msg("scheduler stopped, duration check not armed")
		return
	}
	// armed under the lock so a zero delay cannot run before the timer is tracked
	s.timers[id] = time.AfterFunc(delay, func() { s.run(id, e, resource) })
	s.scheduled.Add(1)
	metrics.DurationChecksPending.Inc()

	log.Debug().
		Str("check_id", id).
		Int("resource_id", resource.ID).
		Dur("delay", delay).
		Msg("duration check armed")
}

func (s *Scheduler) run(id string, e *alerts.AvailabilityDurationElement, resource alerts.Resource) {
	s.mu.Lock()
	_, ok := s.timers[id]
	delete(s.timers, id)
	s.mu.Unlock()
	if !ok {
		return
	}
	metrics.DurationChecksPending.Dec()

	log := logger.WithCondition("scheduler", e.ConditionID())
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Interface("panic", r).
				Bytes("stack", debug.Stack()).
				Msg("duration check panic recovered")
			metrics.PanicsRecovered.WithLabelValues("scheduler").Inc()
		}
	}()

	avail, known := s.lookup.CurrentAvailability(resource.ID)
	if !known {
		metrics.DurationChecksFiredTotal.WithLabelValues("unknown").Inc()
		log.Debug().Int("resource_id", resource.ID).Msg("no availability for resource, treating as unknown")
	}

	matched, err := e.Matches(avail)
	if err != nil {
		metrics.DurationChecksFiredTotal.WithLabelValues("error").Inc()
		log.Error().Err(err).Int("resource_id", resource.ID).Msg("duration check failed")
		return
	}
	if !matched {
		s.cleared.Add(1)
		metrics.DurationChecksFiredTotal.WithLabelValues("cleared").Inc()
		log.Debug().
			Int("resource_id", resource.ID).
			Stringer("availability", avail).
			Msg("availability recovered before duration elapsed")
		return
	}

	s.matched.Add(1)
	metrics.DurationChecksFiredTotal.WithLabelValues("matched").Inc()
	log.Info().
		Int("resource_id", resource.ID).
		Stringer("availability", avail).
		Dur("duration", e.Duration()).
		Msg("availability duration condition met")
	s.fire(e, e.Composite(resource, avail))
}

// Pending is the number of armed checks that have not fired.
func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every armed check. Checks scheduled afterwards are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
		metrics.DurationChecksPending.Dec()
	}
	log := logger.WithComponent("scheduler")
	log.Info().Msg("scheduler stopped")
}

// Stats holds scheduler statistics
type Stats struct {
	Scheduled uint64 `json:"scheduled"`
	Matched   uint64 `json:"matched"`
	Cleared   uint64 `json:"cleared"`
	Pending   int    `json:"pending"`
}

func (s *Scheduler) Stats() Stats {
	return Stats{
		Scheduled: s.scheduled.Load(),
		Matched:   s.matched.Load(),
		Cleared:   s.cleared.Load(),
		Pending:   s.Pending(),
	}
}
