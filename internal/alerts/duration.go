package alerts

import "time"

// Resource identifies the monitored resource an availability transition
// belongs to.
type Resource struct {
	ID   int    `json:"id"`
	Name string `json:"name,omitempty"`
}

// DurationScheduler performs the deferred re-check of a duration condition.
// Implementations must not re-invoke the element before start plus the
// element's duration has elapsed. Scheduling is fire-and-forget: the engine
// never cancels a check it asked for.
type DurationScheduler interface {
	ScheduleAvailabilityDurationCheck(e *AvailabilityDurationElement, resource Resource, start time.Time)
}

// DurationSchedulerFunc adapts a function to DurationScheduler.
type DurationSchedulerFunc func(e *AvailabilityDurationElement, resource Resource, start time.Time)

func (f DurationSchedulerFunc) ScheduleAvailabilityDurationCheck(e *AvailabilityDurationElement, resource Resource, start time.Time) {
	f(e, resource, start)
}

// AvailabilityDurationElement detects the start of a DOWN (or not UP) period
// and hands the rest of the decision to a DurationScheduler. The stored value
// is the last availability seen; the option is the required duration.
type AvailabilityDurationElement struct {
	core[Availability]
}

// NewAvailabilityDurationElement supports AVAIL_DURATION_DOWN and
// AVAIL_DURATION_NOT_UP. current is the resource's availability when the
// cache is built, or nil when none has been reported yet; duration must be
// positive.
func NewAvailabilityDurationElement(op Operator, current *Availability, duration time.Duration, conditionID int) (*AvailabilityDurationElement, error) {
	e := &AvailabilityDurationElement{}
	var option any
	if duration > 0 {
		option = duration
	}
	if err := e.init(KindAvailabilityDuration, op, option, current, conditionID); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *AvailabilityDurationElement) Duration() time.Duration {
	return e.option.(time.Duration)
}

// Matches is the deferred, level-triggered half of the check: it reports
// whether the availability observed at re-check time still satisfies the
// operator, regardless of history.
func (e *AvailabilityDurationElement) Matches(provided Availability, _ ...any) (bool, error) {
	switch e.operator {
	case AvailDurationDown, AvailDurationNotUp:
		return durationPredicate(e.operator, provided), nil
	}
	return false, e.unsupported()
}

func (e *AvailabilityDurationElement) Process(provided any, extras ...any) (bool, error) {
	v, ok := asEnum[Availability](provided)
	if !ok {
		return ignore(&e.core, provided)
	}
	return e.process(func() (bool, error) { return e.Matches(v, extras...) })
}

// Composite projects the scheduling parameters of this element for resource.
func (e *AvailabilityDurationElement) Composite(resource Resource, avail Availability) DurationComposite {
	return DurationComposite{
		ConditionID:  e.conditionID,
		Operator:     e.operator,
		ResourceID:   resource.ID,
		Availability: avail,
		Duration:     e.Duration(),
	}
}

// observe stores avail and reports whether it starts a new period that
// satisfies the operator.
func (e *AvailabilityDurationElement) observe(avail Availability) bool {
	prev := e.exchange(avail)
	if !durationPredicate(e.operator, avail) {
		return false
	}
	return prev == nil || !durationPredicate(e.operator, *prev)
}

// CheckDurationElements is the synchronous, edge-triggered half of the check,
// run on every availability transition of resource. For each element whose
// predicate becomes true with this transition it asks scheduler for a
// deferred re-check anchored at start. Every element stores avail. It returns
// the number of checks scheduled.
func CheckDurationElements(elements []*AvailabilityDurationElement, resource Resource, avail Availability,
	start time.Time, scheduler DurationScheduler) int {
	scheduled := 0
	for _, e := range elements {
		if e == nil || !e.observe(avail) {
			continue
		}
		logEvent(KindAvailabilityDuration, e.conditionID).
			Int("resource_id", resource.ID).
			Stringer("availability", avail).
			Dur("duration", e.Duration()).
			Msg("scheduling availability duration check")
		scheduler.ScheduleAvailabilityDurationCheck(e, resource, start)
		scheduled++
	}
	return scheduled
}

func durationPredicate(op Operator, avail Availability) bool {
	if op == AvailDurationDown {
		return avail == AvailabilityDown
	}
	return avail != AvailabilityUp
}

// DurationComposite is the flat set of parameters a scheduler needs for one
// deferred availability check.
type DurationComposite struct {
	ConditionID  int           `json:"condition_id"`
	Operator     Operator      `json:"operator"`
	ResourceID   int           `json:"resource_id"`
	Availability Availability  `json:"availability"`
	Duration     time.Duration `json:"duration"`
}

// DueAt is the earliest time the re-check may run for a period starting at start.
func (c DurationComposite) DueAt(start time.Time) time.Time {
	return start.Add(c.Duration)
}
