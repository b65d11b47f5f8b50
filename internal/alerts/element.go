package alerts

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"alertcache/internal/logger"
)

// Element is the matcher for one alert condition. Every kind shares the same
// construction rules, identity and process wrapper; only the typed Matches
// method differs between kinds.
type Element interface {
	Kind() Kind
	Operator() Operator
	OperatorOption() any
	ConditionID() int

	// Value returns the stored comparison value, or nil when a delta
	// operator has not observed anything yet.
	Value() any

	Active() bool
	SetActive(active bool)

	Identity() Identity
	Hash() uint64
	Equal(other Element) bool

	// Process evaluates a newly observed value. A nil or mistyped value is a
	// quiet no match; an error signals an operator that should never have
	// passed construction.
	Process(provided any, extras ...any) (bool, error)

	String() string
}

// Identity is the part of an element that defines sameness. The stored value
// is excluded so an element keeps its identity across delta updates.
type Identity struct {
	Operator    Operator
	Option      string
	ConditionID int
}

// core holds the state every element kind embeds.
type core[T any] struct {
	kind        Kind
	operator    Operator
	option      any
	conditionID int
	active      atomic.Bool

	mu    sync.Mutex
	value *T
}

// init validates the operator, value and option for kind and populates the
// shared fields.
func (c *core[T]) init(kind Kind, op Operator, option any, value *T, conditionID int) error {
	if kind.Supports(op) == OperatorTypeNone {
		return &UnsupportedOperatorError{Kind: kind, Operator: op, ConditionID: conditionID}
	}
	if value == nil && kind.RequiresValue(op) {
		return &InvalidElementError{
			Kind: kind, Operator: op, ConditionID: conditionID,
			Rule: "a value is required unless the operator is CHANGES, CHANGES_TO or CHANGES_FROM",
		}
	}
	if option == nil && kind.RequiresOption(op) {
		return &InvalidElementError{
			Kind: kind, Operator: op, ConditionID: conditionID,
			Rule: "an operator option is required",
		}
	}

	c.kind = kind
	c.operator = op
	c.option = option
	c.conditionID = conditionID
	if value != nil {
		v := *value
		c.value = &v
	}

	log := logger.WithComponent("alerts")
	log.Debug().
		Str("kind", kind.String()).
		Int("condition_id", conditionID).
		Stringer("operator", op).
		Msg("cache element created")
	return nil
}

func (c *core[T]) Kind() Kind          { return c.kind }
func (c *core[T]) Operator() Operator  { return c.operator }
func (c *core[T]) OperatorOption() any { return c.option }
func (c *core[T]) ConditionID() int    { return c.conditionID }
func (c *core[T]) Active() bool        { return c.active.Load() }
func (c *core[T]) SetActive(a bool)    { c.active.Store(a) }

func (c *core[T]) Value() any {
	v := c.load()
	if v == nil {
		return nil
	}
	return *v
}

// load returns a copy of the stored value.
func (c *core[T]) load() *T {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil {
		return nil
	}
	v := *c.value
	return &v
}

// exchange stores v and returns what was stored before.
func (c *core[T]) exchange(v T) *T {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.value
	c.value = &v
	return prev
}

func (c *core[T]) Identity() Identity {
	id := Identity{Operator: c.operator, ConditionID: c.conditionID}
	if c.option != nil {
		id.Option = fmt.Sprint(c.option)
	}
	return id
}

func (c *core[T]) Hash() uint64 {
	id := c.Identity()
	d := xxhash.New()
	fmt.Fprintf(d, "%d\x00%s\x00%d", int(id.Operator), id.Option, id.ConditionID)
	return d.Sum64()
}

func (c *core[T]) Equal(other Element) bool {
	if other == nil {
		return false
	}
	return c.Identity() == other.Identity()
}

func (c *core[T]) String() string {
	var value any = "<nil>"
	if v := c.load(); v != nil {
		value = *v
	}
	return fmt.Sprintf("%s[conditionID=%d, operator=%s, option=%v, value=%v, active=%t]",
		c.kind, c.conditionID, c.operator, c.option, value, c.Active())
}

// process wraps a match call, recording a trace note whenever the call
// mutated the stored value.
func (c *core[T]) process(match func() (bool, error)) (bool, error) {
	if !logger.TraceEnabled() {
		return match()
	}

	before := c.String()
	matched, err := match()
	after := c.String()

	log := logger.WithComponent("alerts")
	if err != nil {
		log.Trace().Err(err).Int("condition_id", c.conditionID).Msg("cache element evaluation failed")
		return matched, err
	}
	if before != after {
		log.Trace().
			Int("condition_id", c.conditionID).
			Bool("matched", matched).
			Str("before", before).
			Str("after", after).
			Msg("cache element value changed")
	}
	return matched, nil
}

func (c *core[T]) unsupported() error {
	return evalUnsupported(c.kind, c.operator, c.conditionID)
}

// Ptr returns a pointer to v. Constructors take the comparison value by
// pointer so that "no value yet" can be expressed for delta operators.
func Ptr[T any](v T) *T {
	return &v
}

// logEvent is a shorthand used by kinds that want an extra debug field on a
// rejected provided value.
func logEvent(kind Kind, conditionID int) *zerolog.Event {
	log := logger.WithComponent("alerts")
	return log.Debug().
		Str("kind", kind.String()).
		Int("condition_id", conditionID)
}
