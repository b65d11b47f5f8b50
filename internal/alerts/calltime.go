package alerts

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
)

// CallTimeStat selects which aggregate of a call-time value is compared.
type CallTimeStat int

const (
	CallTimeMin CallTimeStat = iota
	CallTimeMax
	CallTimeAvg
	CallTimeCount
)

var callTimeStatNames = [...]string{"MIN", "MAX", "AVG", "COUNT"}

func (s CallTimeStat) String() string {
	if s < 0 || int(s) >= len(callTimeStatNames) {
		return fmt.Sprintf("CallTimeStat(%d)", int(s))
	}
	return callTimeStatNames[s]
}

func ParseCallTimeStat(name string) (CallTimeStat, error) {
	return parseEnumName[CallTimeStat](callTimeStatNames[:], "call-time statistic", name)
}

// ChangeComparator is the direction a relative change must take for a
// CHANGES call-time condition to match.
type ChangeComparator int

const (
	ChangeEither ChangeComparator = iota
	ChangeShrink
	ChangeGrow
)

func (c ChangeComparator) String() string {
	switch c {
	case ChangeShrink:
		return "LO"
	case ChangeGrow:
		return "HI"
	default:
		return "CH"
	}
}

// ParseChangeComparator accepts LO/CH/HI as well as shrink/either/grow.
func ParseChangeComparator(name string) (ChangeComparator, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "", "CH", "EITHER":
		return ChangeEither, nil
	case "LO", "SHRINK":
		return ChangeShrink, nil
	case "HI", "GROW":
		return ChangeGrow, nil
	}
	return 0, fmt.Errorf("unknown change comparator %q", name)
}

// CallTimeValue is one aggregated call-time sample for a destination such as
// a method or URL.
type CallTimeValue struct {
	Destination string  `json:"destination"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Total       float64 `json:"total"`
	Count       int64   `json:"count"`
}

// Avg is NaN when no calls were counted.
func (v CallTimeValue) Avg() float64 {
	if v.Count == 0 {
		return math.NaN()
	}
	return v.Total / float64(v.Count)
}

// Stat returns the aggregate selected by s.
func (v CallTimeValue) Stat(s CallTimeStat) float64 {
	switch s {
	case CallTimeMin:
		return v.Min
	case CallTimeMax:
		return v.Max
	case CallTimeAvg:
		return v.Avg()
	case CallTimeCount:
		return float64(v.Count)
	}
	return math.NaN()
}

// CallTimeElement compares a selected call-time statistic against a fixed
// threshold or, under CHANGES, against the last value seen for the same
// destination. For CHANGES the stored value is the relative change, where
// 0.5 means 50%.
//
// The per-destination memory tolerates concurrent calls for distinct
// destinations; calls for the same destination must be serialized by the
// caller.
type CallTimeElement struct {
	core[float64]
	comparator  ChangeComparator
	destination *regexp.Regexp
	previous    sync.Map // destination -> float64
}

// NewCallTimeElement supports EQUALS, GREATER_THAN, LESS_THAN and CHANGES. An
// empty destinationPattern considers every destination.
func NewCallTimeElement(op Operator, threshold *float64, stat *CallTimeStat, comparator ChangeComparator,
	destinationPattern string, conditionID int) (*CallTimeElement, error) {
	e := &CallTimeElement{comparator: comparator}
	var option any
	if stat != nil {
		option = *stat
	}
	if err := e.init(KindCallTime, op, option, threshold, conditionID); err != nil {
		return nil, err
	}
	if threshold == nil {
		return nil, &InvalidElementError{
			Kind: KindCallTime, Operator: op, ConditionID: conditionID,
			Rule: "a change threshold is required",
		}
	}
	if destinationPattern != "" {
		re, err := CompilePattern(destinationPattern)
		if err != nil {
			return nil, &InvalidElementError{
				Kind: KindCallTime, Operator: op, ConditionID: conditionID,
				Rule: fmt.Sprintf("invalid destination pattern: %v", err),
			}
		}
		e.destination = re
	}
	return e, nil
}

func (e *CallTimeElement) Stat() CallTimeStat           { return e.option.(CallTimeStat) }
func (e *CallTimeElement) Comparator() ChangeComparator { return e.comparator }

// Previous returns the last statistic remembered for destination.
func (e *CallTimeElement) Previous(destination string) (float64, bool) {
	v, ok := e.previous.Load(destination)
	if !ok {
		return 0, false
	}
	return v.(float64), true
}

// Forget drops the memory for destination.
func (e *CallTimeElement) Forget(destination string) {
	e.previous.Delete(destination)
}

// Matches evaluates provided. The destination is taken from the value, or
// from the first extra when the value carries none.
func (e *CallTimeElement) Matches(provided CallTimeValue, extras ...any) (bool, error) {
	key := provided.Destination
	if key == "" {
		key, _ = firstString(extras)
	}
	if e.destination != nil && !e.destination.MatchString(key) {
		return false, nil
	}

	current := provided.Stat(e.Stat())
	threshold := *e.load()
	if !finite(current) || !finite(threshold) {
		return false, nil
	}

	if e.operator == Changes {
		prev, loaded := e.previous.Swap(key, current)
		if !loaded {
			return false, nil
		}
		return relativeChange(prev.(float64), current, threshold, e.comparator), nil
	}

	switch e.operator {
	case GreaterThan:
		return current > threshold, nil
	case LessThan:
		return current < threshold, nil
	case Equals:
		return current == threshold, nil
	}
	return false, e.unsupported()
}

func (e *CallTimeElement) Process(provided any, extras ...any) (bool, error) {
	var v CallTimeValue
	switch t := provided.(type) {
	case CallTimeValue:
		v = t
	case *CallTimeValue:
		if t == nil {
			return false, nil
		}
		v = *t
	default:
		return ignore(&e.core, provided)
	}
	return e.process(func() (bool, error) { return e.Matches(v, extras...) })
}

// relativeChange reports whether current moved away from prev by at least
// pct of prev in the comparator's direction. A zero prev counts any move as
// an unbounded change.
func relativeChange(prev, current, pct float64, cmp ChangeComparator) bool {
	if prev == 0 {
		switch cmp {
		case ChangeGrow:
			return current > 0
		case ChangeShrink:
			return current < 0
		default:
			return current != 0
		}
	}

	delta := (current - prev) / math.Abs(prev)
	switch cmp {
	case ChangeGrow:
		return delta >= pct
	case ChangeShrink:
		return -delta >= pct
	default:
		return math.Abs(delta) >= pct
	}
}
