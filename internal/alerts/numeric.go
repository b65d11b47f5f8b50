package alerts

import (
	"fmt"
	"math"
)

// NearZeroThreshold is the magnitude below which an out-of-bounds threshold
// is considered zero and suppressed.
const NearZeroThreshold = 1e-9

// BaselineStat names which baseline statistic a baseline threshold was
// derived from. The engine carries it as metadata only.
type BaselineStat string

const (
	BaselineMin  BaselineStat = "min"
	BaselineMean BaselineStat = "mean"
	BaselineMax  BaselineStat = "max"
)

// NumericElement compares measurements against a fixed threshold, or detects
// any change in the measured value.
type NumericElement struct {
	core[float64]
}

// NewNumericElement supports GREATER_THAN, LESS_THAN, EQUALS and CHANGES.
// value may be nil only for CHANGES.
func NewNumericElement(op Operator, value *float64, conditionID int) (*NumericElement, error) {
	e := &NumericElement{}
	if err := e.init(KindNumeric, op, nil, value, conditionID); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *NumericElement) Matches(provided float64, _ ...any) (bool, error) {
	return compareNumeric(&e.core, provided)
}

func (e *NumericElement) Process(provided any, extras ...any) (bool, error) {
	v, ok := toFloat(provided)
	if !ok {
		return ignore(&e.core, provided)
	}
	return e.process(func() (bool, error) { return e.Matches(v, extras...) })
}

// BaselineElement is a numeric threshold expressed relative to a baseline
// statistic. The statistic is descriptive and does not affect matching.
type BaselineElement struct {
	core[float64]
}

func NewBaselineElement(op Operator, value *float64, stat BaselineStat, conditionID int) (*BaselineElement, error) {
	e := &BaselineElement{}
	var option any
	if stat != "" {
		option = stat
	}
	if err := e.init(KindBaseline, op, option, value, conditionID); err != nil {
		return nil, err
	}
	return e, nil
}

// Stat returns the baseline statistic the threshold refers to.
func (e *BaselineElement) Stat() BaselineStat {
	return e.option.(BaselineStat)
}

func (e *BaselineElement) Matches(provided float64, _ ...any) (bool, error) {
	return compareNumeric(&e.core, provided)
}

func (e *BaselineElement) Process(provided any, extras ...any) (bool, error) {
	v, ok := toFloat(provided)
	if !ok {
		return ignore(&e.core, provided)
	}
	return e.process(func() (bool, error) { return e.Matches(v, extras...) })
}

func compareNumeric(c *core[float64], provided float64) (bool, error) {
	if c.operator == Changes {
		prev := c.exchange(provided)
		if prev == nil {
			return false, nil
		}
		return !sameFloat(*prev, provided), nil
	}

	threshold := *c.load()
	if !finite(provided) || !finite(threshold) {
		return false, nil
	}

	switch c.operator {
	case GreaterThan:
		return provided > threshold, nil
	case LessThan:
		return provided < threshold, nil
	case Equals:
		return provided == threshold, nil
	}
	return false, c.unsupported()
}

// RangeElement matches a measurement against the interval [low, high]. The
// stored value is the low bound and the operator option the high bound.
//
//	LESS_THAN                 low <  v <  high
//	LESS_THAN_OR_EQUAL_TO     low <= v <= high
//	GREATER_THAN              v <  low || v >  high
//	GREATER_THAN_OR_EQUAL_TO  v <= low || v >= high
type RangeElement struct {
	core[float64]
}

func NewRangeElement(op Operator, low *float64, high *float64, conditionID int) (*RangeElement, error) {
	e := &RangeElement{}
	var option any
	if high != nil {
		option = *high
	}
	if err := e.init(KindRange, op, option, low, conditionID); err != nil {
		return nil, err
	}
	return e, nil
}

// Bounds returns the low and high end of the range.
func (e *RangeElement) Bounds() (low, high float64) {
	return *e.load(), e.option.(float64)
}

func (e *RangeElement) Matches(provided float64, _ ...any) (bool, error) {
	low, high := e.Bounds()
	if !finite(provided) || !finite(low) || !finite(high) {
		return false, nil
	}

	switch e.operator {
	case LessThan:
		return low < provided && provided < high, nil
	case LessThanOrEqualTo:
		return low <= provided && provided <= high, nil
	case GreaterThan:
		return provided < low || provided > high, nil
	case GreaterThanOrEqualTo:
		return provided <= low || provided >= high, nil
	}
	return false, e.unsupported()
}

func (e *RangeElement) Process(provided any, extras ...any) (bool, error) {
	v, ok := toFloat(provided)
	if !ok {
		return ignore(&e.core, provided)
	}
	return e.process(func() (bool, error) { return e.Matches(v, extras...) })
}

// OutOfBoundsElement flags measurements falling above or below a baseline
// band edge. Thresholds within NearZeroThreshold of zero never match, since
// near-zero baselines flap between high and low.
type OutOfBoundsElement struct {
	core[float64]
}

func NewOutOfBoundsElement(op Operator, value *float64, conditionID int) (*OutOfBoundsElement, error) {
	e := &OutOfBoundsElement{}
	if err := e.init(KindOutOfBounds, op, nil, value, conditionID); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *OutOfBoundsElement) Matches(provided float64, _ ...any) (bool, error) {
	threshold := *e.load()
	if math.Abs(threshold) < NearZeroThreshold {
		return false, nil
	}
	if !finite(provided) || !finite(threshold) {
		return false, nil
	}

	switch e.operator {
	case GreaterThan:
		return provided > threshold, nil
	case LessThan:
		return provided < threshold, nil
	}
	return false, e.unsupported()
}

func (e *OutOfBoundsElement) Process(provided any, extras ...any) (bool, error) {
	v, ok := toFloat(provided)
	if !ok {
		return ignore(&e.core, provided)
	}
	return e.process(func() (bool, error) { return e.Matches(v, extras...) })
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// sameFloat is equality with NaN equal to itself.
func sameFloat(a, b float64) bool {
	if math.IsNaN(a) || math.IsNaN(b) {
		return math.IsNaN(a) && math.IsNaN(b)
	}
	return a == b
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case *float64:
		if n == nil {
			return 0, false
		}
		return *n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}

// ignore is the quiet no-match outcome for nil or mistyped provided values.
func ignore[T any](c *core[T], provided any) (bool, error) {
	if provided != nil {
		logEvent(c.kind, c.conditionID).
			Str("type", fmt.Sprintf("%T", provided)).
			Msg("ignoring provided value of unexpected type")
	}
	return false, nil
}
