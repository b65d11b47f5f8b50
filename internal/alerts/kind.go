package alerts

import "fmt"

// Kind tags the payload variant an element matches against. The operator
// support table for every variant lives here rather than on the variants, so
// validation runs once in the shared constructor path.
type Kind int

const (
	KindNumeric Kind = iota
	KindRange
	KindBaseline
	KindOutOfBounds
	KindString
	KindAvailability
	KindEvent
	KindCallTime
	KindConfiguration
	KindDrift
	KindAvailabilityDuration
)

var kindNames = [...]string{
	KindNumeric:              "NumericElement",
	KindRange:                "RangeElement",
	KindBaseline:             "BaselineElement",
	KindOutOfBounds:          "OutOfBoundsElement",
	KindString:               "StringElement",
	KindAvailability:         "AvailabilityElement",
	KindEvent:                "EventElement",
	KindCallTime:             "CallTimeElement",
	KindConfiguration:        "ConfigurationElement",
	KindDrift:                "DriftElement",
	KindAvailabilityDuration: "AvailabilityDurationElement",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return kindNames[k]
}

// Supports reports the classification of op for this kind, or
// OperatorTypeNone when the kind cannot evaluate it.
func (k Kind) Supports(op Operator) OperatorType {
	switch k {
	case KindNumeric, KindString:
		switch op {
		case GreaterThan, LessThan, Equals:
			return OperatorTypeStateless
		case Changes:
			return OperatorTypeStateful
		case Regex:
			if k == KindString {
				return OperatorTypeStateless
			}
		}
	case KindRange:
		switch op {
		case LessThan, LessThanOrEqualTo, GreaterThan, GreaterThanOrEqualTo:
			return OperatorTypeStateless
		}
	case KindBaseline:
		switch op {
		case GreaterThan, LessThan, Equals:
			return OperatorTypeStateless
		case Changes:
			return OperatorTypeStateful
		}
	case KindOutOfBounds:
		switch op {
		case GreaterThan, LessThan:
			return OperatorTypeStateless
		}
	case KindAvailability, KindEvent:
		switch op {
		case LessThan, LessThanOrEqualTo, Equals, GreaterThan, GreaterThanOrEqualTo:
			return OperatorTypeStateless
		case Changes:
			return OperatorTypeStateful
		case ChangesTo, ChangesFrom:
			if k == KindAvailability {
				return OperatorTypeStateful
			}
		}
	case KindCallTime:
		switch op {
		case GreaterThan, LessThan, Equals:
			return OperatorTypeStateless
		case Changes:
			return OperatorTypeStateful
		}
	case KindConfiguration, KindDrift:
		if op == Changes {
			return OperatorTypeStateful
		}
	case KindAvailabilityDuration:
		switch op {
		case AvailDurationDown, AvailDurationNotUp:
			return OperatorTypeStateful
		}
	}
	return OperatorTypeNone
}

// RequiresValue reports whether an element of this kind needs a stored value
// for op. Delta operators start empty, and an availability duration element
// starts with no observation until the first report for its resource.
func (k Kind) RequiresValue(op Operator) bool {
	return !op.IsChange() && k != KindAvailabilityDuration
}

// RequiresOption reports whether an element of this kind needs an operator
// option for op.
func (k Kind) RequiresOption(op Operator) bool {
	if op == ChangesTo || op == ChangesFrom {
		return true
	}
	switch k {
	case KindRange, KindBaseline, KindCallTime, KindAvailabilityDuration:
		return true
	}
	return false
}
