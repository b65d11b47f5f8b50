// Package alerts implements the alert condition cache engine: one stateful or
// stateless matcher per alert condition, deciding for every newly arrived
// measurement, availability change, event, call-time statistic, configuration
// change or drift report whether the condition is satisfied.
//
// Nothing in this package blocks, sleeps or performs I/O. Elements are
// invoked in-line by whatever goroutine dispatches the data point.
package alerts

import (
	"fmt"
	"strings"
)

// OperatorType classifies how an operator relates to the value it compares
// against.
type OperatorType int

const (
	// OperatorTypeNone marks an operator as unsupported by an element kind.
	OperatorTypeNone OperatorType = iota
	// OperatorTypeStateless compares against a fixed value or checks a pure transition.
	OperatorTypeStateless
	// OperatorTypeStateful compares against a moving value.
	OperatorTypeStateful
)

func (t OperatorType) String() string {
	switch t {
	case OperatorTypeStateless:
		return "STATELESS"
	case OperatorTypeStateful:
		return "STATEFUL"
	default:
		return "NONE"
	}
}

// Operator is the closed set of comparison operators an alert condition may use.
type Operator int

const (
	LessThan Operator = iota
	LessThanOrEqualTo
	Equals
	GreaterThan
	GreaterThanOrEqualTo
	Changes
	ChangesTo
	ChangesFrom
	Regex
	AvailDurationDown
	AvailDurationNotUp
)

var operatorNames = [...]string{
	LessThan:             "LESS_THAN",
	LessThanOrEqualTo:    "LESS_THAN_OR_EQUAL_TO",
	Equals:               "EQUALS",
	GreaterThan:          "GREATER_THAN",
	GreaterThanOrEqualTo: "GREATER_THAN_OR_EQUAL_TO",
	Changes:              "CHANGES",
	ChangesTo:            "CHANGES_TO",
	ChangesFrom:          "CHANGES_FROM",
	Regex:                "REGEX",
	AvailDurationDown:    "AVAIL_DURATION_DOWN",
	AvailDurationNotUp:   "AVAIL_DURATION_NOT_UP",
}

var operatorTypes = [...]OperatorType{
	LessThan:             OperatorTypeStateless,
	LessThanOrEqualTo:    OperatorTypeStateless,
	Equals:               OperatorTypeStateless,
	GreaterThan:          OperatorTypeStateless,
	GreaterThanOrEqualTo: OperatorTypeStateless,
	Changes:              OperatorTypeStateful,
	ChangesTo:            OperatorTypeStateful,
	ChangesFrom:          OperatorTypeStateful,
	Regex:                OperatorTypeStateless,
	AvailDurationDown:    OperatorTypeStateful,
	AvailDurationNotUp:   OperatorTypeStateful,
}

// Operators returns every operator in declaration order.
func Operators() []Operator {
	ops := make([]Operator, len(operatorNames))
	for i := range operatorNames {
		ops[i] = Operator(i)
	}
	return ops
}

// Valid reports whether op is a member of the closed set.
func (op Operator) Valid() bool {
	return op >= LessThan && int(op) < len(operatorNames)
}

func (op Operator) String() string {
	if !op.Valid() {
		return fmt.Sprintf("Operator(%d)", int(op))
	}
	return operatorNames[op]
}

// DefaultType is the classification an operator carries before any element
// kind narrows it.
func (op Operator) DefaultType() OperatorType {
	if !op.Valid() {
		return OperatorTypeNone
	}
	return operatorTypes[op]
}

// IsChange reports whether op is one of the delta operators, the only ones
// under which a missing stored value is legal.
func (op Operator) IsChange() bool {
	return op == Changes || op == ChangesTo || op == ChangesFrom
}

// ParseOperator resolves an operator from its canonical name. Matching is
// case-insensitive and tolerates surrounding whitespace.
func ParseOperator(name string) (Operator, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range operatorNames {
		if n == normalized {
			return Operator(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOperator, name)
}

// MarshalText implements encoding.TextMarshaler.
func (op Operator) MarshalText() ([]byte, error) {
	if !op.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownOperator, int(op))
	}
	return []byte(op.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (op *Operator) UnmarshalText(text []byte) error {
	parsed, err := ParseOperator(string(text))
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}
