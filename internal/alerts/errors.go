package alerts

import (
	"errors"
	"fmt"
)

// Sentinel errors
var (
	ErrUnknownOperator     = errors.New("unknown alert condition operator")
	ErrUnsupportedOperator = errors.New("unsupported operator for cache element")
	ErrInvalidElement      = errors.New("invalid cache element")
)

// UnsupportedOperatorError is returned when an element kind cannot evaluate
// the requested operator.
type UnsupportedOperatorError struct {
	Kind        Kind
	Operator    Operator
	ConditionID int
}

func (e *UnsupportedOperatorError) Error() string {
	return fmt.Sprintf("%s does not support operator %s (condition %d)",
		e.Kind, e.Operator, e.ConditionID)
}

func (e *UnsupportedOperatorError) Unwrap() error { return ErrUnsupportedOperator }

// InvalidElementError is returned when a condition's value or option does not
// satisfy the construction rules for its operator.
type InvalidElementError struct {
	Kind        Kind
	Operator    Operator
	ConditionID int
	Rule        string
}

func (e *InvalidElementError) Error() string {
	return fmt.Sprintf("invalid %s for condition %d with operator %s: %s",
		e.Kind, e.ConditionID, e.Operator, e.Rule)
}

func (e *InvalidElementError) Unwrap() error { return ErrInvalidElement }

// evalUnsupported reports an operator that reached evaluation although
// construction should have rejected it.
func evalUnsupported(kind Kind, op Operator, conditionID int) error {
	return fmt.Errorf("evaluating condition %d: %w", conditionID,
		&UnsupportedOperatorError{Kind: kind, Operator: op, ConditionID: conditionID})
}
