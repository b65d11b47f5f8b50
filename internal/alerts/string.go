package alerts

import (
	"fmt"
	"regexp"
)

// StringElement compares string traits lexicographically, by equality, by
// regular expression, or detects changes.
type StringElement struct {
	core[string]
	pattern *regexp.Regexp
}

// NewStringElement supports GREATER_THAN, LESS_THAN, EQUALS, CHANGES and
// REGEX. For REGEX the value is the pattern; see CompilePattern.
func NewStringElement(op Operator, value *string, conditionID int) (*StringElement, error) {
	e := &StringElement{}
	if err := e.init(KindString, op, nil, value, conditionID); err != nil {
		return nil, err
	}
	if op == Regex {
		re, err := CompilePattern(*value)
		if err != nil {
			return nil, &InvalidElementError{
				Kind: KindString, Operator: op, ConditionID: conditionID,
				Rule: fmt.Sprintf("invalid regular expression: %v", err),
			}
		}
		e.pattern = re
	}
	return e, nil
}

func (e *StringElement) Matches(provided string, _ ...any) (bool, error) {
	if e.operator == Changes {
		prev := e.exchange(provided)
		if prev == nil {
			return false, nil
		}
		return *prev != provided, nil
	}

	stored := *e.load()
	switch e.operator {
	case GreaterThan:
		return provided > stored, nil
	case LessThan:
		return provided < stored, nil
	case Equals:
		return provided == stored, nil
	case Regex:
		return e.pattern.MatchString(provided), nil
	}
	return false, e.unsupported()
}

// Process never matches a nil value, for any operator.
func (e *StringElement) Process(provided any, extras ...any) (bool, error) {
	var v string
	switch s := provided.(type) {
	case string:
		v = s
	case *string:
		if s == nil {
			return false, nil
		}
		v = *s
	case fmt.Stringer:
		v = s.String()
	default:
		return ignore(&e.core, provided)
	}
	return e.process(func() (bool, error) { return e.Matches(v, extras...) })
}
