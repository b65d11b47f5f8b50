package alerts

import (
	"fmt"
	"regexp"
)

// EventElement matches event severities. An optional detail pattern further
// requires the event's detail text, passed as the first extra, to match.
type EventElement struct {
	core[Severity]
	detail *regexp.Regexp
}

// NewEventElement supports the ordinal operators and CHANGES. An empty
// detailPattern disables the detail filter.
func NewEventElement(op Operator, value *Severity, detailPattern string, conditionID int) (*EventElement, error) {
	e := &EventElement{}
	if err := e.init(KindEvent, op, nil, value, conditionID); err != nil {
		return nil, err
	}
	if detailPattern != "" {
		re, err := CompilePattern(detailPattern)
		if err != nil {
			return nil, &InvalidElementError{
				Kind: KindEvent, Operator: op, ConditionID: conditionID,
				Rule: fmt.Sprintf("invalid event detail pattern: %v", err),
			}
		}
		e.detail = re
	}
	return e, nil
}

// DetailPattern returns the compiled detail filter, or nil.
func (e *EventElement) DetailPattern() *regexp.Regexp {
	return e.detail
}

func (e *EventElement) Matches(provided Severity, extras ...any) (bool, error) {
	if e.detail != nil {
		detail, ok := firstString(extras)
		if !ok || !e.detail.MatchString(detail) {
			return false, nil
		}
	}
	return compareEnum(&e.core, provided)
}

func (e *EventElement) Process(provided any, extras ...any) (bool, error) {
	v, ok := asEnum[Severity](provided)
	if !ok {
		return ignore(&e.core, provided)
	}
	return e.process(func() (bool, error) { return e.Matches(v, extras...) })
}

func firstString(extras []any) (string, bool) {
	if len(extras) == 0 {
		return "", false
	}
	switch s := extras[0].(type) {
	case string:
		return s, true
	case fmt.Stringer:
		return s.String(), true
	}
	return "", false
}
