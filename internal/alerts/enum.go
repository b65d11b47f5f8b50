package alerts

import (
	"fmt"
	"strings"
)

// Enum is a finite, ordered enumeration an EnumElement can compare.
type Enum interface {
	comparable
	Ordinal() int
	String() string
}

// EnumElement compares enumeration values by equality or ordinal position and
// detects transitions between them.
type EnumElement[E Enum] struct {
	core[E]
}

// AvailabilityElement matches resource availability states.
type AvailabilityElement = EnumElement[Availability]

// NewAvailabilityElement supports the ordinal operators, CHANGES, CHANGES_TO
// and CHANGES_FROM. option holds the target state for CHANGES_TO and
// CHANGES_FROM and is ignored otherwise.
func NewAvailabilityElement(op Operator, value *Availability, option *Availability, conditionID int) (*AvailabilityElement, error) {
	return newEnumElement(KindAvailability, op, value, option, conditionID)
}

func newEnumElement[E Enum](kind Kind, op Operator, value *E, option *E, conditionID int) (*EnumElement[E], error) {
	e := &EnumElement[E]{}
	if err := e.init(kind, op, enumOption(op, option), value, conditionID); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *EnumElement[E]) Matches(provided E, _ ...any) (bool, error) {
	return compareEnum(&e.core, provided)
}

func (e *EnumElement[E]) Process(provided any, extras ...any) (bool, error) {
	v, ok := asEnum[E](provided)
	if !ok {
		return ignore(&e.core, provided)
	}
	return e.process(func() (bool, error) { return e.Matches(v, extras...) })
}

func compareEnum[E Enum](c *core[E], provided E) (bool, error) {
	switch c.operator {
	case Changes:
		prev := c.exchange(provided)
		if prev == nil {
			return false, nil
		}
		return *prev != provided, nil
	case ChangesTo:
		target := c.option.(E)
		prev := c.exchange(provided)
		return (prev == nil || *prev != target) && provided == target, nil
	case ChangesFrom:
		target := c.option.(E)
		prev := c.exchange(provided)
		return prev != nil && *prev == target && provided != target, nil
	}

	stored := *c.load()
	switch c.operator {
	case Equals:
		return provided == stored, nil
	case LessThan:
		return provided.Ordinal() < stored.Ordinal(), nil
	case LessThanOrEqualTo:
		return provided.Ordinal() <= stored.Ordinal(), nil
	case GreaterThan:
		return provided.Ordinal() > stored.Ordinal(), nil
	case GreaterThanOrEqualTo:
		return provided.Ordinal() >= stored.Ordinal(), nil
	}
	return false, c.unsupported()
}

func enumOption[E Enum](op Operator, option *E) any {
	if option == nil || (op != ChangesTo && op != ChangesFrom) {
		return nil
	}
	return *option
}

func asEnum[E Enum](v any) (E, bool) {
	switch t := v.(type) {
	case E:
		return t, true
	case *E:
		if t != nil {
			return *t, true
		}
	}
	var zero E
	return zero, false
}

// Availability is the observed availability of a resource. Declaration order
// is the ordinal order.
type Availability int

const (
	AvailabilityDown Availability = iota
	AvailabilityUp
	AvailabilityDisabled
	AvailabilityUnknown
	AvailabilityMissing
)

var availabilityNames = [...]string{"DOWN", "UP", "DISABLED", "UNKNOWN", "MISSING"}

func (a Availability) Ordinal() int { return int(a) }

func (a Availability) String() string {
	if a < 0 || int(a) >= len(availabilityNames) {
		return fmt.Sprintf("Availability(%d)", int(a))
	}
	return availabilityNames[a]
}

// ParseAvailability resolves an availability from its name, case-insensitively.
func ParseAvailability(name string) (Availability, error) {
	return parseEnumName[Availability](availabilityNames[:], "availability", name)
}

func (a Availability) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

func (a *Availability) UnmarshalText(text []byte) error {
	v, err := ParseAvailability(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Severity is the severity of a resource event, from least to most severe.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
	SeverityFatal
)

var severityNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (s Severity) Ordinal() int { return int(s) }

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// ParseSeverity resolves a severity from its name, case-insensitively.
// "WARNING" is accepted as an alias of WARN.
func ParseSeverity(name string) (Severity, error) {
	if strings.EqualFold(strings.TrimSpace(name), "WARNING") {
		return SeverityWarn, nil
	}
	return parseEnumName[Severity](severityNames[:], "severity", name)
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func parseEnumName[E ~int](names []string, what, name string) (E, error) {
	normalized := strings.ToUpper(strings.TrimSpace(name))
	for i, n := range names {
		if n == normalized {
			return E(i), nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q", what, name)
}
