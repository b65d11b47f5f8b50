package cache

import (
	"errors"
	"fmt"
	"time"

	"alertcache/internal/alerts"
)

// Category selects which cache element a condition is built into.
type Category string

const (
	CategoryThreshold            Category = "threshold"
	CategoryRange                Category = "range"
	CategoryBaseline             Category = "baseline"
	CategoryOutOfBounds          Category = "out_of_bounds"
	CategoryString               Category = "string"
	CategoryAvailability         Category = "availability"
	CategoryEvent                Category = "event"
	CategoryCallTime             Category = "call_time"
	CategoryConfiguration        Category = "configuration"
	CategoryDrift                Category = "drift"
	CategoryAvailabilityDuration Category = "availability_duration"
)

// ErrUnknownCategory is returned for a condition whose category has no
// element kind.
var ErrUnknownCategory = errors.New("unknown condition category")

// Condition is the flat definition of one alert condition as the loader
// hands it to the cache. Which fields are read depends on Category.
type Condition struct {
	ID       int             `json:"id"`
	Category Category        `json:"category"`
	Operator alerts.Operator `json:"operator"`

	// Source is the chain key data points are matched on
	Source     string `json:"source"`
	ResourceID int    `json:"resource_id"`

	// Threshold is the numeric comparison value, the low end of a range, or
	// the relative change of a call-time CHANGES condition
	Threshold *float64 `json:"threshold,omitempty"`
	// High is the upper end of a range
	High *float64 `json:"high,omitempty"`
	// Text is the string comparison value or REGEX pattern
	Text         *string              `json:"text,omitempty"`
	Availability *alerts.Availability `json:"availability,omitempty"`
	Severity     *alerts.Severity     `json:"severity,omitempty"`

	// Option is the operator option: the CHANGES_TO/CHANGES_FROM target
	// availability, the baseline statistic or the call-time statistic
	Option string `json:"option,omitempty"`
	// Comparator is the call-time change direction: LO, CH or HI
	Comparator string `json:"comparator,omitempty"`
	// Pattern filters event details or call-time destinations
	Pattern         string `json:"pattern,omitempty"`
	DurationSeconds int64  `json:"duration_seconds,omitempty"`
}

// Build constructs the cache element for c.
func Build(c Condition) (alerts.Element, error) {
	switch c.Category {
	case CategoryThreshold:
		return nilSafe(alerts.NewNumericElement(c.Operator, c.Threshold, c.ID))
	case CategoryRange:
		return nilSafe(alerts.NewRangeElement(c.Operator, c.Threshold, c.High, c.ID))
	case CategoryBaseline:
		return nilSafe(alerts.NewBaselineElement(c.Operator, c.Threshold, alerts.BaselineStat(c.Option), c.ID))
	case CategoryOutOfBounds:
		return nilSafe(alerts.NewOutOfBoundsElement(c.Operator, c.Threshold, c.ID))
	case CategoryString:
		return nilSafe(alerts.NewStringElement(c.Operator, c.Text, c.ID))
	case CategoryAvailability:
		var target *alerts.Availability
		if c.Option != "" {
			a, err := alerts.ParseAvailability(c.Option)
			if err != nil {
				return nil, fmt.Errorf("condition %d: %w", c.ID, err)
			}
			target = &a
		}
		return nilSafe(alerts.NewAvailabilityElement(c.Operator, c.Availability, target, c.ID))
	case CategoryEvent:
		return nilSafe(alerts.NewEventElement(c.Operator, c.Severity, c.Pattern, c.ID))
	case CategoryCallTime:
		var stat *alerts.CallTimeStat
		if c.Option != "" {
			s, err := alerts.ParseCallTimeStat(c.Option)
			if err != nil {
				return nil, fmt.Errorf("condition %d: %w", c.ID, err)
			}
			stat = &s
		}
		cmp, err := alerts.ParseChangeComparator(c.Comparator)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", c.ID, err)
		}
		return nilSafe(alerts.NewCallTimeElement(c.Operator, c.Threshold, stat, cmp, c.Pattern, c.ID))
	case CategoryConfiguration:
		return nilSafe(alerts.NewConfigurationElement(c.Operator, nil, c.ID))
	case CategoryDrift:
		return nilSafe(alerts.NewDriftElement(c.Operator, c.ID))
	case CategoryAvailabilityDuration:
		// nil availability: the first report for the resource opens a period
		d := time.Duration(c.DurationSeconds) * time.Second
		return nilSafe(alerts.NewAvailabilityDurationElement(c.Operator, c.Availability, d, c.ID))
	}
	return nil, fmt.Errorf("%w %q (condition %d)", ErrUnknownCategory, c.Category, c.ID)
}

// nilSafe keeps a typed nil element pointer from escaping as a non-nil
// interface when construction fails.
func nilSafe[E alerts.Element](e E, err error) (alerts.Element, error) {
	if err != nil {
		return nil, err
	}
	return e, nil
}
