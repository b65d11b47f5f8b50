package models

import (
	"errors"
	"fmt"
	"time"

	"alertcache/internal/alerts"
)

// DataKind identifies which producer a data point came from
type DataKind string

const (
	KindMeasurement   DataKind = "measurement"
	KindTrait         DataKind = "trait"
	KindAvailability  DataKind = "availability"
	KindEvent         DataKind = "event"
	KindCallTime      DataKind = "call_time"
	KindConfiguration DataKind = "configuration"
	KindDrift         DataKind = "drift"
)

// DataPoint is one observation delivered by a data producer. Exactly one of
// the payload fields is meaningful, selected by Kind.
type DataPoint struct {
	// Unique identifier for the data point
	ID string `json:"id"`

	Kind DataKind `json:"kind"`

	// Source is the chain key: the metric schedule, trait or resource the
	// conditions watch
	Source string `json:"source"`

	ResourceID int `json:"resource_id"`

	// Timestamp when the value was observed
	Timestamp time.Time `json:"timestamp"`

	Number       *float64              `json:"number,omitempty"`
	Text         *string               `json:"text,omitempty"`
	Availability *alerts.Availability  `json:"availability,omitempty"`
	Severity     *alerts.Severity      `json:"severity,omitempty"`
	Detail       string                `json:"detail,omitempty"`
	CallTime     *alerts.CallTimeValue `json:"call_time,omitempty"`
	Config       map[string]any        `json:"config,omitempty"`
}

// Validation errors
var (
	ErrEmptyID          = errors.New("data point ID cannot be empty")
	ErrEmptySource      = errors.New("source cannot be empty")
	ErrZeroTimestamp    = errors.New("timestamp cannot be zero")
	ErrFutureTimestamp  = errors.New("timestamp cannot be in the future")
	ErrInvalidTimestamp = errors.New("invalid timestamp format")
	ErrInvalidKind      = errors.New("invalid data point kind")
	ErrMissingPayload   = errors.New("payload missing for data point kind")
	ErrTooManyKeys      = errors.New("too many configuration keys")
	ErrTextTooLong      = errors.New("trait text exceeds maximum length")
)

const (
	MaxConfigKeys = 512
	MaxTextLength = 65536 // 64KB max trait size
)

// Validate checks if the DataPoint has all required fields and a payload
// matching its kind
func (d *DataPoint) Validate() error {
	if d.ID == "" {
		return ErrEmptyID
	}

	if !d.Kind.IsValid() {
		return ErrInvalidKind
	}

	if d.Source == "" {
		return ErrEmptySource
	}

	if d.Timestamp.IsZero() {
		return ErrZeroTimestamp
	}

	if d.Timestamp.After(time.Now().Add(time.Minute)) {
		return ErrFutureTimestamp
	}

	var missing bool
	switch d.Kind {
	case KindMeasurement:
		missing = d.Number == nil
	case KindAvailability:
		missing = d.Availability == nil
	case KindEvent:
		missing = d.Severity == nil
	case KindCallTime:
		missing = d.CallTime == nil
	}
	if missing {
		return fmt.Errorf("%w: %s", ErrMissingPayload, d.Kind)
	}

	if d.Text != nil && len(*d.Text) > MaxTextLength {
		return ErrTextTooLong
	}

	if len(d.Config) > MaxConfigKeys {
		return ErrTooManyKeys
	}

	return nil
}

// Value returns the payload handed to cache elements. Traits may carry a nil
// text, which elements treat as no match.
func (d *DataPoint) Value() any {
	switch d.Kind {
	case KindMeasurement:
		return d.Number
	case KindTrait:
		return d.Text
	case KindAvailability:
		return d.Availability
	case KindEvent:
		return d.Severity
	case KindCallTime:
		return d.CallTime
	case KindConfiguration:
		return d.Config
	}
	return nil
}

// Extras returns the additional arguments elements receive alongside Value.
func (d *DataPoint) Extras() []any {
	if d.Kind == KindEvent {
		return []any{d.Detail}
	}
	return nil
}

// IsValid checks if the kind is known
func (k DataKind) IsValid() bool {
	switch k {
	case KindMeasurement, KindTrait, KindAvailability, KindEvent, KindCallTime, KindConfiguration, KindDrift:
		return true
	default:
		return false
	}
}
