package models

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"alertcache/internal/alerts"
)

// MatchSignal is handed to the alert-firing pipeline whenever a condition
// is satisfied
type MatchSignal struct {
	ID          string `json:"id"`
	ConditionID int    `json:"condition_id"`
	Operator    string `json:"operator"`
	Kind        string `json:"kind"`
	Source      string `json:"source,omitempty"`
	ResourceID  int    `json:"resource_id"`
	DataPointID string `json:"data_point_id,omitempty"`
	Value       any    `json:"value,omitempty"`

	// Deferred is set for matches produced by an availability duration re-check
	Deferred  bool      `json:"deferred"`
	MatchedAt time.Time `json:"matched_at"`

	// Partition by condition so a condition's signals stay ordered
	PartitionKey string `json:"partition_key"`
}

// NewMatchSignal creates a signal for an element that matched a data point
func NewMatchSignal(e alerts.Element, dp *DataPoint) *MatchSignal {
	return &MatchSignal{
		ID:           uuid.New().String(),
		ConditionID:  e.ConditionID(),
		Operator:     e.Operator().String(),
		Kind:         e.Kind().String(),
		Source:       dp.Source,
		ResourceID:   dp.ResourceID,
		DataPointID:  dp.ID,
		Value:        dp.Value(),
		MatchedAt:    time.Now().UTC(),
		PartitionKey: strconv.Itoa(e.ConditionID()),
	}
}

// NewDeferredSignal creates a signal for a duration condition whose re-check
// confirmed the availability state persisted
func NewDeferredSignal(c alerts.DurationComposite) *MatchSignal {
	return &MatchSignal{
		ID:           uuid.New().String(),
		ConditionID:  c.ConditionID,
		Operator:     c.Operator.String(),
		Kind:         alerts.KindAvailabilityDuration.String(),
		ResourceID:   c.ResourceID,
		Value:        c.Availability,
		Deferred:     true,
		MatchedAt:    time.Now().UTC(),
		PartitionKey: strconv.Itoa(c.ConditionID),
	}
}
