package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertcache/internal/alerts"
)

func TestBuildEveryCategory(t *testing.T) {
	tests := []struct {
		name string
		cond Condition
		kind alerts.Kind
	}{
		{"threshold", Condition{ID: 1, Category: CategoryThreshold, Operator: alerts.GreaterThan, Threshold: alerts.Ptr(80.0)}, alerts.KindNumeric},
		{"range", Condition{ID: 2, Category: CategoryRange, Operator: alerts.LessThanOrEqualTo, Threshold: alerts.Ptr(1.0), High: alerts.Ptr(5.0)}, alerts.KindRange},
		{"baseline", Condition{ID: 3, Category: CategoryBaseline, Operator: alerts.GreaterThan, Threshold: alerts.Ptr(0.9), Option: "max"}, alerts.KindBaseline},
		{"out of bounds", Condition{ID: 4, Category: CategoryOutOfBounds, Operator: alerts.GreaterThan, Threshold: alerts.Ptr(10.0)}, alerts.KindOutOfBounds},
		{"string", Condition{ID: 5, Category: CategoryString, Operator: alerts.Regex, Text: alerts.Ptr("err")}, alerts.KindString},
		{"availability", Condition{ID: 6, Category: CategoryAvailability, Operator: alerts.ChangesTo, Option: "DOWN"}, alerts.KindAvailability},
		{"event", Condition{ID: 7, Category: CategoryEvent, Operator: alerts.GreaterThanOrEqualTo, Severity: alerts.Ptr(alerts.SeverityWarn), Pattern: "disk"}, alerts.KindEvent},
		{"call time", Condition{ID: 8, Category: CategoryCallTime, Operator: alerts.Changes, Threshold: alerts.Ptr(0.5), Option: "AVG", Comparator: "HI"}, alerts.KindCallTime},
		{"configuration", Condition{ID: 9, Category: CategoryConfiguration, Operator: alerts.Changes}, alerts.KindConfiguration},
		{"drift", Condition{ID: 10, Category: CategoryDrift, Operator: alerts.Changes}, alerts.KindDrift},
		{"availability duration", Condition{ID: 11, Category: CategoryAvailabilityDuration, Operator: alerts.AvailDurationDown, DurationSeconds: 300}, alerts.KindAvailabilityDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Build(tt.cond)
			require.NoError(t, err)
			require.NotNil(t, e)
			assert.Equal(t, tt.kind, e.Kind())
			assert.Equal(t, tt.cond.ID, e.ConditionID())
			assert.Equal(t, tt.cond.Operator, e.Operator())
		})
	}
}

func TestBuildDurationSecondsAndInitialAvailability(t *testing.T) {
	e, err := Build(Condition{ID: 1, Category: CategoryAvailabilityDuration, Operator: alerts.AvailDurationNotUp, DurationSeconds: 90})
	require.NoError(t, err)

	d := e.(*alerts.AvailabilityDurationElement)
	assert.Equal(t, 90*time.Second, d.Duration())
	assert.Nil(t, d.Value(), "no availability reported yet")

	e, err = Build(Condition{
		ID: 2, Category: CategoryAvailabilityDuration, Operator: alerts.AvailDurationDown,
		Availability: alerts.Ptr(alerts.AvailabilityUp), DurationSeconds: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, alerts.AvailabilityUp, e.Value())
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name    string
		cond    Condition
		wantErr error
	}{
		{"unknown category", Condition{ID: 1, Category: "bogus", Operator: alerts.Equals}, ErrUnknownCategory},
		{"unsupported operator", Condition{ID: 2, Category: CategoryThreshold, Operator: alerts.Regex, Threshold: alerts.Ptr(1.0)}, alerts.ErrUnsupportedOperator},
		{"missing option", Condition{ID: 3, Category: CategoryAvailability, Operator: alerts.ChangesFrom}, alerts.ErrInvalidElement},
		{"bad regex", Condition{ID: 4, Category: CategoryString, Operator: alerts.Regex, Text: alerts.Ptr("([")}, alerts.ErrInvalidElement},
		{"zero duration", Condition{ID: 5, Category: CategoryAvailabilityDuration, Operator: alerts.AvailDurationDown}, alerts.ErrInvalidElement},
		{"drift equals", Condition{ID: 6, Category: CategoryDrift, Operator: alerts.Equals}, alerts.ErrUnsupportedOperator},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := Build(tt.cond)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, e, "failed builds return a nil interface")
		})
	}

	_, err := Build(Condition{ID: 7, Category: CategoryAvailability, Operator: alerts.ChangesTo, Option: "SIDEWAYS"})
	assert.Error(t, err)
	_, err = Build(Condition{ID: 8, Category: CategoryCallTime, Operator: alerts.Changes, Threshold: alerts.Ptr(0.1), Option: "AVG", Comparator: "XX"})
	assert.Error(t, err)
}

func TestConditionJSON(t *testing.T) {
	raw := `{
		"id": 12,
		"category": "threshold",
		"operator": "GREATER_THAN",
		"source": "cpu.load",
		"resource_id": 3,
		"threshold": 0.75
	}`

	var c Condition
	require.NoError(t, json.Unmarshal([]byte(raw), &c))
	assert.Equal(t, 12, c.ID)
	assert.Equal(t, alerts.GreaterThan, c.Operator)
	assert.Equal(t, "cpu.load", c.Source)
	require.NotNil(t, c.Threshold)
	assert.InDelta(t, 0.75, *c.Threshold, 1e-12)

	e, err := Build(c)
	require.NoError(t, err)
	ok, err := e.Process(0.8)
	require.NoError(t, err)
	assert.True(t, ok)
}
