package alerts

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityOrdinalOperators(t *testing.T) {
	tests := []struct {
		op       Operator
		stored   Availability
		provided Availability
		want     bool
	}{
		{Equals, AvailabilityUp, AvailabilityUp, true},
		{Equals, AvailabilityUp, AvailabilityDown, false},
		{LessThan, AvailabilityUp, AvailabilityDown, true},
		{LessThan, AvailabilityUp, AvailabilityUp, false},
		{LessThanOrEqualTo, AvailabilityUp, AvailabilityUp, true},
		{GreaterThan, AvailabilityUp, AvailabilityDisabled, true},
		{GreaterThan, AvailabilityUp, AvailabilityDown, false},
		{GreaterThanOrEqualTo, AvailabilityDisabled, AvailabilityDisabled, true},
	}

	for _, tt := range tests {
		e, err := NewAvailabilityElement(tt.op, Ptr(tt.stored), nil, 1)
		require.NoError(t, err)
		got, err := e.Matches(tt.provided)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %s %s", tt.provided, tt.op, tt.stored)
	}
}

func TestAvailabilityChanges(t *testing.T) {
	e, err := NewAvailabilityElement(Changes, nil, nil, 1)
	require.NoError(t, err)

	got, _ := e.Matches(AvailabilityUp)
	assert.False(t, got, "first observation never matches")
	assert.Equal(t, AvailabilityUp, e.Value())

	got, _ = e.Matches(AvailabilityUp)
	assert.False(t, got)
	got, _ = e.Matches(AvailabilityDown)
	assert.True(t, got)
	assert.Equal(t, AvailabilityDown, e.Value())
}

func TestAvailabilityChangesToAndFrom(t *testing.T) {
	to, err := NewAvailabilityElement(ChangesTo, Ptr(AvailabilityUp), Ptr(AvailabilityDown), 1)
	require.NoError(t, err)

	seq := []struct {
		provided Availability
		want     bool
	}{
		{AvailabilityUp, false},
		{AvailabilityDown, true},
		{AvailabilityDown, false},
		{AvailabilityUnknown, false},
		{AvailabilityDown, true},
	}
	for i, s := range seq {
		got, err := to.Matches(s.provided)
		require.NoError(t, err)
		assert.Equal(t, s.want, got, "step %d", i)
		assert.Equal(t, s.provided, to.Value())
	}

	from, err := NewAvailabilityElement(ChangesFrom, nil, Ptr(AvailabilityUp), 2)
	require.NoError(t, err)
	got, _ := from.Matches(AvailabilityDown)
	assert.False(t, got, "nothing to leave yet")
	got, _ = from.Matches(AvailabilityUp)
	assert.False(t, got)
	got, _ = from.Matches(AvailabilityDown)
	assert.True(t, got)
	got, _ = from.Matches(AvailabilityUnknown)
	assert.False(t, got)
}

func TestEventElementDetailFilter(t *testing.T) {
	e, err := NewEventElement(GreaterThanOrEqualTo, Ptr(SeverityError), "disk", 1)
	require.NoError(t, err)
	require.NotNil(t, e.DetailPattern())

	got, err := e.Matches(SeverityFatal, "Disk /dev/sda1 is full")
	require.NoError(t, err)
	assert.True(t, got)

	got, _ = e.Matches(SeverityFatal, "network unreachable")
	assert.False(t, got)

	got, _ = e.Matches(SeverityFatal)
	assert.False(t, got, "missing detail cannot satisfy a filter")

	got, _ = e.Matches(SeverityWarn, "disk")
	assert.False(t, got)
}

func TestEventElementWithoutFilter(t *testing.T) {
	e, err := NewEventElement(Changes, nil, "", 1)
	require.NoError(t, err)
	assert.Nil(t, e.DetailPattern())

	got, _ := e.Process(SeverityInfo)
	assert.False(t, got)
	got, _ = e.Process(SeverityError, "anything")
	assert.True(t, got)
}

func TestEventElementFilteredChangesKeepsState(t *testing.T) {
	e, err := NewEventElement(Changes, nil, "^db", 1)
	require.NoError(t, err)

	got, _ := e.Matches(SeverityInfo, "db pool ok")
	assert.False(t, got)
	got, _ = e.Matches(SeverityError, "web request failed")
	assert.False(t, got)
	assert.Equal(t, SeverityInfo, e.Value(), "filtered events do not update state")
	got, _ = e.Matches(SeverityError, "db pool exhausted")
	assert.True(t, got)
}

func TestEnumTextEncoding(t *testing.T) {
	var payload struct {
		Avail    Availability `json:"avail"`
		Severity Severity     `json:"severity"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"avail":"down","severity":"warning"}`), &payload))
	assert.Equal(t, AvailabilityDown, payload.Avail)
	assert.Equal(t, SeverityWarn, payload.Severity)

	_, err := ParseAvailability("sideways")
	assert.Error(t, err)

	out, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"avail":"DOWN","severity":"WARN"}`, string(out))
}
