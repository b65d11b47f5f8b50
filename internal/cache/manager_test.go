package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alertcache/internal/alerts"
	"alertcache/internal/models"
	"alertcache/internal/state"
)

func measurement(id, source string, v float64) *models.DataPoint {
	return &models.DataPoint{
		ID:        id,
		Kind:      models.KindMeasurement,
		Source:    source,
		Timestamp: time.Now().UTC(),
		Number:    alerts.Ptr(v),
	}
}

func availability(id string, resourceID int, a alerts.Availability, ts time.Time) *models.DataPoint {
	return &models.DataPoint{
		ID:           id,
		Kind:         models.KindAvailability,
		Source:       "avail",
		ResourceID:   resourceID,
		Timestamp:    ts,
		Availability: alerts.Ptr(a),
	}
}

func drain(m *Manager) []*models.MatchSignal {
	var out []*models.MatchSignal
	for {
		select {
		case sig := <-m.Signals():
			out = append(out, sig)
		default:
			return out
		}
	}
}

func TestManagerDispatchQueuesSignals(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{SignalBuffer: 16})
	defer m.Close()

	res, err := m.Load(ctx, []Condition{
		{ID: 1, Category: CategoryThreshold, Operator: alerts.GreaterThan, Source: "cpu", Threshold: alerts.Ptr(80.0)},
		{ID: 2, Category: CategoryThreshold, Operator: alerts.Changes, Source: "cpu"},
		{ID: 3, Category: CategoryThreshold, Operator: alerts.LessThan, Source: "mem", Threshold: alerts.Ptr(10.0)},
	}, LoadSkipInvalid)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Loaded)

	n, err := m.Dispatch(ctx, measurement("dp-1", "cpu", 50))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "first observation under CHANGES never matches")

	n, err = m.Dispatch(ctx, measurement("dp-2", "cpu", 90))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	signals := drain(m)
	require.Len(t, signals, 2)
	ids := []int{signals[0].ConditionID, signals[1].ConditionID}
	assert.ElementsMatch(t, []int{1, 2}, ids)
	for _, sig := range signals {
		assert.Equal(t, "dp-2", sig.DataPointID)
		assert.Equal(t, "cpu", sig.Source)
		assert.False(t, sig.Deferred)
		assert.NotEmpty(t, sig.ID)
	}

	stats := m.Stats()
	assert.Equal(t, 3, stats.Conditions)
	assert.Equal(t, 2, stats.Sources)
	assert.Equal(t, uint64(2), stats.Dispatched)
	assert.Equal(t, uint64(2), stats.Emitted)
}

func TestManagerLoadPolicies(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{})
	defer m.Close()

	good := Condition{ID: 1, Category: CategoryThreshold, Operator: alerts.Equals, Source: "s", Threshold: alerts.Ptr(1.0)}
	bad := Condition{ID: 2, Category: CategoryThreshold, Operator: alerts.Regex, Source: "s", Threshold: alerts.Ptr(1.0)}
	noSource := Condition{ID: 3, Category: CategoryDrift, Operator: alerts.Changes}

	res, err := m.Load(ctx, []Condition{good, bad, noSource}, LoadSkipInvalid)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loaded)
	require.Len(t, res.Rejected, 2)
	assert.Equal(t, 2, res.Rejected[0].ConditionID)
	assert.Equal(t, 3, res.Rejected[1].ConditionID)

	other := Condition{ID: 4, Category: CategoryThreshold, Operator: alerts.Equals, Source: "s", Threshold: alerts.Ptr(2.0)}
	_, err = m.Load(ctx, []Condition{other, bad}, LoadAbortOnError)
	require.Error(t, err)
	assert.ErrorIs(t, err, alerts.ErrUnsupportedOperator)
	assert.Equal(t, 1, m.Stats().Conditions, "aborted load keeps the previous cache")

	n, err := m.Dispatch(ctx, measurement("dp", "s", 1))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestManagerLoadRejectsDuplicateIDs(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{SignalBuffer: 4})
	defer m.Close()

	first := Condition{ID: 7, Category: CategoryThreshold, Operator: alerts.GreaterThan, Source: "cpu", Threshold: alerts.Ptr(10.0)}
	again := Condition{ID: 7, Category: CategoryThreshold, Operator: alerts.LessThan, Source: "mem", Threshold: alerts.Ptr(1.0)}

	res, err := m.Load(ctx, []Condition{first, again}, LoadSkipInvalid)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Loaded)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, 7, res.Rejected[0].ConditionID)
	assert.Contains(t, res.Rejected[0].Error, "duplicate")

	stats := m.Stats()
	assert.Equal(t, 1, stats.Conditions)
	assert.Equal(t, 1, stats.Elements)

	n, err := m.Dispatch(ctx, measurement("dp", "cpu", 11))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "the first definition is the one kept")

	_, err = m.Load(ctx, []Condition{first, again}, LoadAbortOnError)
	assert.ErrorIs(t, err, ErrInvalidCondition)
}

func TestManagerActivityCarriesAcrossLoads(t *testing.T) {
	ctx := context.Background()
	store := state.NewMemoryStore()
	m := NewManager(Config{Activity: store, SignalBuffer: 8})
	defer m.Close()

	conds := []Condition{
		{ID: 1, Category: CategoryThreshold, Operator: alerts.GreaterThan, Source: "cpu", Threshold: alerts.Ptr(1.0)},
		{ID: 2, Category: CategoryThreshold, Operator: alerts.GreaterThan, Source: "cpu", Threshold: alerts.Ptr(1.0)},
	}
	_, err := m.Load(ctx, conds, LoadSkipInvalid)
	require.NoError(t, err)

	m.SetActivity(ctx, 2, false)
	_, err = m.Load(ctx, conds, LoadSkipInvalid)
	require.NoError(t, err)

	n, err := m.Dispatch(ctx, measurement("dp", "cpu", 5))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "inactive condition matches but does not fire")
	signals := drain(m)
	require.Len(t, signals, 1)
	assert.Equal(t, 1, signals[0].ConditionID)
	assert.Equal(t, uint64(2), m.Stats().Matched)

	_, err = m.Load(ctx, conds[:1], LoadSkipInvalid)
	require.NoError(t, err)
	assert.Equal(t, alerts.ActivityUnknown, store.Get(ctx, 2), "removed conditions are forgotten")
}

func TestManagerAvailabilityDuration(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{SignalBuffer: 8})
	defer m.Close()

	type call struct {
		conditionID int
		resource    alerts.Resource
		start       time.Time
	}
	var calls []call
	m.SetScheduler(alerts.DurationSchedulerFunc(func(e *alerts.AvailabilityDurationElement, r alerts.Resource, start time.Time) {
		calls = append(calls, call{e.ConditionID(), r, start})
	}))

	_, err := m.Load(ctx, []Condition{
		{ID: 5, Category: CategoryAvailabilityDuration, Operator: alerts.AvailDurationDown, ResourceID: 77, DurationSeconds: 60},
		{ID: 6, Category: CategoryAvailability, Operator: alerts.ChangesTo, Source: "avail", Option: "DOWN"},
	}, LoadSkipInvalid)
	require.NoError(t, err)

	t0 := time.Now().UTC().Add(-time.Minute)
	_, err = m.Dispatch(ctx, availability("a1", 77, alerts.AvailabilityUp, t0))
	require.NoError(t, err)
	assert.Empty(t, calls)

	n, err := m.Dispatch(ctx, availability("a2", 77, alerts.AvailabilityDown, t0.Add(time.Second)))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "CHANGES_TO DOWN fires on the transition")
	require.Len(t, calls, 1)
	assert.Equal(t, 5, calls[0].conditionID)
	assert.Equal(t, 77, calls[0].resource.ID)
	assert.Equal(t, t0.Add(time.Second), calls[0].start)

	_, err = m.Dispatch(ctx, availability("a3", 77, alerts.AvailabilityDown, t0.Add(2*time.Second)))
	require.NoError(t, err)
	assert.Len(t, calls, 1, "staying down schedules nothing new")

	avail, ok := m.CurrentAvailability(77)
	require.True(t, ok)
	assert.Equal(t, alerts.AvailabilityDown, avail)

	_, ok = m.CurrentAvailability(78)
	assert.False(t, ok)
}

func TestManagerDurationFirstReportAfterLoad(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{SignalBuffer: 8})
	defer m.Close()

	var scheduled []int
	m.SetScheduler(alerts.DurationSchedulerFunc(func(e *alerts.AvailabilityDurationElement, r alerts.Resource, _ time.Time) {
		scheduled = append(scheduled, r.ID)
	}))

	_, err := m.Load(ctx, []Condition{
		{ID: 5, Category: CategoryAvailabilityDuration, Operator: alerts.AvailDurationNotUp, ResourceID: 77, DurationSeconds: 60},
		{ID: 6, Category: CategoryAvailabilityDuration, Operator: alerts.AvailDurationDown, ResourceID: 78, DurationSeconds: 60},
	}, LoadSkipInvalid)
	require.NoError(t, err)

	_, err = m.Dispatch(ctx, availability("a1", 77, alerts.AvailabilityDown, time.Now()))
	require.NoError(t, err)
	_, err = m.Dispatch(ctx, availability("a2", 78, alerts.AvailabilityDown, time.Now()))
	require.NoError(t, err)
	assert.Equal(t, []int{77, 78}, scheduled, "a resource already down when loaded opens a period on its first report")

	// reload with the availability now known: no new edge
	_, err = m.Load(ctx, []Condition{
		{ID: 5, Category: CategoryAvailabilityDuration, Operator: alerts.AvailDurationNotUp, ResourceID: 77, DurationSeconds: 60},
	}, LoadSkipInvalid)
	require.NoError(t, err)
	_, err = m.Dispatch(ctx, availability("a3", 77, alerts.AvailabilityDown, time.Now()))
	require.NoError(t, err)
	assert.Len(t, scheduled, 2)
}

func TestManagerDurationWithoutScheduler(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{})
	defer m.Close()

	_, err := m.Load(ctx, []Condition{
		{ID: 5, Category: CategoryAvailabilityDuration, Operator: alerts.AvailDurationNotUp, ResourceID: 1, DurationSeconds: 1},
	}, LoadSkipInvalid)
	require.NoError(t, err)

	_, err = m.Dispatch(ctx, availability("a", 1, alerts.AvailabilityDown, time.Now()))
	assert.Error(t, err)
}

func TestManagerFireDeferred(t *testing.T) {
	m := NewManager(Config{SignalBuffer: 4})
	defer m.Close()

	e, err := alerts.NewAvailabilityDurationElement(alerts.AvailDurationDown, alerts.Ptr(alerts.AvailabilityDown), time.Minute, 9)
	require.NoError(t, err)
	e.SetActive(true)

	m.FireDeferred(e, e.Composite(alerts.Resource{ID: 3}, alerts.AvailabilityDown))
	signals := drain(m)
	require.Len(t, signals, 1)
	assert.True(t, signals[0].Deferred)
	assert.Equal(t, 9, signals[0].ConditionID)
	assert.Equal(t, 3, signals[0].ResourceID)

	e.SetActive(false)
	m.FireDeferred(e, e.Composite(alerts.Resource{ID: 3}, alerts.AvailabilityDown))
	assert.Empty(t, drain(m))
}

func TestManagerClose(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{SignalBuffer: 4})

	_, err := m.Load(ctx, []Condition{
		{ID: 1, Category: CategoryDrift, Operator: alerts.Changes, Source: "drift"},
	}, LoadSkipInvalid)
	require.NoError(t, err)

	n, err := m.Dispatch(ctx, &models.DataPoint{ID: "d", Kind: models.KindDrift, Source: "drift", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, err = m.Dispatch(ctx, measurement("x", "drift", 1))
	assert.ErrorIs(t, err, ErrClosed)

	sig, ok := <-m.Signals()
	require.True(t, ok, "queued signals survive Close")
	assert.Equal(t, 1, sig.ConditionID)
	_, ok = <-m.Signals()
	assert.False(t, ok)
}

func TestManagerEmitHonoursContext(t *testing.T) {
	m := NewManager(Config{SignalBuffer: 1})
	defer m.Close()

	_, err := m.Load(context.Background(), []Condition{
		{ID: 1, Category: CategoryDrift, Operator: alerts.Changes, Source: "d"},
		{ID: 2, Category: CategoryDrift, Operator: alerts.Changes, Source: "d"},
	}, LoadSkipInvalid)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	n, err := m.Dispatch(ctx, &models.DataPoint{ID: "d", Kind: models.KindDrift, Source: "d", Timestamp: time.Now()})
	require.NoError(t, err)
	assert.Equal(t, 1, n, "second signal is dropped once the queue is full and ctx expires")
	assert.Equal(t, uint64(1), m.Stats().Dropped)
}

func TestManagerFullQueueDoesNotBlockLoad(t *testing.T) {
	ctx := context.Background()
	m := NewManager(Config{SignalBuffer: 1})

	drift := []Condition{{ID: 1, Category: CategoryDrift, Operator: alerts.Changes, Source: "d"}}
	_, err := m.Load(ctx, drift, LoadSkipInvalid)
	require.NoError(t, err)

	dp := &models.DataPoint{ID: "d", Kind: models.KindDrift, Source: "d", Timestamp: time.Now()}
	n, err := m.Dispatch(ctx, dp)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	// queue is full: this dispatch blocks in the send until Close
	blocked := make(chan int, 1)
	go func() {
		n, _ := m.Dispatch(ctx, dp)
		blocked <- n
	}()
	require.Eventually(t, func() bool { return m.Stats().Dispatched == 2 }, time.Second, time.Millisecond)

	loaded := make(chan error, 1)
	go func() {
		_, err := m.Load(ctx, append(drift, Condition{ID: 2, Category: CategoryDrift, Operator: alerts.Changes, Source: "e"}), LoadSkipInvalid)
		loaded <- err
	}()
	select {
	case err := <-loaded:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("load stalled behind a blocked signal send")
	}

	n, err = m.Dispatch(ctx, &models.DataPoint{ID: "e", Kind: models.KindMeasurement, Source: "none", Timestamp: time.Now(), Number: alerts.Ptr(1.0)})
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, m.Close())
	select {
	case n := <-blocked:
		assert.Zero(t, n, "the blocked signal is dropped on close")
	case <-time.After(time.Second):
		t.Fatal("blocked dispatch not released by Close")
	}
	assert.Equal(t, uint64(1), m.Stats().Dropped)
}

func TestParseLoadPolicy(t *testing.T) {
	p, err := ParseLoadPolicy("abort")
	require.NoError(t, err)
	assert.Equal(t, LoadAbortOnError, p)

	p, err = ParseLoadPolicy("")
	require.NoError(t, err)
	assert.Equal(t, LoadSkipInvalid, p)

	_, err = ParseLoadPolicy("retry")
	assert.Error(t, err)
}
