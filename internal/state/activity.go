package state

import (
	"context"
	"sync"

	"alertcache/internal/alerts"
)

// ActivityStore remembers the activity of alert conditions across cache
// rebuilds. Conditions it has never seen are ActivityUnknown.
type ActivityStore interface {
	Get(ctx context.Context, conditionID int) alerts.Activity
	Set(ctx context.Context, conditionID int, activity alerts.Activity)
	Forget(ctx context.Context, conditionIDs ...int)
	Close() error
}

type memoryStore struct {
	activity sync.Map // condition id -> alerts.Activity
}

// NewMemoryStore returns an in-process ActivityStore.
func NewMemoryStore() ActivityStore { return &memoryStore{} }

func (m *memoryStore) Get(_ context.Context, conditionID int) alerts.Activity {
	v, ok := m.activity.Load(conditionID)
	if !ok {
		return alerts.ActivityUnknown
	}
	return v.(alerts.Activity)
}

func (m *memoryStore) Set(_ context.Context, conditionID int, activity alerts.Activity) {
	m.activity.Store(conditionID, activity)
}

func (m *memoryStore) Forget(_ context.Context, conditionIDs ...int) {
	for _, id := range conditionIDs {
		m.activity.Delete(id)
	}
}

func (m *memoryStore) Close() error { return nil }
