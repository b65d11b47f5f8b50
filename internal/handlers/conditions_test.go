package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"alertcache/internal/alerts"
	"alertcache/internal/cache"
	"alertcache/internal/handlers"
)

func TestConditionsHandler_LoadsIntoCache(t *testing.T) {
	m := cache.NewManager(cache.Config{SignalBuffer: 4})
	defer m.Close()
	handler := handlers.NewConditionsHandler(handlers.ConditionsConfig{Loader: m})

	body := `[
        {"id": 1, "category": "threshold", "operator": "GREATER_THAN", "source": "cpu", "threshold": 90},
        {"id": 2, "category": "string", "operator": "REGEX", "source": "version", "text": "^v2"},
        {"id": 3, "category": "threshold", "operator": "REGEX", "source": "cpu", "threshold": 1}
    ]`

	req := httptest.NewRequest(http.MethodPut, "/conditions", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var result cache.LoadResult
	if err := json.Unmarshal(w.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if result.Loaded != 2 || len(result.Rejected) != 1 || result.Rejected[0].ConditionID != 3 {
		t.Errorf("unexpected result: %+v", result)
	}
	if got := m.Stats().Conditions; got != 2 {
		t.Errorf("expected 2 cached conditions, got %d", got)
	}
}

func TestConditionsHandler_AbortPolicy(t *testing.T) {
	m := cache.NewManager(cache.Config{})
	defer m.Close()
	handler := handlers.NewConditionsHandler(handlers.ConditionsConfig{Loader: m})

	body := `{
        "policy": "abort",
        "conditions": [
            {"id": 1, "category": "drift", "operator": "CHANGES", "source": "d"},
            {"id": 2, "category": "drift", "operator": "EQUALS", "source": "d"}
        ]
    }`

	req := httptest.NewRequest(http.MethodPut, "/conditions", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected 422, got %d: %s", w.Code, w.Body.String())
	}
	if got := m.Stats().Conditions; got != 0 {
		t.Errorf("aborted load should leave cache empty, got %d", got)
	}
}

type recordingLoader struct {
	conds  []cache.Condition
	policy cache.LoadPolicy
}

func (l *recordingLoader) Load(_ context.Context, conds []cache.Condition, policy cache.LoadPolicy) (cache.LoadResult, error) {
	l.conds, l.policy = conds, policy
	return cache.LoadResult{Loaded: len(conds)}, nil
}

func TestConditionsHandler_DecodesFields(t *testing.T) {
	l := &recordingLoader{}
	handler := handlers.NewConditionsHandler(handlers.ConditionsConfig{Loader: l, Policy: cache.LoadAbortOnError})

	body := `{"conditions": [{
        "id": 8, "category": "availability_duration", "operator": "AVAIL_DURATION_NOT_UP",
        "resource_id": 42, "duration_seconds": 300
    }, {
        "id": 9, "category": "call_time", "operator": "CHANGES", "source": "svc",
        "threshold": 0.25, "option": "AVG", "comparator": "HI", "pattern": "/api/.*"
    }]}`

	req := httptest.NewRequest(http.MethodPut, "/conditions", bytes.NewBufferString(body))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if l.policy != cache.LoadAbortOnError {
		t.Errorf("configured policy not used: %v", l.policy)
	}
	if len(l.conds) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(l.conds))
	}
	c := l.conds[0]
	if c.Operator != alerts.AvailDurationNotUp || c.ResourceID != 42 || c.DurationSeconds != 300 {
		t.Errorf("duration condition not decoded: %+v", c)
	}
	c = l.conds[1]
	if c.Comparator != "HI" || c.Option != "AVG" || c.Pattern != "/api/.*" || c.Threshold == nil {
		t.Errorf("call-time condition not decoded: %+v", c)
	}
}

func TestConditionsHandler_BadRequests(t *testing.T) {
	handler := handlers.NewConditionsHandler(handlers.ConditionsConfig{Loader: &recordingLoader{}})

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodPost, `[]`, http.StatusMethodNotAllowed},
		{"not json", http.MethodPut, `nope`, http.StatusBadRequest},
		{"unknown operator", http.MethodPut, `[{"id": 1, "operator": "BETWEEN"}]`, http.StatusBadRequest},
		{"unknown policy", http.MethodPut, `{"policy": "retry", "conditions": []}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/conditions", bytes.NewBufferString(tt.body))
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}
