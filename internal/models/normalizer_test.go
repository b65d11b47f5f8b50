package models_test

import (
	"testing"
	"time"

	"alertcache/internal/alerts"
	"alertcache/internal/models"
)

func TestDataPointNormalize(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	d := &models.DataPoint{
		ID:        "  dp-123  ",
		Kind:      "  Call_Time ",
		Source:    "  schedule-7  ",
		Timestamp: time.Date(2024, 1, 15, 12, 30, 0, 0, loc),
		Detail:    "  detail  ",
		CallTime:  &alerts.CallTimeValue{Destination: "  GET /users  "},
		Config: map[string]any{
			"  PORT  ": 8080,
		},
	}

	d.Normalize()

	if d.ID != "dp-123" {
		t.Errorf("ID not trimmed: got %q", d.ID)
	}
	if d.Kind != models.KindCallTime {
		t.Errorf("Kind not normalized: got %q", d.Kind)
	}
	if d.Source != "schedule-7" {
		t.Errorf("Source not trimmed: got %q", d.Source)
	}
	if d.Detail != "detail" {
		t.Errorf("Detail not trimmed: got %q", d.Detail)
	}
	if d.CallTime.Destination != "GET /users" {
		t.Errorf("Destination not trimmed: got %q", d.CallTime.Destination)
	}
	if d.Timestamp.Location() != time.UTC || d.Timestamp.Hour() != 10 {
		t.Errorf("Timestamp not converted to UTC: got %v", d.Timestamp)
	}
	if val, ok := d.Config["port"]; !ok || val != 8080 {
		t.Errorf("Config not normalized: got %v", d.Config)
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"RFC3339", "2024-01-15T10:30:00Z", false},
		{"RFC3339Nano", "2024-01-15T10:30:00.123456789Z", false},
		{"datetime with T", "2024-01-15T10:30:00", false},
		{"datetime with space", "2024-01-15 10:30:00", false},
		{"with whitespace", "  2024-01-15T10:30:00Z  ", false},
		{"invalid", "not-a-timestamp", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := models.ParseTimestamp(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseTimestamp(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestNewMatchSignal(t *testing.T) {
	e, err := alerts.NewNumericElement(alerts.GreaterThan, alerts.Ptr(5.0), 17)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	d := &models.DataPoint{ID: "dp-1", Kind: models.KindMeasurement, Source: "s", ResourceID: 3, Number: alerts.Ptr(9.0)}

	s := models.NewMatchSignal(e, d)
	if s.ID == "" {
		t.Error("signal ID should be generated")
	}
	if s.ConditionID != 17 || s.PartitionKey != "17" {
		t.Errorf("unexpected condition fields: %+v", s)
	}
	if s.Operator != "GREATER_THAN" || s.Kind != "NumericElement" {
		t.Errorf("unexpected operator/kind: %s %s", s.Operator, s.Kind)
	}
	if s.DataPointID != "dp-1" || s.ResourceID != 3 || s.Deferred {
		t.Errorf("unexpected data point fields: %+v", s)
	}
}
