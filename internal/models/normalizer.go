package models

import (
	"strings"
	"time"
)

// SupportedTimestampFormats lists formats we attempt to parse
var SupportedTimestampFormats = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	time.RFC1123,
	time.UnixDate,
}

// Normalize applies field normalization to a DataPoint
// - lower-cases Kind
// - trims ID, Source, Detail and call-time destination
// - converts Timestamp to UTC
func (d *DataPoint) Normalize() {
	d.ID = strings.TrimSpace(d.ID)
	d.Kind = DataKind(strings.ToLower(strings.TrimSpace(string(d.Kind))))
	d.Source = strings.TrimSpace(d.Source)
	d.Detail = strings.TrimSpace(d.Detail)
	d.Timestamp = d.Timestamp.UTC()

	if d.CallTime != nil {
		d.CallTime.Destination = strings.TrimSpace(d.CallTime.Destination)
	}

	// Normalize configuration keys to lowercase
	if d.Config != nil {
		normalized := make(map[string]any, len(d.Config))
		for k, v := range d.Config {
			normalized[strings.ToLower(strings.TrimSpace(k))] = v
		}
		d.Config = normalized
	}
}

// ParseTimestamp attempts to parse a timestamp string into time.Time
func ParseTimestamp(ts string) (time.Time, error) {
	ts = strings.TrimSpace(ts)

	for _, format := range SupportedTimestampFormats {
		if t, err := time.Parse(format, ts); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, ErrInvalidTimestamp
}
