package models

import (
	"fmt"
	"time"
)

// layouts accepted for client supplied timestamps, tried in order
var jsonTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999", // microseconds, no zone
	"2006-01-02T15:04:05.000",    // milliseconds, no zone
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseJSONTime parses RFC3339 ("2025-05-16T15:32:25Z"), the zone-less forms
// clients send ("2025-05-16T15:32:25.181226", "2025-05-16T15:32:25.000",
// "2025-05-16T15:32:25") and plain dates. Zone-less values are UTC.
func ParseJSONTime(s string) (time.Time, error) {
	var lastErr error
	for _, layout := range jsonTimeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("cannot parse %q: %w", s, lastErr)
}
