package connector

import (
	"fmt"
	"strings"
	"time"
)

// timestampLayouts covers the shapes the supported APIs emit. Layouts
// without an offset are naive and read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.9999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTimestamp parses an upstream timestamp into a UTC instant. An empty
// string yields nil.
func parseTimestamp(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range timestampLayouts {
		if ts, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			u := ts.UTC()
			return &u, nil
		}
	}
	return nil, fmt.Errorf("unrecognized timestamp %q", raw)
}
