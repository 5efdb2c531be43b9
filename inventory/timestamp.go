package inventory

import (
	"fmt"
	"strings"
	"time"
)

// TimestampLayout is the ISO-8601 form used for defaulted timestamps,
// millisecond precision in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// Layouts accepted for caller-supplied timestamps, tried in order. Values
// without a zone are read in the location passed to ParseTimestampIn.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006-01",
	"2006",
	time.RFC1123Z,
	time.RFC1123,
}

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp parses s, reading zone-less values as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	return ParseTimestampIn(s, time.UTC)
}

// ParseTimestampIn parses s, reading zone-less values in loc.
func ParseTimestampIn(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if loc == nil {
		loc = time.UTC
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
