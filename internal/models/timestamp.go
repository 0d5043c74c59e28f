package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// FarFuture stands in for dates that cannot be parsed: they never expire
// and are never considered close to expiring.
var FarFuture = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)

// millisThreshold separates Unix seconds from Unix milliseconds in numeric dates.
const millisThreshold = 100_000_000_000

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Timestamp is a date field as stored by the record store. It keeps the raw
// value so that unknown formats survive a round trip untouched.
//
// Accepted inputs: JSON strings in RFC 3339 or ISO-like layouts, and JSON
// numbers holding Unix milliseconds (or seconds). Parsing never fails; see Time.
type Timestamp string

// timestampLayout is fixed width so stored timestamps sort correctly as text.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// NewTimestamp formats t as RFC 3339 in UTC with millisecond precision.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp(t.UTC().Format(timestampLayout))
}

// UnmarshalJSON accepts strings, numbers and null.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*ts = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*ts = Timestamp(strings.TrimSpace(s))
		return nil
	}
	*ts = Timestamp(string(b))
	return nil
}

// MarshalJSON writes numeric timestamps back as numbers and everything else as strings.
func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts == "" {
		return []byte("null"), nil
	}
	if _, err := strconv.ParseInt(string(ts), 10, 64); err == nil {
		return []byte(ts), nil
	}
	return json.Marshal(string(ts))
}

// IsZero reports whether no value was supplied.
func (ts Timestamp) IsZero() bool {
	return strings.TrimSpace(string(ts)) == ""
}

// Time parses the timestamp. ok is false when the value is empty or unparseable.
func (ts Timestamp) Time() (t time.Time, ok bool) {
	raw := strings.TrimSpace(string(ts))
	if raw == "" {
		return time.Time{}, false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		if n > -millisThreshold && n < millisThreshold {
			return time.Unix(n, 0).UTC(), true
		}
		return time.UnixMilli(n).UTC(), true
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}

// TimeOr returns the parsed time or fallback.
func (ts Timestamp) TimeOr(fallback time.Time) time.Time {
	if t, ok := ts.Time(); ok {
		return t
	}
	return fallback
}

// FormatBR renders the date as dd/mm/yyyy, or the raw value when it cannot be parsed.
func (ts Timestamp) FormatBR() string {
	if t, ok := ts.Time(); ok {
		return t.Format("02/01/2006")
	}
	return string(ts)
}

func (ts Timestamp) String() string {
	return string(ts)
}
