package store

import "time"

// TimeLayout is the timestamp format used in table files. Nullable
// timestamps serialize as the empty string.
const TimeLayout = "2006-01-02 15:04:05"

// FormatTime renders a timestamp in the table file format.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

// FormatTimePtr renders an optional timestamp, empty when nil.
func FormatTimePtr(t *time.Time) string {
	if t == nil {
		return ""
	}
	return FormatTime(*t)
}

// ParseTime parses a table file timestamp, returning the zero time for
// blank or malformed values.
func ParseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ParseTimePtr parses an optional timestamp, nil for blank or malformed
// values.
func ParseTimePtr(s string) *time.Time {
	t := ParseTime(s)
	if t.IsZero() {
		return nil
	}
	return &t
}
