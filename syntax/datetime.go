package syntax

import (
	"fmt"
	"time"
)

const (
	// Datetime layout used for record timestamps and identity keys. Always UTC, always millisecond precision.
	DatetimeLayout = "2006-01-02T15:04:05.000Z"
)

// Truncates to the precision that timestamps are stored and addressed at.
func NormalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// Formats a time in the canonical [DatetimeLayout].
func FormatDatetime(t time.Time) string {
	return NormalizeTime(t).Format(DatetimeLayout)
}

// Parses either the canonical layout or any RFC-3339 string.
func ParseDatetime(raw string) (time.Time, error) {
	if len(raw) > 64 {
		return time.Time{}, fmt.Errorf("Datetime too long (max 64 chars)")
	}
	t, err := time.Parse(DatetimeLayout, raw)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse(time.RFC3339Nano, raw)
	if err == nil {
		return NormalizeTime(t), nil
	}
	return time.Time{}, fmt.Errorf("failed to parse %q as datetime", raw)
}
