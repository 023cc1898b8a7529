package timeutil

import (
	"strings"
	"time"

	"github.com/smallbiznis/billingcore/internal/apperror"
)

const DateLayout = "2006-01-02"

// ParseDate accepts either a calendar date (YYYY-MM-DD), read as midnight
// UTC, or an RFC 3339 timestamp, normalised to UTC.
func ParseDate(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return time.Time{}, apperror.Validation("date is required")
	}
	if t, err := time.ParseInLocation(DateLayout, value, time.UTC); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apperror.Validation("invalid date %q: expected YYYY-MM-DD or RFC3339", value)
}

// ParseOptionalDate returns nil for blank input.
func ParseOptionalDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	t, err := ParseDate(raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// StartOfDay truncates t to midnight UTC.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
