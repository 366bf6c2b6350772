package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/arturoeanton/milestoner/internal/port"
)

var localLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04", "2006-01-02 15:04"}

// ParseTime accepts RFC 3339, or a local ISO 8601 time without offset read
// in loc.
func ParseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, &port.ValidationError{
		Message: fmt.Sprintf("invalid time %q: use ISO 8601, e.g. 2025-01-15T10:00:00", s),
	}
}

// ResolveWhen turns the schedule_post style inputs into a When.
// useOptimal wins over an explicit time; with neither a time nor now the
// next optimal slot is used.
func ResolveWhen(scheduledFor string, useOptimal, now bool, loc *time.Location) (When, error) {
	switch {
	case useOptimal:
		return WhenOptimal(), nil
	case strings.TrimSpace(scheduledFor) != "":
		at, err := ParseTime(scheduledFor, loc)
		if err != nil {
			return When{}, err
		}
		return WhenAt(at), nil
	case now:
		return WhenNow(), nil
	default:
		return WhenOptimal(), nil
	}
}
