package scoring

import (
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// PERIOD - The windows points are summed over
// =============================================================================

// PeriodKind names a calendar window.
type PeriodKind string

const (
	PeriodDay     PeriodKind = "day"
	PeriodWeek    PeriodKind = "week"
	PeriodMonth   PeriodKind = "month"
	PeriodQuarter PeriodKind = "quarter"
)

// Period is the half-open window [Start, End).
type Period struct {
	Kind  PeriodKind
	Start time.Time
	End   time.Time
}

// Contains returns true if t is within [Start, End).
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && t.Before(p.End)
}

func (p Period) String() string {
	return fmt.Sprintf("%s[%s, %s)", p.Kind, p.Start.Format(time.RFC3339), p.End.Format(time.RFC3339))
}

// ParsePeriodKind accepts both noun and adjective forms ("week", "weekly").
func ParsePeriodKind(s string) (PeriodKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "day", "daily", "today":
		return PeriodDay, nil
	case "week", "weekly":
		return PeriodWeek, nil
	case "month", "monthly":
		return PeriodMonth, nil
	case "quarter", "quarterly":
		return PeriodQuarter, nil
	}
	return "", &ValidationError{Field: "period", Code: "invalid_period", Message: fmt.Sprintf("unknown period %q", s)}
}

// =============================================================================
// PERIOD RESOLVER
// =============================================================================

// StartOf returns the local midnight that opens the period containing ref.
// Arithmetic is wall-clock in ref's location; DST shifts are not corrected.
func StartOf(kind PeriodKind, ref time.Time, weekStart time.Weekday) time.Time {
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())

	switch kind {
	case PeriodWeek:
		offset := int(day.Weekday()) - int(weekStart)
		if offset < 0 {
			offset += 7
		}
		return day.AddDate(0, 0, -offset)

	case PeriodMonth:
		return time.Date(day.Year(), day.Month(), 1, 0, 0, 0, 0, day.Location())

	case PeriodQuarter:
		first := time.Month((int(day.Month())-1)/3*3 + 1)
		return time.Date(day.Year(), first, 1, 0, 0, 0, 0, day.Location())

	default:
		return day
	}
}

// PeriodFor returns the full window of the given kind containing ref.
func PeriodFor(kind PeriodKind, ref time.Time, weekStart time.Weekday) Period {
	start := StartOf(kind, ref, weekStart)

	var end time.Time
	switch kind {
	case PeriodWeek:
		end = start.AddDate(0, 0, 7)
	case PeriodMonth:
		end = start.AddDate(0, 1, 0)
	case PeriodQuarter:
		end = start.AddDate(0, 3, 0)
	default:
		kind = PeriodDay
		end = start.AddDate(0, 0, 1)
	}
	return Period{Kind: kind, Start: start, End: end}
}

// NextPeriod returns the period following this one.
func (p Period) NextPeriod(weekStart time.Weekday) Period {
	return PeriodFor(p.Kind, p.End, weekStart)
}
