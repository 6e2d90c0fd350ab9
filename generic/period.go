package generic

import "time"

// =============================================================================
// PERIOD - Reporting window for time-windowed statistics
// =============================================================================

// Period is an inclusive date window [Start, End]. End is widened to the
// end of its day so a window given as two calendar dates covers both days.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod builds a day-granular window from two dates.
func NewPeriod(start, end time.Time) Period {
	return Period{Start: StartOfDay(start), End: EndOfDay(end)}
}

// Validate rejects windows whose end precedes their start.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return &ValidationError{Field: "period", Reason: "start and end are required"}
	}
	if p.End.Before(p.Start) {
		return &ValidationError{Field: "period", Value: p.String(), Reason: "end before start"}
	}
	return nil
}

// Contains returns true if t is within [Start, End].
func (p Period) Contains(t time.Time) bool {
	return !t.Before(p.Start) && !t.After(p.End)
}

func (p Period) String() string {
	return "[" + p.Start.Format("2006-01-02") + ", " + p.End.Format("2006-01-02") + "]"
}

func StartOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
