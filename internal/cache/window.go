package cache

import (
	"time"
)

// Window is the half-open interval [Start, End) one run processes.
// AdminRun marks manually parameterized runs (explicit bounds), which
// intentionally reprocess history and therefore bypass the double-run
// guard.
type Window struct {
	Start    time.Time
	End      time.Time
	AdminRun bool
}

// SelectWindow computes the window for a run. With no overrides the end
// is now floored to the nearest interval boundary (UTC) and the start is
// one interval earlier. Any override marks the run as an admin run; a
// missing bound falls back to the scheduled default.
func SelectWindow(now time.Time, overrideStart, overrideEnd *time.Time, interval time.Duration) Window {
	w := Window{AdminRun: overrideStart != nil || overrideEnd != nil}

	w.End = now.UTC().Truncate(interval)
	if overrideEnd != nil {
		w.End = overrideEnd.UTC()
	}

	w.Start = w.End.Add(-interval)
	if overrideStart != nil {
		w.Start = overrideStart.UTC()
	}

	return w
}

// utcMidnight returns the UTC calendar day containing t as a midnight
// instant. Cache rows are keyed by this value end-to-end; backfill
// grouping must never fall back to database session timezones.
func utcMidnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
