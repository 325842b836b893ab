package clock

import (
	"time"

	"github.com/oshokin/lockdown/internal/domain/lockdown"
)

// Source resolves schedule boundaries against a Clock in a fixed location.
type Source struct {
	// clock supplies the current instant and timers.
	clock Clock
	// location is the time zone wall-clock schedules are expressed in.
	location *time.Location
}

// NewSource creates a Source. A nil location means time.Local.
func NewSource(c Clock, location *time.Location) *Source {
	if location == nil {
		location = time.Local
	}

	return &Source{
		clock:    c,
		location: location,
	}
}

// Clock returns the underlying clock.
func (s *Source) Clock() Clock {
	return s.clock
}

// Location returns the configured time zone.
func (s *Source) Location() *time.Location {
	return s.location
}

// Now returns the current instant in the configured location.
func (s *Source) Now() time.Time {
	return s.clock.Now().In(s.location)
}

// NextOccurrence returns the smallest instant >= now whose local time is hm:00.
func (s *Source) NextOccurrence(hm lockdown.HourMinute) time.Time {
	return NextOccurrence(s.Now(), hm, s.location)
}

// NextOccurrence returns the smallest instant >= from whose wall time in loc
// is hm:00. When hm falls into a DST gap on some day the later candidate (the
// first valid equivalent after the gap) is used; when it is ambiguous the
// earlier instant is used.
func NextOccurrence(from time.Time, hm lockdown.HourMinute, loc *time.Location) time.Time {
	local := from.In(loc)
	year, month, day := local.Date()

	for offset := 0; ; offset++ {
		candidate := resolveLocal(year, month, day+offset, hm, loc)
		if !candidate.Before(from) {
			return candidate
		}
	}
}

// PreviousOccurrence returns the largest instant <= at whose wall time in loc
// is hm:00, resolving gaps and overlaps like NextOccurrence.
func PreviousOccurrence(at time.Time, hm lockdown.HourMinute, loc *time.Location) time.Time {
	local := at.In(loc)
	year, month, day := local.Date()

	for offset := 0; ; offset-- {
		candidate := resolveLocal(year, month, day+offset, hm, loc)
		if !candidate.After(at) {
			return candidate
		}
	}
}

// resolveLocal maps a local date and time to an instant deterministically.
// time.Date leaves the choice unspecified for gaps and overlaps, so both
// zone offsets in effect around the date are tried explicitly.
func resolveLocal(year int, month time.Month, day int, hm lockdown.HourMinute, loc *time.Location) time.Time {
	naive := time.Date(year, month, day, hm.Hour, hm.Minute, 0, 0, time.UTC)

	_, before := naive.Add(-24 * time.Hour).In(loc).Zone()
	_, after := naive.Add(24 * time.Hour).In(loc).Zone()

	var (
		first  = naive.Add(-time.Duration(before) * time.Second).In(loc)
		second = naive.Add(-time.Duration(after) * time.Second).In(loc)
	)

	if first.After(second) {
		first, second = second, first
	}

	firstValid := matchesWallClock(first, naive)
	secondValid := matchesWallClock(second, naive)

	switch {
	case firstValid:
		return first
	case secondValid:
		return second
	default:
		// Non-existent local time: the later reading lands just past the gap.
		return second
	}
}

func matchesWallClock(t, naive time.Time) bool {
	return t.Year() == naive.Year() &&
		t.YearDay() == naive.YearDay() &&
		t.Hour() == naive.Hour() &&
		t.Minute() == naive.Minute()
}
