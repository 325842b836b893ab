package lockdown

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// HourMinute is a local wall-clock time of day with minute precision.
type HourMinute struct {
	// Hour is in the range 0-23.
	Hour int
	// Minute is in the range 0-59.
	Minute int
}

// Valid reports whether both fields are within range.
func (hm HourMinute) Valid() bool {
	return hm.Hour >= 0 && hm.Hour <= 23 && hm.Minute >= 0 && hm.Minute <= 59
}

// String renders the time as zero-padded HH:MM.
func (hm HourMinute) String() string {
	return fmt.Sprintf("%02d:%02d", hm.Hour, hm.Minute)
}

// minutes returns the offset from local midnight in minutes.
func (hm HourMinute) minutes() int {
	return hm.Hour*60 + hm.Minute
}

// ParseHourMinute parses the strict HH:MM grammar: two digits 00-23, a single
// colon, two digits 00-59. Anything else is ErrBadTimeFormat.
func ParseHourMinute(s string) (HourMinute, error) {
	if len(s) != len("HH:MM") || s[2] != ':' || !isDigits(s[:2]) || !isDigits(s[3:]) {
		return HourMinute{}, fmt.Errorf("%w: %q is not HH:MM", ErrBadTimeFormat, s)
	}

	// Both halves are verified digits, so Atoi cannot fail.
	hour, _ := strconv.Atoi(s[:2])
	minute, _ := strconv.Atoi(s[3:])

	hm := HourMinute{Hour: hour, Minute: minute}
	if !hm.Valid() {
		return HourMinute{}, fmt.Errorf("%w: %q is out of range", ErrBadTimeFormat, s)
	}

	return hm, nil
}

// ParseCountdownSeconds parses a base-10 count of seconds that must be at least 1.
func ParseCountdownSeconds(s string) (time.Duration, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("%w: duration is empty", ErrBadTimeFormat)
	}

	if !isDigits(trimmed) {
		return 0, fmt.Errorf("%w: %q is not a whole number of seconds", ErrBadTimeFormat, s)
	}

	seconds, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %w", ErrBadTimeFormat, s, err)
	}

	if seconds < 1 {
		return 0, fmt.Errorf("%w: duration must be at least one second", ErrBadTimeFormat)
	}

	if seconds > int64(maxCountdown/time.Second) {
		return 0, fmt.Errorf("%w: duration %d exceeds %s", ErrBadTimeFormat, seconds, maxCountdown)
	}

	return time.Duration(seconds) * time.Second, nil
}

// maxCountdown bounds countdowns so that the millisecond value fits comfortably in int64.
const maxCountdown = 365 * 24 * time.Hour

func isDigits(s string) bool {
	if s == "" {
		return false
	}

	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}

	return true
}

// ScheduleKind distinguishes the two Schedule variants.
type ScheduleKind string

const (
	// KindCountdown is a one-shot timed lock.
	KindCountdown ScheduleKind = "countdown"
	// KindDailyWindow is a recurring daily lock window.
	KindDailyWindow ScheduleKind = "daily_window"
)

// Countdown locks at StartedAt and announces completion at StartedAt+Duration.
type Countdown struct {
	// StartedAt is when the countdown was started.
	StartedAt time.Time
	// Duration is the countdown length; always at least one second.
	Duration time.Duration
}

// EndsAt returns the instant the countdown is over.
func (c *Countdown) EndsAt() time.Time {
	return c.StartedAt.Add(c.Duration)
}

// Remaining returns the time left at now, never negative.
func (c *Countdown) Remaining(now time.Time) time.Duration {
	return max(c.EndsAt().Sub(now), 0)
}

// DailyWindow locks at Start and releases at End every day in local time.
// End <= Start wraps past midnight; End == Start is a zero-length window.
type DailyWindow struct {
	// Start is the local time the window begins.
	Start HourMinute
	// End is the local time the window ends.
	End HourMinute
}

// Validate checks both boundaries.
func (w *DailyWindow) Validate() error {
	if !w.Start.Valid() || !w.End.Valid() {
		return fmt.Errorf("%w: window %s-%s is out of range", ErrBadTimeFormat, w.Start, w.End)
	}

	return nil
}

// WrapsMidnight reports whether the window ends on the following day.
func (w *DailyWindow) WrapsMidnight() bool {
	return w.End.minutes() < w.Start.minutes()
}

// Contains reports whether the local time of t falls inside [Start, End).
func (w *DailyWindow) Contains(t time.Time) bool {
	var (
		start = w.Start.minutes()
		end   = w.End.minutes()
		now   = t.Hour()*60 + t.Minute()
	)

	switch {
	case start == end:
		return false
	case start < end:
		return now >= start && now < end
	default:
		return now >= start || now < end
	}
}

// String renders the window as "HH:MM-HH:MM".
func (w *DailyWindow) String() string {
	return w.Start.String() + "-" + w.End.String()
}

// Schedule is a tagged variant holding exactly one of Countdown or DailyWindow.
type Schedule struct {
	// Kind selects the populated variant.
	Kind ScheduleKind
	// Countdown is set when Kind is KindCountdown.
	Countdown *Countdown
	// DailyWindow is set when Kind is KindDailyWindow.
	DailyWindow *DailyWindow
}

// NewCountdownSchedule wraps c into a Schedule.
func NewCountdownSchedule(c Countdown) Schedule {
	return Schedule{Kind: KindCountdown, Countdown: &c}
}

// NewDailyWindowSchedule wraps w into a Schedule.
func NewDailyWindowSchedule(w DailyWindow) Schedule {
	return Schedule{Kind: KindDailyWindow, DailyWindow: &w}
}

// Validate checks that the variant matches its Kind.
func (s *Schedule) Validate() error {
	switch s.Kind {
	case KindCountdown:
		if s.Countdown == nil || s.DailyWindow != nil {
			return fmt.Errorf("schedule %s: variant mismatch", s.Kind)
		}

		if s.Countdown.Duration <= 0 {
			return fmt.Errorf("%w: countdown duration must be positive", ErrBadTimeFormat)
		}
	case KindDailyWindow:
		if s.DailyWindow == nil || s.Countdown != nil {
			return fmt.Errorf("schedule %s: variant mismatch", s.Kind)
		}

		return s.DailyWindow.Validate()
	default:
		return fmt.Errorf("unknown schedule kind %q", s.Kind)
	}

	return nil
}

// Clone returns a deep copy of the schedule.
func (s *Schedule) Clone() Schedule {
	cloned := Schedule{Kind: s.Kind}

	if s.Countdown != nil {
		c := *s.Countdown
		cloned.Countdown = &c
	}

	if s.DailyWindow != nil {
		w := *s.DailyWindow
		cloned.DailyWindow = &w
	}

	return cloned
}
