package lockdown

import (
	"fmt"
	"time"
)

// AlarmKey addresses an alarm record; keys are unique within the dispatcher.
type AlarmKey string

const (
	// AlarmLock fires at the start of the daily window.
	AlarmLock AlarmKey = "LOCK"
	// AlarmUnlock fires at the end of the daily window.
	AlarmUnlock AlarmKey = "UNLOCK"
	// AlarmCountdownEnd fires when a countdown is over.
	AlarmCountdownEnd AlarmKey = "COUNTDOWN_END"
)

// DailyPeriod is the recurrence interval of daily alarms.
const DailyPeriod = 24 * time.Hour

// ParseAlarmKey validates a serialized key.
func ParseAlarmKey(s string) (AlarmKey, error) {
	switch key := AlarmKey(s); key {
	case AlarmLock, AlarmUnlock, AlarmCountdownEnd:
		return key, nil
	default:
		return "", fmt.Errorf("unknown alarm key %q", s)
	}
}

// AlarmRecord is a durable wall-clock alarm.
type AlarmRecord struct {
	// Key identifies the alarm; re-arming the same key replaces the record.
	Key AlarmKey
	// NextFire is the next wall-clock instant the alarm is due.
	NextFire time.Time
	// Period is zero for one-shot alarms and DailyPeriod for recurring ones.
	Period time.Duration
}

// Recurring reports whether the record re-arms itself after firing.
func (r *AlarmRecord) Recurring() bool {
	return r.Period > 0
}

// Advance moves a recurring record forward by whole periods until NextFire is after now.
func (r *AlarmRecord) Advance(now time.Time) {
	if !r.Recurring() {
		return
	}

	for !r.NextFire.After(now) {
		r.NextFire = r.NextFire.Add(r.Period)
	}
}

// AlarmEvent is delivered by the dispatcher each time an alarm fires.
type AlarmEvent struct {
	// Key is the alarm that fired.
	Key AlarmKey
	// Scheduled is the nominal fire instant.
	Scheduled time.Time
	// Delivered is when the dispatcher handed the event over.
	Delivered time.Time
	// Late is set when delivery lagged the nominal instant beyond the threshold.
	Late bool
}

// ID returns a stable identifier of this firing, identical across redeliveries.
func (e *AlarmEvent) ID() string {
	return string(e.Key) + "@" + e.Scheduled.UTC().Format(time.RFC3339)
}
