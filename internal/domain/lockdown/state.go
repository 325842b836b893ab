package lockdown

import "time"

// Actor identifies who performed an action in the system.
type Actor struct {
	// Hostname is the machine name where the action was performed.
	Hostname string
	// Username is the system user who triggered the action.
	Username string
}

// Clone returns a deep copy of the actor.
func (a *Actor) Clone() *Actor {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}

// String renders the actor as user@host.
func (a *Actor) String() string {
	if a == nil {
		return "<unknown>"
	}

	return a.Username + "@" + a.Hostname
}

// PrivilegeStatus tells whether the lock privilege is currently held.
type PrivilegeStatus int

const (
	// NotGranted means locking must not be attempted.
	NotGranted PrivilegeStatus = iota
	// Granted means the process may invoke the lock primitive.
	Granted
)

// String implements fmt.Stringer.
func (s PrivilegeStatus) String() string {
	if s == Granted {
		return "granted"
	}

	return "not granted"
}

// GrantOutcome is the result of a consent request.
type GrantOutcome int

const (
	// GrantDenied means the user refused.
	GrantDenied GrantOutcome = iota
	// GrantGranted means the privilege is now held.
	GrantGranted
	// GrantCancelled means the consent flow was aborted without an answer.
	GrantCancelled
)

// String implements fmt.Stringer.
func (o GrantOutcome) String() string {
	switch o {
	case GrantGranted:
		return "granted"
	case GrantCancelled:
		return "cancelled"
	default:
		return "denied"
	}
}

// Grant is the persisted record of a consent decision.
type Grant struct {
	// ID uniquely identifies the grant.
	ID string
	// GrantedAt is when consent was given.
	GrantedAt time.Time
	// GrantedBy is the user who consented.
	GrantedBy *Actor
	// Reason is the explanation shown when consent was requested.
	Reason string
}

// EnforcementState is the pair of independent enforcement tracks.
type EnforcementState struct {
	// CountdownOn is set while a countdown is running.
	CountdownOn bool
	// WindowOn is set while the daily window is being enforced.
	WindowOn bool
}

// Idle reports whether neither track is active.
func (s EnforcementState) Idle() bool {
	return !s.CountdownOn && !s.WindowOn
}

// String names the state the way the transition table does.
func (s EnforcementState) String() string {
	switch {
	case s.CountdownOn && s.WindowOn:
		return "Both"
	case s.CountdownOn:
		return "CountdownActive"
	case s.WindowOn:
		return "WindowActive"
	default:
		return "Idle"
	}
}

// IndicatorIcon selects the persistent indicator artwork.
type IndicatorIcon string

const (
	// IconLocked is shown while a lockdown is active.
	IconLocked IndicatorIcon = "LOCKED"
	// IconUnlocked is shown when the lockdown has ended.
	IconUnlocked IndicatorIcon = "UNLOCKED"
)

// Indicator is the persistent "lockdown active" surface.
type Indicator struct {
	// On is true while the indicator is displayed.
	On bool
	// Title is the heading shown with the indicator.
	Title string
	// Text is the body line.
	Text string
	// Icon is the icon variant.
	Icon IndicatorIcon
}

// Notice is a short ephemeral message.
type Notice struct {
	// Key makes delivery idempotent: sinks may drop a notice whose key was already shown.
	Key string
	// Text is the exact user-visible message.
	Text string
	// Time is when the notice was raised.
	Time time.Time
}

// Snapshot is a read-only view of the enforcer used by the status API.
type Snapshot struct {
	// State is the current enforcement state.
	State EnforcementState
	// Privilege is the privilege status at snapshot time.
	Privilege PrivilegeStatus
	// Countdown is the active countdown, if any.
	Countdown *Countdown
	// DailyWindow is the persisted daily window, if any.
	DailyWindow *DailyWindow
	// Indicator is the current persistent indicator.
	Indicator Indicator
	// Alarms lists the armed records.
	Alarms []AlarmRecord
	// Notices holds the most recent ephemeral notices, oldest first.
	Notices []Notice
}
