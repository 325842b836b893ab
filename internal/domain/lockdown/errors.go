package lockdown

import "errors"

var (
	// ErrBadTimeFormat is returned when user input fails the HH:MM or duration grammar.
	ErrBadTimeFormat = errors.New("bad time format")
	// ErrPrivilegeMissing is returned when an operation requires the lock privilege and it is not granted.
	ErrPrivilegeMissing = errors.New("privilege missing")
	// ErrLockUnavailable is returned when the host lock primitive could not be reached.
	ErrLockUnavailable = errors.New("lock unavailable")
	// ErrAlarmArmFailed is returned when the dispatcher rejects an arm or cancel call.
	ErrAlarmArmFailed = errors.New("alarm arm failed")
	// ErrPersistenceFailure is returned when a schedule store operation fails.
	ErrPersistenceFailure = errors.New("persistence failure")
)

// ErrorKind names the taxonomy entry an error belongs to.
// It is used on the wire so clients can map errors back to the sentinels above.
type ErrorKind string

const (
	// KindUnknown is reported for errors outside the taxonomy.
	KindUnknown ErrorKind = "UNKNOWN"
	// KindBadTimeFormat matches ErrBadTimeFormat.
	KindBadTimeFormat ErrorKind = "BAD_TIME_FORMAT"
	// KindPrivilegeMissing matches ErrPrivilegeMissing.
	KindPrivilegeMissing ErrorKind = "PRIVILEGE_MISSING"
	// KindLockUnavailable matches ErrLockUnavailable.
	KindLockUnavailable ErrorKind = "LOCK_UNAVAILABLE"
	// KindAlarmArmFailed matches ErrAlarmArmFailed.
	KindAlarmArmFailed ErrorKind = "ALARM_ARM_FAILED"
	// KindPersistenceFailure matches ErrPersistenceFailure.
	KindPersistenceFailure ErrorKind = "PERSISTENCE_FAILURE"
)

//nolint:gochecknoglobals // Static lookup table.
var kindSentinels = []struct {
	kind ErrorKind
	err  error
}{
	{KindBadTimeFormat, ErrBadTimeFormat},
	{KindPrivilegeMissing, ErrPrivilegeMissing},
	{KindLockUnavailable, ErrLockUnavailable},
	{KindAlarmArmFailed, ErrAlarmArmFailed},
	{KindPersistenceFailure, ErrPersistenceFailure},
}

// KindOf classifies err into the taxonomy.
func KindOf(err error) ErrorKind {
	for _, entry := range kindSentinels {
		if errors.Is(err, entry.err) {
			return entry.kind
		}
	}

	return KindUnknown
}

// SentinelFor returns the sentinel error for kind, or nil for KindUnknown.
func SentinelFor(kind ErrorKind) error {
	for _, entry := range kindSentinels {
		if entry.kind == kind {
			return entry.err
		}
	}

	return nil
}
