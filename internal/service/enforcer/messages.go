package enforcer

// User-visible notice texts.
const (
	textCountdownStarted  = "Device locked for %d seconds"
	textCountdownEnded    = "Timer ended. Device can now be unlocked."
	textWindowSet         = "Scheduled lock set from %s to %s"
	textWindowActivated   = "Scheduled Lock Activated"
	textWindowDeactivated = "Scheduled Lock Deactivated. You can now unlock your device."
	textPrivilegeInactive = "Device Admin not active. Cannot perform scheduled lock/unlock."
	textPrivilegeRequired = "Device Admin permission is required to lock this device."
	textPrivilegeRevoked  = "Device Admin Revoked"
	textPrivilegeEnabled  = "Device Admin enabled"
	textEnterDuration     = "Please enter a duration"
	textInvalidDuration   = "Invalid duration. Enter a whole number of seconds."
	textEnterBothTimes    = "Please enter both start and end times"
	textInvalidTime       = "Invalid time format. Use HH:MM"
	textLockPeriodEnded   = "Lock period ended"
	textScheduleCancelled = "Scheduled lock cancelled"
	textDeviceLocked      = "Device locked"
	textLockFailed        = "Unable to lock the device."
	textSaveFailed        = "Could not save the schedule."
	textArmFailed         = "Could not arm the schedule alarms."
)
