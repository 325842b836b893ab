// Package lockdown contains core domain types for scheduled device lockdown.
//
// It defines the Schedule variants (Countdown and DailyWindow), alarm keys and
// records, the enforcement state pair, privilege status values and the error
// taxonomy shared by every service.
package lockdown
