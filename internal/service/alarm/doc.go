// Package alarm implements the durable wall-clock alarm dispatcher.
//
// Records are keyed by lockdown.AlarmKey and persisted on every mutation.
// Delivery is at-least-once and never earlier than the wall-clock fire
// instant. A periodic resync catches firings missed while the host slept;
// the advanced record is persisted only after the sink returns, so a crash
// mid-delivery leads to a redelivery rather than a lost event.
package alarm
