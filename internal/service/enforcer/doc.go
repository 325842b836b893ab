// Package enforcer owns the lockdown state machine.
//
// Core keeps two independent tracks, a countdown and a daily window, and
// runs every command and alarm on a single goroutine fed by a FIFO queue.
// Privilege is checked at each action site and never cached. A presence
// handle is held while any track is active and released on return to idle
// and when Run exits.
package enforcer
