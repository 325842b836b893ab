// Package client implements the lockdown CLI commands.
//
// Each command loads settings, connects to lockdownd and forwards the
// request. When the daemon reports that the lock privilege is missing the
// command offers the consent flow once and retries.
package client
