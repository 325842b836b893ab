// Package privilege implements the guardrail that decides whether lockdown
// may drive the host lock primitive.
//
// The privilege is an explicit, revocable consent record stored in the state
// directory. FileGate reads it on every query, never caching, because the
// user can delete it at any time. Watcher reports grant and revoke events
// so the daemon can surface them; it never prevents revocation.
package privilege
