// Package status shows lockdown progress to the user.
//
// A Surface receives ephemeral notices and the persistent indicator. Sinks
// exist for the structured log, desktop notifications and an in-memory
// recorder that backs the status API. Multi fans out to several sinks and
// Dedupe drops notices whose key was already delivered.
package status
