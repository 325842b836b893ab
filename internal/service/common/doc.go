// Package common holds helpers shared by the lockdown binaries.
//
// It provides a lightweight gRPC client for the lockdownd control API with
// timeouts and domain error mapping, and a helper to detect the current
// system actor (hostname/username) recorded with privilege grants.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
