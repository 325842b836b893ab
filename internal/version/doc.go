// Package version exposes build metadata shared by lockdown and lockdownd.
//
// Version, Commit and BuildTime are injected with -ldflags -X at build time.
package version
