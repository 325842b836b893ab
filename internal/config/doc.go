// Package config defines the settings shared by lockdownd and the lockdown
// CLI and provides helpers to load, validate and save them in YAML format.
//
// Defaults follow the XDG base directory layout: the settings file lives
// under the XDG config home and schedules, alarm records and the privilege
// grant live under the XDG state home.
package config
