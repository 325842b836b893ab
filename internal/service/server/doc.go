// Package server runs lockdownd: it wires the schedule store, alarm
// dispatcher, enforcer and privilege watcher together and serves the gRPC
// control API until the context ends.
package server
