// Package state implements persistence for schedules and alarm records.
//
// Schedules are a keyed map {daily_window, countdown}; alarm records are the
// dispatcher's durable wall-clock alarms. Both are encoded as protobuf
// Struct values so the JSON files and the SQLite payload columns share one
// codec. FileRepository writes JSON files atomically; SQLiteRepository keeps
// both in one database.
package state
