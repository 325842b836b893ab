// Package clock abstracts wall-clock time for the scheduler.
//
// Clock is the timer surface (Now, AfterFunc, NewTicker) with a real
// implementation backed by the time package and a Fake whose Advance fires
// due callbacks synchronously. Source adds the local-time arithmetic used to
// resolve an (hour, minute) pair to its next absolute instant.
package clock
