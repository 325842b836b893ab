// Package lockdown implements the gRPC transport of the lockdownd control API.
//
// Messages are protobuf well-known types, so the service descriptor is
// registered by hand: countdown seconds travel as a StringValue, a daily
// window as a Struct with "start" and "end" and the status snapshot as a
// Struct. Domain errors become status codes carrying an ErrorInfo whose
// reason is the lockdown.ErrorKind, which FromStatus maps back.
package lockdown
