// Package telemetry implements async delivery of flow events to a sink.
//
// # Components
//
//   - [Sink] is the consumer interface.
//   - [Dispatcher] is a buffered relay with drop-if-full or block-if-full semantics.
//   - [Event] is a named flow event with string parameters.
//
// # Architecture boundaries
//
// This package owns buffering and sink delivery. It does NOT decide which
// events to emit; the flow controller does.
//
// # What this package must NOT do
//
//   - Let a failing or panicking sink affect the caller.
//   - Import otpflow or any sibling internal package.
package telemetry
