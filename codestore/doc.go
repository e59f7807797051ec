// Package codestore owns the short-lived one-time code records behind the
// passwordless login flow.
//
// # Design
//
// A store holds at most one record per identity: the code, its absolute
// expiry and an attempt counter. Generate replaces any prior record. A record
// is single-use: it is removed when validated successfully, when it is found
// expired, or when its attempt counter reaches the policy limit.
//
// Validation outcomes are values ([Result]), never errors. The error return on
// every [Store] method is reserved for infrastructure failures and wraps
// [ErrUnavailable].
//
// # Backends
//
//   - [MemoryStore]: process-local map behind a single mutex.
//   - [RedisStore]: versioned binary records; Validate and RemainingSeconds run
//     as Lua scripts so each operation is atomic on the server.
//
// # What this package must NOT do
//
//   - Import otpflow or know about flow states, timers or presentation.
//   - Expose bulk iteration over identities.
//   - Log or expose codes other than through CurrentCode.
package codestore
