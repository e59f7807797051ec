// Package middleware exposes an HTTP guard for session tokens issued when a
// login flow reaches SessionActive.
//
// [Guard] reads the Authorization header, parses the bearer token with a
// [TokenParser] and injects the claims into the request context, where
// [ClaimsFromContext] retrieves them.
//
// # What this package must NOT do
//
//   - Issue tokens (the controller does that on successful verification).
//   - Touch the code store or any login flow state.
package middleware
