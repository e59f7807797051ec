// Package jwt issues and verifies signed session tokens for identities that
// completed a one-time-code login.
package jwt
