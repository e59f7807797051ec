package codestore

import (
	"context"
	"crypto/subtle"
	"fmt"
	"sync"
	"time"
)

type record struct {
	code      string
	expiresAt time.Time
	attempts  int
}

// MemoryStore keeps records in a process-local map.
//
// A single mutex guards the whole map, so operations on different identities
// contend but never race. Deployments with very high identity counts would
// want to shard the map by identity hash.
type MemoryStore struct {
	policy Policy
	opts   options

	mu      sync.Mutex
	records map[string]*record
}

// NewMemoryStore creates an in-memory store. Zero policy fields take defaults.
func NewMemoryStore(policy Policy, opts ...Option) *MemoryStore {
	return &MemoryStore{
		policy:  policy.withDefaults(),
		opts:    buildOptions(opts),
		records: make(map[string]*record),
	}
}

// Generate issues a new code for identity, replacing any prior record.
func (s *MemoryStore) Generate(_ context.Context, identity string) (string, error) {
	code, err := s.opts.generate(s.policy.Digits)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[identity] = &record{
		code:      code,
		expiresAt: s.opts.now().Add(s.policy.TTL),
	}
	return code, nil
}

// Validate checks submitted against the outstanding record. The attempt
// counter is incremented before comparing, so a correct code on the last
// allowed attempt still succeeds.
func (s *MemoryStore) Validate(_ context.Context, identity, submitted string) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return ResultNotFound, nil
	}

	if s.opts.now().After(rec.expiresAt) {
		delete(s.records, identity)
		return ResultExpired, nil
	}

	if rec.attempts >= s.policy.MaxAttempts {
		delete(s.records, identity)
		return ResultMaxAttemptsExceeded, nil
	}

	rec.attempts++

	if subtle.ConstantTimeCompare([]byte(rec.code), []byte(submitted)) != 1 {
		if rec.attempts >= s.policy.MaxAttempts {
			delete(s.records, identity)
			return ResultMaxAttemptsExceeded, nil
		}
		return ResultIncorrect, nil
	}

	delete(s.records, identity)
	return ResultSuccess, nil
}

// RemainingSeconds returns whole seconds until expiry, removing the record
// once it has expired.
func (s *MemoryStore) RemainingSeconds(_ context.Context, identity string) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return 0, false, nil
	}

	secs, ok := SecondsUntil(rec.expiresAt.Sub(s.opts.now()).Milliseconds())
	if !ok {
		delete(s.records, identity)
		return 0, false, nil
	}
	return secs, true, nil
}

// CanResend reports whether a new code may replace the current one.
func (s *MemoryStore) CanResend(_ context.Context, identity string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return true, nil
	}
	expired := s.opts.now().After(rec.expiresAt)
	exhausted := rec.attempts >= s.policy.MaxAttempts
	return expired || exhausted, nil
}

// CurrentCode peeks at the stored code.
func (s *MemoryStore) CurrentCode(_ context.Context, identity string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return "", false, nil
	}
	return rec.code, true, nil
}

// Clear removes the record for identity.
func (s *MemoryStore) Clear(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, identity)
	return nil
}
