package codestore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultRedisPrefix namespaces code records in Redis.
	DefaultRedisPrefix = "otp"

	codeRecordVersionV1 = 1
)

// validateCodeLua atomically performs GET→check→DEL/SET on a code record.
// KEYS[1] = record key
// ARGV[1] = submitted code
// ARGV[2] = max attempts
// ARGV[3] = current unix time in milliseconds
//
// Returns the numeric Result value.
var validateCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return 5
end

local submitted = ARGV[1]
local maxAttempts = tonumber(ARGV[2])
local nowMs = tonumber(ARGV[3])

-- version(1) attempts(2 big-endian) expiresAtMillis(8 big-endian) codeLen(1) code
if string.byte(data, 1) ~= 1 then
  redis.call('DEL', KEYS[1])
  return 5
end

local attempts = string.byte(data, 2) * 256 + string.byte(data, 3)

local expiresAt = 0
for i = 4, 11 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

if nowMs > expiresAt then
  redis.call('DEL', KEYS[1])
  return 3
end

if attempts >= maxAttempts then
  redis.call('DEL', KEYS[1])
  return 4
end

attempts = attempts + 1

local codeLen = string.byte(data, 12)
local stored = string.sub(data, 13, 12 + codeLen)

if stored ~= submitted then
  if attempts >= maxAttempts then
    redis.call('DEL', KEYS[1])
    return 4
  end
  local newData = string.sub(data, 1, 1) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 4)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs > 0 then
    redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  else
    redis.call('SET', KEYS[1], newData)
  end
  return 2
end

redis.call('DEL', KEYS[1])
return 1
`)

// remainingCodeLua returns milliseconds until expiry, or -1 when the record
// is missing or expired. Expired records are deleted.
// KEYS[1] = record key
// ARGV[1] = current unix time in milliseconds
var remainingCodeLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return -1
end

local expiresAt = 0
for i = 4, 11 do
  expiresAt = expiresAt * 256 + string.byte(data, i)
end

local remaining = expiresAt - tonumber(ARGV[1])
if remaining <= 0 then
  redis.call('DEL', KEYS[1])
  return -1
end
return remaining
`)

type codeRecord struct {
	Code            string
	ExpiresAtMillis int64
	Attempts        uint16
}

// RedisStore keeps records in Redis so several processes can share them.
//
// Keys live for TTL plus a retention window of one more TTL, so a code that
// expired recently is still reported as expired rather than not found.
type RedisStore struct {
	redis  redis.UniversalClient
	prefix string
	policy Policy
	opts   options
}

// NewRedisStore creates a Redis-backed store. An empty prefix uses
// [DefaultRedisPrefix]; zero policy fields take defaults.
func NewRedisStore(client redis.UniversalClient, prefix string, policy Policy, opts ...Option) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{
		redis:  client,
		prefix: prefix,
		policy: policy.withDefaults(),
		opts:   buildOptions(opts),
	}
}

func (s *RedisStore) key(identity string) string {
	return s.prefix + ":" + identity
}

func (s *RedisStore) nowMillis() int64 {
	return s.opts.now().UnixMilli()
}

// Generate issues a new code for identity, replacing any prior record.
func (s *RedisStore) Generate(ctx context.Context, identity string) (string, error) {
	code, err := s.opts.generate(s.policy.Digits)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	encoded, err := encodeCodeRecord(&codeRecord{
		Code:            code,
		ExpiresAtMillis: s.nowMillis() + s.policy.TTL.Milliseconds(),
	})
	if err != nil {
		return "", err
	}

	if err := s.redis.Set(ctx, s.key(identity), encoded, 2*s.policy.TTL).Err(); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return code, nil
}

// Validate checks submitted against the outstanding record in one script call.
func (s *RedisStore) Validate(ctx context.Context, identity, submitted string) (Result, error) {
	n, err := validateCodeLua.Run(ctx, s.redis,
		[]string{s.key(identity)},
		submitted,
		s.policy.MaxAttempts,
		s.nowMillis(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	result := Result(n)
	if result < ResultSuccess || result > ResultNotFound {
		return 0, fmt.Errorf("%w: unexpected script result %d", ErrUnavailable, n)
	}
	return result, nil
}

// RemainingSeconds returns whole seconds until expiry, deleting the record
// once it has expired.
func (s *RedisStore) RemainingSeconds(ctx context.Context, identity string) (int64, bool, error) {
	ms, err := remainingCodeLua.Run(ctx, s.redis, []string{s.key(identity)}, s.nowMillis()).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	secs, ok := SecondsUntil(ms)
	return secs, ok, nil
}

// CanResend reports whether a new code may replace the current one.
func (s *RedisStore) CanResend(ctx context.Context, identity string) (bool, error) {
	rec, ok, err := s.load(ctx, identity)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}
	expired := s.nowMillis() > rec.ExpiresAtMillis
	exhausted := int(rec.Attempts) >= s.policy.MaxAttempts
	return expired || exhausted, nil
}

// CurrentCode peeks at the stored code.
func (s *RedisStore) CurrentCode(ctx context.Context, identity string) (string, bool, error) {
	rec, ok, err := s.load(ctx, identity)
	if err != nil || !ok {
		return "", false, err
	}
	return rec.Code, true, nil
}

// Clear removes the record for identity.
func (s *RedisStore) Clear(ctx context.Context, identity string) error {
	if err := s.redis.Del(ctx, s.key(identity)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *RedisStore) load(ctx context.Context, identity string) (*codeRecord, bool, error) {
	data, err := s.redis.Get(ctx, s.key(identity)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec, err := decodeCodeRecord(data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return rec, true, nil
}

func encodeCodeRecord(record *codeRecord) ([]byte, error) {
	if len(record.Code) == 0 || len(record.Code) > 255 {
		return nil, errors.New("code record code length out of range")
	}

	var buf bytes.Buffer
	buf.WriteByte(codeRecordVersionV1)

	if err := binary.Write(&buf, binary.BigEndian, record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAtMillis); err != nil {
		return nil, err
	}

	buf.WriteByte(byte(len(record.Code)))
	buf.WriteString(record.Code)

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*codeRecord, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	record := &codeRecord{}
	if err := binary.Read(reader, binary.BigEndian, &record.Attempts); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAtMillis); err != nil {
		return nil, err
	}

	codeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, code); err != nil {
		return nil, err
	}
	record.Code = string(code)

	return record, nil
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*RedisStore)(nil)
)
