// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redis provides Redis implementations of auth.CodeStore and
// auth.UserStore.
//
// Each record is a hash; a sorted set scored by deadline indexes records for
// the sweeper. Consume and sweep run as Lua scripts, which Redis executes
// atomically. The scripts touch keys derived at runtime, so the store
// targets a single Redis primary rather than a cluster.
package redis

import (
	"context"
	"errors"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/passwordless/internal/auth"
)

// DefaultKeyPrefix namespaces every key the store writes.
const DefaultKeyPrefix = "passwordless:"

const sweepBatch = 500

// Hash fields.
const (
	fieldOTPHash      = "otp_hash"
	fieldTokenHash    = "token_hash"
	fieldExpiresAt    = "expires_at_ms"
	fieldAttemptsLeft = "attempts_left"
	fieldCreatedAt    = "created_at_ms"
	fieldUpdatedAt    = "updated_at_ms"
)

// consumeScript returns {status, attempts_left} using auth.ConsumeStatus values.
var consumeScript = goredis.NewScript(`
local rec = redis.call('HMGET', KEYS[1], 'otp_hash', 'token_hash', 'expires_at_ms', 'attempts_left')
if not rec[3] then
  return {0, 0}
end

if tonumber(ARGV[2]) >= tonumber(rec[3]) then
  redis.call('DEL', KEYS[1])
  redis.call('ZREM', KEYS[2], KEYS[1])
  return {3, 0}
end

local stored = rec[1] or rec[2] or ''
local submitted = ARGV[1]
local diff = 0
if #stored ~= #submitted then
  diff = 1
else
  for i = 1, #stored do
    diff = bit.bor(diff, bit.bxor(string.byte(stored, i), string.byte(submitted, i)))
  end
end

if diff == 0 then
  redis.call('DEL', KEYS[1])
  redis.call('ZREM', KEYS[2], KEYS[1])
  return {1, 0}
end

local left = redis.call('HINCRBY', KEYS[1], 'attempts_left', -1)
if left <= 0 then
  redis.call('DEL', KEYS[1])
  redis.call('ZREM', KEYS[2], KEYS[1])
else
  redis.call('HSET', KEYS[1], 'updated_at_ms', ARGV[2])
end
return {2, left}
`)

// sweepScript deletes up to ARGV[2] records due at or before ARGV[1].
var sweepScript = goredis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, key in ipairs(due) do
  redis.call('DEL', key)
  redis.call('ZREM', KEYS[1], key)
end
return #due
`)

// CodeStore implements auth.CodeStore on Redis.
type CodeStore struct {
	client goredis.Cmdable
	prefix string
}

// Compile-time interface check.
var _ auth.CodeStore = (*CodeStore)(nil)

// NewCodeStore creates a CodeStore. An empty prefix uses DefaultKeyPrefix.
func NewCodeStore(client goredis.Cmdable, prefix string) *CodeStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &CodeStore{client: client, prefix: prefix}
}

func (s *CodeStore) codeKey(email string, purpose auth.Purpose) string {
	return s.prefix + "code:" + string(purpose) + ":" + email
}

func (s *CodeStore) expiryKey() string {
	return s.prefix + "code:expiry"
}

// PutActive replaces the record for the key in one MULTI/EXEC block.
func (s *CodeStore) PutActive(ctx context.Context, code *auth.AuthCode) error {
	key := s.codeKey(code.Email, code.Purpose)
	fields := map[string]any{
		fieldExpiresAt:    code.ExpiresAt.UnixMilli(),
		fieldAttemptsLeft: code.AttemptsLeft,
		fieldCreatedAt:    code.CreatedAt.UnixMilli(),
		fieldUpdatedAt:    code.UpdatedAt.UnixMilli(),
	}
	if code.OTPHash != "" {
		fields[fieldOTPHash] = code.OTPHash
	} else {
		fields[fieldTokenHash] = code.TokenHash
	}

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, fields)
		pipe.ZAdd(ctx, s.expiryKey(), goredis.Z{Score: float64(code.ExpiresAt.UnixMilli()), Member: key})
		return nil
	})
	if err != nil {
		return oops.Code("AUTH_CODE_PUT_FAILED").
			With("operation", "replace auth code hash").
			With("purpose", string(code.Purpose)).
			Wrap(err)
	}
	return nil
}

// FetchActive returns the record for the key regardless of expiry.
func (s *CodeStore) FetchActive(ctx context.Context, email string, purpose auth.Purpose) (*auth.AuthCode, error) {
	values, err := s.client.HGetAll(ctx, s.codeKey(email, purpose)).Result()
	if err != nil {
		return nil, oops.Code("AUTH_CODE_FETCH_FAILED").
			With("operation", "hgetall auth code").
			Wrap(err)
	}
	if len(values) == 0 {
		return nil, oops.Code("AUTH_CODE_NOT_FOUND").
			With("purpose", string(purpose)).
			Wrap(auth.ErrNotFound)
	}
	return decodeCode(email, purpose, values)
}

// TryConsumeOrDecrement runs the consume script.
func (s *CodeStore) TryConsumeOrDecrement(ctx context.Context, email string, purpose auth.Purpose, pred auth.ConsumePredicate) (auth.ConsumeResult, error) {
	out, err := consumeScript.Run(ctx, s.client,
		[]string{s.codeKey(email, purpose), s.expiryKey()},
		pred.Digest, pred.Now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return auth.ConsumeResult{}, oops.Code("AUTH_CODE_CONSUME_FAILED").
			With("operation", "run consume script").
			With("purpose", string(purpose)).
			Wrap(err)
	}
	if len(out) != 2 {
		return auth.ConsumeResult{}, oops.Code("AUTH_CODE_CONSUME_FAILED").
			With("reply_length", len(out)).
			Errorf("unexpected consume script reply")
	}
	return auth.ConsumeResult{
		Status:       auth.ConsumeStatus(out[0]),
		AttemptsLeft: int(out[1]),
	}, nil
}

// DeleteExpired drains the expiry index up to now in batches.
func (s *CodeStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	for {
		n, err := sweepScript.Run(ctx, s.client, []string{s.expiryKey()}, now.UnixMilli(), sweepBatch).Int64()
		if err != nil {
			return total, oops.Code("AUTH_CODE_DELETE_EXPIRED_FAILED").
				With("operation", "run sweep script").
				With("deleted", total).
				Wrap(err)
		}
		total += n
		if n < sweepBatch {
			return total, nil
		}
	}
}

func decodeCode(email string, purpose auth.Purpose, values map[string]string) (*auth.AuthCode, error) {
	code := &auth.AuthCode{
		Email:     email,
		Purpose:   purpose,
		OTPHash:   values[fieldOTPHash],
		TokenHash: values[fieldTokenHash],
	}

	var errs []error
	millis := func(field string) time.Time {
		ms, err := strconv.ParseInt(values[field], 10, 64)
		if err != nil {
			errs = append(errs, err)
		}
		return time.UnixMilli(ms)
	}
	code.ExpiresAt = millis(fieldExpiresAt)
	code.CreatedAt = millis(fieldCreatedAt)
	code.UpdatedAt = millis(fieldUpdatedAt)

	attempts, err := strconv.Atoi(values[fieldAttemptsLeft])
	if err != nil {
		errs = append(errs, err)
	}
	code.AttemptsLeft = attempts

	if err := errors.Join(errs...); err != nil {
		return nil, oops.Code("AUTH_CODE_DECODE_FAILED").
			With("purpose", string(purpose)).
			Wrap(err)
	}
	return code, nil
}
