// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/passwordless/internal/auth"
)

// keyValue is the subset of the Redis client the user store needs.
type keyValue interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
}

// userRecord is the JSON value stored per user.
type userRecord struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	CreatedAtMs int64  `json:"created_at_ms"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

// UserStore implements auth.UserStore with one string key per address.
// SETNX makes the first creator win.
type UserStore struct {
	client keyValue
	prefix string
}

var _ auth.UserStore = (*UserStore)(nil)

// NewUserStore creates a UserStore. An empty prefix uses DefaultKeyPrefix.
func NewUserStore(client keyValue, prefix string) *UserStore {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &UserStore{client: client, prefix: prefix}
}

func (s *UserStore) userKey(email string) string {
	return s.prefix + "user:" + email
}

// GetByEmail returns auth.ErrNotFound when the key is absent.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*auth.User, error) {
	raw, err := s.client.Get(ctx, s.userKey(email)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, oops.Code("USER_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_QUERY_FAILED").With("operation", "get user").Wrap(err)
	}
	return decodeUser(raw)
}

// Create stores user unless the address is taken.
func (s *UserStore) Create(ctx context.Context, user *auth.User) error {
	raw, err := json.Marshal(userRecord{
		ID:          user.ID.String(),
		Email:       user.Email,
		CreatedAtMs: user.CreatedAt.UnixMilli(),
		UpdatedAtMs: user.UpdatedAt.UnixMilli(),
	})
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "encode user").Wrap(err)
	}

	created, err := s.client.SetNX(ctx, s.userKey(user.Email), raw, 0).Result()
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("operation", "set user").Wrap(err)
	}
	if !created {
		return oops.Code("USER_EXISTS").Wrap(auth.ErrUserExists)
	}
	return nil
}

func decodeUser(raw string) (*auth.User, error) {
	var rec userRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, oops.Code("USER_DECODE_FAILED").Wrap(err)
	}
	id, err := ulid.Parse(rec.ID)
	if err != nil {
		return nil, oops.Code("USER_DECODE_FAILED").With("id", rec.ID).Wrap(err)
	}
	return &auth.User{
		ID:        id,
		Email:     rec.Email,
		CreatedAt: time.UnixMilli(rec.CreatedAtMs).UTC(),
		UpdatedAt: time.UnixMilli(rec.UpdatedAtMs).UTC(),
	}, nil
}
