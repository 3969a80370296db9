package oclient

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "wechat-oauth:token:"

var _ TokenStore = &RedisStore{}

// RedisStore keeps one key per openid. Values are JSON, sealed when a Sealer
// is given.
type RedisStore struct {
	redis  redis.Cmdable
	sealer *Sealer
	ttl    time.Duration
}

// NewRedisStore creates a RedisStore. A ttl of 0 keeps keys forever; otherwise
// keys expire ttl after their last save, which bounds how long a refresh
// token is remembered.
func NewRedisStore(cmdable redis.Cmdable, sealer *Sealer, ttl time.Duration) *RedisStore {
	return &RedisStore{redis: cmdable, sealer: sealer, ttl: ttl}
}

// GetToken retrieves the stored credential for openID.
func (s *RedisStore) GetToken(ctx context.Context, openID string) (*Credential, error) {
	data, err := s.redis.Get(ctx, redisKeyPrefix+openID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, &StoreError{Op: "get", OpenID: openID, Err: err}
	}
	cred, err := s.sealer.Unmarshal(data)
	if err != nil {
		return nil, &StoreError{Op: "get", OpenID: openID, Err: err}
	}
	return cred, nil
}

// SaveToken writes the credential for openID.
func (s *RedisStore) SaveToken(ctx context.Context, openID string, cred *Credential) error {
	data, err := s.sealer.Marshal(cred)
	if err != nil {
		return &StoreError{Op: "save", OpenID: openID, Err: err}
	}
	if err := s.redis.Set(ctx, redisKeyPrefix+openID, data, s.ttl).Err(); err != nil {
		return &StoreError{Op: "save", OpenID: openID, Err: err}
	}
	return nil
}
