package server

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/go-redis/redis/v8"
)

const apiKeyPrefix = "apikey:"

// KeyStore issues and checks API keys.
type KeyStore interface {
	Create(ctx context.Context) (string, error)
	Valid(ctx context.Context, key string) (bool, error)
}

// RedisKeyStore keeps each key as "apikey:<hex>" with no expiry.
type RedisKeyStore struct {
	client   redis.Cmdable
	generate func() (string, error)
}

func NewRedisKeyStore(client redis.Cmdable) *RedisKeyStore {
	return &RedisKeyStore{client: client, generate: GenerateAPIKey}
}

func (s *RedisKeyStore) Create(ctx context.Context) (string, error) {
	key, err := s.generate()
	if err != nil {
		return "", fmt.Errorf("could not generate API key: %w", err)
	}
	if err := s.client.Set(ctx, apiKeyPrefix+key, true, 0).Err(); err != nil {
		return "", fmt.Errorf("failed to store API key: %w", err)
	}
	return key, nil
}

func (s *RedisKeyStore) Valid(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, nil
	}
	n, err := s.client.Exists(ctx, apiKeyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to look up API key: %w", err)
	}
	return n > 0, nil
}

// GenerateAPIKey returns 16 random bytes, hex encoded.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
