package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/carebook/booking-api/internal/repository"
)

// codeStore keeps one-time login codes in Redis with a TTL. Only a bcrypt
// hash of the code is stored, and expiry is owned by the store itself, so no
// process-local state survives a restart or leaks across instances.
type codeStore struct {
	client *redis.Client
	prefix string
}

func NewCodeStore(client *redis.Client, prefix string) repository.CodeStore {
	if prefix == "" {
		prefix = "otp"
	}
	return &codeStore{client: client, prefix: prefix}
}

func (s *codeStore) key(k string) string {
	return fmt.Sprintf("%s:%s", s.prefix, k)
}

func (s *codeStore) Store(ctx context.Context, key, code string, ttl time.Duration) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash code: %w", err)
	}
	if err := s.client.Set(ctx, s.key(key), hash, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store code: %w", err)
	}
	return nil
}

// Verify checks the code and consumes it on success; a one-time code can
// never be replayed.
func (s *codeStore) Verify(ctx context.Context, key, code string) (bool, error) {
	hash, err := s.client.Get(ctx, s.key(key)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to load code: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		return false, nil
	}

	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return false, fmt.Errorf("failed to consume code: %w", err)
	}
	return true, nil
}

func (s *codeStore) Invalidate(ctx context.Context, key string) error {
	return s.client.Del(ctx, s.key(key)).Err()
}
