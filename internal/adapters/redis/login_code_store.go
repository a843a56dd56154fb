package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultLoginCodePrefix = "logincode:"

// LoginCodeStore keeps one-time login codes in Redis, keyed by the E.164
// phone number they were issued for. Redis TTLs enforce code expiry;
// GetDel makes consumption single-use.
type LoginCodeStore struct {
	client redis.UniversalClient
	prefix string
}

// NewLoginCodeStore creates a new Redis-based login code store.
func NewLoginCodeStore(client redis.UniversalClient) *LoginCodeStore {
	return &LoginCodeStore{client: client, prefix: defaultLoginCodePrefix}
}

// NewLoginCodeStoreWithPrefix creates a login code store with a custom key
// prefix, useful for test isolation on a shared instance.
func NewLoginCodeStoreWithPrefix(client redis.UniversalClient, prefix string) *LoginCodeStore {
	return &LoginCodeStore{client: client, prefix: prefix}
}

// SaveCode stores the code for the phone number, replacing any earlier
// unredeemed code.
func (s *LoginCodeStore) SaveCode(ctx context.Context, phoneE164, code string, ttl time.Duration) error {
	if phoneE164 == "" {
		return errors.New("phone number cannot be empty")
	}
	if code == "" {
		return errors.New("code cannot be empty")
	}
	if ttl <= 0 {
		return errors.New("ttl must be positive")
	}
	return s.client.Set(ctx, s.prefix+phoneE164, code, ttl).Err()
}

// ConsumeCode atomically fetches and deletes the stored code. A missing or
// expired code returns "" with no error; the caller treats that the same as
// a mismatch.
func (s *LoginCodeStore) ConsumeCode(ctx context.Context, phoneE164 string) (string, error) {
	if phoneE164 == "" {
		return "", nil
	}

	code, err := s.client.GetDel(ctx, s.prefix+phoneE164).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", nil
		}
		return "", fmt.Errorf("redis getdel: %w", err)
	}
	return code, nil
}
