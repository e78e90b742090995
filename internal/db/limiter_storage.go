package db

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const limiterPrefix = "ratelimit:"

// LimiterStorage adapts a Redis client to fiber.Storage so rate-limit
// counters are shared across instances.
type LimiterStorage struct {
	client  *redis.Client
	timeout time.Duration
}

func NewLimiterStorage(client *redis.Client) *LimiterStorage {
	return &LimiterStorage{client: client, timeout: time.Second}
}

func (s *LimiterStorage) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *LimiterStorage) Get(key string) ([]byte, error) {
	if key == "" {
		return nil, nil
	}
	ctx, cancel := s.ctx()
	defer cancel()

	val, err := s.client.Get(ctx, limiterPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return val, err
}

func (s *LimiterStorage) Set(key string, val []byte, exp time.Duration) error {
	if key == "" || len(val) == 0 {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Set(ctx, limiterPrefix+key, val, exp).Err()
}

func (s *LimiterStorage) Delete(key string) error {
	if key == "" {
		return nil
	}
	ctx, cancel := s.ctx()
	defer cancel()
	return s.client.Del(ctx, limiterPrefix+key).Err()
}

// Reset removes every limiter key.
func (s *LimiterStorage) Reset() error {
	ctx, cancel := s.ctx()
	defer cancel()

	iter := s.client.Scan(ctx, 0, limiterPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := s.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

// Close is a no-op; the client is owned by the process bootstrap.
func (s *LimiterStorage) Close() error {
	return nil
}
