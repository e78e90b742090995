package db

import (
	"github.com/agehcx/hiking-app-sub000/internal/config"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns nil when no address is configured; Redis is optional.
func ConnectRedis(cfg config.Config) *redis.Client {
	if cfg.Redis.Addr == "" {
		return nil
	}

	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
}
