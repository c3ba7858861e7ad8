// Package redis provides the Redis-backed session store.
package redis

import (
	"context"
	"fmt"
	"net"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ConnConfig holds Redis connection configuration.
type ConnConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// Connect opens a Redis client and verifies it with PING. The client is
// shared by the session store and the Redis notifier.
func Connect(cfg ConnConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     net.JoinHostPort(cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return client, nil
}
