package queue

import (
	"context"

	"go-lead-import/internal/config"

	"github.com/go-redis/redis/v8"
	"go.uber.org/fx"
)

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(lc fx.Lifecycle, cfg *config.Config) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})

	return &RedisClient{client: client}, nil
}

func (r *RedisClient) Client() *redis.Client {
	return r.client
}
