package redis

import (
	"fmt"

	"github.com/go-redis/redis/v8"
)

// RedisClient persists room history and rosters for the dev backend.
type RedisClient struct {
	client       *redis.Client
	historyLimit int64
}

func NewRedisClient(host, port, password string, historyLimit int64) *RedisClient {
	addr := fmt.Sprintf("%s:%s", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})
	if historyLimit <= 0 {
		historyLimit = 100
	}
	return &RedisClient{client: client, historyLimit: historyLimit}
}
