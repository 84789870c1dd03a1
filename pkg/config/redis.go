package config

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

var Redis *redis.Client

// InitRedis connects to REDIS_URL. Without it the week lock stays in-process.
func InitRedis(s *Settings) {
	if s.RedisURL == "" {
		log.Info("Redis not configured, week lock is process local")
		return
	}
	opts, err := redis.ParseURL(s.RedisURL)
	if err != nil {
		log.Fatal("Invalid REDIS_URL: ", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatal("Failed to connect to Redis: ", err)
	}
	Redis = client
	log.Info("Successfully connected to Redis")
}
