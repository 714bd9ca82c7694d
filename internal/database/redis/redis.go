package redis

import (
	"context"
	"log"
	"memory-service/internal/config"

	"github.com/redis/go-redis/v9"
)

// Redis_Client stays nil when no Redis address is configured; callers fall
// back to the in-memory token store in that case.
var Redis_Client *redis.Client

func init() {
	cfg := config.ServiceConfig.Redis
	if cfg.Address == "" {
		log.Println("Warning: Redis address is empty, confirmation tokens will use the in-memory store")
		return
	}

	Redis_Client = redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := Redis_Client.Ping(context.Background()).Err(); err != nil {
		log.Printf("Warning: Could not verify Redis connection: %s", err)
	} else {
		log.Println("Successfully connected to Redis")
	}
}

func DisconnectRedis() {
	if Redis_Client != nil {
		if err := Redis_Client.Close(); err != nil {
			log.Printf("Error disconnecting from Redis: %s", err)
		}
	}
}
