package config

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

var (
	rdb    *redis.Client
	locker *redislock.Client
)

func GetRedisDB() *redis.Client {
	return rdb
}

// GetRedisLock returns the distributed lock client, or nil when redis
// is not configured. Callers must degrade gracefully on nil.
func GetRedisLock() *redislock.Client {
	return locker
}

// ConnectRedisWithRetry connects and sets the global redis client and
// lock client. Redis is optional for this service: it only backs the
// cross-instance recalculation lock, so a missing REDIS_ADDRESS is not
// fatal.
func ConnectRedisWithRetry() {
	address := strings.TrimSpace(os.Getenv("REDIS_ADDRESS"))
	if address == "" {
		log.Printf("REDIS_ADDRESS not set; running without redis lock")
		return
	}

	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: os.Getenv("REDIS_PASSWORD"),
	})

	var attempt int
	for {
		attempt++
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		err := client.Ping(ctx).Err()
		cancel()
		if err == nil {
			rdb = client
			locker = redislock.New(client)
			log.Printf("connected to redis (attempt=%d)", attempt)
			return
		}
		if attempt >= 5 {
			log.Printf("giving up on redis after %d attempts: %v; running without redis lock", attempt, err)
			return
		}
		sleep := time.Second * time.Duration(1<<min(attempt, 4))
		log.Printf("failed to connect redis (attempt=%d): %v; retrying in %s", attempt, err, sleep)
		time.Sleep(sleep)
	}
}
