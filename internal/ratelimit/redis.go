package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "eventhub:ratelimit:"

// Redis is a fixed-window limiter backed by a shared Redis instance.
//
// Each (key, window) pair is one counter. INCR and EXPIRE run in a single
// MULTI/EXEC, so a counter never outlives its window.
type Redis struct {
	client  *redis.Client
	maxReqs int
	window  time.Duration
	now     func() time.Time
}

func NewRedis(client *redis.Client, maxRequests int, window time.Duration) *Redis {
	return &Redis{
		client:  client,
		maxReqs: maxRequests,
		window:  window,
		now:     time.Now,
	}
}

// NewRedisClient parses a redis:// URL and checks the server answers.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

func (l *Redis) Allow(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return true, nil
	}

	slot := l.now().UnixNano() / int64(l.window)
	counterKey := redisKeyPrefix + key + ":" + strconv.FormatInt(slot, 10)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, counterKey)
		pipe.Expire(ctx, counterKey, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("ratelimit: counting %s: %w", key, err)
	}

	return incr.Val() <= int64(l.maxReqs), nil
}
