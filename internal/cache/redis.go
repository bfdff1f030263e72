package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Redis is a Cache backed by a Redis client.
type Redis struct {
	client *redis.Client
}

// NewRedis wraps a Redis client as a Cache.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

// Get returns the cached value; any backend failure reads as a miss.
func (c *Redis) Get(ctx context.Context, key string) (string, bool) {
	if c == nil || c.client == nil {
		return "", false
	}
	value, errGet := c.client.Get(ctx, key).Result()
	if errGet != nil {
		if !errors.Is(errGet, redis.Nil) {
			log.Debugf("cache: get %s: %v", key, errGet)
		}
		return "", false
	}
	return value, true
}

// Set stores a value with a TTL; failures are logged and dropped.
func (c *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if c == nil || c.client == nil {
		return
	}
	if errSet := c.client.Set(ctx, key, value, ttl).Err(); errSet != nil {
		log.Debugf("cache: set %s: %v", key, errSet)
	}
}

// Delete removes a single key; failures are logged and dropped.
func (c *Redis) Delete(ctx context.Context, key string) {
	if c == nil || c.client == nil {
		return
	}
	if errDel := c.client.Del(ctx, key).Err(); errDel != nil {
		log.Debugf("cache: delete %s: %v", key, errDel)
	}
}

// DeletePrefix removes all keys under the prefix using SCAN.
func (c *Redis) DeletePrefix(ctx context.Context, prefix string) {
	if c == nil || c.client == nil {
		return
	}
	iter := c.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if errScan := iter.Err(); errScan != nil {
		log.Debugf("cache: scan %s: %v", prefix, errScan)
		return
	}
	if len(keys) == 0 {
		return
	}
	if errDel := c.client.Del(ctx, keys...).Err(); errDel != nil {
		log.Debugf("cache: delete prefix %s: %v", prefix, errDel)
	}
}
