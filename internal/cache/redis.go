package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cafezinho/discovery/internal/config"
	"github.com/cafezinho/discovery/internal/models"
)

// RedisCache wraps the redis client with the discovery keys and TTLs.
type RedisCache struct {
	Client *redis.Client

	viewedTTL   time.Duration
	topUsersTTL time.Duration
}

// NewRedisCache initializes Redis client from config.
// Only Addr is mandatory, Password/DB are optional.
func NewRedisCache(cfg *config.Config) *RedisCache {
	opts := &redis.Options{
		Addr: cfg.Redis.Addr,
	}
	if cfg.Redis.Password != "" {
		opts.Password = cfg.Redis.Password
	}
	if cfg.Redis.DB != 0 {
		opts.DB = cfg.Redis.DB
	}

	c := &RedisCache{
		Client:      redis.NewClient(opts),
		viewedTTL:   cfg.Redis.ViewedTTL,
		topUsersTTL: cfg.Redis.TopUsersTTL,
	}
	if c.viewedTTL <= 0 {
		c.viewedTTL = 24 * time.Hour
	}
	if c.topUsersTTL <= 0 {
		c.topUsersTTL = 5 * time.Minute
	}
	return c
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.Client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}

// KeyForViewed generates the Redis key marking viewer -> viewed as sent.
func (c *RedisCache) KeyForViewed(viewerID, viewedID string) string {
	return fmt.Sprintf("viewed:%s:%s", viewerID, viewedID)
}

// KeyForTopUsers generates the Redis key for a user's cached top users.
func (c *RedisCache) KeyForTopUsers(userID string) string {
	return fmt.Sprintf("top_users:%s", userID)
}

// ClaimViewed returns true the first time a pair is seen within the TTL.
// Callers only send the viewed marker when they win the claim.
func (c *RedisCache) ClaimViewed(ctx context.Context, viewerID, viewedID string) (bool, error) {
	return c.Client.SetNX(ctx, c.KeyForViewed(viewerID, viewedID), 1, c.viewedTTL).Result()
}

// ReleaseViewed drops a claim so a failed send can be retried later.
func (c *RedisCache) ReleaseViewed(ctx context.Context, viewerID, viewedID string) error {
	return c.Client.Del(ctx, c.KeyForViewed(viewerID, viewedID)).Err()
}

// SetTopUsers caches users for the top users TTL.
func (c *RedisCache) SetTopUsers(ctx context.Context, userID string, users []models.SwipeUser) error {
	raw, err := json.Marshal(users)
	if err != nil {
		return fmt.Errorf("marshal top users: %w", err)
	}
	return c.Client.Set(ctx, c.KeyForTopUsers(userID), raw, c.topUsersTTL).Err()
}

// GetTopUsers returns ok=false on a cache miss.
func (c *RedisCache) GetTopUsers(ctx context.Context, userID string) ([]models.SwipeUser, bool, error) {
	raw, err := c.Client.Get(ctx, c.KeyForTopUsers(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}

	var users []models.SwipeUser
	if err := json.Unmarshal(raw, &users); err != nil {
		// corrupt entry: treat as a miss and let the caller overwrite it
		_ = c.Client.Del(ctx, c.KeyForTopUsers(userID)).Err()
		return nil, false, nil
	}
	return users, true, nil
}

// InvalidateTopUsers drops the cached top users of userID.
func (c *RedisCache) InvalidateTopUsers(ctx context.Context, userID string) error {
	return c.Client.Del(ctx, c.KeyForTopUsers(userID)).Err()
}
