// internal/infrastructure/database/redis/connection.go
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/your-org/seasonal-storefront/internal/config"
)

// Client owns the redis connection pool that backs carts and rate limits
type Client struct {
	rdb    *redis.Client
	logger *logrus.Logger
}

// NewConnection dials redis and fails unless the server answers a PING
func NewConnection(cfg *config.Config, logger *logrus.Logger) (*Client, error) {
	rdb := redis.NewClient(Options(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.GetRedisAddr(), err)
	}

	logger.WithFields(logrus.Fields{
		"addr": cfg.GetRedisAddr(),
		"db":   cfg.Redis.DB,
	}).Info("✅ Redis connection established successfully")

	return &Client{rdb: rdb, logger: logger}, nil
}

// Options maps the redis section of cfg onto client options
func Options(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:         cfg.GetRedisAddr(),
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolTimeout:  4 * time.Second,
	}
}

// Close logs the final pool statistics and closes the pool
func (c *Client) Close() error {
	stats := c.rdb.PoolStats()
	c.logger.WithFields(logrus.Fields{
		"hits":     stats.Hits,
		"misses":   stats.Misses,
		"timeouts": stats.Timeouts,
	}).Debug("Closing Redis connection pool")
	return c.rdb.Close()
}

// GetClient returns the underlying client for cart stores and middleware
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Health pings redis within ctx
func (c *Client) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}
