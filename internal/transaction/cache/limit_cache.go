package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/models"
	"github.com/suhas-svg/financial-backend-services-sub006/internal/transaction/repository"
)

// noLimitSentinel caches the absence of a configured limit, so unconfigured
// pairs do not hammer the store on every transaction.
const noLimitSentinel = "none"

type Config struct {
	Host         string
	Port         int
	Password     string
	Database     int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	TTL          time.Duration
	KeyPrefix    string
}

// LimitCache fronts the limit store with a short-TTL redis cache. Entries are
// invalidated explicitly on administrative mutation; the TTL bounds staleness
// for everything else.
type LimitCache struct {
	repo   repository.LimitRepository
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewLimitCache(cfg *Config, repo repository.LimitRepository) (*LimitCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:     cfg.Password,
		DB:           cfg.Database,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 || ttl > time.Minute {
		ttl = time.Minute
	}

	return &LimitCache{
		repo:   repo,
		client: client,
		ttl:    ttl,
		prefix: cfg.KeyPrefix,
	}, nil
}

func (c *LimitCache) key(accountType, txType string) string {
	if c.prefix != "" {
		return fmt.Sprintf("%s:limit:%s:%s", c.prefix, accountType, txType)
	}
	return fmt.Sprintf("limit:%s:%s", accountType, txType)
}

// FindActive returns the configured active limit or nil. Cache failures fall
// through to the store; limits must stay readable when redis is down.
func (c *LimitCache) FindActive(ctx context.Context, accountType, txType string) (*models.TransactionLimit, error) {
	key := c.key(accountType, txType)

	cached, err := c.client.Get(ctx, key).Result()
	if err == nil {
		if cached == noLimitSentinel {
			return nil, nil
		}
		var limit models.TransactionLimit
		if err := json.Unmarshal([]byte(cached), &limit); err == nil {
			return &limit, nil
		}
	} else if err != redis.Nil {
		logrus.WithError(err).Warn("limit cache read failed, falling back to store")
	}

	limit, err := c.repo.FindActive(ctx, accountType, txType)
	if err != nil {
		return nil, err
	}

	if limit == nil {
		c.client.Set(ctx, key, noLimitSentinel, c.ttl)
		return nil, nil
	}

	if data, err := json.Marshal(limit); err == nil {
		c.client.Set(ctx, key, data, c.ttl)
	}

	return limit, nil
}

// Invalidate drops the cache entry for a pair after an administrative change.
func (c *LimitCache) Invalidate(ctx context.Context, accountType, txType string) error {
	if err := c.client.Del(ctx, c.key(accountType, txType)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate limit cache: %w", err)
	}
	return nil
}

func (c *LimitCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *LimitCache) Close() error {
	return c.client.Close()
}
