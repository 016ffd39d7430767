package pricecache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RedisCache stores each quote as a JSON value under its symbol key.
type RedisCache struct {
	client *redis.Client
}

type redisQuote struct {
	Token     uint32  `json:"token"`
	LTP       float64 `json:"ltp"`
	Timestamp int64   `json:"timestamp"` // epoch seconds
}

// NewRedisCache connects and pings the server.
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return &RedisCache{client: client}, nil
}

// Ping checks the connection.
func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Get(ctx context.Context, symbol string) (Quote, bool, error) {
	raw, err := r.client.Get(ctx, symbol).Bytes()
	if err == redis.Nil {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, fmt.Errorf("redis get %s: %w", symbol, err)
	}

	var rq redisQuote
	if err := json.Unmarshal(raw, &rq); err != nil {
		return Quote{}, false, fmt.Errorf("decoding quote %s: %w", symbol, err)
	}
	return Quote{
		Token:     rq.Token,
		LTP:       rq.LTP,
		Timestamp: time.Unix(rq.Timestamp, 0),
	}, true, nil
}

func (r *RedisCache) Set(ctx context.Context, symbol string, q Quote) error {
	raw, err := json.Marshal(redisQuote{
		Token:     q.Token,
		LTP:       q.LTP,
		Timestamp: q.Timestamp.Unix(),
	})
	if err != nil {
		return err
	}
	return r.client.Set(ctx, symbol, raw, 0).Err()
}

func (r *RedisCache) Flag(ctx context.Context, key string) (bool, error) {
	raw, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("flag %s: %w", key, err)
	}
	return v, nil
}

func (r *RedisCache) SetFlag(ctx context.Context, key string, value bool) error {
	return r.client.Set(ctx, key, strconv.FormatBool(value), 0).Err()
}

func (r *RedisCache) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	iter := r.client.Scan(ctx, 0, prefix+"*", 500).Iterator()
	n := 0
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return n, fmt.Errorf("redis del %s: %w", iter.Val(), err)
		}
		n++
	}
	if err := iter.Err(); err != nil {
		return n, fmt.Errorf("redis scan %s*: %w", prefix, err)
	}
	return n, nil
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
