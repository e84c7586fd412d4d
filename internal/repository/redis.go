package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/ahmad-rian/muncak-id-pusher-sub000/internal/config"
)

// decrFloorScript decrements a counter without letting it go below zero.
var decrFloorScript = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current <= 0 then
	redis.call('SET', KEYS[1], '0')
	return 0
end
return redis.call('DECR', KEYS[1])
`)

// rateLimitScript counts a hit in a fixed window and returns {hits, remaining ttl in ms}.
var rateLimitScript = redis.NewScript(`
local hits = redis.call('INCR', KEYS[1])
if hits == 1 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
local ttl = redis.call('PTTL', KEYS[1])
if ttl < 0 then
	redis.call('PEXPIRE', KEYS[1], ARGV[1])
	ttl = tonumber(ARGV[1])
end
return {hits, ttl}
`)

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(cfg config.RedisConfig) (*RedisRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisRepository{client: client}, nil
}

func NewRedisRepositoryWithClient(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func (r *RedisRepository) Client() *redis.Client {
	return r.client
}

func (r *RedisRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRepository) Close() error {
	return r.client.Close()
}

func viewersKey(streamID string) string {
	return fmt.Sprintf("stream:%s:viewers", streamID)
}

func rateLimitKey(ip string) string {
	return fmt.Sprintf("chat_rate_limit:%s", ip)
}

func (r *RedisRepository) IncrViewers(ctx context.Context, streamID string) (int64, error) {
	n, err := r.client.Incr(ctx, viewersKey(streamID)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment viewers: %w", err)
	}
	return n, nil
}

func (r *RedisRepository) DecrViewers(ctx context.Context, streamID string) (int64, error) {
	n, err := decrFloorScript.Run(ctx, r.client, []string{viewersKey(streamID)}).Int64()
	if err != nil {
		return 0, fmt.Errorf("failed to decrement viewers: %w", err)
	}
	return n, nil
}

func (r *RedisRepository) GetViewers(ctx context.Context, streamID string) (int64, error) {
	n, err := r.client.Get(ctx, viewersKey(streamID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get viewers: %w", err)
	}
	return n, nil
}

func (r *RedisRepository) SetViewers(ctx context.Context, streamID string, count int64) error {
	if count < 0 {
		count = 0
	}
	if err := r.client.Set(ctx, viewersKey(streamID), count, 0).Err(); err != nil {
		return fmt.Errorf("failed to set viewers: %w", err)
	}
	return nil
}

// ClearViewers drops the live counter of a stream.
func (r *RedisRepository) ClearViewers(ctx context.Context, streamID string) error {
	return r.client.Del(ctx, viewersKey(streamID)).Err()
}

// HitRateLimit records one action for ip and reports whether it is within limit.
// When it is not, wait is the time until the window resets.
func (r *RedisRepository) HitRateLimit(ctx context.Context, ip string, limit int, window time.Duration) (bool, time.Duration, error) {
	res, err := rateLimitScript.Run(ctx, r.client, []string{rateLimitKey(ip)}, window.Milliseconds()).Result()
	if err != nil {
		return false, 0, fmt.Errorf("failed to check rate limit: %w", err)
	}

	values, ok := res.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit reply %v", res)
	}
	hits, _ := values[0].(int64)
	ttl, _ := values[1].(int64)

	if hits <= int64(limit) {
		return true, 0, nil
	}
	if ttl < 0 {
		ttl = 0
	}
	return false, time.Duration(ttl) * time.Millisecond, nil
}

func (r *RedisRepository) Publish(ctx context.Context, channel string, message []byte) error {
	if err := r.client.Publish(ctx, channel, message).Err(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", channel, err)
	}
	return nil
}

func (r *RedisRepository) PSubscribe(ctx context.Context, patterns ...string) *redis.PubSub {
	return r.client.PSubscribe(ctx, patterns...)
}
