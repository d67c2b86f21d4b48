package storage

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/flower-auction/internal/port"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	viewersKeyPrefix     = "clock:viewers:"
	peakKeyPrefix        = "clock:peak:"
	idempotencyKeyTTL    = 24 * time.Hour
	viewersKeyTTL        = 48 * time.Hour
)

var joinClockScript = redis.NewScript(`
local viewers = KEYS[1]
local peak = KEYS[2]
local ttl = tonumber(ARGV[1])

local current = redis.call('INCR', viewers)
redis.call('EXPIRE', viewers, ttl)

local highest = tonumber(redis.call('GET', peak) or '0')
if current > highest then
	redis.call('SET', peak, current, 'EX', ttl)
	highest = current
end

return {current, highest}
`)

var leaveClockScript = redis.NewScript(`
local key = KEYS[1]

local current = tonumber(redis.call('GET', key) or '0')
if current <= 0 then
	return 0
end

return redis.call('DECR', key)
`)

type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

var _ port.CacheRepository = (*RedisAdapter)(nil)

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) JoinClock(ctx context.Context, clockID string) (int, int, error) {
	keys := []string{viewersKeyPrefix + clockID, peakKeyPrefix + clockID}

	result, err := joinClockScript.Run(ctx, r.client, keys, int(viewersKeyTTL.Seconds())).Int64Slice()
	if err != nil {
		return 0, 0, err
	}

	return int(result[0]), int(result[1]), nil
}

func (r *RedisAdapter) LeaveClock(ctx context.Context, clockID string) (int, error) {
	return leaveClockScript.Run(ctx, r.client, []string{viewersKeyPrefix + clockID}).Int()
}

func (r *RedisAdapter) PeakViews(ctx context.Context, clockID string) (int, error) {
	peak, err := r.client.Get(ctx, peakKeyPrefix+clockID).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return peak, err
}
