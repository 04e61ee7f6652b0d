package storage

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyKeyPrefix  = "idem:"
	availabilityKeyPrefix = "avail:"

	idempotencyKeyTTL  = 24 * time.Hour
	availabilityTTL    = 30 * time.Second
	idempotencyPending = "pending"
)

// RedisAdapter backs commit idempotency and the availability snapshot cache
// served to cart reads. It is never authoritative for supply; MySQL is.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

// ClaimIdempotency marks the key in-flight with SETNX; a false return means
// some commit already claimed it.
func (r *RedisAdapter) ClaimIdempotency(ctx context.Context, key string) (bool, error) {
	return r.client.SetNX(ctx, idempotencyKeyPrefix+key, idempotencyPending, idempotencyKeyTTL).Result()
}

func (r *RedisAdapter) StoreIdempotencyResult(ctx context.Context, key, orderID string) error {
	return r.client.Set(ctx, idempotencyKeyPrefix+key, orderID, idempotencyKeyTTL).Err()
}

// GetIdempotencyResult returns the order id stored under the key, or "" while
// the original commit is still pending or the key is unknown.
func (r *RedisAdapter) GetIdempotencyResult(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, idempotencyKeyPrefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if val == idempotencyPending {
		return "", nil
	}
	return val, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}

func (r *RedisAdapter) SetAvailability(ctx context.Context, itemID string, qty int) error {
	return r.client.Set(ctx, availabilityKeyPrefix+itemID, qty, availabilityTTL).Err()
}

func (r *RedisAdapter) GetAvailability(ctx context.Context, itemID string) (int, bool, error) {
	val, err := r.client.Get(ctx, availabilityKeyPrefix+itemID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	qty, err := strconv.Atoi(val)
	if err != nil {
		return 0, false, err
	}
	return qty, true, nil
}

func (r *RedisAdapter) InvalidateAvailability(ctx context.Context, itemID string) error {
	return r.client.Del(ctx, availabilityKeyPrefix+itemID).Err()
}
