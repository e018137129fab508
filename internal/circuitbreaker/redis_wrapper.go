package circuitbreaker

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisService = "event-stream"

// RedisWrapper wraps the redis commands used by the event stream mirror.
type RedisWrapper struct {
	client *redis.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewRedisWrapper creates a Redis wrapper with circuit breaker
func NewRedisWrapper(client *redis.Client, logger *zap.Logger) *RedisWrapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	cb := NewCircuitBreaker("redis", GetRedisConfig().ToConfig(), logger)
	GlobalMetricsCollector.RegisterCircuitBreaker("redis", redisService, cb)
	return &RedisWrapper{client: client, cb: cb, logger: logger}
}

func (rw *RedisWrapper) record(err error) {
	GlobalMetricsCollector.RecordRequest("redis", redisService, rw.cb.State(), err == nil)
}

// Ping wraps PING.
func (rw *RedisWrapper) Ping(ctx context.Context) error {
	err := rw.cb.Execute(ctx, func() error {
		return rw.client.Ping(ctx).Err()
	})
	rw.record(err)
	return err
}

// XAdd appends values to stream, trimming it to roughly maxLen entries.
func (rw *RedisWrapper) XAdd(ctx context.Context, stream string, maxLen int64, values map[string]interface{}) (string, error) {
	var id string
	err := rw.cb.Execute(ctx, func() error {
		var err error
		id, err = rw.client.XAdd(ctx, &redis.XAddArgs{
			Stream: stream,
			MaxLen: maxLen,
			Approx: true,
			Values: values,
		}).Result()
		return err
	})
	rw.record(err)
	return id, err
}

// XRange reads entries between start and stop (inclusive; "-" and "+" are the open ends).
func (rw *RedisWrapper) XRange(ctx context.Context, stream, start, stop string) ([]redis.XMessage, error) {
	var msgs []redis.XMessage
	err := rw.cb.Execute(ctx, func() error {
		var err error
		msgs, err = rw.client.XRange(ctx, stream, start, stop).Result()
		// Missing stream is an empty result.
		if err == redis.Nil {
			msgs, err = nil, nil
		}
		return err
	})
	rw.record(err)
	return msgs, err
}

// Expire sets a TTL on key.
func (rw *RedisWrapper) Expire(ctx context.Context, key string, ttl time.Duration) error {
	err := rw.cb.Execute(ctx, func() error {
		return rw.client.Expire(ctx, key, ttl).Err()
	})
	rw.record(err)
	return err
}

// Close closes the underlying client.
func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}

// IsCircuitBreakerOpen returns true if the circuit breaker is open
func (rw *RedisWrapper) IsCircuitBreakerOpen() bool {
	return rw.cb.State() == StateOpen
}
