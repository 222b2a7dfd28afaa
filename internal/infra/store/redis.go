package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("brokerflow-bfa/store")

// Redis stores each collection as a plain string value under its key.
type Redis struct {
	client *redis.Client
}

// NewRedis parses url, connects and pings.
func NewRedis(ctx context.Context, url string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}
	return &Redis{client: client}, nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key domain.CollectionKey) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Redis.Get")
	defer span.End()
	span.SetAttributes(attribute.String("collection", key.Collection))

	b, err := r.client.Get(ctx, key.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, &domain.ErrExternalService{Service: "redis", Err: err}
	}
	return b, nil
}

func (r *Redis) Put(ctx context.Context, key domain.CollectionKey, payload []byte) error {
	ctx, span := tracer.Start(ctx, "Redis.Put")
	defer span.End()
	span.SetAttributes(attribute.String("collection", key.Collection))

	if err := r.client.Set(ctx, key.String(), payload, 0).Err(); err != nil {
		span.RecordError(err)
		return &domain.ErrExternalService{Service: "redis", Err: err}
	}
	return nil
}

// PutWithTTL writes payload with a Redis expiry. A non-positive ttl keeps it
// forever.
func (r *Redis) PutWithTTL(ctx context.Context, key domain.CollectionKey, payload []byte, ttl time.Duration) error {
	ctx, span := tracer.Start(ctx, "Redis.PutWithTTL")
	defer span.End()
	span.SetAttributes(attribute.String("collection", key.Collection))

	if ttl < 0 {
		ttl = 0
	}
	if err := r.client.Set(ctx, key.String(), payload, ttl).Err(); err != nil {
		span.RecordError(err)
		return &domain.ErrExternalService{Service: "redis", Err: err}
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key domain.CollectionKey) error {
	ctx, span := tracer.Start(ctx, "Redis.Delete")
	defer span.End()

	if err := r.client.Del(ctx, key.String()).Err(); err != nil {
		span.RecordError(err)
		return &domain.ErrExternalService{Service: "redis", Err: err}
	}
	return nil
}

func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *Redis) Close() error {
	return r.client.Close()
}
