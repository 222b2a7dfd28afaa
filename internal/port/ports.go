// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
)

// CollectionStore persists whole collections as raw JSON documents.
// Get returns nil, nil when the key has never been written.
// Implemented by the memory, redis, postgres and Supabase adapters.
type CollectionStore interface {
	Get(ctx context.Context, key domain.CollectionKey) ([]byte, error)
	Put(ctx context.Context, key domain.CollectionKey, payload []byte) error
	Delete(ctx context.Context, key domain.CollectionKey) error
	Ping(ctx context.Context) error
}

// ExpiringStore is implemented by backends that can expire a document on
// their own. Session pointers are written through it when available.
type ExpiringStore interface {
	PutWithTTL(ctx context.Context, key domain.CollectionKey, payload []byte, ttl time.Duration) error
}

// CommissionExtractor reads the four commission figures off a stub image.
type CommissionExtractor interface {
	Extract(ctx context.Context, stub domain.CommissionStub) (*domain.CommissionBreakdown, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
