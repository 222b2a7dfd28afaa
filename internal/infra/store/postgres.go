package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS brokerflow_collections (
	collection TEXT        NOT NULL,
	scope      TEXT        NOT NULL DEFAULT '',
	payload    JSONB       NOT NULL,
	version    BIGINT      NOT NULL DEFAULT 1,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (collection, scope)
)`

const (
	selectSQL = `SELECT payload FROM brokerflow_collections WHERE collection = $1 AND scope = $2`
	upsertSQL = `
INSERT INTO brokerflow_collections (collection, scope, payload)
VALUES ($1, $2, $3::jsonb)
ON CONFLICT (collection, scope)
DO UPDATE SET payload = EXCLUDED.payload,
              version = brokerflow_collections.version + 1,
              updated_at = now()`
	deleteSQL = `DELETE FROM brokerflow_collections WHERE collection = $1 AND scope = $2`
)

// PostgresConfig mirrors the pool knobs exposed through the environment.
type PostgresConfig struct {
	DSN      string
	MaxConns int32
	MinConns int32
}

// Postgres stores one jsonb row per (collection, scope). Every write bumps
// the row's version.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres opens the pool, pings the database and ensures the table exists.
func NewPostgres(ctx context.Context, cfg PostgresConfig) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	} else {
		poolCfg.MinConns = 2
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	p := &Postgres{pool: pool}
	if err := p.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

// EnsureSchema creates brokerflow_collections if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (p *Postgres) Get(ctx context.Context, key domain.CollectionKey) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Postgres.Get")
	defer span.End()
	span.SetAttributes(attribute.String("collection", key.Collection))

	var payload []byte
	err := p.pool.QueryRow(ctx, selectSQL, key.Collection, key.Scope).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, &domain.ErrExternalService{Service: "postgres", Err: err}
	}
	return payload, nil
}

func (p *Postgres) Put(ctx context.Context, key domain.CollectionKey, payload []byte) error {
	ctx, span := tracer.Start(ctx, "Postgres.Put")
	defer span.End()
	span.SetAttributes(attribute.String("collection", key.Collection))

	if _, err := p.pool.Exec(ctx, upsertSQL, key.Collection, key.Scope, string(payload)); err != nil {
		span.RecordError(err)
		return &domain.ErrExternalService{Service: "postgres", Err: err}
	}
	return nil
}

func (p *Postgres) Delete(ctx context.Context, key domain.CollectionKey) error {
	ctx, span := tracer.Start(ctx, "Postgres.Delete")
	defer span.End()

	if _, err := p.pool.Exec(ctx, deleteSQL, key.Collection, key.Scope); err != nil {
		span.RecordError(err)
		return &domain.ErrExternalService{Service: "postgres", Err: err}
	}
	return nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}
