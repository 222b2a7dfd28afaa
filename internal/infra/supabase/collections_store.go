package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
)

// Table is the PostgREST table holding one row per collection. Its columns
// match the postgres backend: collection, scope, payload (jsonb), version,
// updated_at.
const Table = "brokerflow_collections"

type collectionRow struct {
	Collection string          `json:"collection"`
	Scope      string          `json:"scope"`
	Payload    json.RawMessage `json:"payload"`
}

// CollectionStore implements port.CollectionStore over PostgREST.
type CollectionStore struct {
	client *Client
}

// NewCollectionStore wraps client.
func NewCollectionStore(client *Client) *CollectionStore {
	return &CollectionStore{client: client}
}

func filter(key domain.CollectionKey) string {
	return fmt.Sprintf("collection=eq.%s&scope=eq.%s", url.QueryEscape(key.Collection), url.QueryEscape(key.Scope))
}

func (s *CollectionStore) Get(ctx context.Context, key domain.CollectionKey) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", key.Collection))

	path := fmt.Sprintf("%s?select=collection,scope,payload&%s&limit=1", Table, filter(key))
	body, err := s.client.call(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		span.RecordError(err)
		return nil, &domain.ErrExternalService{Service: "supabase/collections", Err: err}
	}

	var rows []collectionRow
	if len(body) > 0 {
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, fmt.Errorf("decode collection row: %w", err)
		}
	}
	if len(rows) == 0 || len(rows[0].Payload) == 0 || string(rows[0].Payload) == "null" {
		return nil, nil
	}
	return rows[0].Payload, nil
}

func (s *CollectionStore) Put(ctx context.Context, key domain.CollectionKey, payload []byte) error {
	ctx, span := tracer.Start(ctx, "Supabase.PutCollection")
	defer span.End()
	span.SetAttributes(attribute.String("collection", key.Collection))

	row, err := json.Marshal(collectionRow{Collection: key.Collection, Scope: key.Scope, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode collection row: %w", err)
	}

	path := Table + "?on_conflict=collection,scope"
	if _, err := s.client.call(ctx, http.MethodPost, path, row, "resolution=merge-duplicates,return=minimal"); err != nil {
		span.RecordError(err)
		return &domain.ErrExternalService{Service: "supabase/collections", Err: err}
	}
	return nil
}

func (s *CollectionStore) Delete(ctx context.Context, key domain.CollectionKey) error {
	ctx, span := tracer.Start(ctx, "Supabase.DeleteCollection")
	defer span.End()

	path := fmt.Sprintf("%s?%s", Table, filter(key))
	if _, err := s.client.call(ctx, http.MethodDelete, path, nil, "return=minimal"); err != nil {
		span.RecordError(err)
		return &domain.ErrExternalService{Service: "supabase/collections", Err: err}
	}
	return nil
}

func (s *CollectionStore) Ping(ctx context.Context) error {
	_, err := s.client.do(ctx, http.MethodGet, Table+"?select=collection&limit=1", nil, "")
	return err
}
