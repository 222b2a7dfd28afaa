package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/supabase"

	"go.uber.org/zap"
)

// fakePostgREST keeps rows keyed by collection|scope.
type fakePostgREST struct {
	mu   sync.Mutex
	rows map[string]json.RawMessage
	hits int
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits++

	if r.Header.Get("apikey") != "anon" || r.Header.Get("Authorization") != "Bearer service" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if r.URL.Path != "/rest/v1/"+supabase.Table {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	key := trimEq(q.Get("collection")) + "|" + trimEq(q.Get("scope"))

	switch r.Method {
	case http.MethodGet:
		if q.Get("collection") == "" {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		payload, ok := f.rows[key]
		if !ok {
			_, _ = w.Write([]byte(`[]`))
			return
		}
		_ = json.NewEncoder(w).Encode([]map[string]any{{"payload": payload}})
	case http.MethodPost:
		if r.Header.Get("Prefer") != "resolution=merge-duplicates,return=minimal" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var row struct {
			Collection string          `json:"collection"`
			Scope      string          `json:"scope"`
			Payload    json.RawMessage `json:"payload"`
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &row); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.rows[row.Collection+"|"+row.Scope] = row.Payload
		w.WriteHeader(http.StatusCreated)
	case http.MethodDelete:
		delete(f.rows, key)
		w.WriteHeader(http.StatusNoContent)
	}
}

func trimEq(v string) string {
	return strings.TrimPrefix(v, "eq.")
}

func newStore(t *testing.T, h http.Handler) *supabase.CollectionStore {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client := supabase.NewClient(srv.Client(), srv.URL+"/", "anon", "service",
		resilience.NewCircuitBreaker("supabase-test", nil),
		resilience.Config{MaxRetries: 2},
		zap.NewNop(),
	)
	return supabase.NewCollectionStore(client)
}

func TestCollectionStore_RoundTrip(t *testing.T) {
	fake := &fakePostgREST{rows: map[string]json.RawMessage{}}
	s := newStore(t, fake)
	ctx := context.Background()
	key := domain.ScopedKey(domain.CollectionPendings, "agent-123")

	got, err := s.Get(ctx, key)
	if err != nil || got != nil {
		t.Fatalf("expected absent collection, got %s (%v)", got, err)
	}

	if err := s.Put(ctx, key, []byte(`[{"id":"e1"}]`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err = s.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `[{"id":"e1"}]` {
		t.Errorf("unexpected payload %s", got)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if got, _ := s.Get(ctx, key); got != nil {
		t.Errorf("expected deleted collection, got %s", got)
	}

	if err := s.Ping(ctx); err != nil {
		t.Errorf("ping: %v", err)
	}
}

func TestCollectionStore_ClientErrorIsNotRetried(t *testing.T) {
	calls := 0
	s := newStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))

	_, err := s.Get(context.Background(), domain.AccountsKey())

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) {
		t.Fatalf("expected ErrExternalService, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single call for a 4xx, got %d", calls)
	}
}

func TestCollectionStore_ServerErrorIsRetried(t *testing.T) {
	calls := 0
	s := newStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`[]`))
	}))

	got, err := s.Get(context.Background(), domain.AccountsKey())
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if got != nil {
		t.Errorf("expected absent collection, got %s", got)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}
