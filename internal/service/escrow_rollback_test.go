package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/store"
	"github.com/boddenberg/brokerflow-bfa-go/internal/service"

	"go.uber.org/zap"
)

var errStoreDown = errors.New("store unavailable")

// failingPutStore fails every Put to one collection once armed.
type failingPutStore struct {
	*store.Memory
	failOn string
	armed  bool
	puts   int
}

func (s *failingPutStore) Put(ctx context.Context, key domain.CollectionKey, payload []byte) error {
	if s.armed {
		s.puts++
		if key.Collection == s.failOn {
			return errStoreDown
		}
	}
	return s.Memory.Put(ctx, key, payload)
}

// escrowsOn builds an escrow service whose writes to failOn fail.
func escrowsOn(e *env, failOn string) (*service.EscrowService, *failingPutStore) {
	fs := &failingPutStore{Memory: e.store, failOn: failOn}
	repo := service.NewRepository(fs)
	return service.NewEscrowService(repo, e.metrics, zap.NewNop()).WithClock(clock), fs
}

func TestConvertListingToEscrow_ListingWriteFails(t *testing.T) {
	e := newEnv(t)
	p := e.signup(t, "agent@example.com")
	listing := addListing(t, e, p, "1 Elm St")

	escrows, fs := escrowsOn(e, domain.CollectionListings)
	before := e.snapshot(t)
	fs.armed = true

	_, err := escrows.ConvertListingToEscrow(context.Background(), p, listing.ID, domain.ConvertOptions{})
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	if fs.puts < 2 {
		t.Fatalf("expected the pendings write to happen first, got %d puts", fs.puts)
	}
	assertUnchanged(t, before, e.snapshot(t))

	// a retry once the store is back opens exactly one escrow
	fs.armed = false
	if _, err := escrows.ConvertListingToEscrow(context.Background(), p, listing.ID, domain.ConvertOptions{}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	pendings, err := e.escrows.ListPendings(context.Background(), p)
	if err != nil {
		t.Fatal(err)
	}
	if len(pendings) != 1 {
		t.Errorf("expected 1 pending after retry, got %d", len(pendings))
	}
}

func TestCloseEscrow_PendingsWriteFails(t *testing.T) {
	e := newEnv(t)
	p := e.signup(t, "agent@example.com")
	escrow := openEscrow(t, e, p, "2 Oak St")

	escrows, fs := escrowsOn(e, domain.CollectionPendings)
	before := e.snapshot(t)
	fs.armed = true

	_, err := escrows.CloseEscrow(context.Background(), p, escrow.ID, &domain.CloseEscrowRequest{CloseDate: "2026-10-15"})
	if !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	assertUnchanged(t, before, e.snapshot(t))

	fs.armed = false
	if _, err := escrows.CloseEscrow(context.Background(), p, escrow.ID, &domain.CloseEscrowRequest{CloseDate: "2026-10-15"}); err != nil {
		t.Fatalf("retry: %v", err)
	}
	closed, err := e.escrows.ListClosed(context.Background(), p, "ytd", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(closed) != 1 {
		t.Errorf("expected 1 closed deal after retry, got %d", len(closed))
	}
}

func TestCancelEscrow_RestoresAbsentArchive(t *testing.T) {
	e := newEnv(t)
	p := e.signup(t, "agent@example.com")
	escrow := openEscrow(t, e, p, "3 Pine St")

	closedKey := domain.ScopedKey(domain.CollectionClosed, p.AccountID)
	if err := e.store.Delete(context.Background(), closedKey); err != nil {
		t.Fatal(err)
	}

	escrows, fs := escrowsOn(e, domain.CollectionPendings)
	before := e.snapshot(t)
	fs.armed = true

	if _, err := escrows.CancelEscrow(context.Background(), p, escrow.ID); !errors.Is(err, errStoreDown) {
		t.Fatalf("expected store error, got %v", err)
	}
	raw, err := e.store.Get(context.Background(), closedKey)
	if err != nil {
		t.Fatal(err)
	}
	if raw != nil {
		t.Errorf("expected the archive to be absent again, got %s", raw)
	}
	assertUnchanged(t, before, e.snapshot(t))
}
