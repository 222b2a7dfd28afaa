package service_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/cache"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/observability"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/store"
	"github.com/boddenberg/brokerflow-bfa-go/internal/port"
	"github.com/boddenberg/brokerflow-bfa-go/internal/service"

	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, time.October, 15, 9, 30, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

type env struct {
	store       *store.Memory
	repo        *service.Repository
	metrics     *observability.Metrics
	sessions    *service.SessionService
	listings    *service.ListingService
	escrows     *service.EscrowService
	commissions *service.CommissionService
	finance     *service.FinanceService
	dashboard   *service.DashboardService
	extractor   *fakeExtractor
	cache       *cache.InMemory[domain.CommissionBreakdown]
}

func newEnv(t *testing.T) *env {
	t.Helper()

	mem := store.NewMemory()
	repo := service.NewRepository(mem)
	metrics := observability.NewMetrics()
	logger := zap.NewNop()
	ext := &fakeExtractor{}
	c := cache.New[domain.CommissionBreakdown](time.Hour)
	t.Cleanup(c.Close)

	return &env{
		store:   mem,
		repo:    repo,
		metrics: metrics,
		sessions: service.NewSessionService(repo, service.SessionConfig{
			JWTSecret:  "test-secret",
			SessionTTL: time.Hour,
		}, logger).WithClock(clock),
		listings:    service.NewListingService(repo, logger).WithClock(clock),
		escrows:     service.NewEscrowService(repo, metrics, logger).WithClock(clock),
		commissions: service.NewCommissionService(repo, ext, c, metrics, "fake", logger),
		finance:     service.NewFinanceService(repo, logger).WithClock(clock),
		dashboard:   service.NewDashboardService(repo, logger).WithClock(clock),
		extractor:   ext,
		cache:       c,
	}
}

// signup registers a fresh account and resolves its principal.
func (e *env) signup(t *testing.T, email string) domain.Principal {
	t.Helper()

	resp, err := e.sessions.Signup(context.Background(), &domain.SignupRequest{
		FirstName: "Alex",
		LastName:  "Morgan",
		Email:     email,
	})
	if err != nil {
		t.Fatalf("signup: %v", err)
	}
	p, err := e.sessions.Authenticate(context.Background(), resp.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	return *p
}

// snapshot copies every stored document.
func (e *env) snapshot(t *testing.T) map[string][]byte {
	t.Helper()

	out := make(map[string][]byte)
	for _, k := range e.store.Keys() {
		raw, err := e.store.Get(context.Background(), keyFromString(k))
		if err != nil {
			t.Fatalf("get %s: %v", k, err)
		}
		out[k] = raw
	}
	return out
}

func assertUnchanged(t *testing.T, before, after map[string][]byte) {
	t.Helper()

	if len(before) != len(after) {
		t.Fatalf("expected %d documents, got %d", len(before), len(after))
	}
	for k, v := range before {
		if !bytes.Equal(v, after[k]) {
			t.Errorf("document %s changed:\nbefore %s\nafter  %s", k, v, after[k])
		}
	}
}

// keyFromString reverses CollectionKey.String for the keys tests create.
func keyFromString(s string) domain.CollectionKey {
	rest := strings.TrimPrefix(s, "brokerflow:")
	collection, scope, _ := strings.Cut(rest, ":")
	return domain.CollectionKey{Collection: collection, Scope: scope}
}

type fakeExtractor struct {
	result *domain.CommissionBreakdown
	err    error
	calls  int
}

func (f *fakeExtractor) Extract(_ context.Context, _ domain.CommissionStub) (*domain.CommissionBreakdown, error) {
	f.calls++
	return f.result, f.err
}

var _ port.CommissionExtractor = (*fakeExtractor)(nil)

func ptr[T any](v T) *T { return &v }
