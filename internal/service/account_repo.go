// Package service holds the BrokerFlow business rules: sessions and accounts,
// listings and escrows, commissions, expenses and the dashboard. Every
// account-scoped call takes an explicit domain.Principal.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/port"
)

// Repository reads and writes whole collections through a CollectionStore
// and serialises writers per account.
type Repository struct {
	store port.CollectionStore
	locks sync.Map // lock name -> *sync.Mutex
}

// NewRepository wraps store.
func NewRepository(store port.CollectionStore) *Repository {
	return &Repository{store: store}
}

// Store exposes the underlying store for health checks.
func (r *Repository) Store() port.CollectionStore {
	return r.store
}

// lock takes the single-writer mutex for name and returns its release func.
func (r *Repository) lock(name string) func() {
	m, _ := r.locks.LoadOrStore(name, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// lockAccount serialises read-modify-write cycles on one account's collections.
func (r *Repository) lockAccount(accountID string) func() {
	return r.lock("account:" + accountID)
}

func (r *Repository) lockAccounts() func() {
	return r.lock(domain.CollectionAccounts)
}

// load decodes the collection at key. An absent collection is empty.
func load[T any](ctx context.Context, r *Repository, key domain.CollectionKey) ([]T, error) {
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if len(raw) == 0 {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// save rewrites the whole collection at key.
func save[T any](ctx context.Context, r *Repository, key domain.CollectionKey, items []T) error {
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.store.Put(ctx, key, raw); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}

func loadScoped[T any](ctx context.Context, r *Repository, collection string, p domain.Principal) ([]T, error) {
	return load[T](ctx, r, domain.ScopedKey(collection, p.AccountID))
}

func saveScoped[T any](ctx context.Context, r *Repository, collection string, p domain.Principal, items []T) error {
	return save(ctx, r, domain.ScopedKey(collection, p.AccountID), items)
}

// snapshotScoped captures the stored bytes of one account collection and
// returns a func that writes them back. An absent collection is deleted on
// restore. Restores run on a context detached from cancellation so a
// cancelled request still rolls back.
func (r *Repository) snapshotScoped(ctx context.Context, collection string, p domain.Principal) (func(context.Context) error, error) {
	key := domain.ScopedKey(collection, p.AccountID)
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	return func(ctx context.Context) error {
		ctx = context.WithoutCancel(ctx)
		if raw == nil {
			return r.store.Delete(ctx, key)
		}
		return r.store.Put(ctx, key, raw)
	}, nil
}

// ============================================================
// Accounts
// ============================================================

func (r *Repository) loadAccounts(ctx context.Context) ([]domain.Account, error) {
	return load[domain.Account](ctx, r, domain.AccountsKey())
}

func (r *Repository) saveAccounts(ctx context.Context, accounts []domain.Account) error {
	return save(ctx, r, domain.AccountsKey(), accounts)
}

// Account returns the registered account with id.
func (r *Repository) Account(ctx context.Context, id string) (*domain.Account, error) {
	accounts, err := r.loadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID == id {
			return &accounts[i], nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "account", ID: id}
}

// UpdateAccount applies fn to the account with id and persists the result.
func (r *Repository) UpdateAccount(ctx context.Context, id string, fn func(*domain.Account) error) (*domain.Account, error) {
	defer r.lockAccounts()()

	accounts, err := r.loadAccounts(ctx)
	if err != nil {
		return nil, err
	}
	for i := range accounts {
		if accounts[i].ID != id {
			continue
		}
		if err := fn(&accounts[i]); err != nil {
			return nil, err
		}
		if err := r.saveAccounts(ctx, accounts); err != nil {
			return nil, err
		}
		updated := accounts[i]
		return &updated, nil
	}
	return nil, &domain.ErrNotFound{Resource: "account", ID: id}
}

func findAccountByEmail(accounts []domain.Account, email string) int {
	email = normalizeEmail(email)
	for i := range accounts {
		if normalizeEmail(accounts[i].Email) == email {
			return i
		}
	}
	return -1
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// resetScoped empties every account-scoped collection of accountID.
func (r *Repository) resetScoped(ctx context.Context, accountID string) error {
	for _, c := range domain.ScopedCollections {
		if err := r.store.Put(ctx, domain.ScopedKey(c, accountID), []byte("[]")); err != nil {
			return fmt.Errorf("reset %s: %w", c, err)
		}
	}
	return nil
}

// ============================================================
// Escrow lookups shared by several services
// ============================================================

// findEscrow looks in pendings first, then in the closed archive.
func (r *Repository) findEscrow(ctx context.Context, p domain.Principal, escrowID string) (*domain.Escrow, error) {
	for _, c := range []string{domain.CollectionPendings, domain.CollectionClosed} {
		escrows, err := loadScoped[domain.Escrow](ctx, r, c, p)
		if err != nil {
			return nil, err
		}
		if i := indexEscrow(escrows, escrowID); i >= 0 {
			return &escrows[i], nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "escrow", ID: escrowID}
}

func indexEscrow(escrows []domain.Escrow, id string) int {
	for i := range escrows {
		if escrows[i].ID == id {
			return i
		}
	}
	return -1
}

func indexCommission(commissions []domain.Commission, escrowID string) int {
	for i := range commissions {
		if commissions[i].EscrowID == escrowID {
			return i
		}
	}
	return -1
}

// closedIncome sums the commissions linked to deals closed in year.
func closedIncome(closed []domain.Escrow, commissions []domain.Commission, year int) (gross, net float64, deals int) {
	byEscrow := make(map[string]domain.Commission, len(commissions))
	for _, c := range commissions {
		byEscrow[c.EscrowID] = c
	}
	for _, e := range closed {
		if e.Status != domain.EscrowClosed {
			continue
		}
		if y, ok := domain.YearOf(e.CloseDate); !ok || y != year {
			continue
		}
		deals++
		if c, ok := byEscrow[e.ID]; ok {
			gross += c.GrossCommission
			net += c.NetCommission
		}
	}
	return gross, net, deals
}
