package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Demo account used by SEED_DEMO.
const (
	DemoAccountID = "agent-123"
	DemoEmail     = "demo@brokerflow.com"
	DemoPassword  = "password"
	DemoOrgID     = "org-1"
)

// SeedDemo registers the demo account if absent and, when its listings and
// pendings have never been written, fills them with sample data.
func SeedDemo(ctx context.Context, repo *Repository, sessions *SessionService, now time.Time, logger *zap.Logger) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(DemoPassword), bcrypt.MinCost)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}
	created, err := sessions.EnsureAccount(ctx, domain.Account{
		Profile: domain.Profile{
			ID:       DemoAccountID,
			OrgID:    DemoOrgID,
			FullName: "Demo Agent",
			Role:     domain.RoleAgent,
		},
		Email:        DemoEmail,
		PasswordHash: string(hash),
		IncomeTarget: domain.DefaultIncomeTarget,
		ExpenseCap:   domain.DefaultExpenseCap,
		CreatedAt:    now.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("register demo account: %w", err)
	}

	p := domain.Principal{AccountID: DemoAccountID}

	defer repo.lockAccount(DemoAccountID)()

	for _, c := range []string{domain.CollectionListings, domain.CollectionPendings} {
		raw, err := repo.store.Get(ctx, domain.ScopedKey(c, DemoAccountID))
		if err != nil {
			return fmt.Errorf("check demo %s: %w", c, err)
		}
		if raw != nil {
			logger.Info("demo data already present", zap.Bool("account_created", created))
			return nil
		}
	}

	today := domain.FormatDate(now)
	price := func(v float64) *float64 { return &v }
	pendingID := uuid.NewString()

	listings := []domain.Listing{
		{
			ID:           uuid.NewString(),
			AgentID:      DemoAccountID,
			Address:      "123 Maple Ave, Springfield",
			PropertyType: domain.DefaultPropertyType,
			Status:       domain.ListingActive,
			ListingType:  domain.ListingSale,
			Price:        price(650000),
			ListingDate:  today,
			SellerName:   "Jordan Lee",
			CreatedAt:    today,
		},
		{
			ID:           uuid.NewString(),
			AgentID:      DemoAccountID,
			Address:      "88 Harbor View #4B, Bayside",
			PropertyType: "Condo",
			Status:       domain.ListingActive,
			ListingType:  domain.ListingLease,
			Price:        price(3200),
			ListingDate:  today,
			CreatedAt:    today,
		},
	}
	contingencies := seedContingencies()
	contingencies[0].Status = domain.ContingencyMet
	pendings := []domain.Escrow{{
		ID:            pendingID,
		AgentID:       DemoAccountID,
		Address:       "42 Oak Street, Riverton",
		DealType:      domain.DealBuyer,
		Status:        domain.EscrowOpen,
		CloseDate:     domain.FormatDate(now.AddDate(0, 0, domain.EscrowCloseWindowDays)),
		CreatedAt:     today,
		BuyerInfo:     &domain.ContactInfo{Name: "Sam Rivera", Email: "sam@example.com"},
		Representing:  domain.RepresentBuyer,
		DepositAmount: price(15000),
		Contingencies: contingencies,
	}}
	expenses := []domain.Expense{{
		ID:          uuid.NewString(),
		EscrowID:    pendingID,
		Category:    domain.CategoryPhotography,
		Amount:      350,
		Description: "Listing photos",
		Date:        today,
		CreatedAt:   now.UTC().Format(time.RFC3339),
	}}

	if err := saveScoped(ctx, repo, domain.CollectionListings, p, listings); err != nil {
		return err
	}
	if err := saveScoped(ctx, repo, domain.CollectionPendings, p, pendings); err != nil {
		return err
	}
	if err := saveScoped(ctx, repo, domain.CollectionExpenses, p, expenses); err != nil {
		return err
	}

	logger.Info("demo data seeded",
		zap.String("account_id", DemoAccountID),
		zap.Int("listings", len(listings)),
		zap.Int("pendings", len(pendings)),
	)
	return nil
}
