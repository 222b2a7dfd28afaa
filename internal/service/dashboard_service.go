package service

import (
	"context"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DashboardService aggregates one year of activity.
type DashboardService struct {
	repo   *Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewDashboardService creates the dashboard service.
func NewDashboardService(repo *Repository, logger *zap.Logger) *DashboardService {
	return &DashboardService{repo: repo, now: time.Now, logger: logger}
}

// WithClock replaces the time source.
func (s *DashboardService) WithClock(now func() time.Time) *DashboardService {
	s.now = now
	return s
}

// Stats loads every collection concurrently and folds them into the
// dashboard figures. year <= 0 means the current year.
func (s *DashboardService) Stats(ctx context.Context, p domain.Principal, year int) (*domain.DashboardStats, error) {
	ctx, span := financeTracer.Start(ctx, "DashboardService.Stats")
	defer span.End()

	if year <= 0 {
		year = s.now().Year()
	}
	span.SetAttributes(attribute.Int("dashboard.year", year))

	var (
		acct        *domain.Account
		listings    []domain.Listing
		pendings    []domain.Escrow
		closed      []domain.Escrow
		expenses    []domain.Expense
		commissions []domain.Commission
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		acct, err = s.repo.Account(gCtx, p.AccountID)
		return err
	})
	g.Go(func() (err error) {
		listings, err = loadScoped[domain.Listing](gCtx, s.repo, domain.CollectionListings, p)
		return err
	})
	g.Go(func() (err error) {
		pendings, err = loadScoped[domain.Escrow](gCtx, s.repo, domain.CollectionPendings, p)
		return err
	})
	g.Go(func() (err error) {
		closed, err = loadScoped[domain.Escrow](gCtx, s.repo, domain.CollectionClosed, p)
		return err
	})
	g.Go(func() (err error) {
		expenses, err = loadScoped[domain.Expense](gCtx, s.repo, domain.CollectionExpenses, p)
		return err
	})
	g.Go(func() (err error) {
		commissions, err = loadScoped[domain.Commission](gCtx, s.repo, domain.CollectionCommissions, p)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("dashboard: failed to load collections",
			zap.String("account_id", p.AccountID),
			zap.Error(err),
		)
		return nil, err
	}

	gross, net, deals := closedIncome(closed, commissions, year)

	var yearExpenses float64
	for _, e := range expenses {
		if y, ok := domain.YearOf(e.Date); ok && y == year {
			yearExpenses += e.Amount
		}
	}

	active := 0
	for _, l := range listings {
		if l.Status == domain.ListingActive {
			active++
		}
	}

	return &domain.DashboardStats{
		Year:           year,
		YTDGross:       gross,
		YTDNet:         net,
		DealsClosed:    deals,
		TotalExpenses:  yearExpenses,
		PendingCount:   len(pendings),
		ActiveListings: active,
		IncomeProgress: domain.RoundedProgress(net, acct.Budget(year).IncomeTarget),
	}, nil
}
