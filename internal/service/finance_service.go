package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var financeTracer = otel.Tracer("service/finance")

// FinanceService tracks expenses against the yearly budget.
type FinanceService struct {
	repo   *Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewFinanceService creates the finance service.
func NewFinanceService(repo *Repository, logger *zap.Logger) *FinanceService {
	return &FinanceService{repo: repo, now: time.Now, logger: logger}
}

// WithClock replaces the time source.
func (s *FinanceService) WithClock(now func() time.Time) *FinanceService {
	s.now = now
	return s
}

// ListExpenses returns every expense of the principal.
func (s *FinanceService) ListExpenses(ctx context.Context, p domain.Principal) ([]domain.Expense, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.ListExpenses")
	defer span.End()

	return loadScoped[domain.Expense](ctx, s.repo, domain.CollectionExpenses, p)
}

// AddExpense appends an expense. The category defaults to Marketing, or
// Other when the expense is tied to an escrow.
func (s *FinanceService) AddExpense(ctx context.Context, p domain.Principal, req *domain.AddExpenseRequest) (*domain.Expense, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.AddExpense")
	defer span.End()

	if req.Amount <= 0 {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be greater than zero"}
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, &domain.ErrValidation{Field: "description", Message: "description is required"}
	}
	category := req.Category
	if category == "" {
		category = domain.CategoryMarketing
		if req.EscrowID != "" {
			category = domain.CategoryOther
		}
	}
	if !category.Valid() {
		return nil, &domain.ErrValidation{Field: "category", Message: "unknown category"}
	}
	now := s.now()
	date := req.Date
	if date == "" {
		date = domain.FormatDate(now)
	} else if _, ok := domain.ParseDate(date); !ok {
		return nil, &domain.ErrValidation{Field: "date", Message: "must be YYYY-MM-DD"}
	}

	e := domain.Expense{
		ID:          uuid.NewString(),
		EscrowID:    req.EscrowID,
		Category:    category,
		Amount:      req.Amount,
		Description: description,
		Date:        date,
		CreatedAt:   now.UTC().Format(time.RFC3339),
	}

	defer s.repo.lockAccount(p.AccountID)()

	expenses, err := loadScoped[domain.Expense](ctx, s.repo, domain.CollectionExpenses, p)
	if err != nil {
		return nil, err
	}
	if err := saveScoped(ctx, s.repo, domain.CollectionExpenses, p, append(expenses, e)); err != nil {
		return nil, err
	}

	s.logger.Info("expense added",
		zap.String("account_id", p.AccountID),
		zap.String("expense_id", e.ID),
		zap.Float64("amount", e.Amount),
	)
	return &e, nil
}

// RemoveExpense filters the expense out. Removing an unknown id is a no-op.
func (s *FinanceService) RemoveExpense(ctx context.Context, p domain.Principal, expenseID string) error {
	ctx, span := financeTracer.Start(ctx, "FinanceService.RemoveExpense")
	defer span.End()

	defer s.repo.lockAccount(p.AccountID)()

	expenses, err := loadScoped[domain.Expense](ctx, s.repo, domain.CollectionExpenses, p)
	if err != nil {
		return err
	}
	kept := make([]domain.Expense, 0, len(expenses))
	for _, e := range expenses {
		if e.ID != expenseID {
			kept = append(kept, e)
		}
	}
	return saveScoped(ctx, s.repo, domain.CollectionExpenses, p, kept)
}

// GetBudget returns the current year's targets.
func (s *FinanceService) GetBudget(ctx context.Context, p domain.Principal) (*domain.Budget, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.GetBudget")
	defer span.End()

	acct, err := s.repo.Account(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	b := acct.Budget(s.now().Year())
	return &b, nil
}

// SetBudget stores the income target and expense cap on the account.
func (s *FinanceService) SetBudget(ctx context.Context, p domain.Principal, req *domain.SetBudgetRequest) (*domain.Budget, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.SetBudget")
	defer span.End()

	if req.IncomeTarget < 0 {
		return nil, &domain.ErrValidation{Field: "incomeTarget", Message: "must not be negative"}
	}
	if req.ExpenseCap < 0 {
		return nil, &domain.ErrValidation{Field: "expenseCap", Message: "must not be negative"}
	}

	acct, err := s.repo.UpdateAccount(ctx, p.AccountID, func(a *domain.Account) error {
		a.IncomeTarget = req.IncomeTarget
		a.ExpenseCap = req.ExpenseCap
		return nil
	})
	if err != nil {
		return nil, err
	}
	b := domain.Budget{Year: s.now().Year(), IncomeTarget: acct.IncomeTarget, ExpenseCap: acct.ExpenseCap}
	return &b, nil
}

// Summary aggregates expenses and closed-deal income against the budget.
func (s *FinanceService) Summary(ctx context.Context, p domain.Principal) (*domain.FinanceSummary, error) {
	ctx, span := financeTracer.Start(ctx, "FinanceService.Summary")
	defer span.End()

	year := s.now().Year()
	acct, err := s.repo.Account(ctx, p.AccountID)
	if err != nil {
		return nil, err
	}
	expenses, err := loadScoped[domain.Expense](ctx, s.repo, domain.CollectionExpenses, p)
	if err != nil {
		return nil, err
	}
	closed, err := loadScoped[domain.Escrow](ctx, s.repo, domain.CollectionClosed, p)
	if err != nil {
		return nil, err
	}
	commissions, err := loadScoped[domain.Commission](ctx, s.repo, domain.CollectionCommissions, p)
	if err != nil {
		return nil, err
	}

	budget := acct.Budget(year)
	total := domain.TotalExpenses(expenses)
	_, income, _ := closedIncome(closed, commissions, year)

	remaining := budget.ExpenseCap - total
	if remaining < 0 {
		remaining = 0
	}

	return &domain.FinanceSummary{
		Budget:                 budget,
		TotalExpenses:          total,
		ActualIncome:           income,
		IncomeProgress:         domain.RoundedProgress(income, budget.IncomeTarget),
		ExpenseProgress:        domain.RoundedProgress(total, budget.ExpenseCap),
		RemainingExpenseBudget: remaining,
		ByCategory:             byCategory(expenses),
		ByMonth:                byMonth(expenses),
		Expenses:               expenses,
	}, nil
}

func byCategory(expenses []domain.Expense) []domain.CategoryTotal {
	totals := make(map[domain.ExpenseCategory]*domain.CategoryTotal)
	for _, e := range expenses {
		t, ok := totals[e.Category]
		if !ok {
			t = &domain.CategoryTotal{Category: e.Category}
			totals[e.Category] = t
		}
		t.Total += e.Amount
		t.Count++
	}
	out := make([]domain.CategoryTotal, 0, len(totals))
	for _, c := range domain.ExpenseCategories {
		if t, ok := totals[c]; ok {
			out = append(out, *t)
		}
	}
	return out
}

func byMonth(expenses []domain.Expense) []domain.MonthTotal {
	totals := make(map[string]float64)
	for _, e := range expenses {
		t, ok := domain.ParseDate(e.Date)
		if !ok {
			continue
		}
		totals[t.Format("2006-01")] += e.Amount
	}
	out := make([]domain.MonthTotal, 0, len(totals))
	for m, v := range totals {
		out = append(out, domain.MonthTotal{Month: m, Total: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out
}
