package domain

import "math"

// ============================================================
// Budgets, progress and summaries
// ============================================================

// Budget holds the yearly targets stored on the account.
type Budget struct {
	Year         int     `json:"year"`
	IncomeTarget float64 `json:"incomeTarget"`
	ExpenseCap   float64 `json:"expenseCap"`
}

// SetBudgetRequest is the body for PUT /v1/finances/budget.
type SetBudgetRequest struct {
	IncomeTarget float64 `json:"incomeTarget"`
	ExpenseCap   float64 `json:"expenseCap"`
}

// ProgressPercent is current/target as a percentage clamped to [0, 100].
// A non-positive target yields 0.
func ProgressPercent(current, target float64) float64 {
	if target <= 0 {
		return 0
	}
	p := current / target
	if p > 1 {
		p = 1
	}
	if p < 0 {
		p = 0
	}
	return p * 100
}

// RoundedProgress rounds ProgressPercent half away from zero.
func RoundedProgress(current, target float64) int {
	return int(math.Round(ProgressPercent(current, target)))
}

// CategoryTotal is one row of the per-category expense breakdown.
type CategoryTotal struct {
	Category ExpenseCategory `json:"category"`
	Total    float64         `json:"total"`
	Count    int             `json:"count"`
}

// MonthTotal is one YYYY-MM expense bucket.
type MonthTotal struct {
	Month string  `json:"month"`
	Total float64 `json:"total"`
}

// FinanceSummary is returned by GET /v1/finances.
type FinanceSummary struct {
	Budget                 Budget          `json:"budget"`
	TotalExpenses          float64         `json:"totalExpenses"`
	ActualIncome           float64         `json:"actualIncome"`
	IncomeProgress         int             `json:"incomeProgress"`
	ExpenseProgress        int             `json:"expenseProgress"`
	RemainingExpenseBudget float64         `json:"remainingExpenseBudget"`
	ByCategory             []CategoryTotal `json:"byCategory"`
	ByMonth                []MonthTotal    `json:"byMonth"`
	Expenses               []Expense       `json:"expenses"`
}

// DashboardStats is returned by GET /v1/dashboard.
type DashboardStats struct {
	Year           int     `json:"year"`
	YTDGross       float64 `json:"ytdGross"`
	YTDNet         float64 `json:"ytdNet"`
	DealsClosed    int     `json:"dealsClosed"`
	TotalExpenses  float64 `json:"totalExpenses"`
	PendingCount   int     `json:"pendingCount"`
	ActiveListings int     `json:"activeListings"`
	IncomeProgress int     `json:"incomeProgress"`
}
