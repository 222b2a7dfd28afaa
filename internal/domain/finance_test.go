package domain_test

import (
	"testing"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
)

func TestProgressPercent(t *testing.T) {
	tests := []struct {
		name            string
		current, target float64
		want            float64
	}{
		{"half way", 50, 100, 50},
		{"over target clamps", 250, 100, 100},
		{"negative current clamps", -10, 100, 0},
		{"zero target", 50, 0, 0},
		{"negative target", 50, -5, 0},
		{"nothing yet", 0, 25000, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := domain.ProgressPercent(tt.current, tt.target)
			if got != tt.want {
				t.Errorf("expected %.2f, got %.2f", tt.want, got)
			}
			if got < 0 || got > 100 {
				t.Errorf("progress out of range: %.2f", got)
			}
		})
	}
}

func TestRoundedProgress_ExpenseCapExample(t *testing.T) {
	expenses := []domain.Expense{
		{Amount: 350}, {Amount: 1200}, {Amount: 99},
	}
	total := domain.TotalExpenses(expenses)
	if total != 1649 {
		t.Fatalf("expected total 1649, got %.2f", total)
	}
	if got := domain.RoundedProgress(total, 25000); got != 7 {
		t.Errorf("expected 7%%, got %d%%", got)
	}
}

func TestAccountBudget_Defaults(t *testing.T) {
	a := &domain.Account{}
	b := a.Budget(2026)
	if b.IncomeTarget != domain.DefaultIncomeTarget || b.ExpenseCap != domain.DefaultExpenseCap {
		t.Errorf("expected defaults, got %+v", b)
	}

	a.IncomeTarget = 90000
	if got := a.Budget(2026).IncomeTarget; got != 90000 {
		t.Errorf("expected 90000, got %.2f", got)
	}
}

func TestExpenseCategory_Valid(t *testing.T) {
	if !domain.CategoryLeadGen.Valid() {
		t.Error("expected Lead Gen to be valid")
	}
	if domain.ExpenseCategory("Coffee").Valid() {
		t.Error("expected unknown category to be invalid")
	}
}
