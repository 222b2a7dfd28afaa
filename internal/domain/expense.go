package domain

// ============================================================
// Expenses
// ============================================================

type ExpenseCategory string

const (
	CategoryMarketing   ExpenseCategory = "Marketing"
	CategoryStaging     ExpenseCategory = "Staging"
	CategoryPhotography ExpenseCategory = "Photography"
	CategorySoftware    ExpenseCategory = "Software"
	CategoryLeadGen     ExpenseCategory = "Lead Gen"
	CategoryTravel      ExpenseCategory = "Travel"
	CategoryOther       ExpenseCategory = "Other"
)

// ExpenseCategories lists every category in display order.
var ExpenseCategories = []ExpenseCategory{
	CategoryMarketing, CategoryStaging, CategoryPhotography,
	CategorySoftware, CategoryLeadGen, CategoryTravel, CategoryOther,
}

// Valid reports whether c is a known category.
func (c ExpenseCategory) Valid() bool {
	for _, k := range ExpenseCategories {
		if c == k {
			return true
		}
	}
	return false
}

// Expense is a business cost, optionally attributed to an escrow.
type Expense struct {
	ID          string          `json:"id"`
	EscrowID    string          `json:"escrow_id,omitempty"`
	Category    ExpenseCategory `json:"category"`
	Amount      float64         `json:"amount"`
	Description string          `json:"description"`
	Date        string          `json:"date"`
	CreatedAt   string          `json:"created_at"`
}

// AddExpenseRequest is the body for POST /v1/finances/expenses.
type AddExpenseRequest struct {
	EscrowID    string          `json:"escrow_id,omitempty"`
	Category    ExpenseCategory `json:"category,omitempty"`
	Amount      float64         `json:"amount"`
	Description string          `json:"description"`
	Date        string          `json:"date,omitempty"`
}

// TotalExpenses sums the amounts of expenses.
func TotalExpenses(expenses []Expense) float64 {
	var total float64
	for _, e := range expenses {
		total += e.Amount
	}
	return total
}
