package domain

// ============================================================
// Accounts
// ============================================================

const (
	DefaultIncomeTarget = 200000.0
	DefaultExpenseCap   = 25000.0
)

// Account is a registered user as stored in the global accounts collection.
type Account struct {
	Profile
	Email        string  `json:"email"`
	PasswordHash string  `json:"password_hash,omitempty"`
	IncomeTarget float64 `json:"income_target"`
	ExpenseCap   float64 `json:"expense_cap"`
	CreatedAt    string  `json:"created_at"`
}

// Budget returns the account's yearly targets for the given year.
// Zero values fall back to the defaults, the way freshly imported records behave.
func (a *Account) Budget(year int) Budget {
	b := Budget{Year: year, IncomeTarget: a.IncomeTarget, ExpenseCap: a.ExpenseCap}
	if b.IncomeTarget == 0 {
		b.IncomeTarget = DefaultIncomeTarget
	}
	if b.ExpenseCap == 0 {
		b.ExpenseCap = DefaultExpenseCap
	}
	return b
}

// Principal is the authenticated caller. It is resolved once per request and
// passed explicitly to every service call.
type Principal struct {
	AccountID string
	SessionID string
	Profile   Profile
}

// CanWrite reports whether the principal may mutate its collections.
func (p Principal) CanWrite() bool {
	return p.Profile.Role != RoleReadOnly
}

// Session is the persisted session pointer. Its absence means anonymous.
type Session struct {
	ID        string  `json:"id"`
	Profile   Profile `json:"profile"`
	CreatedAt string  `json:"created_at"`
	ExpiresAt string  `json:"expires_at"`
}
