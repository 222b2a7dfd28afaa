package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ============================================================
// Collection keys
// ============================================================

// Collection names. Accounts is global, the rest are scoped by account id.
const (
	CollectionAccounts    = "accounts"
	CollectionListings    = "listings"
	CollectionPendings    = "pendings"
	CollectionClosed      = "closed"
	CollectionExpenses    = "expenses"
	CollectionCommissions = "commissions"
	CollectionSession     = "session"
)

// ScopedCollections are reset on signup and wiped with the account.
var ScopedCollections = []string{
	CollectionListings, CollectionPendings, CollectionClosed,
	CollectionExpenses, CollectionCommissions,
}

const keyPrefix = "brokerflow"

// CollectionKey addresses one persisted collection.
type CollectionKey struct {
	Collection string
	Scope      string
}

// String renders brokerflow:<collection>[:<scope>].
func (k CollectionKey) String() string {
	if k.Scope == "" {
		return keyPrefix + ":" + k.Collection
	}
	return keyPrefix + ":" + k.Collection + ":" + k.Scope
}

// AccountsKey is the global registered-accounts collection.
func AccountsKey() CollectionKey {
	return CollectionKey{Collection: CollectionAccounts}
}

// ScopedKey addresses collection for one account.
func ScopedKey(collection, accountID string) CollectionKey {
	return CollectionKey{Collection: collection, Scope: accountID}
}

// SessionKey addresses a session pointer.
func SessionKey(sessionID string) CollectionKey {
	return CollectionKey{Collection: CollectionSession, Scope: sessionID}
}

// ============================================================
// Closed-deal periods
// ============================================================

// TrackedPastYears is how many years before the current one get their own tab.
const TrackedPastYears = 2

// ClosedPeriod selects closed deals by year of close date.
type ClosedPeriod struct {
	Kind string // ytd, year, older
	Year int
}

// ParseClosedPeriod accepts "ytd", "older" or a four-digit year. Empty means ytd.
func ParseClosedPeriod(s string) (ClosedPeriod, error) {
	switch v := strings.ToLower(strings.TrimSpace(s)); v {
	case "", "ytd":
		return ClosedPeriod{Kind: "ytd"}, nil
	case "older":
		return ClosedPeriod{Kind: "older"}, nil
	default:
		y, err := strconv.Atoi(v)
		if err != nil || y < 1900 || y > 9999 {
			return ClosedPeriod{}, &ErrValidation{Field: "period", Message: fmt.Sprintf("unknown period %q", s)}
		}
		return ClosedPeriod{Kind: "year", Year: y}, nil
	}
}

// Matches reports whether a deal closed on closeDate falls in the period,
// relative to now. Deals without a parseable close date match nothing.
func (p ClosedPeriod) Matches(closeDate string, now time.Time) bool {
	y, ok := YearOf(closeDate)
	if !ok {
		return false
	}
	current := now.Year()
	switch p.Kind {
	case "ytd":
		return y == current
	case "year":
		return y == p.Year
	case "older":
		return y < current-TrackedPastYears
	}
	return false
}
