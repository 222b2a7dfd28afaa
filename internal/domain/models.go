// Package domain defines the core business entities for BrokerFlow.
// These models are independent of storage and transport and represent the
// canonical data structures used throughout the BFA.
package domain

import (
	"strings"
	"time"
)

// ============================================================
// Profile
// ============================================================

// Role is the permission level of a profile.
type Role string

const (
	RoleAgent      Role = "AGENT"
	RoleTeamLeader Role = "TEAM_LEADER"
	RoleBroker     Role = "BROKER"
	RoleAdmin      Role = "ADMIN"
	RoleReadOnly   Role = "READ_ONLY"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAgent, RoleTeamLeader, RoleBroker, RoleAdmin, RoleReadOnly:
		return true
	}
	return false
}

// Profile identifies the acting user. It is fixed for the lifetime of a session.
type Profile struct {
	ID       string  `json:"id"`
	OrgID    string  `json:"org_id"`
	TeamID   *string `json:"team_id"`
	FullName string  `json:"full_name"`
	Role     Role    `json:"role"`
}

// FirstName returns the first word of the full name.
func (p Profile) FirstName() string {
	if f := strings.Fields(p.FullName); len(f) > 0 {
		return f[0]
	}
	return ""
}

// ============================================================
// Dates
// ============================================================

// DateLayout is the wire format of every calendar date (close dates, expense dates...).
const DateLayout = "2006-01-02"

// FormatDate renders t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate accepts YYYY-MM-DD or a full RFC 3339 timestamp.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DateLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if len(s) >= len(DateLayout) {
		if t, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// YearOf returns the calendar year of a date string.
func YearOf(s string) (int, bool) {
	t, ok := ParseDate(s)
	if !ok {
		return 0, false
	}
	return t.Year(), true
}

// ContactInfo is a party on a contract (escrow officer, buyer, seller).
type ContactInfo struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}
