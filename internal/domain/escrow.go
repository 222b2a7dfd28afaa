package domain

// ============================================================
// Escrows ("pendings") and contingencies
// ============================================================

type EscrowStatus string

const (
	EscrowOpen      EscrowStatus = "OPEN"
	EscrowClosed    EscrowStatus = "CLOSED"
	EscrowCancelled EscrowStatus = "CANCELLED"
)

type DealType string

const (
	DealBuyer  DealType = "BUYER"
	DealSeller DealType = "SELLER"
)

// Representation is the side of the transaction the agent works for.
type Representation string

const (
	RepresentBuyer  Representation = "BUYER"
	RepresentSeller Representation = "SELLER"
	RepresentBoth   Representation = "BOTH"
)

// Valid reports whether r is BUYER, SELLER or BOTH.
func (r Representation) Valid() bool {
	switch r {
	case RepresentBuyer, RepresentSeller, RepresentBoth:
		return true
	}
	return false
}

// DealType mirrors the representation onto the deal side. Only a pure buyer
// representation yields a buyer deal.
func (r Representation) DealType() DealType {
	if r == RepresentBuyer {
		return DealBuyer
	}
	return DealSeller
}

type ContingencyStatus string

const (
	ContingencyPending ContingencyStatus = "PENDING"
	ContingencyMet     ContingencyStatus = "MET"
	ContingencyWaived  ContingencyStatus = "WAIVED"
)

// Valid reports whether s is PENDING, MET or WAIVED.
func (s ContingencyStatus) Valid() bool {
	switch s {
	case ContingencyPending, ContingencyMet, ContingencyWaived:
		return true
	}
	return false
}

// Toggled flips MET and PENDING. WAIVED is returned unchanged.
func (s ContingencyStatus) Toggled() ContingencyStatus {
	switch s {
	case ContingencyMet:
		return ContingencyPending
	case ContingencyPending:
		return ContingencyMet
	}
	return s
}

// Contingency is a condition on the contract that must be met or waived.
type Contingency struct {
	ID      string            `json:"id"`
	Name    string            `json:"name"`
	DueDate string            `json:"due_date"`
	Status  ContingencyStatus `json:"status"`
}

// DefaultContingencies are seeded onto every escrow opened from a listing.
var DefaultContingencies = []string{"Inspection", "Appraisal", "Loan"}

// EscrowCloseWindowDays is the default distance between opening and closing.
const EscrowCloseWindowDays = 30

// Escrow is a deal under contract.
type Escrow struct {
	ID              string         `json:"id"`
	AgentID         string         `json:"agent_id"`
	ListingID       string         `json:"listing_id,omitempty"`
	Address         string         `json:"address"`
	DealType        DealType       `json:"deal_type"`
	Status          EscrowStatus   `json:"status"`
	CloseDate       string         `json:"close_date,omitempty"`
	CreatedAt       string         `json:"created_at"`
	EscrowOfficer   *ContactInfo   `json:"escrow_officer,omitempty"`
	BuyerInfo       *ContactInfo   `json:"buyer_info,omitempty"`
	SellerInfo      *ContactInfo   `json:"seller_info,omitempty"`
	Representing    Representation `json:"representing"`
	DepositAmount   *float64       `json:"deposit_amount,omitempty"`
	DepositReceived bool           `json:"deposit_received"`
	Contingencies   []Contingency  `json:"contingencies"`
}

// Contingency returns a pointer into e.Contingencies, or nil.
func (e *Escrow) Contingency(id string) *Contingency {
	for i := range e.Contingencies {
		if e.Contingencies[i].ID == id {
			return &e.Contingencies[i]
		}
	}
	return nil
}

// ConvertOptions tunes ConvertListingToEscrow.
type ConvertOptions struct {
	Representing Representation `json:"representing,omitempty"`
}

// CreateEscrowRequest is the body for POST /v1/pendings.
type CreateEscrowRequest struct {
	Address       string                  `json:"address"`
	Representing  Representation          `json:"representing,omitempty"`
	CloseDate     string                  `json:"close_date,omitempty"`
	DepositAmount *float64                `json:"deposit_amount,omitempty"`
	EscrowOfficer *ContactInfo            `json:"escrow_officer,omitempty"`
	BuyerInfo     *ContactInfo            `json:"buyer_info,omitempty"`
	SellerInfo    *ContactInfo            `json:"seller_info,omitempty"`
	Contingencies []NewContingencyRequest `json:"contingencies,omitempty"`
}

// NewContingencyRequest is the body for POST /v1/pendings/{escrowId}/contingencies.
type NewContingencyRequest struct {
	Name    string `json:"name"`
	DueDate string `json:"due_date,omitempty"`
}

// ContingencyStatusRequest is the body for PUT .../contingencies/{contingencyId}/status.
type ContingencyStatusRequest struct {
	Status ContingencyStatus `json:"status"`
}

// UpdateEscrowRequest is the body for PATCH /v1/pendings/{escrowId}.
type UpdateEscrowRequest struct {
	CloseDate     *string      `json:"close_date,omitempty"`
	DepositAmount *float64     `json:"deposit_amount,omitempty"`
	EscrowOfficer *ContactInfo `json:"escrow_officer,omitempty"`
	BuyerInfo     *ContactInfo `json:"buyer_info,omitempty"`
	SellerInfo    *ContactInfo `json:"seller_info,omitempty"`
}

// Apply merges the non-nil fields of req into e.
func (req *UpdateEscrowRequest) Apply(e *Escrow) {
	if req.CloseDate != nil {
		e.CloseDate = *req.CloseDate
	}
	if req.DepositAmount != nil {
		d := *req.DepositAmount
		e.DepositAmount = &d
	}
	if req.EscrowOfficer != nil {
		c := *req.EscrowOfficer
		e.EscrowOfficer = &c
	}
	if req.BuyerInfo != nil {
		c := *req.BuyerInfo
		e.BuyerInfo = &c
	}
	if req.SellerInfo != nil {
		c := *req.SellerInfo
		e.SellerInfo = &c
	}
}

// CloseEscrowRequest is the body for POST /v1/pendings/{escrowId}/close.
type CloseEscrowRequest struct {
	CloseDate string `json:"close_date,omitempty"`
}

// EscrowFinancials is returned by GET /v1/pendings/{escrowId}/financials.
type EscrowFinancials struct {
	EscrowID      string      `json:"escrow_id"`
	Commission    *Commission `json:"commission"`
	Expenses      []Expense   `json:"expenses"`
	TotalExpenses float64     `json:"total_expenses"`
	NetProfit     float64     `json:"net_profit"`
}
