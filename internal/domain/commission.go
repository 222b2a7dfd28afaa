package domain

// ============================================================
// Commissions
// ============================================================

// StubExtractionPrompt is the instruction sent with every commission stub image.
const StubExtractionPrompt = "Extract financial details from this real estate commission stub. " +
	"Return JSON with keys: gross_commission, broker_split, team_split, admin_fees."

// StubFallbackWarning is shown to the user when extraction yields nothing.
const StubFallbackWarning = "Could not parse stub automatically."

// NetCommission is what the agent keeps after splits and fees.
func NetCommission(gross, brokerSplit, teamSplit, adminFees float64) float64 {
	return gross - brokerSplit - teamSplit - adminFees
}

// CommissionBreakdown holds the four figures read off a stub or typed by hand.
type CommissionBreakdown struct {
	GrossCommission float64 `json:"gross_commission" jsonschema:"description=Gross commission before any split"`
	BrokerSplit     float64 `json:"broker_split" jsonschema:"description=Amount retained by the brokerage"`
	TeamSplit       float64 `json:"team_split" jsonschema:"description=Amount paid to the team"`
	AdminFees       float64 `json:"admin_fees" jsonschema:"description=Transaction and admin fees"`
}

// IsZero reports whether every figure is zero.
func (b CommissionBreakdown) IsZero() bool {
	return b == CommissionBreakdown{}
}

// Commission is the payout record for one escrow.
type Commission struct {
	ID              string  `json:"id"`
	EscrowID        string  `json:"escrow_id"`
	GrossCommission float64 `json:"gross_commission"`
	BrokerSplit     float64 `json:"broker_split"`
	TeamSplit       float64 `json:"team_split"`
	AdminFees       float64 `json:"admin_fees"`
	NetCommission   float64 `json:"net_commission"`
	IsConfirmed     bool    `json:"is_confirmed"`
	StubURL         string  `json:"stub_url,omitempty"`
}

// NewCommission builds a commission with its net derived from b.
func NewCommission(escrowID string, b CommissionBreakdown, confirmed bool) Commission {
	c := Commission{EscrowID: escrowID, IsConfirmed: confirmed}
	c.Apply(b)
	return c
}

// Apply overwrites the four input figures and re-derives the net.
// It is the only place NetCommission is assigned.
func (c *Commission) Apply(b CommissionBreakdown) {
	c.GrossCommission = b.GrossCommission
	c.BrokerSplit = b.BrokerSplit
	c.TeamSplit = b.TeamSplit
	c.AdminFees = b.AdminFees
	c.NetCommission = NetCommission(b.GrossCommission, b.BrokerSplit, b.TeamSplit, b.AdminFees)
}

// Breakdown returns the four input figures of c.
func (c Commission) Breakdown() CommissionBreakdown {
	return CommissionBreakdown{
		GrossCommission: c.GrossCommission,
		BrokerSplit:     c.BrokerSplit,
		TeamSplit:       c.TeamSplit,
		AdminFees:       c.AdminFees,
	}
}

// CommissionStub is an uploaded stub image.
type CommissionStub struct {
	Image    []byte
	MimeType string
}

// StubUploadRequest is the JSON form of POST /v1/pendings/{escrowId}/commission/stub.
type StubUploadRequest struct {
	ImageBase64 string `json:"imageBase64"`
	MimeType    string `json:"mimeType,omitempty"`
}

// CommissionImportResult is returned by a stub import. Warning is set when the
// figures are the zero fallback.
type CommissionImportResult struct {
	Commission Commission `json:"commission"`
	Warning    string     `json:"warning,omitempty"`
	Cached     bool       `json:"cached"`
}

// ManualCommissionRequest is the body for PUT /v1/pendings/{escrowId}/commission.
type ManualCommissionRequest struct {
	CommissionBreakdown
	StubURL string `json:"stub_url,omitempty"`
}

// ConfirmCommissionRequest is the body for POST .../commission/confirm.
// Figures, when present, replace the draft before it is confirmed.
type ConfirmCommissionRequest struct {
	Figures *CommissionBreakdown `json:"figures,omitempty"`
}
