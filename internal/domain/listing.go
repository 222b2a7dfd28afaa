package domain

// ============================================================
// Listings
// ============================================================

type ListingStatus string

const (
	ListingActive   ListingStatus = "ACTIVE"
	ListingPending  ListingStatus = "PENDING"
	ListingArchived ListingStatus = "ARCHIVED"
)

type ListingType string

const (
	ListingSale  ListingType = "SALE"
	ListingLease ListingType = "LEASE"
)

// Valid reports whether t is SALE or LEASE.
func (t ListingType) Valid() bool {
	return t == ListingSale || t == ListingLease
}

const DefaultPropertyType = "Single Family"

// Listing is a property the agent has taken to market.
// Status only moves forward: ACTIVE -> PENDING (escrow opened) or ACTIVE -> ARCHIVED.
type Listing struct {
	ID             string        `json:"id"`
	AgentID        string        `json:"agent_id"`
	Address        string        `json:"address"`
	PropertyType   string        `json:"property_type"`
	Status         ListingStatus `json:"status"`
	ListingType    ListingType   `json:"listing_type"`
	Price          *float64      `json:"price,omitempty"`
	ListingDate    string        `json:"listing_date,omitempty"`
	ExpirationDate string        `json:"expiration_date,omitempty"`
	SellerName     string        `json:"seller_name,omitempty"`
	SellerContact  string        `json:"seller_contact,omitempty"`
	ImageURL       string        `json:"image_url,omitempty"`
	CreatedAt      string        `json:"created_at"`
}

// CreateListingRequest is the body for POST /v1/listings.
type CreateListingRequest struct {
	Address        string      `json:"address"`
	PropertyType   string      `json:"property_type,omitempty"`
	ListingType    ListingType `json:"listing_type,omitempty"`
	Price          *float64    `json:"price,omitempty"`
	ListingDate    string      `json:"listing_date,omitempty"`
	ExpirationDate string      `json:"expiration_date,omitempty"`
	SellerName     string      `json:"seller_name,omitempty"`
	SellerContact  string      `json:"seller_contact,omitempty"`
	ImageURL       string      `json:"image_url,omitempty"`
}

// UpdateListingRequest is the body for PATCH /v1/listings/{listingId}.
// Nil fields are left untouched. Status is deliberately absent.
type UpdateListingRequest struct {
	Address        *string      `json:"address,omitempty"`
	PropertyType   *string      `json:"property_type,omitempty"`
	ListingType    *ListingType `json:"listing_type,omitempty"`
	Price          *float64     `json:"price,omitempty"`
	ListingDate    *string      `json:"listing_date,omitempty"`
	ExpirationDate *string      `json:"expiration_date,omitempty"`
	SellerName     *string      `json:"seller_name,omitempty"`
	SellerContact  *string      `json:"seller_contact,omitempty"`
	ImageURL       *string      `json:"image_url,omitempty"`
}

// Apply merges the non-nil fields of req into l.
func (req *UpdateListingRequest) Apply(l *Listing) {
	if req.Address != nil {
		l.Address = *req.Address
	}
	if req.PropertyType != nil {
		l.PropertyType = *req.PropertyType
	}
	if req.ListingType != nil {
		l.ListingType = *req.ListingType
	}
	if req.Price != nil {
		p := *req.Price
		l.Price = &p
	}
	if req.ListingDate != nil {
		l.ListingDate = *req.ListingDate
	}
	if req.ExpirationDate != nil {
		l.ExpirationDate = *req.ExpirationDate
	}
	if req.SellerName != nil {
		l.SellerName = *req.SellerName
	}
	if req.SellerContact != nil {
		l.SellerContact = *req.SellerContact
	}
	if req.ImageURL != nil {
		l.ImageURL = *req.ImageURL
	}
}
