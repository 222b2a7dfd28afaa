package service

import (
	"context"
	"strings"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service/escrow")

// ListingService manages the agent's listings.
type ListingService struct {
	repo   *Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewListingService creates the listing service.
func NewListingService(repo *Repository, logger *zap.Logger) *ListingService {
	return &ListingService{repo: repo, now: time.Now, logger: logger}
}

// WithClock replaces the time source.
func (s *ListingService) WithClock(now func() time.Time) *ListingService {
	s.now = now
	return s
}

// List returns the principal's listings, newest first.
func (s *ListingService) List(ctx context.Context, p domain.Principal) ([]domain.Listing, error) {
	ctx, span := tracer.Start(ctx, "ListingService.List")
	defer span.End()

	return loadScoped[domain.Listing](ctx, s.repo, domain.CollectionListings, p)
}

// Add creates an ACTIVE listing and prepends it.
func (s *ListingService) Add(ctx context.Context, p domain.Principal, req *domain.CreateListingRequest) (*domain.Listing, error) {
	ctx, span := tracer.Start(ctx, "ListingService.Add")
	defer span.End()

	if strings.TrimSpace(req.Address) == "" {
		return nil, &domain.ErrValidation{Field: "address", Message: "address is required"}
	}
	listingType := req.ListingType
	if listingType == "" {
		listingType = domain.ListingSale
	}
	if !listingType.Valid() {
		return nil, &domain.ErrValidation{Field: "listing_type", Message: "must be SALE or LEASE"}
	}
	if req.Price != nil && *req.Price < 0 {
		return nil, &domain.ErrValidation{Field: "price", Message: "must not be negative"}
	}
	propertyType := strings.TrimSpace(req.PropertyType)
	if propertyType == "" {
		propertyType = domain.DefaultPropertyType
	}

	l := domain.Listing{
		ID:             uuid.NewString(),
		AgentID:        p.AccountID,
		Address:        strings.TrimSpace(req.Address),
		PropertyType:   propertyType,
		Status:         domain.ListingActive,
		ListingType:    listingType,
		Price:          req.Price,
		ListingDate:    req.ListingDate,
		ExpirationDate: req.ExpirationDate,
		SellerName:     req.SellerName,
		SellerContact:  req.SellerContact,
		ImageURL:       req.ImageURL,
		CreatedAt:      domain.FormatDate(s.now()),
	}
	if l.ListingDate == "" {
		l.ListingDate = l.CreatedAt
	}

	defer s.repo.lockAccount(p.AccountID)()

	listings, err := loadScoped[domain.Listing](ctx, s.repo, domain.CollectionListings, p)
	if err != nil {
		return nil, err
	}
	if err := saveScoped(ctx, s.repo, domain.CollectionListings, p, append([]domain.Listing{l}, listings...)); err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.String("listing.id", l.ID))
	s.logger.Info("listing added", zap.String("account_id", p.AccountID), zap.String("listing_id", l.ID))
	return &l, nil
}

// Update merges req into the listing. Status cannot be changed here.
func (s *ListingService) Update(ctx context.Context, p domain.Principal, listingID string, req *domain.UpdateListingRequest) (*domain.Listing, error) {
	ctx, span := tracer.Start(ctx, "ListingService.Update")
	defer span.End()

	if req.Address != nil && strings.TrimSpace(*req.Address) == "" {
		return nil, &domain.ErrValidation{Field: "address", Message: "address must not be empty"}
	}
	if req.ListingType != nil && !req.ListingType.Valid() {
		return nil, &domain.ErrValidation{Field: "listing_type", Message: "must be SALE or LEASE"}
	}
	if req.Price != nil && *req.Price < 0 {
		return nil, &domain.ErrValidation{Field: "price", Message: "must not be negative"}
	}

	return s.mutate(ctx, p, listingID, func(l *domain.Listing) error {
		req.Apply(l)
		return nil
	})
}

// Archive moves an ACTIVE listing to ARCHIVED.
func (s *ListingService) Archive(ctx context.Context, p domain.Principal, listingID string) (*domain.Listing, error) {
	ctx, span := tracer.Start(ctx, "ListingService.Archive")
	defer span.End()

	return s.mutate(ctx, p, listingID, func(l *domain.Listing) error {
		if l.Status != domain.ListingActive {
			return &domain.ErrConflict{Message: "only active listings can be archived"}
		}
		l.Status = domain.ListingArchived
		return nil
	})
}

// mutate applies fn to one listing and saves the collection. Nothing is
// written when fn fails.
func (s *ListingService) mutate(ctx context.Context, p domain.Principal, listingID string, fn func(*domain.Listing) error) (*domain.Listing, error) {
	defer s.repo.lockAccount(p.AccountID)()

	listings, err := loadScoped[domain.Listing](ctx, s.repo, domain.CollectionListings, p)
	if err != nil {
		return nil, err
	}
	for i := range listings {
		if listings[i].ID != listingID {
			continue
		}
		if err := fn(&listings[i]); err != nil {
			return nil, err
		}
		if err := saveScoped(ctx, s.repo, domain.CollectionListings, p, listings); err != nil {
			return nil, err
		}
		updated := listings[i]
		return &updated, nil
	}
	return nil, &domain.ErrNotFound{Resource: "listing", ID: listingID}
}
