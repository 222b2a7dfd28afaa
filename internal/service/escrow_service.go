package service

import (
	"context"
	"strings"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Escrow lifecycle events, the event label of bf_escrow_events_total.
const (
	eventConverted = "converted"
	eventOpened    = "opened"
	eventClosed    = "closed"
	eventCancelled = "cancelled"
)

// EscrowService runs the escrow lifecycle: opening from a listing or
// directly, contingency tracking, deposits, closing and the closed archive.
type EscrowService struct {
	repo    *Repository
	metrics *observability.Metrics
	now     func() time.Time
	logger  *zap.Logger
}

// NewEscrowService creates the escrow service.
func NewEscrowService(repo *Repository, metrics *observability.Metrics, logger *zap.Logger) *EscrowService {
	return &EscrowService{repo: repo, metrics: metrics, now: time.Now, logger: logger}
}

// WithClock replaces the time source.
func (s *EscrowService) WithClock(now func() time.Time) *EscrowService {
	s.now = now
	return s
}

func (s *EscrowService) today() string {
	return domain.FormatDate(s.now())
}

func seedContingencies() []domain.Contingency {
	out := make([]domain.Contingency, 0, len(domain.DefaultContingencies))
	for _, name := range domain.DefaultContingencies {
		out = append(out, domain.Contingency{
			ID:     uuid.NewString(),
			Name:   name,
			Status: domain.ContingencyPending,
		})
	}
	return out
}

// ============================================================
// Opening escrows
// ============================================================

// ConvertListingToEscrow opens an escrow for a listing and flips the listing
// to PENDING. A listing already PENDING is rejected without touching any
// collection. Returns the new escrow id.
func (s *EscrowService) ConvertListingToEscrow(ctx context.Context, p domain.Principal, listingID string, opts domain.ConvertOptions) (string, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.ConvertListingToEscrow")
	defer span.End()
	span.SetAttributes(attribute.String("listing.id", listingID))

	representing := opts.Representing
	if representing == "" {
		representing = domain.RepresentSeller
	}
	if !representing.Valid() {
		return "", &domain.ErrValidation{Field: "representing", Message: "must be BUYER, SELLER or BOTH"}
	}

	defer s.repo.lockAccount(p.AccountID)()

	listings, err := loadScoped[domain.Listing](ctx, s.repo, domain.CollectionListings, p)
	if err != nil {
		return "", err
	}
	idx := -1
	for i := range listings {
		if listings[i].ID == listingID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", &domain.ErrNotFound{Resource: "listing", ID: listingID}
	}
	if listings[idx].Status == domain.ListingPending {
		return "", &domain.ErrConflict{Message: "listing is already in escrow"}
	}

	pendings, err := loadScoped[domain.Escrow](ctx, s.repo, domain.CollectionPendings, p)
	if err != nil {
		return "", err
	}

	now := s.now()
	escrow := domain.Escrow{
		ID:              uuid.NewString(),
		AgentID:         p.AccountID,
		ListingID:       listingID,
		Address:         listings[idx].Address,
		DealType:        representing.DealType(),
		Status:          domain.EscrowOpen,
		CloseDate:       domain.FormatDate(now.AddDate(0, 0, domain.EscrowCloseWindowDays)),
		CreatedAt:       domain.FormatDate(now),
		Representing:    representing,
		DepositReceived: false,
		Contingencies:   seedContingencies(),
	}
	if listings[idx].SellerName != "" {
		escrow.SellerInfo = &domain.ContactInfo{Name: listings[idx].SellerName, Phone: listings[idx].SellerContact}
	}

	restorePendings, err := s.repo.snapshotScoped(ctx, domain.CollectionPendings, p)
	if err != nil {
		return "", err
	}
	if err := saveScoped(ctx, s.repo, domain.CollectionPendings, p, append([]domain.Escrow{escrow}, pendings...)); err != nil {
		return "", err
	}
	listings[idx].Status = domain.ListingPending
	if err := saveScoped(ctx, s.repo, domain.CollectionListings, p, listings); err != nil {
		s.rollback(ctx, p, domain.CollectionPendings, restorePendings)
		return "", err
	}

	s.metrics.IncrEscrowEvent(eventConverted)
	s.logger.Info("listing converted to escrow",
		zap.String("account_id", p.AccountID),
		zap.String("listing_id", listingID),
		zap.String("escrow_id", escrow.ID),
	)
	return escrow.ID, nil
}

// CreateEscrow opens an escrow that has no listing behind it.
func (s *EscrowService) CreateEscrow(ctx context.Context, p domain.Principal, req *domain.CreateEscrowRequest) (*domain.Escrow, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.CreateEscrow")
	defer span.End()

	if strings.TrimSpace(req.Address) == "" {
		return nil, &domain.ErrValidation{Field: "address", Message: "address is required"}
	}
	representing := req.Representing
	if representing == "" {
		representing = domain.RepresentSeller
	}
	if !representing.Valid() {
		return nil, &domain.ErrValidation{Field: "representing", Message: "must be BUYER, SELLER or BOTH"}
	}
	if req.DepositAmount != nil && *req.DepositAmount < 0 {
		return nil, &domain.ErrValidation{Field: "deposit_amount", Message: "must not be negative"}
	}

	now := s.now()
	escrow := domain.Escrow{
		ID:            uuid.NewString(),
		AgentID:       p.AccountID,
		Address:       strings.TrimSpace(req.Address),
		DealType:      representing.DealType(),
		Status:        domain.EscrowOpen,
		CloseDate:     req.CloseDate,
		CreatedAt:     domain.FormatDate(now),
		EscrowOfficer: req.EscrowOfficer,
		BuyerInfo:     req.BuyerInfo,
		SellerInfo:    req.SellerInfo,
		Representing:  representing,
		DepositAmount: req.DepositAmount,
		Contingencies: []domain.Contingency{},
	}
	if escrow.CloseDate == "" {
		escrow.CloseDate = domain.FormatDate(now.AddDate(0, 0, domain.EscrowCloseWindowDays))
	}
	for _, c := range req.Contingencies {
		if strings.TrimSpace(c.Name) == "" {
			return nil, &domain.ErrValidation{Field: "contingencies", Message: "contingency name is required"}
		}
		escrow.Contingencies = append(escrow.Contingencies, domain.Contingency{
			ID:      uuid.NewString(),
			Name:    strings.TrimSpace(c.Name),
			DueDate: c.DueDate,
			Status:  domain.ContingencyPending,
		})
	}

	defer s.repo.lockAccount(p.AccountID)()

	pendings, err := loadScoped[domain.Escrow](ctx, s.repo, domain.CollectionPendings, p)
	if err != nil {
		return nil, err
	}
	if err := saveScoped(ctx, s.repo, domain.CollectionPendings, p, append([]domain.Escrow{escrow}, pendings...)); err != nil {
		return nil, err
	}

	s.metrics.IncrEscrowEvent(eventOpened)
	s.logger.Info("escrow opened", zap.String("account_id", p.AccountID), zap.String("escrow_id", escrow.ID))
	return &escrow, nil
}

// ============================================================
// Contingencies, deposit and contract details
// ============================================================

// ToggleContingency flips MET and PENDING. WAIVED contingencies are left as is.
func (s *EscrowService) ToggleContingency(ctx context.Context, p domain.Principal, escrowID, contingencyID string) (*domain.Escrow, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.ToggleContingency")
	defer span.End()

	return s.mutatePending(ctx, p, escrowID, func(e *domain.Escrow) error {
		c := e.Contingency(contingencyID)
		if c == nil {
			return &domain.ErrNotFound{Resource: "contingency", ID: contingencyID}
		}
		c.Status = c.Status.Toggled()
		return nil
	})
}

// SetContingencyStatus assigns any of PENDING, MET or WAIVED.
func (s *EscrowService) SetContingencyStatus(ctx context.Context, p domain.Principal, escrowID, contingencyID string, status domain.ContingencyStatus) (*domain.Escrow, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.SetContingencyStatus")
	defer span.End()

	if !status.Valid() {
		return nil, &domain.ErrValidation{Field: "status", Message: "must be PENDING, MET or WAIVED"}
	}
	return s.mutatePending(ctx, p, escrowID, func(e *domain.Escrow) error {
		c := e.Contingency(contingencyID)
		if c == nil {
			return &domain.ErrNotFound{Resource: "contingency", ID: contingencyID}
		}
		c.Status = status
		return nil
	})
}

// AddContingency appends a PENDING contingency.
func (s *EscrowService) AddContingency(ctx context.Context, p domain.Principal, escrowID string, req *domain.NewContingencyRequest) (*domain.Escrow, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.AddContingency")
	defer span.End()

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "contingency name is required"}
	}
	return s.mutatePending(ctx, p, escrowID, func(e *domain.Escrow) error {
		e.Contingencies = append(e.Contingencies, domain.Contingency{
			ID:      uuid.NewString(),
			Name:    name,
			DueDate: req.DueDate,
			Status:  domain.ContingencyPending,
		})
		return nil
	})
}

// MarkDepositReceived sets deposit_received. It never goes back to false.
func (s *EscrowService) MarkDepositReceived(ctx context.Context, p domain.Principal, escrowID string) (*domain.Escrow, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.MarkDepositReceived")
	defer span.End()

	return s.mutatePending(ctx, p, escrowID, func(e *domain.Escrow) error {
		e.DepositReceived = true
		return nil
	})
}

// UpdateEscrow merges close date, deposit amount and contacts.
func (s *EscrowService) UpdateEscrow(ctx context.Context, p domain.Principal, escrowID string, req *domain.UpdateEscrowRequest) (*domain.Escrow, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.UpdateEscrow")
	defer span.End()

	if req.DepositAmount != nil && *req.DepositAmount < 0 {
		return nil, &domain.ErrValidation{Field: "deposit_amount", Message: "must not be negative"}
	}
	if req.CloseDate != nil && *req.CloseDate != "" {
		if _, ok := domain.ParseDate(*req.CloseDate); !ok {
			return nil, &domain.ErrValidation{Field: "close_date", Message: "must be YYYY-MM-DD"}
		}
	}
	return s.mutatePending(ctx, p, escrowID, func(e *domain.Escrow) error {
		req.Apply(e)
		return nil
	})
}

// mutatePending applies fn to one open escrow and rewrites pendings.
func (s *EscrowService) mutatePending(ctx context.Context, p domain.Principal, escrowID string, fn func(*domain.Escrow) error) (*domain.Escrow, error) {
	defer s.repo.lockAccount(p.AccountID)()

	pendings, err := loadScoped[domain.Escrow](ctx, s.repo, domain.CollectionPendings, p)
	if err != nil {
		return nil, err
	}
	i := indexEscrow(pendings, escrowID)
	if i < 0 {
		return nil, &domain.ErrNotFound{Resource: "escrow", ID: escrowID}
	}
	if err := fn(&pendings[i]); err != nil {
		return nil, err
	}
	if err := saveScoped(ctx, s.repo, domain.CollectionPendings, p, pendings); err != nil {
		return nil, err
	}
	updated := pendings[i]
	return &updated, nil
}

// ============================================================
// Closing
// ============================================================

// CloseEscrow archives an open escrow as CLOSED. The close date is the one
// supplied, else the scheduled one, else today.
func (s *EscrowService) CloseEscrow(ctx context.Context, p domain.Principal, escrowID string, req *domain.CloseEscrowRequest) (*domain.Escrow, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.CloseEscrow")
	defer span.End()

	if req.CloseDate != "" {
		if _, ok := domain.ParseDate(req.CloseDate); !ok {
			return nil, &domain.ErrValidation{Field: "close_date", Message: "must be YYYY-MM-DD"}
		}
	}
	return s.archive(ctx, p, escrowID, func(e *domain.Escrow) {
		e.Status = domain.EscrowClosed
		switch {
		case req.CloseDate != "":
			e.CloseDate = req.CloseDate
		case e.CloseDate == "":
			e.CloseDate = s.today()
		}
	}, eventClosed)
}

// CancelEscrow archives an open escrow as CANCELLED.
func (s *EscrowService) CancelEscrow(ctx context.Context, p domain.Principal, escrowID string) (*domain.Escrow, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.CancelEscrow")
	defer span.End()

	return s.archive(ctx, p, escrowID, func(e *domain.Escrow) {
		e.Status = domain.EscrowCancelled
	}, eventCancelled)
}

func (s *EscrowService) archive(ctx context.Context, p domain.Principal, escrowID string, fn func(*domain.Escrow), event string) (*domain.Escrow, error) {
	defer s.repo.lockAccount(p.AccountID)()

	pendings, err := loadScoped[domain.Escrow](ctx, s.repo, domain.CollectionPendings, p)
	if err != nil {
		return nil, err
	}
	i := indexEscrow(pendings, escrowID)
	if i < 0 {
		closed, err := loadScoped[domain.Escrow](ctx, s.repo, domain.CollectionClosed, p)
		if err != nil {
			return nil, err
		}
		if indexEscrow(closed, escrowID) >= 0 {
			return nil, &domain.ErrConflict{Message: "escrow is no longer open"}
		}
		return nil, &domain.ErrNotFound{Resource: "escrow", ID: escrowID}
	}

	escrow := pendings[i]
	fn(&escrow)

	closed, err := loadScoped[domain.Escrow](ctx, s.repo, domain.CollectionClosed, p)
	if err != nil {
		return nil, err
	}
	restoreClosed, err := s.repo.snapshotScoped(ctx, domain.CollectionClosed, p)
	if err != nil {
		return nil, err
	}
	if err := saveScoped(ctx, s.repo, domain.CollectionClosed, p, append([]domain.Escrow{escrow}, closed...)); err != nil {
		return nil, err
	}
	remaining := append(pendings[:i:i], pendings[i+1:]...)
	if err := saveScoped(ctx, s.repo, domain.CollectionPendings, p, remaining); err != nil {
		s.rollback(ctx, p, domain.CollectionClosed, restoreClosed)
		return nil, err
	}

	s.metrics.IncrEscrowEvent(event)
	s.logger.Info("escrow archived",
		zap.String("account_id", p.AccountID),
		zap.String("escrow_id", escrowID),
		zap.String("status", string(escrow.Status)),
	)
	return &escrow, nil
}

// rollback puts a collection back after the second write of a two-collection
// change failed. A failed restore is logged; the original error still wins.
func (s *EscrowService) rollback(ctx context.Context, p domain.Principal, collection string, restore func(context.Context) error) {
	if err := restore(ctx); err != nil {
		s.logger.Error("rollback failed, collections may disagree",
			zap.String("account_id", p.AccountID),
			zap.String("collection", collection),
			zap.Error(err),
		)
	}
}

// ============================================================
// Queries
// ============================================================

// ListPendings returns the open escrows, newest first.
func (s *EscrowService) ListPendings(ctx context.Context, p domain.Principal) ([]domain.Escrow, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.ListPendings")
	defer span.End()

	return loadScoped[domain.Escrow](ctx, s.repo, domain.CollectionPendings, p)
}

// GetEscrow finds an escrow in pendings or the closed archive.
func (s *EscrowService) GetEscrow(ctx context.Context, p domain.Principal, escrowID string) (*domain.Escrow, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.GetEscrow")
	defer span.End()

	return s.repo.findEscrow(ctx, p, escrowID)
}

// ListClosed filters CLOSED deals by close-date period and a
// case-insensitive address search.
func (s *EscrowService) ListClosed(ctx context.Context, p domain.Principal, period, search string) ([]domain.Escrow, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.ListClosed")
	defer span.End()

	cp, err := domain.ParseClosedPeriod(period)
	if err != nil {
		return nil, err
	}
	closed, err := loadScoped[domain.Escrow](ctx, s.repo, domain.CollectionClosed, p)
	if err != nil {
		return nil, err
	}

	now := s.now()
	needle := strings.ToLower(strings.TrimSpace(search))
	out := make([]domain.Escrow, 0, len(closed))
	for _, e := range closed {
		if e.Status != domain.EscrowClosed || !cp.Matches(e.CloseDate, now) {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(e.Address), needle) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// EscrowFinancials joins an escrow with its commission and linked expenses.
func (s *EscrowService) EscrowFinancials(ctx context.Context, p domain.Principal, escrowID string) (*domain.EscrowFinancials, error) {
	ctx, span := tracer.Start(ctx, "EscrowService.EscrowFinancials")
	defer span.End()

	if _, err := s.repo.findEscrow(ctx, p, escrowID); err != nil {
		return nil, err
	}
	commissions, err := loadScoped[domain.Commission](ctx, s.repo, domain.CollectionCommissions, p)
	if err != nil {
		return nil, err
	}
	expenses, err := loadScoped[domain.Expense](ctx, s.repo, domain.CollectionExpenses, p)
	if err != nil {
		return nil, err
	}

	fin := &domain.EscrowFinancials{EscrowID: escrowID, Expenses: []domain.Expense{}}
	if i := indexCommission(commissions, escrowID); i >= 0 {
		c := commissions[i]
		fin.Commission = &c
	}
	for _, e := range expenses {
		if e.EscrowID == escrowID {
			fin.Expenses = append(fin.Expenses, e)
		}
	}
	fin.TotalExpenses = domain.TotalExpenses(fin.Expenses)
	if fin.Commission != nil {
		fin.NetProfit = fin.Commission.NetCommission
	}
	fin.NetProfit -= fin.TotalExpenses
	return fin, nil
}
