package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/observability"
	"github.com/boddenberg/brokerflow-bfa-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var commissionTracer = otel.Tracer("service/commission")

const extractionCache = "extraction"

// CommissionService records commissions by hand or from an uploaded stub.
type CommissionService struct {
	repo      *Repository
	extractor port.CommissionExtractor
	cache     port.Cache[domain.CommissionBreakdown]
	metrics   *observability.Metrics
	provider  string
	logger    *zap.Logger
}

// NewCommissionService creates the commission service.
func NewCommissionService(
	repo *Repository,
	extractor port.CommissionExtractor,
	cache port.Cache[domain.CommissionBreakdown],
	metrics *observability.Metrics,
	provider string,
	logger *zap.Logger,
) *CommissionService {
	return &CommissionService{
		repo:      repo,
		extractor: extractor,
		cache:     cache,
		metrics:   metrics,
		provider:  provider,
		logger:    logger,
	}
}

// Provider names the configured extraction provider.
func (s *CommissionService) Provider() string {
	return s.provider
}

// Get returns the commission recorded for an escrow.
func (s *CommissionService) Get(ctx context.Context, p domain.Principal, escrowID string) (*domain.Commission, error) {
	ctx, span := commissionTracer.Start(ctx, "CommissionService.Get")
	defer span.End()

	commissions, err := loadScoped[domain.Commission](ctx, s.repo, domain.CollectionCommissions, p)
	if err != nil {
		return nil, err
	}
	if i := indexCommission(commissions, escrowID); i >= 0 {
		c := commissions[i]
		return &c, nil
	}
	return nil, &domain.ErrNotFound{Resource: "commission", ID: escrowID}
}

// SaveManual records hand-entered figures as a confirmed commission.
func (s *CommissionService) SaveManual(ctx context.Context, p domain.Principal, escrowID string, req *domain.ManualCommissionRequest) (*domain.Commission, error) {
	ctx, span := commissionTracer.Start(ctx, "CommissionService.SaveManual")
	defer span.End()

	if err := validateFigures(req.CommissionBreakdown); err != nil {
		return nil, err
	}

	c := domain.NewCommission(escrowID, req.CommissionBreakdown, true)
	c.StubURL = req.StubURL
	return s.upsert(ctx, p, c)
}

// ImportStub extracts figures from a stub image. Any extraction failure
// degrades to the zero commission plus a warning and is not persisted;
// successes are saved as an unconfirmed draft. A cancelled request returns
// the context error and persists nothing.
func (s *CommissionService) ImportStub(ctx context.Context, p domain.Principal, escrowID string, stub domain.CommissionStub) (*domain.CommissionImportResult, error) {
	ctx, span := commissionTracer.Start(ctx, "CommissionService.ImportStub")
	defer span.End()
	span.SetAttributes(
		attribute.String("escrow.id", escrowID),
		attribute.String("extraction.provider", s.provider),
	)

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("commission_import", time.Since(start))
	}()

	if len(stub.Image) == 0 {
		return nil, &domain.ErrValidation{Field: "stub", Message: "image is empty"}
	}
	if _, err := s.repo.findEscrow(ctx, p, escrowID); err != nil {
		return nil, err
	}

	digest := stubDigest(stub)
	if b, ok := s.cache.Get(digest); ok {
		s.metrics.IncrCacheHit(extractionCache)
		s.metrics.IncrExtraction(observability.ExtractionCached)
		return s.persistDraft(ctx, p, escrowID, b, true)
	}
	s.metrics.IncrCacheMiss(extractionCache)

	b, err := s.extractor.Extract(ctx, stub)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if err != nil || b == nil {
		s.metrics.IncrExtraction(observability.ExtractionFailure)
		if err != nil {
			s.metrics.IncrExternalError(s.provider)
			span.RecordError(err)
		}
		s.logger.Warn("stub extraction failed, falling back to zero commission",
			zap.String("account_id", p.AccountID),
			zap.String("escrow_id", escrowID),
			zap.String("provider", s.provider),
			zap.Error(err),
		)
		return &domain.CommissionImportResult{
			Commission: domain.NewCommission(escrowID, domain.CommissionBreakdown{}, false),
			Warning:    domain.StubFallbackWarning,
		}, nil
	}

	s.metrics.IncrExtraction(observability.ExtractionSuccess)
	s.cache.Set(digest, *b)
	return s.persistDraft(ctx, p, escrowID, *b, false)
}

func (s *CommissionService) persistDraft(ctx context.Context, p domain.Principal, escrowID string, b domain.CommissionBreakdown, cached bool) (*domain.CommissionImportResult, error) {
	c, err := s.upsert(ctx, p, domain.NewCommission(escrowID, b, false))
	if err != nil {
		return nil, err
	}
	return &domain.CommissionImportResult{Commission: *c, Cached: cached}, nil
}

// Confirm marks the escrow's commission as confirmed, applying corrected
// figures first when given.
func (s *CommissionService) Confirm(ctx context.Context, p domain.Principal, escrowID string, req *domain.ConfirmCommissionRequest) (*domain.Commission, error) {
	ctx, span := commissionTracer.Start(ctx, "CommissionService.Confirm")
	defer span.End()

	if req.Figures != nil {
		if err := validateFigures(*req.Figures); err != nil {
			return nil, err
		}
	}

	defer s.repo.lockAccount(p.AccountID)()

	commissions, err := loadScoped[domain.Commission](ctx, s.repo, domain.CollectionCommissions, p)
	if err != nil {
		return nil, err
	}
	i := indexCommission(commissions, escrowID)
	if i < 0 {
		return nil, &domain.ErrNotFound{Resource: "commission", ID: escrowID}
	}
	if req.Figures != nil {
		commissions[i].Apply(*req.Figures)
	}
	commissions[i].IsConfirmed = true
	if err := saveScoped(ctx, s.repo, domain.CollectionCommissions, p, commissions); err != nil {
		return nil, err
	}
	c := commissions[i]
	return &c, nil
}

// upsert keeps one commission per escrow, preserving the existing id.
func (s *CommissionService) upsert(ctx context.Context, p domain.Principal, c domain.Commission) (*domain.Commission, error) {
	if _, err := s.repo.findEscrow(ctx, p, c.EscrowID); err != nil {
		return nil, err
	}

	defer s.repo.lockAccount(p.AccountID)()

	commissions, err := loadScoped[domain.Commission](ctx, s.repo, domain.CollectionCommissions, p)
	if err != nil {
		return nil, err
	}
	if i := indexCommission(commissions, c.EscrowID); i >= 0 {
		c.ID = commissions[i].ID
		if c.StubURL == "" {
			c.StubURL = commissions[i].StubURL
		}
		commissions[i] = c
	} else {
		c.ID = uuid.NewString()
		commissions = append(commissions, c)
	}
	if err := saveScoped(ctx, s.repo, domain.CollectionCommissions, p, commissions); err != nil {
		return nil, err
	}
	s.logger.Info("commission saved",
		zap.String("account_id", p.AccountID),
		zap.String("escrow_id", c.EscrowID),
		zap.Bool("confirmed", c.IsConfirmed),
	)
	return &c, nil
}

func validateFigures(b domain.CommissionBreakdown) error {
	fields := []struct {
		name  string
		value float64
	}{
		{"gross_commission", b.GrossCommission},
		{"broker_split", b.BrokerSplit},
		{"team_split", b.TeamSplit},
		{"admin_fees", b.AdminFees},
	}
	for _, f := range fields {
		if f.value < 0 {
			return &domain.ErrValidation{Field: f.name, Message: "must not be negative"}
		}
	}
	return nil
}

func stubDigest(stub domain.CommissionStub) string {
	sum := sha256.Sum256(stub.Image)
	return "sha256:" + hex.EncodeToString(sum[:])
}
