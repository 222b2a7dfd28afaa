// Package extractor implements port.CommissionExtractor: an HTTP agent, the
// OpenAI vision API, and a disabled provider that always fails so the caller
// falls back to zeros.
package extractor

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/brokerflow-bfa-go/internal/port"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("extractor")

const defaultMimeType = "image/jpeg"

func mimeOrDefault(m string) string {
	if m == "" {
		return defaultMimeType
	}
	return m
}

// dataURL renders the stub as an inline data URL.
func dataURL(stub domain.CommissionStub) string {
	return fmt.Sprintf("data:%s;base64,%s", mimeOrDefault(stub.MimeType), base64.StdEncoding.EncodeToString(stub.Image))
}

// stubFigures is the wire shape every provider answers with. Pointers tell a
// missing key apart from an explicit zero.
type stubFigures struct {
	GrossCommission *float64 `json:"gross_commission"`
	BrokerSplit     *float64 `json:"broker_split"`
	TeamSplit       *float64 `json:"team_split"`
	AdminFees       *float64 `json:"admin_fees"`
}

// decodeFigures parses a JSON object carrying the four keys. Missing keys,
// non-finite numbers and empty bodies are extraction failures.
func decodeFigures(raw []byte) (*domain.CommissionBreakdown, error) {
	if len(raw) == 0 {
		return nil, &domain.ErrExtraction{Reason: "no data returned"}
	}
	var f stubFigures
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, &domain.ErrExtraction{Reason: "response is not JSON: " + err.Error()}
	}
	if f.GrossCommission == nil || f.BrokerSplit == nil || f.TeamSplit == nil || f.AdminFees == nil {
		return nil, &domain.ErrExtraction{Reason: "response is missing commission keys"}
	}
	b := &domain.CommissionBreakdown{
		GrossCommission: *f.GrossCommission,
		BrokerSplit:     *f.BrokerSplit,
		TeamSplit:       *f.TeamSplit,
		AdminFees:       *f.AdminFees,
	}
	for _, v := range []float64{b.GrossCommission, b.BrokerSplit, b.TeamSplit, b.AdminFees} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, &domain.ErrExtraction{Reason: "non-finite figure"}
		}
	}
	return b, nil
}

// Disabled is selected by EXTRACTION_PROVIDER=none.
type Disabled struct{}

func (Disabled) Extract(context.Context, domain.CommissionStub) (*domain.CommissionBreakdown, error) {
	return nil, &domain.ErrExtraction{Reason: "extraction provider disabled"}
}

// Limited bounds an extractor with an optional per-call timeout and a
// concurrency cap.
type Limited struct {
	inner    port.CommissionExtractor
	timeout  time.Duration
	bulkhead *resilience.Bulkhead
}

// WithLimits wraps inner. A zero timeout leaves the request context as the
// only deadline; maxConcurrent <= 0 means unbounded. Hitting the timeout
// yields *domain.ErrTimeout.
func WithLimits(inner port.CommissionExtractor, timeout time.Duration, maxConcurrent int) *Limited {
	return &Limited{inner: inner, timeout: timeout, bulkhead: resilience.NewBulkhead(maxConcurrent)}
}

func (l *Limited) Extract(ctx context.Context, stub domain.CommissionStub) (*domain.CommissionBreakdown, error) {
	if err := l.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer l.bulkhead.Release()

	if l.timeout <= 0 {
		return l.inner.Extract(ctx, stub)
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	b, err := l.inner.Extract(callCtx, stub)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return nil, &domain.ErrTimeout{Operation: "stub extraction", Err: err}
	}
	return b, err
}
