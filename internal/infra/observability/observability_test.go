package observability_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/observability"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestExtractionSnapshot(t *testing.T) {
	m := observability.NewMetrics()

	m.IncrExtraction(observability.ExtractionSuccess)
	m.IncrExtraction(observability.ExtractionSuccess)
	m.IncrExtraction(observability.ExtractionFailure)
	m.IncrExtraction(observability.ExtractionCached)
	m.IncrCacheHit("extraction")
	m.IncrCacheMiss("extraction")
	m.IncrCacheMiss("extraction")
	m.IncrCacheMiss("extraction")
	m.RecordTokens(900, 100)

	snap := m.GetExtractionSnapshot("openai")

	if snap.Provider != "openai" {
		t.Errorf("expected provider openai, got %s", snap.Provider)
	}
	if snap.Succeeded != 2 || snap.Failed != 1 || snap.Cached != 1 {
		t.Errorf("unexpected counts %+v", snap)
	}
	if snap.FallbackRate != 0.25 {
		t.Errorf("expected fallback rate 0.25, got %f", snap.FallbackRate)
	}
	if snap.CacheHitRate != 0.25 {
		t.Errorf("expected cache hit rate 0.25, got %f", snap.CacheHitRate)
	}
	if snap.TokensConsumed != 1000 {
		t.Errorf("expected 1000 tokens, got %d", snap.TokensConsumed)
	}
}

func TestExtractionSnapshot_Empty(t *testing.T) {
	snap := observability.NewMetrics().GetExtractionSnapshot("none")
	if snap.FallbackRate != 0 || snap.CacheHitRate != 0 {
		t.Errorf("expected zero rates, got %+v", snap)
	}
}

func TestZapLoggerMiddleware_LevelByStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	logger := zap.New(core)

	for _, status := range []int{http.StatusOK, http.StatusNotFound, http.StatusInternalServerError} {
		h := observability.ZapLoggerMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/listings", nil))
	}

	entries := logs.All()
	if len(entries) != 3 {
		t.Fatalf("expected 3 log entries, got %d", len(entries))
	}
	want := []string{"info", "warn", "error"}
	for i, e := range entries {
		if e.Level.String() != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], e.Level)
		}
	}
}

func TestInitTracer_NoEndpoint(t *testing.T) {
	shutdown, err := observability.InitTracer("", "brokerflow-bfa")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("expected no-op shutdown, got %v", err)
	}
}
