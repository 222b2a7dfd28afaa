package handler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/handler"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/cache"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/extractor"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/observability"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/store"
	"github.com/boddenberg/brokerflow-bfa-go/internal/port"
	"github.com/boddenberg/brokerflow-bfa-go/internal/service"

	"go.uber.org/zap"
)

type stubExtractor struct {
	result *domain.CommissionBreakdown
}

func (s stubExtractor) Extract(context.Context, domain.CommissionStub) (*domain.CommissionBreakdown, error) {
	if s.result == nil {
		return nil, &domain.ErrExtraction{Reason: "unreadable"}
	}
	return s.result, nil
}

type failingStore struct{ port.CollectionStore }

func (failingStore) Ping(context.Context) error {
	return &domain.ErrExternalService{Service: "redis", Err: context.DeadlineExceeded}
}

func newRouter(t *testing.T, ext port.CommissionExtractor) (http.Handler, *service.Repository) {
	t.Helper()

	logger := zap.NewNop()
	mem := store.NewMemory()
	repo := service.NewRepository(mem)
	metrics := observability.NewMetrics()
	c := cache.New[domain.CommissionBreakdown](time.Minute)
	t.Cleanup(c.Close)

	return handler.NewRouter(handler.Deps{
		Sessions:     service.NewSessionService(repo, service.SessionConfig{JWTSecret: "test-secret"}, logger),
		Listings:     service.NewListingService(repo, logger),
		Escrows:      service.NewEscrowService(repo, metrics, logger),
		Commissions:  service.NewCommissionService(repo, ext, c, metrics, "stub", logger),
		Finance:      service.NewFinanceService(repo, logger),
		Dashboard:    service.NewDashboardService(repo, logger),
		Store:        mem,
		Metrics:      metrics,
		MaxStubBytes: 1024,
	}, logger), repo
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return v
}

func signup(t *testing.T, h http.Handler, email string) string {
	t.Helper()

	rec := do(t, h, http.MethodPost, "/v1/auth/signup", "", domain.SignupRequest{FirstName: "Alex", Email: email})
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[domain.SessionResponse](t, rec).AccessToken
}

func TestHealthz(t *testing.T) {
	router, _ := newRouter(t, extractor.Disabled{})

	rec := do(t, router, http.MethodGet, "/healthz", "", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if got := decode[domain.HealthStatus](t, rec); got.Status != "healthy" || len(got.Services) != 2 {
		t.Errorf("unexpected health: %+v", got)
	}
}

func TestReadyz(t *testing.T) {
	router, _ := newRouter(t, extractor.Disabled{})

	rec := do(t, router, http.MethodGet, "/readyz", "", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestReadyz_StoreDown(t *testing.T) {
	metrics := observability.NewMetrics()
	router := handler.NewRouter(handler.Deps{Store: failingStore{}, Metrics: metrics}, zap.NewNop())

	rec := do(t, router, http.MethodGet, "/readyz", "", nil)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router, _ := newRouter(t, extractor.Disabled{})

	rec := do(t, router, http.MethodGet, "/metrics", "", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	router, _ := newRouter(t, extractor.Disabled{})

	tests := []struct {
		name  string
		token string
	}{
		{"missing", ""},
		{"garbage", "not-a-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, router, http.MethodGet, "/v1/listings", tt.token, nil)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
		})
	}
}

func TestUnknownRouteRedirects(t *testing.T) {
	router, _ := newRouter(t, extractor.Disabled{})

	for _, path := range []string{"/v1/nowhere", "/listings", "/"} {
		rec := do(t, router, http.MethodGet, path, "", nil)

		if rec.Code != http.StatusFound {
			t.Fatalf("%s: expected 302, got %d", path, rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "/v1/dashboard" {
			t.Errorf("%s: expected redirect to /v1/dashboard, got %q", path, loc)
		}
	}

	rec := do(t, router, http.MethodPost, "/listings", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown POST: expected 404, got %d", rec.Code)
	}
}

func TestSignupAndLoginErrors(t *testing.T) {
	router, _ := newRouter(t, extractor.Disabled{})
	signup(t, router, "agent@example.com")

	rec := do(t, router, http.MethodPost, "/v1/auth/signup", "", domain.SignupRequest{FirstName: "B", Email: "AGENT@example.com"})
	if rec.Code != http.StatusConflict {
		t.Errorf("duplicate signup: expected 409, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{Email: "ghost@example.com"})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unknown login: expected 401, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{Email: "agent@example.com"})
	if rec.Code != http.StatusOK {
		t.Errorf("login: expected 200, got %d", rec.Code)
	}
}

func TestEscrowFlow(t *testing.T) {
	router, _ := newRouter(t, stubExtractor{result: &domain.CommissionBreakdown{GrossCommission: 20000, BrokerSplit: 4000}})
	token := signup(t, router, "agent@example.com")

	rec := do(t, router, http.MethodPost, "/v1/listings", token, domain.CreateListingRequest{Address: "12 Birch Rd"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add listing: expected 201, got %d", rec.Code)
	}
	listing := decode[domain.Listing](t, rec)

	rec = do(t, router, http.MethodPost, "/v1/listings/"+listing.ID+"/convert", token, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("convert: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	escrowID := decode[domain.SuccessResponse](t, rec).ID

	rec = do(t, router, http.MethodPost, "/v1/listings/"+listing.ID+"/convert", token, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second convert: expected 409, got %d", rec.Code)
	}
	if msg := decode[map[string]string](t, rec)["error"]; msg != "listing is already in escrow" {
		t.Errorf("unexpected message %q", msg)
	}

	rec = do(t, router, http.MethodGet, "/v1/pendings/"+escrowID, token, nil)
	escrow := decode[domain.Escrow](t, rec)
	if len(escrow.Contingencies) != 3 {
		t.Fatalf("expected 3 contingencies, got %d", len(escrow.Contingencies))
	}

	rec = do(t, router, http.MethodPost, "/v1/pendings/"+escrowID+"/contingencies/"+escrow.Contingencies[0].ID+"/toggle", token, nil)
	if got := decode[domain.Escrow](t, rec); got.Contingencies[0].Status != domain.ContingencyMet {
		t.Errorf("expected MET after toggle, got %s", got.Contingencies[0].Status)
	}

	stub := domain.StubUploadRequest{ImageBase64: "data:image/png;base64," + base64.StdEncoding.EncodeToString([]byte("png")), MimeType: ""}
	rec = do(t, router, http.MethodPost, "/v1/pendings/"+escrowID+"/commission/stub", token, stub)
	if rec.Code != http.StatusOK {
		t.Fatalf("stub: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if res := decode[domain.CommissionImportResult](t, rec); res.Commission.NetCommission != 16000 || res.Warning != "" {
		t.Errorf("unexpected import result: %+v", res)
	}

	rec = do(t, router, http.MethodPost, "/v1/pendings/"+escrowID+"/close", token, domain.CloseEscrowRequest{CloseDate: domain.FormatDate(time.Now())})
	if rec.Code != http.StatusOK {
		t.Fatalf("close: expected 200, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/v1/closed?period=ytd", token, nil)
	if got := decode[domain.ListResponse[domain.Escrow]](t, rec); got.Total != 1 {
		t.Errorf("expected 1 closed deal, got %d", got.Total)
	}

	rec = do(t, router, http.MethodGet, "/v1/dashboard", token, nil)
	if got := decode[domain.DashboardStats](t, rec); got.DealsClosed != 1 || got.YTDNet != 16000 {
		t.Errorf("unexpected dashboard: %+v", got)
	}
}

func TestImportStub_FallbackIsNotAnError(t *testing.T) {
	router, _ := newRouter(t, stubExtractor{})
	token := signup(t, router, "agent@example.com")

	rec := do(t, router, http.MethodPost, "/v1/pendings", token, domain.CreateEscrowRequest{Address: "5 Fir St"})
	escrow := decode[domain.Escrow](t, rec)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, _ := mw.CreateFormFile("stub", "stub.jpg")
	fw.Write([]byte("\xff\xd8\xff\xe0 not really a jpeg"))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/v1/pendings/"+escrow.ID+"/commission/stub", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	res := decode[domain.CommissionImportResult](t, rec)
	if res.Warning != domain.StubFallbackWarning || res.Commission.NetCommission != 0 {
		t.Errorf("expected zero fallback with warning, got %+v", res)
	}

	rec = do(t, router, http.MethodGet, "/v1/pendings/"+escrow.ID+"/commission", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected the fallback not to be persisted, got %d", rec.Code)
	}
}

func TestImportStub_TooLarge(t *testing.T) {
	router, _ := newRouter(t, stubExtractor{})
	token := signup(t, router, "agent@example.com")
	rec := do(t, router, http.MethodPost, "/v1/pendings", token, domain.CreateEscrowRequest{Address: "5 Fir St"})
	escrow := decode[domain.Escrow](t, rec)

	big := base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("x"), 2048))
	rec = do(t, router, http.MethodPost, "/v1/pendings/"+escrow.ID+"/commission/stub", token, domain.StubUploadRequest{ImageBase64: big})

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
}

func TestFinancesFlow(t *testing.T) {
	router, _ := newRouter(t, extractor.Disabled{})
	token := signup(t, router, "agent@example.com")

	for _, amt := range []float64{350, 1200, 99} {
		rec := do(t, router, http.MethodPost, "/v1/finances/expenses", token, domain.AddExpenseRequest{Amount: amt, Description: "item"})
		if rec.Code != http.StatusCreated {
			t.Fatalf("add expense: expected 201, got %d", rec.Code)
		}
	}

	rec := do(t, router, http.MethodPost, "/v1/finances/expenses", token, domain.AddExpenseRequest{Amount: 0, Description: "free"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero amount: expected 400, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodGet, "/v1/finances", token, nil)
	sum := decode[domain.FinanceSummary](t, rec)
	if sum.TotalExpenses != 1649 || sum.ExpenseProgress != 7 {
		t.Errorf("expected 1649 and 7%%, got %v and %d", sum.TotalExpenses, sum.ExpenseProgress)
	}

	rec = do(t, router, http.MethodDelete, "/v1/finances/expenses/"+sum.Expenses[0].ID, token, nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}

	rec = do(t, router, http.MethodPut, "/v1/finances/budget", token, domain.SetBudgetRequest{IncomeTarget: 100000, ExpenseCap: 10000})
	if got := decode[domain.Budget](t, rec); got.ExpenseCap != 10000 {
		t.Errorf("unexpected budget: %+v", got)
	}
}

func TestReadOnlyPrincipal(t *testing.T) {
	router, repo := newRouter(t, extractor.Disabled{})
	token := signup(t, router, "viewer@example.com")

	rec := do(t, router, http.MethodGet, "/v1/auth/session", token, nil)
	profile := decode[domain.Profile](t, rec)
	if _, err := repo.UpdateAccount(context.Background(), profile.ID, func(a *domain.Account) error {
		a.Role = domain.RoleReadOnly
		return nil
	}); err != nil {
		t.Fatalf("update account: %v", err)
	}

	// Roles are fixed per session, so log in again to pick up the change.
	rec = do(t, router, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{Email: "viewer@example.com"})
	token = decode[domain.SessionResponse](t, rec).AccessToken

	if rec := do(t, router, http.MethodGet, "/v1/listings", token, nil); rec.Code != http.StatusOK {
		t.Errorf("GET: expected 200, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodPost, "/v1/listings", token, domain.CreateListingRequest{Address: "x"}); rec.Code != http.StatusForbidden {
		t.Errorf("POST: expected 403, got %d", rec.Code)
	}
	if rec := do(t, router, http.MethodPost, "/v1/auth/logout", token, nil); rec.Code != http.StatusNoContent {
		t.Errorf("logout: expected 204, got %d", rec.Code)
	}
}

func TestExtractionMetrics(t *testing.T) {
	router, _ := newRouter(t, extractor.Disabled{})
	token := signup(t, router, "agent@example.com")

	rec := do(t, router, http.MethodGet, "/v1/metrics/extraction", token, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := decode[domain.ExtractionMetrics](t, rec); got.Provider != "stub" {
		t.Errorf("expected provider stub, got %q", got.Provider)
	}
}
