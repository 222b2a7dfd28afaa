package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/observability"
	"github.com/boddenberg/brokerflow-bfa-go/internal/port"
	"github.com/boddenberg/brokerflow-bfa-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// DefaultMaxStubBytes caps stub uploads when Deps.MaxStubBytes is unset.
const DefaultMaxStubBytes = 10 << 20

// Deps bundles what the router needs.
type Deps struct {
	Sessions     *service.SessionService
	Listings     *service.ListingService
	Escrows      *service.EscrowService
	Commissions  *service.CommissionService
	Finance      *service.FinanceService
	Dashboard    *service.DashboardService
	Store        port.CollectionStore
	Metrics      *observability.Metrics
	MaxStubBytes int64
}

// NewRouter creates the HTTP router with all routes and middleware.
func NewRouter(d Deps, logger *zap.Logger) http.Handler {
	if d.MaxStubBytes <= 0 {
		d.MaxStubBytes = DefaultMaxStubBytes
	}

	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	r.NotFound(unknownRouteHandler)

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(d.Store))
	r.Get("/readyz", readyzHandler(d.Store, logger))
	r.Handle("/metrics", promhttp.HandlerFor(d.Metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.NotFound(unknownRouteHandler)

		// Auth (public)
		r.Post("/auth/signup", signupHandler(d.Sessions, logger))
		r.Post("/auth/login", loginHandler(d.Sessions, logger))

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(d.Sessions, logger))
			r.Use(ReadOnlyGuard(logger))

			r.Post("/auth/logout", logoutHandler(d.Sessions, logger))
			r.Get("/auth/session", sessionHandler(d.Sessions))

			r.Get("/dashboard", dashboardHandler(d.Dashboard, logger))

			// Listings
			r.Get("/listings", listListingsHandler(d.Listings, logger))
			r.Post("/listings", addListingHandler(d.Listings, logger))
			r.Patch("/listings/{listingId}", updateListingHandler(d.Listings, logger))
			r.Post("/listings/{listingId}/convert", convertListingHandler(d.Escrows, logger))
			r.Post("/listings/{listingId}/archive", archiveListingHandler(d.Listings, logger))

			// Pendings
			r.Get("/pendings", listPendingsHandler(d.Escrows, logger))
			r.Post("/pendings", createEscrowHandler(d.Escrows, logger))
			r.Route("/pendings/{escrowId}", func(r chi.Router) {
				r.Get("/", getEscrowHandler(d.Escrows, logger))
				r.Patch("/", updateEscrowHandler(d.Escrows, logger))
				r.Post("/contingencies", addContingencyHandler(d.Escrows, logger))
				r.Post("/contingencies/{contingencyId}/toggle", toggleContingencyHandler(d.Escrows, logger))
				r.Put("/contingencies/{contingencyId}/status", setContingencyStatusHandler(d.Escrows, logger))
				r.Post("/deposit/received", depositReceivedHandler(d.Escrows, logger))
				r.Post("/close", closeEscrowHandler(d.Escrows, logger))
				r.Post("/cancel", cancelEscrowHandler(d.Escrows, logger))
				r.Get("/financials", escrowFinancialsHandler(d.Escrows, logger))

				r.Get("/commission", getCommissionHandler(d.Commissions, logger))
				r.Put("/commission", saveCommissionHandler(d.Commissions, logger))
				r.Post("/commission/stub", importStubHandler(d.Commissions, d.MaxStubBytes, logger))
				r.Post("/commission/confirm", confirmCommissionHandler(d.Commissions, logger))
			})

			// Closed history
			r.Get("/closed", listClosedHandler(d.Escrows, logger))

			// Finances
			r.Get("/finances", financeSummaryHandler(d.Finance, logger))
			r.Get("/finances/expenses", listExpensesHandler(d.Finance, logger))
			r.Post("/finances/expenses", addExpenseHandler(d.Finance, logger))
			r.Delete("/finances/expenses/{expenseId}", removeExpenseHandler(d.Finance, logger))
			r.Put("/finances/budget", setBudgetHandler(d.Finance, logger))

			r.Get("/metrics/extraction", extractionMetricsHandler(d.Metrics, d.Commissions))
		})
	})

	return r
}

// unknownRouteHandler sends stray GETs anywhere in the app back to the
// dashboard; other methods get 404.
func unknownRouteHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		http.Redirect(w, r, "/v1/dashboard", http.StatusFound)
		return
	}
	writeError(w, http.StatusNotFound, "route not found")
}

// ============================================================
// Operational
// ============================================================

func checkStore(ctx context.Context, store port.CollectionStore) domain.ServiceHealth {
	start := time.Now()
	h := domain.ServiceHealth{Name: "store", Status: "healthy"}
	if store == nil {
		h.Status = "unhealthy"
		h.Error = "no store configured"
	} else if err := store.Ping(ctx); err != nil {
		h.Status = "unhealthy"
		h.Error = err.Error()
	}
	h.LatencyMs = time.Since(start).Milliseconds()
	h.LastChecked = time.Now().Format(time.RFC3339)
	return h
}

func healthzHandler(store port.CollectionStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)
		services := []domain.ServiceHealth{
			{Name: "brokerflow-bfa", Status: "healthy", LastChecked: now},
		}

		overall := "healthy"
		if store != nil {
			h := checkStore(r.Context(), store)
			if h.Status != "healthy" {
				h.Status = "degraded"
				overall = "degraded"
			}
			services = append(services, h)
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: overall, Services: services})
	}
}

func readyzHandler(store port.CollectionStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		h := checkStore(ctx, store)
		if h.Status != "healthy" {
			logger.Warn("readiness check failed", zap.String("error", h.Error))
			writeJSON(w, http.StatusServiceUnavailable, domain.HealthStatus{Status: "unhealthy", Services: []domain.ServiceHealth{h}})
			return
		}
		writeJSON(w, http.StatusOK, domain.HealthStatus{Status: "ready", Services: []domain.ServiceHealth{h}})
	}
}

func extractionMetricsHandler(metrics *observability.Metrics, commissions *service.CommissionService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetExtractionSnapshot(commissions.Provider()))
	}
}
