package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz and GET /readyz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual dependency.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	LatencyMs   int64  `json:"latencyMs"`
	LastChecked string `json:"lastChecked"`
	Error       string `json:"error,omitempty"`
}

// ExtractionMetrics is returned by GET /v1/metrics/extraction.
type ExtractionMetrics struct {
	Provider       string  `json:"provider"`
	Succeeded      int64   `json:"succeeded"`
	Failed         int64   `json:"failed"`
	Cached         int64   `json:"cached"`
	FallbackRate   float64 `json:"fallbackRate"`
	CacheHitRate   float64 `json:"cacheHitRate"`
	TokensConsumed int64   `json:"tokensConsumed"`
}

// ============================================================
// Generic API Response wrappers
// ============================================================

// ListResponse wraps list results.
type ListResponse[T any] struct {
	Data  []T `json:"data"`
	Total int `json:"total"`
}

// SuccessResponse wraps a successful single-entity response.
type SuccessResponse struct {
	Message string `json:"message"`
	ID      string `json:"id,omitempty"`
}
