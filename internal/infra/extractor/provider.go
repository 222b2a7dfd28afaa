package extractor

import (
	"fmt"
	"net/http"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/resilience"
	"github.com/boddenberg/brokerflow-bfa-go/internal/port"

	"go.uber.org/zap"
)

// Provider names accepted by New.
const (
	ProviderAgent  = "agent"
	ProviderOpenAI = "openai"
	ProviderNone   = "none"
)

// Settings selects and tunes the extraction provider.
type Settings struct {
	Provider       string
	AgentURL       string
	OpenAI         OpenAIConfig
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int
}

// New builds the configured provider behind its own circuit breaker and
// wraps it with WithLimits.
func New(s Settings, httpClient *http.Client, tokens TokenRecorder, logger *zap.Logger) (port.CommissionExtractor, error) {
	cfg := resilience.Config{
		MaxRetries:     s.MaxRetries,
		InitialBackoff: s.InitialBackoff,
	}

	var inner port.CommissionExtractor
	switch s.Provider {
	case ProviderAgent:
		if s.AgentURL == "" {
			return nil, fmt.Errorf("extractor: agent provider needs AGENT_API_URL")
		}
		inner = NewAgentClient(httpClient, s.AgentURL, resilience.NewCircuitBreaker("extraction-agent", logger), cfg)
	case ProviderOpenAI:
		if s.OpenAI.APIKey == "" {
			return nil, fmt.Errorf("extractor: openai provider needs OPENAI_API_KEY")
		}
		inner = NewOpenAIClient(s.OpenAI, resilience.NewCircuitBreaker("extraction-openai", logger), cfg, tokens, logger)
	case ProviderNone, "":
		inner = Disabled{}
	default:
		return nil, fmt.Errorf("extractor: unknown provider %q", s.Provider)
	}

	return WithLimits(inner, s.Timeout, s.MaxConcurrency), nil
}
