package extractor

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
)

// agentRequest is the body of POST {AGENT_API_URL}/v1/commission/extract.
type agentRequest struct {
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
	Instruction string `json:"instruction"`
}

// AgentClient calls the extraction agent service over HTTP.
type AgentClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
}

// NewAgentClient creates a new AgentClient.
func NewAgentClient(httpClient *http.Client, baseURL string, cb *gobreaker.CircuitBreaker, cfg resilience.Config) *AgentClient {
	return &AgentClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
	}
}

// Extract posts the stub to the agent and decodes the four figures.
func (c *AgentClient) Extract(ctx context.Context, stub domain.CommissionStub) (*domain.CommissionBreakdown, error) {
	ctx, span := tracer.Start(ctx, "AgentClient.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("stub.mime_type", mimeOrDefault(stub.MimeType)),
		attribute.Int("stub.bytes", len(stub.Image)),
	)

	body, err := json.Marshal(agentRequest{
		ImageBase64: base64.StdEncoding.EncodeToString(stub.Image),
		MimeType:    mimeOrDefault(stub.MimeType),
		Instruction: domain.StubExtractionPrompt,
	})
	if err != nil {
		return nil, err
	}

	result, err := resilience.Execute(c.cb, func() (*domain.CommissionBreakdown, error) {
		var out *domain.CommissionBreakdown
		err := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			url := fmt.Sprintf("%s/v1/commission/extract", c.baseURL)
			httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return resilience.Permanent(err)
			}
			httpReq.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(httpReq)
			if err != nil {
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				statusErr := fmt.Errorf("agent API returned status %d", resp.StatusCode)
				if resp.StatusCode >= 400 && resp.StatusCode < 500 {
					return resilience.Permanent(statusErr)
				}
				return statusErr
			}

			raw, err := io.ReadAll(resp.Body)
			if err != nil {
				return err
			}
			b, err := decodeFigures(raw)
			if err != nil {
				return resilience.Permanent(err)
			}
			out = b
			return nil
		})
		return out, err
	})

	if err != nil {
		span.RecordError(err)
		return nil, &domain.ErrExternalService{Service: "agent", Err: err}
	}
	return result, nil
}
