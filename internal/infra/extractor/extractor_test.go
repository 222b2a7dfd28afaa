package extractor_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/extractor"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/resilience"

	"go.uber.org/zap"
)

var stub = domain.CommissionStub{Image: []byte{0xFF, 0xD8, 0xFF, 0xE0}, MimeType: "image/jpeg"}

func newAgent(t *testing.T, h http.HandlerFunc, retries int) *extractor.AgentClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return extractor.NewAgentClient(srv.Client(), srv.URL, resilience.NewCircuitBreaker("agent-test", nil), resilience.Config{MaxRetries: retries})
}

func TestAgentClient_Extract(t *testing.T) {
	agent := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/commission/extract" || r.Method != http.MethodPost {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		img, _ := base64.StdEncoding.DecodeString(body["image_base64"])
		if len(img) != 4 || body["mime_type"] != "image/jpeg" || !strings.Contains(body["instruction"], "gross_commission") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"gross_commission":15000,"broker_split":3000,"team_split":1500,"admin_fees":500}`))
	}, 0)

	got, err := agent.Extract(context.Background(), stub)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	want := domain.CommissionBreakdown{GrossCommission: 15000, BrokerSplit: 3000, TeamSplit: 1500, AdminFees: 500}
	if *got != want {
		t.Errorf("expected %+v, got %+v", want, *got)
	}
}

func TestAgentClient_MissingKeys(t *testing.T) {
	agent := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"gross_commission":15000}`))
	}, 3)

	_, err := agent.Extract(context.Background(), stub)

	var extErr *domain.ErrExtraction
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestAgentClient_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	agent := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"gross_commission":1,"broker_split":0,"team_split":0,"admin_fees":0}`))
	}, 1)

	if _, err := agent.Extract(context.Background(), stub); err != nil {
		t.Fatalf("expected success on retry, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
}

func TestAgentClient_NoRetryByDefault(t *testing.T) {
	var calls atomic.Int32
	agent := newAgent(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}, 0)

	_, err := agent.Extract(context.Background(), stub)

	var ext *domain.ErrExternalService
	if !errors.As(err, &ext) || ext.Service != "agent" {
		t.Fatalf("expected agent ErrExternalService, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

func TestOpenAIClient_Extract(t *testing.T) {
	var sawImage, sawSchema bool
	var tokens fakeTokens

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var req struct {
			Model          string `json:"model"`
			Messages       []json.RawMessage
			ResponseFormat struct {
				Type       string `json:"type"`
				JSONSchema struct {
					Name   string         `json:"name"`
					Strict bool           `json:"strict"`
					Schema map[string]any `json:"schema"`
				} `json:"json_schema"`
			} `json:"response_format"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		sawImage = len(req.Messages) == 1 && strings.Contains(string(req.Messages[0]), "data:image/jpeg;base64,")
		props, _ := req.ResponseFormat.JSONSchema.Schema["properties"].(map[string]any)
		sawSchema = req.ResponseFormat.Type == "json_schema" &&
			req.ResponseFormat.JSONSchema.Strict &&
			props["gross_commission"] != nil && props["admin_fees"] != nil

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1700000000,
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "stop",
				"message": {"role": "assistant", "content": "{\"gross_commission\":9000,\"broker_split\":900,\"team_split\":0,\"admin_fees\":395}"}
			}],
			"usage": {"prompt_tokens": 812, "completion_tokens": 34, "total_tokens": 846}
		}`))
	}))
	defer srv.Close()

	client := extractor.NewOpenAIClient(
		extractor.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1/"},
		resilience.NewCircuitBreaker("openai-test", nil),
		resilience.Config{},
		&tokens,
		zap.NewNop(),
	)

	got, err := client.Extract(context.Background(), stub)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if got.GrossCommission != 9000 || got.AdminFees != 395 {
		t.Errorf("unexpected breakdown %+v", got)
	}
	if !sawImage {
		t.Error("expected the stub to be sent as an inline image")
	}
	if !sawSchema {
		t.Error("expected a strict json_schema response format")
	}
	if tokens.prompt != 812 || tokens.completion != 34 {
		t.Errorf("expected recorded tokens 812/34, got %d/%d", tokens.prompt, tokens.completion)
	}
}

func TestOpenAIClient_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":""}}],
			"usage":{"prompt_tokens":1,"completion_tokens":0,"total_tokens":1}}`))
	}))
	defer srv.Close()

	client := extractor.NewOpenAIClient(
		extractor.OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL + "/"},
		resilience.NewCircuitBreaker("openai-empty", nil),
		resilience.Config{MaxRetries: 2},
		nil,
		zap.NewNop(),
	)

	_, err := client.Extract(context.Background(), stub)

	var extErr *domain.ErrExtraction
	if !errors.As(err, &extErr) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestDisabled(t *testing.T) {
	if _, err := (extractor.Disabled{}).Extract(context.Background(), stub); err == nil {
		t.Fatal("expected disabled provider to fail")
	}
}

func TestWithLimits_Timeout(t *testing.T) {
	slow := extractorFunc(func(ctx context.Context, _ domain.CommissionStub) (*domain.CommissionBreakdown, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	_, err := extractor.WithLimits(slow, 20*time.Millisecond, 1).Extract(context.Background(), stub)
	var timeout *domain.ErrTimeout
	if !errors.As(err, &timeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected the timeout to wrap deadline exceeded, got %v", err)
	}
}

func TestWithLimits_CallerCancelIsNotTimeout(t *testing.T) {
	slow := extractorFunc(func(ctx context.Context, _ domain.CommissionStub) (*domain.CommissionBreakdown, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := extractor.WithLimits(slow, time.Minute, 1).Extract(ctx, stub)
	var timeout *domain.ErrTimeout
	if errors.As(err, &timeout) {
		t.Fatalf("expected the caller's cancellation, got %v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestWithLimits_NoTimeoutByDefault(t *testing.T) {
	var hadDeadline bool
	inner := extractorFunc(func(ctx context.Context, _ domain.CommissionStub) (*domain.CommissionBreakdown, error) {
		_, hadDeadline = ctx.Deadline()
		return &domain.CommissionBreakdown{}, nil
	})

	if _, err := extractor.WithLimits(inner, 0, 0).Extract(context.Background(), stub); err != nil {
		t.Fatal(err)
	}
	if hadDeadline {
		t.Error("expected no deadline when timeout is zero")
	}
}

type extractorFunc func(context.Context, domain.CommissionStub) (*domain.CommissionBreakdown, error)

func (f extractorFunc) Extract(ctx context.Context, s domain.CommissionStub) (*domain.CommissionBreakdown, error) {
	return f(ctx, s)
}

type fakeTokens struct {
	prompt, completion int64
}

func (f *fakeTokens) RecordTokens(prompt, completion int64) {
	f.prompt += prompt
	f.completion += completion
}
