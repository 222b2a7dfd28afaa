package extractor

import (
	"context"
	"errors"
	"time"

	"github.com/boddenberg/brokerflow-bfa-go/internal/domain"
	"github.com/boddenberg/brokerflow-bfa-go/internal/infra/resilience"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const schemaName = "commission_stub"

// TokenRecorder receives prompt and completion token counts.
type TokenRecorder interface {
	RecordTokens(prompt, completion int64)
}

// OpenAIConfig configures the vision extractor.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// OpenAIClient reads a stub with a vision-capable chat model and a strict
// JSON schema response format.
type OpenAIClient struct {
	client openai.Client
	model  string
	schema *jsonschema.Schema
	cb     *gobreaker.CircuitBreaker
	cfg    resilience.Config
	tokens TokenRecorder
	logger *zap.Logger
}

// NewOpenAIClient builds the client. The SDK's own retries are disabled;
// retrying is governed by cfg.
func NewOpenAIClient(oc OpenAIConfig, cb *gobreaker.CircuitBreaker, cfg resilience.Config, tokens TokenRecorder, logger *zap.Logger) *OpenAIClient {
	opts := []option.RequestOption{
		option.WithAPIKey(oc.APIKey),
		option.WithMaxRetries(0),
	}
	if oc.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(oc.BaseURL))
	}

	model := oc.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return &OpenAIClient{
		client: openai.NewClient(opts...),
		model:  model,
		schema: breakdownSchema(),
		cb:     cb,
		cfg:    cfg,
		tokens: tokens,
		logger: logger,
	}
}

func breakdownSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(&domain.CommissionBreakdown{})
}

// Extract sends the image and instruction in one user message.
func (c *OpenAIClient) Extract(ctx context.Context, stub domain.CommissionStub) (*domain.CommissionBreakdown, error) {
	ctx, span := tracer.Start(ctx, "OpenAIClient.Extract")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", c.model),
		attribute.Int("stub.bytes", len(stub.Image)),
	)

	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: dataURL(stub),
				}),
				openai.TextContentPart(domain.StubExtractionPrompt),
			}),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        schemaName,
					Description: openai.String("Figures read off a real estate commission stub"),
					Schema:      c.schema,
					Strict:      openai.Bool(true),
				},
			},
		},
	}

	result, err := resilience.Execute(c.cb, func() (*domain.CommissionBreakdown, error) {
		var out *domain.CommissionBreakdown
		err := resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			start := time.Now()
			resp, err := c.client.Chat.Completions.New(ctx, params)
			if err != nil {
				var apiErr *openai.Error
				if errors.As(err, &apiErr) && apiErr.StatusCode != 429 && apiErr.StatusCode < 500 {
					return resilience.Permanent(err)
				}
				return err
			}

			if c.tokens != nil {
				c.tokens.RecordTokens(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
			}
			c.logger.Debug("stub extraction completed",
				zap.String("model", c.model),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
				zap.Int64("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int64("completion_tokens", resp.Usage.CompletionTokens),
			)

			if len(resp.Choices) == 0 {
				return resilience.Permanent(&domain.ErrExtraction{Reason: "no choices in response"})
			}
			b, err := decodeFigures([]byte(resp.Choices[0].Message.Content))
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
		return nil, &domain.ErrExternalService{Service: "openai", Err: err}
	}
	return result, nil
}
