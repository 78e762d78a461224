package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"

	genai "github.com/google/generative-ai-go/genai"

	"docqa-platform/internal/logger"
	"docqa-platform/internal/telemetry"
)

// ErrCompletionUnavailable is returned when the completion model cannot be
// reached, is rate limited, or the circuit breaker is open. Callers decide
// whether to degrade or propagate.
var ErrCompletionUnavailable = errors.New("completion model unavailable")

// CompletionRequest describes a single completion call.
type CompletionRequest struct {
	SystemInstruction string
	Prompt            string
	Temperature       float32
	MaxOutputTokens   int32
}

// CompletionClient returns free-text completions for a prompt.
type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// GeminiCompletion wraps the Gemini API with a circuit breaker and a rate
// limiter so that a degraded upstream fails fast instead of piling up
// blocked requests.
type GeminiCompletion struct {
	client      *genai.Client
	model       string
	breaker     *gobreaker.CircuitBreaker
	rateLimiter *rate.Limiter
	metrics     *telemetry.Metrics
}

func NewGeminiCompletion(apiKey, model string, metrics *telemetry.Metrics) (*GeminiCompletion, error) {
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "GeminiAPI",
		MaxRequests: 5,
		Interval:    10 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("Circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})

	// Free tier budget: 10 RPM with some headroom
	rateLimiter := rate.NewLimiter(rate.Limit(9.0/60.0), 2)

	return &GeminiCompletion{
		client:      client,
		model:       model,
		breaker:     breaker,
		rateLimiter: rateLimiter,
		metrics:     metrics,
	}, nil
}

func (gc *GeminiCompletion) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	tracer := otel.Tracer("gemini-completion")
	ctx, span := tracer.Start(ctx, "gemini.complete")
	defer span.End()

	span.SetAttributes(
		attribute.String("gemini.model", gc.model),
		attribute.Int("gemini.prompt_chars", len(req.Prompt)),
	)

	if err := gc.rateLimiter.Wait(ctx); err != nil {
		span.SetAttributes(attribute.Bool("gemini.rate_limited", true))
		return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
	}

	result, err := gc.breaker.Execute(func() (interface{}, error) {
		model := gc.client.GenerativeModel(gc.model)
		model.SetTemperature(req.Temperature)
		model.SetMaxOutputTokens(req.MaxOutputTokens)
		if req.SystemInstruction != "" {
			model.SystemInstruction = &genai.Content{
				Parts: []genai.Part{genai.Text(req.SystemInstruction)},
			}
		}

		resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
		if err != nil {
			return nil, err
		}
		return resp, nil
	})

	if err != nil {
		if err == gobreaker.ErrOpenState {
			span.SetAttributes(attribute.Bool("gemini.circuit_breaker_open", true))
		}
		span.SetAttributes(attribute.Bool("gemini.error", true))
		return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
	}

	resp := result.(*genai.GenerateContentResponse)
	text := flattenResponse(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrCompletionUnavailable)
	}

	if resp.UsageMetadata != nil {
		span.SetAttributes(attribute.Int("gemini.total_tokens", int(resp.UsageMetadata.TotalTokenCount)))
		if gc.metrics != nil {
			gc.metrics.RecordTokensUsed(int64(resp.UsageMetadata.TotalTokenCount), gc.model)
		}
	}

	return text, nil
}

func flattenResponse(resp *genai.GenerateContentResponse) string {
	text := ""
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				text += string(t)
			}
		}
	}
	return text
}

func (gc *GeminiCompletion) Close() error {
	if gc.client != nil {
		return gc.client.Close()
	}
	return nil
}
