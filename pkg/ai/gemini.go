package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	genai "google.golang.org/genai"
)

// GeminiConfig defines configuration options for the Gemini invoker.
type GeminiConfig struct {
	APIKey string
	Model  string
	Logger zerolog.Logger
}

// GeminiInvoker implements Invoker on top of the official genai client.
type GeminiInvoker struct {
	cli    *genai.Client
	cfg    GeminiConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewGeminiInvoker builds a new invoker using the provided configuration.
func NewGeminiInvoker(ctx context.Context, cfg GeminiConfig) (*GeminiInvoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gemini-2.5-flash"
	}

	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	return &GeminiInvoker{
		cli:    cli,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/jerllllllllyn/smart-grade/pkg/ai/gemini"),
		logger: logger.With().Str("component", "gemini_invoker").Logger(),
	}, nil
}

// Name identifies the provider and model.
func (g *GeminiInvoker) Name() string { return "gemini:" + g.cfg.Model }

// Invoke sends the ordered segment sequence to Gemini. Schema-constrained
// calls request application/json and carry the schema document in the system
// instruction; free-text calls leave the output unconstrained.
func (g *GeminiInvoker) Invoke(parent context.Context, req InvokeRequest) (InvokeResult, error) {
	ctx, span := g.tracer.Start(parent, "gemini.invoke", trace.WithAttributes(
		attribute.String("model", g.cfg.Model),
		attribute.String("shape", shapeLabel(req)),
		attribute.Int("segments", len(req.Segments)),
	))
	defer span.End()

	parts := make([]*genai.Part, 0, len(req.Segments))
	for _, seg := range req.Segments {
		if seg.Image != nil {
			raw, err := base64.StdEncoding.DecodeString(seg.Image.Data)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, "bad image payload")
				return InvokeResult{}, fmt.Errorf("decode image payload: %w", err)
			}
			parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: seg.Image.MimeType, Data: raw}})
			continue
		}
		parts = append(parts, &genai.Part{Text: seg.Text})
	}

	config := &genai.GenerateContentConfig{Temperature: req.Temperature}
	if req.ResponseSchema != nil {
		config.ResponseMIMEType = "application/json"
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{
			{Text: "Respond with a single JSON document and nothing else. The document must satisfy this JSON Schema:"},
			{Text: string(req.ResponseSchema)},
		}}
	}

	start := time.Now()
	resp, err := g.cli.Models.GenerateContent(ctx, g.cfg.Model,
		[]*genai.Content{{Parts: parts}},
		config,
	)
	invocationDuration.WithLabelValues("gemini", g.cfg.Model, shapeLabel(req)).Observe(time.Since(start).Seconds())
	if err != nil {
		invocationFailures.WithLabelValues("gemini", g.cfg.Model, shapeLabel(req)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return InvokeResult{}, NewProviderError("gemini", err)
	}

	text := firstCandidateText(resp)
	span.SetAttributes(attribute.Int("response_bytes", len(text)))

	return InvokeResult{Text: text}, nil
}

func firstCandidateText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}
