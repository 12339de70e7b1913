package ai

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIConfig defines configuration options for the OpenAI invoker.
type OpenAIConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
	BaseURL   string
	Logger    zerolog.Logger
}

// OpenAIInvoker implements Invoker against the OpenAI chat completion API.
type OpenAIInvoker struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIInvoker builds a new invoker using the provided configuration.
func NewOpenAIInvoker(cfg OpenAIConfig) (*OpenAIInvoker, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	if cfg.Model == "" {
		cfg.Model = "gpt-4o"
	}

	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 4096
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}
	client := openai.NewClientWithConfig(config)

	return &OpenAIInvoker{
		client: client,
		cfg:    cfg,
		tracer: otel.Tracer("github.com/jerllllllllyn/smart-grade/pkg/ai/openai"),
		logger: logger.With().Str("component", "openai_invoker").Logger(),
	}, nil
}

// Name identifies the provider and model.
func (o *OpenAIInvoker) Name() string { return "openai:" + o.cfg.Model }

// Invoke sends the ordered segment sequence as a single multi-part user
// message. Images travel as base64 data URLs. Schema-constrained calls use
// the json_object response format with the schema document in a system
// message: OpenAI's strict schema mode rejects optional properties and
// numeric bound keywords, so conformance is enforced locally instead.
func (o *OpenAIInvoker) Invoke(parent context.Context, req InvokeRequest) (InvokeResult, error) {
	ctx, span := o.tracer.Start(parent, "openai.invoke", trace.WithAttributes(
		attribute.String("model", o.cfg.Model),
		attribute.String("shape", shapeLabel(req)),
		attribute.Int("segments", len(req.Segments)),
	))
	defer span.End()

	parts := make([]openai.ChatMessagePart, 0, len(req.Segments))
	for _, seg := range req.Segments {
		if seg.Image != nil {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{
					URL:    fmt.Sprintf("data:%s;base64,%s", seg.Image.MimeType, seg.Image.Data),
					Detail: openai.ImageURLDetailAuto,
				},
			})
			continue
		}
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeText,
			Text: seg.Text,
		})
	}

	var messages []openai.ChatCompletionMessage
	if req.ResponseSchema != nil {
		name := req.SchemaName
		if name == "" {
			name = "response"
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role: openai.ChatMessageRoleSystem,
			Content: fmt.Sprintf(
				"Respond with a single JSON document and nothing else. The %s document must satisfy this JSON Schema:\n%s",
				name, req.ResponseSchema,
			),
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})

	request := openai.ChatCompletionRequest{
		Model:     o.cfg.Model,
		MaxTokens: o.cfg.MaxTokens,
		Messages:  messages,
	}
	if req.Temperature != nil {
		request.Temperature = *req.Temperature
	}
	if req.ResponseSchema != nil {
		request.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(ctx, request)
	invocationDuration.WithLabelValues("openai", o.cfg.Model, shapeLabel(req)).Observe(time.Since(start).Seconds())
	if err != nil {
		invocationFailures.WithLabelValues("openai", o.cfg.Model, shapeLabel(req)).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return InvokeResult{}, NewProviderError("openai", err)
	}

	if len(resp.Choices) == 0 {
		return InvokeResult{}, nil
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	span.SetAttributes(attribute.Int("response_bytes", len(text)))

	return InvokeResult{Text: text}, nil
}
