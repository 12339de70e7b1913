package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jerllllllllyn/smart-grade/internal/models"
	"github.com/jerllllllllyn/smart-grade/internal/observability"
	"github.com/jerllllllllyn/smart-grade/pkg/ai"
)

// defaultTemperature keeps grading near-deterministic so repeated runs over
// the same pages score consistently.
const defaultTemperature float32 = 0.1

// GradingService drives the two model round-trips: grading and instruction
// refinement. It owns the session status transitions; the HTTP layer is only
// an external trigger.
type GradingService interface {
	Grade(ctx context.Context, session *GradingSession, req models.GradingRequest) (models.GradingResult, error)
	RefineInstructions(ctx context.Context, session *GradingSession, feedback string) (string, error)
}

type gradingService struct {
	invoker     ai.Invoker
	composer    *RequestComposer
	schema      *ResultSchema
	temperature float32
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewGradingService constructs the grading orchestrator.
func NewGradingService(invoker ai.Invoker, composer *RequestComposer, schema *ResultSchema, temperature float32, logger zerolog.Logger) GradingService {
	if temperature <= 0 {
		temperature = defaultTemperature
	}
	return &gradingService{
		invoker:     invoker,
		composer:    composer,
		schema:      schema,
		temperature: temperature,
		logger:      logger.With().Str("component", "grading_service").Logger(),
		tracer:      otel.Tracer("github.com/jerllllllllyn/smart-grade/internal/service/grading"),
	}
}

// Grade runs one grading round-trip: compose, invoke with the result schema
// constraint, validate, store. Preconditions are checked before any state
// change or model call.
func (s *gradingService) Grade(parent context.Context, session *GradingSession, req models.GradingRequest) (models.GradingResult, error) {
	ctx, span := s.tracer.Start(parent, "grading.grade", trace.WithAttributes(
		attribute.String("session_id", session.ID),
		attribute.Int("rubric_pages", len(req.RubricImages)),
		attribute.Int("exam_pages", len(req.ExamImages)),
	))
	defer span.End()

	if req.Language == "" {
		req.Language = session.Language
	}

	// Precondition failures must cause no state transition.
	if err := s.composer.Validate(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return models.GradingResult{}, err
	}

	callCtx, generation, err := session.beginGrade(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "session busy")
		return models.GradingResult{}, err
	}

	// The ledger is read under the busy gate, so a refinement completing
	// concurrently cannot slip a rule past the composed prompt.
	segments, err := s.composer.Compose(req, session.Ledger().Render())
	if err != nil {
		session.failGrade(generation, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return models.GradingResult{}, err
	}

	start := time.Now()
	temperature := s.temperature
	response, err := s.invoker.Invoke(callCtx, ai.InvokeRequest{
		Segments:       segments,
		ResponseSchema: s.schema.Definition(),
		SchemaName:     "grading_result",
		Temperature:    &temperature,
	})
	observability.GradingLatency().Observe(time.Since(start).Seconds())
	if err != nil {
		session.failGrade(generation, err)
		observability.GradingRequests().WithLabelValues("provider_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider failure")
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("model invocation failed")
		return models.GradingResult{}, err
	}

	result, err := s.schema.Parse(response.Text)
	if err != nil {
		session.failGrade(generation, err)
		observability.GradingRequests().WithLabelValues("malformed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed result")
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("model response rejected")
		return models.GradingResult{}, err
	}

	// Sum consistency is advisory only: the model may apply exam-level
	// adjustments, and the teacher reviews before finalizing grades.
	if scoreSum, maxSum := result.QuestionScoreSum(); !sumsMatch(scoreSum, result.TotalScore) || !sumsMatch(maxSum, result.MaxScore) {
		span.SetAttributes(attribute.Bool("grading.sum_mismatch", true))
		s.logger.Warn().
			Str("session_id", session.ID).
			Float64("total_score", result.TotalScore).
			Float64("question_score_sum", scoreSum).
			Float64("max_score", result.MaxScore).
			Float64("question_max_sum", maxSum).
			Msg("totals do not match per-question sums")
	}

	session.completeGrade(generation, result)
	observability.GradingRequests().WithLabelValues("success").Inc()
	span.SetAttributes(
		attribute.Float64("grading.total_score", result.TotalScore),
		attribute.Int("grading.questions", len(result.Questions)),
	)

	return result, nil
}

// RefineInstructions runs one refinement round-trip: a text-only call that
// turns teacher feedback into at most one new ledger rule. An empty rule is
// a legitimate no-op, not an error; the previous result survives either way
// unless a rule is actually appended.
func (s *gradingService) RefineInstructions(parent context.Context, session *GradingSession, feedback string) (string, error) {
	ctx, span := s.tracer.Start(parent, "grading.refine", trace.WithAttributes(
		attribute.String("session_id", session.ID),
	))
	defer span.End()

	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		err := fmt.Errorf("feedback must not be empty: %w", ErrInvalidRequest)
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		return "", err
	}

	callCtx, generation, err := session.beginRefine(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "refinement rejected")
		return "", err
	}

	segments := s.composer.ComposeRefinement(session.Ledger().Render(), feedback, session.Language)

	temperature := s.temperature
	response, err := s.invoker.Invoke(callCtx, ai.InvokeRequest{
		Segments:    segments,
		Temperature: &temperature,
	})
	if err != nil {
		// Refinement failure must never corrupt an existing result: the
		// session returns to success with the ledger unchanged.
		session.completeRefine(generation, "")
		observability.RefinementRequests().WithLabelValues("provider_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider failure")
		s.logger.Error().Err(err).Str("session_id", session.ID).Msg("refinement invocation failed")
		return "", err
	}

	rule := strings.TrimSpace(response.Text)
	session.completeRefine(generation, rule)

	if rule == "" {
		observability.RefinementRequests().WithLabelValues("noop").Inc()
		span.SetAttributes(attribute.Bool("refinement.rule_produced", false))
		return "", nil
	}

	observability.RefinementRequests().WithLabelValues("success").Inc()
	span.SetAttributes(attribute.Bool("refinement.rule_produced", true))
	s.logger.Info().Str("session_id", session.ID).Int("rule_count", session.Ledger().Len()).Msg("grading rule appended")

	return rule, nil
}

func sumsMatch(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
