package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jerllllllllyn/smart-grade/internal/dto"
	"github.com/jerllllllllyn/smart-grade/internal/models"
	"github.com/jerllllllllyn/smart-grade/internal/service"
	"github.com/jerllllllllyn/smart-grade/internal/utils"
	"github.com/jerllllllllyn/smart-grade/pkg/ai"
)

// GradingHandler exposes the grading session lifecycle over HTTP. It is a
// thin I/O wrapper: all state transitions live in the service layer.
type GradingHandler struct {
	sessions  *service.SessionRegistry
	grading   service.GradingService
	encoder   *service.MediaEncoder
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewGradingHandler constructs a grading handler.
func NewGradingHandler(sessions *service.SessionRegistry, grading service.GradingService, encoder *service.MediaEncoder, validate *validator.Validate, logger zerolog.Logger) *GradingHandler {
	return &GradingHandler{
		sessions:  sessions,
		grading:   grading,
		encoder:   encoder,
		validator: validate,
		logger:    logger.With().Str("component", "grading_handler").Logger(),
	}
}

// Register wires the session routes.
func (h *GradingHandler) Register(router fiber.Router) {
	router.Post("", h.createSession)
	router.Get("/:id", h.getSession)
	router.Delete("/:id", h.deleteSession)
	router.Post("/:id/grade", h.grade)
	router.Post("/:id/refine", h.refine)
}

func (h *GradingHandler) createSession(c *fiber.Ctx) error {
	var payload dto.CreateSessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&payload); err != nil {
			return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
		}
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "language must be primary or secondary")
	}

	session, err := h.sessions.Create(models.Language(payload.Language))
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "session created", newSessionResponse(session.Snapshot()))
}

func (h *GradingHandler) getSession(c *fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return utils.SendError(c, fiber.StatusNotFound, "session not found")
	}

	return utils.SendSuccess(c, "session state", newSessionResponse(session.Snapshot()))
}

func (h *GradingHandler) deleteSession(c *fiber.Ctx) error {
	if err := h.sessions.Delete(c.Params("id")); err != nil {
		return utils.SendError(c, fiber.StatusNotFound, "session not found")
	}

	return utils.SendSuccess(c, "session deleted", nil)
}

func (h *GradingHandler) grade(c *fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return utils.SendError(c, fiber.StatusNotFound, "session not found")
	}

	form, err := c.MultipartForm()
	if err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "multipart form is required")
	}

	rubricFiles := form.File["rubric"]
	examFiles := form.File["exam"]
	if len(rubricFiles) == 0 || len(examFiles) == 0 {
		return utils.SendError(c, fiber.StatusBadRequest, "at least one rubric page and one exam page are required")
	}

	rubricImages, err := h.encoder.EncodeAll(rubricFiles)
	if err != nil {
		return h.sendEncodeError(c, err)
	}
	examImages, err := h.encoder.EncodeAll(examFiles)
	if err != nil {
		return h.sendEncodeError(c, err)
	}

	request := models.GradingRequest{
		RubricImages: rubricImages,
		ExamImages:   examImages,
		Instructions: c.FormValue("instructions"),
		Language:     session.Language,
	}

	result, err := h.grading.Grade(c.UserContext(), session, request)
	if err != nil {
		return h.sendGradingError(c, err)
	}

	return utils.SendSuccess(c, "exam graded", dto.NewGradingResultResponse(result))
}

func (h *GradingHandler) refine(c *fiber.Ctx) error {
	session, err := h.sessions.Get(c.Params("id"))
	if err != nil {
		return utils.SendError(c, fiber.StatusNotFound, "session not found")
	}

	var payload dto.RefineRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.validator.Struct(payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "feedback is required")
	}

	rule, err := h.grading.RefineInstructions(c.UserContext(), session, payload.Feedback)
	if err != nil {
		return h.sendGradingError(c, err)
	}

	return utils.SendSuccess(c, "feedback processed", dto.RefineResponse{Rule: rule, Applied: rule != ""})
}

func (h *GradingHandler) sendEncodeError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrImageTooLarge):
		return utils.SendError(c, fiber.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrUnsupportedImageType):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	default:
		h.logger.Error().Err(err).Msg("page encoding failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to process uploaded pages")
	}
}

func (h *GradingHandler) sendGradingError(c *fiber.Ctx, err error) error {
	var providerErr *ai.ProviderError
	switch {
	case errors.Is(err, service.ErrInvalidRequest), errors.Is(err, service.ErrNoGradedResult):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrSessionBusy):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrMalformedResult):
		return utils.SendError(c, fiber.StatusBadGateway, err.Error())
	case errors.As(err, &providerErr):
		// The provider's message is surfaced verbatim: the teacher decides
		// whether a retry makes sense, nothing is retried automatically.
		return utils.SendError(c, fiber.StatusBadGateway, providerErr.Error())
	default:
		h.logger.Error().Err(err).Msg("grading failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "grading failed")
	}
}

func newSessionResponse(snapshot service.SessionSnapshot) dto.SessionResponse {
	response := dto.SessionResponse{
		ID:           snapshot.ID,
		Language:     string(snapshot.Language),
		Status:       string(snapshot.Status),
		LastError:    snapshot.LastError,
		Instructions: snapshot.Instructions,
		RuleCount:    snapshot.RuleCount,
		CreatedAt:    snapshot.CreatedAt,
	}
	if snapshot.Result != nil {
		result := dto.NewGradingResultResponse(*snapshot.Result)
		response.Result = &result
	}
	return response
}
