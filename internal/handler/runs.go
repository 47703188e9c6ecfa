package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/clipdigest/bots/internal/model"
	"github.com/clipdigest/bots/internal/service"
	"github.com/clipdigest/bots/pkg/response"
)

type RunsHandler struct {
	service   *service.RunsService
	validator *validator.Validate
}

func NewRunsHandler(svc *service.RunsService, v *validator.Validate) *RunsHandler {
	return &RunsHandler{
		service:   svc,
		validator: v,
	}
}

// Digest handles POST /api/runs/digest. The body is optional; a date
// requests a backfill for that day.
func (h *RunsHandler) Digest(c *fiber.Ctx) error {
	var req model.RunDigestRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
		if err := h.validator.Struct(&req); err != nil {
			return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
		}
	}

	result, err := h.service.EnqueueDigest(c.Context(), req.Date)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Portfolio handles POST /api/runs/portfolio
func (h *RunsHandler) Portfolio(c *fiber.Ctx) error {
	result, err := h.service.EnqueuePortfolio(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}

// Poll handles POST /api/runs/poll
func (h *RunsHandler) Poll(c *fiber.Ctx) error {
	result, err := h.service.EnqueuePoll(c.Context())
	if err != nil {
		return response.ServiceError(c, err.Error())
	}

	return response.Accepted(c, result)
}
