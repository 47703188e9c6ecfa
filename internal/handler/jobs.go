package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/clipdigest/bots/internal/model"
	"github.com/clipdigest/bots/internal/service"
	"github.com/clipdigest/bots/pkg/response"
)

type JobsHandler struct {
	service *service.JobsService
}

func NewJobsHandler(svc *service.JobsService) *JobsHandler {
	return &JobsHandler{service: svc}
}

// List handles GET /api/jobs
func (h *JobsHandler) List(c *fiber.Ctx) error {
	summaries := h.service.List()
	return response.OK(c, model.JobListResponse{
		Jobs:  summaries,
		Count: len(summaries),
	})
}

// Abandon handles DELETE /api/jobs/*. The id is a wildcard because image
// batch ids are operation paths with slashes in them.
func (h *JobsHandler) Abandon(c *fiber.Ctx) error {
	jobID := c.Params("*")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	found, err := h.service.Abandon(jobID)
	if err != nil {
		return response.ServiceError(c, err.Error())
	}
	if !found {
		return response.NotFound(c, "Job not found")
	}

	return response.NoContent(c)
}

// formatValidationErrors flattens validator errors into a field-to-tag map
func formatValidationErrors(err error) interface{} {
	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		errors := make(map[string]string)
		for _, e := range validationErrors {
			errors[e.Field()] = e.Tag()
		}
		return errors
	}
	return nil
}
