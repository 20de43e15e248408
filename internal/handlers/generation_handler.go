package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/japanesestudent/coursegen/internal/repositories"
	"github.com/japanesestudent/coursegen/internal/services"
	"go.uber.org/zap"
)

// GenerationService is the interface that wraps methods for generation run management.
type GenerationService interface {
	// Method Create records a queued run and enqueues the course generation task.
	//
	// "req" parameter is the validated generation request; a course id is assigned when empty.
	// If the run cannot be recorded or queued, the error will be returned together with "nil" value.
	Create(ctx context.Context, req *models.GenerationRequest) (*models.CreateGenerationResponse, error)
	// Method GetByID retrieves the current state of a generation run.
	//
	// "id" parameter is the generation id returned by Create.
	// If the id is malformed, unknown or expired, the error will be returned together with "nil" value.
	GetByID(ctx context.Context, id string) (*models.GenerationRun, error)
}

// CourseReader is the interface that wraps reading persisted courses.
type CourseReader interface {
	// Method GetByID retrieves a course with its ordered episodes.
	//
	// If the course does not exist, repositories.ErrCourseNotFound will be returned together with "nil" value.
	GetByID(ctx context.Context, id string) (*models.Course, error)
}

// GenerationHandler handles HTTP requests for course generation
type GenerationHandler struct {
	BaseHandler
	service  GenerationService
	courses  CourseReader
	validate *validator.Validate
}

// NewGenerationHandler creates a new generation handler
func NewGenerationHandler(svc GenerationService, courses CourseReader, logger *zap.Logger) *GenerationHandler {
	return &GenerationHandler{
		BaseHandler: BaseHandler{Logger: logger},
		service:     svc,
		courses:     courses,
		validate:    validator.New(),
	}
}

// RegisterRoutes registers generation and course routes
func (h *GenerationHandler) RegisterRoutes(r chi.Router) {
	r.Route("/generations", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/{id}", h.GetByID)
	})
	r.Get("/courses/{id}", h.GetCourse)
}

// Create handles POST /api/v1/generations
// @Summary Start a course generation
// @Description Queue generation of a narrated multi-episode course from source text or a document
// @Tags generations
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body models.GenerationRequest true "Generation request"
// @Success 202 {object} models.CreateGenerationResponse
// @Failure 400 {object} map[string]string
// @Failure 401 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /generations [post]
func (h *GenerationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req models.GenerationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.validateRequest(&req); err != nil {
		h.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := h.service.Create(r.Context(), &req)
	if err != nil {
		h.Logger.Error("failed to create generation", zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to start generation")
		return
	}

	h.RespondJSON(w, http.StatusAccepted, resp)
}

// GetByID handles GET /api/v1/generations/{id}
// @Summary Get generation progress
// @Description Get the status, stage and percent of a generation run
// @Tags generations
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Generation ID"
// @Success 200 {object} models.GenerationRun
// @Failure 400 {object} map[string]string
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /generations/{id} [get]
func (h *GenerationHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	run, err := h.service.GetByID(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrGenerationNotFound):
			h.RespondError(w, http.StatusNotFound, "generation not found")
		case errors.Is(err, services.ErrInvalidGenerationID):
			h.RespondError(w, http.StatusBadRequest, "invalid generation id")
		default:
			h.Logger.Error("failed to get generation", zap.String("generation_id", id), zap.Error(err))
			h.RespondError(w, http.StatusInternalServerError, "failed to get generation")
		}
		return
	}

	h.RespondJSON(w, http.StatusOK, run)
}

// GetCourse handles GET /api/v1/courses/{id}
// @Summary Get a generated course
// @Description Get a persisted course with its ordered episodes
// @Tags courses
// @Produce json
// @Security ApiKeyAuth
// @Param id path string true "Course ID"
// @Success 200 {object} models.Course
// @Failure 404 {object} map[string]string
// @Failure 500 {object} map[string]string
// @Router /courses/{id} [get]
func (h *GenerationHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	course, err := h.courses.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repositories.ErrCourseNotFound) {
			h.RespondError(w, http.StatusNotFound, "course not found")
			return
		}
		h.Logger.Error("failed to get course", zap.String("course_id", id), zap.Error(err))
		h.RespondError(w, http.StatusInternalServerError, "failed to get course")
		return
	}

	h.RespondJSON(w, http.StatusOK, course)
}

// validateRequest runs struct validation plus the checks tags cannot express
func (h *GenerationHandler) validateRequest(req *models.GenerationRequest) error {
	req.Title = strings.TrimSpace(req.Title)
	if err := h.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid field %s: failed on %q", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid request")
	}

	for i, img := range req.ReferenceImages {
		if img.URL == "" && len(img.Data) == 0 {
			return fmt.Errorf("reference image %d needs a url or data", i)
		}
	}
	return nil
}
