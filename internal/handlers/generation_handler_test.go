package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/japanesestudent/coursegen/internal/repositories"
	"github.com/japanesestudent/coursegen/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockGenerationService is a mock implementation of GenerationService
type mockGenerationService struct {
	createResp *models.CreateGenerationResponse
	createErr  error
	run        *models.GenerationRun
	getErr     error
	requests   []*models.GenerationRequest
}

func (m *mockGenerationService) Create(ctx context.Context, req *models.GenerationRequest) (*models.CreateGenerationResponse, error) {
	m.requests = append(m.requests, req)
	return m.createResp, m.createErr
}

func (m *mockGenerationService) GetByID(ctx context.Context, id string) (*models.GenerationRun, error) {
	return m.run, m.getErr
}

// mockCourseReader is a mock implementation of CourseReader
type mockCourseReader struct {
	course *models.Course
	err    error
}

func (m *mockCourseReader) GetByID(ctx context.Context, id string) (*models.Course, error) {
	return m.course, m.err
}

func setupRouter(svc GenerationService, courses CourseReader) *chi.Mux {
	handler := NewGenerationHandler(svc, courses, zap.NewNop())
	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r
}

func TestGenerationHandler_Create(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		service        *mockGenerationService
		expectedStatus int
		expectedBody   string
		expectCalled   bool
	}{
		{
			name: "accepted",
			body: `{"title":"Safety 101","sourceText":"Wear gloves."}`,
			service: &mockGenerationService{
				createResp: &models.CreateGenerationResponse{GenerationID: "gen-1", CourseID: "course-1"},
			},
			expectedStatus: http.StatusAccepted,
			expectedBody:   `{"generationId":"gen-1","courseId":"course-1"}`,
			expectCalled:   true,
		},
		{
			name:           "malformed json",
			body:           `{"title":`,
			service:        &mockGenerationService{},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid request body"}`,
		},
		{
			name:           "missing title",
			body:           `{"title":"   ","sourceText":"text"}`,
			service:        &mockGenerationService{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "image without url or data",
			body:           `{"title":"Safety 101","referenceImages":[{"contentType":"image/png"}]}`,
			service:        &mockGenerationService{},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"reference image 0 needs a url or data"}`,
		},
		{
			name:           "invalid image url",
			body:           `{"title":"Safety 101","referenceImages":[{"url":"not a url"}]}`,
			service:        &mockGenerationService{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "client supplied course id",
			body: `{"courseId":"3f1e5a8c-2b4d-4c6e-9f10-1a2b3c4d5e6f","title":"Safety 101"}`,
			service: &mockGenerationService{
				createResp: &models.CreateGenerationResponse{GenerationID: "gen-1", CourseID: "3f1e5a8c-2b4d-4c6e-9f10-1a2b3c4d5e6f"},
			},
			expectedStatus: http.StatusAccepted,
			expectCalled:   true,
		},
		{
			name:           "course id with path segments",
			body:           `{"courseId":"x/../../outside","title":"Safety 101"}`,
			service:        &mockGenerationService{},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `{"error":"invalid field CourseID: failed on \"uuid\""}`,
		},
		{
			name:           "course id longer than a uuid",
			body:           `{"courseId":"` + strings.Repeat("a", 80) + `","title":"Safety 101"}`,
			service:        &mockGenerationService{},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "service error",
			body:           `{"title":"Safety 101"}`,
			service:        &mockGenerationService{createErr: errors.New("queue full")},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   `{"error":"failed to start generation"}`,
			expectCalled:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(tt.service, &mockCourseReader{})
			req := httptest.NewRequest(http.MethodPost, "/generations/", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, rec.Body.String())
			}
			assert.Equal(t, tt.expectCalled, len(tt.service.requests) == 1)
		})
	}
}

func TestGenerationHandler_CreateTrimsTitle(t *testing.T) {
	svc := &mockGenerationService{createResp: &models.CreateGenerationResponse{GenerationID: "gen-1", CourseID: "course-1"}}
	r := setupRouter(svc, &mockCourseReader{})

	body := `{"title":"  Safety 101  ","document":{"fileName":"safety.pdf","data":"JVBERi0="}}`
	req := httptest.NewRequest(http.MethodPost, "/generations/", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, svc.requests, 1)
	assert.Equal(t, "Safety 101", svc.requests[0].Title)
	require.NotNil(t, svc.requests[0].Document)
	assert.Equal(t, []byte("%PDF-"), svc.requests[0].Document.Data)
}

func TestGenerationHandler_GetByID(t *testing.T) {
	tests := []struct {
		name           string
		service        *mockGenerationService
		expectedStatus int
	}{
		{
			name: "found",
			service: &mockGenerationService{run: &models.GenerationRun{
				ID: "gen-1", CourseID: "course-1", Status: models.GenerationStatusRunning, Stage: "audio", Percent: 60,
			}},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "not found",
			service:        &mockGenerationService{getErr: fmt.Errorf("lookup: %w", repositories.ErrGenerationNotFound)},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "invalid id",
			service:        &mockGenerationService{getErr: fmt.Errorf("lookup: %w", services.ErrInvalidGenerationID)},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "unrelated error with the same text",
			service:        &mockGenerationService{getErr: errors.New("invalid generation id")},
			expectedStatus: http.StatusInternalServerError,
		},
		{
			name:           "store error",
			service:        &mockGenerationService{getErr: errors.New("connection reset")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(tt.service, &mockCourseReader{})
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/generations/gen-1", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusOK {
				var run models.GenerationRun
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
				assert.Equal(t, "audio", run.Stage)
				assert.Equal(t, 60, run.Percent)
			}
		})
	}
}

func TestGenerationHandler_GetCourse(t *testing.T) {
	tests := []struct {
		name           string
		courses        *mockCourseReader
		expectedStatus int
	}{
		{
			name: "found",
			courses: &mockCourseReader{course: &models.Course{
				ID: "course-1", Title: "Safety 101", Status: models.CourseStatusReady,
				Episodes: []models.Episode{{ID: "ep-1", Title: "Intro", Duration: 42}},
			}},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "not found",
			courses:        &mockCourseReader{err: repositories.ErrCourseNotFound},
			expectedStatus: http.StatusNotFound,
		},
		{
			name:           "database error",
			courses:        &mockCourseReader{err: errors.New("connection refused")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupRouter(&mockGenerationService{}, tt.courses)
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/courses/course-1", nil))

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusOK {
				var course models.Course
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &course))
				assert.Equal(t, "Safety 101", course.Title)
				require.Len(t, course.Episodes, 1)
				assert.Equal(t, 42, course.Episodes[0].Duration)
			}
		})
	}
}
