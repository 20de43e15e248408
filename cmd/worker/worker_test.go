package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/japanesestudent/coursegen/internal/config"
	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/japanesestudent/coursegen/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockPipeline is a mock implementation of Pipeline
type mockPipeline struct {
	events []models.ProgressEvent
	course *models.Course
	err    error
	calls  int
}

func (m *mockPipeline) Run(ctx context.Context, req *models.GenerationRequest, progress services.ProgressFunc) (*models.Course, error) {
	m.calls++
	for _, e := range m.events {
		progress(e.Stage, e.Percent, e.Message)
	}
	return m.course, m.err
}

// mockRunRepository is a mock implementation of GenerationRunRepository
type mockRunRepository struct {
	mu          sync.Mutex
	progress    []models.ProgressEvent
	status      models.GenerationStatus
	errMessage  string
	progressErr error
}

func (m *mockRunRepository) UpdateProgress(ctx context.Context, id string, event models.ProgressEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.progressErr != nil {
		return m.progressErr
	}
	m.progress = append(m.progress, event)
	return nil
}

func (m *mockRunRepository) Finish(ctx context.Context, id string, status models.GenerationStatus, errMessage string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
	m.errMessage = errMessage
	return nil
}

func newTask(t *testing.T, payload models.GenerationTaskPayload) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(models.TaskTypeGenerateCourse, data)
}

func TestWorker_HandleGenerateCourse(t *testing.T) {
	events := []models.ProgressEvent{
		{Stage: "extract", Percent: 5, Message: "Extracting text from document"},
		{Stage: "script", Percent: 55, Message: "Script ready"},
		{Stage: "complete", Percent: 100, Message: "Course ready"},
	}
	validPayload := models.GenerationTaskPayload{
		GenerationID: "gen-1",
		Request:      models.GenerationRequest{CourseID: "course-1", Title: "Safety 101"},
	}

	tests := []struct {
		name           string
		task           func(t *testing.T) *asynq.Task
		pipeline       *mockPipeline
		progressErr    error
		expectedError  bool
		expectSkip     bool
		expectedStatus models.GenerationStatus
		expectProgress int
	}{
		{
			name:           "success",
			task:           func(t *testing.T) *asynq.Task { return newTask(t, validPayload) },
			pipeline:       &mockPipeline{events: events, course: &models.Course{ID: "course-1"}},
			expectedStatus: models.GenerationStatusSucceeded,
			expectProgress: 3,
		},
		{
			name:           "progress store errors do not fail the run",
			task:           func(t *testing.T) *asynq.Task { return newTask(t, validPayload) },
			pipeline:       &mockPipeline{events: events, course: &models.Course{ID: "course-1"}},
			progressErr:    errors.New("redis down"),
			expectedStatus: models.GenerationStatusSucceeded,
		},
		{
			name: "pipeline failure",
			task: func(t *testing.T) *asynq.Task { return newTask(t, validPayload) },
			pipeline: &mockPipeline{
				events: []models.ProgressEvent{{Stage: "failed", Percent: 92, Message: "stage persist failed"}},
				course: &models.Course{ID: "course-1"},
				err:    errors.New("stage persist failed: connection refused"),
			},
			expectedError:  true,
			expectedStatus: models.GenerationStatusFailed,
			expectProgress: 1,
		},
		{
			name: "invalid payload",
			task: func(t *testing.T) *asynq.Task {
				return asynq.NewTask(models.TaskTypeGenerateCourse, []byte("{"))
			},
			pipeline:      &mockPipeline{},
			expectedError: true,
			expectSkip:    true,
		},
		{
			name: "missing course id",
			task: func(t *testing.T) *asynq.Task {
				return newTask(t, models.GenerationTaskPayload{GenerationID: "gen-1"})
			},
			pipeline:      &mockPipeline{},
			expectedError: true,
			expectSkip:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runs := &mockRunRepository{progressErr: tt.progressErr}
			worker := NewWorker(zap.NewNop(), tt.pipeline, runs)

			err := worker.HandleGenerateCourse(context.Background(), tt.task(t))

			if tt.expectedError {
				require.Error(t, err)
				assert.Equal(t, tt.expectSkip, errors.Is(err, asynq.SkipRetry))
			} else {
				require.NoError(t, err)
			}
			if tt.expectSkip {
				assert.Equal(t, 0, tt.pipeline.calls)
				assert.Empty(t, runs.status)
				return
			}

			assert.Equal(t, tt.expectedStatus, runs.status)
			assert.Len(t, runs.progress, tt.expectProgress)
			if tt.expectedStatus == models.GenerationStatusFailed {
				assert.Contains(t, runs.errMessage, "connection refused")
			}
		})
	}
}

func TestProgressSink_PreservesOrder(t *testing.T) {
	runs := &mockRunRepository{}
	sink := newProgressSink(runs, "gen-1", zap.NewNop())

	for i := 0; i < progressBufferSize/2; i++ {
		sink.Report("audio", i, "step")
	}
	sink.Close()

	require.Len(t, runs.progress, progressBufferSize/2)
	for i, e := range runs.progress {
		assert.Equal(t, i, e.Percent)
	}
}

func TestBuildProviders(t *testing.T) {
	client := &http.Client{}
	content := []config.ProviderConfig{
		{ID: "groq", Kind: config.ProviderKindOpenAI, Endpoint: "https://api.groq.com", APIKeyEnv: "GROQ_API_KEY", APIKey: "k"},
		{ID: "gemini", Kind: config.ProviderKindGemini, Endpoint: "https://gemini", APIKeyEnv: "GEMINI_API_KEY"},
		{ID: "local", Kind: config.ProviderKindOpenAI, Endpoint: "http://localhost:11434"},
	}
	video := []config.ProviderConfig{
		{ID: "did", Kind: config.ProviderKindDID, Endpoint: "https://api.d-id.com", APIKeyEnv: "DID_API_KEY", APIKey: "k"},
		{ID: "sadtalker", Kind: config.ProviderKindReplicate, Endpoint: "https://api.replicate.com/v1", APIKeyEnv: "REPLICATE_API_TOKEN"},
		{ID: "fal-ltx", Kind: config.ProviderKindFal, Endpoint: "https://queue.fal.run", APIKeyEnv: "FAL_KEY", APIKey: "k"},
	}

	contentLadder := buildContentProviders(content, client, zap.NewNop())
	videoLadder := buildVideoProviders(video, client, zap.NewNop())

	require.Len(t, contentLadder, 2)
	assert.Equal(t, "groq", contentLadder[0].ID())
	assert.Equal(t, "local", contentLadder[1].ID())
	require.Len(t, videoLadder, 2)
	assert.Equal(t, "did", videoLadder[0].ID())
	assert.Equal(t, "fal-ltx", videoLadder[1].ID())
}

func TestNewObjectStorage(t *testing.T) {
	tests := []struct {
		name          string
		cfg           config.StorageConfig
		expectedError bool
	}{
		{
			name: "local",
			cfg:  config.StorageConfig{Backend: config.StorageBackendLocal, Bucket: "course-media", LocalPath: t.TempDir(), LocalBaseURL: "http://localhost:8080/media"},
		},
		{
			name:          "unknown backend",
			cfg:           config.StorageConfig{Backend: "s3"},
			expectedError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := newObjectStorage(tt.cfg)

			if tt.expectedError {
				assert.Error(t, err)
				assert.Nil(t, store)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, store)
		})
	}
}
