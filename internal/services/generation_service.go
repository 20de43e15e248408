package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/japanesestudent/coursegen/internal/models"
	"go.uber.org/zap"
)

// GenerationQueue is the asynq queue generation tasks are placed on
const GenerationQueue = "generation"

// ErrInvalidGenerationID is returned when a run id is not a UUID
var ErrInvalidGenerationID = errors.New("invalid generation id")

// TaskEnqueuer is the interface that wraps the asynq client
type TaskEnqueuer interface {
	// EnqueueContext places a task on the queue.
	//
	// If the task cannot be queued, the error will be returned together with "nil" value.
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// GenerationRunRepository is the interface that wraps run state storage
type GenerationRunRepository interface {
	// Create stores a new run in the queued state.
	//
	// If some error occurs during data insert, the error will be returned.
	Create(ctx context.Context, run *models.GenerationRun) error
	// Finish records the terminal status of a run.
	//
	// "errMessage" parameter is stored for failed runs only.
	//
	// If some error occurs during data update, the error will be returned.
	Finish(ctx context.Context, id string, status models.GenerationStatus, errMessage string) error
	// GetByID retrieves the run state.
	//
	// If the run is unknown or has expired, repositories.ErrGenerationNotFound will be returned.
	GetByID(ctx context.Context, id string) (*models.GenerationRun, error)
}

type generationService struct {
	runs        GenerationRunRepository
	queue       TaskEnqueuer
	maxRetry    int
	taskTimeout time.Duration
	logger      *zap.Logger
}

// NewGenerationService creates a new generation service
func NewGenerationService(runs GenerationRunRepository, queue TaskEnqueuer, maxRetry int, taskTimeout time.Duration, logger *zap.Logger) *generationService {
	return &generationService{
		runs:        runs,
		queue:       queue,
		maxRetry:    maxRetry,
		taskTimeout: taskTimeout,
		logger:      logger,
	}
}

// Create records a queued run and enqueues the generation task.
//
// A course id is assigned when the request does not carry one. If the task
// cannot be enqueued the run is marked failed and the error is returned.
func (s *generationService) Create(ctx context.Context, req *models.GenerationRequest) (*models.CreateGenerationResponse, error) {
	if req.CourseID == "" {
		req.CourseID = uuid.NewString()
	}
	generationID := uuid.NewString()

	payload, err := json.Marshal(models.GenerationTaskPayload{GenerationID: generationID, Request: *req})
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation task: %w", err)
	}

	run := &models.GenerationRun{ID: generationID, CourseID: req.CourseID}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	task := asynq.NewTask(models.TaskTypeGenerateCourse, payload)
	_, err = s.queue.EnqueueContext(ctx, task,
		asynq.Queue(GenerationQueue),
		asynq.TaskID(generationID),
		asynq.MaxRetry(s.maxRetry),
		asynq.Timeout(s.taskTimeout),
	)
	if err != nil {
		if finishErr := s.runs.Finish(ctx, generationID, models.GenerationStatusFailed, "failed to enqueue"); finishErr != nil {
			s.logger.Warn("failed to mark generation as failed", zap.String("generation_id", generationID), zap.Error(finishErr))
		}
		return nil, fmt.Errorf("failed to enqueue generation task: %w", err)
	}

	s.logger.Info("generation queued",
		zap.String("generation_id", generationID),
		zap.String("course_id", req.CourseID),
	)
	return &models.CreateGenerationResponse{GenerationID: generationID, CourseID: req.CourseID}, nil
}

// GetByID returns the current state of a run
func (s *generationService) GetByID(ctx context.Context, id string) (*models.GenerationRun, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvalidGenerationID
	}
	return s.runs.GetByID(ctx, id)
}
