package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/hibiken/asynq"
	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/japanesestudent/coursegen/internal/services"
	"go.uber.org/zap"
)

// Pipeline defines the interface for the course generation pipeline
type Pipeline interface {
	// Run generates, stores and persists a course.
	//
	// "req" parameter is the generation request carried by the task.
	// "progress" parameter receives stage reports while the run executes.
	//
	// Only a persistence failure is returned as an error; the partially built course is returned with it.
	Run(ctx context.Context, req *models.GenerationRequest, progress services.ProgressFunc) (*models.Course, error)
}

// GenerationRunRepository defines the interface for run state storage
type GenerationRunRepository interface {
	// UpdateProgress stores the latest progress report of a run.
	//
	// If some error occurs during data update, the error will be returned.
	UpdateProgress(ctx context.Context, id string, event models.ProgressEvent) error
	// Finish records the terminal status of a run.
	//
	// If some error occurs during data update, the error will be returned.
	Finish(ctx context.Context, id string, status models.GenerationStatus, errMessage string) error
}

const (
	progressBufferSize = 64
	stateWriteTimeout  = 5 * time.Second
)

// Worker handles course generation tasks
type Worker struct {
	logger   *zap.Logger
	pipeline Pipeline
	runs     GenerationRunRepository
}

// NewWorker creates a new worker instance
func NewWorker(logger *zap.Logger, pipeline Pipeline, runs GenerationRunRepository) *Worker {
	return &Worker{
		logger:   logger,
		pipeline: pipeline,
		runs:     runs,
	}
}

// HandleGenerateCourse runs the generation pipeline for a queued request
func (w *Worker) HandleGenerateCourse(ctx context.Context, t *asynq.Task) error {
	var payload models.GenerationTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		w.logger.Error("Failed to unmarshal task payload", zap.Error(err))
		return fmt.Errorf("failed to unmarshal payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.GenerationID == "" || payload.Request.CourseID == "" {
		w.logger.Error("Task payload is missing ids", zap.String("generation_id", payload.GenerationID))
		return fmt.Errorf("generation id and course id are required: %w", asynq.SkipRetry)
	}

	log := w.logger.With(
		zap.String("generation_id", payload.GenerationID),
		zap.String("course_id", payload.Request.CourseID),
	)
	log.Info("Processing course generation")

	sink := newProgressSink(w.runs, payload.GenerationID, log)
	course, err := w.pipeline.Run(ctx, &payload.Request, sink.Report)
	sink.Close()

	if err != nil {
		if isFinalAttempt(ctx) {
			w.finish(payload.GenerationID, models.GenerationStatusFailed, err.Error(), log)
		} else {
			log.Warn("Course generation failed, task will be retried", zap.Error(err))
		}
		return fmt.Errorf("course generation failed: %w", err)
	}

	w.finish(payload.GenerationID, models.GenerationStatusSucceeded, "", log)
	log.Info("Course generation finished",
		zap.Int("episodes", len(course.Episodes)),
		zap.Int("total_duration", course.TotalDuration),
	)
	return nil
}

// finish records the terminal run status. The task context may already be done, so a fresh one is used.
func (w *Worker) finish(id string, status models.GenerationStatus, errMessage string, log *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), stateWriteTimeout)
	defer cancel()
	if err := w.runs.Finish(ctx, id, status, errMessage); err != nil {
		log.Error("Failed to record generation status", zap.String("status", string(status)), zap.Error(err))
	}
}

// isFinalAttempt reports whether asynq will not retry the task after this attempt
func isFinalAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

// progressSink forwards pipeline progress to the run store from a single goroutine.
// Report never blocks: when the buffer is full the report is dropped.
type progressSink struct {
	runs   GenerationRunRepository
	id     string
	logger *zap.Logger
	events chan models.ProgressEvent
	wg     sync.WaitGroup
}

func newProgressSink(runs GenerationRunRepository, id string, logger *zap.Logger) *progressSink {
	s := &progressSink{
		runs:   runs,
		id:     id,
		logger: logger,
		events: make(chan models.ProgressEvent, progressBufferSize),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

// Report queues a progress event
func (s *progressSink) Report(stage string, percent int, message string) {
	select {
	case s.events <- models.ProgressEvent{Stage: stage, Percent: percent, Message: message}:
	default:
		s.logger.Debug("progress buffer full, dropping report", zap.String("stage", stage), zap.Int("percent", percent))
	}
}

// Close stops accepting reports and waits for queued ones to be written
func (s *progressSink) Close() {
	close(s.events)
	s.wg.Wait()
}

func (s *progressSink) drain() {
	defer s.wg.Done()
	for event := range s.events {
		ctx, cancel := context.WithTimeout(context.Background(), stateWriteTimeout)
		if err := s.runs.UpdateProgress(ctx, s.id, event); err != nil {
			s.logger.Warn("Failed to store generation progress", zap.String("stage", event.Stage), zap.Error(err))
		}
		cancel()
	}
}
