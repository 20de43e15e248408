package repositories

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/japanesestudent/coursegen/internal/models"
)

// ErrGenerationNotFound is returned when a run id is unknown or its state has expired
var ErrGenerationNotFound = errors.New("generation not found")

const generationRunKeyPrefix = "coursegen:generation:"

// now is overridden in tests
var now = time.Now

// RedisHash is the subset of the Redis client used to keep run state
type RedisHash interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// generationRunRepository keeps ephemeral run state in Redis hashes that expire after ttl
type generationRunRepository struct {
	redis RedisHash
	ttl   time.Duration
}

// NewGenerationRunRepository creates a new generation run repository
func NewGenerationRunRepository(redis RedisHash, ttl time.Duration) *generationRunRepository {
	return &generationRunRepository{
		redis: redis,
		ttl:   ttl,
	}
}

func generationRunKey(id string) string {
	return generationRunKeyPrefix + id
}

// Create stores a new run in the queued state
func (r *generationRunRepository) Create(ctx context.Context, run *models.GenerationRun) error {
	run.Status = models.GenerationStatusQueued
	run.UpdatedAt = now().UTC()

	err := r.write(ctx, run.ID,
		"id", run.ID,
		"course_id", run.CourseID,
		"status", string(run.Status),
		"stage", run.Stage,
		"percent", run.Percent,
		"message", run.Message,
		"error", "",
		"updated_at", run.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create generation run: %w", err)
	}
	return nil
}

// UpdateProgress records the latest progress event and marks the run as running
func (r *generationRunRepository) UpdateProgress(ctx context.Context, id string, event models.ProgressEvent) error {
	err := r.write(ctx, id,
		"status", string(models.GenerationStatusRunning),
		"stage", event.Stage,
		"percent", event.Percent,
		"message", event.Message,
		"updated_at", now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to update generation progress: %w", err)
	}
	return nil
}

// Finish records the terminal status of a run. errMessage is stored only for failures.
func (r *generationRunRepository) Finish(ctx context.Context, id string, status models.GenerationStatus, errMessage string) error {
	if status == models.GenerationStatusSucceeded {
		errMessage = ""
	}
	values := []interface{}{
		"status", string(status),
		"error", errMessage,
		"updated_at", now().UTC().Format(time.RFC3339Nano),
	}
	if status == models.GenerationStatusSucceeded {
		values = append(values, "percent", 100)
	}

	if err := r.write(ctx, id, values...); err != nil {
		return fmt.Errorf("failed to finish generation run: %w", err)
	}
	return nil
}

// GetByID retrieves the run state
func (r *generationRunRepository) GetByID(ctx context.Context, id string) (*models.GenerationRun, error) {
	fields, err := r.redis.HGetAll(ctx, generationRunKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get generation run: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrGenerationNotFound
	}

	run := &models.GenerationRun{
		ID:       id,
		CourseID: fields["course_id"],
		Status:   models.GenerationStatus(fields["status"]),
		Stage:    fields["stage"],
		Message:  fields["message"],
		Error:    fields["error"],
	}
	if v := fields["percent"]; v != "" {
		if run.Percent, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf("invalid percent %q: %w", v, err)
		}
	}
	if v := fields["updated_at"]; v != "" {
		if run.UpdatedAt, err = time.Parse(time.RFC3339Nano, v); err != nil {
			return nil, fmt.Errorf("invalid updated_at %q: %w", v, err)
		}
	}

	return run, nil
}

func (r *generationRunRepository) write(ctx context.Context, id string, values ...interface{}) error {
	key := generationRunKey(id)
	if err := r.redis.HSet(ctx, key, values...).Err(); err != nil {
		return err
	}
	return r.redis.Expire(ctx, key, r.ttl).Err()
}
