package repositories

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedisHash is an in-memory implementation of RedisHash
type fakeRedisHash struct {
	hashes  map[string]map[string]string
	expires map[string]time.Duration
	err     error
}

func newFakeRedisHash() *fakeRedisHash {
	return &fakeRedisHash{
		hashes:  map[string]map[string]string{},
		expires: map[string]time.Duration{},
	}
}

func (f *fakeRedisHash) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[fmt.Sprint(values[i])] = fmt.Sprint(values[i+1])
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeRedisHash) HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd {
	if f.err != nil {
		return redis.NewStringStringMapResult(nil, f.err)
	}
	out := map[string]string{}
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewStringStringMapResult(out, nil)
}

func (f *fakeRedisHash) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func fixedNow(t *testing.T) time.Time {
	t.Helper()
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	orig := now
	now = func() time.Time { return fixed }
	t.Cleanup(func() { now = orig })
	return fixed
}

func TestNewGenerationRunRepository(t *testing.T) {
	store := newFakeRedisHash()

	repo := NewGenerationRunRepository(store, time.Hour)

	assert.NotNil(t, repo)
	assert.Equal(t, store, repo.redis)
	assert.Equal(t, time.Hour, repo.ttl)
}

func TestGenerationRunRepository_Lifecycle(t *testing.T) {
	fixed := fixedNow(t)
	store := newFakeRedisHash()
	repo := NewGenerationRunRepository(store, 72*time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.GenerationRun{ID: "gen-1", CourseID: "course-1"}))

	run, err := repo.GetByID(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusQueued, run.Status)
	assert.Equal(t, "course-1", run.CourseID)
	assert.Equal(t, 0, run.Percent)
	assert.True(t, fixed.Equal(run.UpdatedAt))
	assert.Equal(t, 72*time.Hour, store.expires["coursegen:generation:gen-1"])

	require.NoError(t, repo.UpdateProgress(ctx, "gen-1", models.ProgressEvent{Stage: "audio", Percent: 65, Message: "Narrated episode 1 of 3"}))

	run, err = repo.GetByID(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusRunning, run.Status)
	assert.Equal(t, "audio", run.Stage)
	assert.Equal(t, 65, run.Percent)
	assert.Equal(t, "Narrated episode 1 of 3", run.Message)

	require.NoError(t, repo.Finish(ctx, "gen-1", models.GenerationStatusSucceeded, "ignored"))

	run, err = repo.GetByID(ctx, "gen-1")
	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusSucceeded, run.Status)
	assert.Equal(t, 100, run.Percent)
	assert.Empty(t, run.Error)
}

func TestGenerationRunRepository_FinishFailed(t *testing.T) {
	fixedNow(t)
	store := newFakeRedisHash()
	repo := NewGenerationRunRepository(store, time.Hour)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.GenerationRun{ID: "gen-2", CourseID: "course-2"}))
	require.NoError(t, repo.UpdateProgress(ctx, "gen-2", models.ProgressEvent{Stage: "persist", Percent: 92}))
	require.NoError(t, repo.Finish(ctx, "gen-2", models.GenerationStatusFailed, "stage persist failed: connection refused"))

	run, err := repo.GetByID(ctx, "gen-2")

	require.NoError(t, err)
	assert.Equal(t, models.GenerationStatusFailed, run.Status)
	assert.Equal(t, 92, run.Percent)
	assert.Equal(t, "stage persist failed: connection refused", run.Error)
}

func TestGenerationRunRepository_GetByID(t *testing.T) {
	tests := []struct {
		name          string
		setup         func(*fakeRedisHash)
		expectedError error
		errorContains string
	}{
		{
			name:          "not found",
			setup:         func(f *fakeRedisHash) {},
			expectedError: ErrGenerationNotFound,
		},
		{
			name: "redis error",
			setup: func(f *fakeRedisHash) {
				f.err = errors.New("connection reset")
			},
			errorContains: "failed to get generation run",
		},
		{
			name: "corrupt percent",
			setup: func(f *fakeRedisHash) {
				f.hashes["coursegen:generation:gen-1"] = map[string]string{"status": "running", "percent": "abc"}
			},
			errorContains: "invalid percent",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newFakeRedisHash()
			tt.setup(store)
			repo := NewGenerationRunRepository(store, time.Hour)

			run, err := repo.GetByID(context.Background(), "gen-1")

			assert.Nil(t, run)
			require.Error(t, err)
			if tt.expectedError != nil {
				assert.ErrorIs(t, err, tt.expectedError)
			}
			if tt.errorContains != "" {
				assert.Contains(t, err.Error(), tt.errorContains)
			}
		})
	}
}

func TestGenerationRunRepository_WriteError(t *testing.T) {
	store := newFakeRedisHash()
	store.err = errors.New("READONLY")
	repo := NewGenerationRunRepository(store, time.Hour)

	err := repo.UpdateProgress(context.Background(), "gen-1", models.ProgressEvent{Stage: "script", Percent: 35})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to update generation progress")
}
