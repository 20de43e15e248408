package repositories

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTestRepository creates a repository with a mock database
func setupTestRepository(t *testing.T) (*courseRepository, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewCourseRepository(db, zap.NewNop())

	cleanup := func() {
		db.Close()
	}

	return repo, mock, cleanup
}

func testCourse() *models.Course {
	return &models.Course{
		ID:            "course-1",
		Title:         "Safety 101",
		Description:   "Basics",
		ThumbnailURL:  "data:image/png;base64,AAAA",
		TotalDuration: 40,
		Status:        models.CourseStatusReady,
		Episodes: []models.Episode{
			{
				ID:       "episode-1",
				Title:    "Intro",
				Script:   "Welcome.",
				AudioURL: "https://cdn.example.com/a.mp3",
				Duration: 40,
				Status:   models.EpisodeStatusReady,
				Scenes: []models.Scene{
					{ID: "scene-1", Order: 1, Script: "Welcome.", Duration: 10, StartTime: 0},
				},
				QuizQuestions: []models.QuizQuestion{
					{Question: "Q?", Options: []string{"a", "b", "c", "d"}, CorrectAnswer: 2, Explanation: "e", TriggerPercentage: 25},
				},
			},
		},
	}
}

const (
	courseUpsert    = `(?s)INSERT INTO courses.*VALUES.*ON DUPLICATE KEY UPDATE.*`
	episodesDelete  = `DELETE FROM episodes WHERE course_id = \? AND episode_order > \?`
	episodeUpsert   = `(?s)INSERT INTO episodes.*VALUES.*ON DUPLICATE KEY UPDATE.*`
	scenesDelete    = `DELETE FROM episode_scenes WHERE episode_id = \? AND scene_order > \?`
	sceneUpsert     = `(?s)INSERT INTO episode_scenes.*VALUES.*ON DUPLICATE KEY UPDATE.*`
	questionsDelete = `DELETE FROM quiz_questions WHERE episode_id = \? AND question_order > \?`
	questionUpsert  = `(?s)INSERT INTO quiz_questions.*VALUES.*ON DUPLICATE KEY UPDATE.*`
)

func TestNewCourseRepository(t *testing.T) {
	logger := zap.NewNop()
	db := &sql.DB{}

	repo := NewCourseRepository(db, logger)

	assert.NotNil(t, repo)
	assert.Equal(t, db, repo.db)
	assert.Equal(t, logger, repo.logger)
}

func TestCourseRepository_SaveCourse(t *testing.T) {
	quizID := models.DeterministicID("episode-1", "quiz", "1")

	expectEpisodeChildren := func(mock sqlmock.Sqlmock, questionErr error) {
		mock.ExpectExec(scenesDelete).
			WithArgs("episode-1", 1).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(sceneUpsert).
			WithArgs("scene-1", "episode-1", 1, "Welcome.", nil, 10, 0).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectExec(questionsDelete).
			WithArgs("episode-1", 1).
			WillReturnResult(sqlmock.NewResult(0, 0))
		q := mock.ExpectExec(questionUpsert).
			WithArgs(quizID, "episode-1", 1, "Q?", `["a","b","c","d"]`, 2, "e", 10)
		if questionErr != nil {
			q.WillReturnError(questionErr)
		} else {
			q.WillReturnResult(sqlmock.NewResult(1, 1))
		}
	}

	tests := []struct {
		name          string
		setupMock     func(sqlmock.Sqlmock)
		expectedError bool
		errorContains string
	}{
		{
			name: "success",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(courseUpsert).
					WithArgs("course-1", nil, "Safety 101", "Basics", nil, 40, "ready").
					WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec(episodesDelete).
					WithArgs("course-1", 1).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(episodeUpsert).
					WithArgs("episode-1", "course-1", "Intro", "Welcome.", 1, 40,
						"https://cdn.example.com/a.mp3", "https://cdn.example.com/a.mp3", false, nil, "ready").
					WillReturnResult(sqlmock.NewResult(1, 1))
				expectEpisodeChildren(mock, nil)
				mock.ExpectCommit()
			},
			expectedError: false,
		},
		{
			name: "quiz question failure is skipped",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(courseUpsert).WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec(episodesDelete).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(episodeUpsert).WillReturnResult(sqlmock.NewResult(1, 1))
				expectEpisodeChildren(mock, errors.New("data too long"))
				mock.ExpectCommit()
			},
			expectedError: false,
		},
		{
			name: "transaction begin error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin().WillReturnError(errors.New("begin error"))
			},
			expectedError: true,
			errorContains: "failed to begin transaction",
		},
		{
			name: "course insert error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(courseUpsert).WillReturnError(errors.New("insert error"))
				mock.ExpectRollback()
			},
			expectedError: true,
			errorContains: "failed to save course",
		},
		{
			name: "episode insert error aborts",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(courseUpsert).WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec(episodesDelete).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(episodeUpsert).WillReturnError(errors.New("foreign key violation"))
				mock.ExpectRollback()
			},
			expectedError: true,
			errorContains: "failed to save episode 1 (Intro)",
		},
		{
			name: "transaction commit error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(courseUpsert).WillReturnResult(sqlmock.NewResult(1, 1))
				mock.ExpectExec(episodesDelete).WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectExec(episodeUpsert).WillReturnResult(sqlmock.NewResult(1, 1))
				expectEpisodeChildren(mock, nil)
				mock.ExpectCommit().WillReturnError(errors.New("commit error"))
			},
			expectedError: true,
			errorContains: "failed to commit transaction",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupTestRepository(t)
			defer cleanup()

			tt.setupMock(mock)

			err := repo.SaveCourse(context.Background(), testCourse())

			if tt.expectedError {
				assert.Error(t, err)
				if tt.errorContains != "" {
					assert.Contains(t, err.Error(), tt.errorContains)
				}
			} else {
				assert.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestCourseRepository_SaveCourse_StoresVideoOverAudio(t *testing.T) {
	repo, mock, cleanup := setupTestRepository(t)
	defer cleanup()

	course := testCourse()
	course.Episodes[0].VideoURL = "https://cdn.example.com/v.mp4"
	course.Episodes[0].VideoProvider = "did"
	course.Episodes[0].Scenes = nil
	course.Episodes[0].QuizQuestions = nil

	mock.ExpectBegin()
	mock.ExpectExec(courseUpsert).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(episodesDelete).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(episodeUpsert).
		WithArgs("episode-1", "course-1", "Intro", "Welcome.", 1, 40,
			"https://cdn.example.com/v.mp4", "https://cdn.example.com/a.mp3", false, "did", "ready").
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(scenesDelete).WithArgs("episode-1", 0).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(questionsDelete).WithArgs("episode-1", 0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := repo.SaveCourse(context.Background(), course)

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCourseRepository_GetByID(t *testing.T) {
	courseColumns := []string{"id", "organization_id", "title", "description", "thumbnail_url", "total_duration", "status"}
	episodeColumns := []string{"id", "title", "description", "duration", "video_url", "audio_url", "skip_video", "video_provider", "status"}

	tests := []struct {
		name             string
		setupMock        func(sqlmock.Sqlmock)
		expectedError    error
		errorContains    string
		expectedEpisodes int
	}{
		{
			name: "success",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .* FROM courses WHERE id = \?`).
					WithArgs("course-1").
					WillReturnRows(sqlmock.NewRows(courseColumns).
						AddRow("course-1", "", "Safety 101", "Basics", "", 40, "ready"))
				mock.ExpectQuery(`SELECT .* FROM episodes WHERE course_id = \? ORDER BY episode_order`).
					WithArgs("course-1").
					WillReturnRows(sqlmock.NewRows(episodeColumns).
						AddRow("episode-1", "Intro", "Welcome.", 20, "https://cdn.example.com/a.mp3", "https://cdn.example.com/a.mp3", true, "", "ready").
						AddRow("episode-2", "Exits", "Exit.", 20, "", "", true, "", "degraded"))
			},
			expectedEpisodes: 2,
		},
		{
			name: "course not found",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .* FROM courses WHERE id = \?`).
					WithArgs("course-1").
					WillReturnError(sql.ErrNoRows)
			},
			expectedError: ErrCourseNotFound,
		},
		{
			name: "database error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .* FROM courses WHERE id = \?`).
					WithArgs("course-1").
					WillReturnError(errors.New("database error"))
			},
			errorContains: "failed to get course by id",
		},
		{
			name: "episode query error",
			setupMock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`SELECT .* FROM courses WHERE id = \?`).
					WithArgs("course-1").
					WillReturnRows(sqlmock.NewRows(courseColumns).
						AddRow("course-1", "", "Safety 101", "Basics", "", 40, "ready"))
				mock.ExpectQuery(`SELECT .* FROM episodes`).
					WillReturnError(errors.New("timeout"))
			},
			errorContains: "failed to query episodes",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock, cleanup := setupTestRepository(t)
			defer cleanup()

			tt.setupMock(mock)

			course, err := repo.GetByID(context.Background(), "course-1")

			switch {
			case tt.expectedError != nil:
				assert.ErrorIs(t, err, tt.expectedError)
				assert.Nil(t, course)
			case tt.errorContains != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errorContains)
				assert.Nil(t, course)
			default:
				require.NoError(t, err)
				assert.Equal(t, "Safety 101", course.Title)
				assert.Equal(t, models.CourseStatusReady, course.Status)
				require.Len(t, course.Episodes, tt.expectedEpisodes)
				assert.Equal(t, models.EpisodeStatusDegraded, course.Episodes[1].Status)
			}

			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}
