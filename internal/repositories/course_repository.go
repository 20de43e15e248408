package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/japanesestudent/coursegen/internal/storage"
	"go.uber.org/zap"
)

// ErrCourseNotFound is returned when no course row matches the requested id
var ErrCourseNotFound = errors.New("course not found")

type courseRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCourseRepository creates a new course repository
func NewCourseRepository(db *sql.DB, logger *zap.Logger) *courseRepository {
	return &courseRepository{
		db:     db,
		logger: logger,
	}
}

// SaveCourse writes the course graph in one transaction.
//
// Rows are upserted by deterministic ids, and rows left over from a previous run with
// more episodes, scenes or questions are removed, so saving the same course twice
// leaves one copy. A failed course or episode write aborts the transaction; a failed
// scene or quiz question write is logged and skipped.
func (r *courseRepository) SaveCourse(ctx context.Context, course *models.Course) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.upsertCourse(ctx, tx, course); err != nil {
		return err
	}

	query := `DELETE FROM episodes WHERE course_id = ? AND episode_order > ?`
	if _, err := tx.ExecContext(ctx, query, course.ID, len(course.Episodes)); err != nil {
		return fmt.Errorf("failed to remove stale episodes: %w", err)
	}

	for i := range course.Episodes {
		ep := &course.Episodes[i]
		if err := r.upsertEpisode(ctx, tx, course.ID, i+1, ep); err != nil {
			return fmt.Errorf("failed to save episode %d (%s): %w", i+1, ep.Title, err)
		}
		r.saveScenes(ctx, tx, ep)
		r.saveQuizQuestions(ctx, tx, ep)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.logger.Info("course saved",
		zap.String("course_id", course.ID),
		zap.Int("episodes", len(course.Episodes)),
	)
	return nil
}

func (r *courseRepository) upsertCourse(ctx context.Context, tx *sql.Tx, course *models.Course) error {
	query := `
		INSERT INTO courses (id, organization_id, title, description, thumbnail_url, total_duration, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			organization_id = VALUES(organization_id),
			title = VALUES(title),
			description = VALUES(description),
			thumbnail_url = VALUES(thumbnail_url),
			total_duration = VALUES(total_duration),
			status = VALUES(status)
	`

	_, err := tx.ExecContext(ctx, query,
		course.ID,
		nullString(course.OrganizationID),
		course.Title,
		course.Description,
		nullString(storableURL(course.ThumbnailURL)),
		course.TotalDuration,
		course.Status,
	)
	if err != nil {
		return fmt.Errorf("failed to save course: %w", err)
	}
	return nil
}

func (r *courseRepository) upsertEpisode(ctx context.Context, tx *sql.Tx, courseID string, order int, ep *models.Episode) error {
	query := `
		INSERT INTO episodes
		(id, course_id, title, description, episode_order, duration, video_url, audio_url, skip_video, video_provider, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			title = VALUES(title),
			description = VALUES(description),
			episode_order = VALUES(episode_order),
			duration = VALUES(duration),
			video_url = VALUES(video_url),
			audio_url = VALUES(audio_url),
			skip_video = VALUES(skip_video),
			video_provider = VALUES(video_provider),
			status = VALUES(status)
	`

	_, err := tx.ExecContext(ctx, query,
		ep.ID,
		courseID,
		ep.Title,
		ep.Script,
		order,
		ep.Duration,
		nullString(ep.StoredMediaURL()),
		nullString(storableURL(ep.AudioURL)),
		ep.SkipVideo,
		nullString(ep.VideoProvider),
		ep.Status,
	)
	return err
}

func (r *courseRepository) saveScenes(ctx context.Context, tx *sql.Tx, ep *models.Episode) {
	query := `DELETE FROM episode_scenes WHERE episode_id = ? AND scene_order > ?`
	if _, err := tx.ExecContext(ctx, query, ep.ID, len(ep.Scenes)); err != nil {
		r.logger.Warn("failed to remove stale scenes", zap.String("episode_id", ep.ID), zap.Error(err))
	}

	query = `
		INSERT INTO episode_scenes (id, episode_id, scene_order, script, image_url, duration, start_time)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			scene_order = VALUES(scene_order),
			script = VALUES(script),
			image_url = VALUES(image_url),
			duration = VALUES(duration),
			start_time = VALUES(start_time)
	`
	for _, scene := range ep.Scenes {
		_, err := tx.ExecContext(ctx, query,
			scene.ID,
			ep.ID,
			scene.Order,
			scene.Script,
			nullString(storableURL(scene.ImageURL)),
			scene.Duration,
			scene.StartTime,
		)
		if err != nil {
			r.logger.Warn("failed to save scene, skipping",
				zap.String("episode_id", ep.ID),
				zap.Int("order", scene.Order),
				zap.Error(err),
			)
		}
	}
}

func (r *courseRepository) saveQuizQuestions(ctx context.Context, tx *sql.Tx, ep *models.Episode) {
	query := `DELETE FROM quiz_questions WHERE episode_id = ? AND question_order > ?`
	if _, err := tx.ExecContext(ctx, query, ep.ID, len(ep.QuizQuestions)); err != nil {
		r.logger.Warn("failed to remove stale quiz questions", zap.String("episode_id", ep.ID), zap.Error(err))
	}

	query = `
		INSERT INTO quiz_questions
		(id, episode_id, question_order, question_text, options, correct_answer, explanation, trigger_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			question_order = VALUES(question_order),
			question_text = VALUES(question_text),
			options = VALUES(options),
			correct_answer = VALUES(correct_answer),
			explanation = VALUES(explanation),
			trigger_time = VALUES(trigger_time)
	`
	for i, q := range ep.QuizQuestions {
		options, err := json.Marshal(q.Options)
		if err != nil {
			r.logger.Warn("failed to encode quiz options, skipping", zap.String("episode_id", ep.ID), zap.Error(err))
			continue
		}

		_, err = tx.ExecContext(ctx, query,
			models.DeterministicID(ep.ID, "quiz", strconv.Itoa(i+1)),
			ep.ID,
			i+1,
			q.Question,
			string(options),
			q.CorrectAnswer,
			q.Explanation,
			q.TriggerTime(ep.Duration),
		)
		if err != nil {
			r.logger.Warn("failed to save quiz question, skipping",
				zap.String("episode_id", ep.ID),
				zap.Int("order", i+1),
				zap.Error(err),
			)
		}
	}
}

// GetByID retrieves a course with its ordered episodes
func (r *courseRepository) GetByID(ctx context.Context, id string) (*models.Course, error) {
	query := `
		SELECT id, COALESCE(organization_id, ''), title, description, COALESCE(thumbnail_url, ''), total_duration, status
		FROM courses
		WHERE id = ?
		LIMIT 1
	`

	var course models.Course
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&course.ID,
		&course.OrganizationID,
		&course.Title,
		&course.Description,
		&course.ThumbnailURL,
		&course.TotalDuration,
		&course.Status,
	)
	if err == sql.ErrNoRows {
		return nil, ErrCourseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get course by id: %w", err)
	}

	query = `
		SELECT id, title, description, duration, COALESCE(video_url, ''), COALESCE(audio_url, ''),
			skip_video, COALESCE(video_provider, ''), status
		FROM episodes
		WHERE course_id = ?
		ORDER BY episode_order
	`
	rows, err := r.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query episodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ep models.Episode
		err := rows.Scan(
			&ep.ID,
			&ep.Title,
			&ep.Script,
			&ep.Duration,
			&ep.VideoURL,
			&ep.AudioURL,
			&ep.SkipVideo,
			&ep.VideoProvider,
			&ep.Status,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan episode: %w", err)
		}
		course.Episodes = append(course.Episodes, ep)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return &course, nil
}

// storableURL drops inline data URIs. Only the episode media column keeps them.
func storableURL(url string) string {
	if storage.IsDataURI(url) {
		return ""
	}
	return url
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
