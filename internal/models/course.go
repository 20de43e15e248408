package models

import "math"

// CourseStatus represents the lifecycle status of a generated course
type CourseStatus string

const (
	CourseStatusProcessing CourseStatus = "processing"
	CourseStatusReady      CourseStatus = "ready"
	CourseStatusFailed     CourseStatus = "failed"
)

// EpisodeStatus represents whether an episode got all of its media
type EpisodeStatus string

const (
	EpisodeStatusReady    EpisodeStatus = "ready"
	EpisodeStatusDegraded EpisodeStatus = "degraded"
)

// Course is the aggregate produced by one generation run
type Course struct {
	ID             string         `json:"id"`
	OrganizationID string         `json:"organizationId,omitempty"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	ThumbnailURL   string         `json:"thumbnailUrl,omitempty"`
	Episodes       []Episode      `json:"episodes"`
	QuizQuestions  []QuizQuestion `json:"quizQuestions"`
	TotalDuration  int            `json:"totalDuration"`
	Status         CourseStatus   `json:"status"`
}

// Episode represents one narrated segment of a course
type Episode struct {
	ID            string         `json:"id"`
	Title         string         `json:"title"`
	Script        string         `json:"script"`
	AudioURL      string         `json:"audioUrl,omitempty"`
	VideoURL      string         `json:"videoUrl,omitempty"`
	Duration      int            `json:"duration"`
	Scenes        []Scene        `json:"scenes"`
	QuizQuestions []QuizQuestion `json:"quizQuestions,omitempty"`
	Status        EpisodeStatus  `json:"status"`
	SkipVideo     bool           `json:"skipVideo,omitempty"`
	VideoProvider string         `json:"videoProvider,omitempty"`
}

// StoredMediaURL returns the URL persisted for the episode: video first, then audio
func (e *Episode) StoredMediaURL() string {
	if e.VideoURL != "" {
		return e.VideoURL
	}
	return e.AudioURL
}

// Scene is a timed slice of an episode script paired with an optional image
type Scene struct {
	ID        string `json:"id"`
	Order     int    `json:"order"`
	Script    string `json:"script"`
	ImageURL  string `json:"imageUrl,omitempty"`
	Duration  int    `json:"duration"`
	StartTime int    `json:"startTime"`
}

// End returns the second at which the scene finishes
func (s Scene) End() int {
	return s.StartTime + s.Duration
}

// QuizQuestion is a multiple-choice question shown at a point of an episode
type QuizQuestion struct {
	Question          string   `json:"question"`
	Options           []string `json:"options"`
	CorrectAnswer     int      `json:"correctAnswer"`
	Explanation       string   `json:"explanation"`
	TriggerPercentage int      `json:"triggerPercentage"`
}

// QuizOptionCount is the number of options every quiz question carries
const QuizOptionCount = 4

// Valid reports whether the question has exactly four options and an in-range answer
func (q QuizQuestion) Valid() bool {
	if q.Question == "" || len(q.Options) != QuizOptionCount {
		return false
	}
	return q.CorrectAnswer >= 0 && q.CorrectAnswer < QuizOptionCount
}

// SplitQuizQuestions distributes a flat question list over episodes in order,
// ceil(len(questions)/episodes) per episode. Trailing episodes may get none.
func SplitQuizQuestions(questions []QuizQuestion, episodes int) [][]QuizQuestion {
	if episodes <= 0 {
		return nil
	}
	split := make([][]QuizQuestion, episodes)
	if len(questions) == 0 {
		return split
	}

	per := (len(questions) + episodes - 1) / episodes
	for i := range split {
		start := i * per
		if start >= len(questions) {
			break
		}
		split[i] = questions[start:min(start+per, len(questions))]
	}
	return split
}

// TriggerTime converts a trigger percentage into seconds from the episode start
func (q QuizQuestion) TriggerTime(episodeDuration int) int {
	return int(math.Round(float64(episodeDuration) * float64(q.TriggerPercentage) / 100))
}
