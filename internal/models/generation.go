package models

import "time"

// ReferenceImage is an image supplied with a generation request.
// Either URL or Data is set.
type ReferenceImage struct {
	URL         string `json:"url,omitempty" validate:"omitempty,url"`
	Data        []byte `json:"data,omitempty"`
	ContentType string `json:"contentType,omitempty"`
}

// SourceDocument is an uploaded document awaiting text extraction
type SourceDocument struct {
	FileName string `json:"fileName" validate:"required"`
	Data     []byte `json:"data" validate:"required"`
}

// GenerationRequest is the immutable input of a course generation run
type GenerationRequest struct {
	CourseID        string           `json:"courseId" validate:"omitempty,uuid"`
	Title           string           `json:"title" validate:"required,max=255"`
	Description     string           `json:"description" validate:"max=2000"`
	SourceText      string           `json:"sourceText,omitempty"`
	Document        *SourceDocument  `json:"document,omitempty"`
	ReferenceImages []ReferenceImage `json:"referenceImages,omitempty" validate:"max=10,dive"`
	VoiceID         string           `json:"voiceId,omitempty"`
	OrganizationID  string           `json:"organizationId,omitempty"`
}

// ExtractedDocument is the text extracted from an uploaded document
type ExtractedDocument struct {
	Text      string `json:"text"`
	PageCount int    `json:"pageCount"`
}

// ScriptSegment is one LLM-produced unit that becomes an episode
type ScriptSegment struct {
	Title     string   `json:"title"`
	Script    string   `json:"script"`
	KeyPoints []string `json:"keyPoints"`
}

// ScriptResult is the output of the script generation stage
type ScriptResult struct {
	Segments      []ScriptSegment `json:"segments"`
	QuizQuestions []QuizQuestion  `json:"quizQuestions"`
	Summary       string          `json:"summary"`
	Provider      string          `json:"provider"`
}

// NarrationAsset is a synthesized and stored narration track
type NarrationAsset struct {
	URL      string
	Duration int
	Inline   bool
}

// ProgressEvent is a progress report emitted during a run
type ProgressEvent struct {
	Stage   string `json:"stage"`
	Percent int    `json:"percent"`
	Message string `json:"message"`
}

// GenerationStatus represents the state of a queued generation run
type GenerationStatus string

const (
	GenerationStatusQueued    GenerationStatus = "queued"
	GenerationStatusRunning   GenerationStatus = "running"
	GenerationStatusSucceeded GenerationStatus = "succeeded"
	GenerationStatusFailed    GenerationStatus = "failed"
)

// GenerationRun is the ephemeral run state exposed to API clients
type GenerationRun struct {
	ID        string           `json:"id"`
	CourseID  string           `json:"courseId"`
	Status    GenerationStatus `json:"status"`
	Stage     string           `json:"stage,omitempty"`
	Percent   int              `json:"percent"`
	Message   string           `json:"message,omitempty"`
	Error     string           `json:"error,omitempty"`
	UpdatedAt time.Time        `json:"updatedAt"`
}

// CreateGenerationResponse is returned when a generation run is accepted
type CreateGenerationResponse struct {
	GenerationID string `json:"generationId"`
	CourseID     string `json:"courseId"`
}

// TaskTypeGenerateCourse is the queue task type that runs the generation pipeline
const TaskTypeGenerateCourse = "course:generate"

// GenerationTaskPayload is the queued task body
type GenerationTaskPayload struct {
	GenerationID string            `json:"generationId"`
	Request      GenerationRequest `json:"request"`
}
