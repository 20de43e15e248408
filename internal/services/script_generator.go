package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/japanesestudent/coursegen/internal/models"
	"go.uber.org/zap"
)

// ContentProvider is the interface that wraps a text generation service
type ContentProvider interface {
	// ID returns the provider identifier used in logs and results
	ID() string
	// MaxInputChars returns how many characters of source text fit the provider's context budget
	MaxInputChars() int
	// Complete sends the system instruction and the user prompt and returns the raw completion.
	//
	// If the provider is unreachable or rejects the request, the error will be returned.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

const (
	maxSegments          = 8
	offlineMaxSegments   = 5
	offlineMinParagraph  = 30
	offlineMaxScriptChar = 500
	// matches the episodes.title column
	maxTitleRunes = 255
)

var (
	errNoJSONObject = errors.New("no JSON object found in completion")
	errNoSegments   = errors.New("completion contained no segments")

	paragraphSplit = regexp.MustCompile(`\n\s*\n`)
)

const scriptSystemPrompt = `You are an instructional designer who turns source material into short narrated training episodes.
Respond with a single JSON object and nothing else.`

const scriptPromptTemplate = `Create a training course titled %q from the source material below.

Return exactly this JSON structure:
{
  "segments": [
    {"title": "episode title", "script": "narration spoken by the presenter, 120-250 words", "keyPoints": ["point", "point"]}
  ],
  "quizQuestions": [
    {"question": "text", "options": ["a", "b", "c", "d"], "correctAnswer": 0, "explanation": "why", "triggerPercentage": 50}
  ],
  "summary": "two sentence course summary"
}

Rules:
- Between 1 and %d segments, in teaching order.
- Each quiz question has exactly 4 options and correctAnswer is the 0-based index of the right option.
- triggerPercentage is between 0 and 100.
- Plain narration only, no stage directions or markdown.

SOURCE MATERIAL:
%s`

type scriptGenerator struct {
	providers []ContentProvider
	logger    *zap.Logger
}

// NewScriptGenerator creates a script generator that tries providers in the given order
func NewScriptGenerator(providers []ContentProvider, logger *zap.Logger) *scriptGenerator {
	return &scriptGenerator{
		providers: providers,
		logger:    logger,
	}
}

// Generate builds episode segments and quiz questions from source text.
//
// Providers are tried in order; a provider error, an unparsable completion or a
// completion without segments moves on to the next one. When every provider fails
// the offline generator is used, so Generate always returns a result.
func (g *scriptGenerator) Generate(ctx context.Context, text, title string) *models.ScriptResult {
	for _, provider := range g.providers {
		if ctx.Err() != nil {
			break
		}

		result, err := g.generateWith(ctx, provider, text, title)
		if err != nil {
			g.logger.Warn("script provider failed, trying next",
				zap.String("provider", provider.ID()),
				zap.Error(err),
			)
			continue
		}

		g.logger.Info("script generated",
			zap.String("provider", provider.ID()),
			zap.Int("segments", len(result.Segments)),
			zap.Int("quiz_questions", len(result.QuizQuestions)),
		)
		return result
	}

	g.logger.Warn("all script providers failed, using offline generator", zap.Int("providers", len(g.providers)))
	return OfflineScript(text, title)
}

// generateWith runs a single provider and validates its output
func (g *scriptGenerator) generateWith(ctx context.Context, provider ContentProvider, text, title string) (*models.ScriptResult, error) {
	source := truncateRunes(text, provider.MaxInputChars())
	prompt := fmt.Sprintf(scriptPromptTemplate, title, maxSegments, source)

	completion, err := provider.Complete(ctx, scriptSystemPrompt, prompt)
	if err != nil {
		return nil, err
	}

	result, err := ParseScriptCompletion(completion)
	if err != nil {
		return nil, err
	}
	result.Provider = provider.ID()
	return result, nil
}

// ParseScriptCompletion extracts and normalizes the script JSON from a raw completion.
// Segments past the eighth are dropped, as are malformed quiz questions.
func ParseScriptCompletion(completion string) (*models.ScriptResult, error) {
	raw, ok := ExtractJSONObject(completion)
	if !ok {
		return nil, errNoJSONObject
	}

	var parsed models.ScriptResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse script JSON: %w", err)
	}

	segments := make([]models.ScriptSegment, 0, len(parsed.Segments))
	for _, seg := range parsed.Segments {
		seg.Script = strings.TrimSpace(seg.Script)
		if seg.Script == "" {
			continue
		}
		seg.Title = strings.TrimSpace(truncateRunes(strings.TrimSpace(seg.Title), maxTitleRunes))
		if seg.Title == "" {
			seg.Title = fmt.Sprintf("Episode %d", len(segments)+1)
		}
		segments = append(segments, seg)
		if len(segments) == maxSegments {
			break
		}
	}
	if len(segments) == 0 {
		return nil, errNoSegments
	}

	questions := make([]models.QuizQuestion, 0, len(parsed.QuizQuestions))
	for _, q := range parsed.QuizQuestions {
		if !q.Valid() {
			continue
		}
		q.TriggerPercentage = clamp(q.TriggerPercentage, 0, 100)
		questions = append(questions, q)
	}

	return &models.ScriptResult{
		Segments:      segments,
		QuizQuestions: questions,
		Summary:       strings.TrimSpace(parsed.Summary),
	}, nil
}

// ExtractJSONObject returns the first balanced top-level {...} block in s.
// Braces inside string literals are ignored.
func ExtractJSONObject(s string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// OfflineScript produces a deterministic script without any provider.
//
// Paragraphs (split on blank lines, at least 30 characters) are grouped into at most
// five contiguous, evenly sized segments whose scripts are capped at 500 characters.
// Three template quiz questions are always returned, triggered at 30, 60 and 90 percent.
func OfflineScript(text, title string) *models.ScriptResult {
	var paragraphs []string
	for _, p := range paragraphSplit.Split(strings.ReplaceAll(text, "\r\n", "\n"), -1) {
		p = strings.TrimSpace(p)
		if utf8.RuneCountInString(p) >= offlineMinParagraph {
			paragraphs = append(paragraphs, p)
		}
	}

	n := len(paragraphs)
	k := min(n, offlineMaxSegments)
	segments := make([]models.ScriptSegment, 0, k)
	for i := 0; i < k; i++ {
		bucket := paragraphs[i*n/k : (i+1)*n/k]
		keyPoints := make([]string, 0, len(bucket))
		for _, p := range bucket {
			keyPoints = append(keyPoints, truncateRunes(firstSentence(p), 120))
		}
		segments = append(segments, models.ScriptSegment{
			Title:     partTitle(title, i+1),
			Script:    truncateRunes(strings.Join(bucket, "\n\n"), offlineMaxScriptChar),
			KeyPoints: keyPoints,
		})
	}

	summary := ""
	if n > 0 {
		summary = truncateRunes(firstSentence(paragraphs[0]), 200)
	}

	return &models.ScriptResult{
		Segments:      segments,
		QuizQuestions: offlineQuiz(title),
		Summary:       summary,
		Provider:      "offline",
	}
}

func offlineQuiz(title string) []models.QuizQuestion {
	return []models.QuizQuestion{
		{
			Question:          fmt.Sprintf("What is the main topic of %q?", title),
			Options:           []string{title, "Company history", "Office directions", "None of the above"},
			CorrectAnswer:     0,
			Explanation:       "The course is dedicated to this topic.",
			TriggerPercentage: 30,
		},
		{
			Question:          "What should you do if a procedure in this course is unclear?",
			Options:           []string{"Guess and continue", "Ask your supervisor or trainer", "Skip the procedure", "Ignore it"},
			CorrectAnswer:     1,
			Explanation:       "Unclear procedures should always be clarified before acting.",
			TriggerPercentage: 60,
		},
		{
			Question:          "When should the practices from this course be applied?",
			Options:           []string{"Only during audits", "Only when supervised", "Every time the situation applies", "Never"},
			CorrectAnswer:     2,
			Explanation:       "Training is effective only when applied consistently.",
			TriggerPercentage: 90,
		},
	}
}

// partTitle names an offline segment, shortening the course title so the result fits maxTitleRunes
func partTitle(title string, part int) string {
	suffix := fmt.Sprintf(": Part %d", part)
	title = truncateRunes(title, maxTitleRunes-utf8.RuneCountInString(suffix))
	return strings.TrimSpace(title) + suffix
}

// firstSentence returns text up to and including the first sentence terminator
func firstSentence(text string) string {
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		return text[:i+1]
	}
	return text
}

// truncateRunes cuts s to at most n runes
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
