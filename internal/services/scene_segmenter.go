package services

import (
	"strconv"
	"strings"

	"github.com/japanesestudent/coursegen/internal/models"
)

const (
	maxScenesPerEpisode = 6
	sentencesPerScene   = 3
)

type sceneSegmenter struct{}

// NewSceneSegmenter creates a new scene segmenter
func NewSceneSegmenter() *sceneSegmenter {
	return &sceneSegmenter{}
}

// Segment splits an episode script into at most six timed scenes.
//
// Sentences are grouped evenly (about three per scene), images are assigned
// round-robin, and start times chain from startTime so that each scene begins
// where the previous one ends.
func (sceneSegmenter) Segment(script string, images []string, episodeID string, startTime int) []models.Scene {
	sentences := SplitSentences(script)
	n := len(sentences)
	if n == 0 {
		return nil
	}

	groups := min(ceilDiv(n, sentencesPerScene), maxScenesPerEpisode)
	size := ceilDiv(n, groups)

	scenes := make([]models.Scene, 0, groups)
	cursor := startTime
	for i := 0; i < n; i += size {
		text := strings.TrimSpace(strings.Join(sentences[i:min(i+size, n)], " "))
		if text == "" {
			continue
		}

		order := len(scenes) + 1
		scene := models.Scene{
			ID:        models.DeterministicID(episodeID, "scene", strconv.Itoa(order)),
			Order:     order,
			Script:    text,
			Duration:  EstimateTextDuration(text),
			StartTime: cursor,
		}
		if len(images) > 0 {
			scene.ImageURL = images[len(scenes)%len(images)]
		}

		scenes = append(scenes, scene)
		cursor = scene.End()
	}

	return scenes
}

// SplitSentences splits text after runs of '.', '!' or '?'. A trailing fragment
// without a terminator is kept as its own sentence.
func SplitSentences(text string) []string {
	var sentences []string
	runes := []rune(text)
	start := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminator(runes[i]) {
			continue
		}
		for i+1 < len(runes) && isTerminator(runes[i+1]) {
			i++
		}
		if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
			sentences = append(sentences, s)
		}
		start = i + 1
	}
	if s := strings.TrimSpace(string(runes[start:])); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
