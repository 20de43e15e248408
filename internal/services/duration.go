package services

import (
	"math"
	"strings"
)

const (
	// wordsPerSecond is the narration pace used to estimate durations from text
	wordsPerSecond = 2.5
	// audioBytesPerSecond approximates a 16kbps MP3 stream
	audioBytesPerSecond = 2000
	// minDuration is the floor applied to every estimated duration, in seconds
	minDuration = 10
)

// EstimateTextDuration estimates how long text takes to narrate, in seconds (minimum 10)
func EstimateTextDuration(text string) int {
	words := len(strings.Fields(text))
	return max(int(math.Round(float64(words)/wordsPerSecond)), minDuration)
}

// EstimateAudioDuration estimates the length of an MP3 track from its size, in seconds (minimum 10)
func EstimateAudioDuration(size int) int {
	return max(int(math.Round(float64(size)/audioBytesPerSecond)), minDuration)
}
