package services

import "go.uber.org/zap"

// Stage names a step of the generation pipeline
type Stage string

const (
	StageExtract  Stage = "extract"
	StagePhotos   Stage = "photos"
	StageScript   Stage = "script"
	StageAudio    Stage = "audio"
	StageVideo    Stage = "video"
	StagePersist  Stage = "persist"
	StageComplete Stage = "complete"
	StageFailed   Stage = "failed"
)

// ProgressFunc receives progress reports. Implementations must not block for long.
type ProgressFunc func(stage string, percent int, message string)

// stageWindow is the percent range a stage reports within
type stageWindow struct {
	Stage Stage
	Start int
	End   int
}

// stageWindows lists the stages in execution order with their progress ranges
var stageWindows = []stageWindow{
	{Stage: StageExtract, Start: 5, End: 15},
	{Stage: StagePhotos, Start: 20, End: 30},
	{Stage: StageScript, Start: 35, End: 55},
	{Stage: StageAudio, Start: 60, End: 75},
	{Stage: StageVideo, Start: 75, End: 90},
	{Stage: StagePersist, Start: 92, End: 92},
	{Stage: StageComplete, Start: 100, End: 100},
}

func windowFor(stage Stage) stageWindow {
	for _, w := range stageWindows {
		if w.Stage == stage {
			return w
		}
	}
	return stageWindow{Stage: stage}
}

// progressTracker turns stage positions into percents and keeps them non-decreasing
type progressTracker struct {
	report ProgressFunc
	last   int
	logger *zap.Logger
}

func newProgressTracker(report ProgressFunc, logger *zap.Logger) *progressTracker {
	return &progressTracker{report: report, logger: logger}
}

// Start reports the beginning of a stage
func (t *progressTracker) Start(stage Stage, message string) {
	t.emit(stage, windowFor(stage).Start, message)
}

// Step reports done of total units of a stage, interpolated linearly inside its window
func (t *progressTracker) Step(stage Stage, done, total int, message string) {
	w := windowFor(stage)
	percent := w.End
	if total > 0 {
		percent = w.Start + (w.End-w.Start)*min(done, total)/total
	}
	t.emit(stage, percent, message)
}

// Finish reports the end of a stage
func (t *progressTracker) Finish(stage Stage, message string) {
	t.emit(stage, windowFor(stage).End, message)
}

// Fail reports a terminal failure at the current percent
func (t *progressTracker) Fail(message string) {
	t.emit(StageFailed, t.last, message)
}

// Percent returns the last emitted percent
func (t *progressTracker) Percent() int {
	return t.last
}

func (t *progressTracker) emit(stage Stage, percent int, message string) {
	percent = max(clamp(percent, 0, 100), t.last)
	t.last = percent
	if t.report == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			t.logger.Warn("progress callback panicked", zap.Any("error", r))
		}
	}()
	t.report(string(stage), percent, message)
}
