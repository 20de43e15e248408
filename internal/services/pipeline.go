package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bpradana/weave"
	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/japanesestudent/coursegen/internal/storage"
	"go.uber.org/zap"
)

// TextExtractor is the interface that wraps the document text extraction service
type TextExtractor interface {
	// Extract returns the text of an uploaded document.
	//
	// If extraction fails, the error will be returned together with "nil" value.
	Extract(ctx context.Context, fileName string, data []byte) (*models.ExtractedDocument, error)
}

// ScriptGenerator is the interface that wraps script and quiz generation
type ScriptGenerator interface {
	// Generate builds segments and quiz questions from source text. It always returns a result.
	Generate(ctx context.Context, text, title string) *models.ScriptResult
}

// NarrationSynthesizer is the interface that wraps narration synthesis and storage
type NarrationSynthesizer interface {
	// Synthesize returns the stored narration of an episode script, or nil when no audio was produced.
	//
	// "episode" parameter is the 1-based episode number used in storage keys.
	Synthesize(ctx context.Context, courseID string, episode int, text, voiceID string) *models.NarrationAsset
}

// SceneSegmenter is the interface that wraps splitting a script into timed scenes
type SceneSegmenter interface {
	// Segment returns the scenes of an episode, starting at startTime seconds
	Segment(script string, images []string, episodeID string, startTime int) []models.Scene
}

// VideoSynthesizer is the interface that wraps episode video generation
type VideoSynthesizer interface {
	// Synthesize returns the episode video, or nil when every provider failed
	Synthesize(ctx context.Context, req VideoRequest) *VideoResult
}

// CourseRepository is the interface that wraps persistence of generated courses
type CourseRepository interface {
	// SaveCourse writes the course, its episodes, scenes and quiz questions atomically.
	//
	// Re-saving the same course overwrites the previous rows.
	// If the course or any episode cannot be written, the error will be returned.
	SaveCourse(ctx context.Context, course *models.Course) error
}

type pipeline struct {
	extractor TextExtractor
	storage   ObjectStorage
	scripts   ScriptGenerator
	narration NarrationSynthesizer
	scenes    SceneSegmenter
	videos    VideoSynthesizer
	repo      CourseRepository
	logger    *zap.Logger
}

// NewPipeline creates the course generation pipeline
func NewPipeline(
	extractor TextExtractor,
	storage ObjectStorage,
	scripts ScriptGenerator,
	narration NarrationSynthesizer,
	scenes SceneSegmenter,
	videos VideoSynthesizer,
	repo CourseRepository,
	logger *zap.Logger,
) *pipeline {
	return &pipeline{
		extractor: extractor,
		storage:   storage,
		scripts:   scripts,
		narration: narration,
		scenes:    scenes,
		videos:    videos,
		repo:      repo,
		logger:    logger,
	}
}

// runState carries the intermediate results of one run
type runState struct {
	req    *models.GenerationRequest
	course *models.Course
	text   string
	images []string
	script *models.ScriptResult
	track  *progressTracker
}

// stageSpec describes one pipeline stage
type stageSpec struct {
	stage   Stage
	message string
	run     func(ctx context.Context, st *runState) *StageError
}

// Run generates, stores and persists a course for the request.
//
// Stages run strictly in order: extract, photos, script, audio, video, persist.
// Failures before persist degrade the course but never abort the run; a
// persistence failure is returned and reported as the "failed" stage.
func (p *pipeline) Run(ctx context.Context, req *models.GenerationRequest, progress ProgressFunc) (*models.Course, error) {
	if req.CourseID == "" {
		return nil, fmt.Errorf("course id is required")
	}

	st := &runState{
		req: req,
		course: &models.Course{
			ID:             req.CourseID,
			OrganizationID: req.OrganizationID,
			Title:          req.Title,
			Description:    req.Description,
			Status:         models.CourseStatusProcessing,
		},
		track: newProgressTracker(progress, p.logger),
	}

	p.logger.Info("course generation started", zap.String("course_id", req.CourseID), zap.String("title", req.Title))

	specs := []stageSpec{
		{StageExtract, "Extracting text from document", p.extract},
		{StagePhotos, "Uploading reference images", p.uploadPhotos},
		{StageScript, "Writing course script", p.generateScript},
		{StageAudio, "Generating narration", p.synthesizeAudio},
		{StageVideo, "Generating video", p.synthesizeVideo},
		{StagePersist, "Saving course", p.persist},
	}

	graph, handles, err := buildStageGraph(specs, st)
	if err != nil {
		return nil, err
	}

	results, _, runErr := graph.Run(ctx,
		weave.WithErrorStrategy(weave.ContinueOnError),
		weave.WithGlobalHooks(p.stageHooks(specs, st)),
	)
	if failure := stageFailure(runErr, specs, handles, results); failure != nil {
		st.course.Status = models.CourseStatusFailed
		st.track.Fail(failure.Error())
		return st.course, failure
	}

	st.track.Finish(StageComplete, "Course ready")
	p.logger.Info("course generation completed",
		zap.String("course_id", req.CourseID),
		zap.Int("episodes", len(st.course.Episodes)),
		zap.Int("total_duration", st.course.TotalDuration),
	)
	return st.course, nil
}

// buildStageGraph chains the stages into a linear task graph. A recoverable
// stage error is the task's result, so only fatal errors block later stages.
func buildStageGraph(specs []stageSpec, st *runState) (*weave.Graph, []*weave.Handle[*StageError], error) {
	graph := weave.NewGraph()
	handles := make([]*weave.Handle[*StageError], 0, len(specs))

	for _, spec := range specs {
		run := spec.run
		var opts []weave.TaskOption
		if n := len(handles); n > 0 {
			opts = append(opts, weave.DependsOn(handles[n-1]))
		}

		handle, err := weave.AddTask(graph, string(spec.stage), func(ctx context.Context, _ weave.DependencyResolver) (*StageError, error) {
			stageErr := run(ctx, st)
			if stageErr != nil && stageErr.Fatal {
				return nil, stageErr
			}
			return stageErr, nil
		}, opts...)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to add stage %s: %w", spec.stage, err)
		}
		handles = append(handles, handle)
	}

	return graph, handles, nil
}

// stageHooks reports stage starts to the progress tracker and logs stage outcomes
func (p *pipeline) stageHooks(specs []stageSpec, st *runState) weave.Hooks {
	messages := make(map[string]string, len(specs))
	for _, spec := range specs {
		messages[string(spec.stage)] = spec.message
	}

	return weave.Hooks{
		OnStart: func(ctx context.Context, event weave.TaskEvent) {
			st.track.Start(Stage(event.Metadata.Name), messages[event.Metadata.Name])
		},
		OnSuccess: func(ctx context.Context, event weave.TaskEvent) {
			stageErr, ok := event.Result.(*StageError)
			if !ok || stageErr == nil {
				return
			}
			p.logger.Warn("stage degraded, continuing",
				zap.String("course_id", st.course.ID),
				zap.String("stage", event.Metadata.Name),
				zap.Error(stageErr.Err),
			)
		},
		OnFailure: func(ctx context.Context, event weave.TaskEvent) {
			if event.Metrics.Status == weave.StatusSkipped {
				p.logger.Debug("stage skipped",
					zap.String("course_id", st.course.ID),
					zap.String("stage", event.Metadata.Name),
				)
				return
			}
			p.logger.Error("stage failed",
				zap.String("course_id", st.course.ID),
				zap.String("stage", event.Metadata.Name),
				zap.Duration("duration", event.Metrics.Duration),
				zap.Error(event.Metrics.Error),
			)
		},
	}
}

// stageFailure returns the fatal error of the first stage that did not succeed, or nil.
// A stage that panicked or was skipped because the context ended is reported as fatal at that stage.
// A context that ends after persist succeeded is not a failure.
func stageFailure(runErr error, specs []stageSpec, handles []*weave.Handle[*StageError], results *weave.Results) *StageError {
	if runErr == nil {
		return nil
	}
	var stageErr *StageError
	if errors.As(runErr, &stageErr) {
		return stageErr
	}
	if results == nil {
		return fatalError(StageExtract, runErr)
	}
	for i, handle := range handles {
		if results.Status(handle) != weave.StatusSucceeded {
			return fatalError(specs[i].stage, runErr)
		}
	}
	return nil
}

// extract resolves the source text: given text, extracted document text, or a placeholder
func (p *pipeline) extract(ctx context.Context, st *runState) *StageError {
	defer st.track.Finish(StageExtract, "Text extracted")

	if text := strings.TrimSpace(st.req.SourceText); text != "" {
		st.text = text
		return nil
	}

	doc := st.req.Document
	if doc == nil || len(doc.Data) == 0 {
		st.text = PlaceholderText(st.req.Title, "")
		return nil
	}

	extracted, err := p.extractor.Extract(ctx, doc.FileName, doc.Data)
	if err == nil && (extracted == nil || strings.TrimSpace(extracted.Text) == "") {
		err = errors.New("extractor returned no text")
	}
	if err != nil {
		st.text = PlaceholderText(st.req.Title, doc.FileName)
		return recoverableError(StageExtract, err)
	}

	st.text = strings.TrimSpace(extracted.Text)
	p.logger.Info("document text extracted",
		zap.String("course_id", st.course.ID),
		zap.Int("pages", extracted.PageCount),
		zap.Int("chars", len(st.text)),
	)
	return nil
}

// uploadPhotos stores inline reference images, keeping a data URI when the upload fails
func (p *pipeline) uploadPhotos(ctx context.Context, st *runState) *StageError {
	defer st.track.Finish(StagePhotos, "Reference images ready")

	var failed []error
	total := len(st.req.ReferenceImages)
	for i, img := range st.req.ReferenceImages {
		switch {
		case img.URL != "":
			st.images = append(st.images, img.URL)
		case len(img.Data) > 0:
			contentType := img.ContentType
			if contentType == "" {
				contentType = "image/png"
			}
			url, err := p.storage.Put(ctx, storage.PhotoKey(st.course.ID, i, contentType), img.Data, contentType)
			if err != nil {
				failed = append(failed, fmt.Errorf("image %d: %w", i, err))
				url = storage.DataURI(contentType, img.Data)
			}
			st.images = append(st.images, url)
		}
		st.track.Step(StagePhotos, i+1, total, fmt.Sprintf("Uploaded image %d of %d", i+1, total))
	}

	if len(st.images) > 0 {
		st.course.ThumbnailURL = st.images[0]
	}
	if len(failed) > 0 {
		return recoverableError(StagePhotos, errors.Join(failed...))
	}
	return nil
}

// generateScript builds the episode skeletons from the generated script
func (p *pipeline) generateScript(ctx context.Context, st *runState) *StageError {
	st.script = p.scripts.Generate(ctx, st.text, st.req.Title)
	if st.course.Description == "" {
		st.course.Description = st.script.Summary
	}

	st.course.Episodes = make([]models.Episode, 0, len(st.script.Segments))
	for i, seg := range st.script.Segments {
		st.course.Episodes = append(st.course.Episodes, models.Episode{
			ID:     models.DeterministicID(st.course.ID, "episode", fmt.Sprint(i+1)),
			Title:  seg.Title,
			Script: seg.Script,
			Status: models.EpisodeStatusReady,
		})
	}

	st.course.QuizQuestions = st.script.QuizQuestions
	split := models.SplitQuizQuestions(st.script.QuizQuestions, len(st.course.Episodes))
	for i := range st.course.Episodes {
		st.course.Episodes[i].QuizQuestions = split[i]
	}

	st.track.Finish(StageScript, fmt.Sprintf("Script ready: %d episodes", len(st.course.Episodes)))
	if st.script.Provider == "offline" {
		return recoverableError(StageScript, errors.New("content providers unavailable, offline script used"))
	}
	return nil
}

// synthesizeAudio narrates each episode and lays out its scenes on the course timeline
func (p *pipeline) synthesizeAudio(ctx context.Context, st *runState) *StageError {
	missing := 0
	cursor := 0
	total := len(st.course.Episodes)
	for i := range st.course.Episodes {
		ep := &st.course.Episodes[i]

		asset := p.narration.Synthesize(ctx, st.course.ID, i+1, ep.Script, st.req.VoiceID)
		if asset != nil {
			ep.AudioURL = asset.URL
			ep.Duration = asset.Duration
		} else {
			missing++
			ep.Duration = EstimateTextDuration(ep.Script)
		}

		ep.Scenes = p.scenes.Segment(ep.Script, st.images, ep.ID, cursor)
		if n := len(ep.Scenes); n > 0 {
			cursor = ep.Scenes[n-1].End()
		}

		st.track.Step(StageAudio, i+1, total, fmt.Sprintf("Narrated episode %d of %d", i+1, total))
	}

	st.track.Finish(StageAudio, "Narration ready")
	if missing > 0 {
		return recoverableError(StageAudio, fmt.Errorf("%d of %d episodes have no narration", missing, total))
	}
	return nil
}

// synthesizeVideo produces a video per episode, falling back to the narration track
func (p *pipeline) synthesizeVideo(ctx context.Context, st *runState) *StageError {
	missing := 0
	total := len(st.course.Episodes)
	for i := range st.course.Episodes {
		ep := &st.course.Episodes[i]

		req := VideoRequest{
			CourseID: st.course.ID,
			Episode:  i + 1,
			Title:    ep.Title,
			Script:   ep.Script,
			AudioURL: ep.AudioURL,
		}
		if len(st.images) > 0 {
			req.ImageURL = st.images[i%len(st.images)]
		}

		if video := p.videos.Synthesize(ctx, req); video != nil {
			ep.VideoURL = video.URL
			ep.VideoProvider = video.Provider
		} else {
			missing++
			ep.SkipVideo = true
			ep.VideoURL = ep.AudioURL
			if ep.AudioURL == "" {
				ep.Status = models.EpisodeStatusDegraded
			}
			// a rerun must not leave an earlier run's video behind
			if err := p.storage.Remove(ctx, storage.VideoKey(st.course.ID, i+1)); err != nil {
				p.logger.Warn("failed to remove stale episode video",
					zap.String("course_id", st.course.ID),
					zap.Int("episode", i+1),
					zap.Error(err),
				)
			}
		}

		st.track.Step(StageVideo, i+1, total, fmt.Sprintf("Rendered episode %d of %d", i+1, total))
	}

	st.track.Finish(StageVideo, "Video ready")
	if missing > 0 {
		return recoverableError(StageVideo, fmt.Errorf("%d of %d episodes have no generated video", missing, total))
	}
	return nil
}

// persist writes the course. This is the only stage whose failure aborts the run.
func (p *pipeline) persist(ctx context.Context, st *runState) *StageError {
	st.course.TotalDuration = 0
	for _, ep := range st.course.Episodes {
		st.course.TotalDuration += ep.Duration
	}
	st.course.Status = models.CourseStatusReady

	if err := p.repo.SaveCourse(ctx, st.course); err != nil {
		return fatalError(StagePersist, err)
	}
	return nil
}

// PlaceholderText builds substitute source text when no document text is available
func PlaceholderText(title, fileName string) string {
	subject := title
	if fileName != "" {
		name := strings.TrimSuffix(filepath.Base(fileName), filepath.Ext(fileName))
		name = strings.Join(strings.FieldsFunc(name, func(r rune) bool {
			return r == '_' || r == '-' || r == '.' || r == ' '
		}), " ")
		if name != "" {
			subject = name
		}
	}
	return fmt.Sprintf("This course introduces %s. The source document could not be read automatically, "+
		"so this overview covers the key ideas of %s at a high level.", subject, subject)
}
