package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	_ "github.com/go-sql-driver/mysql"
	"github.com/hibiken/asynq"
	"github.com/japanesestudent/coursegen/internal/config"
	"github.com/japanesestudent/coursegen/internal/logger"
	"github.com/japanesestudent/coursegen/internal/models"
	"github.com/japanesestudent/coursegen/internal/poller"
	"github.com/japanesestudent/coursegen/internal/providers"
	"github.com/japanesestudent/coursegen/internal/repositories"
	"github.com/japanesestudent/coursegen/internal/services"
	"go.uber.org/zap"
)

// maxVideoBytes caps provider outputs copied into storage
const maxVideoBytes = 200 << 20

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v\n", err)
	}

	// Initialize logger
	if err := logger.Init(cfg.Logging.Level); err != nil {
		log.Fatalf("Failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	logger.Logger.Info("Starting Course Generation Worker")

	// Load provider ladders
	ladders, err := config.LoadProviders(cfg.ProvidersFile)
	if err != nil {
		logger.Logger.Fatal("Failed to load providers", zap.Error(err))
	}

	// Connect to database
	db, err := connectDB(cfg.DSN())
	if err != nil {
		logger.Logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Connect to Redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		logger.Logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Initialize storage
	objectStorage, err := newObjectStorage(cfg.Storage)
	if err != nil {
		logger.Logger.Fatal("Failed to initialize storage", zap.Error(err))
	}

	// Initialize repositories
	courseRepo := repositories.NewCourseRepository(db, logger.Logger)
	runRepo := repositories.NewGenerationRunRepository(rdb, cfg.Queue.RunStateTTL)

	// Initialize provider clients
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	contentLadder := buildContentProviders(ladders.Content, httpClient, logger.Logger)
	lipSyncLadder := buildVideoProviders(ladders.Video.LipSync, httpClient, logger.Logger)
	textToVideoLadder := buildVideoProviders(ladders.Video.TextToVideo, httpClient, logger.Logger)

	logger.Logger.Info("Provider ladders ready",
		zap.Int("content", len(contentLadder)),
		zap.Int("lip_sync", len(lipSyncLadder)),
		zap.Int("text_to_video", len(textToVideoLadder)),
	)

	jobPoller := poller.New(logger.Logger,
		poller.WithInterval(cfg.Poll.Interval),
		poller.WithMaxAttempts(cfg.Poll.MaxAttempts),
	)

	// Worst case for one episode is every video provider running out its poll budget
	episodeWorstCase := jobPoller.Budget() * time.Duration(len(lipSyncLadder)+len(textToVideoLadder))
	if episodeWorstCase > cfg.Queue.TaskTimeout {
		logger.Logger.Warn("Task timeout is shorter than the worst-case video time of a single episode",
			zap.Duration("task_timeout", cfg.Queue.TaskTimeout),
			zap.Duration("episode_worst_case", episodeWorstCase),
		)
	}

	// Initialize services
	pipeline := services.NewPipeline(
		providers.NewExtractorClient(cfg.Extractor.URL, httpClient),
		objectStorage,
		services.NewScriptGenerator(contentLadder, logger.Logger),
		services.NewNarrationSynthesizer(providers.NewTTSClient(cfg.TTS, httpClient), objectStorage, logger.Logger),
		services.NewSceneSegmenter(),
		services.NewVideoSynthesizer(
			lipSyncLadder,
			textToVideoLadder,
			jobPoller,
			providers.NewDownloader(httpClient, maxVideoBytes),
			objectStorage,
			logger.Logger,
		),
		courseRepo,
		logger.Logger,
	)

	// Create Asynq server
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     cfg.RedisAddr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		},
		asynq.Config{
			Concurrency: cfg.Queue.Concurrency,
			Queues: map[string]int{
				services.GenerationQueue: 1,
			},
		},
	)

	// Create worker instance
	worker := NewWorker(logger.Logger, pipeline, runRepo)

	// Register task handlers
	mux := asynq.NewServeMux()
	mux.HandleFunc(models.TaskTypeGenerateCourse, worker.HandleGenerateCourse)

	// Start worker
	go func() {
		if err := srv.Run(mux); err != nil {
			logger.Logger.Fatal("Failed to start worker", zap.Error(err))
		}
	}()

	logger.Logger.Info("Worker started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Logger.Info("Shutting down worker...")
	srv.Shutdown()
	logger.Logger.Info("Worker exited")
}

// connectDB connects to the database
func connectDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
