package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/ideaforge/internal/config"
)

// NewEnsureDailyIdeaTask builds the periodic daily idea check.
func NewEnsureDailyIdeaTask() *asynq.Task {
	return asynq.NewTask(
		TaskEnsureDailyIdea,
		nil, // Empty payload - the date comes from the worker's clock
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(55*time.Minute), // Prevent duplicate if scheduler runs twice
	)
}

// StartScheduler creates and starts an Asynq Scheduler for periodic tasks.
// Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: cfg.Location(),
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	entryID, err := scheduler.Register(cfg.DailyIdeaSchedule, NewEnsureDailyIdeaTask())
	if err != nil {
		return nil, fmt.Errorf("failed to register daily idea schedule: %w", err)
	}

	// Start scheduler (non-blocking)
	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info(
		"Scheduler started",
		"schedule", cfg.DailyIdeaSchedule,
		"timezone", cfg.Location().String(),
		"entry_id", entryID,
	)

	return func() { scheduler.Shutdown() }, nil
}
