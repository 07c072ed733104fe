package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jimdaga/ideaforge/internal/analysis"
	"github.com/jimdaga/ideaforge/internal/config"
	"github.com/jimdaga/ideaforge/internal/models"
)

// AnalysisGenerator runs a full analysis for an idea.
type AnalysisGenerator interface {
	Generate(ctx context.Context, ideaID, userID uint) (*models.Analysis, error)
}

// DailyIdeaEnsurer makes sure today's idea exists or is being generated.
type DailyIdeaEnsurer interface {
	EnsureTodayGenerated(ctx context.Context) (*models.DailyIdea, error)
}

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

// Implement asynq.Logger interface methods
func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, analyses AnalysisGenerator, daily DailyIdeaEnsurer) error {
	srv, mux, err := newServer(cfg, analyses, daily)
	if err != nil {
		return err
	}
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, analyses AnalysisGenerator, daily DailyIdeaEnsurer) (stop func(), err error) {
	srv, mux, err := newServer(cfg, analyses, daily)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, analyses AnalysisGenerator, daily DailyIdeaEnsurer) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency:     5,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskGenerateAnalysis, handleGenerateAnalysis(logger, analyses))
	mux.HandleFunc(TaskEnsureDailyIdea, handleEnsureDailyIdea(logger, daily))

	logger.Info("Worker starting", "concurrency", 5, "redis", cfg.RedisURL)
	return srv, mux, nil
}

// handleGenerateAnalysis runs the orchestrator for one idea. The orchestrator
// records the outcome on the idea itself, so only storage errors are retried.
func handleGenerateAnalysis(logger *slog.Logger, analyses AnalysisGenerator) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload generateAnalysisPayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			// Invalid payload - don't retry
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		logger.Info(
			"Processing analysis:generate task",
			"idea_id", payload.IdeaID,
			"user_id", payload.UserID,
		)

		result, err := analyses.Generate(ctx, payload.IdeaID, payload.UserID)
		if err != nil {
			if isFinal(err) {
				logger.Warn(
					"Analysis generation not retried",
					"idea_id", payload.IdeaID,
					"error", err.Error(),
				)
				return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
			}
			return fmt.Errorf("analysis generation failed: %w", err)
		}

		logger.Info(
			"Analysis generation completed",
			"idea_id", payload.IdeaID,
			"analysis_id", result.ID,
		)
		return nil
	}
}

// handleEnsureDailyIdea kicks off today's idea if it does not exist yet.
func handleEnsureDailyIdea(logger *slog.Logger, daily DailyIdeaEnsurer) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		record, err := daily.EnsureTodayGenerated(ctx)
		if err != nil {
			return fmt.Errorf("failed to ensure daily idea: %w", err)
		}

		if record != nil {
			logger.Debug("Daily idea already exists", "date", record.Date, "idea_id", record.IdeaID)
		} else {
			logger.Info("Daily idea generation in progress")
		}
		return nil
	}
}

// isFinal reports errors that a retry of the same task cannot fix.
func isFinal(err error) bool {
	for _, target := range []error{
		analysis.ErrNotFound,
		analysis.ErrForbidden,
		analysis.ErrQuotaExhausted,
		analysis.ErrProviderFatal,
		analysis.ErrGenerationInProgress,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		retried, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
			"retry_count", retried,
			"max_retry", maxRetry,
		)

		// Check if this is the final failure (task will move to dead letter queue)
		if retried >= maxRetry {
			logger.Error(
				"Task moved to dead letter queue (all retries exhausted)",
				"task_type", task.Type(),
				"payload", string(task.Payload()),
			)
		}
	}
}
