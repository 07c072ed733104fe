package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskGenerateAnalysis = "analysis:generate"
	TaskEnsureDailyIdea  = "daily_idea:ensure"
)

// Package-level Asynq client (singleton)
var client *asynq.Client

// InitClient initializes the global Asynq client for task enqueueing.
// Must be called before any EnqueueX functions.
func InitClient(redisURL string) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return err
	}

	client = asynq.NewClient(opt)
	return nil
}

// CloseClient closes the Asynq client connection gracefully.
func CloseClient() error {
	if client != nil {
		return client.Close()
	}
	return nil
}

type generateAnalysisPayload struct {
	IdeaID uint `json:"idea_id"`
	UserID uint `json:"user_id"`
}

// NewGenerateAnalysisTask builds an analysis generation task. Identical tasks
// enqueued within a minute are dropped.
func NewGenerateAnalysisTask(ideaID, userID uint) (*asynq.Task, error) {
	payload, err := json.Marshal(generateAnalysisPayload{IdeaID: ideaID, UserID: userID})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskGenerateAnalysis,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Retention(24*time.Hour),
		asynq.Unique(time.Minute),
	), nil
}

// EnqueueGenerateAnalysis enqueues generation of an idea's analysis.
func EnqueueGenerateAnalysis(ideaID, userID uint) error {
	if client == nil {
		return fmt.Errorf("task client not initialized")
	}

	task, err := NewGenerateAnalysisTask(ideaID, userID)
	if err != nil {
		return err
	}

	// An identical task already queued will report the same outcome.
	if _, err := client.Enqueue(task); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
		return err
	}
	return nil
}
