package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StreamEmail is the Redis stream the email service consumes.
const StreamEmail = "notifications:email"

// SchemaVersionV1 tags every message so consumers can reject unknown layouts.
const SchemaVersionV1 = "v1"

// TemplateAnalysisComplete names the email the consumer renders.
const TemplateAnalysisComplete = "analysis_complete"

// EmailMessage is the payload published for the email service
type EmailMessage struct {
	Template  string `json:"template"`
	To        string `json:"to"`
	IdeaID    uint   `json:"idea_id"`
	IdeaTitle string `json:"idea_title"`
}

// StreamNotifier publishes notifications to a Redis stream
type StreamNotifier struct {
	rdb    *redis.Client
	stream string
	now    func() time.Time
}

// NewStreamNotifier connects to the Redis instance at redisURL
func NewStreamNotifier(redisURL string) (*StreamNotifier, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	return &StreamNotifier{
		rdb:    redis.NewClient(opts),
		stream: StreamEmail,
		now:    time.Now,
	}, nil
}

// NotifyAnalysisComplete publishes an analysis_complete email request
func (n *StreamNotifier) NotifyAnalysisComplete(ctx context.Context, email, ideaTitle string, ideaID uint) error {
	args, err := n.xaddArgs(EmailMessage{
		Template:  TemplateAnalysisComplete,
		To:        email,
		IdeaID:    ideaID,
		IdeaTitle: ideaTitle,
	})
	if err != nil {
		return err
	}

	if err := n.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to publish to stream: %w", err)
	}
	return nil
}

func (n *StreamNotifier) xaddArgs(msg EmailMessage) (*redis.XAddArgs, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal notification: %w", err)
	}

	return &redis.XAddArgs{
		Stream: n.stream,
		MaxLen: 10000,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload":        string(payload),
			"published_at":   n.now().Unix(),
			"schema_version": SchemaVersionV1,
		},
	}, nil
}

// Close closes the Redis client connection
func (n *StreamNotifier) Close() error {
	return n.rdb.Close()
}
