// Package notify tells users their analysis is ready.
package notify

import (
	"context"
	"log/slog"
)

// Notifier delivers analysis-complete notifications. Implementations are
// best-effort; callers log failures and carry on.
type Notifier interface {
	NotifyAnalysisComplete(ctx context.Context, email, ideaTitle string, ideaID uint) error
}

// LogNotifier only logs. It is used when no delivery channel is configured.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// NotifyAnalysisComplete logs the notification that would have been sent
func (n *LogNotifier) NotifyAnalysisComplete(ctx context.Context, email, ideaTitle string, ideaID uint) error {
	n.logger.Info("Analysis complete notification (log only)",
		"email", email,
		"idea_id", ideaID,
		"idea_title", ideaTitle,
	)
	return nil
}
