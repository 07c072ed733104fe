// Package analysis drives ideas through generation and merges regenerated
// report sections.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jimdaga/ideaforge/internal/keylock"
	"github.com/jimdaga/ideaforge/internal/models"
	"github.com/jimdaga/ideaforge/internal/notify"
	"github.com/jimdaga/ideaforge/internal/provider"
	"github.com/jimdaga/ideaforge/internal/quota"
	"github.com/jimdaga/ideaforge/internal/store"
)

var (
	ErrNotFound             = errors.New("not found")
	ErrForbidden            = errors.New("idea belongs to another user")
	ErrNoAnalysis           = errors.New("idea has no analysis yet")
	ErrUnknownSection       = errors.New("unknown analysis section")
	ErrGenerationInProgress = errors.New("analysis already in progress for this idea")

	// Re-exported so callers can classify every failure from this package.
	ErrQuotaExhausted = quota.ErrQuotaExhausted
	ErrProviderFatal  = provider.ErrProviderFatal
)

// nestedSections are unwrapped when the provider answers {"<section>": value}.
var nestedSections = map[string]bool{
	models.SectionCompetitors: true,
	models.SectionRoadmap:     true,
	models.SectionSWOT:        true,
}

// Generator produces analysis content from prompts.
type Generator interface {
	Generate(ctx context.Context, prompt string) (provider.Result, error)
	RegenerateSection(ctx context.Context, prompt, section string) (any, error)
}

// Service is the analysis orchestrator and section regenerator.
type Service struct {
	store     *store.Store
	ledger    *quota.Ledger
	generator Generator
	notifier  notify.Notifier
	locks     *keylock.Set
	logger    *slog.Logger
}

// NewService wires the orchestrator. notifier may be nil.
func NewService(st *store.Store, ledger *quota.Ledger, generator Generator, notifier notify.Notifier, logger *slog.Logger) *Service {
	return &Service{
		store:     st,
		ledger:    ledger,
		generator: generator,
		notifier:  notifier,
		locks:     keylock.New(),
		logger:    logger,
	}
}

// InProgress reports whether a generation or regeneration is running for the idea.
func (s *Service) InProgress(ideaID uint) bool {
	return s.locks.Held(ideaKey(ideaID))
}

// Generate runs a full analysis of the idea for its owner.
//
// Quota and ownership are checked before anything is written, so a denied
// request leaves the idea untouched and costs nothing. On success the new
// analysis, the COMPLETED status and the credit debit commit together. On
// failure the idea is marked FAILED and no credit is taken.
func (s *Service) Generate(ctx context.Context, ideaID, userID uint) (*models.Analysis, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, notFound("user", userID, err)
	}
	user, err = s.ledger.CheckAndReset(ctx, user)
	if err != nil {
		return nil, err
	}
	if !s.ledger.HasCredit(user) {
		return nil, ErrQuotaExhausted
	}

	idea, err := s.loadOwnedIdea(ctx, ideaID, userID)
	if err != nil {
		return nil, err
	}

	release, ok := s.locks.TryAcquire(ideaKey(ideaID))
	if !ok {
		return nil, ErrGenerationInProgress
	}
	defer release()

	if err := s.store.SetIdeaStatus(ctx, ideaID, models.IdeaStatusAnalyzing, ""); err != nil {
		return nil, err
	}

	s.logger.Info("Generating analysis", "idea_id", ideaID, "user_id", userID)

	result, err := s.generator.Generate(ctx, provider.BuildAnalysisPrompt(idea))
	if err != nil {
		s.markFailed(ctx, ideaID, err)
		return nil, fmt.Errorf("generate analysis for idea %d: %w", ideaID, err)
	}

	analysis, err := models.NewAnalysis(ideaID, userID, uuid.NewString(), result)
	if err != nil {
		s.markFailed(ctx, ideaID, err)
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.CreateAnalysis(ctx, analysis); err != nil {
			return fmt.Errorf("failed to save analysis: %w", err)
		}
		if err := tx.SetIdeaStatus(ctx, ideaID, models.IdeaStatusCompleted, ""); err != nil {
			return err
		}
		_, err := s.ledger.With(tx).Consume(ctx, user)
		return err
	})
	if err != nil {
		s.markFailed(ctx, ideaID, err)
		return nil, err
	}

	s.logger.Info("Analysis completed",
		"idea_id", ideaID,
		"analysis_id", analysis.ID,
		"generation_id", analysis.GenerationID,
	)

	s.notifyOwner(ctx, user, idea)
	return analysis, nil
}

// RegenerateSection replaces one section of the idea's latest analysis. Idea
// status and quota are not touched.
func (s *Service) RegenerateSection(ctx context.Context, ideaID, userID uint, section string) (*models.Analysis, error) {
	if !models.IsSection(section) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}

	idea, err := s.loadOwnedIdea(ctx, ideaID, userID)
	if err != nil {
		return nil, err
	}

	// Held so two merges cannot interleave their raw_output writes.
	release, ok := s.locks.TryAcquire(ideaKey(ideaID))
	if !ok {
		return nil, ErrGenerationInProgress
	}
	defer release()

	analysis, err := s.store.GetLatestAnalysis(ctx, ideaID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoAnalysis
	}
	if err != nil {
		return nil, err
	}

	current, _ := analysis.Section(section)
	prompt := provider.BuildSectionPrompt(idea, section, json.RawMessage(current))

	value, err := s.generator.RegenerateSection(ctx, prompt, section)
	if err != nil {
		return nil, fmt.Errorf("regenerate %s for idea %d: %w", section, ideaID, err)
	}

	if err := analysis.SetSection(section, sectionValue(section, value)); err != nil {
		return nil, err
	}
	if err := s.store.UpdateAnalysisSection(ctx, analysis, section); err != nil {
		return nil, err
	}

	s.logger.Info("Analysis section regenerated",
		"idea_id", ideaID,
		"analysis_id", analysis.ID,
		"section", section,
	)
	return analysis, nil
}

// LatestAnalysis returns the current analysis of an idea owned by userID.
func (s *Service) LatestAnalysis(ctx context.Context, ideaID, userID uint) (*models.Analysis, error) {
	if _, err := s.loadOwnedIdea(ctx, ideaID, userID); err != nil {
		return nil, err
	}
	analysis, err := s.store.GetLatestAnalysis(ctx, ideaID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoAnalysis
	}
	return analysis, err
}

func (s *Service) loadOwnedIdea(ctx context.Context, ideaID, userID uint) (*models.Idea, error) {
	idea, err := s.store.GetIdea(ctx, ideaID)
	if err != nil {
		return nil, notFound("idea", ideaID, err)
	}
	if idea.UserID != userID {
		return nil, ErrForbidden
	}
	return idea, nil
}

// markFailed records the failure even if the caller's context is already done.
func (s *Service) markFailed(ctx context.Context, ideaID uint, cause error) {
	if err := s.store.SetIdeaStatus(context.WithoutCancel(ctx), ideaID, models.IdeaStatusFailed, cause.Error()); err != nil {
		s.logger.Error("Failed to mark idea as failed",
			"idea_id", ideaID,
			"error", err.Error(),
		)
	}
	s.logger.Error("Analysis generation failed",
		"idea_id", ideaID,
		"error", cause.Error(),
	)
}

func (s *Service) notifyOwner(ctx context.Context, user *models.User, idea *models.Idea) {
	if s.notifier == nil || !user.NotifyOnComplete || user.Email == "" {
		return
	}
	if err := s.notifier.NotifyAnalysisComplete(ctx, user.Email, idea.Title, idea.ID); err != nil {
		s.logger.Warn("Failed to send completion notification",
			"idea_id", idea.ID,
			"user_id", user.ID,
			"error", err.Error(),
		)
	}
}

func sectionValue(section string, value any) any {
	if !nestedSections[section] {
		return value
	}
	if obj, ok := value.(map[string]any); ok {
		if inner, ok := obj[section]; ok {
			return inner
		}
	}
	return value
}

func notFound(kind string, id uint, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%s %d: %w", kind, id, ErrNotFound)
	}
	return err
}

func ideaKey(id uint) string {
	return fmt.Sprintf("idea:%d", id)
}
