// Package dailyidea generates one "idea of the day" analysis per calendar date.
package dailyidea

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jimdaga/ideaforge/internal/keylock"
	"github.com/jimdaga/ideaforge/internal/models"
	"github.com/jimdaga/ideaforge/internal/store"
)

// System account that owns daily ideas
const (
	SystemUserEmail = "daily@ideaforge.local"
	SystemUserName  = "Idea of the Day"
	systemCredits   = 1_000_000
)

// DefaultTimeout bounds a whole background generation.
const DefaultTimeout = 10 * time.Minute

// Orchestrator runs a full analysis for an idea.
type Orchestrator interface {
	Generate(ctx context.Context, ideaID, userID uint) (*models.Analysis, error)
}

// Scheduler produces at most one daily idea per date. Concurrent triggers for
// the same date are collapsed onto a single background generation.
type Scheduler struct {
	store        *store.Store
	orchestrator Orchestrator
	templates    []Template
	locks        *keylock.Set
	location     *time.Location
	now          func() time.Time
	timeout      time.Duration
	logger       *slog.Logger
	wg           sync.WaitGroup
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithLocation sets the timezone that defines calendar dates.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) { s.location = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// WithTimeout bounds each background generation.
func WithTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

// WithTemplates replaces the embedded templates.
func WithTemplates(templates []Template) Option {
	return func(s *Scheduler) { s.templates = templates }
}

// NewScheduler creates a scheduler that generates through orchestrator
func NewScheduler(st *store.Store, orchestrator Orchestrator, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		store:        st,
		orchestrator: orchestrator,
		locks:        keylock.New(),
		location:     time.Local,
		now:          time.Now,
		timeout:      DefaultTimeout,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	if len(s.templates) == 0 {
		templates, err := DefaultTemplates()
		if err != nil {
			return nil, err
		}
		s.templates = templates
	}
	return s, nil
}

// Today returns the current date key.
func (s *Scheduler) Today() string {
	return s.now().In(s.location).Format(models.DailyIdeaDateLayout)
}

// IsGenerating reports whether a generation for date is in flight.
func (s *Scheduler) IsGenerating(date string) bool {
	return s.locks.Held(date)
}

// InFlight lists the dates currently being generated, oldest first.
func (s *Scheduler) InFlight() []string {
	return s.locks.Keys()
}

// EnsureTodayGenerated returns today's record if it exists. Otherwise it
// starts a background generation, unless one is already running, and returns
// nil; callers poll again later.
func (s *Scheduler) EnsureTodayGenerated(ctx context.Context) (*models.DailyIdea, error) {
	now := s.now().In(s.location)
	date := now.Format(models.DailyIdeaDateLayout)

	daily, err := s.store.FindDailyIdea(ctx, date)
	if err == nil {
		return daily, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("failed to look up daily idea: %w", err)
	}

	release, ok := s.locks.TryAcquire(date)
	if !ok {
		s.logger.Debug("Daily idea already generating", "date", date)
		return nil, nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer release()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Daily idea generation panicked", "date", date, "panic", fmt.Sprint(r))
			}
		}()

		genCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
		defer cancel()

		if err := s.generate(genCtx, now); err != nil {
			s.logger.Error("Daily idea generation failed", "date", date, "error", err.Error())
		}
	}()

	s.logger.Info("Daily idea generation started", "date", date)
	return nil, nil
}

// Wait blocks until every background generation has finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

func (s *Scheduler) generate(ctx context.Context, now time.Time) error {
	date := now.Format(models.DailyIdeaDateLayout)

	// A generation that finished between the caller's lookup and our
	// acquiring the key has already written the record.
	if _, err := s.store.FindDailyIdea(ctx, date); err == nil {
		return nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	user, err := s.store.FindOrCreateSystemUser(ctx, SystemUserEmail, SystemUserName, systemCredits)
	if err != nil {
		return err
	}

	tmpl := TemplateFor(s.templates, now)
	idea := &models.Idea{
		UserID:      user.ID,
		Title:       tmpl.Title,
		OneLiner:    tmpl.OneLiner,
		Description: tmpl.Description,
	}
	if err := s.store.CreateIdea(ctx, idea); err != nil {
		return fmt.Errorf("failed to create daily idea: %w", err)
	}

	analysis, err := s.orchestrator.Generate(ctx, idea.ID, user.ID)
	if err != nil {
		return err
	}

	daily := &models.DailyIdea{
		Date:        date,
		IdeaID:      idea.ID,
		AnalysisID:  analysis.ID,
		TemplateKey: tmpl.Key,
	}
	if err := s.store.CreateDailyIdea(ctx, daily); err != nil {
		return fmt.Errorf("failed to save daily idea record: %w", err)
	}

	s.logger.Info("Daily idea generated",
		"date", date,
		"template", tmpl.Key,
		"idea_id", idea.ID,
		"analysis_id", analysis.ID,
	)
	return nil
}
