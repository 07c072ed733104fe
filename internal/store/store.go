// Package store persists users, ideas, analyses and daily idea records with GORM.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimdaga/ideaforge/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNoCredit is returned by ConsumeCredit when the user has no credits left.
	ErrNoCredit = errors.New("no credit remaining")
)

// Store is the GORM-backed record store. Every method is atomic at the
// single-record level; use Transaction to group writes.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an open GORM connection
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AutoMigrate creates or updates tables for every model the store manages.
// Production databases use the SQL migrations in internal/database instead.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Idea{},
		&models.Attachment{},
		&models.Analysis{},
		&models.DailyIdea{},
	)
}

// Transaction runs fn inside a database transaction. fn must only use the
// Store it is given; the transaction is rolled back if fn returns an error.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// GetUser loads a user by ID
func (s *Store) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// GetUserByEmail loads a user by email address
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, translate(err)
	}
	return &user, nil
}

// CreateUser inserts a new user
func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	return s.db.WithContext(ctx).Create(user).Error
}

// RecordLogin updates the profile fields a sign-in refreshes. Quota columns
// are left alone so a login cannot undo a concurrent debit.
func (s *Store) RecordLogin(ctx context.Context, userID uint, name string, at time.Time) error {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"name":          name,
			"last_login_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record login: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResetCredits sets the user's credits to credits and stamps the reset time,
// but only if due still holds for the stored last reset. The row is locked and
// re-read first, so of several callers holding the same stale user only one
// resets. The current user is returned whether or not a reset happened.
func (s *Store) ResetCredits(ctx context.Context, userID uint, credits int, now time.Time, due func(lastReset time.Time) bool) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&user, userID).Error; err != nil {
			return translate(err)
		}
		if !due(user.LastCreditReset) {
			return nil
		}
		err := tx.Model(&models.User{}).
			Where("id = ?", userID).
			Updates(map[string]interface{}{
				"credits":           credits,
				"last_credit_reset": now,
			}).Error
		if err != nil {
			return fmt.Errorf("failed to reset credits: %w", err)
		}
		user.Credits = credits
		user.LastCreditReset = now
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ConsumeCredit atomically takes one credit from the user. The decrement is a
// single conditional UPDATE so concurrent callers can never drive credits
// below zero; ErrNoCredit is returned when nothing was left to take.
func (s *Store) ConsumeCredit(ctx context.Context, userID uint) (*models.User, error) {
	result := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ? AND credits > 0", userID).
		Updates(map[string]interface{}{
			"credits":      gorm.Expr("credits - 1"),
			"credits_used": gorm.Expr("credits_used + 1"),
		})
	if result.Error != nil {
		return nil, fmt.Errorf("failed to consume credit: %w", result.Error)
	}

	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if result.RowsAffected == 0 {
		return user, ErrNoCredit
	}
	return user, nil
}

// FindOrCreateSystemUser returns the user with the given email, creating it
// with the system role and the given credit balance if it does not exist.
func (s *Store) FindOrCreateSystemUser(ctx context.Context, email, name string, credits int) (*models.User, error) {
	user, err := s.GetUserByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to look up system user: %w", err)
	}

	user = &models.User{
		Email:           email,
		Name:            name,
		Role:            models.RoleSystem,
		Credits:         credits,
		LastCreditReset: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create system user: %w", err)
	}

	// The column default opts users in; the system account never gets mail.
	if err := s.db.WithContext(ctx).Model(user).Update("notify_on_complete", false).Error; err != nil {
		return nil, fmt.Errorf("failed to update system user: %w", err)
	}
	user.NotifyOnComplete = false
	return user, nil
}

// CreateIdea inserts an idea together with its attachments
func (s *Store) CreateIdea(ctx context.Context, idea *models.Idea) error {
	if idea.Status == "" {
		idea.Status = models.IdeaStatusDraft
	}
	for i := range idea.Attachments {
		idea.Attachments[i].Position = i
	}
	return s.db.WithContext(ctx).Create(idea).Error
}

// GetIdea loads an idea with its attachments in their original order
func (s *Store) GetIdea(ctx context.Context, id uint) (*models.Idea, error) {
	var idea models.Idea
	err := s.db.WithContext(ctx).
		Preload("Attachments", func(db *gorm.DB) *gorm.DB {
			return db.Order("position ASC, id ASC")
		}).
		First(&idea, id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &idea, nil
}

// SetIdeaStatus moves an idea to a new status, recording errorMessage
func (s *Store) SetIdeaStatus(ctx context.Context, ideaID uint, status, errorMessage string) error {
	result := s.db.WithContext(ctx).
		Model(&models.Idea{}).
		Where("id = ?", ideaID).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errorMessage,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update idea status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddAttachment appends an attachment after the idea's existing ones
func (s *Store) AddAttachment(ctx context.Context, attachment *models.Attachment) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Attachment{}).
		Where("idea_id = ?", attachment.IdeaID).
		Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count attachments: %w", err)
	}
	attachment.Position = int(count)
	return s.db.WithContext(ctx).Create(attachment).Error
}

// CreateAnalysis inserts an analysis. Creation is keyed on GenerationID: if a
// row for the same generation already exists it is loaded into analysis
// instead of inserting a duplicate.
func (s *Store) CreateAnalysis(ctx context.Context, analysis *models.Analysis) error {
	if analysis.GenerationID == "" {
		return fmt.Errorf("analysis generation id is required")
	}
	return s.db.WithContext(ctx).
		Where(models.Analysis{GenerationID: analysis.GenerationID}).
		FirstOrCreate(analysis).Error
}

// GetLatestAnalysis returns the most recent analysis for an idea
func (s *Store) GetLatestAnalysis(ctx context.Context, ideaID uint) (*models.Analysis, error) {
	var analysis models.Analysis
	err := s.db.WithContext(ctx).
		Where("idea_id = ?", ideaID).
		Order("created_at DESC, id DESC").
		First(&analysis).Error
	if err != nil {
		return nil, translate(err)
	}
	return &analysis, nil
}

// GetAnalysis loads an analysis by ID
func (s *Store) GetAnalysis(ctx context.Context, id uint) (*models.Analysis, error) {
	var analysis models.Analysis
	if err := s.db.WithContext(ctx).First(&analysis, id).Error; err != nil {
		return nil, translate(err)
	}
	return &analysis, nil
}

// UpdateAnalysisSection writes one named section column together with the
// raw output it mirrors.
func (s *Store) UpdateAnalysisSection(ctx context.Context, analysis *models.Analysis, section string) error {
	value, ok := analysis.Section(section)
	if !ok {
		return fmt.Errorf("analysis has no value for section %s", section)
	}
	result := s.db.WithContext(ctx).
		Model(analysis).
		Updates(map[string]interface{}{
			section:      value,
			"raw_output": analysis.RawOutput,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update analysis section: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// FindDailyIdea returns the daily idea record for a calendar date
func (s *Store) FindDailyIdea(ctx context.Context, date string) (*models.DailyIdea, error) {
	var daily models.DailyIdea
	if err := s.db.WithContext(ctx).Where("date = ?", date).First(&daily).Error; err != nil {
		return nil, translate(err)
	}
	return &daily, nil
}

// CreateDailyIdea inserts the record linking a date to its idea and analysis
func (s *Store) CreateDailyIdea(ctx context.Context, daily *models.DailyIdea) error {
	return s.db.WithContext(ctx).Create(daily).Error
}
