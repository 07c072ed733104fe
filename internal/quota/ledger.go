// Package quota tracks the per-user daily generation allowance.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jimdaga/ideaforge/internal/models"
	"github.com/jimdaga/ideaforge/internal/store"
)

// DefaultAllotment is the number of generations a user gets per calendar day.
const DefaultAllotment = 3

// ErrQuotaExhausted is returned when a user has no generations left today.
var ErrQuotaExhausted = errors.New("daily generation quota exhausted")

// UserStore is the persistence the ledger needs.
type UserStore interface {
	ResetCredits(ctx context.Context, userID uint, credits int, now time.Time, due func(lastReset time.Time) bool) (*models.User, error)
	ConsumeCredit(ctx context.Context, userID uint) (*models.User, error)
}

// Ledger resets and debits daily credits. Day boundaries are calendar days in
// the ledger's location, not rolling 24-hour windows.
type Ledger struct {
	users     UserStore
	allotment int
	location  *time.Location
	now       func() time.Time
}

// Option configures a Ledger
type Option func(*Ledger)

// WithAllotment sets the number of credits granted each day.
func WithAllotment(n int) Option {
	return func(l *Ledger) { l.allotment = n }
}

// WithLocation sets the timezone whose midnight starts a new day.
func WithLocation(loc *time.Location) Option {
	return func(l *Ledger) { l.location = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// NewLedger creates a ledger over the given user store
func NewLedger(users UserStore, opts ...Option) *Ledger {
	l := &Ledger{
		users:     users,
		allotment: DefaultAllotment,
		location:  time.Local,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// With returns a copy of the ledger that persists through users, typically a
// transaction-scoped store.
func (l *Ledger) With(users UserStore) *Ledger {
	clone := *l
	clone.users = users
	return &clone
}

// Allotment returns the daily credit allotment.
func (l *Ledger) Allotment() int {
	return l.allotment
}

// NewUser builds a user who starts with a full allotment stamped now, so the
// first request of the day does not trigger a reset.
func (l *Ledger) NewUser(email, name string) *models.User {
	return &models.User{
		Email:            email,
		Name:             name,
		Role:             models.RoleUser,
		Credits:          l.allotment,
		LastCreditReset:  l.now(),
		NotifyOnComplete: true,
	}
}

// CheckAndReset restores the daily allotment if the user's last reset fell on
// an earlier calendar day. The user is returned unchanged otherwise.
//
// user may be stale. The store re-checks the stored reset time under a row
// lock, so a day's reset happens once and credits spent after it survive.
func (l *Ledger) CheckAndReset(ctx context.Context, user *models.User) (*models.User, error) {
	if user.Unlimited() {
		return user, nil
	}

	now := l.now()
	if !l.beforeToday(user.LastCreditReset, now) {
		return user, nil
	}

	current, err := l.users.ResetCredits(ctx, user.ID, l.allotment, now, func(last time.Time) bool {
		return l.beforeToday(last, now)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to reset credits: %w", err)
	}
	return current, nil
}

// HasCredit reports whether the user may start a generation.
func (l *Ledger) HasCredit(user *models.User) bool {
	return user.Unlimited() || user.Credits > 0
}

// Consume debits one credit from the user. Unlimited users are never debited.
func (l *Ledger) Consume(ctx context.Context, user *models.User) (*models.User, error) {
	if user.Unlimited() {
		return user, nil
	}

	updated, err := l.users.ConsumeCredit(ctx, user.ID)
	if errors.Is(err, store.ErrNoCredit) {
		return updated, ErrQuotaExhausted
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (l *Ledger) beforeToday(last, now time.Time) bool {
	ly, lm, ld := last.In(l.location).Date()
	ny, nm, nd := now.In(l.location).Date()
	if ly != ny {
		return ly < ny
	}
	if lm != nm {
		return lm < nm
	}
	return ld < nd
}
