package quota_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jimdaga/ideaforge/internal/models"
	"github.com/jimdaga/ideaforge/internal/quota"
	"github.com/jimdaga/ideaforge/internal/store"
	"github.com/jimdaga/ideaforge/internal/store/storetest"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newUser(t *testing.T, s *store.Store, credits int, lastReset time.Time) *models.User {
	t.Helper()
	user := &models.User{
		Email:           "founder@example.com",
		Credits:         credits,
		LastCreditReset: lastReset,
	}
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

func TestCheckAndResetByCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)

	tests := []struct {
		name      string
		lastReset time.Time
		now       time.Time
		wantReset bool
	}{
		{
			name:      "same day, hours apart",
			lastReset: time.Date(2026, 3, 10, 0, 5, 0, 0, loc),
			now:       time.Date(2026, 3, 10, 23, 55, 0, 0, loc),
			wantReset: false,
		},
		{
			name:      "just after midnight",
			lastReset: time.Date(2026, 3, 10, 23, 59, 0, 0, loc),
			now:       time.Date(2026, 3, 11, 0, 1, 0, 0, loc),
			wantReset: true,
		},
		{
			name:      "previous year",
			lastReset: time.Date(2025, 12, 31, 12, 0, 0, 0, loc),
			now:       time.Date(2026, 1, 1, 9, 0, 0, 0, loc),
			wantReset: true,
		},
		{
			name:      "utc date differs but local date is the same",
			lastReset: time.Date(2026, 3, 9, 23, 30, 0, 0, time.UTC), // 01:30 on the 10th locally
			now:       time.Date(2026, 3, 10, 20, 0, 0, 0, loc),
			wantReset: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := storetest.Open(t)
			user := newUser(t, s, 0, tt.lastReset)
			user.CreditsUsed = 5

			ledger := quota.NewLedger(s, quota.WithLocation(loc), quota.WithClock(fixedClock(tt.now)))
			got, err := ledger.CheckAndReset(context.Background(), user)
			if err != nil {
				t.Fatalf("check and reset: %v", err)
			}

			if tt.wantReset {
				if got.Credits != 3 {
					t.Errorf("expected credits=3 after reset, got %d", got.Credits)
				}
				if !got.LastCreditReset.Equal(tt.now) {
					t.Errorf("expected lastCreditReset=%s, got %s", tt.now, got.LastCreditReset)
				}
				stored, _ := s.GetUser(context.Background(), user.ID)
				if stored.Credits != 3 {
					t.Errorf("expected persisted credits=3, got %d", stored.Credits)
				}
			} else {
				if got.Credits != 0 {
					t.Errorf("expected credits unchanged at 0, got %d", got.Credits)
				}
				if got != user {
					t.Error("expected the same user to be returned when no reset is due")
				}
			}
		})
	}
}

func TestNewUserDoesNotResetOnFirstUse(t *testing.T) {
	s, _ := storetest.Open(t)
	now := time.Date(2026, 5, 4, 15, 0, 0, 0, time.UTC)
	ledger := quota.NewLedger(s, quota.WithLocation(time.UTC), quota.WithClock(fixedClock(now)))

	user := ledger.NewUser("new@example.com", "New")
	if err := s.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if _, err := ledger.Consume(context.Background(), user); err != nil {
		t.Fatalf("consume: %v", err)
	}
	user, _ = s.GetUser(context.Background(), user.ID)

	got, err := ledger.CheckAndReset(context.Background(), user)
	if err != nil {
		t.Fatalf("check and reset: %v", err)
	}
	if got.Credits != 2 {
		t.Errorf("expected 2 credits left without reset, got %d", got.Credits)
	}
}

func TestConsumeFailsExactlyAtZero(t *testing.T) {
	s, _ := storetest.Open(t)
	ctx := context.Background()
	ledger := quota.NewLedger(s)
	user := newUser(t, s, 1, time.Now())

	if !ledger.HasCredit(user) {
		t.Fatal("expected user with one credit to have credit")
	}

	updated, err := ledger.Consume(ctx, user)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if updated.Credits != 0 || updated.CreditsUsed != 1 {
		t.Errorf("expected credits=0 used=1, got credits=%d used=%d", updated.Credits, updated.CreditsUsed)
	}
	if ledger.HasCredit(updated) {
		t.Error("expected no credit at zero")
	}

	_, err = ledger.Consume(ctx, updated)
	if !errors.Is(err, quota.ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
	stored, _ := s.GetUser(ctx, user.ID)
	if stored.Credits != 0 {
		t.Errorf("credits went below zero: %d", stored.Credits)
	}
}

func TestUnlimitedUserIsNeverResetOrDebited(t *testing.T) {
	s, _ := storetest.Open(t)
	ctx := context.Background()
	sys, err := s.FindOrCreateSystemUser(ctx, "daily@ideaforge.local", "Daily", 1_000_000)
	if err != nil {
		t.Fatalf("system user: %v", err)
	}

	tomorrow := time.Now().AddDate(0, 0, 2)
	ledger := quota.NewLedger(s, quota.WithClock(fixedClock(tomorrow)))

	got, err := ledger.CheckAndReset(ctx, sys)
	if err != nil {
		t.Fatalf("check and reset: %v", err)
	}
	if got.Credits != 1_000_000 {
		t.Errorf("expected unlimited balance untouched, got %d", got.Credits)
	}

	got, err = ledger.Consume(ctx, got)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	stored, _ := s.GetUser(ctx, sys.ID)
	if stored.Credits != 1_000_000 || stored.CreditsUsed != 0 {
		t.Errorf("expected no debit, got credits=%d used=%d", stored.Credits, stored.CreditsUsed)
	}
}

func TestCheckAndResetFromStaleCopiesResetsOnce(t *testing.T) {
	s, _ := storetest.Open(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	ledger := quota.NewLedger(s, quota.WithLocation(time.UTC), quota.WithClock(fixedClock(now)))
	user := newUser(t, s, 0, now.AddDate(0, 0, -1))

	// Two requests that both loaded the user before today's reset.
	a, _ := s.GetUser(ctx, user.ID)
	b, _ := s.GetUser(ctx, user.ID)

	reset, err := ledger.CheckAndReset(ctx, a)
	if err != nil {
		t.Fatalf("first reset: %v", err)
	}
	if reset.Credits != 3 {
		t.Fatalf("expected 3 credits after reset, got %d", reset.Credits)
	}
	for i := 0; i < 2; i++ {
		if _, err := ledger.Consume(ctx, reset); err != nil {
			t.Fatalf("consume %d: %v", i, err)
		}
	}

	got, err := ledger.CheckAndReset(ctx, b)
	if err != nil {
		t.Fatalf("second reset: %v", err)
	}
	if got.Credits != 1 || got.CreditsUsed != 2 {
		t.Errorf("expected credits=1 used=2 from the second caller, got credits=%d used=%d", got.Credits, got.CreditsUsed)
	}

	stored, _ := s.GetUser(ctx, user.ID)
	if stored.Credits != 1 || stored.CreditsUsed != 2 {
		t.Errorf("second same-day reset changed stored quota: credits=%d used=%d", stored.Credits, stored.CreditsUsed)
	}
}

func TestConcurrentCheckAndResetGrantsOneAllotment(t *testing.T) {
	s, _ := storetest.Open(t)
	ctx := context.Background()
	now := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)
	ledger := quota.NewLedger(s, quota.WithLocation(time.UTC), quota.WithClock(fixedClock(now)))
	user := newUser(t, s, 0, now.AddDate(0, 0, -1))

	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		stale := *user
		wg.Add(1)
		go func() {
			defer wg.Done()
			current, err := ledger.CheckAndReset(ctx, &stale)
			if err != nil {
				t.Errorf("check and reset: %v", err)
				return
			}
			if _, err := ledger.Consume(ctx, current); err != nil && !errors.Is(err, quota.ErrQuotaExhausted) {
				t.Errorf("consume: %v", err)
			}
		}()
	}
	wg.Wait()

	stored, _ := s.GetUser(ctx, user.ID)
	if stored.CreditsUsed != 3 || stored.Credits != 0 {
		t.Errorf("expected exactly one allotment spent (credits=0 used=3), got credits=%d used=%d", stored.Credits, stored.CreditsUsed)
	}
}
