package database

import (
	"context"
	"testing"

	"github.com/jimdaga/ideaforge/internal/models"
	"github.com/jimdaga/ideaforge/internal/quota"
	"github.com/jimdaga/ideaforge/internal/store/storetest"
)

func TestSeedDevData(t *testing.T) {
	st, db := storetest.Open(t)
	ledger := quota.NewLedger(st, quota.WithAllotment(5))
	ctx := context.Background()

	if err := SeedDevData(ctx, st, ledger); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := SeedDevData(ctx, st, ledger); err != nil {
		t.Fatalf("second seed: %v", err)
	}

	user, err := st.GetUserByEmail(ctx, DevUserEmail)
	if err != nil {
		t.Fatalf("dev user missing: %v", err)
	}
	if user.Credits != 5 {
		t.Errorf("expected full allotment of 5, got %d", user.Credits)
	}

	var ideas []models.Idea
	if err := db.Where("user_id = ?", user.ID).Find(&ideas).Error; err != nil {
		t.Fatalf("list ideas: %v", err)
	}
	if len(ideas) != 1 {
		t.Fatalf("expected seeding to be idempotent with 1 idea, got %d", len(ideas))
	}
	if ideas[0].Status != models.IdeaStatusDraft {
		t.Errorf("expected DRAFT idea, got %s", ideas[0].Status)
	}
}

func TestWithUTC(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://u:p@localhost:5432/ideaforge", "postgres://u:p@localhost:5432/ideaforge?TimeZone=UTC"},
		{"postgres://u:p@localhost:5432/ideaforge?TimeZone=America%2FChicago", "postgres://u:p@localhost:5432/ideaforge?TimeZone=America%2FChicago"},
	}
	for _, tt := range tests {
		got, err := withUTC(tt.in)
		if err != nil {
			t.Fatalf("withUTC(%q): %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("withUTC(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestInitRequiresURL(t *testing.T) {
	if _, err := Init("", Pool{}); err == nil {
		t.Error("expected error for empty database URL")
	}
}
