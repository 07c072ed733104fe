package database

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jimdaga/ideaforge/internal/models"
	"github.com/jimdaga/ideaforge/internal/quota"
	"github.com/jimdaga/ideaforge/internal/store"
)

// DevUserEmail is the account created by SeedDevData.
const DevUserEmail = "dev@ideaforge.local"

// SeedDevData creates a development user with a full daily allotment and one
// DRAFT idea. It does nothing if the dev user already exists.
func SeedDevData(ctx context.Context, st *store.Store, ledger *quota.Ledger) error {
	_, err := st.GetUserByEmail(ctx, DevUserEmail)
	if err == nil {
		slog.Info("Seed data already exists, skipping")
		return nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	return st.Transaction(ctx, func(tx *store.Store) error {
		user := ledger.NewUser(DevUserEmail, "Dev User")
		if err := tx.CreateUser(ctx, user); err != nil {
			return err
		}

		idea := &models.Idea{
			UserID:      user.ID,
			Title:       "Neighborhood Tool Library",
			OneLiner:    "Borrow a drill instead of buying one",
			Description: "An app where neighbors list tools they own and lend them out with deposits held in escrow.",
			Attachments: []models.Attachment{
				{Type: models.AttachmentVideoLink, URL: "https://www.youtube.com/watch?v=dQw4w9WgXcQ"},
			},
		}
		if err := tx.CreateIdea(ctx, idea); err != nil {
			return err
		}

		slog.Info("Seeded dev data", "user_id", user.ID, "idea_id", idea.ID)
		return nil
	})
}
