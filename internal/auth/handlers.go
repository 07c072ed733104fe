package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/jimdaga/ideaforge/internal/models"
	"github.com/jimdaga/ideaforge/internal/quota"
	"github.com/jimdaga/ideaforge/internal/store"
	"github.com/markbates/goth/gothic"
)

// HandleLogin initiates the Google OAuth flow
func HandleLogin(c *gin.Context) {
	// Gothic requires the "provider" query parameter
	q := c.Request.URL.Query()
	q.Add("provider", "google")
	c.Request.URL.RawQuery = q.Encode()

	gothic.BeginAuthHandler(c.Writer, c.Request)
}

// HandleLoginPage tells unauthenticated clients where to sign in
func HandleLoginPage(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"login_url": "/auth/google",
		"error":     c.Query("error"),
	})
}

// HandleCallback completes the OAuth flow, upserts the user, and stores info in session
func HandleCallback(st *store.Store, ledger *quota.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Gothic requires the "provider" query parameter
		q := c.Request.URL.Query()
		q.Add("provider", "google")
		c.Request.URL.RawQuery = q.Encode()

		gothUser, err := gothic.CompleteUserAuth(c.Writer, c.Request)
		if err != nil {
			slog.Error("Auth error", "error", err)
			c.Redirect(http.StatusFound, "/login?error=auth_failed")
			return
		}

		user, err := UpsertUser(c.Request.Context(), st, ledger, gothUser.Email, gothUser.Name)
		if err != nil {
			slog.Error("Failed to upsert user", "email", gothUser.Email, "error", err)
			c.Redirect(http.StatusFound, "/login?error=user_failed")
			return
		}

		// Store user info in session
		session := sessions.Default(c)
		session.Set(KeyUserID, user.ID)
		session.Set(KeyUserEmail, user.Email)
		session.Set(KeyUserName, user.Name)
		session.Set("user_avatar", gothUser.AvatarURL)

		if err := session.Save(); err != nil {
			slog.Error("Session save error", "error", err)
			c.Redirect(http.StatusFound, "/login?error=session_failed")
			return
		}

		slog.Info("User authenticated", "user_id", user.ID, "email", user.Email)
		c.Redirect(http.StatusFound, "/")
	}
}

// UpsertUser records a login. New users start with a full daily allotment
// stamped now, so their first request does not trigger a reset.
func UpsertUser(ctx context.Context, st *store.Store, ledger *quota.Ledger, email, name string) (*models.User, error) {
	now := time.Now()

	user, err := st.GetUserByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		user = ledger.NewUser(email, name)
		user.LastLoginAt = &now
		if err := st.CreateUser(ctx, user); err != nil {
			return nil, fmt.Errorf("failed to create user: %w", err)
		}
		return user, nil
	}
	if err != nil {
		return nil, err
	}

	if err := st.RecordLogin(ctx, user.ID, name, now); err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	user.Name = name
	user.LastLoginAt = &now
	return user, nil
}

// HandleLogout clears the session and redirects to login
func HandleLogout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()

	if err := session.Save(); err != nil {
		slog.Error("Session clear error", "error", err)
	}

	c.Redirect(http.StatusFound, "/login")
}
