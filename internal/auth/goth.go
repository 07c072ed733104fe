// Package auth handles Google sign-in and session-based access control.
package auth

import (
	"log/slog"
	"net/http"

	ginsessions "github.com/gin-contrib/sessions"
	"github.com/gorilla/sessions"
	"github.com/jimdaga/ideaforge/internal/config"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
)

const sessionMaxAge = 86400 * 30

// SessionOptions returns the cookie settings for the app session.
func SessionOptions(cfg *config.Config) ginsessions.Options {
	return ginsessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.Env == "production",
		SameSite: http.SameSiteLaxMode,
	}
}

// InitProviders configures gothic and registers Google when credentials are
// present. It reports whether login is available.
func InitProviders(cfg *config.Config) bool {
	// Gothic keeps its own gorilla store; its default Secure=true breaks
	// plain-HTTP localhost.
	opts := SessionOptions(cfg)
	gothStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	gothStore.Options = &sessions.Options{
		Path:     opts.Path,
		MaxAge:   opts.MaxAge,
		HttpOnly: opts.HttpOnly,
		Secure:   opts.Secure,
		SameSite: opts.SameSite,
	}
	gothic.Store = gothStore

	if cfg.GoogleClientID == "" {
		slog.Warn("GOOGLE_CLIENT_ID not set, OAuth login will not work until credentials are configured")
		return false
	}

	goth.UseProviders(
		google.New(
			cfg.GoogleClientID,
			cfg.GoogleClientSecret,
			cfg.GoogleCallbackURL,
			"email",
			"profile",
		),
	)

	slog.Info("Goth providers initialized", "providers", "google")
	return true
}
