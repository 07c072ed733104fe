package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/jimdaga/ideaforge/internal/auth"
	"github.com/jimdaga/ideaforge/internal/config"
	"github.com/jimdaga/ideaforge/internal/database"
	"github.com/jimdaga/ideaforge/internal/health"
	"github.com/jimdaga/ideaforge/internal/ideas"
	"github.com/jimdaga/ideaforge/internal/worker"
	"github.com/spf13/cobra"
)

var (
	runMigrations bool
	embedWorker   bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ideaforge",
		Short: "IdeaForge - AI analysis of startup ideas",
		Long: `IdeaForge accepts startup ideas, generates structured market analyses
with an AI provider, and publishes an Idea of the Day.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVar(&runMigrations, "migrate", true, "Apply pending database migrations on startup")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().BoolVar(&embedWorker, "embedded-worker", true, "Run the task worker and scheduler in-process when REDIS_URL is set")
	rootCmd.AddCommand(serveCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "worker",
		Short: "Run the standalone task worker and daily idea scheduler",
		RunE:  runWorker,
	})

	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	migrateCmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE:  runMigrateUp,
	})
	downCmd := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE:  runMigrateDown,
	}
	downCmd.Flags().Int("steps", 1, "Number of migrations to roll back")
	migrateCmd.AddCommand(downCmd)
	rootCmd.AddCommand(migrateCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Create development data",
		RunE:  runSeed,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setup() (*config.Config, *slog.Logger) {
	cfg := config.Load()
	logger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)
	return cfg, logger
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, logger := setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, runMigrations)
	if err != nil {
		return err
	}
	defer a.close()

	var enqueue func(ideaID, userID uint) error
	if cfg.RedisURL != "" {
		if err := worker.InitClient(cfg.RedisURL); err != nil {
			return fmt.Errorf("failed to init task client: %w", err)
		}
		defer worker.CloseClient()
		enqueue = worker.EnqueueGenerateAnalysis

		if embedWorker {
			stopWorker, err := worker.Start(cfg, a.analyses, a.daily)
			if err != nil {
				return err
			}
			defer stopWorker()

			stopScheduler, err := worker.StartScheduler(cfg)
			if err != nil {
				return err
			}
			defer stopScheduler()
		}
	} else {
		logger.Warn("REDIS_URL not set, async analysis and scheduled daily ideas disabled")
	}

	if _, err := a.daily.EnsureTodayGenerated(ctx); err != nil {
		logger.Warn("Daily idea check failed", "error", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(a, enqueue),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(a *app, enqueue func(ideaID, userID uint) error) *gin.Engine {
	if a.cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(a.cfg.SessionSecret))
	store.Options(auth.SessionOptions(a.cfg))
	r.Use(sessions.Sessions("ideaforge_session", store))

	r.GET("/health", gin.WrapF(health.Handler))
	r.GET("/ready", gin.WrapF(health.Ready(a.store)))

	auth.InitProviders(a.cfg)
	r.GET("/login", auth.HandleLoginPage)
	r.GET("/auth/google", auth.HandleLogin)
	r.GET("/auth/google/callback", auth.HandleCallback(a.store, a.ledger))
	r.POST("/logout", auth.HandleLogout)

	r.GET("/", auth.RequireAuth(), func(c *gin.Context) {
		userID, _ := auth.UserID(c)
		c.JSON(http.StatusOK, gin.H{
			"user_id": userID,
			"email":   c.GetString(auth.KeyUserEmail),
		})
	})

	var blobs ideas.BlobStore
	if a.blobs != nil {
		blobs = a.blobs
	}
	h := ideas.NewHandler(a.store, a.analyses, a.daily, a.ledger, blobs, enqueue, a.logger)

	api := r.Group("/api")
	h.RegisterPublicRoutes(api)
	h.RegisterRoutes(api.Group("", auth.RequireAuth()))

	return r
}

func runWorker(cmd *cobra.Command, args []string) error {
	cfg, logger := setup()
	if cfg.RedisURL == "" {
		return errors.New("REDIS_URL is required for the worker")
	}

	a, err := newApp(cmd.Context(), cfg, logger, runMigrations)
	if err != nil {
		return err
	}
	defer a.close()

	stopScheduler, err := worker.StartScheduler(cfg)
	if err != nil {
		return err
	}
	defer stopScheduler()

	// Blocks until SIGINT or SIGTERM.
	return worker.Run(cfg, a.analyses, a.daily)
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	cfg, _ := setup()
	db, err := database.Init(cfg.DatabaseURL, dbPool(cfg))
	if err != nil {
		return err
	}
	defer database.Close(db)
	return database.RunMigrations(db)
}

func runMigrateDown(cmd *cobra.Command, args []string) error {
	steps, _ := cmd.Flags().GetInt("steps")
	cfg, _ := setup()
	db, err := database.Init(cfg.DatabaseURL, dbPool(cfg))
	if err != nil {
		return err
	}
	defer database.Close(db)
	return database.RollbackMigrations(db, steps)
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, logger := setup()
	a, err := newApp(cmd.Context(), cfg, logger, runMigrations)
	if err != nil {
		return err
	}
	defer a.close()
	return database.SeedDevData(cmd.Context(), a.store, a.ledger)
}
