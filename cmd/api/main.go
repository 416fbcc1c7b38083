package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pressly/goose/v3"

	"github.com/authgate/server/internal/auth"
	"github.com/authgate/server/internal/config"
	"github.com/authgate/server/internal/db"
	"github.com/authgate/server/internal/gate"
	httphandler "github.com/authgate/server/internal/http"
	"github.com/authgate/server/internal/http/handlers"
	"github.com/authgate/server/internal/mail"
	"github.com/authgate/server/internal/repo"
	"github.com/authgate/server/internal/routes"
	"github.com/authgate/server/internal/twofactor"
)

func main() {
	// .env is optional; real env vars override.
	_ = godotenv.Load(".env")

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx := context.Background()

	logger.Info("connecting to database", slog.String("dsn", db.RedactDSN(cfg.DatabaseURL)))
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer database.Close()

	if err := runMigrations(database); err != nil {
		logger.Error("run migrations", slog.Any("error", err))
		os.Exit(1)
	}

	userRepo := repo.NewUserRepo(database)
	tokenRepo := repo.NewTwoFactorRepo(database)
	confirmationRepo := repo.NewConfirmationRepo(database)

	var mailer mail.Mailer
	if cfg.SMTP.Addr != "" {
		mailer = mail.NewSMTPMailer(cfg.SMTP.Addr, cfg.SMTP.From, cfg.SMTP.Username, cfg.SMTP.Password)
	} else {
		mailer = &mail.LogMailer{Logger: logger}
	}

	twoFactorService := twofactor.NewService(tokenRepo, userRepo, mailer, cfg.TwoFactor.TTL, cfg.TwoFactor.MaxAttempts)
	sessionService := auth.NewSessionService(cfg.Session.Secret, cfg.Session.TTL, cfg.Session.Cookie, !cfg.DevMode, confirmationRepo)
	authService := auth.NewService(userRepo, twoFactorService, sessionService)

	requestGate := gate.New(routes.Default(), cfg.Routes.LoginPage, cfg.Routes.LoginRedirect)

	authHandler := handlers.NewAuthHandler(authService, sessionService, logger)
	router := httphandler.NewRouter(authHandler, sessionService, requestGate)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		logger.Info("server starting", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server exited")
}

// runMigrations runs database migrations using goose
func runMigrations(database *sql.DB) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	migrationDir := "internal/db/migrations"
	if info, err := os.Stat(migrationDir); err != nil || !info.IsDir() {
		return fmt.Errorf("migrations directory not found (run from the module root)")
	}

	if err := goose.Up(database, migrationDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}
