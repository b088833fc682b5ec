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

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"
	"mapcore.psimaps.org/internal/app"
	"mapcore.psimaps.org/internal/config"
	"mapcore.psimaps.org/internal/report"
	"mapcore.psimaps.org/internal/utils"
)

// Declare a string containing the application version number.
// Release builds override it with -ldflags "-X main.version=...".
var version = "1.0.0"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// A .env file is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to read .env file", "error", err)
	}

	cfg, err := config.ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(2)
	}

	if err := report.SetupSentry(cfg.Env, version); err != nil {
		logger.Warn("Sentry disabled", "error", err)
	}
	defer report.FlushSentry()
	report.ConfigureScope(cfg.Env, version)

	if err := run(cfg, logger); err != nil {
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Tags:  utils.MakeMap("env", cfg.Env),
			Level: sentry.LevelFatal,
		})
		report.FlushSentry()
		logger.Error(err.Error())
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger, app.NewPooledClient(), version)

	if err := application.LoadSnapshot(ctx); err != nil {
		return err
	}
	application.StartBackground(ctx)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      application.Routes(ctx),
		IdleTimeout:  time.Minute,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "env", cfg.Env, "source", cfg.Source())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info("server stopped")
	return nil
}
