package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/sgsgita/alumnigate/internal/access/http"
	"github.com/sgsgita/alumnigate/internal/access/service"
	"github.com/sgsgita/alumnigate/internal/access/store"
	"github.com/sgsgita/alumnigate/internal/access/store/drivers/sqlite"
	"github.com/sgsgita/alumnigate/pkg/limitx"
	"github.com/sgsgita/alumnigate/pkg/secretx"
	"github.com/sgsgita/alumnigate/pkg/slogx"
	"github.com/sgsgita/alumnigate/pkg/tokenx"
)

const (
	// BuildVersion should be set at build time via ldflags. Later problem
	BuildVersion = "v0.1.0"
)

// Application encapsulates the access service with all its dependencies.
type Application struct {
	cfg    Config
	logger *slog.Logger

	// Core dependencies
	db      store.Store
	secrets *secretx.Manager
	limiter *limitx.Limiter

	// Services
	invitationService   *service.InvitationService
	onboardingService   *service.OnboardingService
	consentService      *service.ConsentService
	codeService         *service.VerificationService
	housekeepingService *service.HousekeepingService

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates a new Application instance with all dependencies initialized
func New(cfg Config) (*Application, error) {
	app := &Application{
		cfg: cfg,
		logger: slogx.New(slogx.Config{
			Service: "access-service",
			Version: BuildVersion,
			Env:     cfg.Env,
			Level:   cfg.LogLevel,
			Format:  cfg.LogFormat,
		}),
	}

	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	secrets, err := secretx.NewManager(cfg.SigningSecret, app.logger)
	if err != nil {
		_ = app.db.Close()
		return nil, fmt.Errorf("failed to initialize signing secrets: %w", err)
	}
	app.secrets = secrets

	app.initLimiter()
	app.initServices()
	app.initHTTP()

	return app, nil
}

// Run starts the application and blocks until shutdown is requested
func (app *Application) Run() error {
	app.housekeepingService.Start()

	app.logger.Info("access service starting", "port", app.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown gracefully shuts down the application
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down access service...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.housekeepingService.Stop()

	if err := app.db.Close(); err != nil {
		app.logger.Error("error closing database", "error", err)
		return err
	}

	app.logger.Info("access service stopped")
	return nil
}

// initDatabase initializes the database and applies migrations
func (app *Application) initDatabase() error {
	host := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DatabaseFile)
	db, err := sqlite.NewStore(host)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	app.db = db

	if err := db.ApplyMigrations(); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("database migrations applied successfully")
	return nil
}

// initLimiter wires the distributed limiter over the shared counter store so
// every instance enforces one budget per subject.
func (app *Application) initLimiter() {
	opts := []limitx.Option{}
	if app.cfg.RateLimitFailClosed {
		opts = append(opts, limitx.WithFailClosed())
	}
	app.limiter = limitx.New(app.db.RateLimits(), app.logger, opts...)
}

// initServices initializes all business logic services
func (app *Application) initServices() {
	notifier := &service.LogNotifier{Logger: app.logger}

	app.invitationService = &service.InvitationService{
		Store:    app.db,
		Tokens:   &tokenx.Service{Secrets: app.secrets},
		Limiter:  app.limiter,
		Notifier: notifier,
		TTL:      app.cfg.InvitationTTL,
	}

	app.onboardingService = &service.OnboardingService{Store: app.db}

	app.codeService = &service.VerificationService{
		Store:    app.db,
		Secrets:  app.secrets,
		Limiter:  app.limiter,
		Notifier: notifier,
	}

	app.consentService = &service.ConsentService{
		Store:    app.db,
		Codes:    app.codeService,
		Notifier: notifier,
		Validity: app.cfg.ConsentTTL,
	}

	app.housekeepingService = service.NewHousekeepingService(
		app.db,
		app.logger,
		app.cfg.HousekeepingInterval,
	)
}

// initHTTP initializes the HTTP router and server
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(BuildVersion, app.db, app.logger)

	router.InvitationService = app.invitationService
	router.OnboardingService = app.onboardingService
	router.ConsentService = app.consentService
	router.CodeService = app.codeService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
	}
}
