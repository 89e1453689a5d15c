package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/gatewarden/gatewarden/internal/api"
	"github.com/gatewarden/gatewarden/internal/app"
	"github.com/gatewarden/gatewarden/internal/app/maintenance"
	"github.com/gatewarden/gatewarden/internal/channel"
	"github.com/gatewarden/gatewarden/internal/database"
	"github.com/gatewarden/gatewarden/internal/services"
	"github.com/gatewarden/gatewarden/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("gatewarden", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	var configPath string
	fs.StringVar(&configPath, "config", "", "Path to configuration directory or file")

	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadApplicationConfig(configPath)
	if err != nil {
		return err
	}

	if err := app.ConfigureLogging(cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logger.Sync() // best effort

	log := logger.WithModule("bootstrap")

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := initialiseDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db, log)

	gateway, err := channel.NewGateway(cfg.Gateway.BaseURL, cfg.Gateway.Token, cfg.Gateway.Timeout)
	if err != nil {
		return fmt.Errorf("initialise channel gateway: %w", err)
	}

	actions, err := services.NewReviewLogService(db)
	if err != nil {
		return fmt.Errorf("initialise review log: %w", err)
	}
	settings, err := services.NewGuildSettingsService(db)
	if err != nil {
		return fmt.Errorf("initialise guild settings: %w", err)
	}
	tickets, err := services.NewTicketService(db, gateway, actions, settings,
		services.WithTranscriptSink(services.NewChannelTranscriptSink(gateway, settings)))
	if err != nil {
		return fmt.Errorf("initialise ticket service: %w", err)
	}
	claims, err := services.NewClaimService(db, actions, cfg.Bot.OwnerIDs)
	if err != nil {
		return fmt.Errorf("initialise claim service: %w", err)
	}
	apps, err := services.NewApplicationService(db)
	if err != nil {
		return fmt.Errorf("initialise application service: %w", err)
	}
	decisions, err := services.NewDecisionService(db, claims, tickets, actions, settings)
	if err != nil {
		return fmt.Errorf("initialise decision service: %w", err)
	}
	reconciler, err := services.NewReconcilerService(db, gateway, settings)
	if err != nil {
		return fmt.Errorf("initialise reconciler: %w", err)
	}

	if err := tickets.RebuildIndex(ctx); err != nil {
		return fmt.Errorf("rebuild ticket index: %w", err)
	}

	janitor := maintenance.NewJanitor(db, reconciler, actions,
		maintenance.WithReconcileSchedule(cfg.Maintenance.ReconcileSchedule),
		maintenance.WithStaleSchedule(cfg.Maintenance.StalePendingSchedule),
		maintenance.WithStaleThreshold(cfg.Maintenance.StalePendingAfter),
		maintenance.WithRetentionDays(cfg.Maintenance.RetentionDays),
		maintenance.WithRetentionSchedule(cfg.Maintenance.RetentionSchedule),
	)
	if err := janitor.Start(); err != nil {
		return fmt.Errorf("start maintenance jobs: %w", err)
	}
	defer func() {
		stopCtx := janitor.Stop()
		<-stopCtx.Done()
	}()

	// Startup repair pass runs in the background so a slow or
	// unreachable platform does not delay serving.
	go func() {
		if err := janitor.RunOnce(ctx); err != nil {
			log.Warn("startup maintenance pass reported failures", zap.Error(err))
		}
	}()

	router, err := api.NewRouter(db, cfg, api.Services{
		Tickets:      tickets,
		Settings:     settings,
		Actions:      actions,
		Reconciler:   reconciler,
		Applications: apps,
		Claims:       claims,
		Decisions:    decisions,
	})
	if err != nil {
		return fmt.Errorf("build api router: %w", err)
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	if err, ok := <-serverErr; ok && err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	log.Info("server stopped gracefully")
	return nil
}

func loadApplicationConfig(path string) (*app.Config, error) {
	switch {
	case strings.TrimSpace(path) == "":
		return app.LoadConfig()
	default:
		info, err := os.Stat(path)
		if err == nil {
			if info.IsDir() {
				return app.LoadConfig(path)
			}
			return app.LoadConfig(filepath.Dir(path))
		}
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config path %q does not exist", path)
		}
		return nil, fmt.Errorf("stat config path: %w", err)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := convertDatabaseConfig(cfg)
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		log.Warn("failed to obtain underlying sql DB for closing", zap.Error(err))
		return
	}

	if err := sqlDB.Close(); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
