package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/config"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/domain"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/httpserver"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/security"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/service"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/store/postgres"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/store/sqlite"
	"github.com/RuzzyTechnologies/pess-tracker-r8-sub000/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	var zl *zap.Logger
	if cfg.Debug {
		zl, err = zap.NewDevelopment()
	} else {
		zl, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zl.Sync()
	logger := zl.Sugar()

	// Initialize database. Postgres when DATABASE_URL is set, SQLite otherwise.
	db, users, threads, participants, messages, err := openStore(cfg)
	if err != nil {
		logger.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	// Security components
	tokenSvc := security.NewTokenService(cfg.SessionSecret, cfg.SessionTTL)
	passwords := security.NewPasswords(0)

	// Services
	locks := service.NewThreadLocks()
	authSvc := service.NewAuthService(users, tokenSvc, passwords)
	userSvc := service.NewUserService(users)
	presenceSvc := service.NewPresenceService(users, cfg.OnlineWindow, cfg.PingMinInterval)
	threadSvc := service.NewThreadService(threads, participants, users, locks, logger)
	messageSvc := service.NewMessageService(threads, participants, messages, locks, logger, cfg.MessagePageSize)

	// WebSocket hub and typing fan-out
	hub := ws.NewHub(logger)
	typing := ws.NewTypingBroker(cfg.TypingTTL)

	router := httpserver.NewRouter(httpserver.Deps{
		Cfg:      cfg,
		Log:      logger,
		Hub:      hub,
		Typing:   typing,
		Tokens:   tokenSvc,
		Users:    users,
		Auth:     authSvc,
		UserSvc:  userSvc,
		Threads:  threadSvc,
		Messages: messageSvc,
		Presence: presenceSvc,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		logger.Infof("starting %s on %s", cfg.AppName, cfg.HTTPAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}

func openStore(cfg *config.Config) (
	*sql.DB,
	domain.UserRepository,
	domain.ThreadRepository,
	domain.ParticipantRepository,
	domain.MessageRepository,
	error,
) {
	if cfg.DatabaseURL != "" {
		db, err := postgres.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, nil, nil, nil, err
		}
		if err := postgres.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, nil, nil, err
		}
		return db,
			postgres.NewUserRepo(db),
			postgres.NewThreadRepo(db),
			postgres.NewParticipantRepo(db),
			postgres.NewMessageRepo(db),
			nil
	}

	db, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, nil, nil, nil, nil, err
	}
	if err := sqlite.Migrate(db); err != nil {
		db.Close()
		return nil, nil, nil, nil, nil, err
	}
	return db,
		sqlite.NewUserRepo(db),
		sqlite.NewThreadRepo(db),
		sqlite.NewParticipantRepo(db),
		sqlite.NewMessageRepo(db),
		nil
}
