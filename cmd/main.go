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

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/petanque-connect/server/config"
	"github.com/petanque-connect/server/db"
	"github.com/petanque-connect/server/handlers"
	"github.com/petanque-connect/server/middleware"
	"github.com/petanque-connect/server/realtime"
	"github.com/petanque-connect/server/repositories"
	api "github.com/petanque-connect/server/routes"
	"github.com/petanque-connect/server/services"
	"github.com/petanque-connect/server/storage"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	// Storage backend: Postgres when DATABASE_URL is set, otherwise the
	// JSON-file collection store.
	var (
		teamRepo         repositories.TeamRepository
		userRepo         repositories.UserRepository
		notificationRepo repositories.NotificationRepository
	)
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			}
		}()
		if err := db.EnsureSchema(context.Background(), dbConn); err != nil {
			logger.Error("failed to ensure database schema", slog.Any("error", err))
			os.Exit(1)
		}
		teamRepo = repositories.NewPostgresTeamRepository(dbConn)
		userRepo = repositories.NewPostgresUserRepository(dbConn)
		notificationRepo = repositories.NewPostgresNotificationRepository(dbConn)
		logger.Info("postgres storage initialized")
	} else {
		store, err := storage.NewJSONStore(cfg.DataDir, logger)
		if err != nil {
			logger.Error("failed to initialize JSON store", slog.Any("error", err))
			os.Exit(1)
		}
		teamRepo = repositories.NewJSONTeamRepository(store)
		userRepo = repositories.NewJSONUserRepository(store)
		notificationRepo = repositories.NewJSONNotificationRepository(store)
		logger.Info("JSON-file storage initialized", slog.String("dir", cfg.DataDir))
	}

	wsHub := realtime.NewHub(logger)
	go wsHub.Run()
	logger.Info("websocket hub started")

	dispatcher := services.NewDispatcher(wsHub, notificationRepo, logger)
	teamService := services.NewTeamService(teamRepo, userRepo, dispatcher, logger)
	notificationService := services.NewNotificationService(notificationRepo)
	userService := services.NewUserService(userRepo)
	logger.Info("services initialized")

	authenticator := middleware.NewAuthenticator(cfg.JWTSecretKey)
	teamHandler := handlers.NewTeamHandler(teamService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	userHandler := handlers.NewUserHandler(userService)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, authenticator, logger)

	router := chi.NewRouter()
	api.SetupRoutes(
		router,
		authenticator,
		teamHandler,
		notificationHandler,
		userHandler,
		webSocketHandler,
		cfg.CORSOrigins,
	)
	logger.Info("routes configured")

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			os.Exit(1)
		}
		logger.Info("server shutdown complete")
	}
	logger.Info("application exited")
}
