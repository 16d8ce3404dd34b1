package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/internal/config"
	"github.com/dyncarl8-oss/auto-welcome/internal/handler"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Server represents the welcome-video service
type Server struct {
	config         *config.AppConfig
	router         *mux.Router
	handlerManager *handler.HandlerManager
	httpServer     *http.Server
}

// NewServer creates a new welcome-video server
func NewServer(cfg *config.AppConfig) *Server {
	// Initialize zap logger and redirect stdlib log to it
	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		logger.Base().Error("Failed to initialize zap logger, falling back to std log")
	}

	router := mux.NewRouter()

	// Initialize handler manager - it will create all services internally
	handlerManager, err := handler.NewHandlerManager(cfg)
	if err != nil {
		logger.Base().Error("Failed to initialize handler manager", zap.Error(err))
		return nil
	}

	handlerManager.SetupAllRoutes(router)

	return &Server{
		config:         cfg,
		router:         router,
		handlerManager: handlerManager,
	}
}

// Start runs the HTTP server and the reconciliation poller until the process
// receives SIGINT or SIGTERM
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	pollerCtx, cancelPoller := context.WithCancel(context.Background())
	defer cancelPoller()
	s.handlerManager.Poller().Start(pollerCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Base().Info("Starting server", zap.String("addr", addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Base().Info("Shutting down", zap.String("signal", sig.String()))
	}

	s.handlerManager.Poller().Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Base().Error("HTTP server shutdown failed", zap.Error(err))
	}

	if err := s.handlerManager.RepoManager().Close(); err != nil {
		logger.Base().Error("Failed to close database connection", zap.Error(err))
	}

	logger.Base().Info("Shutdown complete")
	return nil
}

func main() {
	// Load .env file for local development if it exists.
	// This will not override environment variables set by Helm/Docker.
	if err := godotenv.Load(); err != nil {
		log.Printf("Info: .env file not found or skipped (expected in production): %v", err)
	}

	cfg := config.LoadFromEnv()

	server := NewServer(cfg)
	if server == nil {
		log.Fatal("Failed to create server")
	}
	logger.Base().Info("Server initialized successfully", zap.String("port", cfg.Port))
	defer logger.Sync()

	if err := server.Start(); err != nil {
		log.Fatalf("Server failed to start: %v", err)
	}
}
