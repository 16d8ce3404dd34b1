package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/fishaudio"
	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/heygen"
	"github.com/dyncarl8-oss/auto-welcome/internal/adapters/whop"
	"github.com/dyncarl8-oss/auto-welcome/internal/config"
	"github.com/dyncarl8-oss/auto-welcome/internal/repository"
	"github.com/dyncarl8-oss/auto-welcome/internal/services/welcome"
	"github.com/dyncarl8-oss/auto-welcome/internal/storage"
	"github.com/dyncarl8-oss/auto-welcome/pkg/logger"
	"github.com/dyncarl8-oss/auto-welcome/pkg/redis"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// HandlerManager manages all handlers and their shared dependencies
type HandlerManager struct {
	config       *config.AppConfig
	repoManager  repository.RepositoryManager
	whopClient   *whop.Client
	heygenClient *heygen.Client
	fishClient   *fishaudio.Client
	uploads      storage.UploadStore
	service      *welcome.Service
	poller       *welcome.Poller
	redisService redis.RedisServiceInterface
}

// NewHandlerManager creates and wires all handlers and services
func NewHandlerManager(cfg *config.AppConfig) (*HandlerManager, error) {
	// Initialize database connection
	repoManager, err := repository.NewRepositoryManager()
	if err != nil {
		logger.Base().Error("failed to connect to database", zap.Error(err))
		return nil, err
	}

	// Redis is optional. It backs token-verification caching and the poll
	// claims that keep multiple instances from reconciling the same video.
	var redisService redis.RedisServiceInterface
	if cfg.RedisHost != "" {
		redisSvc, err := redis.NewRedisService(&redis.RedisConfig{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		if err != nil {
			logger.Base().Warn("failed to initialize redis service, running without caching", zap.Error(err))
		} else {
			redisService = redisSvc
		}
	} else {
		logger.Base().Info("REDIS_HOST not set, running without caching")
	}

	whopClient, err := whop.NewClient(cfg.WhopAPIBase, cfg.WhopAPIKey, cfg.WhopAppPublicKey, redisService)
	if err != nil {
		return nil, fmt.Errorf("failed to create platform client: %w", err)
	}
	heygenClient := heygen.NewClient(cfg.HeyGenAPIBase, cfg.HeyGenUploadBase, cfg.HeyGenAPIKey)
	fishClient := fishaudio.NewClient(cfg.FishAudioAPIBase, cfg.FishAudioAPIKey)

	if cfg.HeyGenRegisterWebhook && cfg.HeyGenAPIKey != "" {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			callbackURL := cfg.BaseURL + "/api/heygen/webhook"
			if _, err := heygenClient.RegisterWebhook(ctx, callbackURL, []string{"avatar_video.success", "avatar_video.fail"}); err != nil {
				logger.Base().Warn("failed to register provider webhook, relying on polling",
					zap.String("url", callbackURL),
					zap.Error(err))
			}
		}()
	}

	uploads, err := storage.NewUploadStore(
		context.Background(),
		storage.StorageType(cfg.UploadStorageType),
		cfg.UploadDir,
		cfg.BaseURL,
		cfg.UploadGCSBucket,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upload store: %w", err)
	}

	service := welcome.NewService(repoManager, heygenClient, fishClient, whopClient)
	poller := welcome.NewPoller(service, repoManager, redisService, cfg.PollInterval)

	return &HandlerManager{
		config:       cfg,
		repoManager:  repoManager,
		whopClient:   whopClient,
		heygenClient: heygenClient,
		fishClient:   fishClient,
		uploads:      uploads,
		service:      service,
		poller:       poller,
		redisService: redisService,
	}, nil
}

// SetupAllRoutes sets up all routes with middleware
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	// Apply global middleware
	router.Use(CORSMiddleware)
	router.Use(GlobalLoggingMiddleware)

	// Access validation and user info endpoints
	accessHandler := NewAccessHandler(hm.whopClient, hm.repoManager.Creator())
	accessHandler.SetupAccessRoutes(router)

	// Admin (creator-facing) routes behind token auth
	adminRouter := router.PathPrefix("/api/admin").Subrouter()
	adminRouter.Use(AuthMiddleware(hm.whopClient))
	adminHandler := NewAdminHandler(hm.repoManager, hm.whopClient, hm.heygenClient, hm.fishClient, hm.uploads, hm.service)
	adminHandler.SetupAdminRoutes(adminRouter)

	// Customer (member-facing) routes behind token auth
	customerRouter := router.PathPrefix("/api/customer").Subrouter()
	customerRouter.Use(AuthMiddleware(hm.whopClient))
	customerHandler := NewCustomerHandler(hm.repoManager, hm.whopClient, hm.service)
	customerHandler.SetupCustomerRoutes(customerRouter)

	// Webhooks authenticate with their own signatures, not user tokens
	whopWebhookHandler := NewWhopWebhookHandler(hm.repoManager, hm.whopClient, hm.service, hm.config.WhopWebhookSecret)
	whopWebhookHandler.SetupWhopWebhookRoutes(router)

	heygenWebhookHandler := NewHeyGenWebhookHandler(hm.repoManager, hm.service, hm.config.HeyGenWebhookSecret)
	heygenWebhookHandler.SetupHeyGenWebhookRoutes(router)

	// Locally stored uploads
	if storage.StorageType(hm.config.UploadStorageType) != storage.StorageTypeGCS {
		staticHandler := NewStaticHandler(hm.config.UploadDir)
		staticHandler.SetupStaticRoutes(router)
	}

	// Health check
	router.HandleFunc("/health", hm.healthCheck).Methods("GET")

	logger.Base().Info("all application routes registered")
}

func (hm *HandlerManager) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := hm.repoManager.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unhealthy",
			"error":  "database unreachable",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}

// Poller returns the reconciliation poller so the server can manage its
// lifecycle
func (hm *HandlerManager) Poller() *welcome.Poller {
	return hm.poller
}

// RepoManager returns the repository manager for shutdown cleanup
func (hm *HandlerManager) RepoManager() repository.RepositoryManager {
	return hm.repoManager
}
