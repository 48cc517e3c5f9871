package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/NovaMeet/nova-call-service/internal/adapters/stream"
	"github.com/NovaMeet/nova-call-service/internal/config"
	"github.com/NovaMeet/nova-call-service/internal/repository"
	"github.com/NovaMeet/nova-call-service/internal/session"
	"github.com/NovaMeet/nova-call-service/internal/video"
	"github.com/NovaMeet/nova-call-service/pkg/logger"
	redispkg "github.com/NovaMeet/nova-call-service/pkg/redis"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// sweepInterval is how often the session registry looks for expired sessions.
const sweepInterval = 2 * time.Minute

// HandlerManager wires repositories, the video provider and the session
// registry, and registers all routes.
type HandlerManager struct {
	config   *config.CallServiceConfig
	repos    repository.Manager
	provider video.Provider
	registry *session.Registry
}

// NewHandlerManager creates and initializes all services and handlers.
func NewHandlerManager(cfg *config.CallServiceConfig) (*HandlerManager, error) {
	repos, err := repository.NewManager()
	if err != nil {
		logger.Base().Error("failed to connect to database", zap.Error(err))
		return nil, err
	}

	provider, err := stream.NewClient(cfg.StreamAPIKey, cfg.StreamAPISecret, cfg.StreamBaseURL, cfg.StreamRealtimeURL)
	if err != nil {
		logger.Base().Error("failed to initialize video provider client", zap.Error(err))
		return nil, err
	}

	// Redis is optional: without it, caption relay is limited to sessions
	// held by this instance.
	var redisSvc redispkg.ServiceInterface
	redisCfg := &redispkg.Config{
		Host:     config.GetEnvOrDefault("REDIS_HOST", ""),
		Port:     config.GetEnvOrDefault("REDIS_PORT", "6379"),
		Password: config.GetEnvOrDefault("REDIS_PASSWORD", ""),
	}
	if redisCfg.Host != "" {
		svc, err := redispkg.NewService(redisCfg)
		if err != nil {
			logger.Base().Warn("failed to initialize redis, session relay runs instance-local", zap.Error(err))
		} else {
			redisSvc = svc
			logger.Base().Info("redis session relay initialized", zap.String("host", redisCfg.Host))
		}
	}

	registry := session.NewRegistry(redisSvc, cfg.InstanceID, cfg.SessionMaxAge)
	registry.StartSweeper(context.Background(), sweepInterval)

	return &HandlerManager{
		config:   cfg,
		repos:    repos,
		provider: provider,
		registry: registry,
	}, nil
}

// SetupAllRoutes registers every route with global middleware applied.
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.Use(CORSMiddleware)
	router.Use(GlobalLoggingMiddleware)

	// Provider webhook endpoint. No validation middleware here: the raw body
	// must reach the handler untouched for signature verification.
	webhookHandler := NewVideoWebhookHandler(hm.config, hm.repos, hm.provider, hm.registry)
	webhookHandler.SetupWebhookRoutes(router)

	// CRUD API.
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(ValidationMiddleware)

	agentHandler := NewAgentHandler(hm.repos)
	agentHandler.SetupAgentRoutes(apiRouter)

	meetingHandler := NewMeetingHandler(hm.config, hm.repos, hm.provider)
	meetingHandler.SetupMeetingRoutes(apiRouter)

	router.HandleFunc("/healthz", hm.handleHealthz).Methods("GET")

	logger.Base().Info("all application routes registered")
}

// handleHealthz reports liveness of the service and its database.
func (hm *HandlerManager) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := hm.repos.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "db": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetRepoManager returns the repository manager.
func (hm *HandlerManager) GetRepoManager() repository.Manager {
	return hm.repos
}

// GetProvider returns the video provider client.
func (hm *HandlerManager) GetProvider() video.Provider {
	return hm.provider
}
