package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/NovaMeet/nova-call-service/internal/config"
	"github.com/NovaMeet/nova-call-service/internal/handler"
	"github.com/NovaMeet/nova-call-service/pkg/logger"
	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Server is the meeting call gateway: webhook receiver, meetings/agents API
// and the realtime agent bridge.
type Server struct {
	config         *config.CallServiceConfig
	router         *mux.Router
	handlerManager *handler.HandlerManager
}

// NewServer wires the router and all handlers.
func NewServer(cfg *config.CallServiceConfig) (*Server, error) {
	router := mux.NewRouter()

	handlerManager, err := handler.NewHandlerManager(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize handler manager: %w", err)
	}
	handlerManager.SetupAllRoutes(router)

	return &Server{
		config:         cfg,
		router:         router,
		handlerManager: handlerManager,
	}, nil
}

// Start runs the HTTP server until it fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf(":%s", s.config.Port)

	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logger.Base().Info("starting server", zap.String("addr", addr))
	return server.ListenAndServe()
}

func main() {
	// .env is optional; real deployments inject the environment directly.
	if err := godotenv.Load(); err == nil {
		logger.Base().Info("loaded configuration from .env")
	}

	if _, err := logger.Init(os.Getenv("LOG_ENV")); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
	}
	defer logger.Sync()

	cfg := config.LoadFromEnv()
	if cfg.StreamAPIKey == "" || cfg.StreamAPISecret == "" {
		logger.Base().Fatal("STREAM_API_KEY and STREAM_API_SECRET are required")
	}
	if cfg.OpenAIAPIKey == "" {
		logger.Base().Warn("OPENAI_API_KEY is not set, realtime agent attach will fail")
	}

	server, err := NewServer(cfg)
	if err != nil {
		logger.Base().Fatal("failed to initialize server", zap.Error(err))
	}

	if err := server.Start(); err != nil {
		logger.Base().Fatal("server stopped", zap.Error(err))
	}
}
