package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sessionbridge/sessionbridge/internal/admission"
	"github.com/sessionbridge/sessionbridge/internal/config"
	"github.com/sessionbridge/sessionbridge/internal/credential"
	"github.com/sessionbridge/sessionbridge/internal/handlers"
	"github.com/sessionbridge/sessionbridge/internal/metrics"
	"github.com/sessionbridge/sessionbridge/internal/middleware"
	"github.com/sessionbridge/sessionbridge/internal/providers"
	"github.com/sessionbridge/sessionbridge/internal/transport"
)

type Server struct {
	config   *config.Manager
	baseDir  string
	registry *providers.Registry
	queue    *admission.Queue
	metrics  *metrics.Gateway
	logger   *slog.Logger
	server   *http.Server
	stopCh   chan struct{}
}

func New(configManager *config.Manager, baseDir string, logger *slog.Logger) (*Server, error) {
	cfg := configManager.Get()

	registry := providers.NewRegistry()

	if err := registerAdapters(registry, cfg, baseDir, logger); err != nil {
		return nil, err
	}

	return &Server{
		config:   configManager,
		baseDir:  baseDir,
		registry: registry,
		queue:    admission.NewQueue(cfg.RateLimits, logger),
		metrics:  metrics.NewGateway(),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Registry exposes the adapter registry, used by the credentials CLI to
// reset cached sessions after pool edits.
func (s *Server) Registry() *providers.Registry {
	return s.registry
}

func (s *Server) Start() error {
	cfg := s.config.Get()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	mux := s.setupRoutes()

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Info("Starting server", "address", addr)

	if cfg.AutoRefresh.Enabled {
		go s.expirySweep(time.Duration(cfg.AutoRefresh.IntervalMinutes) * time.Minute)
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Info("Server is shutting down...")

	close(s.stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")
	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	chatHandler := handlers.NewChatHandler(s.config, s.registry, s.queue, s.metrics, s.logger)
	modelsHandler := handlers.NewModelsHandler(s.registry)
	healthHandler := handlers.NewHealthHandler(s.registry, s.queue, s.logger)

	middlewareSet := middleware.NewMiddlewareSet(s.config, s.logger)

	mux.Handle("/v1/chat/completions", middlewareSet.DefaultChain().Handler(chatHandler))
	mux.Handle("/v1/models", middlewareSet.DefaultChain().Handler(modelsHandler))
	mux.Handle("/health", middlewareSet.PublicChain().Handler(healthHandler))
	mux.Handle("/metrics", middlewareSet.PublicChain().Handler(s.metrics.Handler()))

	return mux
}

// expirySweep periodically demotes credentials whose payload carries a
// passed expires_at stamp and warns ahead of upcoming expiries.
func (s *Server) expirySweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
		}

		for _, adapter := range s.registry.Adapters() {
			if !adapter.Capabilities().SupportsExpiryCheck {
				continue
			}

			pooled, ok := adapter.(interface{ Pool() *credential.Pool })
			if !ok {
				continue
			}

			pooled.Pool().SweepExpiry(time.Now(), func(id string, remaining time.Duration) {
				s.logger.Warn("credential expires soon",
					"provider", adapter.Name(),
					"credential", id,
					"remaining", remaining.Round(time.Minute),
				)
			})
		}
	}
}

func registerAdapters(registry *providers.Registry, cfg *config.Config, baseDir string, logger *slog.Logger) error {
	deepseekCfg := cfg.Providers["deepseek"]
	if deepseekCfg.Enabled {
		pool, err := newPool("deepseek", baseDir, deepseekCfg)
		if err != nil {
			return err
		}

		registry.Register(providers.NewDeepSeek(pool, transport.NewDeepSeekTransport(deepseekCfg.BaseURL), logger))
	}

	claudeCfg := cfg.Providers["claude"]
	if claudeCfg.Enabled {
		pool, err := newPool("claude", baseDir, claudeCfg)
		if err != nil {
			return err
		}

		registry.Register(providers.NewClaude(pool, transport.NewClaudeTransport(claudeCfg.BaseURL), logger))
	}

	return nil
}

func newPool(provider, baseDir string, cfg config.ProviderConfig) (*credential.Pool, error) {
	store := credential.NewFileStore(baseDir, provider)

	return credential.NewPool(provider, store, credential.PoolOptions{
		Strategy:  credential.Strategy(cfg.Strategy),
		FailLimit: cfg.FailLimit,
	})
}
