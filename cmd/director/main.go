package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/rmahmud/route-director/internal/affinity"
	"github.com/rmahmud/route-director/internal/config"
	"github.com/rmahmud/route-director/internal/domain"
	"github.com/rmahmud/route-director/internal/handler"
	"github.com/rmahmud/route-director/internal/middleware"
	"github.com/rmahmud/route-director/internal/repository"
	"github.com/rmahmud/route-director/internal/service"
	"github.com/rmahmud/route-director/pkg/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
		File:   cfg.Logging.File,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"default_strategy": cfg.LoadBalancer.DefaultStrategy,
		"backends":         len(cfg.Backends),
		"affinity_store":   cfg.Affinity.Store,
		"probe_interval":   cfg.LoadBalancer.HealthCheck.Interval.String(),
	}).Info("Starting route director")

	registry := repository.NewBackendRegistry()
	checker := service.NewHealthChecker(cfg.LoadBalancer.HealthCheck.Interval, log)

	var affinityStore affinity.Store
	var redisStore *affinity.RedisStore
	switch cfg.Affinity.Store {
	case "redis":
		redisStore = affinity.NewRedisStore(cfg.Affinity.Redis, log)
		affinityStore = redisStore
	default:
		affinityStore = affinity.NewMemoryStore()
	}

	history := service.NewHistory(cfg.LoadBalancer.HistorySize)
	engine := service.NewEngine(affinityStore, history, log)

	strategy, err := domain.ParseStrategy(cfg.LoadBalancer.DefaultStrategy)
	if err != nil {
		log.WithError(err).Fatal("Invalid default strategy")
	}

	balancer, err := service.NewLoadBalancer(strategy, registry, checker, engine, history, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to create load balancer")
	}

	for _, backend := range cfg.ToBackends() {
		if err := balancer.AddBackend(backend); err != nil {
			log.WithError(err).WithField("backend_id", backend.ID).Fatal("Failed to register backend")
		}
	}

	balancer.Start()

	var adminServer *http.Server
	if cfg.Admin.Enabled {
		adminServer = startAdminServer(cfg, balancer, log)
	}

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.Infof("Received signal %v, shutting down", sig)

	if adminServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := adminServer.Shutdown(ctx); err != nil {
			log.WithError(err).Error("Admin server shutdown failed")
		}
		cancel()
	}

	balancer.Stop()

	if redisStore != nil {
		if err := redisStore.Close(); err != nil {
			log.WithError(err).Error("Failed to close affinity store")
		}
	}

	log.Info("Shutdown complete")
}

// startAdminServer wires the admin API behind its middleware chain.
func startAdminServer(cfg *config.Config, balancer *service.LoadBalancer, log *logger.Logger) *http.Server {
	router := mux.NewRouter()

	if cfg.Admin.RateLimit.Enabled {
		limiter := middleware.NewRateLimiter(cfg.Admin.RateLimit, log)
		router.Use(limiter.Middleware())
	}
	if cfg.Admin.JWT.Enabled {
		auth := middleware.NewJWTAuth(cfg.Admin.JWT, log)
		router.Use(auth.Middleware())
	}

	admin := handler.NewAdminHandler(balancer, log)
	admin.Register(router)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Admin.Port),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infof("Admin API listening on :%d", cfg.Admin.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("Admin server failed")
		}
	}()

	return server
}
