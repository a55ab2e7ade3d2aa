package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cristivoicu/appserver/internal/core/services"
	"github.com/cristivoicu/appserver/internal/infrastructure/media"
	"github.com/cristivoicu/appserver/internal/infrastructure/monitoring"
	"github.com/cristivoicu/appserver/internal/infrastructure/repositories"
	signalws "github.com/cristivoicu/appserver/internal/infrastructure/signal"
	"github.com/cristivoicu/appserver/pkg/config"
	"github.com/cristivoicu/appserver/pkg/logger"
	"github.com/cristivoicu/appserver/pkg/tracing"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/appserver/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}
	if err != nil {
		// Fallback to defaults if config cannot be loaded
		cfg = config.Default()
	}

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories
	repoFactory, err := repositories.NewFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to initialize repositories", "error", err)
	}
	defer repoFactory.Close()

	users := repoFactory.CreateUserRepository()
	videos := repoFactory.CreateVideoRepository()
	audit := repoFactory.CreateAuditRepository()
	mapItems := repoFactory.CreateMapItemRepository()
	locations := repoFactory.CreateLocationStore()

	// Media pipeline connection
	pipeline, err := media.Dial(ctx, cfg.Media.PipelineURL, cfg.Media.CallTimeout, cfg.Media.DialAttempts, log)
	if err != nil {
		log.Fatalw("failed to connect to media pipeline", "url", cfg.Media.PipelineURL, "error", err)
	}
	defer pipeline.Close()

	// Core services
	hub := signalws.NewHub(log)
	coordinator := services.NewCoordinator(pipeline, videos, hub, log)
	go coordinator.Run(ctx)

	auth := services.NewAuthService(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.DefaultProgramEnd)
	policy := services.NewPolicy()
	metrics := monitoring.NewPrometheusCollector()

	server := signalws.NewServer(cfg, signalws.Deps{
		Registry:    signalws.NewRegistry(),
		Hub:         hub,
		Coordinator: coordinator,
		Policy:      policy,
		Auth:        auth,
		Users:       users,
		Videos:      videos,
		Audit:       audit,
		MapItems:    mapItems,
		Locations:   locations,
		Metrics:     metrics,
		Tracer:      tracing.Tracer(),
	}, log)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/ws", server.HandleWebSocket)
	router.GET("/healthz", func(c *gin.Context) {
		if err := repoFactory.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	httpServer := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Infow("starting server", "address", cfg.Server.Address)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Errorw("tracer shutdown failed", "error", err)
	}
}
