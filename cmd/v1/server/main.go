package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/marain-chat/marain-server/internal/v1/app"
	"github.com/marain-chat/marain-server/internal/v1/config"
	"github.com/marain-chat/marain-server/internal/v1/health"
	"github.com/marain-chat/marain-server/internal/v1/logging"
	"github.com/marain-chat/marain-server/internal/v1/middleware"
	"github.com/marain-chat/marain-server/internal/v1/tracing"
	"github.com/marain-chat/marain-server/internal/v1/transport"
)

const serviceName = "marain-server"

func main() {
	// Load .env file for local development.
	// Try multiple paths to handle different ways of running the app
	envPaths := []string{".env", "../../../.env", "../../.env"}
	var envLoaded bool

	for _, path := range envPaths {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			envLoaded = true
			break
		}
	}

	if !envLoaded {
		slog.Warn("No .env file found in any expected location, relying on environment variables")
	}

	// Validate environment variables before starting the server
	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.DevelopmentMode); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if cfg.DevelopmentMode {
		logging.Info(ctx, "Running in DEVELOPMENT MODE")
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Tracing (optional) ---
	tracingEnabled := cfg.OTelCollectorAddr != ""
	var tracerProvider interface {
		Shutdown(ctx context.Context) error
	}
	if tracingEnabled {
		tp, err := tracing.InitTracer(ctx, serviceName, cfg.OTelCollectorAddr)
		if err != nil {
			logging.Error(ctx, "Failed to initialize tracing, continuing without it", zap.Error(err))
		} else {
			tracerProvider = tp
			logging.Info(ctx, "✅ Tracing initialized")
		}
	}

	// --- Message-routing engine ---
	// Gateway fans session commands into the single-owner app loop.
	gateway := app.NewGateway(cfg.CommandBuffer)
	application := app.New(gateway.Commands())
	go gateway.Run(ctx)
	go application.Run(ctx)

	hub := transport.NewHub(gateway.Sink(), transport.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		HandshakeTimeout: cfg.HandshakeTimeout,
		EventBuffer:      cfg.EventBuffer,
	})

	// --- Set up Server ---
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CorrelationID())
	if tracingEnabled {
		router.Use(otelgin.Middleware(serviceName))
	}

	// Cors
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	// Routing
	router.GET("/ws", hub.ServeWs)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	healthHandler := health.NewHandler(application, gateway)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	// Start the server.
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// --- Graceful Shutdown ---
	// Start the server in a goroutine so it doesn't block.
	go func() {
		logging.Info(ctx, "Marain server starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error(ctx, "Failed to run server", zap.Error(err))
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	// Wait for an interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "Shutting down server...")

	// The context gives the shutdown sequence 30 seconds to finish
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	// Stop accepting new connections first.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "Server forced to shutdown", zap.Error(err))
	}

	// Close active sessions; each one drops its user through the app loop.
	if err := hub.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "Error during hub shutdown", zap.Error(err))
	}

	// With every session done submitting, drain the command path.
	gateway.Close()
	select {
	case <-application.Done():
		logging.Info(shutdownCtx, "App loop drained")
	case <-shutdownCtx.Done():
		logging.Error(shutdownCtx, "Timed out waiting for app loop to drain")
	}

	if tracerProvider != nil {
		if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
			logging.Error(shutdownCtx, "Failed to flush tracer provider", zap.Error(err))
		}
	}

	logging.Info(ctx, "Server exiting")
}
