package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"repair-agent/handler"
	"repair-agent/internal/agent"
	"repair-agent/internal/config"
	"repair-agent/internal/integrations/bedrock"
	"repair-agent/internal/integrations/langfuse"
	"repair-agent/internal/integrations/paramstore"
	"repair-agent/internal/integrations/zapier"
	"repair-agent/internal/logging"
	"repair-agent/internal/repository"
	"repair-agent/internal/usecase"
)

const serviceName = "repair-agent"

func main() {
	logger := logging.NewLoggerWithService(serviceName)
	config.LoadEnv(logger)
	cfg := config.FromEnv()

	ctx := context.Background()

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load AWS config")
	}

	// ---- Tracing / prompt source ----
	lfPublic, lfSecret := cfg.LangfusePublicKey, cfg.LangfuseSecretKey
	if (lfPublic == "" || lfSecret == "") && cfg.LangfuseSecretParam != "" {
		ps, psErr := paramstore.New(awsssm.NewFromConfig(awsCfg))
		if psErr != nil {
			logger.WithError(psErr).Warn("Failed to create SSM client")
		} else if pub, sec, kpErr := ps.GetKeyPair(ctx, cfg.LangfuseSecretParam); kpErr != nil {
			logger.WithError(kpErr).Warn("Failed to resolve Langfuse keys from SSM")
		} else {
			lfPublic, lfSecret = pub, sec
		}
	}

	tracer := langfuse.Disabled()
	if cfg.LangfuseHost != "" && lfPublic != "" && lfSecret != "" {
		if lf, lfErr := langfuse.New(cfg.LangfuseHost, lfPublic, lfSecret, logger); lfErr != nil {
			logger.WithError(lfErr).Warn("Langfuse disabled")
		} else {
			tracer = lf
		}
	} else {
		logger.Info("Langfuse not configured, tracing disabled")
	}
	defer tracer.Close()

	// ---- Model provider and agents ----
	provider, err := bedrock.New(bedrockruntime.NewFromConfig(awsCfg), bedrock.WithMaxTokens(cfg.MaxTokens))
	if err != nil {
		logger.WithError(err).Fatal("Failed to create Bedrock client")
	}

	registry := agent.NewRegistry(buildAgents(ctx, tracer, provider, cfg, logger)...)
	if registry.Len() == 0 {
		logger.Fatal("No agents registered")
	}

	// ---- Optional collaborators ----
	opts := []usecase.Option{usecase.WithMaxHistoryTurns(cfg.MaxHistoryTurns)}
	if cfg.SessionTable != "" {
		memory, memErr := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.SessionTable)
		if memErr != nil {
			logger.WithError(memErr).Fatal("Failed to create session store")
		}
		opts = append(opts, usecase.WithMemory(memory))
	}
	if cfg.ZapierMCPURL != "" {
		zc, zErr := zapier.New(ctx, zapier.Config{
			EndpointURL: cfg.ZapierMCPURL,
			APIKey:      cfg.ZapierAPIKey,
			Logger:      logger,
		})
		if zErr != nil {
			logger.WithError(zErr).Warn("Zapier MCP disabled")
		} else {
			defer func() { _ = zc.Close() }()
			opts = append(opts, usecase.WithDispatcher(zc))
		}
	}

	// ---- Service and HTTP surface ----
	service, err := usecase.NewChatService(registry, tracer, logger, opts...)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create chat service")
	}
	h, err := handler.NewHandler(service, registry, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create handler")
	}

	if config.GetEnv("GIN_MODE", "debug") == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(handler.RequestIDMiddleware())
	router.Use(handler.LoggingMiddleware(logger))
	router.Use(handler.RecoveryMiddleware(logger))
	router.Use(handler.CORSMiddleware(cfg.AllowedOrigins))
	handler.RegisterRoutes(router, h)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: responses stream for as long as the model
		// generates; the idle timeout still reaps dead connections.
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Port).Info("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Forced shutdown")
	}
	logger.Info("Server stopped")
}
