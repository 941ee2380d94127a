// Package main provides the CLI entry point for the registration chatbot.
//
// regagent wires the routing classifier, workflow engine, tool registry,
// external adapters, and async photo pipeline behind the chat HTTP API
// described in spec.md §6.
//
// # Basic Usage
//
// Start the server:
//
//	regagent serve --config config.yaml
//
// # Environment Variables
//
// Secrets and deployment knobs can also be supplied as environment
// variables (see internal/config.Load):
//
//   - ANTHROPIC_API_KEY: Claude API key
//   - DATABASE_URL: Postgres-family DSN
//   - AWS_ACCESS_KEY_ID / AWS_SECRET_ACCESS_KEY: photo storage credentials
//   - REGAGENT_SEASON: current registration season marker
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/utjfc/reg-agent/internal/adapters"
	"github.com/utjfc/reg-agent/internal/agents"
	"github.com/utjfc/reg-agent/internal/chatapi"
	"github.com/utjfc/reg-agent/internal/config"
	"github.com/utjfc/reg-agent/internal/llm"
	"github.com/utjfc/reg-agent/internal/observability"
	"github.com/utjfc/reg-agent/internal/photo"
	"github.com/utjfc/reg-agent/internal/routing"
	"github.com/utjfc/reg-agent/internal/sessions"
	"github.com/utjfc/reg-agent/internal/tools"
	"github.com/utjfc/reg-agent/internal/workflow"
	"github.com/utjfc/reg-agent/pkg/models"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "regagent",
		Short:        "Youth football club registration chatbot backend",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the registration chatbot HTTP server",
		Long: `Start the chat HTTP server with all configured adapters.

The server will:
1. Load configuration from the specified file (env vars override secrets)
2. Open the database connection pool and construct the vendor adapters
3. Wire the tool registry, workflow engine, and routing classifier
4. Start the chat API (POST /chat, /upload-async, /upload-status, /sessions/{id}/clear)
5. Start a separate metrics server exposing Prometheus /metrics

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file found, using process environment", "error", err)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	logger.Info(ctx, "starting regagent",
		"version", version, "commit", commit, "season", cfg.Season.Current)

	db, err := adapters.NewPostgresDB(cfg.DB.DSN, &adapters.PoolConfig{
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.DB.ConnMaxIdleTime,
		ConnectTimeout:  cfg.DB.ConnectTimeout,
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	photoStore, err := adapters.NewS3Store(ctx, &adapters.S3StoreConfig{
		Bucket:          cfg.Storage.Bucket,
		Region:          cfg.Storage.Region,
		Endpoint:        cfg.Storage.Endpoint,
		Prefix:          cfg.Storage.Prefix,
		AccessKeyID:     cfg.Storage.AccessKeyID,
		SecretAccessKey: cfg.Storage.SecretAccessKey,
		UsePathStyle:    cfg.Storage.UsePathStyle,
	})
	if err != nil {
		return fmt.Errorf("construct photo store: %w", err)
	}

	payment, err := adapters.NewPaymentProvider(adapters.PaymentConfig{
		AccessToken: cfg.Payment.APIKey,
		BaseURL:     cfg.Payment.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("construct payment provider: %w", err)
	}

	sms, err := adapters.NewTwilioSMS(adapters.TwilioSMSConfig{
		AccountSID: cfg.SMS.AccountSID,
		AuthToken:  cfg.SMS.AuthToken,
		From:       cfg.SMS.From,
	})
	if err != nil {
		return fmt.Errorf("construct SMS adapter: %w", err)
	}

	address, err := adapters.NewAddressLookupProvider(adapters.AddressLookupConfig{
		APIKey:  cfg.Address.APIKey,
		BaseURL: cfg.Address.BaseURL,
	})
	if err != nil {
		return fmt.Errorf("construct address lookup provider: %w", err)
	}

	toolRegistry := tools.NewRegistry()
	toolRegistry.SetMetrics(metrics)
	toolRegistry.Register(tools.NewAddressLookupTool(address))
	toolRegistry.Register(tools.NewAddressValidateTool())
	toolRegistry.Register(tools.NewDOBValidateTool())
	toolRegistry.Register(tools.NewPaymentTokenCreateTool(payment, sms))
	toolRegistry.Register(tools.NewWriteRegistrationTool(db))
	toolRegistry.Register(tools.NewShirtNumberCheckTool(db))
	toolRegistry.Register(tools.NewWriteKitTool(db))
	toolRegistry.Register(tools.NewPutImageTool(photoStore))
	toolRegistry.Register(tools.NewWritePhotoURLTool(db))
	toolRegistry.Register(tools.NewCheckKitNeededTool(db))
	toolRegistry.Register(tools.NewDBQueryTool(db))
	toolRegistry.Register(tools.NewPlayerLookupTool(db))
	toolRegistry.Register(tools.NewCopyRecordToCurrentSeasonTool(db))

	llmProvider, err := llm.NewAnthropicProvider(llm.Config{
		APIKey:       cfg.LLM.APIKey,
		DefaultModel: cfg.LLM.Model,
		MaxTokens:    cfg.LLM.MaxTokens,
	})
	if err != nil {
		return fmt.Errorf("construct LLM provider: %w", err)
	}

	orchestratorMode := models.ExecutionLocal
	if cfg.Tools.RemoteTools {
		orchestratorMode = models.ExecutionRemote
	}
	agentRegistry := agents.NewRegistry(cfg.LLM.Model, orchestratorMode)
	sessionStore := sessions.NewMemoryStore()
	engine := workflow.New(sessionStore, agentRegistry, toolRegistry, llmProvider, cfg.LLM.MaxTokens)
	engine.SetMetrics(metrics)
	classifier := routing.NewClassifier(db, cfg.Season.Current)

	visionVerifier, err := photo.NewAnthropicVisionVerifier(cfg.LLM.APIKey, cfg.LLM.Model)
	if err != nil {
		return fmt.Errorf("construct vision verifier: %w", err)
	}
	pipeline := photo.New(
		photo.NewStore(),
		photo.NewOptimizer(nil),
		visionVerifier,
		photoStore,
		db,
		cfg.Photo.WorkerPoolSize,
		logger,
	)

	chatHandler := chatapi.NewHandler(chatapi.Config{
		SessionStore:   sessionStore,
		Engine:         engine,
		Classifier:     classifier,
		Pipeline:       pipeline,
		Logger:         logger,
		Metrics:        metrics,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		DevEndpoints:   cfg.Server.DevEndpoints,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	chatAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	chatServer := &http.Server{
		Addr:              chatAddr,
		Handler:           chatHandler.Mount(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort)
	metricsServer := &http.Server{
		Addr:              metricsAddr,
		Handler:           metricsMux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 2)
	go serveOrReport(chatServer, "chat", logger, errCh)
	go serveOrReport(metricsServer, "metrics", logger, errCh)

	logger.Info(ctx, "regagent started", "chat_addr", chatAddr, "metrics_addr", metricsAddr)

	select {
	case <-ctx.Done():
		logger.Info(ctx, "shutdown signal received, draining connections")
	case err := <-errCh:
		logger.Error(ctx, "server failed", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = chatServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	return nil
}

func serveOrReport(server *http.Server, name string, logger *observability.Logger, errCh chan<- error) {
	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		errCh <- fmt.Errorf("%s server listen: %w", name, err)
		return
	}
	if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		errCh <- fmt.Errorf("%s server: %w", name, err)
	}
}
