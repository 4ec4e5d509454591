// Package main provides the revu binary entry point.
// Revu is an automated code review service: provider webhooks are
// normalized into review jobs on JetStream, and a pool of workers runs
// each job through an LLM-backed review workflow that posts its
// findings back on the pull request.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/componentregistry"
	"github.com/c360studio/semstreams/config"
	"github.com/c360studio/semstreams/metric"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/c360studio/semstreams/service"
	"github.com/c360studio/semstreams/types"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	// Register LLM providers via init()
	_ "github.com/revuhq/revu/llm/providers"

	revuconfig "github.com/revuhq/revu/config"
	feedbackingress "github.com/revuhq/revu/processor/feedback-ingress"
	reviewworker "github.com/revuhq/revu/processor/review-worker"
	webhookingress "github.com/revuhq/revu/processor/webhook-ingress"
	"github.com/revuhq/revu/queue"
	"github.com/revuhq/revu/review"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "revu"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		configPath string
		logLevel   string
		envFile    string
	)

	cmd := &cobra.Command{
		Use:   "revu",
		Short: "Automated code review service",
		Long: `Revu reviews pull requests automatically.

It accepts webhooks from GitHub, GitLab, and Bitbucket, queues each
reviewable PR event on JetStream, and runs it through a multi-agent
review workflow: security, logic, pattern, and style analyzers in
parallel, deduplication, severity filtering, an LLM judge pass, and
comment publication back to the provider.

All components communicate via NATS using the semstreams framework.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath, logLevel, envFile)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Config file path (YAML)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	cmd.Flags().StringVar(&envFile, "env-file", "", "Env file to load before reading config")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func run(configPath, logLevel, envFile string) error {
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	// Configure logging
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	// Load configuration (defaults, user config, project config, flag)
	loader := revuconfig.NewLoader(logger)
	cfg, err := loader.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx := context.Background()

	// Bring up NATS (embedded or external)
	app := NewApp(cfg, logger)
	natsClient, err := app.StartNATS(ctx)
	if err != nil {
		return err
	}
	defer app.Shutdown(ctx)

	// Translate revu config into the component plane
	platformCfg, err := buildPlatformConfig(cfg, configPath, app.ClientURL())
	if err != nil {
		return fmt.Errorf("build platform config: %w", err)
	}
	if err := platformCfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure JetStream streams exist
	if err := ensureStreams(ctx, platformCfg, natsClient, logger); err != nil {
		return err
	}

	slog.Info("Revu ready", "version", Version, "port", cfg.Server.Port)

	metricsRegistry := metric.NewMetricsRegistry()
	platform := types.PlatformMeta{
		Org:      platformCfg.Platform.Org,
		Platform: platformCfg.Platform.ID,
	}

	// Config manager gives the component-manager access to component configs
	configManager, err := config.NewConfigManager(platformCfg, natsClient, logger)
	if err != nil {
		return fmt.Errorf("create config manager: %w", err)
	}
	if err := configManager.Start(ctx); err != nil {
		return fmt.Errorf("start config manager: %w", err)
	}
	defer configManager.Stop(5 * time.Second)

	// Create and populate component registry
	componentRegistry := component.NewRegistry()

	slog.Debug("Registering semstreams component factories")
	if err := componentregistry.Register(componentRegistry); err != nil {
		return fmt.Errorf("register semstreams components: %w", err)
	}

	slog.Debug("Registering revu component factories")
	if err := webhookingress.Register(componentRegistry); err != nil {
		return fmt.Errorf("register webhook-ingress: %w", err)
	}

	if err := feedbackingress.Register(componentRegistry); err != nil {
		return fmt.Errorf("register feedback-ingress: %w", err)
	}

	if err := reviewworker.Register(componentRegistry); err != nil {
		return fmt.Errorf("register review-worker: %w", err)
	}

	factories := componentRegistry.ListFactories()
	slog.Info("Component factories registered", "count", len(factories))

	// Create service registry and manager (semstreams pattern)
	serviceRegistry := service.NewServiceRegistry()
	if err := service.RegisterAll(serviceRegistry); err != nil {
		return fmt.Errorf("register services: %w", err)
	}

	manager := service.NewServiceManager(serviceRegistry)
	ensureServiceManagerConfig(platformCfg, cfg.Server.Port)

	svcDeps := &service.Dependencies{
		NATSClient:        natsClient,
		MetricsRegistry:   metricsRegistry,
		Logger:            logger,
		Platform:          platform,
		Manager:           configManager,
		ComponentRegistry: componentRegistry,
	}

	if err := configureAndCreateServices(platformCfg, manager, svcDeps); err != nil {
		return err
	}

	slog.Info("All services configured")

	// Setup signal handling
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	slog.Info("Starting all services")
	if err := manager.StartAll(signalCtx); err != nil {
		return fmt.Errorf("start services: %w", err)
	}
	slog.Info("All services started successfully")

	// Block until shutdown signal
	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	shutdownTimeout := 30 * time.Second
	if err := manager.StopAll(shutdownTimeout); err != nil {
		slog.Error("Error stopping services", "error", err)
	}

	slog.Info("Revu shutdown complete")
	return nil
}

// loadEnvFile loads a .env-style file into the process environment. The
// flagged path must exist; the implicit .env is best-effort.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			slog.Warn("Failed to load .env", "error", err)
		}
	}
	return nil
}

// buildPlatformConfig maps the revu YAML config onto the semstreams
// component plane: one stream for review traffic and the three revu
// processors.
func buildPlatformConfig(cfg *revuconfig.Config, configPath, natsURL string) (*config.Config, error) {
	ingressJSON, err := json.Marshal(webhookingress.Config{
		PathPrefix: "/webhooks/",
		Secrets: webhookingress.Secrets{
			GitHub:    cfg.Webhooks.GitHubSecret,
			GitLab:    cfg.Webhooks.GitLabSecret,
			Bitbucket: cfg.Webhooks.BitbucketSecret,
		},
		DefaultPriority: cfg.Webhooks.DefaultPriority,
		MaxPayloadBytes: 10 * 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal webhook-ingress config: %w", err)
	}

	feedbackJSON, err := json.Marshal(feedbackingress.Config{
		PathPrefix: "/feedback/",
		Secrets: webhookingress.Secrets{
			GitHub:    cfg.Webhooks.GitHubSecret,
			GitLab:    cfg.Webhooks.GitLabSecret,
			Bitbucket: cfg.Webhooks.BitbucketSecret,
		},
		MaxPayloadBytes: 10 * 1024 * 1024,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal feedback-ingress config: %w", err)
	}

	workerJSON, err := json.Marshal(reviewworker.Config{
		MaxWorkers:             cfg.Worker.MaxWorkers,
		MaxRetries:             cfg.Worker.MaxRetries,
		AckWait:                cfg.Worker.AckWait,
		EstimatedCostPerReview: cfg.Worker.EstimatedCostPerReview,
		Credentials:            cfg.VCS,
		Budget:                 cfg.Budget,
		Endpoints:              cfg.Models,
		Review: review.ReviewConfig{
			MaxSuggestions:    cfg.Review.MaxSuggestions,
			SeverityThreshold: review.Severity(cfg.Review.SeverityThreshold),
			EnableAgents:      cfg.Review.EnableAgents,
		},
		MaxFilesToReview:   cfg.Optimizer.MaxFilesToReview,
		MaxTokensPerReview: cfg.Optimizer.MaxTokensPerReview,
		ChunkSize:          cfg.Optimizer.ChunkSize,
		BudgetConfigFile:   configPath,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal review-worker config: %w", err)
	}

	return &config.Config{
		Version: "1.0.0",
		Platform: config.PlatformConfig{
			Org:         appName,
			ID:          "revu-local",
			Environment: "dev",
		},
		NATS: config.NATSConfig{
			URLs:          []string{natsURL},
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			JetStream: config.JetStreamConfig{
				Enabled: true,
			},
		},
		Services: types.ServiceConfigs{},
		Components: config.ComponentConfigs{
			"webhook-ingress": types.ComponentConfig{
				Name:    "webhook-ingress",
				Type:    types.ComponentTypeProcessor,
				Enabled: true,
				Config:  ingressJSON,
			},
			"feedback-ingress": types.ComponentConfig{
				Name:    "feedback-ingress",
				Type:    types.ComponentTypeProcessor,
				Enabled: true,
				Config:  feedbackJSON,
			},
			"review-worker": types.ComponentConfig{
				Name:    "review-worker",
				Type:    types.ComponentTypeProcessor,
				Enabled: true,
				Config:  workerJSON,
			},
		},
		Streams: config.StreamConfigs{
			queue.StreamName: config.StreamConfig{
				Subjects: []string{"reviews.>"},
				MaxAge:   "72h",
				Storage:  "file",
				Replicas: 1,
			},
		},
	}, nil
}

func ensureStreams(ctx context.Context, cfg *config.Config, natsClient *natsclient.Client, logger *slog.Logger) error {
	logger.Debug("Creating JetStream streams")
	streamsManager := config.NewStreamsManager(natsClient, logger)

	if err := streamsManager.EnsureStreams(ctx, cfg); err != nil {
		return fmt.Errorf("ensure streams: %w", err)
	}

	logger.Debug("JetStream streams ready")
	return nil
}

// ensureServiceManagerConfig ensures service-manager config exists with defaults
func ensureServiceManagerConfig(cfg *config.Config, httpPort int) {
	if cfg.Services == nil {
		cfg.Services = make(types.ServiceConfigs)
	}

	if _, exists := cfg.Services["service-manager"]; !exists {
		slog.Debug("Adding default service-manager config")
		defaultConfig := map[string]any{
			"http_port":  httpPort,
			"swagger_ui": false,
			"server_info": map[string]string{
				"title":       "Revu API",
				"description": "automated code review - webhooks, health, and metrics",
				"version":     Version,
			},
		}
		defaultConfigJSON, _ := json.Marshal(defaultConfig)
		cfg.Services["service-manager"] = types.ServiceConfig{
			Name:    "service-manager",
			Enabled: true,
			Config:  defaultConfigJSON,
		}
	}
}

// configureAndCreateServices configures the manager and creates all services
func configureAndCreateServices(
	cfg *config.Config,
	manager *service.Manager,
	svcDeps *service.Dependencies,
) error {
	slog.Debug("Configuring Manager")
	if err := manager.ConfigureFromServices(cfg.Services, svcDeps); err != nil {
		return fmt.Errorf("configure service manager: %w", err)
	}

	slog.Debug("Creating services from config", "count", len(cfg.Services))
	for name, svcConfig := range cfg.Services {
		if name == "service-manager" {
			continue
		}

		if err := createServiceIfEnabled(manager, name, svcConfig, svcDeps); err != nil {
			return err
		}
	}

	return nil
}

// createServiceIfEnabled creates a service if it's enabled and registered
func createServiceIfEnabled(
	manager *service.Manager,
	name string,
	svcConfig types.ServiceConfig,
	svcDeps *service.Dependencies,
) error {
	if !svcConfig.Enabled {
		slog.Info("Service disabled in config", "name", name)
		return nil
	}

	if !manager.HasConstructor(name) {
		slog.Warn("Service configured but not registered", "key", name, "available_constructors", manager.ListConstructors())
		return nil
	}

	if _, err := manager.CreateService(name, svcConfig.Config, svcDeps); err != nil {
		return fmt.Errorf("create service %s: %w", name, err)
	}

	slog.Info("Created service", "name", name)
	return nil
}
