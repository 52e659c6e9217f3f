// Package main is the CLI entry point for the kondate meal-planning service.
//
// Start the server:
//
//	kondate serve --config kondate.yaml
//
// Mint a token for local testing:
//
//	kondate token --user alice
//
// Configuration can also come from environment variables (KONDATE_JWT_SECRET,
// KONDATE_LLM_PROVIDER, KONDATE_LLM_API_KEY, KONDATE_LLM_MODEL,
// KONDATE_TOOL_SERVER_URL) when no config file is given.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/haasonsaas/kondate/internal/agent"
	"github.com/haasonsaas/kondate/internal/auth"
	"github.com/haasonsaas/kondate/internal/classify"
	"github.com/haasonsaas/kondate/internal/config"
	"github.com/haasonsaas/kondate/internal/gateway"
	"github.com/haasonsaas/kondate/internal/history"
	"github.com/haasonsaas/kondate/internal/observability"
	"github.com/haasonsaas/kondate/internal/orchestrator"
	"github.com/haasonsaas/kondate/internal/planner"
	"github.com/haasonsaas/kondate/internal/progress"
	"github.com/haasonsaas/kondate/internal/prompts"
	"github.com/haasonsaas/kondate/internal/providers"
	"github.com/haasonsaas/kondate/internal/sessions"
	"github.com/haasonsaas/kondate/internal/tools"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "kondate",
		Short:        "Kondate - conversational meal-planning assistant",
		Long:         "Kondate turns chat messages into planned tool calls:\ninventory management, menu planning, and staged dish selection.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildTokenCmd())
	return rootCmd
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildTokenCmd() *cobra.Command {
	var configPath, userID, name string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			jwt := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
			token, err := jwt.Generate(userID, name)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	cmd.Flags().StringVar(&userID, "user", "", "User id to embed in the token")
	cmd.Flags().StringVar(&name, "name", "", "Display name to embed in the token")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.FromEnv()
	}
	return config.Load(path)
}

func run(cfg *config.Config) error {
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	metrics := observability.NewMetrics()

	tracer, shutdownTracing := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "kondate",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		SamplingRate:   cfg.Tracing.SamplingRate,
		Insecure:       cfg.Tracing.Insecure,
	})
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	completer, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	serverURLs := make(map[string]string, len(cfg.Tools.Servers))
	for name, server := range cfg.Tools.Servers {
		serverURLs[name] = server.URL
	}
	transport := tools.NewHTTPTransport(serverURLs, cfg.Tools.CallTimeout, logger)
	registry := tools.NewRegistry(transport, tools.Catalog())

	hub := progress.NewHub(logger)

	store, err := buildSessionStore(cfg, metrics)
	if err != nil {
		return err
	}
	defer store.Close()

	sweeper, err := sessions.NewSweeper(store, hub, cfg.Sessions.TTL, cfg.Sessions.SweepSchedule, logger)
	if err != nil {
		return fmt.Errorf("session sweeper: %w", err)
	}
	sweeper.Start()
	defer sweeper.Stop()

	historyStore, err := history.NewStore(cfg.History.Path)
	if err != nil {
		return err
	}
	defer historyStore.Close()

	executor := agent.NewExecutor(registry, hub, &agent.ExecutorConfig{
		MaxConcurrency: cfg.Tools.MaxConcurrency,
		CallTimeout:    cfg.Tools.CallTimeout,
	}, metrics, tracer, logger)

	classifier := classify.New(classify.Config{AdditionalMarkers: cfg.Classify.AdditionalMarkers})
	promptBuilder := prompts.New(registry)
	taskPlanner := planner.New(completer, registry, metrics, tracer, logger)

	orch := orchestrator.New(
		store,
		classifier,
		promptBuilder,
		taskPlanner,
		executor,
		hub,
		historyStore,
		completer.Model(),
		metrics,
		logger,
	)

	jwt := auth.NewJWTService(cfg.Auth.JWTSecret, cfg.Auth.TokenExpiry)
	server := gateway.NewServer(cfg.Server, orch, hub, jwt, metrics, tracer, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return server.Shutdown(ctx)
}

func buildProvider(cfg *config.Config) (providers.ChatCompleter, error) {
	switch cfg.LLM.Provider {
	case "openai":
		return providers.NewOpenAIProvider(providers.OpenAIConfig{
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			BaseURL:    cfg.LLM.BaseURL,
			MaxRetries: cfg.LLM.MaxRetries,
			RetryDelay: cfg.LLM.RetryDelay,
		})
	default:
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:     cfg.LLM.APIKey,
			Model:      cfg.LLM.Model,
			BaseURL:    cfg.LLM.BaseURL,
			MaxRetries: cfg.LLM.MaxRetries,
			RetryDelay: cfg.LLM.RetryDelay,
		})
	}
}

func buildSessionStore(cfg *config.Config, metrics *observability.Metrics) (sessions.Store, error) {
	if cfg.Sessions.Backend == "sqlite" {
		store, err := sessions.NewSQLiteStore(cfg.Sessions.Path)
		if err != nil {
			return nil, err
		}
		store.SetGauge(metrics)
		return store, nil
	}
	store := sessions.NewMemoryStore()
	store.SetGauge(metrics)
	return store, nil
}
