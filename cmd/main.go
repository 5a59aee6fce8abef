package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/davidbz/chatrelay/internal/config"
	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/httpserver"
	"github.com/davidbz/chatrelay/internal/httpserver/middleware"
	"github.com/davidbz/chatrelay/internal/journal"
	"github.com/davidbz/chatrelay/internal/observability"
	"github.com/davidbz/chatrelay/internal/provider/anthropic"
	"github.com/davidbz/chatrelay/internal/provider/cliagent"
	"github.com/davidbz/chatrelay/internal/provider/openai"
	"github.com/davidbz/chatrelay/internal/provider/registry"
	"github.com/davidbz/chatrelay/internal/provider/sdkagent"
	"github.com/davidbz/chatrelay/internal/provider/sse"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "chatrelay",
	Short: "Streaming chat relay for LLM providers and local coding agents",
	Long: `chatrelay relays chat turns to OpenAI-compatible and Anthropic APIs or to a
local coding agent, and streams the reply back as ordered events.

Configuration is read from the environment and an optional .env file.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCmd.RunE(cmd, args)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(agentCheckCmd)
}

func buildContainer() *dig.Container {
	container := dig.New()

	// Configuration
	if err := container.Provide(config.Load); err != nil {
		log.Fatalf("Failed to provide config: %v", err)
	}
	if err := container.Provide(config.ParseDependenciesConfig); err != nil {
		log.Fatalf("Failed to provide config dependencies: %v", err)
	}

	// Observability
	if err := container.Provide(observability.InitLogger); err != nil {
		log.Fatalf("Failed to provide logger: %v", err)
	}
	if err := container.Provide(func(logger *zap.Logger) domain.EventPublisher {
		return observability.NewEventBus(logger)
	}); err != nil {
		log.Fatalf("Failed to provide event bus: %v", err)
	}

	// Adapters. Streams outlive any client timeout; attempts are bounded by
	// the controller instead.
	if err := container.Provide(func() *http.Client { return &http.Client{} }); err != nil {
		log.Fatalf("Failed to provide HTTP client: %v", err)
	}
	if err := container.Provide(sse.NewRunner); err != nil {
		log.Fatalf("Failed to provide SSE runner: %v", err)
	}
	if err := container.Provide(openai.NewAdapter); err != nil {
		log.Fatalf("Failed to provide OpenAI adapter: %v", err)
	}
	if err := container.Provide(anthropic.NewAdapter); err != nil {
		log.Fatalf("Failed to provide Anthropic adapter: %v", err)
	}
	if err := container.Provide(sdkagent.NewAdapter); err != nil {
		log.Fatalf("Failed to provide SDK agent adapter: %v", err)
	}
	if err := container.Provide(cliagent.NewAdapter); err != nil {
		log.Fatalf("Failed to provide CLI agent adapter: %v", err)
	}

	// Adapter Registry
	if err := container.Provide(func(
		openaiAdapter *openai.Adapter,
		anthropicAdapter *anthropic.Adapter,
		sdkAdapter *sdkagent.Adapter,
		cliAdapter *cliagent.Adapter,
	) (domain.AdapterRegistry, error) {
		reg := registry.NewRegistry()
		ctx := context.Background()

		for _, adapter := range []domain.Adapter{openaiAdapter, anthropicAdapter, sdkAdapter, cliAdapter} {
			if err := reg.Register(ctx, adapter); err != nil {
				return nil, fmt.Errorf("failed to register %s adapter: %w", adapter.Kind(), err)
			}
		}
		return reg, nil
	}); err != nil {
		log.Fatalf("Failed to provide registry: %v", err)
	}

	// Run journal, nil when disabled.
	if err := container.Provide(func(cfg *journal.Config) *journal.Journal {
		client := journal.NewClient(cfg)
		if client == nil {
			return nil
		}
		return journal.New(client, cfg)
	}); err != nil {
		log.Fatalf("Failed to provide journal: %v", err)
	}

	// Domain Services
	if err := container.Provide(domain.NewRunRegistry); err != nil {
		log.Fatalf("Failed to provide run registry: %v", err)
	}
	if err := container.Provide(domain.NewController); err != nil {
		log.Fatalf("Failed to provide controller: %v", err)
	}
	if err := container.Provide(domain.NewOrchestrator); err != nil {
		log.Fatalf("Failed to provide orchestrator: %v", err)
	}

	// HTTP Layer
	if err := container.Provide(middleware.BuildMiddlewareChain); err != nil {
		log.Fatalf("Failed to provide middleware chain: %v", err)
	}
	if err := container.Provide(httpserver.NewHandler); err != nil {
		log.Fatalf("Failed to provide HTTP handler: %v", err)
	}
	if err := container.Provide(httpserver.NewServer); err != nil {
		log.Fatalf("Failed to provide HTTP server: %v", err)
	}

	return container
}
