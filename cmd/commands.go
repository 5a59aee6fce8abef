package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/davidbz/chatrelay/internal/config"
	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/httpserver"
	"github.com/davidbz/chatrelay/internal/journal"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP relay (default)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return buildContainer().Invoke(func(
			server *httpserver.Server,
			serverConfig *config.ServerConfig,
			runJournal *journal.Journal,
		) error {
			errCh := make(chan error, 1)
			go func() { errCh <- server.Start() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(),
				time.Duration(serverConfig.ShutdownTimeout)*time.Second)
			defer cancel()

			err := server.Shutdown(shutdownCtx)
			if closeErr := runJournal.Close(shutdownCtx); err == nil {
				err = closeErr
			}
			return err
		})
	},
}

type runOptions struct {
	provider      string
	model         string
	baseURL       string
	system        string
	requestFile   string
	showReasoning bool
}

var runFlags runOptions

var runCmd = &cobra.Command{
	Use:   "run [prompt...]",
	Short: "Run one turn and print the reply",
	Long: `Run sends a single turn to the configured provider and prints text deltas to
stdout as they arrive. The conversation comes from the prompt arguments or
from a YAML request file:

  settings:
    providerKind: anthropic
    model: claude-sonnet-4-5
  messages:
    - role: user
      content: hello`,
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := buildRunInput(args)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return buildContainer().Invoke(func(orchestrator *domain.Orchestrator, providerConfig *config.ProviderConfig) error {
			req := input.Resolve(providerConfig.Settings())

			var failure string
			handle, startErr := orchestrator.StartRun(ctx, req, domain.EventSinkFunc(
				func(_ context.Context, event domain.RunEvent) {
					switch event.Event.Type {
					case domain.EventDelta:
						fmt.Fprint(cmd.OutOrStdout(), event.Event.Text)
					case domain.EventReasoningDelta:
						if runFlags.showReasoning {
							fmt.Fprint(cmd.ErrOrStderr(), event.Event.Text)
						}
					case domain.EventError:
						failure = event.Event.Message
					case domain.EventDone:
					}
				}))
			if startErr != nil {
				return startErr
			}

			select {
			case <-handle.Done():
			case <-ctx.Done():
				orchestrator.StopRun(handle.ID)
				<-handle.Done()
			}
			fmt.Fprintln(cmd.OutOrStdout())

			if failure != "" {
				return errors.New(failure)
			}
			return nil
		})
	},
}

var modelsProvider string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models offered by a provider",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return buildContainer().Invoke(func(orchestrator *domain.Orchestrator, providerConfig *config.ProviderConfig) error {
			settings := domain.SettingsOverrides{
				Kind: domain.ProviderKind(modelsProvider),
			}.Resolve(providerConfig.Settings())

			models, err := orchestrator.ListModels(cmd.Context(), settings)
			if err != nil {
				return err
			}
			for _, model := range models {
				if model.DisplayName != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", model.ID, model.DisplayName)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), model.ID)
			}
			return nil
		})
	},
}

var agentCheckCmd = &cobra.Command{
	Use:   "agent-check",
	Short: "Check that the CLI agent runtime is installed and responds",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return buildContainer().Invoke(func(orchestrator *domain.Orchestrator) error {
			status, err := orchestrator.CheckAgent(cmd.Context())
			if err != nil {
				return err
			}

			out, _ := json.MarshalIndent(status, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			if !status.Available {
				return fmt.Errorf("agent %s is not available", status.Binary)
			}
			return nil
		})
	},
}

func init() {
	runCmd.Flags().StringVarP(&runFlags.provider, "provider", "p", "", "provider kind (openai-compatible, anthropic, cli-agent, sdk-agent)")
	runCmd.Flags().StringVarP(&runFlags.model, "model", "m", "", "model id")
	runCmd.Flags().StringVar(&runFlags.baseURL, "base-url", "", "provider base URL")
	runCmd.Flags().StringVar(&runFlags.system, "system", "", "system prompt")
	runCmd.Flags().StringVarP(&runFlags.requestFile, "request", "f", "", "YAML file holding a run request")
	runCmd.Flags().BoolVar(&runFlags.showReasoning, "show-reasoning", false, "print reasoning deltas to stderr")

	modelsCmd.Flags().StringVarP(&modelsProvider, "provider", "p", "", "provider kind (default from PROVIDER_KIND)")
}

// buildRunInput assembles the run from the request file, if any, and the
// command line. Flags override file settings and prompt arguments are
// appended as a user message.
func buildRunInput(args []string) (domain.RunInput, error) {
	var req domain.RunInput
	if runFlags.requestFile != "" {
		data, err := os.ReadFile(runFlags.requestFile)
		if err != nil {
			return req, fmt.Errorf("failed to read request file: %w", err)
		}
		if err = yaml.Unmarshal(data, &req); err != nil {
			return req, fmt.Errorf("failed to parse request file: %w", err)
		}
	}

	if runFlags.provider != "" {
		req.Settings.Kind = domain.ProviderKind(runFlags.provider)
	}
	if runFlags.model != "" {
		req.Settings.Model = runFlags.model
	}
	if runFlags.baseURL != "" {
		req.Settings.BaseURL = runFlags.baseURL
	}
	if runFlags.system != "" {
		req.Messages = append([]domain.Message{{Role: domain.RoleSystem, Content: runFlags.system}}, req.Messages...)
	}
	if prompt := strings.TrimSpace(strings.Join(args, " ")); prompt != "" {
		req.Messages = append(req.Messages, domain.Message{Role: domain.RoleUser, Content: prompt})
	}

	if len(req.Messages) == 0 {
		return req, errors.New("a prompt or a request file with messages is required")
	}
	return req, nil
}
