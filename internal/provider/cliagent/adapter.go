// Package cliagent drives a local coding agent over JSON-RPC on stdio
// (the Codex app-server protocol) as a chat provider.
package cliagent

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/observability"
)

// Adapter implements domain.Adapter by spawning one agent process per turn.
type Adapter struct {
	config Config
}

// NewAdapter creates a new CLI agent adapter.
func NewAdapter(cfg *Config) *Adapter {
	var c Config
	if cfg != nil {
		c = *cfg
	}
	return &Adapter{config: c.withDefaults()}
}

// Kind returns the provider kind.
func (a *Adapter) Kind() domain.ProviderKind {
	return domain.ProviderCLIAgent
}

// Preflight rejects runs when the agent executable cannot be resolved.
func (a *Adapter) Preflight(_ context.Context, _ domain.ProviderSettings) error {
	if _, err := exec.LookPath(a.config.Binary); err != nil {
		return &domain.ConfigError{
			Err:    errors.Join(domain.ErrAgentUnavailable, err),
			Kind:   domain.ProviderCLIAgent,
			Reason: "agent executable " + a.config.Binary + " not found",
		}
	}
	return nil
}

// Stream runs one turn: it spawns the agent, performs the handshake, sends
// the conversation as a single turn and forwards deltas until the turn ends.
func (a *Adapter) Stream(ctx context.Context, attempt domain.Attempt, emit domain.EmitFunc) error {
	logger := observability.FromContext(ctx)

	dir, err := workDir(attempt.Settings.WorkDir)
	if err != nil {
		return &domain.TransportError{Message: "failed to resolve working directory", Cause: err}
	}

	proc, err := startProcess(a.config, dir)
	if err != nil {
		return err
	}
	defer proc.terminate()

	logger.Debug("agent process started",
		observability.String("binary", a.config.Binary),
		observability.Int("pid", proc.cmd.Process.Pid),
		observability.String("cwd", dir))

	machine := newTurnMachine(a.config.client(), attempt.Settings.Model, dir, attempt.Messages)
	err = drive(ctx, proc, machine, emit)

	logger.Debug("agent turn finished",
		observability.String("state", machine.state.String()),
		observability.String("thread_id", machine.threadID),
		observability.Error(err))
	return err
}

// ListModels asks the agent for its model catalogue.
func (a *Adapter) ListModels(ctx context.Context, settings domain.ProviderSettings) ([]domain.ModelInfo, error) {
	probe := newProbeMachine(a.config.client(), methodModelList, map[string]any{})
	if err := a.runProbe(ctx, settings.WorkDir, probe); err != nil {
		return nil, err
	}
	return decodeModels(probe.result)
}

// CheckAvailability resolves the executable and performs an initialize
// handshake. Failures are reported in the status, not as an error.
func (a *Adapter) CheckAvailability(ctx context.Context) (domain.AgentStatus, error) {
	status := domain.AgentStatus{Binary: a.config.Binary}

	path, err := exec.LookPath(a.config.Binary)
	if err != nil {
		status.Error = err.Error()
		return status, nil
	}
	status.Path = path

	probe := newProbeMachine(a.config.client(), "", nil)
	if err := a.runProbe(ctx, "", probe); err != nil {
		status.Error = err.Error()
		return status, nil
	}

	status.Available = true
	status.UserAgent = decodeUserAgent(probe.result)
	return status, nil
}

func (a *Adapter) runProbe(ctx context.Context, dir string, probe *probeMachine) error {
	dir, err := workDir(dir)
	if err != nil {
		return &domain.TransportError{Message: "failed to resolve working directory", Cause: err}
	}

	ctx, cancel := context.WithTimeout(ctx, a.config.ProbeTimeout)
	defer cancel()

	proc, err := startProcess(a.config, dir)
	if err != nil {
		return err
	}
	defer proc.terminate()

	err = drive(ctx, proc, probe, nil)
	if errors.Is(err, context.DeadlineExceeded) {
		return &domain.TimeoutError{Timeout: a.config.ProbeTimeout}
	}
	return err
}

func workDir(dir string) (string, error) {
	if dir == "" {
		return os.Getwd()
	}
	return filepath.Abs(dir)
}
