package cliagent

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/davidbz/chatrelay/internal/domain"
	"github.com/davidbz/chatrelay/internal/observability"
	"github.com/davidbz/chatrelay/internal/procattr"
)

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func newTailBuffer(limit int) *tailBuffer {
	return &tailBuffer{limit: limit}
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.buf = append(t.buf, p...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = append(t.buf[:0], t.buf[over:]...)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return strings.TrimSpace(string(t.buf))
}

// agentProcess is one spawned agent speaking newline-delimited JSON-RPC.
type agentProcess struct {
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  *os.File
	stderr  *tailBuffer
	grace   time.Duration
	encMu   sync.Mutex
	encoder *json.Encoder
	lines   chan []byte
	quit    chan struct{}
	exited  chan struct{}
	once    sync.Once
}

// startProcess spawns the agent in its own process group with dir as its
// working directory.
func startProcess(cfg Config, dir string) (*agentProcess, error) {
	cmd := exec.Command(cfg.Binary, cfg.Args...)
	cmd.Dir = dir
	cmd.WaitDelay = cfg.KillGrace
	procattr.Set(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, &domain.TransportError{Message: "failed to open agent stdin", Cause: err}
	}

	// stdout goes through an os.Pipe we own so Wait never closes it under
	// the reader before buffered lines are consumed.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, &domain.TransportError{Message: "failed to open agent stdout", Cause: err}
	}
	cmd.Stdout = stdoutW

	stderr := newTailBuffer(cfg.StderrTailBytes)
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		_ = stdoutR.Close()
		_ = stdoutW.Close()
		return nil, &domain.TransportError{
			Message: fmt.Sprintf("failed to start agent %s: %v", cfg.Binary, err),
			Cause:   err,
		}
	}
	_ = stdoutW.Close()

	p := &agentProcess{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdoutR,
		stderr:  stderr,
		grace:   cfg.KillGrace,
		encoder: json.NewEncoder(stdin),
		lines:   make(chan []byte),
		quit:    make(chan struct{}),
		exited:  make(chan struct{}),
	}

	go p.readLoop()
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()

	return p, nil
}

func (p *agentProcess) readLoop() {
	defer close(p.lines)

	reader := bufio.NewReader(p.stdout)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			select {
			case p.lines <- line:
			case <-p.quit:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// send writes one JSON-RPC message followed by a newline.
func (p *agentProcess) send(msg any) error {
	p.encMu.Lock()
	defer p.encMu.Unlock()

	return p.encoder.Encode(msg)
}

// exitError waits briefly for the process to exit and describes how it ended.
func (p *agentProcess) exitError() error {
	select {
	case <-p.exited:
	case <-time.After(p.grace):
		procattr.Terminate(p.cmd.Process, p.grace, p.exited)
		<-p.exited
	}

	code := -1
	if p.cmd.ProcessState != nil {
		code = p.cmd.ProcessState.ExitCode()
	}

	message := fmt.Sprintf("agent process exited with code %d", code)
	if tail := p.stderr.String(); tail != "" {
		message += ": " + tail
	}
	return &domain.TransportError{Message: message}
}

// terminate ends the session: stdin is closed, the process group is signalled
// unless the agent already exited, and the call waits for the exit. Agents
// are not given time to exit on their own once their turn is over.
func (p *agentProcess) terminate() {
	p.once.Do(func() {
		close(p.quit)
		_ = p.stdin.Close()
		select {
		case <-p.exited:
		default:
			procattr.Terminate(p.cmd.Process, p.grace, p.exited)
			<-p.exited
		}
		_ = p.stdout.Close()
	})
}

// drive runs proto over the process until it finishes, fails or ctx ends.
func drive(ctx context.Context, p *agentProcess, proto protocol, emit domain.EmitFunc) error {
	logger := observability.FromContext(ctx)

	for _, msg := range proto.Start() {
		if err := p.send(msg); err != nil {
			return p.exitError()
		}
	}

	for {
		if ctx.Err() != nil {
			p.terminate()
			return ctx.Err()
		}

		select {
		case <-ctx.Done():
			p.terminate()
			return ctx.Err()

		case line, ok := <-p.lines:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return p.exitError()
			}

			st := proto.Handle(line)
			if st.Notice != "" {
				logger.Warn(st.Notice)
			}
			for _, msg := range st.Outbound {
				if err := p.send(msg); err != nil && !errors.Is(err, os.ErrClosed) {
					logger.Debug("failed to write to agent", observability.Error(err))
				}
			}
			if emit != nil {
				for _, event := range st.Events {
					emit(event)
				}
			}
			if st.Err != nil {
				return st.Err
			}
			if st.Done {
				return nil
			}
		}
	}
}
