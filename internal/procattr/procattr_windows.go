//go:build windows

package procattr

import (
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Set starts the child in a new process group so console interrupts aimed at
// the relay do not reach it.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP,
	}
}

// SignalGroup kills p. Windows cannot deliver POSIX signals, so every signal
// ends the process.
func SignalGroup(p *os.Process, _ syscall.Signal) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

// KillGroup kills p.
func KillGroup(p *os.Process) error {
	return SignalGroup(p, syscall.SIGKILL)
}

// Terminate kills p and waits up to grace for exited to close.
func Terminate(p *os.Process, grace time.Duration, exited <-chan struct{}) {
	if p == nil {
		return
	}

	_ = p.Kill()

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-exited:
	case <-timer.C:
	}
}
