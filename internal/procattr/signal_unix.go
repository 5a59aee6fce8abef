//go:build unix

package procattr

import (
	"os"
	"syscall"
	"time"
)

// SignalGroup delivers sig to every process in p's group.
func SignalGroup(p *os.Process, sig syscall.Signal) error {
	if p == nil {
		return nil
	}
	return syscall.Kill(-p.Pid, sig)
}

// KillGroup sends SIGKILL to p's process group.
func KillGroup(p *os.Process) error {
	return SignalGroup(p, syscall.SIGKILL)
}

// Terminate sends SIGTERM to p's group and escalates to SIGKILL when exited
// is not closed within grace. It returns once the process has exited or the
// kill has been sent.
func Terminate(p *os.Process, grace time.Duration, exited <-chan struct{}) {
	if p == nil {
		return
	}

	_ = SignalGroup(p, syscall.SIGTERM)

	timer := time.NewTimer(grace)
	defer timer.Stop()

	select {
	case <-exited:
	case <-timer.C:
		_ = KillGroup(p)
	}
}
