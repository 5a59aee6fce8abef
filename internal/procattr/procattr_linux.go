//go:build linux

// Package procattr configures spawned agent processes so the whole process
// tree can be signalled and is reaped when the relay exits.
package procattr

import (
	"os/exec"
	"syscall"
)

// Set puts the child in its own process group and asks the kernel to
// SIGTERM it if the relay dies first.
func Set(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGTERM,
	}
}
