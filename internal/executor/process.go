package executor

import (
	"context"
	"os/exec"
	"syscall"
)

// newCommand creates an exec.Cmd whose process runs in its own process
// group, so that killing a stage also kills every child the tool spawned.
// Cancellation (run abort or walltime) signals the whole group.
func newCommand(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return killProcessGroup(cmd)
	}
	return cmd
}

// killProcessGroup sends SIGKILL to the command's entire process group.
func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	// Negative PID addresses the process group.
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
