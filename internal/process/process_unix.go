//go:build unix

package process

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

var errNoSuchProcess = unix.ESRCH

// configure puts the child in its own process group so signals reach its children too
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminate(cmd *exec.Cmd) error {
	return unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
}

func kill(cmd *exec.Cmd) error {
	return unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
}
