//go:build !unix

package process

import (
	"errors"
	"os"
	"os/exec"
)

var errNoSuchProcess = errors.New("no such process")

func configure(cmd *exec.Cmd) {}

func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Signal(os.Interrupt)
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
