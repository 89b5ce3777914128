//go:build !unix

package procmanager

import (
	"errors"
	"os"
	"os/exec"
)

func configureProcAttr(cmd *exec.Cmd) {}

func killProcessGroup(p *os.Process) error {
	return p.Kill()
}

func isProcessDone(err error) bool {
	return errors.Is(err, os.ErrProcessDone)
}
