//go:build !unix

package procgroup

import (
	"os"
	"os/exec"
	"time"
)

func set(cmd *exec.Cmd) {}

func killGroup(pid int, grace time.Duration) error {
	if pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	return proc.Kill()
}
