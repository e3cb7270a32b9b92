//go:build !windows

package pidfile

import (
	"os"
	"syscall"
)

func findProcess(pid int) (*os.Process, error) {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil, err
	}

	// FindProcess always succeeds on unix so probe the process first
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return nil, err
	}

	return proc, nil
}

func terminate(proc *os.Process) error {
	return proc.Signal(syscall.SIGTERM)
}
