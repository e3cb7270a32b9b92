//go:build windows

package pidfile

import "os"

func findProcess(pid int) (*os.Process, error) {
	return os.FindProcess(pid)
}

func terminate(proc *os.Process) error {
	return proc.Kill()
}
