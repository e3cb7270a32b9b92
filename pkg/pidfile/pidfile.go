// Package pidfile records the process id of a long-lived background task so that a later invocation can
// stop it.
package pidfile

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// ProcessNotFoundError is returned by Stop if there is no recorded process or the process is gone
type ProcessNotFoundError struct {
	Path string
	PID  int
	Err  error
}

func (e *ProcessNotFoundError) Error() string {
	if e.PID == 0 {
		return fmt.Sprintf("no server process recorded in %s", e.Path)
	}
	return fmt.Sprintf("server process %d (recorded in %s) does not exist", e.PID, e.Path)
}

func (e *ProcessNotFoundError) Unwrap() error {
	return e.Err
}

// File is a small file holding a single process id
type File struct {
	path string
}

// New returns a handle for the pid file at path. The file isn't touched until Record or Stop is called.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the location of the pid file
func (f *File) Path() string {
	return f.path
}

// Record writes pid to the file, replacing any previous record
func (f *File) Record(pid int) error {
	err := os.WriteFile(f.path, []byte(strconv.Itoa(pid)), 0600)
	if err != nil {
		return eris.Wrapf(err, "failed to write %s", f.path)
	}

	return nil
}

// Read returns the recorded process id
func (f *File) Read() (int, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, &ProcessNotFoundError{Path: f.path, Err: err}
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, &ProcessNotFoundError{Path: f.path, Err: eris.Errorf("malformed pid file content %q", data)}
	}

	return pid, nil
}

// Clear removes the record. A missing file isn't an error.
func (f *File) Clear() error {
	err := os.Remove(f.path)
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return eris.Wrapf(err, "failed to remove %s", f.path)
	}

	return nil
}

// Stop terminates the recorded process and removes the record. Stale or malformed records are removed as
// well but still reported as a *ProcessNotFoundError.
func (f *File) Stop() error {
	pid, err := f.Read()
	if err != nil {
		if _, statErr := os.Stat(f.path); statErr == nil {
			// unreadable leftovers are useless
			if clearErr := f.Clear(); clearErr != nil {
				return clearErr
			}
		}
		return err
	}

	proc, err := findProcess(pid)
	if err != nil {
		if clearErr := f.Clear(); clearErr != nil {
			return clearErr
		}
		return &ProcessNotFoundError{Path: f.path, PID: pid, Err: err}
	}

	// the record goes first so the served process can tell a requested stop from a crash
	if err := f.Clear(); err != nil {
		return err
	}

	if err := terminate(proc); err != nil {
		return &ProcessNotFoundError{Path: f.path, PID: pid, Err: err}
	}

	return nil
}
