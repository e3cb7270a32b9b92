package steps

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

// ExitError is returned when an external tool exits with a non-zero status
type ExitError struct {
	Command string
	Code    int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with code %d", e.Command, e.Code)
}

// Command runs an external tool
type Command struct {
	Args []string
	Dir  string
	Env  map[string]string
	// Inherit connects the tool to the invoking process's stdin. stdout and stderr are always passed through.
	Inherit bool
}

// Describe returns the command line
func (c *Command) Describe() string {
	return strings.Join(c.Args, " ")
}

func (c *Command) Execute(ctx context.Context) error {
	if len(c.Args) == 0 {
		return eris.New("empty command")
	}

	taskgraph.Log(ctx).Info().
		Str("task", taskgraph.CurrentTask(ctx)).
		Bool("command", true).
		Msg(c.Describe())

	cmd := c.build(ctx)
	err := cmd.Run()
	if err != nil {
		return exitError(c.Args[0], err)
	}

	return nil
}

func (c *Command) build(ctx context.Context) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Args[0], c.Args[1:]...)
	cmd.Dir = c.Dir
	cmd.Env = mergeEnv(c.Env)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if c.Inherit {
		cmd.Stdin = os.Stdin
	}

	return cmd
}

func exitError(name string, err error) error {
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &ExitError{Command: name, Code: exitErr.ExitCode()}
	}

	return eris.Wrapf(err, "failed to run %s", name)
}

// mergeEnv returns the process environment with the passed overrides applied
func mergeEnv(overrides map[string]string) []string {
	osEnv := os.Environ()
	env := make([]string, 0, len(osEnv)+len(overrides))
	for _, item := range osEnv {
		parts := strings.SplitN(item, "=", 2)
		if _, present := overrides[parts[0]]; !present {
			env = append(env, item)
		}
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}

	return env
}
