package buildsys

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ngld/taskrun/pkg/steps"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

// RunOptions control how registered tasks behave
type RunOptions struct {
	// DryRun only logs the commands
	DryRun bool
	// Force disables the skip_if_exists and inputs / outputs checks
	Force bool
}

// Commands with a portable implementation in our own executable
var portableCommands = map[string]bool{
	"mv":    true,
	"rm":    true,
	"mkdir": true,
}

var (
	selfPath     string
	selfPathOnce sync.Once
)

func executable() string {
	selfPathOnce.Do(func() {
		var err error
		selfPath, err = os.Executable()
		if err != nil {
			selfPath = "taskrun"
		}
	})

	return selfPath
}

var defaultExecHandler = interp.DefaultExecHandler(2 * time.Second)

func execHandler(ctx context.Context, args []string) error {
	if len(args) > 0 && portableCommands[args[0]] {
		// always use our cross-platform implementation for these operations to make sure
		// they behave consistently
		args = append([]string{executable()}, args...)
	}

	return defaultExecHandler(ctx, args)
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// TaskStep runs the cmds of a script task
type TaskStep struct {
	Task    *Task
	Options RunOptions
}

// Execute implements taskgraph.Step
func (s *TaskStep) Execute(ctx context.Context) error {
	task := s.Task
	logger := taskgraph.Log(ctx)

	if !s.Options.Force {
		skip, err := upToDate(ctx, task)
		if err != nil {
			return err
		}

		if skip {
			return nil
		}
	}

	// With the skip and input/output checks done, we can finally start executing
	runner, err := interp.New(
		interp.Dir(task.Base),
		interp.Env(expand.ListEnviron(mergeEnvVars(task.Env)...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, os.Stdout, os.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "failed to initialize runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}

	for _, item := range task.Cmds {
		switch cmd := item.(type) {
		case TaskCmdScript:
			stmts, err := cmd.ToShellStmts(parser)
			if err != nil {
				return err
			}

			for _, stmt := range stmts {
				strBuffer.Reset()
				printer.Print(&strBuffer, stmt)
				logger.Info().
					Str("task", task.Short).
					Bool("command", true).
					Msg(strBuffer.String())

				if s.Options.DryRun {
					continue
				}

				err = runner.Run(ctx, stmt)
				if err != nil {
					return shellError(err)
				}

				if runner.Exited() {
					return nil
				}
			}
		case TaskCmdTaskRef:
			err = taskgraph.InvokeStep{Task: cmd.Task.Short}.Execute(ctx)
			if err != nil {
				return err
			}
		case StepCmd:
			if s.Options.DryRun {
				logger.Info().
					Str("task", task.Short).
					Bool("command", true).
					Msg(cmd.Describe())

				if _, nested := cmd.(*TaskCmdSequence); !nested {
					continue
				}
			}

			err = cmd.Execute(ctx)
			if err != nil {
				return err
			}
		default:
			return eris.Errorf("unexpected task command %+v", item)
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}

// shellError converts the interpreter's exit status into the same error commands return
func shellError(err error) error {
	if status, ok := interp.IsExitStatus(err); ok {
		return &steps.ExitError{Command: "sh", Code: int(status)}
	}

	return err
}

// upToDate reports whether the task can be skipped: either all of its skip_if_exists files exist or its newest
// output is newer than its newest input.
func upToDate(ctx context.Context, task *Task) (bool, error) {
	logger := taskgraph.Log(ctx)

	if len(task.SkipIfExists) > 0 {
		skipList, err := steps.ResolvePatterns(task.Base, task.SkipIfExists)
		if err != nil {
			return false, eris.Wrapf(err, "failed to resolve skip_if_exists list")
		}

		found := 0
		for _, item := range skipList {
			_, err := os.Stat(item)
			if err == nil {
				found++
			} else if !eris.Is(err, os.ErrNotExist) {
				return false, eris.Wrapf(err, "failed to check %s", item)
			}
		}

		if found > 0 && found == len(skipList) {
			logger.Info().
				Str("task", task.Short).
				Msg("skipped because all skip files exist")
			return true, nil
		}
	}

	if len(task.Inputs) == 0 || len(task.Outputs) == 0 {
		return false, nil
	}

	inputList, err := steps.ResolvePatterns(task.Base, task.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	var newestInput time.Time
	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			return false, eris.Wrapf(err, "failed to check input %s", item)
		}

		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() {
		return false, nil
	}

	outputList, err := steps.ResolvePatterns(task.Base, task.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve output list")
	}

	var newestOutput time.Time
	oldestOutput := time.Now()
	for _, item := range outputList {
		info, err := os.Stat(item)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				// a missing output always means we have to run
				return false, nil
			}
			return false, eris.Wrapf(err, "failed to check output %s", item)
		}

		mt := info.ModTime()
		if mt.After(newestOutput) {
			newestOutput = mt
		}

		if mt.Before(oldestOutput) {
			oldestOutput = mt
		}
	}

	if newestOutput.IsZero() {
		return false, nil
	}

	if newestOutput.Sub(oldestOutput) > 10*time.Minute {
		logger.Warn().
			Str("task", task.Short).
			Msgf("oldest output is %f minutes older than the newest output", newestOutput.Sub(oldestOutput).Minutes())
	}

	if newestOutput.After(newestInput) {
		logger.Info().
			Str("task", task.Short).
			Msgf("nothing to do (output is %f seconds newer)", newestOutput.Sub(newestInput).Seconds())
		return true, nil
	}

	return false, nil
}

// Register adds the script's tasks (including anonymous tasks embedded in cmds) to reg and validates the
// resulting graph
func Register(reg *taskgraph.Registry, tasks TaskList, opts RunOptions) error {
	// Anonymous tasks can be embedded in several cmds lists. Tasks read from the cache are separate copies at
	// that point, so they're tracked by name.
	seen := map[string]bool{}
	var add func(task *Task) error
	add = func(task *Task) error {
		if seen[task.Short] {
			return nil
		}
		seen[task.Short] = true

		entry := &taskgraph.Task{
			Name:   task.Short,
			Desc:   task.Desc,
			Deps:   task.Deps,
			Hidden: task.Hidden,
		}

		if len(task.Cmds) > 0 {
			entry.Step = &TaskStep{Task: task, Options: opts}
		}

		if err := reg.Add(entry); err != nil {
			return err
		}

		for _, cmd := range task.Cmds {
			if ref, ok := cmd.(TaskCmdTaskRef); ok {
				if _, registered := tasks[ref.Task.Short]; registered {
					// named tasks are registered on their own
					continue
				}

				if err := add(ref.Task); err != nil {
					return err
				}
			}
		}

		return nil
	}

	for _, name := range tasks.Names() {
		if err := add(tasks[name]); err != nil {
			return err
		}
	}

	return reg.Validate()
}
