package steps

import (
	"context"
	"strings"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

// FilePlaceholder is replaced with the current file in ForEach commands
const FilePlaceholder = "{}"

// ForEach runs a command once for every file matched by Patterns. Files are processed one after another and
// the first failure aborts the step.
type ForEach struct {
	Patterns []string
	Base     string
	// Command is the command line to run. Each FilePlaceholder argument is replaced with the current file; if
	// there is none, the file is appended.
	Command []string
	Env     map[string]string
	Inherit bool
}

func (f *ForEach) Describe() string {
	return "for each " + strings.Join(f.Patterns, " ") + ": " + strings.Join(f.Command, " ")
}

// ArgsFor returns the command line for the passed file
func (f *ForEach) ArgsFor(file string) []string {
	args := make([]string, 0, len(f.Command)+1)
	replaced := false
	for _, arg := range f.Command {
		if strings.Contains(arg, FilePlaceholder) {
			arg = strings.ReplaceAll(arg, FilePlaceholder, file)
			replaced = true
		}
		args = append(args, arg)
	}

	if !replaced {
		args = append(args, file)
	}

	return args
}

func (f *ForEach) Execute(ctx context.Context) error {
	files, err := ResolvePatterns(f.Base, f.Patterns)
	if err != nil {
		return err
	}

	if len(files) == 0 {
		taskgraph.Log(ctx).Warn().
			Str("task", taskgraph.CurrentTask(ctx)).
			Msgf("no files matched %s", strings.Join(f.Patterns, ", "))
		return nil
	}

	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return err
		}

		cmd := &Command{
			Args:    f.ArgsFor(file),
			Dir:     f.Base,
			Env:     f.Env,
			Inherit: f.Inherit,
		}

		if err := cmd.Execute(ctx); err != nil {
			return err
		}
	}

	return nil
}
