package buildsys

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	starsyntax "go.starlark.net/syntax"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

// TaskCmd is a single entry of a task's cmds list
type TaskCmd interface {
	Describe() string
}

// StepCmd is a TaskCmd that runs on its own (everything except shell snippets and nested tasks)
type StepCmd interface {
	TaskCmd
	taskgraph.Step
}

// TaskCmdScript is a shell snippet
type TaskCmdScript struct {
	TaskName string
	Content  string
	Index    int
}

func (s TaskCmdScript) Describe() string {
	return s.Content
}

// ToShellStmts parses the snippet
func (s TaskCmdScript) ToShellStmts(parser *syntax.Parser) ([]*syntax.Stmt, error) {
	reader := strings.NewReader(s.Content)
	result, err := parser.Parse(reader, fmt.Sprintf("%s:%d", s.TaskName, s.Index))
	if err != nil {
		return nil, eris.Wrapf(err, "failed to parse command %s", s.Content)
	}

	return result.Stmts, nil
}

// TaskCmdTaskRef runs another task (usually an anonymous one declared inline) in place
type TaskCmdTaskRef struct {
	Task *Task
}

func (t TaskCmdTaskRef) Describe() string {
	return "run task " + t.Task.Short
}

// TaskCmdSequence runs the listed tasks (with their prerequisites) one after another
type TaskCmdSequence struct {
	Tasks []string
}

func (s *TaskCmdSequence) Describe() string {
	return "run sequence " + strings.Join(s.Tasks, ", ")
}

func (s *TaskCmdSequence) Execute(ctx context.Context) error {
	return (&taskgraph.SequenceStep{Tasks: s.Tasks}).Execute(ctx)
}

// Task contains the processed values passed to task() by the task script
type Task struct {
	Env          map[string]string
	Short        string
	Desc         string
	Base         string
	Inputs       []string
	Deps         []string
	SkipIfExists []string
	Outputs      []string
	Cmds         []TaskCmd
	Hidden       bool
}

// TaskList maps short names to each relevant task
type TaskList map[string]*Task

// Names returns the task names in alphabetical order
func (l TaskList) Names() []string {
	names := make([]string, 0, len(l))
	for name := range l {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// ScriptOption is an option declared by the task script through option()
type ScriptOption struct {
	DefaultValue string
	Help         string
}

// Implement starlark.Value for *Task

// String returns a string representation of the task
func (t *Task) String() string {
	return fmt.Sprintf("<Task %s: %s>", t.Short, t.Desc)
}

// Type always returns "task" to indicate this type
func (t *Task) Type() string {
	return "task"
}

// Freeze doesn't do anything since tasks are immutable anyway
func (t *Task) Freeze() {}

// Truth always returns true since a task can't be nil or None
func (t *Task) Truth() starlark.Bool {
	return starlark.True
}

// Hash always returns an error since task is not hashable
func (t *Task) Hash() (uint32, error) {
	return 0, eris.New("task is not a hashable type")
}

// StarlarkStep wraps the values returned by the step builtins (bundle(), command(), ...) so that they can be
// placed in a task's cmds
type StarlarkStep struct {
	Cmd StepCmd
}

func (s *StarlarkStep) String() string {
	return fmt.Sprintf("<Step %s>", s.Cmd.Describe())
}

func (s *StarlarkStep) Type() string {
	return "step"
}

func (s *StarlarkStep) Freeze() {}

func (s *StarlarkStep) Truth() starlark.Bool {
	return starlark.True
}

func (s *StarlarkStep) Hash() (uint32, error) {
	return 0, eris.New("step is not a hashable type")
}

// StarlarkPath is an absolute path returned by resolve_path()
type StarlarkPath string

func (p StarlarkPath) String() string {
	return starlark.String(p).String()
}

func (p StarlarkPath) Type() string {
	return "path"
}

func (p StarlarkPath) Freeze() {}

func (p StarlarkPath) Truth() starlark.Bool {
	return p != ""
}

func (p StarlarkPath) Hash() (uint32, error) {
	return starlark.String(p).Hash()
}

func (p StarlarkPath) CompareSameType(op starsyntax.Token, y_ starlark.Value, depth int) (bool, error) {
	y := y_.(StarlarkPath)

	switch op {
	case starsyntax.EQL:
		return p == y, nil
	case starsyntax.NEQ:
		return p != y, nil
	case starsyntax.LT:
		return p < y, nil
	case starsyntax.LE:
		return p <= y, nil
	case starsyntax.GT:
		return p > y, nil
	case starsyntax.GE:
		return p >= y, nil
	}

	return false, eris.Errorf("unknown operator %v", op)
}

func (p StarlarkPath) Index(i int) starlark.Value {
	return starlark.String(p[i])
}

func (p StarlarkPath) Len() int {
	return len(p)
}

func (p StarlarkPath) Slice(start, end, step int) starlark.Value {
	return starlark.String(p).Slice(start, end, step)
}
