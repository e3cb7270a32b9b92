package taskgraph

import (
	"fmt"
	"strings"
)

// UnknownTaskError is returned if a requested task or one of its prerequisites isn't registered
type UnknownTaskError struct {
	Name string
	// RequiredBy is the task that listed Name as a prerequisite. It's empty for requested tasks.
	RequiredBy string
}

func (e *UnknownTaskError) Error() string {
	if e.RequiredBy != "" {
		return fmt.Sprintf("task %s not found (required by %s)", e.Name, e.RequiredBy)
	}
	return fmt.Sprintf("task %s not found", e.Name)
}

// DuplicateTaskError is returned when a name is registered twice
type DuplicateTaskError struct {
	Name string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("task %s is already registered", e.Name)
}

// CyclicDependencyError is returned if a task (transitively) depends on itself
type CyclicDependencyError struct {
	// Path lists the tasks forming the cycle. The first and last entry are the same task.
	Path []string
}

func (e *CyclicDependencyError) Error() string {
	return "cyclic dependency: " + strings.Join(e.Path, " -> ")
}

// TaskActionError wraps the error returned by a task's step
type TaskActionError struct {
	Task string
	Err  error
}

func (e *TaskActionError) Error() string {
	return fmt.Sprintf("task %s failed: %v", e.Task, e.Err)
}

func (e *TaskActionError) Unwrap() error {
	return e.Err
}
