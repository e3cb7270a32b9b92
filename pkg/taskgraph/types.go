package taskgraph

import (
	"context"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
)

// Step is a unit of work executed as a task's action
type Step interface {
	Execute(ctx context.Context) error
}

// StepFunc adapts a plain function to the Step interface
type StepFunc func(ctx context.Context) error

// Execute calls f(ctx)
func (f StepFunc) Execute(ctx context.Context) error {
	return f(ctx)
}

// Task is a named node in the graph. A task without a step only groups its prerequisites.
type Task struct {
	Name string
	Desc string
	Deps []string
	Step Step
	// Hidden tasks can be run but aren't listed
	Hidden bool
}

// IsGroup returns true if the task has no action of its own
func (t *Task) IsGroup() bool {
	return t.Step == nil
}

// Registry maps task names to tasks. It's filled during the registration phase and only read afterwards.
type Registry struct {
	lock  sync.RWMutex
	tasks map[string]*Task
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		tasks: make(map[string]*Task),
	}
}

// Register adds a task with the given prerequisites. Passing a nil step creates a grouping task.
func (r *Registry) Register(name string, deps []string, step Step) error {
	return r.Add(&Task{
		Name: name,
		Deps: deps,
		Step: step,
	})
}

// Add registers a fully populated task
func (r *Registry) Add(task *Task) error {
	if task.Name == "" {
		return eris.New("can't register a task without a name")
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	if _, exists := r.tasks[task.Name]; exists {
		return &DuplicateTaskError{Name: task.Name}
	}

	deps := make([]string, len(task.Deps))
	copy(deps, task.Deps)
	clone := *task
	clone.Deps = deps

	r.tasks[task.Name] = &clone
	return nil
}

// Lookup returns the task registered under name
func (r *Registry) Lookup(name string) (*Task, bool) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	task, ok := r.tasks[name]
	return task, ok
}

// Len returns the number of registered tasks
func (r *Registry) Len() int {
	r.lock.RLock()
	defer r.lock.RUnlock()

	return len(r.tasks)
}

// Names returns all registered task names in sorted order
func (r *Registry) Names() []string {
	r.lock.RLock()
	defer r.lock.RUnlock()

	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Tasks returns all visible tasks sorted by name
func (r *Registry) Tasks() []*Task {
	result := make([]*Task, 0)
	for _, name := range r.Names() {
		task, _ := r.Lookup(name)
		if !task.Hidden {
			result = append(result, task)
		}
	}

	return result
}

// Validate checks every registered task: all prerequisites have to exist and the graph must be acyclic.
// Prerequisites may be registered in any order, so this is meant to be called once registration is complete.
func (r *Registry) Validate() error {
	p := newPlanner(r)
	for _, name := range r.Names() {
		if err := p.visit(name, ""); err != nil {
			return err
		}
	}

	return nil
}
