package taskgraph

import (
	"context"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
)

// ExecutorConfig configures an Executor
type ExecutorConfig struct {
	Registry *Registry
	// Workers limits how many steps run at the same time. Defaults to the number of CPUs.
	Workers int
	// CancelOnFailure cancels the context of in-flight steps once a step failed. By default they're
	// allowed to finish and only new steps are held back.
	CancelOnFailure bool
	Observers       []Observer
}

func (c *ExecutorConfig) defaults() error {
	if c.Registry == nil {
		return eris.New("registry is required")
	}

	if c.Workers < 0 {
		return eris.Errorf("invalid worker count %d", c.Workers)
	}

	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}

	return nil
}

// Executor runs tasks from a registry
type Executor struct {
	registry        *Registry
	workers         int
	cancelOnFailure bool
	observer        Observer
}

// NewExecutor creates an executor for the passed registry
func NewExecutor(cfg ExecutorConfig) (*Executor, error) {
	if err := cfg.defaults(); err != nil {
		return nil, eris.Wrap(err, "invalid executor config")
	}

	return &Executor{
		registry:        cfg.Registry,
		workers:         cfg.Workers,
		cancelOnFailure: cfg.CancelOnFailure,
		observer:        multiObserver(cfg.Observers),
	}, nil
}

// Registry returns the registry this executor reads from
func (e *Executor) Registry() *Registry {
	return e.registry
}

type (
	executorCtxKey struct{}
	activeCtxKey   struct{}
)

// FromContext returns the executor running the current step
func FromContext(ctx context.Context) (*Executor, bool) {
	e, ok := ctx.Value(executorCtxKey{}).(*Executor)
	return e, ok
}

// activeTasks returns the names of the tasks whose steps are currently executing further up the call chain
func activeTasks(ctx context.Context) []string {
	active, _ := ctx.Value(activeCtxKey{}).([]string)
	return active
}

// CurrentTask returns the name of the task whose step is running with ctx
func CurrentTask(ctx context.Context) string {
	active := activeTasks(ctx)
	if len(active) == 0 {
		return ""
	}
	return active[len(active)-1]
}

func withActiveTask(ctx context.Context, name string) context.Context {
	parent := activeTasks(ctx)
	active := make([]string, len(parent), len(parent)+1)
	copy(active, parent)
	return context.WithValue(ctx, activeCtxKey{}, append(active, name))
}

// Run executes the named task after all of its prerequisites. The whole graph is resolved first; unknown
// tasks and cycles are reported before any step runs. Once a step fails, no further steps are started and
// the failure is returned as a *TaskActionError. Run doesn't return before the steps that were already running
// have finished (or, with CancelOnFailure, have seen their context cancelled and returned), so a watch never
// starts a new run while steps of the previous one are still active.
func (e *Executor) Run(ctx context.Context, name string) error {
	nodes, err := plan(e.registry, name)
	if err != nil {
		return err
	}

	return e.execute(ctx, nodes)
}

type stepResult struct {
	node *node
	err  error
}

func (e *Executor) execute(ctx context.Context, nodes []*node) error {
	if err := checkReentry(ctx, nodes); err != nil {
		return err
	}

	ctx = context.WithValue(ctx, executorCtxKey{}, e)
	stepCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	ready := make([]*node, 0, len(nodes))
	for _, n := range nodes {
		if n.pending == 0 {
			ready = append(ready, n)
		}
	}

	// buffered so that steps finishing after a failure never block
	results := make(chan stepResult, len(nodes))
	running := 0
	var failure error

	for {
		for failure == nil && len(ready) > 0 && running < e.workers {
			if err := ctx.Err(); err != nil {
				failure = err
				break
			}

			n := ready[0]
			ready = ready[1:]

			if n.task.IsGroup() {
				Log(ctx).Debug().Str("task", n.task.Name).Msg("prerequisites done")
				ready = append(ready, unlock(n)...)
				continue
			}

			running++
			go e.runStep(stepCtx, n, results)
		}

		if running == 0 {
			break
		}

		res := <-results
		running--

		if failure != nil {
			// the run already failed, so this result doesn't matter anymore
			continue
		}

		if res.err != nil {
			failure = &TaskActionError{Task: res.node.task.Name, Err: res.err}
			if e.cancelOnFailure {
				cancel()
			}
			continue
		}

		ready = append(ready, unlock(res.node)...)
	}

	return failure
}

func (e *Executor) runStep(ctx context.Context, n *node, results chan<- stepResult) {
	name := n.task.Name
	logger := Log(ctx)

	e.observer.TaskStarted(name)
	logger.Debug().Str("task", name).Msg("starting")

	start := time.Now()
	err := n.task.Step.Execute(withActiveTask(ctx, name))
	duration := time.Since(start)

	if err != nil {
		logger.Debug().Str("task", name).Err(err).Dur("duration", duration).Msg("failed")
	} else {
		logger.Debug().Str("task", name).Dur("duration", duration).Msg("done")
	}

	e.observer.TaskFinished(name, err, duration)
	results <- stepResult{node: n, err: err}
}

// unlock marks n as completed and returns the dependents that became ready
func unlock(n *node) []*node {
	ready := make([]*node, 0)
	for _, dependent := range n.dependents {
		dependent.pending--
		if dependent.pending == 0 {
			ready = append(ready, dependent)
		}
	}

	return ready
}

// checkReentry rejects plans containing a task whose step is already running further up the call chain.
// This happens when a step starts a nested run (i.e. through a SequenceStep) that leads back to itself.
func checkReentry(ctx context.Context, nodes []*node) error {
	active := activeTasks(ctx)
	if len(active) == 0 {
		return nil
	}

	for _, n := range nodes {
		for idx, name := range active {
			if name == n.task.Name {
				path := make([]string, 0, len(active)-idx+1)
				path = append(path, active[idx:]...)
				return &CyclicDependencyError{Path: append(path, name)}
			}
		}
	}

	return nil
}
