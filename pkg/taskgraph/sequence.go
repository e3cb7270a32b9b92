package taskgraph

import (
	"context"

	"github.com/rotisserie/eris"
)

// RunSequence runs the named tasks strictly one after another. Each name is resolved as if it was passed to
// Run, so a prerequisite shared by two entries runs again in the later stage. All names are resolved before
// the first stage starts; the sequence stops at the first failing stage.
func (e *Executor) RunSequence(ctx context.Context, names ...string) error {
	stages := make([][]*node, len(names))
	for idx, name := range names {
		nodes, err := plan(e.registry, name)
		if err != nil {
			return err
		}

		if err := checkReentry(ctx, nodes); err != nil {
			return err
		}

		stages[idx] = nodes
	}

	for idx, nodes := range stages {
		Log(ctx).Debug().Str("task", names[idx]).Msgf("sequence stage %d/%d", idx+1, len(stages))
		if err := e.execute(ctx, nodes); err != nil {
			return err
		}
	}

	return nil
}

// SequenceStep runs the listed tasks in order on the executor that runs the step
type SequenceStep struct {
	Tasks []string
}

// Execute implements Step
func (s SequenceStep) Execute(ctx context.Context) error {
	e, ok := FromContext(ctx)
	if !ok {
		return eris.New("sequence steps can only be run by an executor")
	}

	return e.RunSequence(ctx, s.Tasks...)
}

// InvokeStep runs another task (and its prerequisites) on the executor that runs the step
type InvokeStep struct {
	Task string
}

// Execute implements Step
func (s InvokeStep) Execute(ctx context.Context) error {
	e, ok := FromContext(ctx)
	if !ok {
		return eris.New("invoke steps can only be run by an executor")
	}

	return e.Run(ctx, s.Task)
}
