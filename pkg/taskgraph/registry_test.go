package taskgraph_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

func TestRegistryRegisterDuplicate(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	rec := &recorder{}
	reg := taskgraph.NewRegistry()
	require.NoError(reg.Register("typescript", nil, rec.step("typescript")))

	err := reg.Register("typescript", []string{"clean"}, nil)
	var dupErr *taskgraph.DuplicateTaskError
	require.True(errors.As(err, &dupErr))
	assert.Equal("typescript", dupErr.Name)

	// the first registration has to survive unchanged
	task, ok := reg.Lookup("typescript")
	require.True(ok)
	assert.Empty(task.Deps)
	assert.False(task.IsGroup())
	assert.Equal(1, reg.Len())
}

func TestRegistryRegisterEmptyName(t *testing.T) {
	reg := taskgraph.NewRegistry()
	assert.Error(t, reg.Register("", nil, nil))
	assert.Equal(t, 0, reg.Len())
}

func TestRegistryCopiesPrerequisites(t *testing.T) {
	reg := taskgraph.NewRegistry()
	deps := []string{"clean"}
	require.NoError(t, reg.Register("minify", deps, nil))

	deps[0] = "changed"
	task, _ := reg.Lookup("minify")
	assert.Equal(t, []string{"clean"}, task.Deps)
}

func TestRegistryNamesAndTasks(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	reg := taskgraph.NewRegistry()
	require.NoError(reg.Add(&taskgraph.Task{Name: "test", Desc: "runs the tests"}))
	require.NoError(reg.Add(&taskgraph.Task{Name: "clean"}))
	require.NoError(reg.Add(&taskgraph.Task{Name: "auto#1", Hidden: true}))

	assert.Equal([]string{"auto#1", "clean", "test"}, reg.Names())

	tasks := reg.Tasks()
	require.Len(tasks, 2)
	assert.Equal("clean", tasks[0].Name)
	assert.Equal("test", tasks[1].Name)
	assert.Equal("runs the tests", tasks[1].Desc)
}

func TestRegistryValidate(t *testing.T) {
	tests := map[string]struct {
		defs   map[string]taskDef
		expErr error
	}{
		"forward references are fine once registered": {
			defs: map[string]taskDef{
				"release":    {deps: []string{"minify"}},
				"minify":     {deps: []string{"typescript"}},
				"typescript": {},
			},
		},
		"missing prerequisite is reported": {
			defs: map[string]taskDef{
				"release": {deps: []string{"publish"}},
			},
			expErr: &taskgraph.UnknownTaskError{},
		},
		"cycles are reported": {
			defs: map[string]taskDef{
				"a": {deps: []string{"b"}},
				"b": {deps: []string{"c"}},
				"c": {deps: []string{"a"}},
			},
			expErr: &taskgraph.CyclicDependencyError{},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			rec := &recorder{}
			exec := newExecutor(t, rec, test.defs, 1)

			err := exec.Registry().Validate()
			switch test.expErr.(type) {
			case nil:
				assert.NoError(t, err)
			case *taskgraph.UnknownTaskError:
				var target *taskgraph.UnknownTaskError
				assert.True(t, errors.As(err, &target))
			case *taskgraph.CyclicDependencyError:
				var target *taskgraph.CyclicDependencyError
				assert.True(t, errors.As(err, &target))
			}
		})
	}
}

func TestStepFunc(t *testing.T) {
	called := false
	step := taskgraph.StepFunc(func(ctx context.Context) error {
		called = true
		return nil
	})

	require.NoError(t, step.Execute(context.Background()))
	assert.True(t, called)
}
