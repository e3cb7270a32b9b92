package buildsys_test

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ngld/taskrun/pkg/buildsys"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses POSIX paths and tools")
	}
}

// writeScript creates tasks.star in a fresh directory and returns its path
func writeScript(t *testing.T, content string) string {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "tasks.star")
	require.NoError(t, os.WriteFile(path, []byte(content), 0660))
	return path
}

func loadTasks(t *testing.T, script string, options map[string]string) buildsys.TaskList {
	t.Helper()

	tasks, _, err := buildsys.RunScript(context.Background(), buildsys.ScriptConfig{
		Filename: script,
		Options:  options,
	}, true)
	require.NoError(t, err)
	return tasks
}

func newExecutor(t *testing.T, tasks buildsys.TaskList, opts buildsys.RunOptions) *taskgraph.Executor {
	t.Helper()

	reg := taskgraph.NewRegistry()
	require.NoError(t, buildsys.Register(reg, tasks, opts))

	exec, err := taskgraph.NewExecutor(taskgraph.ExecutorConfig{Registry: reg, Workers: 1})
	require.NoError(t, err)
	return exec
}

func readLog(t *testing.T, path string) string {
	t.Helper()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ""
	}
	require.NoError(t, err)
	return string(data)
}
