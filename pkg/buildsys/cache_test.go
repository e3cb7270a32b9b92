package buildsys_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/taskrun/pkg/buildsys"
	"github.com/ngld/taskrun/pkg/steps"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

func TestLoadCache(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	script := writeScript(t, exampleScript)
	cacheFile := filepath.Join(filepath.Dir(script), ".taskrun.cache")
	cfg := buildsys.ScriptConfig{Filename: script}
	ctx := context.Background()

	tasks, options, err := buildsys.Load(ctx, cfg, cacheFile)
	require.NoError(err)
	require.FileExists(cacheFile)
	assert.Equal("runs the browser tests in PhantomJS", tasks["run-test"].Desc)
	assert.Contains(options, "browser")

	info, err := os.Stat(script)
	require.NoError(err)

	// an unparseable script with the old timestamp proves the cached list is used
	require.NoError(os.WriteFile(script, []byte("def configure("), 0660))
	require.NoError(os.Chtimes(script, info.ModTime(), info.ModTime()))

	cached, cachedOptions, err := buildsys.Load(ctx, cfg, cacheFile)
	require.NoError(err)
	assert.Equal(options, cachedOptions)
	assert.Equal(tasks.Names(), cached.Names())
	assert.Equal("runs the browser tests in PhantomJS", cached["run-test"].Desc)

	bundle, ok := cached["minify"].Cmds[0].(*steps.Bundle)
	require.True(ok)
	assert.True(bundle.Options.Minify)

	// different options invalidate the cache
	_, _, err = buildsys.Load(ctx, buildsys.ScriptConfig{
		Filename: script,
		Options:  map[string]string{"browser": "Chrome"},
	}, cacheFile)
	require.Error(err)
}

func TestLoadCacheModified(t *testing.T) {
	require := require.New(t)

	script := writeScript(t, exampleScript)
	cacheFile := filepath.Join(filepath.Dir(script), ".taskrun.cache")
	ctx := context.Background()

	_, _, err := buildsys.Load(ctx, buildsys.ScriptConfig{Filename: script}, cacheFile)
	require.NoError(err)

	require.NoError(os.WriteFile(script, []byte(`
def configure():
    task(short = "only", cmds = ["echo only"])
`), 0660))
	later := time.Now().Add(time.Minute)
	require.NoError(os.Chtimes(script, later, later))

	tasks, _, err := buildsys.Load(ctx, buildsys.ScriptConfig{Filename: script}, cacheFile)
	require.NoError(err)
	require.Equal([]string{"only"}, tasks.Names())
}

func TestLoadCorruptCache(t *testing.T) {
	script := writeScript(t, exampleScript)
	cacheFile := filepath.Join(filepath.Dir(script), ".taskrun.cache")
	require.NoError(t, os.WriteFile(cacheFile, []byte("garbage"), 0660))

	tasks, _, err := buildsys.Load(context.Background(), buildsys.ScriptConfig{Filename: script}, cacheFile)
	require.NoError(t, err)
	assert.Contains(t, tasks, "minify")
}

// breakScript replaces the script with invalid code but keeps its timestamp so that only a cache hit can succeed
func breakScript(t *testing.T, script string) {
	t.Helper()

	info, err := os.Stat(script)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(script, []byte("def configure("), 0660))
	require.NoError(t, os.Chtimes(script, info.ModTime(), info.ModTime()))
}

func TestLoadCacheSharedAnonymousTask(t *testing.T) {
	requireShell(t)
	require := require.New(t)

	script := writeScript(t, `
def configure():
    shared = task(cmds = ["echo shared >> log.txt"])
    task(short = "a", cmds = [shared, "echo a >> log.txt"])
    task(short = "b", cmds = [shared, "echo b >> log.txt"])
`)
	cacheFile := filepath.Join(filepath.Dir(script), ".taskrun.cache")
	cfg := buildsys.ScriptConfig{Filename: script}
	ctx := context.Background()

	tasks, _, err := buildsys.Load(ctx, cfg, cacheFile)
	require.NoError(err)
	require.NoError(buildsys.Register(taskgraph.NewRegistry(), tasks, buildsys.RunOptions{}))

	breakScript(t, script)
	cached, _, err := buildsys.Load(ctx, cfg, cacheFile)
	require.NoError(err)

	exec := newExecutor(t, cached, buildsys.RunOptions{})
	require.NoError(exec.Run(ctx, "a"))
	require.NoError(exec.Run(ctx, "b"))
	assert.Equal(t, "shared\na\nshared\nb\n", readLog(t, filepath.Join(filepath.Dir(script), "log.txt")))
}

func TestLoadCacheScriptInputs(t *testing.T) {
	require := require.New(t)

	script := writeScript(t, `
mode = getenv("TASKRUN_CACHE_MODE")
version = read_yaml("package.json", "version", "0.0.0")
loaded = load_env(".env")

def configure():
    task(short = "build", desc = "%s %s %s %s" % (mode, version, loaded, isdir("dist")))
`)
	dir := filepath.Dir(script)
	cacheFile := filepath.Join(dir, ".taskrun.cache")
	cfg := buildsys.ScriptConfig{Filename: script}
	ctx := context.Background()

	t.Setenv("TASKRUN_CACHE_MODE", "debug")
	writePackage := func(version string, mtime time.Time) {
		path := filepath.Join(dir, "package.json")
		require.NoError(os.WriteFile(path, []byte(`{"version": "`+version+`"}`), 0660))
		require.NoError(os.Chtimes(path, mtime, mtime))
	}
	writePackage("1.0.0", time.Now().Add(-time.Hour))

	desc := func() string {
		tasks, _, err := buildsys.Load(ctx, cfg, cacheFile)
		require.NoError(err)
		return tasks["build"].Desc
	}

	require.Equal("debug 1.0.0 False False", desc())

	t.Setenv("TASKRUN_CACHE_MODE", "release")
	require.Equal("release 1.0.0 False False", desc())

	writePackage("2.0.0", time.Now())
	require.Equal("release 2.0.0 False False", desc())

	require.NoError(os.WriteFile(filepath.Join(dir, ".env"), []byte("TOKEN=abc\n"), 0660))
	require.Equal("release 2.0.0 True False", desc())

	require.NoError(os.Mkdir(filepath.Join(dir, "dist"), 0770))
	require.Equal("release 2.0.0 True True", desc())

	// nothing changed, the cached result is used
	breakScript(t, script)
	require.Equal("release 2.0.0 True True", desc())
}
