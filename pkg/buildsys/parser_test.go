package buildsys_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/taskrun/pkg/buildsys"
	"github.com/ngld/taskrun/pkg/steps"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

const exampleScript = `
browser = option("browser", "PhantomJS", "browser used by the test tasks")

def configure():
    task(short = "clean", desc = "removes build output", cmds = [clean("dist")])
    task(
        short = "typescript",
        desc = "compiles the sources",
        inputs = ["src/**/*.ts"],
        outputs = ["lib/**/*.js"],
        env = {"NODE_ENV": "production"},
        cmds = ["tsc -p ."],
    )
    task(
        short = "minify",
        deps = ["typescript"],
        cmds = [
            bundle("lib/index.js", "dist", minify = True, report_size = True, standalone = "Fuel"),
            ("echo", "it's done"),
        ],
    )
    task(
        short = "run-test",
        desc = "runs the browser tests in " + browser,
        cmds = [command("karma", "start", "--browsers", browser, inherit = True)],
    )
    task(short = "publish", cmds = [command("npm", "publish", inherit = True)])
    task(short = "release", cmds = [run_sequence("clean", "minify", "publish")])
    task(short = "nested", cmds = [task(cmds = ["echo inline"])])
`

func TestRunScriptDeclaresTasks(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	script := writeScript(t, exampleScript)
	dir := filepath.Dir(script)
	tasks, options, err := buildsys.RunScript(context.Background(), buildsys.ScriptConfig{Filename: script}, true)
	require.NoError(err)

	assert.Equal([]string{"clean", "minify", "nested", "publish", "release", "run-test", "typescript"}, tasks.Names())
	assert.Equal(buildsys.ScriptOption{DefaultValue: "PhantomJS", Help: "browser used by the test tasks"}, options["browser"])

	ts := tasks["typescript"]
	assert.Equal("compiles the sources", ts.Desc)
	assert.Equal(dir, ts.Base)
	assert.Equal([]string{"src/**/*.ts"}, ts.Inputs)
	assert.Equal("production", ts.Env["NODE_ENV"])
	require.Len(ts.Cmds, 1)
	assert.Equal("tsc -p .", ts.Cmds[0].Describe())

	minify := tasks["minify"]
	assert.Equal([]string{"typescript"}, minify.Deps)
	require.Len(minify.Cmds, 2)

	b, ok := minify.Cmds[0].(*steps.Bundle)
	require.True(ok)
	assert.Equal("esbuild", b.Bundler)
	assert.Equal([]string{filepath.Join(dir, "lib", "index.js")}, b.Entries)
	assert.Equal(filepath.Join(dir, "dist"), b.OutDir)
	assert.Equal(steps.BundleOptions{Minify: true, ReportSize: true, StandaloneExportName: "Fuel"}, b.Options)
	assert.Equal(`echo "it's done"`, minify.Cmds[1].Describe())

	clean, ok := tasks["clean"].Cmds[0].(*steps.Clean)
	require.True(ok)
	assert.Equal([]string{filepath.Join(dir, "dist")}, clean.Paths)

	publish, ok := tasks["publish"].Cmds[0].(*steps.Command)
	require.True(ok)
	assert.Equal([]string{"npm", "publish"}, publish.Args)
	assert.True(publish.Inherit)

	seq, ok := tasks["release"].Cmds[0].(*buildsys.TaskCmdSequence)
	require.True(ok)
	assert.Equal([]string{"clean", "minify", "publish"}, seq.Tasks)

	ref, ok := tasks["nested"].Cmds[0].(buildsys.TaskCmdTaskRef)
	require.True(ok)
	assert.True(ref.Task.Hidden)
	assert.Contains(ref.Task.Short, "auto#")
}

func TestRunScriptOptions(t *testing.T) {
	script := writeScript(t, exampleScript)
	tasks := loadTasks(t, script, map[string]string{"browser": "Chrome"})

	assert.Equal(t, "runs the browser tests in Chrome", tasks["run-test"].Desc)
	cmd := tasks["run-test"].Cmds[0].(*steps.Command)
	assert.Equal(t, []string{"karma", "start", "--browsers", "Chrome"}, cmd.Args)
}

func TestRunScriptErrors(t *testing.T) {
	tests := map[string]struct {
		script string
		check  func(t *testing.T, err error)
	}{
		"missing configure": {
			script: `x = 1`,
		},
		"duplicate task": {
			script: `
def configure():
    task(short = "clean")
    task(short = "clean")
`,
			check: func(t *testing.T, err error) {
				var dupErr *taskgraph.DuplicateTaskError
				require.True(t, errors.As(err, &dupErr))
				assert.Equal(t, "clean", dupErr.Name)
			},
		},
		"reserved name": {
			script: `
def configure():
    task(short = "configure")
`,
		},
		"option outside the init phase": {
			script: `
def configure():
    option("late", "")
`,
		},
		"task outside configure": {
			script: `task(short = "early")`,
		},
		"invalid cmd": {
			script: `
def configure():
    task(short = "broken", cmds = [42])
`,
		},
		"error()": {
			script: `
def configure():
    error("unsupported platform")
`,
		},
		"syntax error": {
			script: `def configure(`,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			script := writeScript(t, test.script)
			_, _, err := buildsys.RunScript(context.Background(), buildsys.ScriptConfig{Filename: script}, true)
			require.Error(t, err)

			if test.check != nil {
				test.check(t, err)
			}
		})
	}
}

func TestRunScriptWithoutConfigure(t *testing.T) {
	script := writeScript(t, `
mode = option("mode", "dev")
`)
	tasks, options, err := buildsys.RunScript(context.Background(), buildsys.ScriptConfig{Filename: script}, false)
	require.NoError(t, err)
	assert.Empty(t, tasks)
	assert.Contains(t, options, "mode")
}

func TestRunScriptBuiltins(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	script := writeScript(t, `
version = read_yaml("package.json", "version", "0.0.0")
main = read_yaml("package.json", "files.1")
missing = read_yaml("package.json", "scripts.nope", "none")
loaded = load_env(".env")
skipped = load_env(".env.missing")
has_src = isdir("src")
has_pkg = isfile("package.json")
setenv("BUILD_MODE", "release")
prepend_path(resolve_path("node_modules", ".bin"))
out = execute("echo $BUILD_MODE")

def configure():
    task(
        short = "info",
        desc = "%s %s %s %s %s %s %s %s" % (version, main, missing, loaded, skipped, has_src, has_pkg, out.strip()),
        cmds = [command("node", resolve_path("scripts/info.js", base = "//"))],
    )
`)
	dir := filepath.Dir(script)
	require.NoError(os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{
  "name": "fuel",
  "version": "1.2.3",
  "files": ["lib", "dist"]
}`), 0660))
	require.NoError(os.WriteFile(filepath.Join(dir, ".env"), []byte("API_TOKEN=secret\n"), 0660))

	tasks := loadTasks(t, script, nil)
	task := tasks["info"]
	assert.Equal("1.2.3 dist none True False False True release", task.Desc)

	assert.Equal("secret", task.Env["API_TOKEN"])
	assert.Equal("release", task.Env["BUILD_MODE"])
	assert.Contains(task.Env["PATH"], filepath.Join(dir, "node_modules", ".bin"))

	cmd := task.Cmds[0].(*steps.Command)
	assert.Equal([]string{"node", filepath.Join("scripts", "info.js")}, cmd.Args)
	// steps inherit the task's environment
	assert.Equal("secret", cmd.Env["API_TOKEN"])
}

func TestRunScriptServeDefaults(t *testing.T) {
	script := writeScript(t, `
def configure():
    task(short = "tdd", cmds = [serve("karma", "start")])
    task(short = "stop-serve", cmds = [stop_serve()])
`)
	dir := filepath.Dir(script)

	tasks, _, err := buildsys.RunScript(context.Background(), buildsys.ScriptConfig{
		Filename: script,
		PidFile:  ".karma.pid",
	}, true)
	require.NoError(t, err)

	serve := tasks["tdd"].Cmds[0].(*steps.Serve)
	assert.Equal(t, filepath.Join(dir, ".karma.pid"), serve.PidFile)
	assert.Equal(t, []string{"karma", "start"}, serve.Args)

	stop := tasks["stop-serve"].Cmds[0].(*steps.StopServe)
	assert.Equal(t, filepath.Join(dir, ".karma.pid"), stop.PidFile)
}
