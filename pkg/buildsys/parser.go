package buildsys

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/aidarkhanov/nanoid"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ngld/taskrun/pkg/steps"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

// ScriptConfig describes which script to evaluate and with which settings
type ScriptConfig struct {
	Filename string
	// ProjectRoot is the directory // paths refer to. Defaults to the script's directory.
	ProjectRoot string
	// Options override the defaults of the script's option() calls
	Options map[string]string
	// Bundler is the default executable for bundle()
	Bundler string
	// PidFile is the default pid file for serve() and stop_serve(), relative to the project root
	PidFile string
}

func (c *ScriptConfig) defaults() error {
	if c.Filename == "" {
		return eris.New("no script passed")
	}

	filename, err := filepath.Abs(c.Filename)
	if err != nil {
		return err
	}
	c.Filename = filename

	if c.ProjectRoot == "" {
		c.ProjectRoot = filepath.Dir(filename)
	}

	c.ProjectRoot, err = filepath.Abs(c.ProjectRoot)
	if err != nil {
		return err
	}

	if c.Options == nil {
		c.Options = map[string]string{}
	}

	if c.Bundler == "" {
		c.Bundler = steps.DefaultBundler
	}

	if c.PidFile == "" {
		c.PidFile = ".dev.pid"
	}

	return nil
}

type parserCtx struct {
	ctx          context.Context
	options      map[string]ScriptOption
	optionValues map[string]string
	envOverrides map[string]string
	yamlCache    map[string]interface{}
	inputs       scriptInputs
	filepath     string
	projectRoot  string
	bundler      string
	pidFile      string
	// tasks holds every task() result, including anonymous ones
	tasks     []*Task
	initPhase bool
}

// * Helpers

func getCtx(thread *starlark.Thread) *parserCtx {
	return thread.Local("parserCtx").(*parserCtx)
}

// processCmdParts converts a command tuple (i.e. ("FOO=bar", "tsc", "-p", path)) into a shell call. Leading
// strings containing a = are treated as variable assignments.
func processCmdParts(parts starlark.Tuple, parser *syntax.Parser, base string) (*syntax.CallExpr, error) {
	envVars := make([]string, 0, len(parts))
	for _, part := range parts {
		value, ok := part.(starlark.String)
		if !ok || !strings.Contains(value.GoString(), "=") {
			break
		}

		envVars = append(envVars, value.GoString())
	}

	var cmd *syntax.CallExpr
	if len(envVars) > 0 {
		joinedEnvVars := strings.Join(envVars, " ")
		result, err := parser.Parse(strings.NewReader(joinedEnvVars), "env vars")
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse command vars %s", joinedEnvVars)
		}

		if len(result.Stmts) != 1 || result.Stmts[0].Cmd == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}

		var ok bool
		cmd, ok = result.Stmts[0].Cmd.(*syntax.CallExpr)
		if !ok || cmd.Assigns == nil {
			return nil, eris.Errorf("malformed env vars %s", joinedEnvVars)
		}
	} else {
		cmd = new(syntax.CallExpr)
	}

	cmd.Args = make([]*syntax.Word, 0, len(parts)-len(envVars))
	for _, arg := range parts[len(envVars):] {
		encodedValue, ok := stringOrPath(arg)
		if !ok {
			return nil, eris.Errorf("found argument of type %s but only strings and paths are supported: %s", arg.Type(), arg.String())
		}

		if _, isPath := arg.(StarlarkPath); isPath {
			if filepath.IsAbs(encodedValue) {
				// absolute paths cause issues on Windows
				relValue, err := filepath.Rel(base, encodedValue)
				if err == nil {
					encodedValue = relValue
				}
			}

			encodedValue = filepath.ToSlash(encodedValue)
		}

		cmd.Args = append(cmd.Args, quoteWord(encodedValue))
	}

	return cmd, nil
}

// quoteWord builds a shell word that expands to exactly value
func quoteWord(value string) *syntax.Word {
	var part syntax.WordPart
	switch {
	case value == "":
		part = &syntax.SglQuoted{}
	case !strings.ContainsAny(value, " \t\n$'\"`\\*?[]{}~#;&|<>()"):
		part = &syntax.Lit{Value: value}
	case !strings.Contains(value, "'"):
		part = &syntax.SglQuoted{Value: value}
	default:
		// single quotes can't be escaped inside single quotes
		escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "`", "\\`", `$`, `\$`).Replace(value)
		part = &syntax.DblQuoted{Parts: []syntax.WordPart{&syntax.Lit{Value: escaped}}}
	}

	return &syntax.Word{Parts: []syntax.WordPart{part}}
}

func scriptLog(thread *starlark.Thread, level string, msg string) {
	ctx := getCtx(thread)
	pos := thread.CallFrame(1).Pos
	logger := taskgraph.Log(ctx.ctx)

	line := fmt.Sprintf("%s:%d:%d: %s", simplifyPath(ctx, ctx.filepath), pos.Line, pos.Col, msg)
	if level == "warn" {
		logger.Warn().Msg(line)
	} else {
		logger.Info().Msg(line)
	}
}

func warn(thread *starlark.Thread, msg string, args ...interface{}) {
	scriptLog(thread, "warn", fmt.Sprintf(msg, args...))
}

// * Builtin functions

func option(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	var defaultValue string
	var help string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "name", &name, "default?", &defaultValue, "help?", &help)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if !ctx.initPhase {
		return nil, eris.New("can only be called during the init phase (in the global scope)")
	}

	ctx.options[name] = ScriptOption{
		DefaultValue: defaultValue,
		Help:         help,
	}

	value, ok := ctx.optionValues[name]
	if ok {
		return starlark.String(value), nil
	}

	return starlark.String(defaultValue), nil
}

func task(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var deps *starlark.List
	var skipIfExists *starlark.List
	var inputs *starlark.List
	var outputs *starlark.List
	var env *starlark.Dict
	var cmds *starlark.List

	ctx := getCtx(thread)
	if ctx.initPhase {
		return nil, eris.New("tasks can only be declared inside configure()")
	}

	task := new(Task)
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "short??", &task.Short, "hidden?", &task.Hidden,
		"desc?", &task.Desc, "deps?", &deps, "base?", &task.Base, "skip_if_exists?", &skipIfExists, "inputs?",
		&inputs, "outputs?", &outputs, "env?", &env, "cmds?", &cmds)
	if err != nil {
		return nil, err
	}

	if task.Short == "" {
		task.Hidden = true
		task.Short = "auto#" + nanoid.New()
	}

	if task.Short == "configure" {
		return nil, eris.New(`the task name "configure" is reserved, please use a different name`)
	}

	if task.Base == "" {
		task.Base = "."
	}
	task.Base = normalizePath(ctx, task.Base)

	task.Deps, err = starlarkIterable2stringSlice(deps, "deps")
	if err != nil {
		return nil, err
	}

	task.SkipIfExists, err = starlarkIterable2stringSlice(skipIfExists, "skip_if_exists")
	if err != nil {
		return nil, err
	}

	task.Inputs, err = starlarkIterable2stringSlice(inputs, "inputs")
	if err != nil {
		return nil, err
	}

	task.Outputs, err = starlarkIterable2stringSlice(outputs, "outputs")
	if err != nil {
		return nil, err
	}

	task.Env, err = dictToEnv(env)
	if err != nil {
		return nil, err
	}

	task.Cmds, err = processCmds(task, cmds)
	if err != nil {
		return nil, eris.Wrapf(err, "%s", fn.Name())
	}

	if len(task.Inputs) > 0 && len(task.Outputs) == 0 {
		warn(thread, "%s: found inputs but no outputs", fn.Name())
	}

	ctx.tasks = append(ctx.tasks, task)
	return task, nil
}

func dictToEnv(env *starlark.Dict) (map[string]string, error) {
	result := map[string]string{}
	if env == nil {
		return result, nil
	}

	for _, item := range env.Items() {
		key, ok := item[0].(starlark.String)
		if !ok {
			return nil, eris.Errorf("found key type %s in env map but only strings are supported", item[0].Type())
		}

		value, ok := stringOrPath(item[1])
		if !ok {
			return nil, eris.Errorf("found value of type %s for key %s but only strings are supported", item[1].Type(), key.GoString())
		}

		result[key.GoString()] = value
	}

	return result, nil
}

func processCmds(task *Task, cmds *starlark.List) ([]TaskCmd, error) {
	result := make([]TaskCmd, 0)
	if cmds == nil {
		return result, nil
	}

	strBuffer := strings.Builder{}
	printer := syntax.NewPrinter(syntax.Minify(true))
	parser := syntax.NewParser()

	for idx := 0; idx < cmds.Len(); idx++ {
		var parts starlark.Tuple

		switch value := cmds.Index(idx).(type) {
		case starlark.String:
			result = append(result, TaskCmdScript{TaskName: task.Short, Content: value.GoString(), Index: idx})
			continue
		case *Task:
			result = append(result, TaskCmdTaskRef{Task: value})
			continue
		case *StarlarkStep:
			result = append(result, value.Cmd)
			continue
		case starlark.Tuple:
			parts = value
		case *starlark.List:
			parts = make(starlark.Tuple, value.Len())
			for subIdx := range parts {
				parts[subIdx] = value.Index(subIdx)
			}
		default:
			return nil, eris.Errorf("unexpected type %s. Only strings, tuples, lists, tasks and steps are valid", value.Type())
		}

		cmd, err := processCmdParts(parts, parser, task.Base)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to process command #%d", idx)
		}

		strBuffer.Reset()
		err = printer.Print(&strBuffer, cmd)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to process command #%d", idx)
		}

		result = append(result, TaskCmdScript{TaskName: task.Short, Content: strBuffer.String(), Index: idx})
	}

	return result, nil
}

func builtins() starlark.StringDict {
	return starlark.StringDict{
		"OS":           starlark.String(runtime.GOOS),
		"ARCH":         starlark.String(runtime.GOARCH),
		"info":         starlark.NewBuiltin("info", starInfo),
		"warn":         starlark.NewBuiltin("warn", starWarn),
		"error":        starlark.NewBuiltin("error", starError),
		"resolve_path": starlark.NewBuiltin("resolve_path", resolvePath),
		"option":       starlark.NewBuiltin("option", option),
		"getenv":       starlark.NewBuiltin("getenv", getenv),
		"setenv":       starlark.NewBuiltin("setenv", setenv),
		"prepend_path": starlark.NewBuiltin("prepend_path", prependPathDir),
		"load_env":     starlark.NewBuiltin("load_env", loadEnv),
		"read_yaml":    starlark.NewBuiltin("read_yaml", readYaml),
		"isdir":        starlark.NewBuiltin("isdir", starIsdir),
		"isfile":       starlark.NewBuiltin("isfile", starIsfile),
		"execute":      starlark.NewBuiltin("execute", starExec),
		"task":         starlark.NewBuiltin("task", task),
		"run_sequence": starlark.NewBuiltin("run_sequence", runSequence),
		"command":      starlark.NewBuiltin("command", command),
		"bundle":       starlark.NewBuiltin("bundle", bundle),
		"for_each":     starlark.NewBuiltin("for_each", forEach),
		"clean":        starlark.NewBuiltin("clean", clean),
		"archive":      starlark.NewBuiltin("archive", archive),
		"serve":        starlark.NewBuiltin("serve", serve),
		"stop_serve":   starlark.NewBuiltin("stop_serve", stopServe),
	}
}

// RunScript executes a Starlark task script and returns the declared options. If doConfigure is true, the
// script's configure function is called and the declared tasks are collected and returned.
func RunScript(ctx context.Context, cfg ScriptConfig, doConfigure bool) (TaskList, map[string]ScriptOption, error) {
	if err := cfg.defaults(); err != nil {
		return nil, nil, eris.Wrap(err, "invalid script config")
	}

	tasks, options, _, err := evalScript(ctx, cfg, doConfigure)
	return tasks, options, err
}

// evalScript implements RunScript and additionally reports which environment variables and files the script
// looked at
func evalScript(ctx context.Context, cfg ScriptConfig, doConfigure bool) (TaskList, map[string]ScriptOption, scriptInputs, error) {
	logger := taskgraph.Log(ctx)
	thread := &starlark.Thread{
		Name: "main",
		Print: func(thread *starlark.Thread, msg string) {
			logger.Info().Str("thread", thread.Name).Msg(msg)
		},
	}
	threadCtx := parserCtx{
		ctx:          ctx,
		filepath:     cfg.Filename,
		projectRoot:  cfg.ProjectRoot,
		bundler:      cfg.Bundler,
		pidFile:      cfg.PidFile,
		options:      make(map[string]ScriptOption),
		optionValues: cfg.Options,
		envOverrides: make(map[string]string),
		tasks:        make([]*Task, 0),
		yamlCache:    make(map[string]interface{}),
		inputs:       newScriptInputs(),
		initPhase:    true,
	}
	thread.SetLocal("parserCtx", &threadCtx)

	scriptName := simplifyPath(&threadCtx, cfg.Filename)
	script, err := os.ReadFile(cfg.Filename)
	if err != nil {
		return nil, nil, scriptInputs{}, eris.Wrapf(err, "failed to read %s", scriptName)
	}

	globals, err := starlark.ExecFile(thread, scriptName, script, builtins())
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, nil, scriptInputs{}, eris.Errorf("failed to execute %s:\n%s", scriptName, evalError.Backtrace())
		}
		return nil, nil, scriptInputs{}, eris.Wrapf(err, "failed to execute %s", scriptName)
	}

	for name := range cfg.Options {
		if _, declared := threadCtx.options[name]; !declared {
			logger.Warn().Msgf("%s doesn't declare the option %s", scriptName, name)
		}
	}

	tasks := TaskList{}
	if !doConfigure {
		return tasks, threadCtx.options, threadCtx.inputs, nil
	}

	configure, ok := globals["configure"]
	if !ok {
		return nil, nil, scriptInputs{}, eris.Errorf("%s did not declare a configure function", scriptName)
	}

	configureFunc, ok := configure.(starlark.Callable)
	if !ok {
		return nil, nil, scriptInputs{}, eris.Errorf("%s did declare a configure value but it's not a function", scriptName)
	}

	threadCtx.initPhase = false
	_, err = starlark.Call(thread, configureFunc, starlark.Tuple{}, nil)
	if err != nil {
		if evalError, ok := err.(*starlark.EvalError); ok {
			return nil, nil, scriptInputs{}, eris.New(evalError.Backtrace())
		}
		return nil, nil, scriptInputs{}, eris.Wrapf(err, "failed configure call in %s", scriptName)
	}

	for _, task := range threadCtx.tasks {
		for name, value := range threadCtx.envOverrides {
			if _, present := task.Env[name]; !present {
				task.Env[name] = value
			}
		}
		applyTaskEnv(task)

		if strings.HasPrefix(task.Short, "auto#") {
			// anonymous tasks are only reachable through the task that embeds them
			continue
		}

		if _, present := tasks[task.Short]; present {
			return nil, nil, scriptInputs{}, &taskgraph.DuplicateTaskError{Name: task.Short}
		}
		tasks[task.Short] = task
	}

	return tasks, threadCtx.options, threadCtx.inputs, nil
}

// applyTaskEnv passes the task's environment to steps that don't set their own
func applyTaskEnv(task *Task) {
	for _, cmd := range task.Cmds {
		switch step := cmd.(type) {
		case *steps.Command:
			if step.Env == nil {
				step.Env = task.Env
			}
		case *steps.Bundle:
			if step.Env == nil {
				step.Env = task.Env
			}
		case *steps.ForEach:
			if step.Env == nil {
				step.Env = task.Env
			}
		case *steps.Serve:
			if step.Env == nil {
				step.Env = task.Env
			}
		}
	}
}
