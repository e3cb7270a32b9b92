package buildsys

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/ngld/taskrun/pkg/taskgraph"
)

func resolvePath(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	base := ""
	ctx := getCtx(thread)

	for _, kv := range kwargs {
		key := kv[0].(starlark.String).GoString()
		if key != "base" {
			return nil, eris.Errorf("unexpected keyword argument %s", key)
		}

		value, ok := stringOrPath(kv[1])
		if !ok {
			return nil, eris.Errorf("invalid type %s for keyword base, expected string or path", kv[1].Type())
		}
		base = normalizePath(ctx, value)
	}

	if len(args) < 1 {
		return nil, eris.New("expects at least one argument")
	}

	parts := make([]string, len(args))
	for idx, path := range args {
		value, ok := stringOrPath(path)
		if !ok {
			return nil, eris.Errorf("only accepts string arguments but argument %d was a %s", idx, path.Type())
		}
		parts[idx] = value
	}

	normPath := normalizePath(ctx, parts...)
	if base != "" {
		var err error
		normPath, err = filepath.Rel(base, normPath)
		if err != nil {
			return nil, err
		}
	}

	return StarlarkPath(normPath), nil
}

func starInfo(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	scriptLog(thread, "info", message)
	return starlark.None, nil
}

func starWarn(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	scriptLog(thread, "warn", message)
	return starlark.None, nil
}

func starError(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var message string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &message)
	if err != nil {
		return nil, err
	}

	return nil, eris.New(message)
}

func getenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &key)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	value, ok := ctx.envOverrides[key]
	if !ok {
		value = ctx.inputs.getenv(key)
	}

	return starlark.String(value), nil
}

func setenv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var value string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &key, &value)
	if err != nil {
		return nil, err
	}

	getCtx(thread).envOverrides[key] = value
	return starlark.True, nil
}

func prependPathDir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(args) != 1 || len(kwargs) != 0 {
		return nil, eris.Errorf("%s: got %d arguments, want 1", fn.Name(), len(args)+len(kwargs))
	}

	pathDir, ok := stringOrPath(args[0])
	if !ok {
		return nil, eris.Errorf("%s: for parameter 1: got %s, want path or string", fn.Name(), args[0].Type())
	}

	ctx := getCtx(thread)
	path, ok := ctx.envOverrides["PATH"]
	if !ok {
		path = ctx.inputs.getenv("PATH")
	}

	ctx.envOverrides["PATH"] = normalizePath(ctx, pathDir) + string(os.PathListSeparator) + path
	return starlark.String(ctx.envOverrides["PATH"]), nil
}

// loadEnv reads a dotenv file into the environment of all tasks. Missing files are ignored unless required
// is set.
func loadEnv(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var envFile string
	var required bool

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "path", &envFile, "required?", &required)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	envFile = normalizePath(ctx, envFile)
	ctx.inputs.addFile(envFile)

	values, err := godotenv.Read(envFile)
	if err != nil {
		if !required && os.IsNotExist(err) {
			return starlark.False, nil
		}
		return nil, eris.Wrapf(err, "failed to load %s", simplifyPath(ctx, envFile))
	}

	for key, value := range values {
		ctx.envOverrides[key] = value
	}

	return starlark.True, nil
}

func readYaml(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var yamlFile string
	var yamlKey string
	var defaultValue starlark.Value = starlark.None

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &yamlFile, &yamlKey, &defaultValue)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	yamlFile = normalizePath(ctx, yamlFile)

	doc, loaded := ctx.yamlCache[yamlFile]
	if !loaded {
		ctx.inputs.addFile(yamlFile)
		content, err := os.ReadFile(yamlFile)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to open file %s", yamlFile)
		}

		err = yaml.Unmarshal(content, &doc)
		if err != nil {
			return nil, eris.Wrapf(err, "failed to parse file %s", yamlFile)
		}
		ctx.yamlCache[yamlFile] = doc
	}

	value, found, err := lookupKey(doc, yamlKey)
	if err != nil {
		return nil, err
	}

	if !found {
		return defaultValue, nil
	}

	return interfaceToStarlark(value)
}

// lookupKey follows a dotted path (i.e. "scripts.build" or "files.0") through a decoded document
func lookupKey(doc interface{}, key string) (interface{}, bool, error) {
	value := reflect.ValueOf(doc)
	for _, part := range strings.Split(key, ".") {
		for value.Kind() == reflect.Interface {
			value = value.Elem()
		}

		switch value.Kind() {
		case reflect.Map:
			value = value.MapIndex(reflect.ValueOf(part))
		case reflect.Slice:
			idx, err := strconv.Atoi(part)
			if err != nil || idx < 0 || idx >= value.Len() {
				return nil, false, nil
			}
			value = value.Index(idx)
		case reflect.Invalid:
			return nil, false, nil
		default:
			return nil, false, eris.Errorf("can't look up %s in a %v value", part, value.Kind())
		}
	}

	if !value.IsValid() {
		return nil, false, nil
	}

	result := value.Interface()
	if result == nil {
		return nil, false, nil
	}
	return result, true, nil
}

func starIsdir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var dirPath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &dirPath)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	dirPath = normalizePath(ctx, dirPath)
	return starlark.Bool(ctx.inputs.pathKind(dirPath) == kindDir), nil
}

func starIsfile(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var filePath string

	err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &filePath)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	filePath = normalizePath(ctx, filePath)
	return starlark.Bool(ctx.inputs.pathKind(filePath) == kindFile), nil
}

// starExec runs a shell command while the script is evaluated and returns its output (or False if it failed)
func starExec(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var command starlark.Value
	var outputFormat string
	var showError bool

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "command", &command, "format?", &outputFormat, "show_error?", &showError)
	if err != nil {
		return nil, err
	}

	if outputFormat == "" {
		outputFormat = "text"
	}

	if outputFormat != "text" && outputFormat != "json" {
		return nil, eris.Errorf("unsupported format %s", outputFormat)
	}

	var shellCmd []syntax.Node
	parser := syntax.NewParser()
	ctx := getCtx(thread)
	base := filepath.Dir(ctx.filepath)

	switch command := command.(type) {
	case starlark.String:
		part := TaskCmdScript{
			TaskName: fn.Name(),
			Content:  command.GoString(),
		}

		stmts, err := part.ToShellStmts(parser)
		if err != nil {
			return nil, err
		}

		for _, stmt := range stmts {
			shellCmd = append(shellCmd, stmt)
		}
	case starlark.Tuple:
		expr, err := processCmdParts(command, parser, base)
		if err != nil {
			return nil, err
		}

		shellCmd = []syntax.Node{expr}
	default:
		return nil, eris.Errorf("unexpected type %s for command parameter, only strings and tuples are valid", command.Type())
	}

	outputBuffer := strings.Builder{}
	var errOut io.Writer = os.Stderr
	if !showError {
		errOut = io.Discard
	}

	runner, err := interp.New(
		interp.Dir(base),
		interp.Env(expand.ListEnviron(mergeEnvVars(ctx.envOverrides)...)),
		interp.ExecHandler(execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, &outputBuffer, errOut),
		interp.Params("-e"),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to initialize runner")
	}

	for _, cmd := range shellCmd {
		err := runner.Run(ctx.ctx, cmd)
		if err != nil {
			if showError {
				taskgraph.Log(ctx.ctx).Error().Err(err).Msg("shell error")
			}
			return starlark.False, nil
		}
	}

	if outputFormat == "json" {
		var decoded interface{}
		err = json.Unmarshal([]byte(outputBuffer.String()), &decoded)
		if err != nil {
			return nil, eris.Wrap(err, "failed to parse command output")
		}

		return interfaceToStarlark(decoded)
	}

	return starlark.String(outputBuffer.String()), nil
}
