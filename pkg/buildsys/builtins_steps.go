package buildsys

import (
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"

	"github.com/ngld/taskrun/pkg/steps"
)

// Builtins returning steps that can be placed in a task's cmds list

func normalizePatterns(ctx *parserCtx, patterns []string) []string {
	result := make([]string, len(patterns))
	for idx, pattern := range patterns {
		result[idx] = normalizePath(ctx, pattern)
	}

	return result
}

func argsToStrings(fnName string, args starlark.Tuple) ([]string, error) {
	result := make([]string, len(args))
	for idx, arg := range args {
		value, ok := stringOrPath(arg)
		if !ok {
			return nil, eris.Errorf("%s: argument %d is a %s but only strings and paths are supported", fnName, idx+1, arg.Type())
		}
		result[idx] = value
	}

	return result, nil
}

func runSequence(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, eris.Errorf("%s: unexpected keyword arguments", fn.Name())
	}

	if len(args) == 0 {
		return nil, eris.Errorf("%s: expects at least one task name", fn.Name())
	}

	names := make([]string, len(args))
	for idx, arg := range args {
		switch value := arg.(type) {
		case starlark.String:
			names[idx] = value.GoString()
		case *Task:
			if value.Hidden {
				return nil, eris.Errorf("%s: only named tasks can be part of a sequence", fn.Name())
			}
			names[idx] = value.Short
		default:
			return nil, eris.Errorf("%s: argument %d is a %s, want task name", fn.Name(), idx+1, arg.Type())
		}
	}

	return &StarlarkStep{Cmd: &TaskCmdSequence{Tasks: names}}, nil
}

func command(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var inherit bool
	var dir starlark.Value = starlark.None

	err := starlark.UnpackArgs(fn.Name(), nil, kwargs, "inherit?", &inherit, "dir?", &dir)
	if err != nil {
		return nil, err
	}

	cmdArgs, err := argsToStrings(fn.Name(), args)
	if err != nil {
		return nil, err
	}

	if len(cmdArgs) == 0 {
		return nil, eris.Errorf("%s: missing command", fn.Name())
	}

	ctx := getCtx(thread)
	cmd := &steps.Command{
		Args:    cmdArgs,
		Dir:     filepath.Dir(ctx.filepath),
		Inherit: inherit,
	}

	if dir != starlark.None {
		dirPath, ok := stringOrPath(dir)
		if !ok {
			return nil, eris.Errorf("%s: dir has to be a string or path, not %s", fn.Name(), dir.Type())
		}
		cmd.Dir = normalizePath(ctx, dirPath)
	}

	return &StarlarkStep{Cmd: cmd}, nil
}

func bundle(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var entries starlark.Value
	var outDir string
	var bundler string
	opts := steps.BundleOptions{}

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "entries", &entries, "outdir", &outDir,
		"minify?", &opts.Minify, "sourcemaps?", &opts.SourceMaps, "builtins?", &opts.IncludeBuiltins,
		"report_size?", &opts.ReportSize, "standalone?", &opts.StandaloneExportName, "bundler?", &bundler)
	if err != nil {
		return nil, err
	}

	patterns, err := stringList(entries, "entries")
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	if bundler == "" {
		bundler = ctx.bundler
	}

	return &StarlarkStep{Cmd: &steps.Bundle{
		Bundler: bundler,
		Entries: normalizePatterns(ctx, patterns),
		Base:    filepath.Dir(ctx.filepath),
		OutDir:  normalizePath(ctx, outDir),
		Options: opts,
	}}, nil
}

func forEach(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var patterns starlark.Value
	var cmdValue starlark.Value
	var inherit bool

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "patterns", &patterns, "cmd", &cmdValue, "inherit?", &inherit)
	if err != nil {
		return nil, err
	}

	patternList, err := stringList(patterns, "patterns")
	if err != nil {
		return nil, err
	}

	cmdArgs, err := stringList(cmdValue, "cmd")
	if err != nil {
		return nil, err
	}

	if len(cmdArgs) == 0 {
		return nil, eris.Errorf("%s: missing command", fn.Name())
	}

	ctx := getCtx(thread)
	return &StarlarkStep{Cmd: &steps.ForEach{
		Patterns: normalizePatterns(ctx, patternList),
		Base:     filepath.Dir(ctx.filepath),
		Command:  cmdArgs,
		Inherit:  inherit,
	}}, nil
}

func clean(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, eris.Errorf("%s: unexpected keyword arguments", fn.Name())
	}

	paths, err := argsToStrings(fn.Name(), args)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	base := filepath.Dir(ctx.filepath)
	for _, path := range normalizePatterns(ctx, paths) {
		if path == base || path == ctx.projectRoot {
			return nil, eris.Errorf("%s: refusing to delete %s", fn.Name(), simplifyPath(ctx, path))
		}
	}

	return &StarlarkStep{Cmd: &steps.Clean{
		Base:  base,
		Paths: normalizePatterns(ctx, paths),
	}}, nil
}

func archive(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var src string
	var dest string

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "src", &src, "dest", &dest)
	if err != nil {
		return nil, err
	}

	ctx := getCtx(thread)
	return &StarlarkStep{Cmd: &steps.Archive{
		Base:   filepath.Dir(ctx.filepath),
		Source: normalizePath(ctx, src),
		Dest:   normalizePath(ctx, dest),
	}}, nil
}

func pidFileArg(ctx *parserCtx, fnName string, value starlark.Value) (string, error) {
	if value == starlark.None {
		if filepath.IsAbs(ctx.pidFile) {
			return ctx.pidFile, nil
		}
		return filepath.Join(ctx.projectRoot, ctx.pidFile), nil
	}

	path, ok := stringOrPath(value)
	if !ok {
		return "", eris.Errorf("%s: pidfile has to be a string or path, not %s", fnName, value.Type())
	}
	return normalizePath(ctx, path), nil
}

func serve(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pidFile starlark.Value = starlark.None

	err := starlark.UnpackArgs(fn.Name(), nil, kwargs, "pidfile?", &pidFile)
	if err != nil {
		return nil, err
	}

	cmdArgs, err := argsToStrings(fn.Name(), args)
	if err != nil {
		return nil, err
	}

	if len(cmdArgs) == 0 {
		return nil, eris.Errorf("%s: missing command", fn.Name())
	}

	ctx := getCtx(thread)
	path, err := pidFileArg(ctx, fn.Name(), pidFile)
	if err != nil {
		return nil, err
	}

	return &StarlarkStep{Cmd: &steps.Serve{
		Args:    cmdArgs,
		Dir:     filepath.Dir(ctx.filepath),
		PidFile: path,
	}}, nil
}

func stopServe(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var pidFile starlark.Value = starlark.None

	err := starlark.UnpackArgs(fn.Name(), args, kwargs, "pidfile?", &pidFile)
	if err != nil {
		return nil, err
	}

	path, err := pidFileArg(getCtx(thread), fn.Name(), pidFile)
	if err != nil {
		return nil, err
	}

	return &StarlarkStep{Cmd: &steps.StopServe{PidFile: path}}, nil
}
