package buildsys

import (
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.starlark.net/starlark"
)

// normalizePath turns script paths into absolute paths. Paths starting with // are relative to the project root,
// other relative paths are relative to the script's directory.
func normalizePath(ctx *parserCtx, pathList ...string) string {
	result := filepath.Dir(ctx.filepath)

	for _, path := range pathList {
		if strings.HasPrefix(path, "//") {
			result = filepath.Join(ctx.projectRoot, path[2:])
		} else if strings.HasPrefix(path, "/") {
			result = filepath.Join(filepath.VolumeName(result), path)
		} else if !filepath.IsAbs(path) {
			result = filepath.Join(result, path)
		} else {
			result = path
		}
	}

	return filepath.Clean(result)
}

// simplifyPath returns a project relative path (//...) for paths inside the project
func simplifyPath(ctx *parserCtx, path string) string {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}

	if absPath == ctx.projectRoot {
		return "//"
	}

	if strings.HasPrefix(absPath, ctx.projectRoot+string(filepath.Separator)) {
		return "//" + filepath.ToSlash(absPath[len(ctx.projectRoot)+1:])
	}
	return path
}

// mergeEnvVars applies overrides to the process environment and returns the result in os.Environ() format
func mergeEnvVars(overrides map[string]string) []string {
	osEnv := os.Environ()
	shellEnv := make([]string, 0, len(osEnv)+len(overrides))
	for _, item := range osEnv {
		parts := strings.SplitN(item, "=", 2)
		if runtime.GOOS == "windows" {
			parts[0] = strings.ToUpper(parts[0])
		}

		// skip overriden entries to avoid conflicts
		if _, present := overrides[parts[0]]; !present {
			shellEnv = append(shellEnv, item)
		}
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		shellEnv = append(shellEnv, k+"="+overrides[k])
	}

	return shellEnv
}

type starlarkIterable interface {
	Len() int
	Iterate() starlark.Iterator
}

// stringOrPath converts strings and paths to Go strings
func stringOrPath(value starlark.Value) (string, bool) {
	switch value := value.(type) {
	case starlark.String:
		return value.GoString(), true
	case StarlarkPath:
		return string(value), true
	default:
		return "", false
	}
}

func starlarkIterable2stringSlice(input starlarkIterable, field string) ([]string, error) {
	if input == nil {
		return []string{}, nil
	}
	if value, ok := input.(*starlark.List); ok && value == nil {
		return []string{}, nil
	}

	result := make([]string, 0, input.Len())
	iter := input.Iterate()
	defer iter.Done()

	var item starlark.Value
	for iter.Next(&item) {
		value, ok := stringOrPath(item)
		if !ok {
			return nil, eris.Errorf("expected all items in %s to be strings but found %s", field, item.Type())
		}
		result = append(result, value)
	}
	return result, nil
}

// stringList accepts a single string / path or a list / tuple of them
func stringList(value starlark.Value, field string) ([]string, error) {
	if value == nil || value == starlark.None {
		return []string{}, nil
	}

	if single, ok := stringOrPath(value); ok {
		return []string{single}, nil
	}

	iterable, ok := value.(starlarkIterable)
	if !ok {
		return nil, eris.Errorf("%s: got %s, want string or list", field, value.Type())
	}

	return starlarkIterable2stringSlice(iterable, field)
}

func interfaceToStarlark(value interface{}) (starlark.Value, error) {
	// handle a few simple and common cases first
	switch value := value.(type) {
	case nil:
		return starlark.None, nil
	case string:
		return starlark.String(value), nil
	case int:
		return starlark.MakeInt(value), nil
	case bool:
		return starlark.Bool(value), nil
	case float32:
		return starlark.Float(value), nil
	case float64:
		return starlark.Float(value), nil
	case []string:
		items := make(starlark.Tuple, len(value))
		for idx, raw := range value {
			items[idx] = starlark.String(raw)
		}

		return items, nil
	case map[string]string:
		dict := starlark.NewDict(len(value))
		for k, v := range value {
			err := dict.SetKey(starlark.String(k), starlark.String(v))
			if err != nil {
				return nil, err
			}
		}

		return dict, nil
	}

	refValue := reflect.ValueOf(value)
	switch refValue.Kind() {
	case reflect.Slice, reflect.Array:
		tuple := make(starlark.Tuple, refValue.Len())
		for idx := 0; idx < refValue.Len(); idx++ {
			item, err := interfaceToStarlark(refValue.Index(idx).Interface())
			if err != nil {
				return nil, err
			}
			tuple[idx] = item
		}

		return tuple, nil
	case reflect.Map:
		dict := starlark.NewDict(refValue.Len())
		iter := refValue.MapRange()
		for iter.Next() {
			key, err := interfaceToStarlark(iter.Key().Interface())
			if err != nil {
				return nil, err
			}

			value, err := interfaceToStarlark(iter.Value().Interface())
			if err != nil {
				return nil, err
			}

			err = dict.SetKey(key, value)
			if err != nil {
				return nil, err
			}
		}

		return dict, nil
	}

	return nil, eris.Errorf("encountered unsupported type %v", refValue.Kind())
}
