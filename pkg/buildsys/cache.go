package buildsys

import (
	"context"
	"encoding/gob"
	"os"
	"reflect"

	"github.com/rotisserie/eris"

	"github.com/ngld/taskrun/pkg/steps"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

func init() {
	gob.Register(TaskList{})
	gob.Register(Task{})
	gob.Register(TaskCmdScript{})
	gob.Register(TaskCmdTaskRef{})
	gob.Register(&TaskCmdSequence{})
	gob.Register(&steps.Command{})
	gob.Register(&steps.Bundle{})
	gob.Register(&steps.ForEach{})
	gob.Register(&steps.Clean{})
	gob.Register(&steps.Archive{})
	gob.Register(&steps.Serve{})
	gob.Register(&steps.StopServe{})
}

// Kinds of paths reported by pathKind
const (
	kindMissing = "missing"
	kindDir     = "dir"
	kindFile    = "file"
	kindOther   = "other"
)

// scriptInputs records what a script read from outside of itself while it was evaluated. The cached result is
// only valid as long as all of these still look the same.
type scriptInputs struct {
	// Env maps variable names to the value the script saw
	Env map[string]string
	// Files maps files the script read to their modification time (-1 if the file was missing)
	Files map[string]int64
	// Paths maps paths the script checked with isdir() or isfile() to their kind
	Paths map[string]string
}

func newScriptInputs() scriptInputs {
	return scriptInputs{
		Env:   make(map[string]string),
		Files: make(map[string]int64),
		Paths: make(map[string]string),
	}
}

func (in scriptInputs) getenv(key string) string {
	value := os.Getenv(key)
	in.Env[key] = value
	return value
}

func (in scriptInputs) addFile(path string) {
	in.Files[path] = fileStamp(path)
}

func (in scriptInputs) pathKind(path string) string {
	kind := statKind(path)
	in.Paths[path] = kind
	return kind
}

func fileStamp(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return -1
	}
	return info.ModTime().UnixNano()
}

func statKind(path string) string {
	info, err := os.Stat(path)
	switch {
	case err != nil:
		return kindMissing
	case info.IsDir():
		return kindDir
	case info.Mode().IsRegular():
		return kindFile
	default:
		return kindOther
	}
}

// changed returns a description of the first input that differs from the recorded state or an empty string
// if nothing changed
func (in scriptInputs) changed() string {
	for key, value := range in.Env {
		if os.Getenv(key) != value {
			return "environment variable " + key
		}
	}

	for path, stamp := range in.Files {
		if fileStamp(path) != stamp {
			return path
		}
	}

	for path, kind := range in.Paths {
		if statKind(path) != kind {
			return path
		}
	}

	return ""
}

// cacheKey identifies the inputs a cached task list was built from
type cacheKey struct {
	Script      string
	ModTime     int64
	ProjectRoot string
	Options     map[string]string
	Bundler     string
	PidFile     string
	Inputs      scriptInputs
}

func newCacheKey(cfg ScriptConfig) (cacheKey, error) {
	info, err := os.Stat(cfg.Filename)
	if err != nil {
		return cacheKey{}, eris.Wrapf(err, "failed to check %s", cfg.Filename)
	}

	return cacheKey{
		Script:      cfg.Filename,
		ModTime:     info.ModTime().UnixNano(),
		ProjectRoot: cfg.ProjectRoot,
		Options:     cfg.Options,
		Bundler:     cfg.Bundler,
		PidFile:     cfg.PidFile,
	}, nil
}

// matches compares the static parts of both keys. The recorded script inputs are checked by Load.
func (k cacheKey) matches(other cacheKey) bool {
	if len(k.Options) == 0 && len(other.Options) == 0 {
		k.Options = nil
		other.Options = nil
	}

	k.Inputs = scriptInputs{}
	other.Inputs = scriptInputs{}
	return reflect.DeepEqual(k, other)
}

type cacheEntry struct {
	Key     cacheKey
	Options map[string]ScriptOption
	Tasks   TaskList
}

func writeCache(file string, entry cacheEntry) error {
	handle, err := os.Create(file)
	if err != nil {
		return err
	}
	defer handle.Close()

	return gob.NewEncoder(handle).Encode(entry)
}

func readCache(file string) (cacheEntry, error) {
	var entry cacheEntry

	handle, err := os.Open(file)
	if err != nil {
		return entry, err
	}
	defer handle.Close()

	err = gob.NewDecoder(handle).Decode(&entry)
	return entry, err
}

// Load returns the tasks and options declared by the script. If cacheFile is set, the evaluated script is stored
// there and reused as long as neither the script, the config nor anything the script read during its evaluation
// (environment variables, files passed to load_env() or read_yaml(), paths checked with isdir() or isfile())
// change. Output of execute() calls isn't tracked.
func Load(ctx context.Context, cfg ScriptConfig, cacheFile string) (TaskList, map[string]ScriptOption, error) {
	if err := cfg.defaults(); err != nil {
		return nil, nil, eris.Wrap(err, "invalid script config")
	}

	logger := taskgraph.Log(ctx)
	if cacheFile == "" {
		tasks, options, _, err := evalScript(ctx, cfg, true)
		return tasks, options, err
	}

	key, err := newCacheKey(cfg)
	if err != nil {
		return nil, nil, err
	}

	cached, err := readCache(cacheFile)
	if err == nil && key.matches(cached.Key) {
		changed := cached.Key.Inputs.changed()
		if changed == "" {
			logger.Debug().Str("path", cacheFile).Msg("using cached task list")
			return cached.Tasks, cached.Options, nil
		}

		logger.Debug().Str("input", changed).Msg("script input changed, evaluating the script again")
	}

	if err != nil && !eris.Is(err, os.ErrNotExist) {
		logger.Debug().Err(err).Str("path", cacheFile).Msg("ignoring unreadable cache")
	}

	tasks, options, inputs, err := evalScript(ctx, cfg, true)
	if err != nil {
		return nil, nil, err
	}

	key.Inputs = inputs
	err = writeCache(cacheFile, cacheEntry{Key: key, Options: options, Tasks: tasks})
	if err != nil {
		// not fatal, we'll just parse the script again next time
		logger.Warn().Err(err).Str("path", cacheFile).Msg("failed to write cache")
		os.Remove(cacheFile)
	}

	return tasks, options, nil
}
