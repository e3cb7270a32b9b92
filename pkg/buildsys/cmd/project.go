package cmd

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ngld/taskrun/pkg/buildsys"
	"github.com/ngld/taskrun/pkg/config"
	"github.com/ngld/taskrun/pkg/taskgraph"
)

// project bundles everything the commands need to know about the task script they operate on
type project struct {
	cfg    *config.Config
	script string
	root   string
	logger *zerolog.Logger
	ctx    context.Context
}

func addProjectFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("config", "c", "", "config file (defaults to "+config.DefaultFile+" next to the task script)")
	cmd.Flags().Bool("log-json", false, "print log messages as JSON lines")
	cmd.Flags().BoolP("verbose", "v", false, "enable debug messages")
}

// FindScript returns the path of the first file called name in dir or one of its parents
func FindScript(dir, name string) (string, error) {
	path := dir
	for {
		scriptPath := filepath.Join(path, name)
		_, err := os.Stat(scriptPath)
		if err == nil {
			return scriptPath, nil
		}
		if !eris.Is(err, os.ErrNotExist) {
			return "", eris.Wrapf(err, "failed to check %s", scriptPath)
		}

		parent := filepath.Dir(path)
		if parent == path {
			return "", eris.Errorf("no %s file found in %s or its parents", name, dir)
		}

		path = parent
	}
}

// SplitArgs separates task names from option overrides (key=value)
func SplitArgs(args []string) ([]string, map[string]string) {
	taskArgs := make([]string, 0)
	options := make(map[string]string)

	for _, part := range args {
		pos := strings.Index(part, "=")
		if pos > -1 {
			options[part[:pos]] = part[pos+1:]
		} else {
			taskArgs = append(taskArgs, part)
		}
	}

	return taskArgs, options
}

func isTerminal(out io.Writer) bool {
	file, ok := out.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}

func newLogger(cmd *cobra.Command, cfg *config.Config) (*zerolog.Logger, error) {
	jsonOutput, err := cmd.Flags().GetBool("log-json")
	if err != nil {
		return nil, err
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	out := cmd.ErrOrStderr()
	if !jsonOutput && !cfg.Log.JSON {
		out = NewConsoleWriter(out, isTerminal(out))
	}

	level := cfg.LogLevel()
	if verbose && level > zerolog.DebugLevel {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return &logger, nil
}

// openProject locates the task script and loads the configuration next to it
func openProject(cmd *cobra.Command) (*project, error) {
	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	wd, err := os.Getwd()
	if err != nil {
		return nil, eris.Wrap(err, "failed to retrieve the current working directory")
	}

	var cfg *config.Config
	if configFile != "" {
		cfg, err = config.Load(configFile)
	} else {
		cfg, err = config.Load(filepath.Join(wd, config.DefaultFile))
	}
	if err != nil {
		return nil, err
	}

	script := cfg.Script
	if !filepath.IsAbs(script) {
		script, err = FindScript(wd, script)
		if err != nil {
			return nil, err
		}
	}
	root := filepath.Dir(script)

	if configFile == "" && root != wd {
		// the script's directory is the project root so its config file wins
		cfg, err = config.Load(filepath.Join(root, config.DefaultFile))
		if err != nil {
			return nil, err
		}
	}

	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	return &project{
		cfg:    cfg,
		script: script,
		root:   root,
		logger: logger,
		ctx:    taskgraph.WithLogger(ctx, logger),
	}, nil
}

// resolve returns path relative to the project root unless it's absolute
func (p *project) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(p.root, path)
}

func (p *project) scriptConfig(options map[string]string) buildsys.ScriptConfig {
	return buildsys.ScriptConfig{
		Filename:    p.script,
		ProjectRoot: p.root,
		Options:     options,
		Bundler:     p.cfg.Bundler,
		PidFile:     p.cfg.PidFile,
	}
}

// loadTasks evaluates the task script (or reads the cached result) and returns the declared tasks and options
func (p *project) loadTasks(options map[string]string, useCache bool) (buildsys.TaskList, map[string]buildsys.ScriptOption, error) {
	cacheFile := ""
	if useCache {
		cacheFile = p.resolve(p.cfg.Cache)
	}

	return buildsys.Load(p.ctx, p.scriptConfig(options), cacheFile)
}
