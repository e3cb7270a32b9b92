// Package config loads taskrun's settings from defaults, taskrun.toml and TASKRUN_* environment variables
package config

import (
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// DefaultFile is the config file looked up in the working directory
const DefaultFile = "taskrun.toml"

// Config describes all configuration options
type Config struct {
	Script  string `default:"tasks.star" usage:"Task script to look for (searched upwards from the working directory)"`
	Cache   string `default:".taskrun.cache" usage:"Where the parsed task script is cached (relative to the script)"`
	Jobs    int    `default:"0" usage:"How many steps may run at the same time (0 means one per CPU)"`
	PidFile string `default:".dev.pid" usage:"Pid file used by serve() and stop (relative to the script)"`
	Bundler string `default:"esbuild" usage:"Bundler executable used by bundle()"`
	Log     struct {
		Level string `default:"info"`
		JSON  bool   `default:"false" usage:"Output JSONND instead of pretty console messages"`
	}
	Watch struct {
		Lull    int      `default:"300" usage:"Milliseconds without changes before a watch run is triggered"`
		Include []string `default:"**" usage:"Patterns of watched files"`
		Exclude []string `default:"node_modules/**,dist/**,.git/**" usage:"Patterns of ignored files"`
	}
}

var logLevels = map[string]zerolog.Level{
	"trace":   zerolog.TraceLevel,
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object. Without files,
// DefaultFile is read if it exists.
func Loader(files ...string) (*Config, *aconfig.Loader) {
	if len(files) == 0 {
		files = []string{DefaultFile}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		// flags are handled by cobra
		SkipFlags: true,
		EnvPrefix: "TASKRUN",
		// TASKRUN_DEBUG is read by the console writer
		AllowUnknownEnvs: true,
		Files:            files,
		FileDecoders:     map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the configuration and validates it
func Load(files ...string) (*Config, error) {
	cfg, loader := Loader(files...)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "failed to load configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`invalid value for log.level: %s`, cfg.Log.Level)
	}

	if cfg.Jobs < 0 {
		return eris.Errorf(`invalid value for jobs: %d (must be 0 or more)`, cfg.Jobs)
	}

	if cfg.Watch.Lull < 0 {
		return eris.Errorf(`invalid value for watch.lull: %d`, cfg.Watch.Lull)
	}

	for name, value := range map[string]string{
		"script":   cfg.Script,
		"cache":    cfg.Cache,
		"pid_file": cfg.PidFile,
		"bundler":  cfg.Bundler,
	} {
		if value == "" {
			return eris.Errorf(`%s must not be empty`, name)
		}
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// WatchLull returns .Watch.Lull as a duration
func (cfg *Config) WatchLull() time.Duration {
	return time.Duration(cfg.Watch.Lull) * time.Millisecond
}
