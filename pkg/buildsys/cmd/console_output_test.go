package cmd

import (
	"bytes"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsoleWriter(t *testing.T) {
	t.Setenv(DebugEnv, "")

	tests := map[string]struct {
		log      func(logger *zerolog.Logger)
		expected string
	}{
		"info with task": {
			log: func(logger *zerolog.Logger) {
				logger.Info().Str("task", "minify").Msg("bundling")
			},
			expected: "minify: bundling\n",
		},
		"command": {
			log: func(logger *zerolog.Logger) {
				logger.Info().Str("task", "typescript").Bool("command", true).Msg("tsc -p .")
			},
			expected: "typescript: tsc -p .\n",
		},
		"empty task": {
			log: func(logger *zerolog.Logger) {
				logger.Warn().Str("task", "").Msg("no files matched")
			},
			expected: "no files matched\n",
		},
		"error": {
			log: func(logger *zerolog.Logger) {
				logger.Error().Err(eris.New("exit status 1")).Msg("run failed")
			},
			expected: "Error: run failed\nexit status 1\n",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			out := new(bytes.Buffer)
			logger := zerolog.New(NewConsoleWriter(out, false))

			test.log(&logger)
			assert.Equal(t, test.expected, out.String())
		})
	}
}

func TestConsoleWriterColors(t *testing.T) {
	t.Setenv(DebugEnv, "")

	out := new(bytes.Buffer)
	logger := zerolog.New(NewConsoleWriter(out, true))
	logger.Warn().Msg("careful")

	assert.Equal(t, "\033[33mcareful\n\033[0m", out.String())
}

func TestConsoleWriterDebug(t *testing.T) {
	t.Setenv(DebugEnv, "1")

	out := new(bytes.Buffer)
	logger := zerolog.New(NewConsoleWriter(out, false))
	logger.Info().Str("task", "clean").Int("files", 3).Msg("removed")

	assert.Contains(t, out.String(), "clean: removed\n")
	assert.Contains(t, out.String(), "  files: 3\n")
	assert.Contains(t, out.String(), "  level: info\n")
}

func TestConsoleWriterInvalidInput(t *testing.T) {
	_, err := NewConsoleWriter(new(bytes.Buffer), false).Write([]byte("not json"))
	require.Error(t, err)
}
