package steps_test

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/taskrun/pkg/steps"
)

func TestForEachArgsFor(t *testing.T) {
	tests := map[string]struct {
		command []string
		exp     []string
	}{
		"file is appended": {
			command: []string{"mocha"},
			exp:     []string{"mocha", "lib/a.spec.js"},
		},
		"placeholder is replaced": {
			command: []string{"mocha", "{}", "--reporter", "dot"},
			exp:     []string{"mocha", "lib/a.spec.js", "--reporter", "dot"},
		},
		"placeholder inside an argument": {
			command: []string{"node", "--require={}"},
			exp:     []string{"node", "--require=lib/a.spec.js"},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			f := &steps.ForEach{Command: test.command}
			assert.Equal(t, test.exp, f.ArgsFor("lib/a.spec.js"))
		})
	}
}

func TestForEachExecute(t *testing.T) {
	requireShell(t)

	tests := map[string]struct {
		failOn string
		expLog []string
		expErr bool
	}{
		"runs once per file in order": {
			expLog: []string{"a.spec.js", "b.spec.js", "c.spec.js"},
		},
		"first failure aborts": {
			failOn: "b.spec.js",
			expLog: []string{"a.spec.js", "b.spec.js"},
			expErr: true,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			require := require.New(t)

			dir := t.TempDir()
			writeFiles(t, dir, map[string]string{
				"lib/__tests__/a.spec.js": "",
				"lib/__tests__/b.spec.js": "",
				"lib/__tests__/c.spec.js": "",
				"lib/__tests__/helper.js": "",
			})
			logPath := filepath.Join(dir, "log")

			f := &steps.ForEach{
				Patterns: []string{"lib/**/__tests__/*.spec.js"},
				Base:     dir,
				Command: []string{"sh", "-c", `basename "$1" >> "$2"; test "$(basename "$1")" != "$3"`,
					"sh", "{}", logPath, test.failOn},
			}

			err := f.Execute(context.Background())
			if test.expErr {
				var exitErr *steps.ExitError
				require.True(errors.As(err, &exitErr))
				assert.Equal(t, 1, exitErr.Code)
			} else {
				require.NoError(err)
			}

			lines := strings.Split(strings.TrimSpace(readFile(t, logPath)), "\n")
			assert.Equal(t, test.expLog, lines)
		})
	}
}

func TestForEachWithoutMatches(t *testing.T) {
	f := &steps.ForEach{Patterns: []string{"lib/**/*.spec.js"}, Base: t.TempDir(), Command: []string{"false"}}
	assert.NoError(t, f.Execute(context.Background()))
}
