package watch_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/taskrun/pkg/watch"
)

func TestSourceReportsChanges(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	require.NoError(os.MkdirAll(filepath.Join(dir, "src"), 0770))

	source, err := watch.New(watch.Config{
		Root:    dir,
		Include: []string{"src/**"},
		Lull:    50 * time.Millisecond,
	})
	require.NoError(err)
	defer source.Close()

	require.NoError(os.WriteFile(filepath.Join(dir, "src", "index.ts"), []byte("export {};"), 0660))

	select {
	case paths, ok := <-source.Triggers():
		require.True(ok)
		require.NotEmpty(paths)

		found := false
		for _, path := range paths {
			if strings.HasSuffix(filepath.ToSlash(path), "src/index.ts") {
				found = true
			}
		}
		assert.True(t, found, "changed paths: %v", paths)
	case <-time.After(10 * time.Second):
		t.Fatal("no change reported")
	}
}

func TestSourceClose(t *testing.T) {
	source, err := watch.New(watch.Config{Root: t.TempDir(), Lull: 50 * time.Millisecond})
	require.NoError(t, err)

	require.NoError(t, source.Close())
	require.NoError(t, source.Close())

	select {
	case _, ok := <-source.Triggers():
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("triggers weren't closed")
	}
}
