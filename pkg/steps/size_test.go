package steps_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ngld/taskrun/pkg/steps"
)

func TestMeasureSizes(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	dir := t.TempDir()
	content := strings.Repeat("function hello() { return 'world'; }\n", 500)
	writeFiles(t, dir, map[string]string{"index.bundle.js": content})

	sizes, err := steps.MeasureSizes(filepath.Join(dir, "index.bundle.js"))
	require.NoError(err)

	assert.Equal(int64(len(content)), sizes.Raw)
	assert.Greater(sizes.Gzip, int64(0))
	assert.Greater(sizes.Brotli, int64(0))
	assert.Less(sizes.Gzip, sizes.Raw)
	assert.Less(sizes.Brotli, sizes.Raw)
	assert.Contains(sizes.String("index.bundle.js"), "index.bundle.js: 18.07 KiB")
}

func TestMeasureSizesMissingFile(t *testing.T) {
	_, err := steps.MeasureSizes(filepath.Join(t.TempDir(), "missing.js"))
	assert.Error(t, err)
}
