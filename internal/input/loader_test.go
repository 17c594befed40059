package input_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyfong/aiparserpipeline/internal/input"
	"github.com/tyfong/aiparserpipeline/internal/pipeline"
)

func TestRead(t *testing.T) {
	t.Parallel()

	t.Run("GroupsByProjectInFirstAppearanceOrder", func(t *testing.T) {
		csv := strings.NewReader(
			"Project Name,URL\n" +
				"Beta,https://example.com/b1\n" +
				"Alpha,https://example.com/a1\n" +
				"Beta,https://example.com/b2\n")
		units, err := input.Read(csv)
		require.NoError(t, err)

		require.Len(t, units, 2)
		assert.Equal(t, pipeline.WorkUnit{
			Project: "Beta",
			URLs:    []string{"https://example.com/b1", "https://example.com/b2"},
		}, units[0])
		assert.Equal(t, pipeline.WorkUnit{
			Project: "Alpha",
			URLs:    []string{"https://example.com/a1"},
		}, units[1])
	})

	t.Run("DeduplicatesURLsPerProject", func(t *testing.T) {
		csv := strings.NewReader(
			"project,url\n" +
				"Alpha,https://example.com/a\n" +
				"Alpha,https://example.com/a\n" +
				"Beta,https://example.com/a\n")
		units, err := input.Read(csv)
		require.NoError(t, err)

		require.Len(t, units, 2)
		assert.Len(t, units[0].URLs, 1)
		assert.Len(t, units[1].URLs, 1)
	})

	t.Run("ExtractsURLFromProse", func(t *testing.T) {
		csv := strings.NewReader(
			"project,url\n" +
				"Alpha,\"see https://example.com/a for details\"\n")
		units, err := input.Read(csv)
		require.NoError(t, err)
		assert.Equal(t, []string{"https://example.com/a"}, units[0].URLs)
	})

	t.Run("SkipsRowsWithoutURLOrProject", func(t *testing.T) {
		csv := strings.NewReader(
			"project,url\n" +
				"Alpha,no link here\n" +
				",https://example.com/orphan\n" +
				"Beta,https://example.com/b\n")
		units, err := input.Read(csv)
		require.NoError(t, err)
		require.Len(t, units, 1)
		assert.Equal(t, "Beta", units[0].Project)
	})

	t.Run("MissingColumns", func(t *testing.T) {
		_, err := input.Read(strings.NewReader("name,link\nAlpha,https://example.com\n"))
		assert.Error(t, err)
	})

	t.Run("NoUsableRows", func(t *testing.T) {
		_, err := input.Read(strings.NewReader("project,url\n"))
		assert.Error(t, err)
	})
}

func TestLoadCSV(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "input.csv")
	require.NoError(t, os.WriteFile(path,
		[]byte("project,url\nAlpha,https://example.com/a\n"), 0o600))

	units, err := input.LoadCSV(path)
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "Alpha", units[0].Project)

	_, err = input.LoadCSV(filepath.Join(t.TempDir(), "absent.csv"))
	assert.Error(t, err)
}

func TestExtractURL(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "https://example.com/a", input.ExtractURL("https://example.com/a"))
	assert.Equal(t, "http://example.com", input.ExtractURL("link: http://example.com"))
	assert.Empty(t, input.ExtractURL("no url"))
}
