package prompt_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyfong/aiparserpipeline/internal/prompt"
)

func writePrompts(t *testing.T, contents ...string) string {
	t.Helper()
	dir := t.TempDir()
	for i, content := range contents {
		path := filepath.Join(dir, "prompt"+string(rune('1'+i))+".txt")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	return dir
}

func TestLoader_Load(t *testing.T) {
	t.Parallel()

	dir := writePrompts(t, "first $PROJECT", "second $PROJECT")
	loader, err := prompt.NewLoader(dir, "prompt", 2)
	require.NoError(t, err)

	prompts, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"first $PROJECT", "second $PROJECT"}, prompts)
}

func TestLoader_MissingFileFails(t *testing.T) {
	t.Parallel()

	dir := writePrompts(t, "only one")
	loader, err := prompt.NewLoader(dir, "prompt", 3)
	require.NoError(t, err)

	_, err = loader.Load()
	assert.Error(t, err)
}

func TestNewLoader_Validation(t *testing.T) {
	t.Parallel()

	_, err := prompt.NewLoader("", "prompt", 1)
	assert.Error(t, err)
	_, err = prompt.NewLoader(t.TempDir(), "", 1)
	assert.Error(t, err)
	_, err = prompt.NewLoader(t.TempDir(), "prompt", 0)
	assert.Error(t, err)
}

func TestSubstitute(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "about Acme and Acme",
		prompt.Substitute("about $PROJECT and $PROJECT", "Acme"))
	assert.Equal(t, "no placeholder",
		prompt.Substitute("no placeholder", "Acme"))
}
