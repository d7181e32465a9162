package workspace

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndCleanup(t *testing.T) {
	m := NewManager(t.TempDir())
	require.NoError(t, m.Create())

	path := m.GetPath()
	require.NotEmpty(t, path)
	assert.True(t, strings.Contains(path, "gitmirror-"))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	require.NoError(t, m.Cleanup())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, m.GetPath())
}

func TestCleanupWithoutCreate(t *testing.T) {
	m := NewManager("")
	assert.NoError(t, m.Cleanup())
}
