package testutils

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// WriteSourceTree writes the provided files (keyed by slash-separated relative path) into an ephemeral directory and
// returns the directory's absolute path.
func WriteSourceTree(t *testing.T, files map[string]string) string {
	root := filepath.Join(t.TempDir(), "sources")
	for relativePath, content := range files {
		path := filepath.Join(root, filepath.FromSlash(relativePath))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}

	root, err := filepath.Abs(root)
	require.NoError(t, err)
	return root
}

// WriteFile writes content to name inside an ephemeral directory and returns the file's path.
func WriteFile(t *testing.T, name string, content []byte) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, content, 0644))
	return path
}
