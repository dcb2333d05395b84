package compilation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/crytic/provenance/compilation/platforms"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestCompilerCacheConfig returns a cache configuration with two empty repositories and fast retries.
func newTestCompilerCacheConfig(t *testing.T, serverURL string) CompilerCacheConfig {
	config := NewCompilerCacheConfig()
	config.RepositoryDirectories = []string{filepath.Join(t.TempDir(), "tmp"), filepath.Join(t.TempDir(), "repo")}
	config.BinaryBaseURL = serverURL + "/bin"
	config.SoljsonBaseURL = serverURL + "/js"
	config.DownloadRetries = 1
	config.DownloadTimeoutSeconds = 5
	return config
}

// TestCompilerCacheFileNames checks artifact naming for both artifact kinds.
func TestCompilerCacheFileNames(t *testing.T) {
	c := NewCompilerCache(CompilerCacheConfig{Platform: "linux-amd64"})
	assert.Equal(t, "solc-linux-amd64-v0.8.7+commit.e28d00a7", c.ArtifactFileName("0.8.7+commit.e28d00a7", platforms.ArtifactNative))
	assert.Equal(t, "soljson-v0.8.7+commit.e28d00a7.js", c.ArtifactFileName("0.8.7+commit.e28d00a7", platforms.ArtifactSoljson))
}

// TestCompilerCacheDownloadsOnce checks that concurrent acquisitions download a soljson artifact a single time and that
// later acquisitions are served from the repository.
func TestCompilerCacheDownloadsOnce(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/js/soljson-v0.8.7+commit.e28d00a7.js", r.URL.Path)
		_, _ = w.Write([]byte("var Module = {};"))
	}))
	defer server.Close()

	config := newTestCompilerCacheConfig(t, server.URL)
	c := NewCompilerCache(config)

	var wg sync.WaitGroup
	paths := make([]string, 4)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, err := c.Acquire(context.Background(), "0.8.7+commit.e28d00a7", platforms.ArtifactSoljson)
			assert.NoError(t, err)
			paths[i] = path
		}(i)
	}
	wg.Wait()

	expectedPath := filepath.Join(config.RepositoryDirectories[0], "soljson-v0.8.7+commit.e28d00a7.js")
	for _, path := range paths {
		assert.Equal(t, expectedPath, path)
	}
	assert.EqualValues(t, 1, requests.Load())

	// A new cache over the same repositories finds the artifact without downloading.
	path, err := NewCompilerCache(config).Acquire(context.Background(), "0.8.7+commit.e28d00a7", platforms.ArtifactSoljson)
	require.NoError(t, err)
	assert.Equal(t, expectedPath, path)
	assert.EqualValues(t, 1, requests.Load())
}

// TestCompilerCacheSearchesRepositories checks that artifacts in later repository directories are found.
func TestCompilerCacheSearchesRepositories(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected download of %s", r.URL.Path)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	config := newTestCompilerCacheConfig(t, server.URL)
	require.NoError(t, os.MkdirAll(config.RepositoryDirectories[1], 0755))
	expectedPath := filepath.Join(config.RepositoryDirectories[1], "soljson-v0.6.12+commit.27d51765.js")
	require.NoError(t, os.WriteFile(expectedPath, []byte("var Module = {};"), 0644))

	path, err := NewCompilerCache(config).Acquire(context.Background(), "0.6.12+commit.27d51765", platforms.ArtifactSoljson)
	require.NoError(t, err)
	assert.Equal(t, expectedPath, path)
}

// TestCompilerCacheMissingCompiler checks that a missing compiler is reported without exhausting retries.
func TestCompilerCacheMissingCompiler(t *testing.T) {
	var requests atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		http.NotFound(w, r)
	}))
	defer server.Close()

	_, err := NewCompilerCache(newTestCompilerCacheConfig(t, server.URL)).Acquire(context.Background(), "0.0.0", platforms.ArtifactSoljson)
	assert.Error(t, err)
	assert.EqualValues(t, 1, requests.Load())
}

// TestCompilerCacheNativeValidation checks that a downloaded native binary is executed to validate it.
func TestCompilerCacheNativeValidation(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not executable on windows")
	}

	script := "#!/bin/sh\necho \"solc, the solidity compiler commandline interface\"\necho \"Version: 0.8.7+commit.e28d00a7.Linux.g++\"\n"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bin/linux-amd64/solc-linux-amd64-v0.8.7+commit.e28d00a7", r.URL.Path)
		_, _ = w.Write([]byte(script))
	}))
	defer server.Close()

	config := newTestCompilerCacheConfig(t, server.URL)
	config.Platform = "linux-amd64"
	path, err := NewCompilerCache(config).Acquire(context.Background(), "0.8.7+commit.e28d00a7", platforms.ArtifactNative)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&0100)
}
